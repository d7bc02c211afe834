package sitegen

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	idPattern        = regexp.MustCompile(`#([A-Za-z0-9_-]+)`)
	classPattern     = regexp.MustCompile(`\.([A-Za-z0-9_-]+)`)
	tagPattern       = regexp.MustCompile(`<([A-Za-z0-9]+)`)
	queryTagPattern  = regexp.MustCompile(`querySelector\(['"]([a-zA-Z]+)['"]\)`)
	dataAttrPattern  = regexp.MustCompile(`dataset\.([A-Za-z0-9_-]+)`)
	compoundPattern  = regexp.MustCompile(`#([A-Za-z0-9_-]+)\s+([A-Za-z0-9_>\s]+)`)
	chainTagPattern  = regexp.MustCompile(`[A-Za-z]+`)
	tableIdPattern   = regexp.MustCompile(`#([A-Za-z0-9_-]+)\s+tbody`)
)

// SelectorHints is the advisory output of scanning check strings: tokens the
// generated site must contain, plus human-readable hints for nested-element
// requirements like "#sales tbody tr". Extraction never fails; checks with no
// recognizable pattern contribute nothing.
type SelectorHints struct {
	Ids       []string
	Classes   []string
	Tags      []string
	DataAttrs []string
	Compound  []string
}

func (h SelectorHints) Empty() bool {
	return len(h.Ids) == 0 && len(h.Classes) == 0 && len(h.Tags) == 0 && len(h.DataAttrs) == 0
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func collect(set map[string]struct{}, matches [][]string) {
	for _, m := range matches {
		set[m[1]] = struct{}{}
	}
}

// ExtractSelectors scans the check strings for DOM identifiers. The checks are
// browser JS snippets that are never executed here, only pattern-matched.
func ExtractSelectors(checks []string) SelectorHints {
	ids := map[string]struct{}{}
	classes := map[string]struct{}{}
	tags := map[string]struct{}{}
	dataAttrs := map[string]struct{}{}

	for _, check := range checks {
		collect(ids, idPattern.FindAllStringSubmatch(check, -1))
		collect(classes, classPattern.FindAllStringSubmatch(check, -1))
		collect(tags, tagPattern.FindAllStringSubmatch(check, -1))
		collect(tags, queryTagPattern.FindAllStringSubmatch(check, -1))
		collect(dataAttrs, dataAttrPattern.FindAllStringSubmatch(check, -1))
	}

	hints := SelectorHints{
		Ids:       sortedKeys(ids),
		Classes:   sortedKeys(classes),
		Tags:      sortedKeys(tags),
		DataAttrs: sortedKeys(dataAttrs),
	}

	// Compound selectors such as "#sales-table tbody tr" become structural
	// hints describing the required nesting.
	for _, m := range compoundPattern.FindAllStringSubmatch(strings.Join(checks, " "), -1) {
		chainTags := chainTagPattern.FindAllString(m[2], -1)
		if len(chainTags) == 0 {
			continue
		}
		parts := make([]string, len(chainTags))
		for i, t := range chainTags {
			parts[i] = "<" + t + ">"
		}
		hints.Compound = append(hints.Compound,
			fmt.Sprintf("For #%s, ensure it contains %s structure.", m[1], strings.Join(parts, " -> ")))
	}

	return hints
}

// TableIdsFromChecks returns candidate table ids for the tbody repair pass:
// ids adjacent to a tbody reference first, then every other id mentioned.
func TableIdsFromChecks(checks []string) []string {
	var ids []string
	seen := map[string]struct{}{}

	add := func(id string) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	for _, check := range checks {
		for _, m := range tableIdPattern.FindAllStringSubmatch(check, -1) {
			add(m[1])
		}
	}
	for _, check := range checks {
		for _, m := range idPattern.FindAllStringSubmatch(check, -1) {
			add(m[1])
		}
	}
	return ids
}

// TableRowsRequired reports whether any check asserts on populated table rows.
func TableRowsRequired(checks []string) bool {
	for _, check := range checks {
		if strings.Contains(check, "tbody tr") {
			return true
		}
	}
	return false
}
