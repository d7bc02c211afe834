package sitecheck

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"deployer-backend/internal/sitegen"
)

// The checker statically verifies generated HTML against the browser checks:
// it extracts a CSS-style selector from recognizable querySelector /
// getElementById calls and searches the manifest's HTML files for a structural
// match. Checks that cannot be reduced to a selector are skipped, never
// executed.

// CheckError reports which selectors no HTML file satisfied.
type CheckError struct {
	Missing []string
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("structural check failed, missing selectors: %s", strings.Join(e.Missing, ", "))
}

var (
	querySelectorPattern  = regexp.MustCompile(`querySelector(?:All)?\(\s*['"]([^'"]+)['"]\s*\)`)
	getElementByIdPattern = regexp.MustCompile(`getElementById\(\s*['"]([^'"]+)['"]\s*\)`)
)

// ExtractSelector reduces a check string to a single selector, or reports
// that the check is not statically verifiable.
func ExtractSelector(check string) (string, bool) {
	if m := querySelectorPattern.FindStringSubmatch(check); m != nil {
		return m[1], true
	}
	if m := getElementByIdPattern.FindStringSubmatch(check); m != nil {
		return "#" + m[1], true
	}
	return "", false
}

// simpleSelector is one segment of a descendant chain: optional tag plus any
// number of #id/.class qualifiers.
type simpleSelector struct {
	tag     string
	id      string
	classes []string
}

var simplePattern = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9-]*)?((?:[#.][A-Za-z0-9_-]+)*)$`)

func parseSimple(s string) (simpleSelector, bool) {
	m := simplePattern.FindStringSubmatch(s)
	if m == nil || (m[1] == "" && m[2] == "") {
		return simpleSelector{}, false
	}

	sel := simpleSelector{tag: strings.ToLower(m[1])}
	for _, q := range regexp.MustCompile(`[#.][A-Za-z0-9_-]+`).FindAllString(m[2], -1) {
		if q[0] == '#' {
			if sel.id != "" {
				return simpleSelector{}, false
			}
			sel.id = q[1:]
		} else {
			sel.classes = append(sel.classes, q[1:])
		}
	}
	return sel, true
}

// parseSelector splits a descendant chain ("#sales tbody tr", "div > span")
// into simple selectors. Combinators beyond descendant/child and any
// pseudo-class or attribute syntax make the selector unparsable.
func parseSelector(selector string) ([]simpleSelector, bool) {
	normalized := strings.ReplaceAll(selector, ">", " ")
	var parts []simpleSelector
	for _, field := range strings.Fields(normalized) {
		sel, ok := parseSimple(field)
		if !ok {
			return nil, false
		}
		parts = append(parts, sel)
	}
	if len(parts) == 0 {
		return nil, false
	}
	return parts, true
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func matchesSimple(n *html.Node, sel simpleSelector) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if sel.tag != "" && n.Data != sel.tag {
		return false
	}
	if sel.id != "" && attrVal(n, "id") != sel.id {
		return false
	}
	if len(sel.classes) > 0 {
		have := map[string]struct{}{}
		for _, c := range strings.Fields(attrVal(n, "class")) {
			have[c] = struct{}{}
		}
		for _, c := range sel.classes {
			if _, ok := have[c]; !ok {
				return false
			}
		}
	}
	return true
}

// matchChain finds a node matching chain[0] under root, then recurses into its
// descendants for the rest of the chain.
func matchChain(root *html.Node, chain []simpleSelector) bool {
	if len(chain) == 0 {
		return true
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if matchesSimple(c, chain[0]) && matchChain(c, chain[1:]) {
			return true
		}
		if matchChain(c, chain) {
			return true
		}
	}
	return false
}

func selectorInDocument(content, selector string) bool {
	chain, ok := parseSelector(selector)
	if !ok {
		// Unsupported selector syntax degrades to a raw substring scan for
		// its identifier tokens.
		for _, token := range regexp.MustCompile(`[A-Za-z0-9_-]+`).FindAllString(selector, -1) {
			if !strings.Contains(content, token) {
				return false
			}
		}
		return true
	}

	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return strings.Contains(content, selector)
	}
	return matchChain(doc, chain)
}

// Verify evaluates every extractable selector against the manifest's HTML
// files, index first. A selector passes if any file contains it; the manifest
// passes only if every selector is found.
func Verify(m *sitegen.Manifest, checks []string) error {
	var missing []string

	for _, check := range checks {
		selector, ok := ExtractSelector(check)
		if !ok {
			continue
		}

		found := false
		for _, file := range m.HTMLFiles() {
			if selectorInDocument(file.Content, selector) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, selector)
		}
	}

	if len(missing) > 0 {
		return &CheckError{Missing: missing}
	}
	return nil
}
