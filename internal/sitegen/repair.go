package sitegen

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Repair passes patch structural requirements the model tends to omit. Each
// pass is deterministic and idempotent: a second application detects the
// injected structure and makes no change. All HTML repairs parse the index
// document once, mutate the tree, and serialize once.

const defaultStylesheet = `body { background-color: #f8f9fa; font-family: 'Segoe UI', sans-serif; }
.container { max-width: 960px; margin: 0 auto; padding-top: 40px; }
.card { box-shadow: 0 2px 6px rgba(0,0,0,0.1); border-radius: 8px; margin-bottom: 1rem; }
h1, h2, h3 { margin-bottom: 1rem; font-weight: 600; }
footer { margin-top: 2rem; text-align: center; font-size: 0.9rem; color: #666; }
`

const themeToggleScript = `(function(){
  var t = document.getElementById('theme-toggle');
  if(!t){ return; }
  t.addEventListener('click', function(){
    document.querySelectorAll('.light-theme, .dark-theme').forEach(function(el){
      el.style.display = el.style.display === 'none' ? 'block' : 'none';
    });
  });
})();`

const maxTableRows = 50

// TableData is a decoded CSV/TSV attachment ready to splice into a table.
type TableData struct {
	Header []string
	Rows   [][]string
}

func decodeAttachmentText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	// Latin-1 fallback: every byte maps directly to the same code point.
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}

// ParseTableData decodes delimiter-separated bytes into a header row and up to
// maxTableRows data rows. Returns nil when the content yields no rows.
func ParseTableData(data []byte, delimiter rune) *TableData {
	if len(data) == 0 {
		return nil
	}

	reader := csv.NewReader(strings.NewReader(decodeAttachmentText(data)))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil || len(records) == 0 {
		return nil
	}

	table := &TableData{Header: records[0]}
	for _, row := range records[1:] {
		if len(table.Rows) >= maxTableRows {
			break
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

// --- DOM helpers ---

func findNode(root *html.Node, match func(*html.Node) bool) *html.Node {
	if root.Type == html.ElementNode && match(root) {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attrVal(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func findByTag(root *html.Node, tag string) *html.Node {
	return findNode(root, func(n *html.Node) bool { return n.Data == tag })
}

func findById(root *html.Node, id string) *html.Node {
	return findNode(root, func(n *html.Node) bool { return attrVal(n, "id") == id })
}

func findByClass(root *html.Node, class string) *html.Node {
	return findNode(root, func(n *html.Node) bool { return hasClass(n, class) })
}

func elem(tag string, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Lookup([]byte(tag)),
		Data:     tag,
		Attr:     attrs,
	}
}

func attr(key, val string) html.Attribute {
	return html.Attribute{Key: key, Val: val}
}

func textNode(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func removeChildren(n *html.Node) {
	for n.FirstChild != nil {
		n.RemoveChild(n.FirstChild)
	}
}

// insertionPoint picks where injected structure lands: end of <main> when one
// exists, else end of <body>.
func insertionPoint(doc *html.Node) *html.Node {
	if mainEl := findByTag(doc, "main"); mainEl != nil {
		return mainEl
	}
	if body := findByTag(doc, "body"); body != nil {
		return body
	}
	return doc
}

// --- repair passes ---

func ensureStylesheet(m *Manifest) bool {
	if m.hasPath("style.css") {
		return false
	}
	m.Files = append(m.Files, FileEntry{Path: "style.css", Content: defaultStylesheet, Encoding: "utf-8"})
	return true
}

func buildRow(cells []string, cellTag string) *html.Node {
	tr := elem("tr")
	for _, cell := range cells {
		var td *html.Node
		if cellTag == "th" {
			td = elem("th", attr("scope", "col"))
		} else {
			td = elem("td")
		}
		td.AppendChild(textNode(cell))
		tr.AppendChild(td)
	}
	return tr
}

func skeletonTable(id string) *html.Node {
	table := elem("table", attr("id", id), attr("class", "table table-striped"))
	thead := elem("thead")
	thead.AppendChild(buildRow([]string{"Column 1", "Column 2"}, "th"))
	table.AppendChild(thead)
	table.AppendChild(elem("tbody"))
	return table
}

func findTableById(doc *html.Node, id string) *html.Node {
	return findNode(doc, func(n *html.Node) bool {
		return n.Data == "table" && attrVal(n, "id") == id
	})
}

func spliceTableData(table *html.Node, data *TableData) {
	tbody := findByTag(table, "tbody")
	if tbody == nil {
		tbody = elem("tbody")
		table.AppendChild(tbody)
	}

	removeChildren(tbody)
	for _, row := range data.Rows {
		tbody.AppendChild(buildRow(row, "td"))
	}

	// The attachment header only replaces a missing thead; an existing one is
	// kept as the model wrote it.
	if findByTag(table, "thead") == nil && len(data.Header) > 0 {
		thead := elem("thead")
		thead.AppendChild(buildRow(data.Header, "th"))
		table.InsertBefore(thead, tbody)
	}
}

func ensureTableRow(table *html.Node) bool {
	tbody := findByTag(table, "tbody")
	if tbody == nil {
		tbody = elem("tbody")
		table.AppendChild(tbody)
	}
	if findByTag(tbody, "tr") != nil {
		return false
	}
	tbody.AppendChild(buildRow([]string{"Sample", "0"}, "td"))
	return true
}

// repairTables makes every table id referenced by the checks resolvable with a
// populated tbody, splicing attachment rows when available.
func repairTables(doc *html.Node, checks []string, data *TableData) bool {
	if !TableRowsRequired(checks) {
		return false
	}

	changed := false
	for _, id := range TableIdsFromChecks(checks) {
		table := findTableById(doc, id)
		if table == nil {
			table = skeletonTable(id)
			insertionPoint(doc).AppendChild(table)
			changed = true
		}
		if data != nil && len(data.Rows) > 0 {
			spliceTableData(table, data)
			changed = true
		}
		if ensureTableRow(table) {
			changed = true
		}
	}
	return changed
}

// injectThemeBlock appends minimal light/dark containers, a toggle button, and
// the visibility-swap script when the checks require theming and the document
// lacks any of the three.
func injectThemeBlock(doc *html.Node, checks []string) bool {
	if !ThemeRequired(checks) {
		return false
	}

	hasDark := findByClass(doc, "dark-theme") != nil
	hasLight := findByClass(doc, "light-theme") != nil
	hasToggle := findById(doc, "theme-toggle") != nil
	if hasDark && hasLight && hasToggle {
		return false
	}

	parent := insertionPoint(doc)

	controls := elem("div", attr("class", "theme-controls"))
	button := elem("button", attr("id", "theme-toggle"), attr("class", "btn btn-secondary"))
	button.AppendChild(textNode("Toggle Theme"))
	controls.AppendChild(button)
	parent.AppendChild(controls)

	light := elem("div", attr("class", "light-theme"), attr("style", "display:block;"))
	light.AppendChild(textNode("Light theme"))
	parent.AppendChild(light)

	dark := elem("div", attr("class", "dark-theme"), attr("style", "display:none; background:#111; color:#eee; padding:1rem;"))
	dark.AppendChild(textNode("Dark theme"))
	parent.AppendChild(dark)

	script := elem("script")
	script.AppendChild(textNode(themeToggleScript))
	parent.AppendChild(script)

	return true
}

// RepairManifest runs all repair passes. HTML repairs apply only to the index
// file; a manifest without one keeps its other files untouched.
func RepairManifest(m *Manifest, checks []string, data *TableData) error {
	ensureStylesheet(m)

	index := m.Index()
	if index == nil {
		return nil
	}

	doc, err := html.Parse(strings.NewReader(index.Content))
	if err != nil {
		return fmt.Errorf("parsing index.html for repair: %w", err)
	}

	changed := repairTables(doc, checks, data)
	if injectThemeBlock(doc, checks) {
		changed = true
	}

	if changed {
		var buf bytes.Buffer
		if err := html.Render(&buf, doc); err != nil {
			return fmt.Errorf("serializing repaired index.html: %w", err)
		}
		index.Content = buf.String()
	}
	return nil
}
