package sitegen

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ManifestError reports a schema violation, naming the violated field.
type ManifestError struct {
	Field  string
	Reason string
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("invalid manifest: %s %s", e.Field, e.Reason)
}

type FileEntry struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Encoding string `json:"encoding,omitempty"`
}

func (f *FileEntry) IsHTML() bool {
	return strings.HasSuffix(strings.ToLower(f.Path), ".html")
}

// Manifest is the generated file set constituting the site. Order is
// preserved from the model output; paths are unique after validation.
type Manifest struct {
	Files []FileEntry `json:"files"`
}

// Index returns the first entry whose path equals index.html
// case-insensitively, or nil. All repair passes are scoped to this file.
func (m *Manifest) Index() *FileEntry {
	for i := range m.Files {
		if strings.EqualFold(m.Files[i].Path, "index.html") {
			return &m.Files[i]
		}
	}
	return nil
}

// HTMLFiles returns pointers to every HTML entry, index file first.
func (m *Manifest) HTMLFiles() []*FileEntry {
	var files []*FileEntry
	if idx := m.Index(); idx != nil {
		files = append(files, idx)
	}
	for i := range m.Files {
		f := &m.Files[i]
		if f.IsHTML() && !strings.EqualFold(f.Path, "index.html") {
			files = append(files, f)
		}
	}
	return files
}

func (m *Manifest) hasPath(path string) bool {
	for i := range m.Files {
		if m.Files[i].Path == path {
			return true
		}
	}
	return false
}

// Upsert replaces the entry with the given path or appends a new one.
// Attachment resolution uses this to overwrite same-named generated files.
func (m *Manifest) Upsert(path, content, encoding string) {
	for i := range m.Files {
		if m.Files[i].Path == path {
			m.Files[i].Content = content
			m.Files[i].Encoding = encoding
			return
		}
	}
	m.Files = append(m.Files, FileEntry{Path: path, Content: content, Encoding: encoding})
}

// Validate enforces the manifest schema: non-empty ordered file list, non-empty
// path and content per entry, unique paths, at least one HTML document.
// Encoding defaults to utf-8.
func (m *Manifest) Validate() error {
	if len(m.Files) == 0 {
		return &ManifestError{Field: "files", Reason: "must be a non-empty list"}
	}

	paths := map[string]struct{}{}
	hasHTML := false
	for i := range m.Files {
		f := &m.Files[i]
		if f.Path == "" {
			return &ManifestError{Field: fmt.Sprintf("files[%d].path", i), Reason: "must not be empty"}
		}
		if f.Content == "" {
			return &ManifestError{Field: fmt.Sprintf("files[%d].content", i), Reason: "must not be empty"}
		}
		if _, dup := paths[f.Path]; dup {
			return &ManifestError{Field: fmt.Sprintf("files[%d].path", i), Reason: fmt.Sprintf("duplicates %q", f.Path)}
		}
		paths[f.Path] = struct{}{}
		if f.Encoding == "" {
			f.Encoding = "utf-8"
		}
		if f.IsHTML() {
			hasHTML = true
		}
	}

	if !hasHTML {
		return &ManifestError{Field: "files", Reason: "must contain at least one HTML document"}
	}
	return nil
}

var (
	fenceMarkerPattern = regexp.MustCompile("(?i)```(?:json|js|html)?")
	trailingCommaObj   = regexp.MustCompile(`,\s*}`)
	trailingCommaArr   = regexp.MustCompile(`,\s*]`)
	braceRegionPattern = regexp.MustCompile(`\{[\s\S]*\}`)
)

func tryParseObject(candidate string) (map[string]json.RawMessage, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
		return obj, true
	}

	// Trailing commas are the most common model slip; strip and retry.
	cleaned := trailingCommaObj.ReplaceAllString(candidate, "}")
	cleaned = trailingCommaArr.ReplaceAllString(cleaned, "]")
	if err := json.Unmarshal([]byte(cleaned), &obj); err == nil {
		return obj, true
	}
	return nil, false
}

// scanBalancedSpans walks the text from each '{' tracking brace depth and
// yields every balanced top-level span until one parses.
func scanBalancedSpans(text string) (map[string]json.RawMessage, bool) {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		depth := 0
		for i := start; i < len(text); i++ {
			switch text[i] {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					if obj, ok := tryParseObject(text[start : i+1]); ok {
						return obj, true
					}
					i = len(text) // abandon this start position
				}
			}
		}
	}
	return nil, false
}

// ExtractJSONObject recovers one JSON object from noisy model output: fenced
// blocks, surrounding commentary, and trailing commas are all tolerated.
// Returns false if no heuristic produces a parsable object.
func ExtractJSONObject(text string) (map[string]json.RawMessage, bool) {
	if strings.TrimSpace(text) == "" {
		return nil, false
	}

	text = strings.TrimSpace(fenceMarkerPattern.ReplaceAllString(text, ""))

	if obj, ok := scanBalancedSpans(text); ok {
		return obj, true
	}

	if obj, ok := tryParseObject(text); ok {
		return obj, true
	}

	// Last resort: the widest brace-delimited region.
	if m := braceRegionPattern.FindString(text); m != "" {
		if obj, ok := tryParseObject(m); ok {
			return obj, true
		}
	}

	return nil, false
}

// ParseManifest recovers and validates a manifest from raw assistant text.
func ParseManifest(text string) (*Manifest, error) {
	obj, ok := ExtractJSONObject(text)
	if !ok {
		return nil, &ManifestError{Field: "files", Reason: "no JSON object found in model output"}
	}

	raw, ok := obj["files"]
	if !ok {
		return nil, &ManifestError{Field: "files", Reason: "missing"}
	}

	var manifest Manifest
	if err := json.Unmarshal(raw, &manifest.Files); err != nil {
		return nil, &ManifestError{Field: "files", Reason: "must be a list of {path, content, encoding} entries"}
	}

	if err := manifest.Validate(); err != nil {
		return nil, err
	}
	return &manifest, nil
}
