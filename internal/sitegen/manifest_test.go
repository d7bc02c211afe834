package sitegen_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deployer-backend/internal/sitegen"
)

func TestParseManifestPlainJSON(t *testing.T) {
	text := `{"files":[{"path":"index.html","content":"<html><body>hi</body></html>"}]}`

	m, err := sitegen.ParseManifest(text)
	require.NoError(t, err)
	require.Len(t, m.Files, 1)
	assert.Equal(t, "index.html", m.Files[0].Path)
	assert.Equal(t, "utf-8", m.Files[0].Encoding)
}

func TestParseManifestFencedWithCommentary(t *testing.T) {
	text := "Sure! Here is your site:\n```json\n" +
		`{"files":[{"path":"index.html","content":"<html></html>"},{"path":"style.css","content":"body{}"}]}` +
		"\n```\nLet me know if you need anything else."

	m, err := sitegen.ParseManifest(text)
	require.NoError(t, err)
	require.Len(t, m.Files, 2)
	assert.Equal(t, "style.css", m.Files[1].Path)
}

func TestParseManifestTrailingCommas(t *testing.T) {
	text := `{"files":[{"path":"index.html","content":"<html></html>",},]}`

	m, err := sitegen.ParseManifest(text)
	require.NoError(t, err)
	require.Len(t, m.Files, 1)
}

func TestParseManifestNoisePrefixWithBraces(t *testing.T) {
	// A balanced but unrelated object precedes the manifest.
	text := `Thinking: {"not":"it"} ... final answer: {"files":[{"path":"index.html","content":"x"}]}`

	m, err := sitegen.ParseManifest(text)
	require.NoError(t, err)
	require.Len(t, m.Files, 1)
	assert.Equal(t, "x", m.Files[0].Content)
}

func TestParseManifestErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty text", ""},
		{"no json", "I could not generate the site, sorry."},
		{"missing files key", `{"pages":[]}`},
		{"empty files", `{"files":[]}`},
		{"missing path", `{"files":[{"path":"","content":"x"}]}`},
		{"missing content", `{"files":[{"path":"index.html","content":""}]}`},
		{"duplicate paths", `{"files":[{"path":"index.html","content":"a"},{"path":"index.html","content":"b"}]}`},
		{"no html file", `{"files":[{"path":"style.css","content":"body{}"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sitegen.ParseManifest(tt.text)
			require.Error(t, err)
			var merr *sitegen.ManifestError
			assert.ErrorAs(t, err, &merr)
		})
	}
}

func TestExtractJSONObjectRoundTrip(t *testing.T) {
	original := map[string]any{
		"files": []any{map[string]any{"path": "a.html", "content": "<p>nested {braces} inside</p>"}},
		"meta":  map[string]any{"count": float64(3)},
	}
	encoded, err := json.Marshal(original)
	require.NoError(t, err)

	wrappers := []string{
		"%s",
		"prefix text %s suffix text",
		"```json\n%s\n```",
		"some {unbalanced prefix %s",
	}

	for _, w := range wrappers {
		obj, ok := sitegen.ExtractJSONObject(fmt.Sprintf(w, string(encoded)))
		require.True(t, ok, "wrapper %q", w)

		recovered := map[string]any{}
		for k, raw := range obj {
			var v any
			require.NoError(t, json.Unmarshal(raw, &v))
			recovered[k] = v
		}
		assert.Equal(t, original, recovered, "wrapper %q", w)
	}
}
