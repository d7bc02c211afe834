package attachments_test

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deployer-backend/internal/attachments"
	"deployer-backend/pkg/api"
)

func TestResolveTextAttachment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("a,b\n1,2\n"))
	}))
	defer server.Close()

	resolver := attachments.NewResolver()
	resolved := resolver.ResolveOne(context.Background(), api.Attachment{Name: "data.csv", Url: server.URL})

	assert.False(t, resolved.Placeholder)
	assert.True(t, resolved.IsText)
	assert.Equal(t, "a,b\n1,2\n", resolved.Text())
}

func TestResolveBinaryAttachment(t *testing.T) {
	payload := []byte{0x89, 0x50, 0x4e, 0x47}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	resolver := attachments.NewResolver()
	resolved := resolver.ResolveOne(context.Background(), api.Attachment{Name: "logo.png", Url: server.URL})

	assert.False(t, resolved.Placeholder)
	assert.False(t, resolved.IsText)
	assert.Equal(t, payload, resolved.Content)
}

func TestResolveFailureYieldsPlaceholder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	resolver := attachments.NewResolver()
	resolved := resolver.ResolveOne(context.Background(), api.Attachment{Name: "missing.txt", Url: server.URL})

	assert.True(t, resolved.Placeholder)
	assert.True(t, resolved.IsText)
	assert.Contains(t, resolved.Text(), "missing.txt")
}

func TestResolveDataURI(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("hello world"))
	att := api.Attachment{Name: "note.txt", Url: "data:text/plain;base64," + payload}

	resolver := attachments.NewResolver()
	resolved := resolver.ResolveOne(context.Background(), att)

	assert.False(t, resolved.Placeholder)
	assert.True(t, resolved.IsText)
	assert.Equal(t, "hello world", resolved.Text())
}

func TestResolveMalformedDescriptor(t *testing.T) {
	resolver := attachments.NewResolver()

	resolved := resolver.ResolveOne(context.Background(), api.Attachment{Name: "x.txt"})
	assert.True(t, resolved.Placeholder)

	// Fully empty descriptors are dropped entirely.
	all := resolver.Resolve(context.Background(), []api.Attachment{{}})
	assert.Empty(t, all)
}

func TestFindTable(t *testing.T) {
	resolved := []attachments.Resolved{
		{Name: "readme.md", Content: []byte("# hi"), IsText: true},
		{Name: "broken.csv", Content: []byte("x"), IsText: true, Placeholder: true},
		{Name: "data.csv", Content: []byte("a,b\n1,2\n"), IsText: true},
	}

	data, delimiter, ok := attachments.FindTable(resolved)
	require.True(t, ok)
	assert.Equal(t, ',', int32(delimiter))
	assert.Equal(t, []byte("a,b\n1,2\n"), data)
}

func TestFindTableTSV(t *testing.T) {
	resolved := []attachments.Resolved{{Name: "data.tsv", Content: []byte("a\tb\n")}}

	_, delimiter, ok := attachments.FindTable(resolved)
	require.True(t, ok)
	assert.Equal(t, '\t', int32(delimiter))
}

func TestFindTableNone(t *testing.T) {
	_, _, ok := attachments.FindTable([]attachments.Resolved{{Name: "a.txt"}})
	assert.False(t, ok)
}
