package attachments

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"

	"deployer-backend/pkg/api"
)

// browserUserAgent avoids the bot blocks some attachment hosts apply to
// default Go client strings.
const browserUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

var textExtensions = map[string]struct{}{
	".txt": {}, ".md": {}, ".html": {}, ".csv": {}, ".json": {}, ".js": {},
}

// Resolved is one attachment after fetch and decode. Placeholder entries stand
// in for attachments that could not be retrieved so generation never aborts
// over a single bad attachment.
type Resolved struct {
	Name        string
	Content     []byte
	IsText      bool
	Placeholder bool
}

func (r Resolved) Text() string {
	if utf8.Valid(r.Content) {
		return string(r.Content)
	}
	runes := make([]rune, len(r.Content))
	for i, b := range r.Content {
		runes[i] = rune(b)
	}
	return string(runes)
}

type Resolver struct {
	client *resty.Client
}

func NewResolver() *Resolver {
	client := resty.New().
		SetTimeout(20 * time.Second).
		SetRetryCount(1). // 2 attempts total
		SetRetryWaitTime(1 * time.Second).
		SetHeader("User-Agent", browserUserAgent)

	return &Resolver{client: client}
}

func placeholder(name string) Resolved {
	return Resolved{
		Name:        name,
		Content:     []byte(fmt.Sprintf("Attachment %s could not be downloaded.", name)),
		IsText:      true,
		Placeholder: true,
	}
}

func isTextContent(contentType, name string) bool {
	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			if strings.HasPrefix(mediaType, "text/") || mediaType == "application/json" || mediaType == "application/javascript" {
				return true
			}
		}
	}
	_, ok := textExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// decodeDataURI handles data:[<mediatype>][;base64],<payload> references.
func decodeDataURI(uri string) ([]byte, string, error) {
	header, payload, found := strings.Cut(uri, ",")
	if !found {
		return nil, "", fmt.Errorf("malformed data URI")
	}

	meta := strings.TrimPrefix(header, "data:")
	contentType, _, _ := strings.Cut(meta, ";")

	if strings.HasSuffix(header, ";base64") {
		content, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, "", fmt.Errorf("decoding base64 payload: %w", err)
		}
		return content, contentType, nil
	}
	return []byte(payload), contentType, nil
}

func (r *Resolver) fetch(ctx context.Context, url string) ([]byte, string, error) {
	res, err := r.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, "", err
	}
	if !res.IsSuccess() {
		return nil, "", fmt.Errorf("attachment fetch returned status %d", res.StatusCode())
	}
	return res.Body(), res.Header().Get("Content-Type"), nil
}

// ResolveOne fetches and classifies a single attachment, degrading to a
// placeholder on any failure.
func (r *Resolver) ResolveOne(ctx context.Context, att api.Attachment) Resolved {
	if att.Name == "" || att.Url == "" {
		slog.Warn("skipping malformed attachment descriptor", "name", att.Name)
		return placeholder(att.Name)
	}

	var content []byte
	var contentType string
	var err error
	if strings.HasPrefix(att.Url, "data:") {
		content, contentType, err = decodeDataURI(att.Url)
	} else {
		content, contentType, err = r.fetch(ctx, att.Url)
	}
	if err != nil {
		slog.Warn("attachment resolution failed, using placeholder", "name", att.Name, "error", err)
		return placeholder(att.Name)
	}

	return Resolved{
		Name:    att.Name,
		Content: content,
		IsText:  isTextContent(contentType, att.Name),
	}
}

// Resolve fetches all attachments. It never returns an error: failures degrade
// to placeholder files.
func (r *Resolver) Resolve(ctx context.Context, atts []api.Attachment) []Resolved {
	resolved := make([]Resolved, 0, len(atts))
	for _, att := range atts {
		if att.Name == "" && att.Url == "" {
			continue
		}
		resolved = append(resolved, r.ResolveOne(ctx, att))
	}
	return resolved
}

// FindTable returns the decoded name and bytes of the first CSV/TSV attachment
// and its delimiter, or false when none resolved.
func FindTable(resolved []Resolved) ([]byte, rune, bool) {
	for _, r := range resolved {
		if r.Placeholder {
			continue
		}
		switch strings.ToLower(filepath.Ext(r.Name)) {
		case ".csv":
			return r.Content, ',', true
		case ".tsv":
			return r.Content, '\t', true
		}
	}
	return nil, 0, false
}
