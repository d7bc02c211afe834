package ghpages

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"deployer-backend/internal/sitegen"
)

var repoNameStripPattern = regexp.MustCompile(`[^a-z0-9-]+`)

// RepoNameForTask derives the repository name from the submitted task name:
// lowercased, spaces and invalid characters collapsed to hyphens.
func RepoNameForTask(task string) string {
	name := strings.ToLower(strings.TrimSpace(task))
	name = strings.ReplaceAll(name, " ", "-")
	name = repoNameStripPattern.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")
	if name == "" {
		name = "site"
	}
	return name
}

// Result is the publish outcome handed to the evaluator notification.
type Result struct {
	RepoName  string
	RepoURL   string
	CommitSHA string
	PagesURL  string
}

// Publisher drives the per-task publish sequence: repo create-or-reuse,
// manifest file pushes, tolerant attachment pushes, hosting enable with site
// poll, and the dated README summary.
type Publisher struct {
	client     *Client
	siteClient *resty.Client

	IndexWait    time.Duration
	PollTimeout  time.Duration
	PollInterval time.Duration
}

func NewPublisher(client *Client) *Publisher {
	return &Publisher{
		client:       client,
		siteClient:   resty.New().SetTimeout(8 * time.Second),
		IndexWait:    30 * time.Second,
		PollTimeout:  180 * time.Second,
		PollInterval: 2 * time.Second,
	}
}

func encodeEntry(f *sitegen.FileEntry) string {
	if f.Encoding == "base64" {
		return f.Content
	}
	return base64.StdEncoding.EncodeToString([]byte(f.Content))
}

// pushFile looks up the current blob SHA (404 means new file) and writes the
// entry as one commit.
func (p *Publisher) pushFile(ctx context.Context, repo string, f *sitegen.FileEntry) (string, error) {
	sha, err := p.client.GetFileSHA(ctx, repo, f.Path)
	if err != nil {
		return "", err
	}
	return p.client.PutFile(ctx, repo, f.Path, encodeEntry(f), "add "+f.Path, sha)
}

// Publish runs the full sequence. Manifest entries named in attachmentPaths
// tolerate per-file failure; every other push failure, and a hosting enable
// failure, fails the publish. The returned commit SHA is from the last
// successful manifest file push.
func (p *Publisher) Publish(ctx context.Context, taskName string, m *sitegen.Manifest, attachmentPaths map[string]struct{}, round int) (*Result, error) {
	repo := RepoNameForTask(taskName)
	owner := p.client.Owner()
	slog.Info("publishing site", "owner", owner, "repo", repo, "files", len(m.Files))

	if err := p.client.CreateRepo(ctx, repo, "Auto-deployed static site"); err != nil {
		return nil, err
	}

	var commitSha string
	for i := range m.Files {
		f := &m.Files[i]
		sha, err := p.pushFile(ctx, repo, f)
		if _, tolerant := attachmentPaths[f.Path]; tolerant && err != nil {
			slog.Warn("attachment push failed, skipping", "repo", repo, "path", f.Path, "error", err)
			continue
		}
		if err != nil {
			return nil, err
		}
		commitSha = sha
	}

	// The repo was created with a license template; this keeps the file
	// current when the repo predates it. Never fatal.
	p.pushLicense(ctx, repo)

	p.client.WaitForIndex(ctx, repo, p.IndexWait)
	pagesURL, err := p.client.EnablePages(ctx, repo)
	if err != nil {
		return nil, err
	}
	p.pollSite(ctx, pagesURL)

	if err := p.updateReadme(ctx, repo, round, pagesURL, len(m.Files)); err != nil {
		slog.Warn("readme update failed", "repo", repo, "error", err)
	}

	return &Result{
		RepoName:  repo,
		RepoURL:   fmt.Sprintf("https://github.com/%s/%s", owner, repo),
		CommitSHA: commitSha,
		PagesURL:  pagesURL,
	}, nil
}

func (p *Publisher) pushLicense(ctx context.Context, repo string) {
	sha, err := p.client.GetFileSHA(ctx, repo, "LICENSE")
	if err != nil {
		slog.Warn("license sha lookup failed, skipping license push", "repo", repo, "error", err)
		return
	}
	if sha != "" {
		return
	}
	license := MITLicense(p.client.Owner(), time.Now())
	if _, err := p.client.PutFile(ctx, repo, "LICENSE", base64.StdEncoding.EncodeToString([]byte(license)), "add LICENSE", ""); err != nil {
		slog.Warn("license push failed", "repo", repo, "error", err)
	}
}

// pollSite hits the published URL until it responds 200 or the bounded wait
// elapses. A timeout is logged, not fatal: the URL is still returned.
func (p *Publisher) pollSite(ctx context.Context, pagesURL string) {
	deadline := time.Now().Add(p.PollTimeout)
	for {
		res, err := p.siteClient.R().SetContext(ctx).Get(pagesURL)
		if err == nil && res.StatusCode() == 200 {
			slog.Info("site is live", "url", pagesURL)
			return
		}
		if time.Now().After(deadline) {
			slog.Warn("site not live within poll window", "url", pagesURL)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.PollInterval):
		}
	}
}

const readmeHeader = `# %s

Auto-deployed static site. Each deployment round appends a summary below.
`

// updateReadme appends a dated round-summary section, creating the file with
// a header block when absent. The write is SHA-conditioned so a concurrent
// edit rejects the commit instead of being clobbered.
func (p *Publisher) updateReadme(ctx context.Context, repo string, round int, pagesURL string, fileCount int) error {
	content, sha, ok, err := p.client.GetFile(ctx, repo, "README.md")
	if err != nil {
		return err
	}
	if !ok {
		content = fmt.Sprintf(readmeHeader, repo)
		sha = ""
	}

	summary := fmt.Sprintf("\n## Round %d (%s)\n\n- Files deployed: %d\n- Live at: %s\n",
		round, time.Now().Format("2006-01-02"), fileCount, pagesURL)
	content += summary

	_, err = p.client.PutFile(ctx, repo, "README.md", base64.StdEncoding.EncodeToString([]byte(content)), fmt.Sprintf("round %d summary", round), sha)
	return err
}
