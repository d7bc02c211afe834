package ghpages

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultAPIURL = "https://api.github.com"

// PublishError wraps a hosting API failure with the operation that produced
// it. A stale-SHA rejection from the contents API surfaces through here as
// well; there is no re-fetch-and-retry loop on SHA conflicts.
type PublishError struct {
	Op  string
	Err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s: %v", e.Op, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

func publishErrorf(op, format string, args ...any) error {
	return &PublishError{Op: op, Err: fmt.Errorf(format, args...)}
}

// Client talks to a GitHub-compatible REST API for one owner/token pair.
type Client struct {
	client *resty.Client
	owner  string
}

func NewClient(apiURL, owner, token string) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	client := resty.New().
		SetBaseURL(apiURL).
		SetTimeout(30*time.Second).
		SetHeader("Authorization", "token "+token).
		SetHeader("Accept", "application/vnd.github.v3+json").
		SetHeader("User-Agent", "site-deployer")

	return &Client{client: client, owner: owner}
}

func (c *Client) Owner() string {
	return c.owner
}

type repoResponse struct {
	Name          string `json:"name"`
	HtmlUrl       string `json:"html_url"`
	DefaultBranch string `json:"default_branch"`
}

func (c *Client) RepoExists(ctx context.Context, repo string) (bool, error) {
	res, err := c.client.R().SetContext(ctx).Get(fmt.Sprintf("/repos/%s/%s", c.owner, repo))
	if err != nil {
		return false, publishErrorf("repo lookup", "%v", err)
	}
	if res.StatusCode() == http.StatusNotFound {
		return false, nil
	}
	if !res.IsSuccess() {
		return false, publishErrorf("repo lookup", "status %d: %s", res.StatusCode(), res.String())
	}
	return true, nil
}

// CreateRepo creates the repository with an initial commit so the default
// branch exists immediately. A pre-existing repo is reused, never recreated.
func (c *Client) CreateRepo(ctx context.Context, repo, description string) error {
	exists, err := c.RepoExists(ctx, repo)
	if err != nil {
		return err
	}
	if exists {
		slog.Info("repo already exists, reusing", "owner", c.owner, "repo", repo)
		return nil
	}

	body := map[string]any{
		"name":             repo,
		"description":      description,
		"private":          false,
		"auto_init":        true,
		"license_template": "mit",
	}

	res, err := c.client.R().SetContext(ctx).SetBody(body).Post("/user/repos")
	if err != nil {
		return publishErrorf("repo create", "%v", err)
	}
	if !res.IsSuccess() {
		return publishErrorf("repo create", "status %d: %s", res.StatusCode(), res.String())
	}
	slog.Info("created repo", "owner", c.owner, "repo", repo)
	return nil
}

type contentsResponse struct {
	Sha     string `json:"sha"`
	Content string `json:"content"`
}

// GetFileSHA returns the blob SHA for a path, or "" when the file does not
// exist yet.
func (c *Client) GetFileSHA(ctx context.Context, repo, path string) (string, error) {
	var contents contentsResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("ref", "main").
		SetResult(&contents).
		Get(fmt.Sprintf("/repos/%s/%s/contents/%s", c.owner, repo, path))
	if err != nil {
		return "", publishErrorf("sha lookup", "%s: %v", path, err)
	}
	if res.StatusCode() == http.StatusNotFound {
		return "", nil
	}
	if !res.IsSuccess() {
		return "", publishErrorf("sha lookup", "%s: status %d", path, res.StatusCode())
	}
	return contents.Sha, nil
}

// GetFile fetches a file's decoded content and SHA. Missing files return
// ok=false without error.
func (c *Client) GetFile(ctx context.Context, repo, path string) (content string, sha string, ok bool, err error) {
	var contents contentsResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("ref", "main").
		SetResult(&contents).
		Get(fmt.Sprintf("/repos/%s/%s/contents/%s", c.owner, repo, path))
	if err != nil {
		return "", "", false, publishErrorf("file read", "%s: %v", path, err)
	}
	if res.StatusCode() == http.StatusNotFound {
		return "", "", false, nil
	}
	if !res.IsSuccess() {
		return "", "", false, publishErrorf("file read", "%s: status %d", path, res.StatusCode())
	}

	decoded, decodeErr := base64.StdEncoding.DecodeString(strings.ReplaceAll(contents.Content, "\n", ""))
	if decodeErr != nil {
		return "", "", false, publishErrorf("file read", "%s: decoding content: %v", path, decodeErr)
	}
	return string(decoded), contents.Sha, true, nil
}

type putFileResponse struct {
	Commit struct {
		Sha string `json:"sha"`
	} `json:"commit"`
}

func (c *Client) putFileOnce(ctx context.Context, repo, path string, body map[string]any) (string, *resty.Response, error) {
	var put putFileResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&put).
		Put(fmt.Sprintf("/repos/%s/%s/contents/%s", c.owner, repo, path))
	if err != nil {
		return "", res, err
	}
	return put.Commit.Sha, res, nil
}

// PutFile writes one file as a single commit. contentB64 is the base64 of the
// file bytes; sha is the current blob SHA for updates, empty for creation.
// Connection and timeout errors get one retry before the failure propagates.
func (c *Client) PutFile(ctx context.Context, repo, path, contentB64, message, sha string) (string, error) {
	body := map[string]any{
		"message": message,
		"content": contentB64,
		"branch":  "main",
	}
	if sha != "" {
		body["sha"] = sha
	}

	commitSha, res, err := c.putFileOnce(ctx, repo, path, body)
	if err != nil {
		slog.Warn("file push failed, retrying once", "path", path, "error", err)
		time.Sleep(2 * time.Second)
		commitSha, res, err = c.putFileOnce(ctx, repo, path, body)
	}
	if err != nil {
		return "", publishErrorf("file push", "%s: %v", path, err)
	}
	if !res.IsSuccess() {
		return "", publishErrorf("file push", "%s: status %d: %s", path, res.StatusCode(), res.String())
	}
	return commitSha, nil
}

type pagesResponse struct {
	HtmlUrl string `json:"html_url"`
}

// EnablePages activates static hosting for the main branch root. Some API
// versions want POST for creation and PUT for update, so a failed POST falls
// back to PUT before the error propagates. Returns the site URL.
func (c *Client) EnablePages(ctx context.Context, repo string) (string, error) {
	endpoint := fmt.Sprintf("/repos/%s/%s/pages", c.owner, repo)
	body := map[string]any{
		"build_type": "legacy",
		"source":     map[string]string{"branch": "main", "path": "/"},
	}

	res, err := c.client.R().SetContext(ctx).SetBody(body).Post(endpoint)
	if err != nil || !res.IsSuccess() {
		res, err = c.client.R().SetContext(ctx).SetBody(body).Put(endpoint)
		if err != nil {
			return "", publishErrorf("pages enable", "%v", err)
		}
		if !res.IsSuccess() {
			return "", publishErrorf("pages enable", "status %d: %s", res.StatusCode(), res.String())
		}
	}

	var pages pagesResponse
	if len(res.Body()) > 0 {
		// Empty or non-JSON bodies are fine, the fallback URL covers them.
		_ = json.Unmarshal(res.Body(), &pages)
	}
	if pages.HtmlUrl != "" {
		return pages.HtmlUrl, nil
	}
	return fmt.Sprintf("https://%s.github.io/%s/", c.owner, repo), nil
}

// WaitForIndex polls until index.html is visible in the repo contents, so
// hosting is not enabled against an empty branch. Timing out is not an error.
func (c *Client) WaitForIndex(ctx context.Context, repo string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		sha, err := c.GetFileSHA(ctx, repo, "index.html")
		if err == nil && sha != "" {
			return true
		}
		if time.Now().After(deadline) {
			slog.Warn("index.html not visible before hosting enable", "repo", repo)
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(2 * time.Second):
		}
	}
}
