// Package azdevops is the hosted source-control backend: a typed client for
// the Azure DevOps git REST API. It maps service failures onto the shared
// error taxonomy so the workflows never inspect HTTP details.
package azdevops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/switchgate/switchgate/scm"
)

const apiVersion = "7.1"

// Client talks to one Azure DevOps project. It is safe for concurrent use.
type Client struct {
	baseURL string // <organization>/<project>
	token   string
	httpc   *http.Client
	log     *zap.Logger
}

var _ scm.Client = (*Client)(nil)

// NewClient builds a client for the given organization URL and project.
// The token is a personal access token with code read/write scope.
func NewClient(organizationURL, project, token string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil
	return &Client{
		baseURL: strings.TrimRight(organizationURL, "/") + "/" + url.PathEscape(project),
		token:   token,
		httpc:   rc.StandardClient(),
		log:     log,
	}
}

// ResolveBranch resolves a branch name to its current tip commit id.
func (c *Client) ResolveBranch(ctx context.Context, repositoryID, branch string) (scm.Ref, error) {
	q := url.Values{}
	q.Set("filter", "heads/"+branch)
	var resp listResponse[gitRef]
	if err := c.get(ctx, c.repoURL(repositoryID, "refs", q), &resp); err != nil {
		return scm.Ref{}, err
	}
	want := scm.BranchRef(branch)
	for _, r := range resp.Value {
		if r.Name == want {
			return scm.Ref{Name: r.Name, ObjectID: r.ObjectID}, nil
		}
	}
	return scm.Ref{}, scm.E(scm.KindNotFound, "azdevops.ResolveBranch",
		fmt.Sprintf("branch %q not found", branch),
		"repository", repositoryID, "branch", branch)
}

// ListBranches lists all branch heads.
func (c *Client) ListBranches(ctx context.Context, repositoryID string) ([]scm.Ref, error) {
	q := url.Values{}
	q.Set("filter", "heads/")
	var resp listResponse[gitRef]
	if err := c.get(ctx, c.repoURL(repositoryID, "refs", q), &resp); err != nil {
		return nil, err
	}
	refs := make([]scm.Ref, 0, len(resp.Value))
	for _, r := range resp.Value {
		refs = append(refs, scm.Ref{Name: r.Name, ObjectID: r.ObjectID})
	}
	return refs, nil
}

// UpdateRef applies a bare ref update. The service validates the old object
// id atomically; a stale or already-existing ref fails the whole update.
func (c *Client) UpdateRef(ctx context.Context, repositoryID string, update scm.RefUpdate) (scm.Ref, error) {
	body := []refUpdate{{
		Name:        update.Name,
		OldObjectID: update.OldObjectID,
		NewObjectID: update.NewObjectID,
	}}
	var resp listResponse[refUpdateResult]
	if err := c.post(ctx, c.repoURL(repositoryID, "refs", nil), body, &resp); err != nil {
		return scm.Ref{}, err
	}
	if len(resp.Value) == 0 {
		return scm.Ref{}, scm.E(scm.KindRemoteUnavailable, "azdevops.UpdateRef",
			"service returned no ref update result", "ref", update.Name)
	}
	res := resp.Value[0]
	if !res.Success {
		kind := scm.KindConflict
		if !strings.Contains(strings.ToLower(res.UpdateStatus), "stale") &&
			!strings.Contains(strings.ToLower(res.UpdateStatus), "conflict") {
			kind = scm.KindInvalidRequest
		}
		return scm.Ref{}, scm.E(kind, "azdevops.UpdateRef",
			fmt.Sprintf("ref update rejected: %s", res.UpdateStatus),
			"repository", repositoryID, "ref", update.Name)
	}
	return scm.Ref{Name: res.Name, ObjectID: res.NewObjectID}, nil
}

// Push submits an atomic push. The service computes the new commit ids from
// the commit contents; the ref updates carry only the expected old tips.
func (c *Client) Push(ctx context.Context, repositoryID string, p scm.Push) (scm.PushResult, error) {
	body := push{}
	for _, u := range p.RefUpdates {
		body.RefUpdates = append(body.RefUpdates, refUpdate{
			Name:        u.Name,
			OldObjectID: u.OldObjectID,
		})
	}
	for _, cm := range p.Commits {
		wc := commit{Comment: cm.Message}
		for _, ch := range cm.Changes {
			wc.Changes = append(wc.Changes, change{
				ChangeType: changeTypeFor(ch.Kind),
				Item:       changeItem{Path: ensureLeadingSlash(ch.Path)},
				NewContent: &itemContent{Content: string(ch.Content), ContentType: "rawtext"},
			})
		}
		body.Commits = append(body.Commits, wc)
	}

	var resp pushResult
	if err := c.post(ctx, c.repoURL(repositoryID, "pushes", nil), body, &resp); err != nil {
		return scm.PushResult{}, err
	}
	if len(resp.Commits) == 0 {
		return scm.PushResult{}, scm.E(scm.KindRemoteUnavailable, "azdevops.Push",
			"service returned no commits for push", "repository", repositoryID)
	}
	return scm.PushResult{CommitID: resp.Commits[0].CommitID}, nil
}

// ContentFetchers returns the item API as the primary retrieval path and the
// raw blob API as the fallback. The item API is occasionally inconsistent
// for just-pushed branches; the blob API reads the object store directly.
func (c *Client) ContentFetchers() []scm.ContentFetcher {
	return []scm.ContentFetcher{
		&itemFetcher{c: c},
		&blobFetcher{c: c},
	}
}

// ListRepositories lists the project's repositories.
func (c *Client) ListRepositories(ctx context.Context) ([]Repository, error) {
	var resp listResponse[Repository]
	u := fmt.Sprintf("%s/_apis/git/repositories?api-version=%s", c.baseURL, apiVersion)
	if err := c.get(ctx, u, &resp); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// ListPullRequests lists pull requests, filtered by status ("active",
// "completed", "abandoned", or "all").
func (c *Client) ListPullRequests(ctx context.Context, repositoryID, status string) ([]PullRequest, error) {
	if status == "" {
		status = "active"
	}
	q := url.Values{}
	q.Set("searchCriteria.status", status)
	var resp listResponse[PullRequest]
	if err := c.get(ctx, c.repoURL(repositoryID, "pullrequests", q), &resp); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// ListPullRequestThreads lists the comment threads of a pull request.
func (c *Client) ListPullRequestThreads(ctx context.Context, repositoryID string, pullRequestID int) ([]CommentThread, error) {
	var resp listResponse[CommentThread]
	u := c.repoURL(repositoryID, fmt.Sprintf("pullRequests/%d/threads", pullRequestID), nil)
	if err := c.get(ctx, u, &resp); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

func changeTypeFor(kind scm.ChangeKind) string {
	if kind == scm.ChangeAdd {
		return "add"
	}
	return "edit"
}

// ensureLeadingSlash normalizes paths to the service's /-rooted form.
func ensureLeadingSlash(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}

func (c *Client) repoURL(repositoryID, resource string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	q.Set("api-version", apiVersion)
	return fmt.Sprintf("%s/_apis/git/repositories/%s/%s?%s",
		c.baseURL, url.PathEscape(repositoryID), resource, q.Encode())
}

func (c *Client) get(ctx context.Context, u string, out any) error {
	return c.do(ctx, http.MethodGet, u, nil, out)
}

func (c *Client) post(ctx context.Context, u string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, u, data, out)
}

func (c *Client) do(ctx context.Context, method, u string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return scm.E(scm.KindInvalidRequest, "azdevops", "build request").Wrap(err)
	}
	req.SetBasicAuth("", c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return scm.E(scm.KindRemoteUnavailable, "azdevops", "request failed", "url", u).Wrap(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.statusError(resp, u)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return scm.E(scm.KindRemoteUnavailable, "azdevops", "decode response", "url", u).Wrap(err)
	}
	return nil
}

// rawGet fetches a resource without JSON decoding (used by the blob path).
func (c *Client) rawGet(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, scm.E(scm.KindInvalidRequest, "azdevops", "build request").Wrap(err)
	}
	req.SetBasicAuth("", c.token)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, scm.E(scm.KindRemoteUnavailable, "azdevops", "request failed", "url", u).Wrap(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, c.statusError(resp, u)
	}
	return io.ReadAll(resp.Body)
}

// statusError translates an HTTP failure into the shared taxonomy. Stale ref
// updates come back as 409s (or a stale-update type key); those are the
// conflicts the optimistic-concurrency protocol depends on detecting.
func (c *Client) statusError(resp *http.Response, u string) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var ae apiError
	_ = json.Unmarshal(data, &ae)
	detail := ae.Message
	if detail == "" {
		detail = strings.TrimSpace(string(data))
	}
	if detail == "" {
		detail = resp.Status
	}

	kind := scm.KindRemoteUnavailable
	switch {
	case resp.StatusCode == http.StatusConflict,
		strings.Contains(ae.TypeKey, "StaleUpdate"),
		strings.Contains(ae.TypeKey, "GitReferenceUpdate"):
		kind = scm.KindConflict
	case resp.StatusCode == http.StatusNotFound,
		strings.Contains(ae.TypeKey, "GitItemNotFound"),
		strings.Contains(ae.TypeKey, "GitUnresolvableToCommit"):
		kind = scm.KindNotFound
	case resp.StatusCode == http.StatusBadRequest:
		kind = scm.KindInvalidRequest
	}

	c.log.Debug("remote error",
		zap.Int("status", resp.StatusCode),
		zap.String("typeKey", ae.TypeKey),
		zap.String("kind", string(kind)))
	return scm.E(kind, "azdevops", detail, "status", resp.Status, "url", u)
}
