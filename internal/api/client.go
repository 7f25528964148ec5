package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mwolfe/gitea-inbox/internal/models"
	"golang.org/x/oauth2"
)

// PageSize is the fixed number of items requested per collection page.
const PageSize = 100

const maxErrorBody = 4 << 10

// Client represents a client for the Gitea REST API
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a new Gitea API client rooted at baseURL (including the
// /api/v1 prefix). An empty token yields an unauthenticated client.
func New(baseURL, token string) *Client {
	var hc *http.Client

	if token != "" {
		// Gitea expects "Authorization: token {value}"; a static source with
		// a literal token type renders exactly that header.
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token, TokenType: "token"},
		)
		hc = oauth2.NewClient(context.Background(), ts)
	} else {
		hc = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
	}
}

// getJSON issues a single GET and decodes the response into out. Any
// non-2xx response aborts with an *APIError carrying the status code, the
// response body text (or the status line when the body is empty) and the URL.
func (c *Client) getJSON(ctx context.Context, requestURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request for %s: %w", requestURL, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", requestURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		text := strings.TrimSpace(string(body))
		if text == "" {
			text = resp.Status
		}
		return &APIError{StatusCode: resp.StatusCode, URL: requestURL, Body: text}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", requestURL, err)
	}

	return nil
}

func (c *Client) collectionURL(path string, query url.Values, page int) string {
	q := url.Values{}
	for key, values := range query {
		q[key] = values
	}
	q.Set("limit", strconv.Itoa(PageSize))
	q.Set("page", strconv.Itoa(page))
	return c.baseURL + path + "?" + q.Encode()
}

// fetchAllPages walks a numbered-page collection endpoint to exhaustion.
// Pages are requested strictly in order: termination depends on the size of
// the page just received. A page with zero items stops the walk; a short
// page stops it after appending. No retries happen at this layer.
func fetchAllPages[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	var all []T
	for page := 1; ; page++ {
		var items []T
		if err := c.getJSON(ctx, c.collectionURL(path, query, page), &items); err != nil {
			return nil, err
		}
		if len(items) == 0 {
			break
		}
		all = append(all, items...)
		if len(items) < PageSize {
			break
		}
	}
	return all, nil
}

type repoSearchResponse struct {
	OK         bool                `json:"ok"`
	Data       []models.Repository `json:"data"`
	TotalCount int64               `json:"total_count"`
}

// SearchRepositoriesPage fetches one page of the global repository search
// and returns the server's total-count hint alongside the items. The caller
// drives the page walk because its termination also depends on how many of
// the returned repositories were previously unseen.
func (c *Client) SearchRepositoriesPage(ctx context.Context, page int) ([]models.Repository, int64, error) {
	var resp repoSearchResponse
	if err := c.getJSON(ctx, c.collectionURL("/repos/search", nil, page), &resp); err != nil {
		return nil, 0, err
	}
	return resp.Data, resp.TotalCount, nil
}

// ListUserRepositories lists all repositories accessible to the
// authenticated user, including private ones the search endpoint may omit.
func (c *Client) ListUserRepositories(ctx context.Context) ([]models.Repository, error) {
	return fetchAllPages[models.Repository](ctx, c, "/user/repos", nil)
}

// ListOrganizations lists all organizations visible on the server.
func (c *Client) ListOrganizations(ctx context.Context) ([]models.Organization, error) {
	return fetchAllPages[models.Organization](ctx, c, "/orgs", nil)
}

// ListOrganizationRepositories lists all repositories owned by an organization.
func (c *Client) ListOrganizationRepositories(ctx context.Context, org string) ([]models.Repository, error) {
	return fetchAllPages[models.Repository](ctx, c, "/orgs/"+url.PathEscape(org)+"/repos", nil)
}

// ListOpenIssues lists the open issues of a repository, excluding pull requests.
func (c *Client) ListOpenIssues(ctx context.Context, owner, name string) ([]models.Issue, error) {
	query := url.Values{"state": {"open"}, "type": {"issues"}}
	return fetchAllPages[models.Issue](ctx, c, repoPath(owner, name)+"/issues", query)
}

// ListOpenPullRequests lists the open pull requests of a repository. A
// non-empty poster narrows the result to pull requests authored by that login.
func (c *Client) ListOpenPullRequests(ctx context.Context, owner, name, poster string) ([]models.PullRequest, error) {
	query := url.Values{"state": {"open"}}
	if poster != "" {
		query.Set("poster", poster)
	}
	return fetchAllPages[models.PullRequest](ctx, c, repoPath(owner, name)+"/pulls", query)
}

// ListReleases lists a repository's releases.
func (c *Client) ListReleases(ctx context.Context, owner, name string) ([]models.Release, error) {
	return fetchAllPages[models.Release](ctx, c, repoPath(owner, name)+"/releases", nil)
}

// ListCreatedPullRequests lists open pull requests created by the current
// user via the server-wide endpoint. Servers that do not support it
// respond 404.
func (c *Client) ListCreatedPullRequests(ctx context.Context) ([]models.PullRequest, error) {
	return fetchAllPages[models.PullRequest](ctx, c, "/pulls/created", url.Values{"state": {"open"}})
}

// ListReviewRequestedPullRequests lists open pull requests awaiting the
// current user's review via the server-wide endpoint. Servers that do not
// support it respond 404.
func (c *Client) ListReviewRequestedPullRequests(ctx context.Context) ([]models.PullRequest, error) {
	return fetchAllPages[models.PullRequest](ctx, c, "/pulls/requested_review", url.Values{"state": {"open"}})
}

// GetCombinedStatus fetches the combined commit-check state for a commit.
func (c *Client) GetCombinedStatus(ctx context.Context, owner, name, sha string) (models.CombinedStatus, error) {
	var resp struct {
		State string `json:"state"`
	}
	requestURL := c.baseURL + repoPath(owner, name) + "/commits/" + url.PathEscape(sha) + "/status"
	if err := c.getJSON(ctx, requestURL, &resp); err != nil {
		return models.StatusUnknown, err
	}
	return models.ParseCombinedStatus(resp.State), nil
}

// GetCurrentUser fetches the authenticated user's identity.
func (c *Client) GetCurrentUser(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.getJSON(ctx, c.baseURL+"/user", &user); err != nil {
		return nil, fmt.Errorf("failed to resolve current user: %w", err)
	}
	return &user, nil
}

func repoPath(owner, name string) string {
	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(name)
}
