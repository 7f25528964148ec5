package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Repository represents a Gitea repository
type Repository struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	HTMLURL     string `json:"html_url"`
	Owner       User   `json:"owner"`
}

// SplitFullName splits the repository's full name into its owner and name
// parts. A full name without exactly one separator is malformed.
func (r Repository) SplitFullName() (string, string, error) {
	parts := strings.Split(r.FullName, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository full name, expected 'owner/name', got '%s'", r.FullName)
	}
	return parts[0], parts[1], nil
}

// User represents a Gitea user
type User struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url"`
}

// Organization represents a Gitea organization. Older servers populate
// name instead of username.
type Organization struct {
	ID       int64  `json:"id"`
	UserName string `json:"username"`
	Name     string `json:"name"`
}

// Login returns the organization's addressable name.
func (o Organization) Login() string {
	if o.UserName != "" {
		return o.UserName
	}
	return o.Name
}

// Issue represents a Gitea issue
type Issue struct {
	ID        int64     `json:"id"`
	Number    int64     `json:"number"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	HTMLURL   string    `json:"html_url"`
	User      User      `json:"user"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PRBranch identifies one side of a pull request, optionally carrying the
// repository it lives in.
type PRBranch struct {
	Ref  string      `json:"ref"`
	SHA  string      `json:"sha"`
	Repo *Repository `json:"repo"`
}

// PullRequest represents a Gitea pull request
type PullRequest struct {
	ID                 int64     `json:"id"`
	Number             int64     `json:"number"`
	Title              string    `json:"title"`
	State              string    `json:"state"`
	Draft              bool      `json:"draft"`
	HTMLURL            string    `json:"html_url"`
	User               User      `json:"user"`
	UpdatedAt          time.Time `json:"updated_at"`
	Head               PRBranch  `json:"head"`
	Base               PRBranch  `json:"base"`
	Assignees          []User    `json:"assignees"`
	RequestedReviewers []User    `json:"requested_reviewers"`
}

// RepositoryPath resolves the owner and name of the repository the pull
// request belongs to. It prefers the embedded repository references and
// falls back to the /{owner}/{repo}/pulls/{n} segments of the web URL as
// a last resort.
func (pr PullRequest) RepositoryPath() (string, string, bool) {
	for _, repo := range []*Repository{pr.Base.Repo, pr.Head.Repo} {
		if repo == nil {
			continue
		}
		if owner, name, err := repo.SplitFullName(); err == nil {
			return owner, name, true
		}
	}
	return parsePullURL(pr.HTMLURL)
}

func parsePullURL(rawURL string) (string, string, bool) {
	if rawURL == "" {
		return "", "", false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", false
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 4 || segments[2] != "pulls" {
		return "", "", false
	}
	if segments[0] == "" || segments[1] == "" {
		return "", "", false
	}
	return segments[0], segments[1], true
}

// Release represents a Gitea release
type Release struct {
	ID          int64     `json:"id"`
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	Draft       bool      `json:"draft"`
	Prerelease  bool      `json:"prerelease"`
	HTMLURL     string    `json:"html_url"`
	PublishedAt time.Time `json:"published_at"`
}

// CombinedStatus is the aggregated commit-check state of a pull request's
// head commit.
type CombinedStatus string

const (
	StatusSuccess CombinedStatus = "success"
	StatusFailure CombinedStatus = "failure"
	StatusPending CombinedStatus = "pending"
	StatusError   CombinedStatus = "error"
	StatusUnknown CombinedStatus = "unknown"
)

// ParseCombinedStatus maps a raw commit-status state to a CombinedStatus,
// treating anything unrecognized (including the empty string) as unknown.
func ParseCombinedStatus(state string) CombinedStatus {
	switch CombinedStatus(state) {
	case StatusSuccess, StatusFailure, StatusPending, StatusError:
		return CombinedStatus(state)
	default:
		return StatusUnknown
	}
}
