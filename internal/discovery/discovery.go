package discovery

import (
	"context"
	"fmt"

	"github.com/mwolfe/gitea-inbox/internal/api"
	"github.com/mwolfe/gitea-inbox/internal/models"
	"go.uber.org/zap"
)

// Engine discovers every repository visible to the client by merging three
// sources: the global search, the authenticated user's repositories and the
// repositories of every visible organization. Duplicates are dropped by
// repository id; the copy from the earliest source wins.
type Engine struct {
	client        *api.Client
	authenticated bool
	log           *zap.Logger
}

// New creates a discovery engine. authenticated enables the two
// credential-dependent sources.
func New(client *api.Client, authenticated bool, log *zap.Logger) *Engine {
	return &Engine{
		client:        client,
		authenticated: authenticated,
		log:           log,
	}
}

// Discover returns the merged repository set in arbitrary order. Ordering is
// the consumer's concern.
func (e *Engine) Discover(ctx context.Context) ([]models.Repository, error) {
	seen := make(map[int64]struct{})
	var repos []models.Repository

	// add merges a batch into the accumulator and reports how many of its
	// repositories were previously unseen.
	add := func(batch []models.Repository) int {
		added := 0
		for _, repo := range batch {
			if _, ok := seen[repo.ID]; ok {
				continue
			}
			seen[repo.ID] = struct{}{}
			repos = append(repos, repo)
			added++
		}
		return added
	}

	if err := e.searchAll(ctx, add, func() int { return len(repos) }); err != nil {
		return nil, err
	}
	searched := len(repos)
	e.log.Debug("repository search complete", zap.Int("repositories", searched))

	if !e.authenticated {
		return repos, nil
	}

	// The user's own repositories cover private ones the search may omit.
	// Failure here is non-fatal; the search results still stand.
	userRepos, err := e.client.ListUserRepositories(ctx)
	if err != nil {
		e.log.Warn("failed to list user repositories", zap.Error(err))
	} else {
		add(userRepos)
	}
	e.log.Debug("user repositories merged", zap.Int("added", len(repos)-searched))

	e.mergeOrganizationRepos(ctx, add)

	return repos, nil
}

// searchAll walks the global search endpoint. Beyond the standard page
// termination it stops when the running total reaches the server's
// total-count hint, or when a page adds no unseen ids (guards against a
// server that keeps serving the same page).
func (e *Engine) searchAll(ctx context.Context, add func([]models.Repository) int, total func() int) error {
	hint := int64(-1)
	for page := 1; ; page++ {
		items, totalCount, err := e.client.SearchRepositoriesPage(ctx, page)
		if err != nil {
			return fmt.Errorf("failed to search repositories: %w", err)
		}
		if hint < 0 {
			hint = totalCount
		}
		if len(items) == 0 {
			return nil
		}
		added := add(items)
		if added == 0 {
			return nil
		}
		if len(items) < api.PageSize {
			return nil
		}
		if hint >= 0 && int64(total()) >= hint {
			return nil
		}
	}
}

// mergeOrganizationRepos enumerates organizations and their repositories.
// This phase generates O(orgs) extra round trips and depends the most on
// server configuration, so every failure in it is swallowed: partial results
// from the earlier phases are still worth returning.
func (e *Engine) mergeOrganizationRepos(ctx context.Context, add func([]models.Repository) int) {
	orgs, err := e.client.ListOrganizations(ctx)
	if err != nil {
		e.log.Warn("failed to list organizations", zap.Error(err))
		return
	}

	for _, org := range orgs {
		login := org.Login()
		if login == "" {
			continue
		}
		orgRepos, err := e.client.ListOrganizationRepositories(ctx, login)
		if err != nil {
			e.log.Warn("failed to list organization repositories",
				zap.String("organization", login), zap.Error(err))
			continue
		}
		added := add(orgRepos)
		e.log.Debug("organization repositories merged",
			zap.String("organization", login), zap.Int("added", added))
	}
}
