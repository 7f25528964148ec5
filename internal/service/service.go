package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mwolfe/gitea-inbox/config"
	"github.com/mwolfe/gitea-inbox/internal/api"
	"github.com/mwolfe/gitea-inbox/internal/cache"
	"github.com/mwolfe/gitea-inbox/internal/discovery"
	"github.com/mwolfe/gitea-inbox/internal/inbox"
	"github.com/mwolfe/gitea-inbox/internal/models"
	"github.com/mwolfe/gitea-inbox/internal/store"
	"go.uber.org/zap"
)

const repoCacheKey = "repositories"

// InboxSnapshot is the cached form of the pull-request inbox: both sequences
// sorted most-recently-updated first, plus the status map keyed by
// pull-request id.
type InboxSnapshot struct {
	Created         []models.PullRequest            `json:"created"`
	ReviewRequested []models.PullRequest            `json:"review_requested"`
	Statuses        map[int64]models.CombinedStatus `json:"statuses,omitempty"`
	ScanFailures    int                             `json:"scan_failures,omitempty"`
}

// Service is the session-scoped entry point: it owns the API client, the
// store, the two dataset caches and the memoized current-user identity, and
// applies the stale-while-revalidate policy on top of the fetch layers.
type Service struct {
	cfg      *config.Config
	client   *api.Client
	store    *store.Store
	engine   *discovery.Engine
	resolver *inbox.Resolver
	log      *zap.Logger

	repoCache  *cache.Cache
	inboxCache *cache.Cache

	userMu sync.Mutex
	user   *models.User
}

// New wires a service for one configured server.
func New(cfg *config.Config, st *store.Store, log *zap.Logger) *Service {
	client := api.New(cfg.APIRoot(), cfg.Token)
	engine := discovery.New(client, cfg.Token != "", log)

	s := &Service{
		cfg:    cfg,
		client: client,
		store:  st,
		engine: engine,
		log:    log,

		repoCache: cache.New(st, repoCacheKey),
		// Keyed by base URL so multiple configured servers keep separate
		// inboxes.
		inboxCache: cache.New(st, "inbox:"+cfg.BaseURL),
	}
	s.resolver = inbox.New(client, engine, s.CurrentUser, log)
	return s
}

// CurrentUser resolves the authenticated identity once per session.
func (s *Service) CurrentUser(ctx context.Context) (*models.User, error) {
	s.userMu.Lock()
	defer s.userMu.Unlock()
	if s.user != nil {
		return s.user, nil
	}
	user, err := s.client.GetCurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	s.user = user
	return user, nil
}

// Repositories returns the discovered repository set, ranked by usage
// recency then full name. Unless forced, a fresh cache short-circuits the
// live fetch; a stale cache is kept as last-known-good and returned
// alongside the error when the live fetch fails.
func (s *Service) Repositories(ctx context.Context, force bool) ([]models.Repository, error) {
	var stale []models.Repository
	haveStale := false

	if !force {
		var cached []models.Repository
		ts, ok, err := s.repoCache.Load(ctx, &cached)
		if err != nil {
			s.log.Warn("repository cache read failed", zap.Error(err))
		}
		if ok {
			if cache.Fresh(ts, s.cfg.CacheTTLMinutes, time.Now()) {
				s.log.Debug("serving fresh repository cache", zap.Int("repositories", len(cached)))
				return s.ranked(ctx, cached), nil
			}
			stale, haveStale = cached, true
		}
	}

	started := time.Now()
	repos, err := s.engine.Discover(ctx)
	if err != nil {
		if haveStale {
			s.log.Warn("repository refresh failed, keeping cached data", zap.Error(err))
			return s.ranked(ctx, stale), err
		}
		return nil, err
	}
	s.log.Debug("repository discovery complete",
		zap.Int("repositories", len(repos)),
		zap.Duration("elapsed", time.Since(started)))

	if err := s.repoCache.Save(ctx, repos); err != nil {
		s.log.Warn("repository cache write failed", zap.Error(err))
	}
	return s.ranked(ctx, repos), nil
}

// Inbox returns the pull-request inbox snapshot under the same
// stale-while-revalidate policy as Repositories.
func (s *Service) Inbox(ctx context.Context, force bool) (*InboxSnapshot, error) {
	var stale *InboxSnapshot

	if !force {
		var cached InboxSnapshot
		ts, ok, err := s.inboxCache.Load(ctx, &cached)
		if err != nil {
			s.log.Warn("inbox cache read failed", zap.Error(err))
		}
		if ok {
			if cache.Fresh(ts, s.cfg.CacheTTLMinutes, time.Now()) {
				s.log.Debug("serving fresh inbox cache",
					zap.Int("created", len(cached.Created)),
					zap.Int("review_requested", len(cached.ReviewRequested)))
				return &cached, nil
			}
			stale = &cached
		}
	}

	started := time.Now()
	resolved, err := s.resolver.Resolve(ctx)
	if err != nil {
		if stale != nil {
			s.log.Warn("inbox refresh failed, keeping cached data", zap.Error(err))
			return stale, err
		}
		return nil, err
	}

	inbox.SortByUpdated(resolved.Created)
	inbox.SortByUpdated(resolved.ReviewRequested)

	// Status enrichment runs over the union of both sequences; duplicates
	// settle to the same value.
	union := append(append([]models.PullRequest(nil), resolved.Created...), resolved.ReviewRequested...)
	statuses := inbox.EnrichStatuses(ctx, s.client, union, s.log)

	snapshot := &InboxSnapshot{
		Created:         resolved.Created,
		ReviewRequested: resolved.ReviewRequested,
		Statuses:        statuses,
		ScanFailures:    resolved.ScanFailures,
	}
	s.log.Debug("inbox resolved",
		zap.Int("created", len(snapshot.Created)),
		zap.Int("review_requested", len(snapshot.ReviewRequested)),
		zap.Int("scan_failures", snapshot.ScanFailures),
		zap.Duration("elapsed", time.Since(started)))

	if err := s.inboxCache.Save(ctx, snapshot); err != nil {
		s.log.Warn("inbox cache write failed", zap.Error(err))
	}
	return snapshot, nil
}

// Issues lists a repository's open issues. Not cached: issue views are
// opened per repository on demand.
func (s *Service) Issues(ctx context.Context, owner, name string) ([]models.Issue, error) {
	return s.client.ListOpenIssues(ctx, owner, name)
}

// Releases lists a repository's releases.
func (s *Service) Releases(ctx context.Context, owner, name string) ([]models.Release, error) {
	return s.client.ListReleases(ctx, owner, name)
}

// TouchRepository records an interaction with a repository for recency
// ranking.
func (s *Service) TouchRepository(ctx context.Context, repoID int64) error {
	return s.store.TouchRepository(ctx, repoID, time.Now())
}

// ClearCaches drops both dataset caches. The usage map is kept.
func (s *Service) ClearCaches(ctx context.Context) error {
	if err := s.repoCache.Clear(ctx); err != nil {
		return err
	}
	return s.inboxCache.Clear(ctx)
}

// ranked orders repositories by last interaction (most recent first), then
// by full name. Usage-map read failures only cost the recency ordering.
func (s *Service) ranked(ctx context.Context, repos []models.Repository) []models.Repository {
	usage, err := s.store.UsageMap(ctx)
	if err != nil {
		s.log.Warn("usage map read failed", zap.Error(err))
		usage = map[int64]int64{}
	}

	ordered := append([]models.Repository(nil), repos...)
	sort.SliceStable(ordered, func(i, j int) bool {
		ui, uj := usage[ordered[i].ID], usage[ordered[j].ID]
		if ui != uj {
			return ui > uj
		}
		return ordered[i].FullName < ordered[j].FullName
	})
	return ordered
}
