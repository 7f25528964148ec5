package inbox

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mwolfe/gitea-inbox/internal/api"
	"github.com/mwolfe/gitea-inbox/internal/discovery"
	"github.com/mwolfe/gitea-inbox/internal/models"
	"go.uber.org/zap"
)

// scanWorkers caps the number of in-flight repository scans in fallback
// mode, to bound load on the server when the repository set is large.
const scanWorkers = 6

// Capability classifies server support for the global pull-request endpoints.
type Capability int

const (
	// CapabilitySupported means both global endpoints answered successfully.
	CapabilitySupported Capability = iota
	// CapabilityUnsupported means at least one endpoint answered 404.
	CapabilityUnsupported
	// CapabilityUnknown means an endpoint failed for another reason.
	CapabilityUnknown
)

// Inbox holds the resolved pull-request inbox. The same pull request may
// appear in both sequences. Both are unordered as received.
type Inbox struct {
	Created         []models.PullRequest `json:"created"`
	ReviewRequested []models.PullRequest `json:"review_requested"`

	// ScanFailures counts repositories whose fallback scan failed and
	// contributed nothing.
	ScanFailures int `json:"scan_failures,omitempty"`
}

// Resolver resolves the pull-request inbox, preferring the server-wide
// endpoints and falling back to a bounded scan of every discovered
// repository when the server does not support them.
type Resolver struct {
	client      *api.Client
	engine      *discovery.Engine
	currentUser func(context.Context) (*models.User, error)
	log         *zap.Logger
}

// New creates a resolver. currentUser is the session-scoped identity source;
// it is only consulted in fallback mode.
func New(client *api.Client, engine *discovery.Engine, currentUser func(context.Context) (*models.User, error), log *zap.Logger) *Resolver {
	return &Resolver{
		client:      client,
		engine:      engine,
		currentUser: currentUser,
		log:         log,
	}
}

// Resolve fetches the inbox, probing the global endpoints first.
func (r *Resolver) Resolve(ctx context.Context) (*Inbox, error) {
	result, capability, err := r.fetchGlobal(ctx)
	switch capability {
	case CapabilitySupported:
		return result, nil
	case CapabilityUnknown:
		return nil, err
	}

	r.log.Info("server lacks global pull-request endpoints, scanning repositories")
	return r.scanRepositories(ctx)
}

// fetchGlobal issues the two server-wide requests concurrently and
// classifies endpoint support from the outcome: a 404 from either endpoint
// means the server does not support them, any other failure is
// indeterminate and surfaced to the caller.
func (r *Resolver) fetchGlobal(ctx context.Context) (*Inbox, Capability, error) {
	var (
		created, requested       []models.PullRequest
		createdErr, requestedErr error
		wg                       sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		created, createdErr = r.client.ListCreatedPullRequests(ctx)
	}()
	go func() {
		defer wg.Done()
		requested, requestedErr = r.client.ListReviewRequestedPullRequests(ctx)
	}()
	wg.Wait()

	if api.IsNotFound(createdErr) || api.IsNotFound(requestedErr) {
		return nil, CapabilityUnsupported, nil
	}
	if createdErr != nil {
		return nil, CapabilityUnknown, fmt.Errorf("failed to list created pull requests: %w", createdErr)
	}
	if requestedErr != nil {
		return nil, CapabilityUnknown, fmt.Errorf("failed to list review-requested pull requests: %w", requestedErr)
	}

	return &Inbox{Created: created, ReviewRequested: requested}, CapabilitySupported, nil
}

// partition is one repository's contribution to the inbox.
type partition struct {
	created   []models.PullRequest
	requested []models.PullRequest
	failed    bool
}

// scanRepositories is the fallback path: discover every repository, fetch
// each one's open pull requests through a fixed-size worker pool and
// partition them by the current user's login. One repository's failure
// yields an empty partition and never aborts the scan.
func (r *Resolver) scanRepositories(ctx context.Context) (*Inbox, error) {
	user, err := r.currentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve current user: %w", err)
	}

	repos, err := r.engine.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover repositories: %w", err)
	}

	repoChan := make(chan models.Repository, len(repos))
	results := make(chan partition, len(repos))

	workers := scanWorkers
	if len(repos) < workers {
		workers = len(repos)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for repo := range repoChan {
				results <- r.scanRepository(ctx, repo, user.Login)
			}
		}()
	}

	for _, repo := range repos {
		repoChan <- repo
	}
	close(repoChan)
	wg.Wait()
	close(results)

	inbox := &Inbox{}
	for part := range results {
		if part.failed {
			inbox.ScanFailures++
			continue
		}
		inbox.Created = append(inbox.Created, part.created...)
		inbox.ReviewRequested = append(inbox.ReviewRequested, part.requested...)
	}

	if inbox.ScanFailures > 0 {
		r.log.Warn("some repository scans failed",
			zap.Int("failed", inbox.ScanFailures), zap.Int("repositories", len(repos)))
	}

	return inbox, nil
}

func (r *Resolver) scanRepository(ctx context.Context, repo models.Repository, login string) partition {
	owner, name, err := repo.SplitFullName()
	if err != nil {
		r.log.Warn("skipping malformed repository", zap.Error(err))
		return partition{failed: true}
	}

	pulls, err := r.client.ListOpenPullRequests(ctx, owner, name, "")
	if err != nil {
		r.log.Warn("pull request scan failed",
			zap.String("repository", repo.FullName), zap.Error(err))
		return partition{failed: true}
	}

	var part partition
	for _, pr := range pulls {
		if pr.User.Login == login {
			part.created = append(part.created, pr)
		}
		if requestsReviewer(pr, login) {
			part.requested = append(part.requested, pr)
		}
	}
	return part
}

func requestsReviewer(pr models.PullRequest, login string) bool {
	for _, reviewer := range pr.RequestedReviewers {
		if reviewer.Login == login {
			return true
		}
	}
	return false
}

// SortByUpdated orders pull requests most-recently-updated first. Zero
// timestamps (absent or unparseable on the wire) sort last.
func SortByUpdated(pulls []models.PullRequest) {
	sort.SliceStable(pulls, func(i, j int) bool {
		return pulls[i].UpdatedAt.After(pulls[j].UpdatedAt)
	})
}
