package inbox

import (
	"context"
	"sync"

	"github.com/mwolfe/gitea-inbox/internal/api"
	"github.com/mwolfe/gitea-inbox/internal/models"
	"go.uber.org/zap"
)

// EnrichStatuses resolves the combined commit-check status for every pull
// request and returns a map keyed by pull-request id. The input may contain
// the same id more than once. Enrichment is best-effort: any item whose head
// commit or owning repository cannot be determined, and any item whose
// status fetch fails, maps to unknown. All items are fetched concurrently;
// the fan-out is bounded by the open pull-request count, which is small.
func EnrichStatuses(ctx context.Context, client *api.Client, pulls []models.PullRequest, log *zap.Logger) map[int64]models.CombinedStatus {
	statuses := make(map[int64]models.CombinedStatus, len(pulls))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, pr := range pulls {
		wg.Add(1)
		go func(pr models.PullRequest) {
			defer wg.Done()
			status := resolveStatus(ctx, client, pr, log)
			mu.Lock()
			statuses[pr.ID] = status
			mu.Unlock()
		}(pr)
	}
	wg.Wait()

	return statuses
}

// resolveStatus decides a single pull request's combined status. Items with
// no head SHA or no resolvable repository are settled without a network call.
func resolveStatus(ctx context.Context, client *api.Client, pr models.PullRequest, log *zap.Logger) models.CombinedStatus {
	if pr.Head.SHA == "" {
		return models.StatusUnknown
	}
	owner, name, ok := pr.RepositoryPath()
	if !ok {
		return models.StatusUnknown
	}

	status, err := client.GetCombinedStatus(ctx, owner, name, pr.Head.SHA)
	if err != nil {
		log.Debug("commit status fetch failed",
			zap.Int64("pull", pr.ID),
			zap.String("repository", owner+"/"+name),
			zap.Error(err))
		return models.StatusUnknown
	}
	return status
}
