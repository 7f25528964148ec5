package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/mwolfe/gitea-inbox/internal/api"
	"github.com/mwolfe/gitea-inbox/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type searchEnvelope struct {
	OK         bool                `json:"ok"`
	Data       []models.Repository `json:"data"`
	TotalCount int64               `json:"total_count"`
}

func repoRange(start, count int, source string) []models.Repository {
	repos := make([]models.Repository, 0, count)
	for i := 0; i < count; i++ {
		id := int64(start + i)
		repos = append(repos, models.Repository{
			ID:          id,
			FullName:    fmt.Sprintf("owner/repo-%d", id),
			Description: source,
		})
	}
	return repos
}

func ids(repos []models.Repository) map[int64]struct{} {
	set := make(map[int64]struct{}, len(repos))
	for _, repo := range repos {
		set[repo.ID] = struct{}{}
	}
	return set
}

func TestDiscoverDeduplicatesAcrossSources(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/search":
			json.NewEncoder(w).Encode(searchEnvelope{OK: true, Data: repoRange(1, 2, "search"), TotalCount: 2})
		case "/user/repos":
			json.NewEncoder(w).Encode(repoRange(2, 2, "user"))
		case "/orgs":
			json.NewEncoder(w).Encode([]models.Organization{{ID: 1, UserName: "acme"}})
		case "/orgs/acme/repos":
			json.NewEncoder(w).Encode(repoRange(3, 2, "org"))
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	engine := New(api.New(srv.URL, "tok"), true, zap.NewNop())
	repos, err := engine.Discover(context.Background())
	require.NoError(t, err)

	require.Len(t, repos, 4)
	bySource := map[int64]string{}
	for _, repo := range repos {
		bySource[repo.ID] = repo.Description
	}
	// The copy from the earliest source that returned an id is retained.
	assert.Equal(t, "search", bySource[1])
	assert.Equal(t, "search", bySource[2])
	assert.Equal(t, "user", bySource[3])
	assert.Equal(t, "org", bySource[4])
}

func TestDiscoverSearchTwoPageScenario(t *testing.T) {
	searchRequests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/search", r.URL.Path)
		searchRequests++
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		switch page {
		case 1:
			json.NewEncoder(w).Encode(searchEnvelope{OK: true, Data: repoRange(1, 100, "search"), TotalCount: 150})
		case 2:
			json.NewEncoder(w).Encode(searchEnvelope{OK: true, Data: repoRange(101, 50, "search"), TotalCount: 150})
		default:
			t.Errorf("unexpected search page %d", page)
			json.NewEncoder(w).Encode(searchEnvelope{OK: true})
		}
	}))
	defer srv.Close()

	engine := New(api.New(srv.URL, ""), false, zap.NewNop())
	repos, err := engine.Discover(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, searchRequests)
	assert.Len(t, repos, 150)
}

func TestDiscoverSearchStopsAtTotalCountHint(t *testing.T) {
	searchRequests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		searchRequests++
		// One exactly-full page covering the whole advertised total.
		json.NewEncoder(w).Encode(searchEnvelope{OK: true, Data: repoRange(1, 100, "search"), TotalCount: 100})
	}))
	defer srv.Close()

	engine := New(api.New(srv.URL, ""), false, zap.NewNop())
	repos, err := engine.Discover(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, searchRequests)
	assert.Len(t, repos, 100)
}

func TestDiscoverSearchGuardsAgainstRepeatedPages(t *testing.T) {
	searchRequests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		searchRequests++
		// A misbehaving server that serves the same full page forever.
		json.NewEncoder(w).Encode(searchEnvelope{OK: true, Data: repoRange(1, 100, "search"), TotalCount: 1000})
	}))
	defer srv.Close()

	engine := New(api.New(srv.URL, ""), false, zap.NewNop())
	repos, err := engine.Discover(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, searchRequests)
	assert.Len(t, repos, 100)
}

func TestDiscoverSearchFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	engine := New(api.New(srv.URL, ""), false, zap.NewNop())
	_, err := engine.Discover(context.Background())
	require.Error(t, err)
}

func TestDiscoverToleratesAuthenticatedPhaseFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/search":
			json.NewEncoder(w).Encode(searchEnvelope{OK: true, Data: repoRange(1, 3, "search"), TotalCount: 3})
		default:
			http.Error(w, "unavailable", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	engine := New(api.New(srv.URL, "tok"), true, zap.NewNop())
	repos, err := engine.Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, repos, 3)
}

func TestDiscoverToleratesSingleOrgFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/search":
			json.NewEncoder(w).Encode(searchEnvelope{OK: true, Data: repoRange(1, 1, "search"), TotalCount: 1})
		case "/user/repos":
			json.NewEncoder(w).Encode([]models.Repository{})
		case "/orgs":
			json.NewEncoder(w).Encode([]models.Organization{{ID: 1, UserName: "broken"}, {ID: 2, UserName: "acme"}})
		case "/orgs/broken/repos":
			http.Error(w, "boom", http.StatusInternalServerError)
		case "/orgs/acme/repos":
			json.NewEncoder(w).Encode(repoRange(10, 2, "org"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	engine := New(api.New(srv.URL, "tok"), true, zap.NewNop())
	repos, err := engine.Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, repos, 3)
}

func TestDiscoverIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/search":
			json.NewEncoder(w).Encode(searchEnvelope{OK: true, Data: repoRange(1, 5, "search"), TotalCount: 5})
		case "/user/repos":
			json.NewEncoder(w).Encode(repoRange(4, 3, "user"))
		case "/orgs":
			json.NewEncoder(w).Encode([]models.Organization{})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	engine := New(api.New(srv.URL, "tok"), true, zap.NewNop())
	first, err := engine.Discover(context.Background())
	require.NoError(t, err)
	second, err := engine.Discover(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ids(first), ids(second))
}
