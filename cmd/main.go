package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mwolfe/gitea-inbox/config"
	"github.com/mwolfe/gitea-inbox/internal/logger"
	"github.com/mwolfe/gitea-inbox/internal/models"
	"github.com/mwolfe/gitea-inbox/internal/service"
	"github.com/mwolfe/gitea-inbox/internal/store"
)

func main() {
	// Define command-line flags
	configPath := flag.String("config", "config.json", "Path to configuration file")
	createConfig := flag.Bool("init", false, "Create a default configuration file if it doesn't exist")
	showRepos := flag.Bool("repos", false, "List all repositories visible to the configured user")
	showInbox := flag.Bool("inbox", false, "Show the pull-request inbox")
	showIssues := flag.String("issues", "", "List open issues of a repository (format: owner/name)")
	showReleases := flag.String("releases", "", "List releases of a repository (format: owner/name)")
	openRepo := flag.String("open", "", "Print a repository's URL and record the interaction (format: owner/name)")
	refresh := flag.Bool("refresh", false, "Bypass the cache and fetch live data")
	clearCache := flag.Bool("clear-cache", false, "Drop the cached repository list and inbox")
	flag.Parse()

	// Create default configuration if requested
	if *createConfig {
		if err := config.CreateDefault(*configPath); err != nil {
			log.Fatalf("Failed to create default configuration: %v", err)
		}
		log.Printf("Created default configuration at %s", *configPath)
		return
	}

	// Load configuration, falling back to credentials stored in a previous
	// session when no config file exists
	cfg, err := config.Load(*configPath)
	if err != nil {
		cfg, err = storedConfig(*configPath, err)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}

	zl, err := logger.New(cfg.Debug)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()

	// Keep the fallback credential keys current for the next session
	if err := st.SaveCredentials(ctx, cfg.BaseURL, cfg.Token); err != nil {
		zl.Sugar().Warnf("failed to store credentials: %v", err)
	}

	svc := service.New(cfg, st, zl)

	switch {
	case *clearCache:
		if err := svc.ClearCaches(ctx); err != nil {
			log.Fatalf("Failed to clear caches: %v", err)
		}
		log.Printf("Caches cleared")

	case *showRepos:
		repos, err := svc.Repositories(ctx, *refresh)
		if err != nil && len(repos) == 0 {
			log.Fatalf("Failed to list repositories: %v", err)
		}
		if err != nil {
			log.Printf("Refresh failed, showing cached data: %v", err)
		}
		renderRepositories(repos, cfg.QuickOpen)

	case *showInbox:
		snapshot, err := svc.Inbox(ctx, *refresh)
		if err != nil && snapshot == nil {
			log.Fatalf("Failed to resolve inbox: %v", err)
		}
		if err != nil {
			log.Printf("Refresh failed, showing cached data: %v", err)
		}
		renderInbox(snapshot)

	case *showIssues != "":
		owner, name := splitRepoArg(*showIssues)
		issues, err := svc.Issues(ctx, owner, name)
		if err != nil {
			log.Fatalf("Failed to list issues: %v", err)
		}
		renderIssues(issues)

	case *showReleases != "":
		owner, name := splitRepoArg(*showReleases)
		releases, err := svc.Releases(ctx, owner, name)
		if err != nil {
			log.Fatalf("Failed to list releases: %v", err)
		}
		renderReleases(releases)

	case *openRepo != "":
		repos, err := svc.Repositories(ctx, false)
		if err != nil && len(repos) == 0 {
			log.Fatalf("Failed to list repositories: %v", err)
		}
		for _, repo := range repos {
			if repo.FullName == *openRepo {
				if err := svc.TouchRepository(ctx, repo.ID); err != nil {
					zl.Sugar().Warnf("failed to record usage: %v", err)
				}
				fmt.Println(repo.HTMLURL)
				return
			}
		}
		log.Fatalf("Repository %s not found", *openRepo)

	default:
		fmt.Println("gitea-inbox - repository and pull-request aggregator")
		fmt.Println("----------------------------------------------------")
		fmt.Println("Use -repos to list all visible repositories")
		fmt.Println("Use -inbox to show your pull-request inbox")
		fmt.Println("Use -issues owner/name to list a repository's open issues")
		fmt.Println("Use -releases owner/name to list a repository's releases")
		fmt.Println("Use -open owner/name to print a repository's URL")
		fmt.Println("Use -refresh to bypass the cache")
		fmt.Println("Use -clear-cache to drop cached data")
		fmt.Println("Use -init to create a default configuration file")
		fmt.Println()
		fmt.Printf("Access token can be provided via the %s environment variable\n", config.EnvToken)
	}
}

// storedConfig rebuilds a minimal configuration from the credential keys a
// previous session left in the store next to the config path.
func storedConfig(configPath string, loadErr error) (*config.Config, error) {
	storePath := filepath.Join(filepath.Dir(configPath), "gitea_inbox.db")
	st, err := store.Open(storePath)
	if err != nil {
		return nil, loadErr
	}
	defer st.Close()

	baseURL, token, err := st.Credentials(context.Background())
	if err != nil || baseURL == "" {
		return nil, loadErr
	}
	return &config.Config{
		BaseURL:         baseURL,
		Token:           token,
		CacheTTLMinutes: config.DefaultCacheTTLMinutes,
		StorePath:       storePath,
	}, nil
}

func splitRepoArg(arg string) (string, string) {
	parts := strings.SplitN(arg, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		log.Fatalf("Invalid repository format, expected 'owner/name', got '%s'", arg)
	}
	return parts[0], parts[1]
}

func renderRepositories(repos []models.Repository, quickOpen bool) {
	bold := color.New(color.Bold)
	for i, repo := range repos {
		if quickOpen {
			fmt.Printf("%3d  ", i+1)
		}
		bold.Print(repo.FullName)
		if repo.Description != "" {
			fmt.Printf("  %s", repo.Description)
		}
		fmt.Println()
	}
	fmt.Printf("\n%d repositories\n", len(repos))
}

func renderInbox(snapshot *service.InboxSnapshot) {
	heading := color.New(color.Bold, color.Underline)

	heading.Println("Created by me")
	renderPulls(snapshot.Created, snapshot.Statuses)

	fmt.Println()
	heading.Println("Review requested")
	renderPulls(snapshot.ReviewRequested, snapshot.Statuses)

	if snapshot.ScanFailures > 0 {
		fmt.Printf("\n%d repositories could not be scanned\n", snapshot.ScanFailures)
	}
}

func renderPulls(pulls []models.PullRequest, statuses map[int64]models.CombinedStatus) {
	if len(pulls) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, pr := range pulls {
		marker := statusColor(statuses[pr.ID]).Sprint("●")
		draft := ""
		if pr.Draft {
			draft = " [draft]"
		}
		fmt.Printf("  %s #%d %s%s (%s, updated %s)\n",
			marker, pr.Number, pr.Title, draft, pr.User.Login,
			pr.UpdatedAt.Format(time.DateOnly))
	}
}

func statusColor(status models.CombinedStatus) *color.Color {
	switch status {
	case models.StatusSuccess:
		return color.New(color.FgGreen)
	case models.StatusFailure, models.StatusError:
		return color.New(color.FgRed)
	case models.StatusPending:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgWhite)
	}
}

func renderIssues(issues []models.Issue) {
	for _, issue := range issues {
		fmt.Printf("  #%d %s (%s, updated %s)\n",
			issue.Number, issue.Title, issue.User.Login,
			issue.UpdatedAt.Format(time.DateOnly))
	}
	fmt.Printf("\n%d open issues\n", len(issues))
}

func renderReleases(releases []models.Release) {
	for _, release := range releases {
		name := release.Name
		if name == "" {
			name = release.TagName
		}
		suffix := ""
		if release.Draft {
			suffix = " [draft]"
		} else if release.Prerelease {
			suffix = " [pre-release]"
		}
		fmt.Printf("  %s%s (%s)\n", name, suffix, release.PublishedAt.Format(time.DateOnly))
	}
	fmt.Printf("\n%d releases\n", len(releases))
}
