package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	// EnvToken is the environment variable name for the Gitea access token
	EnvToken = "GITEA_INBOX_TOKEN"

	// DefaultCacheTTLMinutes is the cache freshness window applied when the
	// configuration does not set one
	DefaultCacheTTLMinutes = 60

	apiPrefix = "/api/v1"
)

// Config represents the application configuration
type Config struct {
	// Base URL of the Gitea server, e.g. "https://git.example.com"
	BaseURL string `json:"base_url"`

	// Access token for authentication (optional, can be set via GITEA_INBOX_TOKEN env var)
	Token string `json:"token"`

	// Cache freshness window in minutes
	CacheTTLMinutes int `json:"cache_ttl_minutes"`

	// Show the numbered quick-open list when rendering repositories
	QuickOpen bool `json:"quick_open"`

	// Enable debug logging
	Debug bool `json:"debug"`

	// Path to the sqlite store file
	StorePath string `json:"store_path"`
}

// APIRoot returns the root of the server's REST API, appending the /api/v1
// prefix unless the configured base URL already carries it.
func (c Config) APIRoot() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if strings.HasSuffix(base, apiPrefix) {
		return base
	}
	return base + apiPrefix
}

// Load loads the configuration from a JSON file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Check for token in environment variable
	if envToken := os.Getenv(EnvToken); envToken != "" {
		config.Token = envToken
	}

	if config.CacheTTLMinutes <= 0 {
		config.CacheTTLMinutes = DefaultCacheTTLMinutes
	}

	// Set default store path if not specified
	if config.StorePath == "" {
		config.StorePath = "gitea_inbox.db"
	}

	// Make store path absolute if it's relative
	if !filepath.IsAbs(config.StorePath) {
		configDir := filepath.Dir(path)
		config.StorePath = filepath.Join(configDir, config.StorePath)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url %q: %w", c.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid base_url %q: scheme must be http or https", c.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid base_url %q: missing host", c.BaseURL)
	}
	return nil
}

// Save saves the configuration to a JSON file
func Save(config *Config, path string) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// CreateDefault creates a default configuration file if it doesn't exist
func CreateDefault(path string) error {
	// Check if the file already exists
	if _, err := os.Stat(path); err == nil {
		return nil // File exists, don't overwrite
	}

	config := &Config{
		BaseURL:         "https://gitea.example.com",
		Token:           "",
		CacheTTLMinutes: DefaultCacheTTLMinutes,
		StorePath:       "gitea_inbox.db",
	}

	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(config, path)
}
