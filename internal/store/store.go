package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Keys for the typed wrappers below. Everything in the store is a JSON-encoded
// string value under a single key.
const (
	keyUsageMap = "repo-usage"
	keyBaseURL  = "server-url"
	keyToken    = "access-token"
)

// Store is the persistent key-value substrate backing the caches, the
// usage/recency map and the fallback credential keys.
type Store struct {
	db *sql.DB
}

// Open opens (and if necessary bootstraps) the store at the given path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Get returns the value stored under key, reporting whether it was present.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	query := `
	INSERT INTO kv (key, value)
	VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value
	`
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

// Delete removes key from the store. Deleting an absent key is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// TouchRepository records a user interaction with a repository for recency
// ranking. The whole map is read, modified and written back as one value.
func (s *Store) TouchRepository(ctx context.Context, repoID int64, now time.Time) error {
	usage, err := s.UsageMap(ctx)
	if err != nil {
		return err
	}
	usage[repoID] = now.UnixMilli()

	data, err := json.Marshal(usage)
	if err != nil {
		return fmt.Errorf("failed to marshal usage map: %w", err)
	}
	return s.Set(ctx, keyUsageMap, string(data))
}

// UsageMap returns the repository id to last-interaction (epoch milliseconds)
// map. An absent map is returned empty.
func (s *Store) UsageMap(ctx context.Context) (map[int64]int64, error) {
	value, ok, err := s.Get(ctx, keyUsageMap)
	if err != nil {
		return nil, err
	}
	usage := make(map[int64]int64)
	if !ok {
		return usage, nil
	}
	if err := json.Unmarshal([]byte(value), &usage); err != nil {
		return nil, fmt.Errorf("failed to parse usage map: %w", err)
	}
	return usage, nil
}

// SaveCredentials stores the base URL and token as a fallback configuration
// source, separate from the host configuration file.
func (s *Store) SaveCredentials(ctx context.Context, baseURL, token string) error {
	if err := s.Set(ctx, keyBaseURL, baseURL); err != nil {
		return err
	}
	return s.Set(ctx, keyToken, token)
}

// Credentials returns the stored base URL and token, each empty when absent.
func (s *Store) Credentials(ctx context.Context) (string, string, error) {
	baseURL, _, err := s.Get(ctx, keyBaseURL)
	if err != nil {
		return "", "", err
	}
	token, _, err := s.Get(ctx, keyToken)
	if err != nil {
		return "", "", err
	}
	return baseURL, token, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}
