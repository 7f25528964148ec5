package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mwolfe/gitea-inbox/internal/store"
)

// envelope holds a cached payload together with its capture timestamp. Both
// live under one store key so a save is a single atomic write.
type envelope struct {
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

// Cache manages one named, time-stamped dataset in the store.
type Cache struct {
	store *store.Store
	key   string
}

// New returns a cache for the dataset stored under key.
func New(st *store.Store, key string) *Cache {
	return &Cache{store: st, key: key}
}

// Load decodes the cached payload into out and returns its capture timestamp
// in epoch milliseconds. ok is false when no entry exists.
func (c *Cache) Load(ctx context.Context, out any) (int64, bool, error) {
	value, ok, err := c.store.Get(ctx, c.key)
	if err != nil || !ok {
		return 0, false, err
	}

	var env envelope
	if err := json.Unmarshal([]byte(value), &env); err != nil {
		return 0, false, fmt.Errorf("failed to parse cache entry %s: %w", c.key, err)
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return 0, false, fmt.Errorf("failed to parse cached payload %s: %w", c.key, err)
	}
	return env.Timestamp, true, nil
}

// Save stores payload stamped with the current time, replacing any previous
// entry.
func (c *Cache) Save(ctx context.Context, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal cache payload %s: %w", c.key, err)
	}
	data, err := json.Marshal(envelope{Payload: raw, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry %s: %w", c.key, err)
	}
	return c.store.Set(ctx, c.key, string(data))
}

// Clear removes the cached entry.
func (c *Cache) Clear(ctx context.Context) error {
	return c.store.Delete(ctx, c.key)
}

// Fresh reports whether a capture timestamp (epoch milliseconds) is still
// within the TTL window at the given instant. The comparison is strict.
func Fresh(timestampMS int64, ttlMinutes int, now time.Time) bool {
	return now.UnixMilli()-timestampMS < int64(ttlMinutes)*60_000
}
