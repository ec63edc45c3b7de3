// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache stores finalized events by request fingerprint. Entries
// expire a fixed TTL after they were written and are written at most once
// per TTL window; an unexpired entry is never replaced.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pdiddy/eventparse/pkg/types"
)

// now is the clock used for expiry. Tests override it.
var now = time.Now

// Store is the storage primitive behind the cache. Implementations must be
// safe for concurrent use.
type Store interface {
	// Get returns the event stored under key. A missing or expired entry
	// returns ok == false and no error.
	Get(ctx context.Context, key string) (ev *types.NormalizedEvent, ok bool, err error)

	// Put stores ev under key unless an unexpired entry already exists.
	Put(ctx context.Context, key string, ev *types.NormalizedEvent) error

	// Purge removes expired entries and reports how many were removed.
	Purge(ctx context.Context) (int, error)

	Close() error
}

// Open builds the store named by cfg.Backend. The none backend returns a
// nil Store and no error.
func Open(cfg types.CacheConfig) (Store, error) {
	cfg = cfg.WithDefaults()
	switch cfg.Backend {
	case types.CacheNone:
		return nil, nil
	case types.CacheMemory:
		return NewMemory(cfg.MaxEntries, cfg.TTL)
	case types.CacheSQLite:
		return NewSQLite(cfg.Path, cfg.TTL)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

func encode(ev *types.NormalizedEvent) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encoding event: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*types.NormalizedEvent, error) {
	var ev types.NormalizedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decoding event: %w", err)
	}
	return &ev, nil
}
