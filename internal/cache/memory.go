// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pdiddy/eventparse/pkg/types"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is an in-process store. Values are kept encoded so callers never
// share a mutable event.
type Memory struct {
	mu  sync.Mutex
	lru *lru.Cache[string, memoryEntry]
	ttl time.Duration
}

// NewMemory creates a store holding at most size entries.
func NewMemory(size int, ttl time.Duration) (*Memory, error) {
	c, err := lru.New[string, memoryEntry](size)
	if err != nil {
		return nil, fmt.Errorf("creating memory cache: %w", err)
	}
	return &Memory{lru: c, ttl: ttl}, nil
}

func (m *Memory) Get(_ context.Context, key string) (*types.NormalizedEvent, bool, error) {
	m.mu.Lock()
	e, ok := m.lru.Get(key)
	if ok && !now().Before(e.expiresAt) {
		m.lru.Remove(key)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	ev, err := decode(e.data)
	if err != nil {
		return nil, false, err
	}
	return ev, true, nil
}

func (m *Memory) Put(_ context.Context, key string, ev *types.NormalizedEvent) error {
	data, err := encode(ev)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := now()
	if e, ok := m.lru.Peek(key); ok && t.Before(e.expiresAt) {
		return nil
	}
	m.lru.Add(key, memoryEntry{data: data, expiresAt: t.Add(m.ttl)})
	return nil
}

func (m *Memory) Purge(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := now()
	n := 0
	for _, k := range m.lru.Keys() {
		if e, ok := m.lru.Peek(k); ok && !t.Before(e.expiresAt) {
			m.lru.Remove(k)
			n++
		}
	}
	return n, nil
}

// Len reports the number of entries, expired or not.
func (m *Memory) Len() int {
	return m.lru.Len()
}

func (m *Memory) Close() error {
	m.lru.Purge()
	return nil
}
