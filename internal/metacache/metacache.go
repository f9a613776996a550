// Package metacache holds instrument metadata for the lifetime of a session.
//
// Metadata is treated as immutable: the first value stored for a code wins
// and later puts return it unchanged. Entries go away only through Clear.
package metacache

import (
	"context"
	"log"
	"sync"

	"tradedash/internal/model"
)

// Cache is a write-once metadata store.
type Cache interface {
	// Get returns the cached metadata for code.
	Get(ctx context.Context, code string) (model.Metadata, bool, error)

	// Put stores m unless an entry for m.StockCode exists, and returns the
	// entry that is cached afterwards.
	Put(ctx context.Context, m model.Metadata) (model.Metadata, error)

	// Clear drops every entry.
	Clear(ctx context.Context) error
}

// Source fetches metadata on a cache miss.
type Source interface {
	Metadata(ctx context.Context, code string) (model.Metadata, error)
}

// Memory is the in-process Cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]model.Metadata
}

// NewMemory returns an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]model.Metadata)}
}

func (c *Memory) Get(_ context.Context, code string) (model.Metadata, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.entries[code]
	return m, ok, nil
}

func (c *Memory) Put(_ context.Context, m model.Metadata) (model.Metadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries[m.StockCode]; ok {
		return cur, nil
	}
	c.entries[m.StockCode] = m
	return m, nil
}

func (c *Memory) Clear(context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]model.Metadata)
	c.mu.Unlock()
	return nil
}

// Len returns the number of cached entries.
func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Loader serves metadata from a Cache and falls back to a Source on a miss.
// A failing cache degrades to direct fetches.
type Loader struct {
	cache Cache
	src   Source

	// Metrics hooks (optional, set externally)
	OnHit  func()
	OnMiss func()
}

// NewLoader creates a Loader.
func NewLoader(cache Cache, src Source) *Loader {
	return &Loader{cache: cache, src: src}
}

// Get returns metadata for code, fetching and caching it on a miss.
func (l *Loader) Get(ctx context.Context, code string) (model.Metadata, error) {
	m, ok, err := l.cache.Get(ctx, code)
	if err != nil {
		log.Printf("[metacache] get %s: %v", code, err)
	}
	if ok {
		if l.OnHit != nil {
			l.OnHit()
		}
		return m, nil
	}
	if l.OnMiss != nil {
		l.OnMiss()
	}

	m, err = l.src.Metadata(ctx, code)
	if err != nil {
		return model.Metadata{}, err
	}
	if m.StockCode == "" {
		m.StockCode = code
	}
	stored, err := l.cache.Put(ctx, m)
	if err != nil {
		log.Printf("[metacache] put %s: %v", code, err)
		return m, nil
	}
	return stored, nil
}

// Clear empties the underlying cache.
func (l *Loader) Clear(ctx context.Context) error {
	return l.cache.Clear(ctx)
}
