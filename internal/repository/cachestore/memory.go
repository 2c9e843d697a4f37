package cachestore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/kailas-cloud/aiorch/internal/domain"
)

// entryOverhead approximates the fixed per-entry cost of bookkeeping and struct fields.
const entryOverhead = 256

// Memory is an in-process LRU of cache entries bounded by entry count and approximate bytes.
// Expired entries are dropped on read.
type Memory struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[string, *memItem]
	bytes    int64
	maxBytes int64
	now      func() time.Time
}

type memItem struct {
	entry domain.CacheEntry
	size  int64
}

// NewMemory creates a memory backend. maxBytes <= 0 disables the byte cap.
func NewMemory(maxEntries int, maxBytes int64) (*Memory, error) {
	m := &Memory{maxBytes: maxBytes, now: time.Now}
	l, err := simplelru.NewLRU[string, *memItem](maxEntries, func(_ string, it *memItem) {
		m.bytes -= it.size
	})
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	m.lru = l
	return m, nil
}

// Get returns the entry for tier/key. A miss or an expired entry yields (nil, nil).
func (m *Memory) Get(_ context.Context, tier domain.Tier, key string) (*domain.CacheEntry, error) {
	k := entryKey(tier, key)

	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.lru.Get(k)
	if !ok {
		return nil, nil
	}
	if it.entry.Expired(m.now()) {
		m.lru.Remove(k)
		return nil, nil
	}
	e := it.entry
	return &e, nil
}

// Put stores e, replacing any entry under the same tier/key, then evicts
// least recently used entries until the byte cap holds.
func (m *Memory) Put(_ context.Context, e domain.CacheEntry) error {
	k := entryKey(e.Tier, e.Key)
	it := &memItem{entry: e, size: entrySize(&e)}
	if m.maxBytes > 0 && it.size > m.maxBytes {
		return fmt.Errorf("entry of %d bytes exceeds cache cap %d", it.size, m.maxBytes)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.lru.Remove(k)
	m.lru.Add(k, it)
	m.bytes += it.size
	for m.maxBytes > 0 && m.bytes > m.maxBytes {
		if _, _, ok := m.lru.RemoveOldest(); !ok {
			break
		}
	}
	return nil
}

// Len returns the number of held entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}

// Bytes returns the approximate memory held by entries.
func (m *Memory) Bytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bytes
}

func entryKey(tier domain.Tier, key string) string {
	return string(tier) + ":" + key
}

func entrySize(e *domain.CacheEntry) int64 {
	n := entryOverhead + len(e.Key) + len(e.Payload.Content) +
		len(e.Payload.Provider) + len(e.Payload.Model) + len(e.Payload.ConfigID)
	for k, v := range e.Scope {
		n += len(k) + len(v)
	}
	return int64(n)
}
