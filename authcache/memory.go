package authcache

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memoryEntry struct {
	allowed bool
	// expires is zero for entries without their own TTL.
	expires time.Time
}

// Memory is a bounded in-process verdict store. Expired entries are
// dropped lazily on read; the size bound keeps stale entries from
// accumulating beyond it.
type Memory struct {
	entries *lru.Cache[string, memoryEntry]
}

// NewMemory creates a Memory cache holding at most size verdicts.
func NewMemory(size int) (*Memory, error) {
	if size <= 0 {
		return nil, errors.New("authcache: size must be positive")
	}
	entries, err := lru.New[string, memoryEntry](size)
	if err != nil {
		return nil, err
	}
	return &Memory{entries: entries}, nil
}

func (m *Memory) Get(_ context.Context, key string) (bool, bool, error) {
	entry, ok := m.entries.Get(key)
	if !ok {
		return false, false, nil
	}
	if !entry.expires.IsZero() && time.Now().After(entry.expires) {
		m.entries.Remove(key)
		return false, false, nil
	}
	return entry.allowed, true, nil
}

func (m *Memory) Set(_ context.Context, key string, allowed bool, ttl time.Duration) error {
	entry := memoryEntry{allowed: allowed}
	if ttl > 0 {
		entry.expires = time.Now().Add(ttl)
	}
	m.entries.Add(key, entry)
	return nil
}

// Purge drops every cached verdict.
func (m *Memory) Purge() {
	m.entries.Purge()
}

// Len reports the number of stored entries, counting not-yet-collected
// expired ones.
func (m *Memory) Len() int {
	return m.entries.Len()
}
