package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is an in-process Store. Keys in the session namespace are
// pinned: they leave only by TTL expiry or Delete. Every other key lives in
// an LRU of maxEntries and may be evicted under pressure.
type MemoryStore struct {
	mu      sync.Mutex
	entries *lru.Cache[string, memoryEntry]
	pinned  map[string]memoryEntry
	// sweepAt is the pinned map size that triggers the next expiry sweep.
	sweepAt int
	now     func() time.Time
}

// NewMemoryStore creates a MemoryStore whose evictable part holds at most
// maxEntries keys.
func NewMemoryStore(maxEntries int) (*MemoryStore, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	entries, err := lru.New[string, memoryEntry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("creating lru cache: %w", err)
	}
	return &MemoryStore{
		entries: entries,
		pinned:  make(map[string]memoryEntry),
		sweepAt: maxEntries,
		now:     time.Now,
	}, nil
}

// WithClock replaces the time source. Used by tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func isPinned(key string) bool { return strings.HasPrefix(key, string(SessionNamespace)) }

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	now := s.now()
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !isPinned(key) {
		s.entries.Add(key, e)
		return nil
	}
	s.pinned[key] = e
	if len(s.pinned) >= s.sweepAt {
		s.sweepPinned(now)
	}
	return nil
}

// sweepPinned drops expired pinned entries and doubles the threshold when
// the live set is still large. Callers hold s.mu.
func (s *MemoryStore) sweepPinned(now time.Time) {
	for k, e := range s.pinned {
		if e.expired(now) {
			delete(s.pinned, k)
		}
	}
	if len(s.pinned)*2 > s.sweepAt {
		s.sweepAt = len(s.pinned) * 2
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		e  memoryEntry
		ok bool
	)
	if isPinned(key) {
		e, ok = s.pinned[key]
	} else {
		e, ok = s.entries.Get(key)
	}
	if !ok {
		return nil, false, nil
	}
	if e.expired(now) {
		s.removeLocked(key)
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(key)
	return nil
}

func (s *MemoryStore) removeLocked(key string) {
	if isPinned(key) {
		delete(s.pinned, key)
		return
	}
	s.entries.Remove(key)
}

func (s *MemoryStore) ListKeys(_ context.Context, prefix string) ([]string, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for k, e := range s.pinned {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if e.expired(now) {
			delete(s.pinned, k)
			continue
		}
		keys = append(keys, k)
	}
	for _, k := range s.entries.Keys() {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		e, ok := s.entries.Peek(k)
		if !ok {
			continue
		}
		if e.expired(now) {
			s.entries.Remove(k)
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.Purge()
	clear(s.pinned)
	return nil
}
