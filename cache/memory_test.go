package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMemoryStore(t *testing.T, size int) (*MemoryStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s, err := NewMemoryStore(size)
	require.NoError(t, err)
	return s.WithClock(clock.now), clock
}

func TestMemoryStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMemoryStore(t, 10)

	require.NoError(t, s.Set(ctx, "cache:a", []byte("one"), time.Minute))
	v, ok, err := s.Get(ctx, "cache:a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("one"), v)

	require.NoError(t, s.Delete(ctx, "cache:a"))
	_, ok, err = s.Get(ctx, "cache:a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestMemoryStore(t, 10)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	clock.advance(59 * time.Second)
	_, ok, _ := s.Get(ctx, "k")
	assert.True(t, ok)

	clock.advance(time.Second)
	_, ok, _ = s.Get(ctx, "k")
	assert.False(t, ok, "entry must be gone once the TTL has elapsed")
}

func TestMemoryStore_ResetRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestMemoryStore(t, 10)

	require.NoError(t, s.Set(ctx, "k", []byte("v1"), time.Minute))
	clock.advance(45 * time.Second)
	require.NoError(t, s.Set(ctx, "k", []byte("v2"), time.Minute))
	clock.advance(45 * time.Second)

	v, ok, _ := s.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, []byte("v2"), v)
}

func TestMemoryStore_NoTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestMemoryStore(t, 10)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	clock.advance(365 * 24 * time.Hour)
	_, ok, _ := s.Get(ctx, "k")
	assert.True(t, ok)
}

func TestMemoryStore_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMemoryStore(t, 10)

	buf := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", buf, 0))
	buf[0] = 'x'

	v, _, _ := s.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), v)
	v[1] = 'y'
	v2, _, _ := s.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), v2)
}

func TestMemoryStore_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMemoryStore(t, 2)

	require.NoError(t, s.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), 0))
	_, _, _ = s.Get(ctx, "a")
	require.NoError(t, s.Set(ctx, "c", []byte("3"), 0))

	_, ok, _ := s.Get(ctx, "b")
	assert.False(t, ok)
	_, ok, _ = s.Get(ctx, "a")
	assert.True(t, ok)
}

func TestMemoryStore_QueryPressureNeverEvictsSessions(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMemoryStore(t, 3)

	require.NoError(t, s.Set(ctx, SessionNamespace.Key("s1"), []byte(`{"id":"s1"}`), 24*time.Hour))
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Set(ctx, QueryKey(fmt.Sprintf("q%d", i)), []byte("{}"), 30*time.Minute))
	}

	v, ok, err := s.Get(ctx, SessionNamespace.Key("s1"))
	require.NoError(t, err)
	require.True(t, ok, "sessions leave only by expiry or delete")
	assert.Equal(t, []byte(`{"id":"s1"}`), v)

	_, ok, _ = s.Get(ctx, QueryKey("q0"))
	assert.False(t, ok, "query results are still bounded")
	_, ok, _ = s.Get(ctx, QueryKey("q9"))
	assert.True(t, ok)
}

func TestMemoryStore_SessionsStillExpireAndDelete(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestMemoryStore(t, 4)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Set(ctx, SessionNamespace.Key(fmt.Sprintf("old%d", i)), []byte("{}"), time.Minute))
	}
	clock.advance(2 * time.Minute)

	// the write reaching the sweep threshold drops the expired sessions
	require.NoError(t, s.Set(ctx, SessionNamespace.Key("keep"), []byte("{}"), time.Hour))
	s.mu.Lock()
	assert.Len(t, s.pinned, 1)
	s.mu.Unlock()

	require.NoError(t, s.Set(ctx, SessionNamespace.Key("gone"), []byte("{}"), time.Hour))
	require.NoError(t, s.Delete(ctx, SessionNamespace.Key("gone")))

	keys, err := s.ListKeys(ctx, string(SessionNamespace))
	require.NoError(t, err)
	assert.Equal(t, []string{"session:keep"}, keys)
}

func TestMemoryStore_ExpiredReadDoesNotDropFreshWrite(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestMemoryStore(t, 10)

	for _, key := range []string{"k", SessionNamespace.Key("k")} {
		require.NoError(t, s.Set(ctx, key, []byte("stale"), time.Minute))
		clock.advance(2 * time.Minute)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 200; j++ {
					_, _, _ = s.Get(ctx, key)
				}
			}()
		}
		require.NoError(t, s.Set(ctx, key, []byte("fresh"), time.Hour))
		wg.Wait()

		v, ok, err := s.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok, key)
		assert.Equal(t, []byte("fresh"), v)
	}
}

func TestMemoryStore_ListKeysByPrefixSkipsExpired(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestMemoryStore(t, 10)

	require.NoError(t, s.Set(ctx, SessionNamespace.Key("s2"), []byte("{}"), time.Hour))
	require.NoError(t, s.Set(ctx, SessionNamespace.Key("s1"), []byte("{}"), time.Hour))
	require.NoError(t, s.Set(ctx, SessionNamespace.Key("old"), []byte("{}"), time.Minute))
	require.NoError(t, s.Set(ctx, QueryKey("hello"), []byte("{}"), time.Hour))
	clock.advance(2 * time.Minute)

	keys, err := s.ListKeys(ctx, string(SessionNamespace))
	require.NoError(t, err)
	assert.Equal(t, []string{"session:s1", "session:s2"}, keys)
}

func TestQueryKey(t *testing.T) {
	assert.Equal(t, "cache:V2hhdD8=", QueryKey("What?"))
	assert.NotEqual(t, QueryKey("What?"), QueryKey("what?"), "keys are not normalised")
	assert.Equal(t, "abc", SessionNamespace.ID(SessionNamespace.Key("abc")))
}
