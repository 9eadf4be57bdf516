// ABOUTME: Tests for the idempotency key cache
// ABOUTME: Validates TTL expiry, size limits, eviction, sweeping and concurrency safety

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-inbox/internal/clock"
)

var start = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func TestCache_LookupMissing(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	_, ok := cache.Lookup("never-seen-key")
	assert.False(t, ok)
}

func TestCache_CheckAndStore(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	stored, dup := cache.CheckAndStore("key-1", "msg-1")
	assert.False(t, dup)
	assert.Equal(t, "msg-1", stored)

	stored, dup = cache.CheckAndStore("key-1", "msg-2")
	assert.True(t, dup)
	assert.Equal(t, "msg-1", stored, "replay returns the original value")

	value, ok := cache.Lookup("key-1")
	require.True(t, ok)
	assert.Equal(t, "msg-1", value)
}

func TestCache_Expiry(t *testing.T) {
	fake := clock.Fake(start)
	cache := New(time.Minute, 100, WithClock(fake))
	defer cache.Close()

	cache.CheckAndStore("key", "msg-1")
	fake.Advance(59 * time.Second)
	_, ok := cache.Lookup("key")
	assert.True(t, ok)

	fake.Advance(time.Second)
	_, ok = cache.Lookup("key")
	assert.False(t, ok)

	stored, dup := cache.CheckAndStore("key", "msg-2")
	assert.False(t, dup, "expired keys can be reused")
	assert.Equal(t, "msg-2", stored)
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	cache := New(time.Hour, 3)
	defer cache.Close()

	for i := 1; i <= 4; i++ {
		cache.CheckAndStore(fmt.Sprintf("key-%d", i), fmt.Sprintf("msg-%d", i))
	}

	assert.Equal(t, 3, cache.Len())
	_, ok := cache.Lookup("key-1")
	assert.False(t, ok, "oldest entry evicted")
	_, ok = cache.Lookup("key-4")
	assert.True(t, ok)
}

func TestCache_Forget(t *testing.T) {
	cache := New(time.Hour, 10)
	defer cache.Close()

	cache.CheckAndStore("key", "msg-1")
	cache.Forget("key")
	cache.Forget("key")

	_, dup := cache.CheckAndStore("key", "msg-2")
	assert.False(t, dup)
}

func TestCache_BackgroundSweep(t *testing.T) {
	fake := clock.Fake(start)
	cache := New(time.Second, 10, WithClock(fake))
	defer cache.Close()

	cache.CheckAndStore("old", "msg-1")
	fake.WaitForTimers(1)
	fake.Advance(cleanupInterval)

	require.Eventually(t, func() bool { return cache.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestCache_ConcurrentSameKey(t *testing.T) {
	cache := New(time.Hour, 100)
	defer cache.Close()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, dup := cache.CheckAndStore("shared", fmt.Sprintf("msg-%d", i)); !dup {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	cache := New(time.Hour, 10)
	cache.Close()
	cache.Close()
}
