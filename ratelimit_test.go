package linematch

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock is a settable time source for deterministic window tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(5, WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow("10.0.0.1"), "request %d should pass", i)
	}
	assert.False(t, rl.Allow("10.0.0.1"), "request beyond the limit must be rejected")

	// a different client has its own window
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestRateLimiterWindowSlides(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(2, WithClock(clock.Now), WithWindow(time.Minute))

	assert.True(t, rl.Allow("c"))
	clock.Advance(30 * time.Second)
	assert.True(t, rl.Allow("c"))
	assert.False(t, rl.Allow("c"))

	// the first request falls out of the window, freeing one slot
	clock.Advance(31 * time.Second)
	assert.True(t, rl.Allow("c"))
	assert.False(t, rl.Allow("c"))
}

func TestRateLimiterCleanup(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(10, WithClock(clock.Now), WithWindow(time.Minute))

	rl.Allow("a")
	rl.Allow("b")
	assert.Equal(t, 2, rl.ActiveClients())

	clock.Advance(2 * time.Minute)
	rl.Allow("b")
	rl.Cleanup(clock.Now())
	assert.Equal(t, 1, rl.ActiveClients())
}

func TestRateLimiterConcurrent(t *testing.T) {
	rl := NewRateLimiter(100)
	var allowed atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if rl.Allow("shared") {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(100), allowed.Load(), "exactly the limit may pass across goroutines")
}

func TestRateLimiterIndependentClients(t *testing.T) {
	rl := NewRateLimiter(3)
	for i := 0; i < 10; i++ {
		client := fmt.Sprintf("client-%d", i)
		for j := 0; j < 3; j++ {
			assert.True(t, rl.Allow(client))
		}
		assert.False(t, rl.Allow(client))
	}
	assert.Equal(t, 10, rl.ActiveClients())
}
