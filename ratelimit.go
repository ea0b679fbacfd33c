package linematch

import (
	"sync"
	"time"
)

const (
	// DefaultRateWindow is the trailing window requests are counted in.
	DefaultRateWindow = time.Minute
	// DefaultCleanupInterval is how often idle clients are swept from the
	// registry.
	DefaultCleanupInterval = time.Hour
)

// RateLimiter applies per-client sliding-window admission control. Each
// client's window is independently locked so contention on one client never
// blocks another; the registry itself is only write-locked on first sight
// of a client or during cleanup sweeps.
type RateLimiter struct {
	window          time.Duration
	maxRequests     int
	cleanupInterval time.Duration
	now             func() time.Time

	mu      sync.RWMutex
	clients map[string]*rateWindow

	cleanupMu   sync.Mutex
	lastCleanup time.Time
}

// rateWindow holds one client's request timestamps, newest at the tail.
type rateWindow struct {
	mu    sync.Mutex
	times []time.Time
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithWindow overrides the sliding window duration.
func WithWindow(d time.Duration) RateLimiterOption {
	return func(rl *RateLimiter) {
		if d > 0 {
			rl.window = d
		}
	}
}

// WithCleanupInterval overrides how often idle clients are swept.
func WithCleanupInterval(d time.Duration) RateLimiterOption {
	return func(rl *RateLimiter) {
		if d > 0 {
			rl.cleanupInterval = d
		}
	}
}

// WithClock installs an alternate time source.
func WithClock(now func() time.Time) RateLimiterOption {
	return func(rl *RateLimiter) {
		if now != nil {
			rl.now = now
		}
	}
}

// NewRateLimiter creates a limiter allowing maxRequests per client per
// window.
func NewRateLimiter(maxRequests int, opts ...RateLimiterOption) *RateLimiter {
	if maxRequests < 1 {
		maxRequests = 1
	}
	rl := &RateLimiter{
		window:          DefaultRateWindow,
		maxRequests:     maxRequests,
		cleanupInterval: DefaultCleanupInterval,
		now:             time.Now,
		clients:         make(map[string]*rateWindow),
	}
	for _, opt := range opts {
		opt(rl)
	}
	rl.lastCleanup = rl.now()
	return rl
}

// Allow reports whether a request from clientID is admitted, recording the
// request timestamp when it is. Timestamps older than the window are
// trimmed lazily on access.
func (rl *RateLimiter) Allow(clientID string) bool {
	now := rl.now()
	rl.maybeCleanup(now)

	w := rl.getWindow(clientID)
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-rl.window)
	trim := 0
	for trim < len(w.times) && w.times[trim].Before(cutoff) {
		trim++
	}
	if trim > 0 {
		w.times = append(w.times[:0], w.times[trim:]...)
	}
	if len(w.times) >= rl.maxRequests {
		return false
	}
	w.times = append(w.times, now)
	return true
}

// getWindow fetches or creates the client's window with double-checked
// locking so the hot path only takes the read lock.
func (rl *RateLimiter) getWindow(clientID string) *rateWindow {
	rl.mu.RLock()
	w, ok := rl.clients[clientID]
	rl.mu.RUnlock()
	if ok {
		return w
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if w, ok = rl.clients[clientID]; ok {
		return w
	}
	w = &rateWindow{}
	rl.clients[clientID] = w
	return w
}

func (rl *RateLimiter) maybeCleanup(now time.Time) {
	rl.cleanupMu.Lock()
	due := now.Sub(rl.lastCleanup) >= rl.cleanupInterval
	if due {
		rl.lastCleanup = now
	}
	rl.cleanupMu.Unlock()
	if due {
		rl.Cleanup(now)
	}
}

// Cleanup removes clients whose most recent request is older than one full
// window, bounding the registry to recently active clients.
func (rl *RateLimiter) Cleanup(now time.Time) {
	cutoff := now.Add(-rl.window)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for id, w := range rl.clients {
		w.mu.Lock()
		idle := len(w.times) == 0 || w.times[len(w.times)-1].Before(cutoff)
		w.mu.Unlock()
		if idle {
			delete(rl.clients, id)
		}
	}
}

// ActiveClients returns the number of clients currently tracked.
func (rl *RateLimiter) ActiveClients() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.clients)
}
