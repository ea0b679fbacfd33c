package linematch

import (
	"sync"
	"time"
)

// latencyWindow bounds how many recent latency samples the monitor keeps.
const latencyWindow = 1000

// Monitor is an in-memory TelemetrySink tracking search latencies, cache
// hit rate, and error counters for the /stats endpoint.
type Monitor struct {
	mu          sync.RWMutex
	latencies   []time.Duration
	searches    int64
	cacheHits   int64
	rateLimited int64
	buildErrors int64
	startTime   time.Time
}

// NewMonitor creates a Monitor with its uptime clock started.
func NewMonitor() *Monitor {
	return &Monitor{startTime: time.Now()}
}

// ObserveSearchLatency records one lookup latency, keeping only the most
// recent samples.
func (m *Monitor) ObserveSearchLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches++
	m.latencies = append(m.latencies, d)
	if len(m.latencies) > latencyWindow {
		m.latencies = m.latencies[len(m.latencies)-latencyWindow:]
	}
}

// CacheHit records a lookup served from the result cache.
func (m *Monitor) CacheHit() {
	m.mu.Lock()
	m.cacheHits++
	m.mu.Unlock()
}

// RateLimited records a rejected request.
func (m *Monitor) RateLimited() {
	m.mu.Lock()
	m.rateLimited++
	m.mu.Unlock()
}

// BuildError records a recovered index rebuild failure.
func (m *Monitor) BuildError() {
	m.mu.Lock()
	m.buildErrors++
	m.mu.Unlock()
}

// Searches returns the total number of lookups observed.
func (m *Monitor) Searches() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.searches
}

// CacheHits returns the total number of cache-served lookups.
func (m *Monitor) CacheHits() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cacheHits
}

// BuildErrors returns the total number of recovered rebuild failures.
func (m *Monitor) BuildErrors() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.buildErrors
}

// Snapshot returns the current metrics as a flat map.
func (m *Monitor) Snapshot() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	metrics := map[string]any{
		"uptime":         time.Since(m.startTime).String(),
		"total_searches": m.searches,
		"cache_hits":     m.cacheHits,
		"rate_limited":   m.rateLimited,
		"build_errors":   m.buildErrors,
	}
	if m.searches > 0 {
		metrics["cache_hit_rate"] = float64(m.cacheHits) / float64(m.searches)
	}
	if len(m.latencies) > 0 {
		total := time.Duration(0)
		minLatency := m.latencies[0]
		maxLatency := m.latencies[0]
		for _, latency := range m.latencies {
			total += latency
			if latency < minLatency {
				minLatency = latency
			}
			if latency > maxLatency {
				maxLatency = latency
			}
		}
		metrics["avg_search_latency_ms"] = float64(total.Nanoseconds()) / float64(len(m.latencies)) / 1e6
		metrics["min_search_latency_ms"] = float64(minLatency.Nanoseconds()) / 1e6
		metrics["max_search_latency_ms"] = float64(maxLatency.Nanoseconds()) / 1e6
	}
	return metrics
}
