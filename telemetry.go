package linematch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TelemetrySink receives counters and timers from the request path. Calls
// are fire-and-forget and must never block.
type TelemetrySink interface {
	ObserveSearchLatency(d time.Duration)
	CacheHit()
	RateLimited()
	BuildError()
}

// NopTelemetry discards every event.
type NopTelemetry struct{}

func (NopTelemetry) ObserveSearchLatency(time.Duration) {}
func (NopTelemetry) CacheHit()                          {}
func (NopTelemetry) RateLimited()                       {}
func (NopTelemetry) BuildError()                        {}

// Telemetries fans events out to multiple sinks.
type Telemetries []TelemetrySink

func (t Telemetries) ObserveSearchLatency(d time.Duration) {
	for _, sink := range t {
		sink.ObserveSearchLatency(d)
	}
}

func (t Telemetries) CacheHit() {
	for _, sink := range t {
		sink.CacheHit()
	}
}

func (t Telemetries) RateLimited() {
	for _, sink := range t {
		sink.RateLimited()
	}
}

func (t Telemetries) BuildError() {
	for _, sink := range t {
		sink.BuildError()
	}
}

// PrometheusTelemetry exports the request-path counters as Prometheus
// metrics.
type PrometheusTelemetry struct {
	searchLatency prometheus.Histogram
	cacheHits     prometheus.Counter
	rateLimited   prometheus.Counter
	buildErrors   prometheus.Counter
}

// NewPrometheusTelemetry registers the metrics against reg and returns the
// sink.
func NewPrometheusTelemetry(reg prometheus.Registerer) *PrometheusTelemetry {
	factory := promauto.With(reg)
	return &PrometheusTelemetry{
		searchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "linematch_search_latency_seconds",
			Help:    "Wall-clock latency of a single lookup.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "linematch_cache_hits_total",
			Help: "Lookups served from the result cache.",
		}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "linematch_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}),
		buildErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "linematch_build_errors_total",
			Help: "Index rebuild failures recovered by serving the last good snapshot.",
		}),
	}
}

func (p *PrometheusTelemetry) ObserveSearchLatency(d time.Duration) {
	p.searchLatency.Observe(d.Seconds())
}

func (p *PrometheusTelemetry) CacheHit()    { p.cacheHits.Inc() }
func (p *PrometheusTelemetry) RateLimited() { p.rateLimited.Inc() }
func (p *PrometheusTelemetry) BuildError()  { p.buildErrors.Inc() }
