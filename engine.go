package linematch

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"
)

// Policy selects how the engine treats corpus freshness.
type Policy int

const (
	// Static serves every lookup from the snapshot built at startup.
	Static Policy = iota
	// RereadOnQuery rebuilds the index from the corpus source before every
	// lookup, trading per-request latency for guaranteed freshness.
	RereadOnQuery
)

func (p Policy) String() string {
	if p == RereadOnQuery {
		return "reread_on_query"
	}
	return "static"
}

// LookupResult is the outcome of one engine lookup.
type LookupResult struct {
	Found     bool
	FromCache bool
	Elapsed   time.Duration
}

// SearchEngine orchestrates the index snapshot and the result cache. The
// active snapshot is published through a single atomic pointer: readers
// never lock, and a rebuild swaps in a fully-formed replacement while
// in-flight lookups finish against the old one.
type SearchEngine struct {
	builder   *Builder
	source    any
	policy    Policy
	cache     *ResultCache
	telemetry TelemetrySink

	active atomic.Pointer[Index]
}

// EngineOption configures a SearchEngine.
type EngineOption func(*SearchEngine)

// WithPolicy selects Static or RereadOnQuery.
func WithPolicy(p Policy) EngineOption {
	return func(e *SearchEngine) {
		e.policy = p
	}
}

// WithCache installs a result cache.
func WithCache(c *ResultCache) EngineOption {
	return func(e *SearchEngine) {
		if c != nil {
			e.cache = c
		}
	}
}

// WithTelemetry installs a telemetry sink.
func WithTelemetry(t TelemetrySink) EngineOption {
	return func(e *SearchEngine) {
		if t != nil {
			e.telemetry = t
		}
	}
}

// NewSearchEngine builds the initial snapshot from source and returns the
// engine. An initial build failure is fatal: the engine must not serve
// without a valid index.
func NewSearchEngine(ctx context.Context, builder *Builder, source any, opts ...EngineOption) (*SearchEngine, error) {
	if builder == nil {
		builder = NewBuilder()
	}
	e := &SearchEngine{
		builder:   builder,
		source:    source,
		policy:    Static,
		cache:     NewResultCache(DefaultCacheCapacity),
		telemetry: NopTelemetry{},
	}
	for _, opt := range opts {
		opt(e)
	}
	idx, err := builder.Build(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("initial index build: %w", err)
	}
	e.active.Store(idx)
	return e, nil
}

// Lookup answers whether query exists as an exact corpus line. In
// RereadOnQuery mode the index is rebuilt first; a rebuild failure is
// recoverable and the last good snapshot keeps serving.
func (e *SearchEngine) Lookup(ctx context.Context, query string) LookupResult {
	start := time.Now()
	query = strings.TrimSpace(query)

	if e.policy == RereadOnQuery {
		if err := e.Reload(ctx); err != nil {
			log.Printf("index rebuild failed, serving last good snapshot: %v", err)
		}
	}

	idx := e.active.Load()
	if found, ok := e.cache.Get(idx.Generation, query); ok {
		e.telemetry.CacheHit()
		res := LookupResult{Found: found, FromCache: true, Elapsed: time.Since(start)}
		e.telemetry.ObserveSearchLatency(res.Elapsed)
		return res
	}

	found := idx.Lookup(query)
	e.cache.Put(idx.Generation, query, found)
	res := LookupResult{Found: found, Elapsed: time.Since(start)}
	e.telemetry.ObserveSearchLatency(res.Elapsed)
	return res
}

// Reload builds a fresh snapshot from the corpus source and atomically
// publishes it. On failure the previous snapshot stays active and the error
// is reported to telemetry.
func (e *SearchEngine) Reload(ctx context.Context) error {
	idx, err := e.builder.Build(ctx, e.source)
	if err != nil {
		e.telemetry.BuildError()
		return fmt.Errorf("index rebuild: %w", err)
	}
	e.active.Store(idx)
	return nil
}

// ActiveIndex returns the currently published snapshot.
func (e *SearchEngine) ActiveIndex() *Index {
	return e.active.Load()
}

// Generation returns the active snapshot's generation number.
func (e *SearchEngine) Generation() uint64 {
	return e.active.Load().Generation
}

// Policy returns the freshness policy fixed at construction.
func (e *SearchEngine) Policy() Policy { return e.policy }

// Cache exposes the engine's result cache.
func (e *SearchEngine) Cache() *ResultCache { return e.cache }
