package linematch

import (
	"log"
	"net/http"

	"github.com/oarkflow/json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AdminServer exposes health, statistics, reload, and metrics endpoints
// over HTTP, separate from the search port.
type AdminServer struct {
	engine   *SearchEngine
	monitor  *Monitor
	limiter  *RateLimiter
	registry *prometheus.Registry
}

// NewAdminServer wires the admin endpoints to the given components.
// monitor, limiter, and registry may be nil; the matching endpoints then
// report reduced information.
func NewAdminServer(engine *SearchEngine, monitor *Monitor, limiter *RateLimiter, registry *prometheus.Registry) *AdminServer {
	return &AdminServer{engine: engine, monitor: monitor, limiter: limiter, registry: registry}
}

// Handler returns the admin route mux.
func (a *AdminServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/stats", a.handleStats)
	mux.HandleFunc("/reload", a.handleReload)
	if a.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// StartHTTP serves the admin endpoints on addr. It blocks like
// http.ListenAndServe.
func (a *AdminServer) StartHTTP(addr string) error {
	log.Printf("admin endpoints on %s", addr)
	return http.ListenAndServe(addr, a.Handler())
}

func (a *AdminServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	idx := a.engine.ActiveIndex()
	body := map[string]any{
		"status":     "ok",
		"policy":     a.engine.Policy().String(),
		"generation": a.engine.Generation(),
		"lines":      idx.Len(),
		"built_at":   idx.BuiltAt(),
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *AdminServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body := map[string]any{
		"generation": a.engine.Generation(),
		"lines":      a.engine.ActiveIndex().Len(),
	}
	if cache := a.engine.Cache(); cache != nil {
		stats := cache.Stats()
		body["cache"] = map[string]any{
			"hits":     stats.Hits,
			"misses":   stats.Misses,
			"entries":  stats.Entries,
			"hit_rate": stats.HitRate(),
		}
	}
	if a.monitor != nil {
		body["monitor"] = a.monitor.Snapshot()
	}
	if a.limiter != nil {
		body["rate_limiter"] = map[string]any{
			"active_clients": a.limiter.ActiveClients(),
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *AdminServer) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := a.engine.Reload(r.Context()); err != nil {
		log.Printf("reload failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "reloaded",
		"generation": a.engine.Generation(),
		"lines":      a.engine.ActiveIndex().Len(),
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	data, err := json.Marshal(body)
	if err != nil {
		log.Printf("encode response: %v", err)
		return
	}
	w.Write(data)
}
