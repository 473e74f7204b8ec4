// Package router wires the HTTP routes of the search service and applies
// the middleware chain.
package router

import (
	"net/http"
	"time"

	"github.com/Rifat977/search-bench/internal/analytics"
	"github.com/Rifat977/search-bench/internal/searcher/handler"
	"github.com/Rifat977/search-bench/pkg/health"
	"github.com/Rifat977/search-bench/pkg/metrics"
	"github.com/Rifat977/search-bench/pkg/middleware"
	"github.com/Rifat977/search-bench/pkg/ratelimit"
)

type Options struct {
	// Limiter is nil when rate limiting is disabled.
	Limiter *ratelimit.Limiter
	Metrics *metrics.Metrics
	// RequestTimeout bounds every request; 0 disables.
	RequestTimeout time.Duration
	CORS           middleware.CORSConfig
}

// New builds the service handler.
//
// Route table:
//
//	GET    /search                     full-text engine
//	GET    /search/baseline            PostgreSQL baseline
//	GET    /compare                    both engines side by side
//	GET    /api/v1/analytics           per-engine statistics
//	GET    /api/v1/index/stats         index statistics
//	GET    /api/v1/cache/stats         query cache statistics
//	POST   /api/v1/cache/invalidate    drop cached queries
//	GET    /health/live, /health/ready probes
//
// Middleware chain (outermost first):
//
//	RequestID → CORS → RateLimit → Timeout → Metrics → mux
func New(h *handler.Handler, stats *analytics.Handler, checker *health.Checker, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mux.HandleFunc("GET /search", h.Search)
	mux.HandleFunc("GET /search/baseline", h.Baseline)
	mux.HandleFunc("GET /compare", h.Compare)

	mux.HandleFunc("GET /api/v1/analytics", stats.Stats)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)

	var chain http.Handler = mux
	if opts.Metrics != nil {
		chain = middleware.Metrics(opts.Metrics)(chain)
	}
	chain = middleware.Timeout(opts.RequestTimeout)(chain)
	if opts.Limiter != nil {
		chain = middleware.RateLimit(opts.Limiter)(chain)
	}
	chain = middleware.CORS(opts.CORS)(chain)
	chain = middleware.RequestID(chain)
	return chain
}
