// Package handler serves the search, baseline and comparison endpoints.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Rifat977/search-bench/internal/analytics"
	"github.com/Rifat977/search-bench/internal/catalog"
	"github.com/Rifat977/search-bench/internal/indexer"
	"github.com/Rifat977/search-bench/internal/searcher"
	"github.com/Rifat977/search-bench/internal/searcher/cache"
	apperrors "github.com/Rifat977/search-bench/pkg/errors"
	"github.com/Rifat977/search-bench/pkg/logger"
	"github.com/Rifat977/search-bench/pkg/metrics"
)

// Baseline is the comparison engine. Nil when comparison is disabled.
type Baseline interface {
	Search(ctx context.Context, term string, limit int) ([]catalog.Product, error)
}

// Response is the body of /search and /search/baseline.
type Response struct {
	Engine    string            `json:"engine"`
	Query     string            `json:"query"`
	TookS     float64           `json:"took_s"`
	TotalHits int               `json:"total_hits"`
	CacheHit  bool              `json:"cache_hit"`
	Results   []catalog.Product `json:"results"`
}

type CompareResponse struct {
	Query         string    `json:"query"`
	Limit         int       `json:"limit"`
	FullText      *Response `json:"fulltext"`
	Baseline      *Response `json:"baseline,omitempty"`
	BaselineError string    `json:"baseline_error,omitempty"`
	Overlap       int       `json:"overlap"`
}

type Deps struct {
	Searcher *searcher.Searcher
	Engine   *indexer.Engine
	Baseline Baseline
	Cache    *cache.QueryCache
	Tracker  analytics.Tracker
	Metrics  *metrics.Metrics
}

type Handler struct {
	deps   Deps
	logger *slog.Logger
}

func New(deps Deps) *Handler {
	return &Handler{
		deps:   deps,
		logger: slog.Default().With("component", "search-handler"),
	}
}

// Search handles GET /search?q=&limit=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit, err := h.parseLimit(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp, err := h.fullText(r.Context(), query, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Baseline handles GET /search/baseline?q=&limit=.
func (h *Handler) Baseline(w http.ResponseWriter, r *http.Request) {
	if h.deps.Baseline == nil {
		h.writeError(w, fmt.Errorf("%w: comparison is disabled", apperrors.ErrBaselineUnavailable))
		return
	}
	query := r.URL.Query().Get("q")
	limit, err := h.parseLimit(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp, err := h.baseline(r.Context(), query, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Compare runs both engines concurrently. A baseline failure is reported in
// the body; only a full-text failure fails the request.
func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	if h.deps.Baseline == nil {
		h.writeError(w, fmt.Errorf("%w: comparison is disabled", apperrors.ErrBaselineUnavailable))
		return
	}
	query := r.URL.Query().Get("q")
	limit, err := h.parseLimit(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := CompareResponse{Query: query, Limit: limit}
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		resp, err := h.fullText(ctx, query, limit)
		out.FullText = resp
		return err
	})
	g.Go(func() error {
		resp, err := h.baseline(ctx, query, limit)
		if err != nil {
			out.BaselineError = err.Error()
			return nil
		}
		out.Baseline = resp
		return nil
	})
	if err := g.Wait(); err != nil {
		h.writeError(w, err)
		return
	}
	if out.Baseline != nil {
		out.Overlap = overlap(out.FullText.Results, out.Baseline.Results)
	}
	h.writeJSON(w, http.StatusOK, out)
}

// IndexStats handles GET /api/v1/index/stats.
func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.deps.Engine.Stats())
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.deps.Cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	stats, err := h.deps.Cache.Stats(r.Context())
	if err != nil {
		h.logger.Warn("cache key count failed", "error", err)
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.deps.Cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}
	deleted, err := h.deps.Cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cache invalidation failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) fullText(ctx context.Context, query string, limit int) (*Response, error) {
	start := time.Now()
	compute := func(ctx context.Context) (*cache.Entry, error) {
		res, err := h.deps.Searcher.Search(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		return &cache.Entry{Query: query, TotalHits: res.TotalHits, Products: res.Products}, nil
	}

	var (
		entry *cache.Entry
		hit   bool
		err   error
	)
	if h.deps.Cache != nil && strings.TrimSpace(query) != "" {
		entry, hit, err = h.deps.Cache.GetOrCompute(ctx, analytics.EngineFullText, h.deps.Searcher.Normalize(query), limit, compute)
	} else {
		entry, err = compute(ctx)
	}
	return h.finish(ctx, analytics.EngineFullText, query, limit, start, entry, hit, err)
}

func (h *Handler) baseline(ctx context.Context, query string, limit int) (*Response, error) {
	start := time.Now()
	compute := func(ctx context.Context) (*cache.Entry, error) {
		products, err := h.deps.Baseline.Search(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		return &cache.Entry{Query: query, TotalHits: len(products), Products: products}, nil
	}

	var (
		entry *cache.Entry
		hit   bool
		err   error
	)
	term := strings.ToLower(strings.TrimSpace(query))
	if h.deps.Cache != nil && term != "" {
		entry, hit, err = h.deps.Cache.GetOrCompute(ctx, analytics.EngineBaseline, term, limit, compute)
	} else {
		entry, err = compute(ctx)
	}
	return h.finish(ctx, analytics.EngineBaseline, query, limit, start, entry, hit, err)
}

// finish records metrics and analytics for one engine call and builds the
// response.
func (h *Handler) finish(ctx context.Context, engine, query string, limit int, start time.Time, entry *cache.Entry, hit bool, err error) (*Response, error) {
	took := time.Since(start)
	event := analytics.SearchEvent{
		Engine:    engine,
		Query:     query,
		Limit:     limit,
		LatencyMs: float64(took.Microseconds()) / 1000,
		CacheHit:  hit,
		Timestamp: time.Now().UTC(),
		RequestID: logger.RequestID(ctx),
	}
	log := logger.FromContext(ctx)

	if err != nil {
		event.Error = err.Error()
		h.observe(engine, "error", took, 0)
		h.track(event)
		if apperrors.HTTPStatusCode(err) >= 500 {
			log.Error("search failed", "engine", engine, "query", query, "error", err)
		} else {
			log.Debug("search rejected", "engine", engine, "query", query, "error", err)
		}
		return nil, err
	}

	event.TotalHits = entry.TotalHits
	event.Returned = len(entry.Products)
	resultType := "hit"
	if entry.TotalHits == 0 {
		resultType = "zero"
	}
	h.observe(engine, resultType, took, len(entry.Products))
	h.track(event)
	log.Info("search completed",
		"engine", engine,
		"query", query,
		"total_hits", entry.TotalHits,
		"returned", len(entry.Products),
		"cache_hit", hit,
		"latency_ms", event.LatencyMs,
	)

	products := entry.Products
	if products == nil {
		products = []catalog.Product{}
	}
	return &Response{
		Engine:    engine,
		Query:     query,
		TookS:     took.Seconds(),
		TotalHits: entry.TotalHits,
		CacheHit:  hit,
		Results:   products,
	}, nil
}

func (h *Handler) observe(engine, resultType string, took time.Duration, returned int) {
	if h.deps.Metrics == nil {
		return
	}
	h.deps.Metrics.SearchQueriesTotal.WithLabelValues(engine, resultType).Inc()
	h.deps.Metrics.SearchLatency.WithLabelValues(engine).Observe(took.Seconds())
	if resultType != "error" {
		h.deps.Metrics.SearchResultsCount.WithLabelValues(engine).Observe(float64(returned))
	}
}

func (h *Handler) track(event analytics.SearchEvent) {
	if h.deps.Tracker != nil {
		h.deps.Tracker.Track(event)
	}
}

// parseLimit reads ?limit=, defaulting to the searcher's default and capping
// at its maximum. Zero is allowed and yields no results.
func (h *Handler) parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return h.deps.Searcher.DefaultLimit(), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: limit must be a non-negative integer, got %q", apperrors.ErrInvalidInput, raw)
	}
	return min(n, h.deps.Searcher.MaxResults()), nil
}

// overlap counts products present in both result lists.
func overlap(a, b []catalog.Product) int {
	seen := make(map[string]struct{}, len(a))
	for _, p := range a {
		seen[productKey(p)] = struct{}{}
	}
	n := 0
	for _, p := range b {
		if _, ok := seen[productKey(p)]; ok {
			n++
			delete(seen, productKey(p))
		}
	}
	return n
}

func productKey(p catalog.Product) string {
	return p.Title + "\x00" + p.Brand + "\x00" + p.Description
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	if status == http.StatusInternalServerError && !errors.Is(err, apperrors.ErrInternal) {
		msg = "internal error"
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}
