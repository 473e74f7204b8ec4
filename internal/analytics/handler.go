package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// SnapshotLoader returns the most recently persisted stats and the time they
// were captured. It returns nil stats when nothing has been stored yet.
type SnapshotLoader func(ctx context.Context) (*AggregatedStats, time.Time, error)

// Handler serves GET /api/v1/analytics. ?engine= narrows the output to one
// engine; ?source=snapshot reads the last persisted copy instead of the live
// aggregator.
type Handler struct {
	aggregator *Aggregator
	snapshots  SnapshotLoader
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-api"),
	}
}

// WithSnapshots enables ?source=snapshot.
func (h *Handler) WithSnapshots(load SnapshotLoader) *Handler {
	h.snapshots = load
	return h
}

type snapshotResponse struct {
	CapturedAt time.Time `json:"captured_at"`
	AggregatedStats
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	engine := r.URL.Query().Get("engine")

	switch source := r.URL.Query().Get("source"); source {
	case "", "live":
		h.write(w, http.StatusOK, onlyEngine(h.aggregator.Stats(), engine))
	case "snapshot":
		if h.snapshots == nil {
			h.write(w, http.StatusServiceUnavailable, map[string]string{"error": "analytics snapshots are not enabled"})
			return
		}
		stats, capturedAt, err := h.snapshots(r.Context())
		if err != nil {
			h.logger.Error("loading analytics snapshot", "error", err)
			h.write(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		if stats == nil {
			h.write(w, http.StatusNotFound, map[string]string{"error": "no analytics snapshot stored yet"})
			return
		}
		h.write(w, http.StatusOK, snapshotResponse{CapturedAt: capturedAt, AggregatedStats: onlyEngine(*stats, engine)})
	default:
		h.write(w, http.StatusBadRequest, map[string]string{"error": "source must be live or snapshot, got " + source})
	}
}

func onlyEngine(stats AggregatedStats, engine string) AggregatedStats {
	if engine == "" {
		return stats
	}
	filtered := AggregatedStats{StartedAt: stats.StartedAt, Engines: map[string]EngineStats{}}
	if es, ok := stats.Engines[engine]; ok {
		filtered.Engines[engine] = es
	}
	return filtered
}

func (h *Handler) write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("writing analytics response", "error", err)
	}
}
