package analytics

import "time"

const (
	EngineFullText = "fulltext"
	EngineBaseline = "baseline"
)

// SearchEvent records one answered (or failed) query.
type SearchEvent struct {
	Engine    string    `json:"engine"`
	Query     string    `json:"query"`
	Limit     int       `json:"limit"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs float64   `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Tracker accepts search events. Implementations must not block the caller.
type Tracker interface {
	Track(event SearchEvent)
}
