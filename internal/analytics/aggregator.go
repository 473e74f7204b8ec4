// Package analytics aggregates per-engine search statistics so the two
// retrieval strategies can be compared side by side.
package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Rifat977/search-bench/pkg/kafka"
)

// maxLatencySamples bounds the latency window kept per engine.
const maxLatencySamples = 10000

type EngineStats struct {
	TotalSearches     int64        `json:"total_searches"`
	Errors            int64        `json:"errors"`
	CacheHits         int64        `json:"cache_hits"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      float64      `json:"p50_latency_ms"`
	P95LatencyMs      float64      `json:"p95_latency_ms"`
	P99LatencyMs      float64      `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
}

type AggregatedStats struct {
	Engines   map[string]EngineStats `json:"engines"`
	StartedAt time.Time              `json:"started_at"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

type engineState struct {
	searches    int64
	errors      int64
	cacheHits   int64
	zeroResults int64
	latencies   []float64
	next        int
	queries     map[string]int64
	zeroQueries map[string]int64
}

func newEngineState() *engineState {
	return &engineState{
		latencies:   make([]float64, 0, 1024),
		queries:     make(map[string]int64),
		zeroQueries: make(map[string]int64),
	}
}

// Aggregator keeps running statistics per engine. Events arrive either
// directly through Track or from the analytics topic via HandleEvent.
type Aggregator struct {
	mu        sync.RWMutex
	engines   map[string]*engineState
	startTime time.Time
	logger    *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		engines:   make(map[string]*engineState),
		startTime: time.Now(),
		logger:    slog.Default().With("component", "analytics-aggregator"),
	}
}

// Track records event synchronously.
func (a *Aggregator) Track(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.engines[event.Engine]
	if !ok {
		st = newEngineState()
		a.engines[event.Engine] = st
	}
	st.searches++
	if event.Error != "" {
		st.errors++
		return
	}
	if event.CacheHit {
		st.cacheHits++
	}
	if len(st.latencies) < maxLatencySamples {
		st.latencies = append(st.latencies, event.LatencyMs)
	} else {
		st.latencies[st.next] = event.LatencyMs
		st.next = (st.next + 1) % maxLatencySamples
	}
	st.queries[event.Query]++
	if event.TotalHits == 0 {
		st.zeroResults++
		st.zeroQueries[event.Query]++
	}
}

// HandleEvent returns a consumer callback feeding the analytics topic into
// a.
func HandleEvent(a *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			a.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		a.Track(event)
		return nil
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		Engines:   make(map[string]EngineStats, len(a.engines)),
		StartedAt: a.startTime.UTC(),
	}
	elapsed := time.Since(a.startTime).Minutes()
	for name, st := range a.engines {
		es := EngineStats{
			TotalSearches:     st.searches,
			Errors:            st.errors,
			CacheHits:         st.cacheHits,
			ZeroResultCount:   st.zeroResults,
			TopQueries:        topN(st.queries, 10),
			ZeroResultQueries: topN(st.zeroQueries, 10),
		}
		if len(st.latencies) > 0 {
			sorted := make([]float64, len(st.latencies))
			copy(sorted, st.latencies)
			sort.Float64s(sorted)
			var sum float64
			for _, l := range sorted {
				sum += l
			}
			es.AvgLatencyMs = sum / float64(len(sorted))
			es.P50LatencyMs = percentile(sorted, 50)
			es.P95LatencyMs = percentile(sorted, 95)
			es.P99LatencyMs = percentile(sorted, 99)
		}
		if elapsed > 0 {
			es.QueriesPerMinute = float64(st.searches) / elapsed
		}
		stats.Engines[name] = es
	}
	return stats
}

func percentile(sorted []float64, pct int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
