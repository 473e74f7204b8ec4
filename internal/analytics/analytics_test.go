package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAggregatorPerEngine(t *testing.T) {
	a := NewAggregator()
	for i := 1; i <= 100; i++ {
		a.Track(SearchEvent{Engine: EngineFullText, Query: "red", TotalHits: 2, LatencyMs: float64(i)})
	}
	a.Track(SearchEvent{Engine: EngineFullText, Query: "purple", TotalHits: 0, LatencyMs: 1})
	a.Track(SearchEvent{Engine: EngineBaseline, Query: "red", TotalHits: 2, LatencyMs: 40, CacheHit: true})
	a.Track(SearchEvent{Engine: EngineBaseline, Query: "red", Error: "circuit open"})

	stats := a.Stats()
	ft := stats.Engines[EngineFullText]
	if ft.TotalSearches != 101 || ft.ZeroResultCount != 1 {
		t.Errorf("fulltext stats = %+v", ft)
	}
	if ft.P50LatencyMs != 50 || ft.P99LatencyMs != 99 {
		t.Errorf("percentiles p50=%v p99=%v", ft.P50LatencyMs, ft.P99LatencyMs)
	}
	if len(ft.TopQueries) != 2 || ft.TopQueries[0].Query != "red" || ft.TopQueries[0].Count != 100 {
		t.Errorf("top queries = %+v", ft.TopQueries)
	}
	if len(ft.ZeroResultQueries) != 1 || ft.ZeroResultQueries[0].Query != "purple" {
		t.Errorf("zero result queries = %+v", ft.ZeroResultQueries)
	}

	bl := stats.Engines[EngineBaseline]
	if bl.TotalSearches != 2 || bl.Errors != 1 || bl.CacheHits != 1 || bl.AvgLatencyMs != 40 {
		t.Errorf("baseline stats = %+v", bl)
	}
}

func TestLatencyWindowIsBounded(t *testing.T) {
	a := NewAggregator()
	for i := 0; i < maxLatencySamples+500; i++ {
		a.Track(SearchEvent{Engine: EngineFullText, Query: "q", TotalHits: 1, LatencyMs: 1})
	}
	if n := len(a.engines[EngineFullText].latencies); n != maxLatencySamples {
		t.Fatalf("kept %d samples", n)
	}
}

func TestHandleEvent(t *testing.T) {
	a := NewAggregator()
	handle := HandleEvent(a)
	payload, _ := json.Marshal(SearchEvent{Engine: EngineBaseline, Query: "hat", TotalHits: 1, LatencyMs: 3, Timestamp: time.Now()})
	if err := handle(context.Background(), nil, payload); err != nil {
		t.Fatal(err)
	}
	if err := handle(context.Background(), nil, []byte("not json")); err != nil {
		t.Fatalf("undecodable events are skipped, got %v", err)
	}
	if got := a.Stats().Engines[EngineBaseline].TotalSearches; got != 1 {
		t.Fatalf("TotalSearches = %d", got)
	}
}

func TestHandlerFiltersEngine(t *testing.T) {
	a := NewAggregator()
	a.Track(SearchEvent{Engine: EngineFullText, Query: "red", TotalHits: 1})
	a.Track(SearchEvent{Engine: EngineBaseline, Query: "red", TotalHits: 1})

	rec := httptest.NewRecorder()
	NewHandler(a).Stats(rec, httptest.NewRequest("GET", "/api/v1/analytics?engine=baseline", nil))
	var got AggregatedStats
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got.Engines) != 1 || got.Engines[EngineBaseline].TotalSearches != 1 {
		t.Fatalf("filtered stats = %+v", got)
	}
}

func TestHandlerSnapshotSource(t *testing.T) {
	captured := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stored := &AggregatedStats{Engines: map[string]EngineStats{
		EngineFullText: {TotalSearches: 7},
		EngineBaseline: {TotalSearches: 3},
	}}

	tests := []struct {
		name     string
		loader   SnapshotLoader
		query    string
		wantCode int
	}{
		{"disabled", nil, "source=snapshot", http.StatusServiceUnavailable},
		{"empty table", func(context.Context) (*AggregatedStats, time.Time, error) { return nil, time.Time{}, nil }, "source=snapshot", http.StatusNotFound},
		{"load failure", func(context.Context) (*AggregatedStats, time.Time, error) {
			return nil, time.Time{}, errors.New("connection refused")
		}, "source=snapshot", http.StatusInternalServerError},
		{"unknown source", nil, "source=disk", http.StatusBadRequest},
		{"stored", func(context.Context) (*AggregatedStats, time.Time, error) { return stored, captured, nil }, "source=snapshot&engine=fulltext", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(NewAggregator())
			if tt.loader != nil {
				h.WithSnapshots(tt.loader)
			}
			rec := httptest.NewRecorder()
			h.Stats(rec, httptest.NewRequest("GET", "/api/v1/analytics?"+tt.query, nil))
			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var got snapshotResponse
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatal(err)
			}
			if !got.CapturedAt.Equal(captured) || len(got.Engines) != 1 || got.Engines[EngineFullText].TotalSearches != 7 {
				t.Fatalf("snapshot response = %+v", got)
			}
		})
	}
}
