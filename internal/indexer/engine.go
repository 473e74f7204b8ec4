// Package indexer builds the full-text index once at startup and publishes
// it to readers.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Rifat977/search-bench/internal/catalog"
	"github.com/Rifat977/search-bench/internal/indexer/index"
	"github.com/Rifat977/search-bench/internal/indexer/schema"
	"github.com/Rifat977/search-bench/internal/indexer/tokenizer"
	"github.com/Rifat977/search-bench/pkg/config"
	apperrors "github.com/Rifat977/search-bench/pkg/errors"
	"github.com/Rifat977/search-bench/pkg/metrics"
)

// Stats describes the published index.
type Stats struct {
	Ready         bool    `json:"ready"`
	Analyzer      string  `json:"analyzer"`
	Documents     int     `json:"documents"`
	Terms         int     `json:"terms"`
	SizeBytes     int64   `json:"size_bytes"`
	BuildSeconds  float64 `json:"build_seconds"`
	SchemaVersion string  `json:"schema_fingerprint"`
}

// Engine owns the single index of the process. Build runs once; afterwards
// Snapshot hands out the immutable index without any locking.
type Engine struct {
	schema   *schema.Schema
	analyzer *tokenizer.Analyzer
	cfg      config.IndexerConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger

	current       atomic.Pointer[index.Index]
	building      atomic.Bool
	buildDuration atomic.Int64
}

// NewEngine creates an Engine with no index. m may be nil.
func NewEngine(s *schema.Schema, analyzer *tokenizer.Analyzer, cfg config.IndexerConfig, m *metrics.Metrics) *Engine {
	return &Engine{
		schema:   s,
		analyzer: analyzer,
		cfg:      cfg,
		metrics:  m,
		logger:   slog.Default().With("component", "indexer"),
	}
}

// Build indexes products in order and publishes the result. Only one build
// may succeed per Engine; a failed build publishes nothing and may be
// retried.
func (e *Engine) Build(ctx context.Context, products []catalog.Product) error {
	if !e.building.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: index already built or build in progress", apperrors.ErrFatalIndex)
	}
	start := time.Now()
	idx, err := e.build(ctx, products)
	if err != nil {
		e.building.Store(false)
		e.logger.Error("index build failed", "error", err, "records", len(products))
		return err
	}
	elapsed := time.Since(start)
	e.buildDuration.Store(int64(elapsed))
	e.current.Store(idx)

	if e.metrics != nil {
		e.metrics.DocsIndexedTotal.Add(float64(idx.DocCount()))
		e.metrics.IndexTerms.Set(float64(idx.TermCount()))
		e.metrics.IndexSizeBytes.Set(float64(idx.Size()))
		e.metrics.IndexBuildDuration.Set(elapsed.Seconds())
	}
	e.logger.Info("index published",
		"documents", idx.DocCount(),
		"terms", idx.TermCount(),
		"size_bytes", idx.Size(),
		"analyzer", idx.Analyzer(),
		"duration", elapsed,
	)
	return nil
}

func (e *Engine) build(ctx context.Context, products []catalog.Product) (*index.Index, error) {
	b := index.NewBuilder(e.schema, e.analyzer, index.Options{MaxBytes: e.cfg.MaxIndexBytes})
	for i, p := range products {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: build cancelled at record %d: %v", apperrors.ErrFatalIndex, i, err)
		}
		if _, err := b.Add(p.Document(e.schema)); err != nil {
			return nil, fmt.Errorf("indexing record %d: %w", i, err)
		}
		if (i+1)%100000 == 0 {
			e.logger.Debug("indexing progress", "records", i+1, "total", len(products))
		}
	}
	return b.Build()
}

// Snapshot returns the published index, or ErrIndexNotReady before Build
// has succeeded.
func (e *Engine) Snapshot() (*index.Index, error) {
	idx := e.current.Load()
	if idx == nil {
		return nil, apperrors.ErrIndexNotReady
	}
	return idx, nil
}

// Ready reports whether an index has been published.
func (e *Engine) Ready() bool { return e.current.Load() != nil }

func (e *Engine) Schema() *schema.Schema { return e.schema }

func (e *Engine) Analyzer() *tokenizer.Analyzer { return e.analyzer }

func (e *Engine) Stats() Stats {
	stats := Stats{
		Analyzer:      e.analyzer.Name(),
		SchemaVersion: e.schema.Fingerprint(),
	}
	idx := e.current.Load()
	if idx == nil {
		return stats
	}
	stats.Ready = true
	stats.Documents = idx.DocCount()
	stats.Terms = idx.TermCount()
	stats.SizeBytes = idx.Size()
	stats.BuildSeconds = time.Duration(e.buildDuration.Load()).Seconds()
	return stats
}
