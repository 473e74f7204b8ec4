// Package searcher answers free-text queries against the published index
// and reconstructs the matching products.
package searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/Rifat977/search-bench/internal/catalog"
	"github.com/Rifat977/search-bench/internal/indexer"
	"github.com/Rifat977/search-bench/internal/indexer/schema"
	"github.com/Rifat977/search-bench/internal/indexer/tokenizer"
	"github.com/Rifat977/search-bench/internal/searcher/executor"
	"github.com/Rifat977/search-bench/internal/searcher/parser"
	apperrors "github.com/Rifat977/search-bench/pkg/errors"
	"github.com/Rifat977/search-bench/pkg/logger"
	"github.com/Rifat977/search-bench/pkg/tracing"
)

type Options struct {
	DefaultLimit int
	MaxResults   int
	// Timeout bounds a single query; 0 leaves only the caller's deadline.
	Timeout time.Duration
	Tracing bool
	// TraceSampleRate is the fraction of traced queries whose spans are
	// logged. Values <= 0 log every trace.
	TraceSampleRate float64
}

// Result is one answered query. Products are ordered by descending
// relevance, ties by ascending document position.
type Result struct {
	Query     string
	TotalHits int
	Products  []catalog.Product
	Took      time.Duration
}

type Searcher struct {
	schema   *schema.Schema
	engine   *indexer.Engine
	analyzer *tokenizer.Analyzer
	exec     *executor.Executor
	opts     Options
	logger   *slog.Logger
}

// New checks that s and analyzer match what engine indexes with.
func New(s *schema.Schema, engine *indexer.Engine, analyzer *tokenizer.Analyzer, opts Options) (*Searcher, error) {
	if err := s.Compatible(engine.Schema()); err != nil {
		return nil, err
	}
	if analyzer.Name() != engine.Analyzer().Name() {
		return nil, fmt.Errorf("%w: query analyzer %q differs from index analyzer %q",
			apperrors.ErrSchemaMismatch, analyzer.Name(), engine.Analyzer().Name())
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 100
	}
	if opts.DefaultLimit <= 0 || opts.DefaultLimit > opts.MaxResults {
		opts.DefaultLimit = min(10, opts.MaxResults)
	}
	return &Searcher{
		schema:   s,
		engine:   engine,
		analyzer: analyzer,
		exec:     executor.New(),
		opts:     opts,
		logger:   slog.Default().With("component", "searcher"),
	}, nil
}

func (s *Searcher) sampled() bool {
	if !s.opts.Tracing {
		return false
	}
	return s.opts.TraceSampleRate <= 0 || s.opts.TraceSampleRate >= 1 || rand.Float64() < s.opts.TraceSampleRate
}

func (s *Searcher) DefaultLimit() int { return s.opts.DefaultLimit }

func (s *Searcher) MaxResults() int { return s.opts.MaxResults }

// Search runs raw and returns at most limit products. A blank query matches
// nothing and limit must not be negative. MaxResults is left to callers.
func (s *Searcher) Search(ctx context.Context, raw string, limit int) (*Result, error) {
	start := time.Now()
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative, got %d", apperrors.ErrInvalidInput, limit)
	}
	idx, err := s.engine.Snapshot()
	if err != nil {
		return nil, err
	}
	result := &Result{Query: raw, Products: []catalog.Product{}}
	if strings.TrimSpace(raw) == "" {
		result.Took = time.Since(start)
		return result, nil
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	ctx, span := tracing.Start(ctx, "search", logger.RequestID(ctx))
	defer func() {
		span.End()
		if s.sampled() {
			span.Log(logger.FromContext(ctx))
		}
	}()

	_, parseSpan := tracing.Start(ctx, "parse", "")
	query, err := parser.Parse(raw, s.schema, s.analyzer)
	parseSpan.End()
	if err != nil {
		return nil, err
	}
	parseSpan.SetAttr("clauses", len(query.Clauses))

	_, execSpan := tracing.Start(ctx, "execute", "")
	found, err := s.exec.Execute(ctx, idx, query, limit)
	execSpan.End()
	if err != nil {
		if errors.Is(err, apperrors.ErrTimeout) {
			s.logger.Warn("query aborted", "query", raw, "error", err)
		}
		return nil, err
	}
	execSpan.SetAttr("hits", found.TotalHits)

	_, recSpan := tracing.Start(ctx, "reconstruct", "")
	result.Products = make([]catalog.Product, 0, len(found.Results))
	for _, hit := range found.Results {
		doc, err := idx.Document(hit.Doc)
		if err != nil {
			recSpan.End()
			return nil, fmt.Errorf("reconstructing document %d: %w", hit.Doc, err)
		}
		result.Products = append(result.Products, catalog.FromDocument(s.schema, doc))
	}
	recSpan.End()

	result.TotalHits = found.TotalHits
	result.Took = time.Since(start)
	span.SetAttr("results", len(result.Products))
	return result, nil
}

// Normalize returns the canonical form of raw used for cache keys. Queries
// that fail to parse are returned trimmed so the error surfaces on execution.
func (s *Searcher) Normalize(raw string) string {
	q, err := parser.Parse(raw, s.schema, s.analyzer)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return q.String()
}
