// Package executor evaluates parsed queries against an immutable index.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Rifat977/search-bench/internal/indexer/index"
	"github.com/Rifat977/search-bench/internal/searcher/merger"
	"github.com/Rifat977/search-bench/internal/searcher/parser"
	"github.com/Rifat977/search-bench/internal/searcher/ranker"
	apperrors "github.com/Rifat977/search-bench/pkg/errors"
)

// checkEvery is how many postings are scored between context checks.
const checkEvery = 4096

type SearchResult struct {
	Query     string             `json:"query"`
	TotalHits int                `json:"total_hits"`
	Results   []ranker.ScoredDoc `json:"results"`
}

type Executor struct {
	logger *slog.Logger
}

func New() *Executor {
	return &Executor{
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Execute scores every document matching q and keeps the best limit of
// them. Must clauses are all required, must-not clauses exclude, and should
// clauses widen the candidate set only when no must clause is present.
func (e *Executor) Execute(ctx context.Context, idx *index.Index, q *parser.Query, limit int) (*SearchResult, error) {
	result := &SearchResult{
		Query:   q.Raw,
		Results: []ranker.ScoredDoc{},
	}
	if !q.HasPositive() {
		return result, nil
	}

	var (
		scores    = make(map[uint32]float64)
		mustHits  map[uint32]int
		mustCount int
		excluded  = make(map[uint32]struct{})
		work      int
	)
	for _, clause := range q.Clauses {
		if err := ctx.Err(); err != nil {
			return nil, timeout(err)
		}
		matches, err := e.evaluate(ctx, idx, clause, &work)
		if err != nil {
			return nil, err
		}
		switch clause.Occur {
		case parser.MustNot:
			for doc := range matches {
				excluded[doc] = struct{}{}
			}
			continue
		case parser.Must:
			if mustHits == nil {
				mustHits = make(map[uint32]int, len(matches))
			}
			mustCount++
			for doc := range matches {
				mustHits[doc]++
			}
		}
		for doc, s := range matches {
			scores[doc] += s
		}
	}

	top := merger.NewTopK(limit)
	for doc, score := range scores {
		if mustCount > 0 && mustHits[doc] != mustCount {
			continue
		}
		if _, skip := excluded[doc]; skip {
			continue
		}
		result.TotalHits++
		top.Push(ranker.ScoredDoc{Doc: doc, Score: ranker.Round(score)})
	}
	result.Results = top.Results()
	e.logger.Debug("query executed",
		"query", q.Raw,
		"clauses", len(q.Clauses),
		"hits", result.TotalHits,
		"results", len(result.Results),
	)
	return result, nil
}

// evaluate returns the BM25 score of every document matching clause,
// summed over the clause's fields.
func (e *Executor) evaluate(ctx context.Context, idx *index.Index, clause parser.Clause, work *int) (map[uint32]float64, error) {
	matches := make(map[uint32]float64)
	for _, field := range clause.Fields {
		stats := idx.FieldStats(field)
		params := ranker.FieldParams{TotalDocs: stats.DocCount, AvgDocLength: stats.AvgDocLength}

		if !clause.Phrase {
			postings := idx.Postings(field, clause.Terms[0])
			if len(postings) == 0 {
				continue
			}
			idf := ranker.IDF(stats.DocCount, len(postings))
			for _, p := range postings {
				if err := tick(ctx, work); err != nil {
					return nil, err
				}
				matches[p.Doc] += ranker.Score(idf, p.Frequency, idx.FieldLength(field, p.Doc), params)
			}
			continue
		}

		lists := make([]index.PostingList, len(clause.Terms))
		var idf float64
		shortest := 0
		missing := false
		for i, term := range clause.Terms {
			lists[i] = idx.Postings(field, term)
			if len(lists[i]) == 0 {
				missing = true
				break
			}
			idf += ranker.IDF(stats.DocCount, len(lists[i]))
			if len(lists[i]) < len(lists[shortest]) {
				shortest = i
			}
		}
		if missing {
			continue
		}
		positions := make([][]int, len(lists))
		for _, candidate := range lists[shortest] {
			if err := tick(ctx, work); err != nil {
				return nil, err
			}
			inAll := true
			for i, pl := range lists {
				p, ok := pl.Find(candidate.Doc)
				if !ok {
					inAll = false
					break
				}
				positions[i] = p.Positions
			}
			if !inAll {
				continue
			}
			freq := ranker.PhraseFrequency(positions)
			if freq == 0 {
				continue
			}
			matches[candidate.Doc] += ranker.Score(idf, freq, idx.FieldLength(field, candidate.Doc), params)
		}
	}
	return matches, nil
}

func tick(ctx context.Context, work *int) error {
	*work++
	if *work%checkEvery != 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return timeout(err)
	}
	return nil
}

func timeout(err error) error {
	return fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
}
