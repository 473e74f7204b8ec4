// Package index holds the immutable in-memory inverted index and forward
// store. An Index is produced once by a Builder and only exposes read
// methods, so it can be shared by any number of concurrent queries.
package index

import (
	"fmt"

	"github.com/Rifat977/search-bench/internal/indexer/schema"
	apperrors "github.com/Rifat977/search-bench/pkg/errors"
)

// Document holds one record's stored values in schema field order.
// Text fields hold string, Float fields float64, Int fields int64; nil marks
// an absent value.
type Document []any

type fieldIndex struct {
	terms       map[string]PostingList
	lengths     []int
	totalTokens int64
}

type Index struct {
	schema   *schema.Schema
	analyzer string
	fields   map[int]*fieldIndex
	forward  []Document
	terms    int
	size     int64
}

func (idx *Index) Schema() *schema.Schema { return idx.schema }

// Analyzer returns the name of the analyzer the index was built with.
func (idx *Index) Analyzer() string { return idx.analyzer }

func (idx *Index) DocCount() int { return len(idx.forward) }

// TermCount returns the number of distinct (field, term) pairs.
func (idx *Index) TermCount() int { return idx.terms }

// Size returns the estimated in-memory size in bytes.
func (idx *Index) Size() int64 { return idx.size }

// Postings returns the posting list of term in the given field, or nil when
// the term is absent or the field is not tokenized.
func (idx *Index) Postings(field int, term string) PostingList {
	fi, ok := idx.fields[field]
	if !ok {
		return nil
	}
	return fi.terms[term]
}

// FieldLength returns the token count of field in doc.
func (idx *Index) FieldLength(field int, doc uint32) int {
	fi, ok := idx.fields[field]
	if !ok || int(doc) >= len(fi.lengths) {
		return 0
	}
	return fi.lengths[doc]
}

func (idx *Index) FieldStats(field int) FieldStats {
	stats := FieldStats{DocCount: len(idx.forward)}
	fi, ok := idx.fields[field]
	if !ok || stats.DocCount == 0 {
		return stats
	}
	stats.AvgDocLength = float64(fi.totalTokens) / float64(stats.DocCount)
	return stats
}

// Document returns a copy of the stored values of doc.
func (idx *Index) Document(doc uint32) (Document, error) {
	if int(doc) >= len(idx.forward) {
		return nil, fmt.Errorf("%w: document %d out of range (%d documents)", apperrors.ErrFatalIndex, doc, len(idx.forward))
	}
	stored := idx.forward[doc]
	out := make(Document, len(stored))
	copy(out, stored)
	return out, nil
}
