package index

import (
	"fmt"
	"math"

	"github.com/Rifat977/search-bench/internal/indexer/schema"
	"github.com/Rifat977/search-bench/internal/indexer/tokenizer"
	apperrors "github.com/Rifat977/search-bench/pkg/errors"
)

// Options bounds the resources a Builder may use.
type Options struct {
	// MaxBytes caps the estimated index size; 0 means unlimited.
	MaxBytes int64
}

// Builder accumulates documents privately and produces an Index on Build.
// Nothing it holds is visible to readers until Build returns.
type Builder struct {
	schema   *schema.Schema
	analyzer *tokenizer.Analyzer
	opts     Options
	fields   map[int]*fieldIndex
	forward  []Document
	terms    int
	size     int64
	sealed   bool
}

func NewBuilder(s *schema.Schema, analyzer *tokenizer.Analyzer, opts Options) *Builder {
	fields := make(map[int]*fieldIndex)
	for _, f := range s.Tokenized() {
		fields[f] = &fieldIndex{terms: make(map[string]PostingList)}
	}
	return &Builder{
		schema:   s,
		analyzer: analyzer,
		opts:     opts,
		fields:   fields,
	}
}

// Add assigns the next document position to doc and indexes it. A rejected
// document leaves the builder unchanged.
func (b *Builder) Add(doc Document) (uint32, error) {
	if b.sealed {
		return 0, fmt.Errorf("%w: builder already sealed", apperrors.ErrFatalIndex)
	}
	if uint64(len(b.forward)) >= math.MaxUint32 {
		return 0, fmt.Errorf("%w: document limit reached", apperrors.ErrFatalIndex)
	}
	if err := b.validate(doc); err != nil {
		return 0, err
	}
	docID := uint32(len(b.forward))

	perField := make(map[int]map[string]*Posting, len(b.fields))
	lengths := make(map[int]int, len(b.fields))
	var added int64
	for field := range b.fields {
		text, _ := doc[field].(string)
		tokens := b.analyzer.Analyze(text)
		lengths[field] = len(tokens)
		termData := make(map[string]*Posting)
		for _, token := range tokens {
			p, exists := termData[token.Term]
			if !exists {
				p = &Posting{
					Doc:       docID,
					Positions: make([]int, 0, 2),
				}
				termData[token.Term] = p
			}
			p.Frequency++
			p.Positions = append(p.Positions, token.Position)
		}
		for term, p := range termData {
			added += int64(len(term) + len(p.Positions)*8 + 48)
		}
		perField[field] = termData
	}
	added += storedSize(doc)
	if b.opts.MaxBytes > 0 && b.size+added > b.opts.MaxBytes {
		return 0, fmt.Errorf("%w: index would exceed %d bytes at document %d", apperrors.ErrFatalIndex, b.opts.MaxBytes, docID)
	}

	for field, termData := range perField {
		fi := b.fields[field]
		for term, p := range termData {
			if _, seen := fi.terms[term]; !seen {
				b.terms++
			}
			fi.terms[term] = append(fi.terms[term], *p)
		}
		fi.lengths = append(fi.lengths, lengths[field])
		fi.totalTokens += int64(lengths[field])
	}
	stored := make(Document, len(doc))
	copy(stored, doc)
	b.forward = append(b.forward, stored)
	b.size += added
	return docID, nil
}

// Len returns the number of documents added so far.
func (b *Builder) Len() int { return len(b.forward) }

// Build seals the builder and returns the finished Index.
func (b *Builder) Build() (*Index, error) {
	if b.sealed {
		return nil, fmt.Errorf("%w: builder already sealed", apperrors.ErrFatalIndex)
	}
	b.sealed = true
	idx := &Index{
		schema:   b.schema,
		analyzer: b.analyzer.Name(),
		fields:   b.fields,
		forward:  b.forward,
		terms:    b.terms,
		size:     b.size,
	}
	b.fields = nil
	b.forward = nil
	return idx, nil
}

func (b *Builder) validate(doc Document) error {
	if len(doc) != b.schema.NumFields() {
		return fmt.Errorf("%w: document has %d values, schema declares %d fields", apperrors.ErrSchemaMismatch, len(doc), b.schema.NumFields())
	}
	for i, v := range doc {
		if v == nil {
			continue
		}
		f := b.schema.FieldAt(i)
		ok := false
		switch f.Type {
		case schema.Text:
			_, ok = v.(string)
		case schema.Float:
			_, ok = v.(float64)
		case schema.Int:
			_, ok = v.(int64)
		}
		if !ok {
			return fmt.Errorf("%w: field %q expects %s, got %T", apperrors.ErrSchemaMismatch, f.Name, f.Type, v)
		}
	}
	return nil
}

func storedSize(doc Document) int64 {
	size := int64(len(doc) * 16)
	for _, v := range doc {
		if s, ok := v.(string); ok {
			size += int64(len(s))
		}
	}
	return size
}
