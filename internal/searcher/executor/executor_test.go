package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/Rifat977/search-bench/internal/catalog"
	"github.com/Rifat977/search-bench/internal/indexer/index"
	"github.com/Rifat977/search-bench/internal/indexer/schema"
	"github.com/Rifat977/search-bench/internal/indexer/tokenizer"
	"github.com/Rifat977/search-bench/internal/searcher/parser"
	apperrors "github.com/Rifat977/search-bench/pkg/errors"
)

func buildIndex(t testing.TB, products ...catalog.Product) *index.Index {
	t.Helper()
	s := schema.Products()
	b := index.NewBuilder(s, tokenizer.Default(), index.Options{})
	for _, p := range products {
		if _, err := b.Add(p.Document(s)); err != nil {
			t.Fatal(err)
		}
	}
	idx, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func run(t *testing.T, idx *index.Index, raw string, limit int) *SearchResult {
	t.Helper()
	q, err := parser.Parse(raw, idx.Schema(), tokenizer.Default())
	if err != nil {
		t.Fatalf("Parse(%q): %v", raw, err)
	}
	res, err := New().Execute(context.Background(), idx, q, limit)
	if err != nil {
		t.Fatalf("Execute(%q): %v", raw, err)
	}
	return res
}

func docs(res *SearchResult) []uint32 {
	out := make([]uint32, len(res.Results))
	for i, r := range res.Results {
		out[i] = r.Doc
	}
	return out
}

func equal(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var catalogue = []catalog.Product{
	{Title: "Red Shoes", Brand: "Acme", Description: "running shoes for the road"},
	{Title: "Blue Shoes", Brand: "Acme", Description: "shoes in blue"},
	{Title: "Red Hat", Brand: "Beta", Description: "a hat that is red"},
	{Title: "Road Bike", Brand: "Gamma", Description: "for the red road"},
}

func TestExecute(t *testing.T) {
	idx := buildIndex(t, catalogue...)
	tests := []struct {
		query string
		want  []uint32
		hits  int
	}{
		{"purple", []uint32{}, 0},
		{"shoes", []uint32{1, 0}, 2},
		{"red", []uint32{2, 3, 0}, 3},
		{"red AND shoes", []uint32{0}, 1},
		{"+red -hat", []uint32{3, 0}, 2},
		{"red NOT road", []uint32{2}, 1},
		{"-red", []uint32{}, 0},
		{`"red road"`, []uint32{3}, 1},
		{`"road red"`, []uint32{}, 0},
		{"brand:acme", []uint32{0, 1}, 2},
		{"title:road", []uint32{3}, 1},
		{"+purple red", []uint32{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			res := run(t, idx, tt.query, 10)
			if got := docs(res); !equal(got, tt.want) {
				t.Errorf("docs = %v, want %v (%+v)", got, tt.want, res.Results)
			}
			if res.TotalHits != tt.hits {
				t.Errorf("TotalHits = %d, want %d", res.TotalHits, tt.hits)
			}
		})
	}
}

func TestExecuteScoresDescending(t *testing.T) {
	idx := buildIndex(t, catalogue...)
	res := run(t, idx, "red road shoes", 10)
	for i := 1; i < len(res.Results); i++ {
		prev, cur := res.Results[i-1], res.Results[i]
		if prev.Score < cur.Score || (prev.Score == cur.Score && prev.Doc > cur.Doc) {
			t.Fatalf("results out of order at %d: %+v", i, res.Results)
		}
	}
}

func TestExecuteTiesByDocPosition(t *testing.T) {
	idx := buildIndex(t,
		catalog.Product{Title: "Lamp"},
		catalog.Product{Title: "Lamp"},
		catalog.Product{Title: "Lamp"},
	)
	res := run(t, idx, "lamp", 2)
	if got := docs(res); !equal(got, []uint32{0, 1}) {
		t.Fatalf("docs = %v, want [0 1]", got)
	}
	if res.TotalHits != 3 {
		t.Errorf("TotalHits = %d", res.TotalHits)
	}
}

func TestExecuteLimitZero(t *testing.T) {
	idx := buildIndex(t, catalogue...)
	res := run(t, idx, "red", 0)
	if len(res.Results) != 0 || res.TotalHits != 3 {
		t.Fatalf("limit 0: %+v", res)
	}
}

func TestExecuteCancelled(t *testing.T) {
	idx := buildIndex(t, catalogue...)
	q, _ := parser.Parse("red", idx.Schema(), tokenizer.Default())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Execute(ctx, idx, q, 10); !errors.Is(err, apperrors.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}
