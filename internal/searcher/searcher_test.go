package searcher

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/Rifat977/search-bench/internal/catalog"
	"github.com/Rifat977/search-bench/internal/indexer"
	"github.com/Rifat977/search-bench/internal/indexer/schema"
	"github.com/Rifat977/search-bench/internal/indexer/tokenizer"
	"github.com/Rifat977/search-bench/pkg/config"
	apperrors "github.com/Rifat977/search-bench/pkg/errors"
)

func price(v float64) *float64 { return &v }

func scenario() []catalog.Product {
	return []catalog.Product{
		{Title: "Red Shoes", Brand: "Acme"},
		{Title: "Blue Shoes", Brand: "Acme"},
		{Title: "Red Hat", Brand: "Beta"},
	}
}

func newSearcher(t testing.TB, products []catalog.Product) *Searcher {
	t.Helper()
	s := schema.Products()
	engine := indexer.NewEngine(s, tokenizer.Default(), config.IndexerConfig{}, nil)
	if err := engine.Build(context.Background(), products); err != nil {
		t.Fatalf("Build: %v", err)
	}
	srch, err := New(s, engine, tokenizer.Default(), Options{DefaultLimit: 10, MaxResults: 50})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srch
}

func titles(res *Result) []string {
	out := make([]string, len(res.Products))
	for i, p := range res.Products {
		out[i] = p.Title + "/" + p.Brand
	}
	return out
}

func TestScenario(t *testing.T) {
	s := newSearcher(t, scenario())
	ctx := context.Background()

	res, err := s.Search(ctx, "Red", 10)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := titles(res), []string{"Red Shoes/Acme", "Red Hat/Beta"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Red = %v, want %v", got, want)
	}

	res, err = s.Search(ctx, "Shoes", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Products) != 1 || res.Products[0].Brand != "Acme" {
		t.Errorf("Shoes limit 1 = %v", titles(res))
	}
	if res.TotalHits != 2 {
		t.Errorf("Shoes TotalHits = %d, want 2", res.TotalHits)
	}

	res, err = s.Search(ctx, "Purple", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Products) != 0 || res.Products == nil {
		t.Errorf("Purple = %#v, want empty non-nil slice", res.Products)
	}
}

func TestEmptyQueryMatchesNothing(t *testing.T) {
	s := newSearcher(t, scenario())
	for _, q := range []string{"", "   ", "!!!"} {
		res, err := s.Search(context.Background(), q, 10)
		if err != nil {
			t.Fatalf("Search(%q): %v", q, err)
		}
		if len(res.Products) != 0 {
			t.Errorf("Search(%q) returned %d products", q, len(res.Products))
		}
	}
}

func TestLimitBoundaries(t *testing.T) {
	var products []catalog.Product
	for i := 0; i < 80; i++ {
		products = append(products, catalog.Product{Title: fmt.Sprintf("widget %d", i)})
	}
	s := newSearcher(t, products)
	ctx := context.Background()

	tests := []struct {
		limit int
		want  int
	}{
		{0, 0},
		{1, 1},
		{50, 50},
		{80, 80},
		{1000, 80},
	}
	for _, tt := range tests {
		res, err := s.Search(ctx, "widget", tt.limit)
		if err != nil {
			t.Fatalf("limit %d: %v", tt.limit, err)
		}
		if len(res.Products) != tt.want {
			t.Errorf("limit %d returned %d, want %d", tt.limit, len(res.Products), tt.want)
		}
	}
	if _, err := s.Search(ctx, "widget", -1); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("negative limit: expected ErrInvalidInput, got %v", err)
	}
}

func TestDeterministic(t *testing.T) {
	products := []catalog.Product{
		{Title: "Trail Running Shoes", Brand: "Acme", Description: "light shoes for trail running"},
		{Title: "Road Running Shoes", Brand: "Zeta", Description: "cushioned road shoes"},
		{Title: "Running Socks", Brand: "Acme", Description: "socks"},
		{Title: "Hiking Boots", Brand: "Trail Co", Description: "boots for the trail"},
	}
	a := newSearcher(t, products)
	b := newSearcher(t, products)
	for _, q := range []string{"running", "trail shoes", `"running shoes"`, "acme -socks"} {
		first, err := a.Search(context.Background(), q, 10)
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 5; i++ {
			again, _ := a.Search(context.Background(), q, 10)
			other, _ := b.Search(context.Background(), q, 10)
			if !reflect.DeepEqual(first.Products, again.Products) || !reflect.DeepEqual(first.Products, other.Products) {
				t.Fatalf("query %q is not deterministic", q)
			}
		}
	}
}

func TestCoverage(t *testing.T) {
	products := []catalog.Product{
		{Title: "Alpha Kettle", Brand: "Northwind"},
		{Title: "Beta Toaster", Brand: "Contoso"},
		{Title: "", Brand: "", Description: "gamma blender"},
		{},
	}
	s := newSearcher(t, products)
	for _, term := range []string{"kettle", "contoso", "blender"} {
		res, err := s.Search(context.Background(), term, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Products) != 1 {
			t.Errorf("%q found %d products, want 1", term, len(res.Products))
		}
	}
}

func TestStoredOnlyFieldsRoundTripButDoNotMatch(t *testing.T) {
	p := catalog.Product{
		Title: "Desk Lamp", Brand: "Lumen", Description: "adjustable",
		Price: price(24.5), Currency: "EUR", Availability: "in stock",
		Rating: price(4.7), Discount: "15%", Manufacturer: "Lumen GmbH", Category: "lighting",
	}
	s := newSearcher(t, []catalog.Product{p})

	res, err := s.Search(context.Background(), "lamp", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Products) != 1 || !reflect.DeepEqual(res.Products[0], p) {
		t.Fatalf("reconstructed %+v, want %+v", res.Products, p)
	}
	for _, q := range []string{"lighting", "EUR", "GmbH"} {
		res, err := s.Search(context.Background(), q, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Products) != 0 {
			t.Errorf("stored-only value %q matched", q)
		}
	}
}

func TestPhraseAndSyntax(t *testing.T) {
	s := newSearcher(t, []catalog.Product{
		{Title: "red running shoes"},
		{Title: "running red shoes"},
	})
	res, err := s.Search(context.Background(), `"red running"`, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Products) != 1 || res.Products[0].Title != "red running shoes" {
		t.Fatalf("phrase matched %v", titles(res))
	}
	if _, err := s.Search(context.Background(), `"red running`, 10); !errors.Is(err, apperrors.ErrQuerySyntax) {
		t.Fatalf("expected ErrQuerySyntax, got %v", err)
	}
}

func TestNotReadyAndMismatch(t *testing.T) {
	s := schema.Products()
	engine := indexer.NewEngine(s, tokenizer.Default(), config.IndexerConfig{}, nil)
	srch, err := New(s, engine, tokenizer.Default(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := srch.Search(context.Background(), "red", 10); !errors.Is(err, apperrors.ErrIndexNotReady) {
		t.Fatalf("expected ErrIndexNotReady, got %v", err)
	}

	other := schema.MustNew(schema.Field{Name: "title", Type: schema.Text, Role: schema.TokenizedStored})
	if _, err := New(other, engine, tokenizer.Default(), Options{}); !errors.Is(err, apperrors.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
	english, _ := tokenizer.New(tokenizer.AnalyzerEnglish)
	if _, err := New(s, engine, english, Options{}); !errors.Is(err, apperrors.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch for analyzer, got %v", err)
	}
}

func TestCancelledContext(t *testing.T) {
	s := newSearcher(t, scenario())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Search(ctx, "red", 10); !errors.Is(err, apperrors.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	// The index is untouched by the aborted request.
	res, err := s.Search(context.Background(), "red", 10)
	if err != nil || len(res.Products) != 2 {
		t.Fatalf("after cancellation: %v, %v", res, err)
	}
}

func TestConcurrentSearches(t *testing.T) {
	s := newSearcher(t, scenario())
	want, _ := s.Search(context.Background(), "red shoes", 10)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				got, err := s.Search(context.Background(), "red shoes", 10)
				if err != nil || !reflect.DeepEqual(got.Products, want.Products) {
					t.Errorf("concurrent search diverged: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestNormalize(t *testing.T) {
	s := newSearcher(t, scenario())
	if s.Normalize("  RED  shoes") != s.Normalize("red shoes") {
		t.Error("equivalent queries normalise differently")
	}
}

func BenchmarkSearchParallel(b *testing.B) {
	products := make([]catalog.Product, 5000)
	words := []string{"red", "blue", "green", "shoes", "hat", "lamp", "desk", "trail", "road", "socks"}
	for i := range products {
		products[i] = catalog.Product{
			Title:       words[i%len(words)] + " " + words[(i/3)%len(words)],
			Brand:       fmt.Sprintf("brand%d", i%40),
			Description: words[(i/7)%len(words)] + " " + words[(i/11)%len(words)] + " item",
		}
	}
	s := newSearcher(b, products)
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, err := s.Search(context.Background(), words[i%len(words)]+" "+words[(i+3)%len(words)], 10); err != nil {
				b.Error(err)
				return
			}
			i++
		}
	})
}
