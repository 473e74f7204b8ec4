package baseline

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/Rifat977/search-bench/internal/catalog"
	"github.com/Rifat977/search-bench/pkg/config"
	apperrors "github.com/Rifat977/search-bench/pkg/errors"
	"github.com/Rifat977/search-bench/pkg/postgres"
	"github.com/Rifat977/search-bench/pkg/resilience"
)

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"red", "red"},
		{"50%", `50\%`},
		{"a_b", `a\_b`},
		{`c:\tmp`, `c:\\tmp`},
		{`%_\`, `\%\_\\`},
	}
	for _, tt := range tests {
		if got := escapeLike(tt.in); got != tt.want {
			t.Errorf("escapeLike(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCountsAgainstBreaker(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{apperrors.ErrInvalidInput, false},
		{context.Canceled, false},
		{apperrors.ErrTimeout, true},
		{errors.New("connection refused"), true},
	}
	for _, tt := range tests {
		if got := countsAgainstBreaker(tt.err); got != tt.want {
			t.Errorf("countsAgainstBreaker(%v) = %v", tt.err, got)
		}
	}
}

func TestSearchShortCircuits(t *testing.T) {
	s := NewStore(nil, Options{})
	if _, err := s.Search(context.Background(), "red", -1); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("negative limit: %v", err)
	}
	got, err := s.Search(context.Background(), "   ", 10)
	if err != nil || len(got) != 0 {
		t.Errorf("blank term: %v %v", got, err)
	}
	got, err = s.Search(context.Background(), "red", 0)
	if err != nil || len(got) != 0 {
		t.Errorf("zero limit: %v %v", got, err)
	}
}

func testDB(t *testing.T) *postgres.Client {
	t.Helper()
	if os.Getenv("SB_TEST_POSTGRES") == "" {
		t.Skip("SB_TEST_POSTGRES not set")
	}
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	db, err := postgres.New(context.Background(), cfg.Postgres)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr[T any](v T) *T { return &v }

func TestHealthyFollowsBreaker(t *testing.T) {
	s := NewStore(nil, Options{Breaker: resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour}})
	ctx := context.Background()
	if err := s.Healthy(ctx); err != nil {
		t.Fatalf("closed breaker reported unhealthy: %v", err)
	}
	_ = s.breaker.Execute(func() error { return errors.New("connection refused") })
	if err := s.Healthy(ctx); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("open breaker: err = %v", err)
	}
	s.breaker.Reset()
	if err := s.Healthy(ctx); err != nil {
		t.Fatalf("after reset: %v", err)
	}
}

func TestSeedAndSearch(t *testing.T) {
	db := testDB(t)
	s := NewStore(db, Options{QueryTimeout: 5 * time.Second})
	ctx := context.Background()
	if err := s.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	records := []catalog.Product{
		{Title: "Red Shoes", Brand: "Acme", Description: "comfortable red running shoes", Price: ptr(49.99)},
		{Title: "Blue Shoes", Brand: "Acme", Description: "50% off"},
		{Title: "Red Hat", Brand: "Beta", Description: "a warm red hat", ReviewsCount: ptr(int64(3))},
	}
	if err := s.Seed(ctx, records); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		term   string
		limit  int
		titles []string
	}{
		{"red", 10, []string{"Red Shoes", "Red Hat"}},
		{"RED", 1, []string{"Red Shoes"}},
		{"acme", 10, []string{"Red Shoes", "Blue Shoes"}},
		{"50%", 10, []string{"Blue Shoes"}},
		{"5_%", 10, nil},
		{"purple", 10, nil},
	}
	for _, tt := range tests {
		got, err := s.Search(ctx, tt.term, tt.limit)
		if err != nil {
			t.Fatalf("Search(%q): %v", tt.term, err)
		}
		if len(got) != len(tt.titles) {
			t.Fatalf("Search(%q) = %d rows, want %d", tt.term, len(got), len(tt.titles))
		}
		for i := range got {
			if got[i].Title != tt.titles[i] {
				t.Errorf("Search(%q)[%d] = %q, want %q", tt.term, i, got[i].Title, tt.titles[i])
			}
		}
	}

	got, _ := s.Search(ctx, "Red Shoes", 1)
	if len(got) != 1 || got[0].Price == nil || *got[0].Price != 49.99 || got[0].ReviewsCount != nil {
		t.Errorf("nullable columns not restored: %+v", got)
	}
}

func TestBreakerOpensOnDatabaseFailure(t *testing.T) {
	db := testDB(t)
	s := NewStore(db, Options{Breaker: resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour}})
	db.Close()
	if _, err := s.Search(context.Background(), "red", 10); !errors.Is(err, apperrors.ErrBaselineUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if _, err := s.Search(context.Background(), "red", 10); !errors.Is(err, apperrors.ErrBaselineUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if s.breaker.State() != resilience.StateOpen {
		t.Fatal("breaker should be open")
	}
}
