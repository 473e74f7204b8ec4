// Package baseline is the comparison engine: a plain PostgreSQL table
// searched with case-insensitive substring matching.
package baseline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Rifat977/search-bench/internal/catalog"
	apperrors "github.com/Rifat977/search-bench/pkg/errors"
	"github.com/Rifat977/search-bench/pkg/postgres"
	"github.com/Rifat977/search-bench/pkg/resilience"
)

const createTable = `
CREATE TABLE IF NOT EXISTS products (
    id            SERIAL PRIMARY KEY,
    title         TEXT NOT NULL DEFAULT '',
    brand         TEXT NOT NULL DEFAULT '',
    description   TEXT NOT NULL DEFAULT '',
    price         DOUBLE PRECISION,
    currency      TEXT NOT NULL DEFAULT '',
    availability  TEXT NOT NULL DEFAULT '',
    reviews_count BIGINT,
    rating        DOUBLE PRECISION,
    discount      TEXT NOT NULL DEFAULT '',
    manufacturer  TEXT NOT NULL DEFAULT '',
    category      TEXT NOT NULL DEFAULT ''
)`

const insertProduct = `
INSERT INTO products (title, brand, description, price, currency, availability,
                      reviews_count, rating, discount, manufacturer, category)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

const searchProducts = `
SELECT title, brand, description, price, currency, availability,
       reviews_count, rating, discount, manufacturer, category
FROM products
WHERE title ILIKE '%' || $1 || '%' ESCAPE '\'
   OR brand ILIKE '%' || $1 || '%' ESCAPE '\'
   OR description ILIKE '%' || $1 || '%' ESCAPE '\'
ORDER BY id
LIMIT $2`

type Options struct {
	QueryTimeout time.Duration
	Breaker      resilience.CircuitBreakerConfig
	SeedRetry    resilience.RetryConfig
}

// Store runs baseline queries. Database failures are reported as
// apperrors.ErrBaselineUnavailable.
type Store struct {
	db      *postgres.Client
	breaker *resilience.CircuitBreaker
	opts    Options
	logger  *slog.Logger
}

func NewStore(db *postgres.Client, opts Options) *Store {
	if opts.Breaker.IsFailure == nil {
		opts.Breaker.IsFailure = countsAgainstBreaker
	}
	return &Store{
		db:      db,
		breaker: resilience.NewCircuitBreaker("baseline-postgres", opts.Breaker),
		opts:    opts,
		logger:  slog.Default().With("component", "baseline-store"),
	}
}

// countsAgainstBreaker excludes caller mistakes and cancellations.
func countsAgainstBreaker(err error) bool {
	return err != nil &&
		!errors.Is(err, apperrors.ErrInvalidInput) &&
		!errors.Is(err, context.Canceled)
}

// Healthy reports an error while the breaker is open.
func (s *Store) Healthy(ctx context.Context) error {
	if state := s.breaker.State(); state == resilience.StateOpen {
		return fmt.Errorf("%w: %s", resilience.ErrCircuitOpen, s.breaker.Name())
	}
	return nil
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("%w: creating products table: %v", apperrors.ErrBaselineUnavailable, err)
	}
	return nil
}

// Seed replaces the table contents with records, preserving their order in
// the id column. The load is retried as a whole on failure.
func (s *Store) Seed(ctx context.Context, records []catalog.Product) error {
	start := time.Now()
	err := resilience.Retry(ctx, "baseline-seed", s.opts.SeedRetry, func(ctx context.Context) error {
		return s.db.InTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `TRUNCATE products RESTART IDENTITY`); err != nil {
				return fmt.Errorf("truncating products: %w", err)
			}
			stmt, err := tx.PrepareContext(ctx, insertProduct)
			if err != nil {
				return fmt.Errorf("preparing insert: %w", err)
			}
			defer stmt.Close()
			for i, p := range records {
				if _, err := stmt.ExecContext(ctx,
					p.Title, p.Brand, p.Description, p.Price, p.Currency, p.Availability,
					p.ReviewsCount, p.Rating, p.Discount, p.Manufacturer, p.Category,
				); err != nil {
					return fmt.Errorf("inserting record %d: %w", i, err)
				}
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("%w: seeding: %v", apperrors.ErrBaselineUnavailable, err)
	}
	s.logger.Info("baseline seeded", "records", len(records), "duration", time.Since(start))
	return nil
}

// Search returns up to limit products whose title, brand or description
// contains term, case-insensitively, in insertion order.
func (s *Store) Search(ctx context.Context, term string, limit int) ([]catalog.Product, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative, got %d", apperrors.ErrInvalidInput, limit)
	}
	term = strings.TrimSpace(term)
	if term == "" || limit == 0 {
		return []catalog.Product{}, nil
	}

	var out []catalog.Product
	err := s.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, s.opts.QueryTimeout, "baseline-search", func(ctx context.Context) error {
			var err error
			out, err = s.query(ctx, escapeLike(term), limit)
			return err
		})
	})
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, apperrors.ErrTimeout), errors.Is(err, context.Canceled):
		return nil, err
	default:
		// includes resilience.ErrCircuitOpen
		return nil, fmt.Errorf("%w: %v", apperrors.ErrBaselineUnavailable, err)
	}
}

func (s *Store) query(ctx context.Context, pattern string, limit int) ([]catalog.Product, error) {
	rows, err := s.db.DB.QueryContext(ctx, searchProducts, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	defer rows.Close()

	out := make([]catalog.Product, 0, limit)
	for rows.Next() {
		var (
			p       catalog.Product
			price   sql.NullFloat64
			reviews sql.NullInt64
			rating  sql.NullFloat64
		)
		if err := rows.Scan(&p.Title, &p.Brand, &p.Description, &price, &p.Currency,
			&p.Availability, &reviews, &rating, &p.Discount, &p.Manufacturer, &p.Category); err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		if price.Valid {
			p.Price = &price.Float64
		}
		if reviews.Valid {
			p.ReviewsCount = &reviews.Int64
		}
		if rating.Valid {
			p.Rating = &rating.Float64
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating products: %w", err)
	}
	return out, nil
}

// escapeLike makes term match literally inside an ILIKE pattern.
func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
