// Package snapshot persists periodic copies of the aggregated analytics to
// PostgreSQL so benchmark runs can be compared after the process exits.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Rifat977/search-bench/internal/analytics"
	"github.com/Rifat977/search-bench/pkg/postgres"
)

const (
	createTable = `
CREATE TABLE IF NOT EXISTS analytics_snapshots (
    id          BIGSERIAL PRIMARY KEY,
    stats       JSONB NOT NULL,
    captured_at TIMESTAMPTZ NOT NULL
)`
	insertSnapshot = `INSERT INTO analytics_snapshots (stats, captured_at) VALUES ($1, $2) RETURNING id`
	selectLatest   = `SELECT id, stats, captured_at FROM analytics_snapshots ORDER BY id DESC LIMIT 1`

	finalSaveTimeout = 5 * time.Second
)

// Snapshot is one stored copy of the aggregated analytics.
type Snapshot struct {
	ID         int64
	CapturedAt time.Time
	Stats      analytics.AggregatedStats
}

type Store struct {
	db  *postgres.Client
	log *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{db: db, log: slog.Default().With("component", "analytics-snapshots")}
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("creating analytics_snapshots table: %w", err)
	}
	return nil
}

// Save stores stats and returns the new snapshot's ID.
func (s *Store) Save(ctx context.Context, stats analytics.AggregatedStats) (int64, error) {
	raw, err := json.Marshal(stats)
	if err != nil {
		return 0, fmt.Errorf("encoding analytics snapshot: %w", err)
	}
	var id int64
	if err := s.db.DB.QueryRowContext(ctx, insertSnapshot, raw, time.Now().UTC()).Scan(&id); err != nil {
		return 0, fmt.Errorf("inserting analytics snapshot: %w", err)
	}
	s.log.Debug("analytics snapshot stored", "id", id, "engines", len(stats.Engines))
	return id, nil
}

// Latest returns the newest snapshot. It returns nil and no error when the
// table is empty.
func (s *Store) Latest(ctx context.Context) (*Snapshot, error) {
	var (
		snap Snapshot
		raw  []byte
	)
	err := s.db.DB.QueryRowContext(ctx, selectLatest).Scan(&snap.ID, &raw, &snap.CapturedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("loading latest analytics snapshot: %w", err)
	}
	if err := json.Unmarshal(raw, &snap.Stats); err != nil {
		return nil, fmt.Errorf("decoding analytics snapshot %d: %w", snap.ID, err)
	}
	return &snap, nil
}

// Loader adapts Latest for the analytics handler's ?source=snapshot view.
func (s *Store) Loader() analytics.SnapshotLoader {
	return func(ctx context.Context) (*analytics.AggregatedStats, time.Time, error) {
		snap, err := s.Latest(ctx)
		if err != nil || snap == nil {
			return nil, time.Time{}, err
		}
		return &snap.Stats, snap.CapturedAt, nil
	}
}

// Run saves agg every interval until ctx is done and once more after that.
// The returned channel is closed when the last save has finished.
func (s *Store) Run(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	s.log.Info("analytics snapshots scheduled", "interval", interval)

	go func() {
		defer close(done)
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				s.saveLogged(ctx, agg)
			case <-ctx.Done():
				final, cancel := context.WithTimeout(context.Background(), finalSaveTimeout)
				s.saveLogged(final, agg)
				cancel()
				return
			}
		}
	}()
	return done
}

func (s *Store) saveLogged(ctx context.Context, agg *analytics.Aggregator) {
	if _, err := s.Save(ctx, agg.Stats()); err != nil {
		s.log.Error("analytics snapshot failed", "error", err)
	}
}
