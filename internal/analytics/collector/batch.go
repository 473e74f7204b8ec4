// Package collector buffers analytics events in memory and publishes them
// to Kafka in batches.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Rifat977/search-bench/internal/analytics"
	"github.com/Rifat977/search-bench/pkg/kafka"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 5 * time.Second
	shutdownFlushTimeout = 5 * time.Second

	// Failed batches are put back, but the buffer never grows past this
	// many batches' worth of events.
	maxPendingBatches = 3
)

// Publisher is the part of kafka.Producer the collector needs.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// BatchCollector is an analytics.Tracker that publishes events keyed by
// engine once batchSize events are pending or every flushInterval.
type BatchCollector struct {
	pub      Publisher
	size     int
	interval time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	pending []kafka.Event

	sending sync.Mutex
	stopped chan struct{}
}

func NewBatchCollector(pub Publisher, batchSize int, flushInterval time.Duration) *BatchCollector {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	return &BatchCollector{
		pub:      pub,
		size:     batchSize,
		interval: flushInterval,
		log:      slog.Default().With("component", "event-collector"),
		pending:  make([]kafka.Event, 0, batchSize),
		stopped:  make(chan struct{}),
	}
}

// Start runs the periodic flush until ctx is done. Whatever is still
// pending at that point gets one last publish attempt.
func (bc *BatchCollector) Start(ctx context.Context) {
	bc.log.Info("event collector running", "batch_size", bc.size, "flush_interval", bc.interval)
	go bc.loop(ctx)
}

func (bc *BatchCollector) loop(ctx context.Context) {
	defer close(bc.stopped)
	tick := time.NewTicker(bc.interval)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			bc.Flush(ctx)
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
			bc.Flush(final)
			cancel()
			return
		}
	}
}

func (bc *BatchCollector) Track(event analytics.SearchEvent) {
	bc.mu.Lock()
	bc.pending = append(bc.pending, kafka.Event{Key: event.Engine, Value: event})
	full := len(bc.pending) >= bc.size
	bc.mu.Unlock()

	if full {
		go bc.Flush(context.Background())
	}
}

// Close blocks until the loop started by Start has made its final flush.
func (bc *BatchCollector) Close() {
	<-bc.stopped
}

func (bc *BatchCollector) BufferLen() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.pending)
}

// Flush publishes everything pending. Only one publish runs at a time.
func (bc *BatchCollector) Flush(ctx context.Context) {
	bc.sending.Lock()
	defer bc.sending.Unlock()

	batch := bc.take()
	if len(batch) == 0 {
		return
	}
	if err := bc.pub.PublishBatch(ctx, batch); err != nil {
		bc.log.Error("publishing events", "events", len(batch), "error", err)
		bc.putBack(batch)
		return
	}
	bc.log.Debug("events published", "events", len(batch))
}

func (bc *BatchCollector) take() []kafka.Event {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	batch := bc.pending
	bc.pending = make([]kafka.Event, 0, bc.size)
	return batch
}

// putBack returns a failed batch to the front of the queue, dropping the
// newest events beyond the pending limit.
func (bc *BatchCollector) putBack(batch []kafka.Event) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.pending = append(batch, bc.pending...)
	if limit := bc.size * maxPendingBatches; len(bc.pending) > limit {
		bc.log.Warn("event buffer full, dropping events", "dropped", len(bc.pending)-limit)
		bc.pending = bc.pending[:limit]
	}
}

// Fanout sends every event to each tracker.
type Fanout []analytics.Tracker

func (f Fanout) Track(event analytics.SearchEvent) {
	for _, t := range f {
		t.Track(event)
	}
}
