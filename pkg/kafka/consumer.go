// Package kafka wraps segmentio/kafka-go for the analytics event stream.
// Events are published as JSON and consumed through a MessageHandler.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Rifat977/search-bench/pkg/config"
	"github.com/segmentio/kafka-go"
)

// MessageHandler is called for each message. A non-nil error leaves the
// offset uncommitted.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer reads cfg.Topic as part of cfg.ConsumerGroup, starting from the
// newest offset when the group has none committed.
type Consumer struct {
	reader *kafka.Reader
	handle MessageHandler
	log    *slog.Logger
}

func NewConsumer(cfg config.KafkaConfig, handle MessageHandler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       cfg.Topic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    1,
			MaxBytes:    10e6,
			StartOffset: kafka.LastOffset,
		}),
		handle: handle,
		log:    slog.Default().With("component", "event-consumer", "topic", cfg.Topic),
	}
}

// Start consumes until ctx is done and then closes the reader. It returns
// nil on cancellation.
func (c *Consumer) Start(ctx context.Context) error {
	defer c.reader.Close()
	c.log.Info("consuming events", "group", c.reader.Config().GroupID)

	for ctx.Err() == nil {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Error("fetching event", "error", err)
			}
			continue
		}
		c.process(ctx, msg)
	}
	c.log.Info("event consumer stopped")
	return nil
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	log := c.log.With("partition", msg.Partition, "offset", msg.Offset)
	if err := c.handle(ctx, msg.Key, msg.Value); err != nil {
		log.Error("handling event", "error", err)
		return
	}
	if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		log.Error("committing offset", "error", err)
	}
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var v T
	if err := json.Unmarshal(value, &v); err != nil {
		return v, fmt.Errorf("decoding event payload: %w", err)
	}
	return v, nil
}
