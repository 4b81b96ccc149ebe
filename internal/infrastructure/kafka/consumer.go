package kafka

import (
	"context"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

type EventHandler func(ctx context.Context, event *Event) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// fetchRetryDelay is the pause after a failed fetch, e.g. while the broker
// is unreachable
const fetchRetryDelay = time.Second

type Consumer struct {
	reader     messageReader
	retryDelay time.Duration
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, retryDelay: fetchRetryDelay}
}

// Consume runs until ctx is cancelled. Messages are committed after the
// handler returns, even on error, so one bad event cannot stall the group.
func (c *Consumer) Consume(ctx context.Context, handler EventHandler) error {
	delay := c.retryDelay
	if delay <= 0 {
		delay = fetchRetryDelay
	}

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[Consumer] error fetching message, retrying in %s: %v", delay, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		event, err := DecodeEvent(msg.Value)
		if err != nil {
			log.Printf("[Consumer] skipping offset %d: %v", msg.Offset, err)
		} else if err := handler(ctx, event); err != nil {
			log.Printf("[Consumer] error handling %s (%s): %v", event.Type, event.ID, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[Consumer] error committing offset %d: %v", msg.Offset, err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
