package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	defaultHandlerAttempts = 5
	defaultHandlerBackoff  = 500 * time.Millisecond
)

// Consumer feeds messages to a handler one at a time. A failing handler is retried
// with linear backoff on the same message before Consume gives up.
type Consumer struct {
	r        messageReader
	attempts int
	backoff  time.Duration
}

// NewConsumer reads topic as part of groupID. A group without committed offsets
// starts from the newest message: every snapshot supersedes the previous ones.
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		StartOffset:       kafka.LastOffset,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return &Consumer{
		r:        kafka.NewReader(cfg),
		attempts: defaultHandlerAttempts,
		backoff:  defaultHandlerBackoff,
	}
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r, attempts: 1}
}

// WithHandlerRetry sets how many times a message is handed to the handler (at least once)
// and the base delay between tries.
func (c *Consumer) WithHandlerRetry(attempts int, backoff time.Duration) *Consumer {
	if attempts < 1 {
		attempts = 1
	}
	c.attempts = attempts
	c.backoff = backoff
	return c
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Consume calls handler for each message and commits it only after the handler succeeds.
func (c *Consumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch message")
		}
		if err := c.handle(ctx, msg, handler); err != nil {
			return err
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit message")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message, handler func(key, value []byte) error) error {
	var err error
	for i := 0; i < c.attempts; i++ {
		if err = handler(msg.Key, msg.Value); err == nil {
			return nil
		}
		slog.Warn("kafka handler failed",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"attempt", i+1,
			"error", err.Error(),
		)
		if i == c.attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff * time.Duration(i+1)):
		}
	}
	return err
}
