package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/TrackSync/internal/broker/messages"
	"github.com/BearBump/TrackSync/internal/cache"
	"github.com/BearBump/TrackSync/internal/services/coordinator"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	defaultPublishAttempts = 10
	defaultPublishBackoff  = 150 * time.Millisecond
)

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// NewMessage wraps a snapshot into the Kafka/Redis wire message.
func NewMessage(accountID string, s *coordinator.Snapshot, now time.Time) messages.SnapshotUpdated {
	return messages.SnapshotUpdated{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		GeneratedAt: now.UTC(),
		Packages:    s.Packages(),
	}
}

// KafkaSink publishes every snapshot keyed by account id.
type KafkaSink struct {
	producer  Producer
	topic     string
	accountID string

	attempts int
	backoff  time.Duration
	now      func() time.Time
}

func NewKafkaSink(producer Producer, topic, accountID string) *KafkaSink {
	return &KafkaSink{
		producer:  producer,
		topic:     topic,
		accountID: accountID,
		attempts:  defaultPublishAttempts,
		backoff:   defaultPublishBackoff,
		now:       time.Now,
	}
}

func (k *KafkaSink) HandleSnapshot(ctx context.Context, s *coordinator.Snapshot) error {
	b, err := json.Marshal(NewMessage(k.accountID, s, k.now()))
	if err != nil {
		return errors.Wrap(err, "marshal kafka msg")
	}

	key := []byte(k.accountID)
	// Kafka may not be ready right after the compose stack starts.
	var pubErr error
	for i := 0; i < k.attempts; i++ {
		if pubErr = k.producer.Publish(ctx, k.topic, key, b); pubErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "publish snapshot")
		case <-time.After(k.backoff * time.Duration(i+1)):
		}
	}
	return errors.Wrap(pubErr, "publish snapshot")
}

func SnapshotKey(accountID string) string {
	return "snapshot:" + accountID + ":current"
}

// CacheSink keeps the last snapshot of the account in Redis for warm starts.
type CacheSink struct {
	cache     cache.BytesCache
	accountID string
	ttl       time.Duration
	now       func() time.Time
}

func NewCacheSink(c cache.BytesCache, accountID string, ttl time.Duration) *CacheSink {
	return &CacheSink{cache: c, accountID: accountID, ttl: ttl, now: time.Now}
}

func (c *CacheSink) HandleSnapshot(ctx context.Context, s *coordinator.Snapshot) error {
	b, err := json.Marshal(NewMessage(c.accountID, s, c.now()))
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	return c.cache.Set(ctx, SnapshotKey(c.accountID), b, c.ttl)
}

// LoadCached returns the snapshot stored by CacheSink, if any.
func LoadCached(ctx context.Context, c cache.BytesCache, accountID string) (*coordinator.Snapshot, *messages.SnapshotUpdated, error) {
	b, ok, err := c.Get(ctx, SnapshotKey(accountID))
	if err != nil || !ok {
		return nil, nil, err
	}
	var msg messages.SnapshotUpdated
	if err := json.Unmarshal(b, &msg); err != nil {
		return nil, nil, errors.Wrap(err, "unmarshal cached snapshot")
	}
	return coordinator.BuildSnapshot(msg.Packages), &msg, nil
}
