package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/TrackSync/config"
	"github.com/BearBump/TrackSync/internal/cache"
	"github.com/BearBump/TrackSync/internal/cache/rediscache"
	"github.com/BearBump/TrackSync/internal/integrations/seventeentrack"
	"github.com/BearBump/TrackSync/internal/integrations/seventeentrack/fake"
	"github.com/BearBump/TrackSync/internal/services/publisher"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type recordingProducer struct {
	mu     sync.Mutex
	topics []string
	keys   []string
}

func (p *recordingProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, string(key))
	return nil
}

func (p *recordingProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.topics)
}

type stubLimiter struct {
	mu     sync.Mutex
	allow  bool
	err    error
	scopes []string
}

func (l *stubLimiter) AllowPerMinute(ctx context.Context, scope string, limit int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.scopes = append(l.scopes, scope)
	return l.allow, l.err
}

type rejectingClient struct {
	*fake.FakeClient
	valid bool
	err   error
}

func (c *rejectingClient) ValidateToken(ctx context.Context) (bool, error) {
	return c.valid, c.err
}

type testEnv struct {
	producer *recordingProducer
	limiter  *stubLimiter
	mr       *miniredis.Miniredis
	client   PackagesClient
	closed   int
}

func newTestFactories(t *testing.T, env *testEnv) workerFactories {
	t.Helper()
	if env.producer == nil {
		env.producer = &recordingProducer{}
	}
	if env.limiter == nil {
		env.limiter = &stubLimiter{allow: true}
	}
	if env.mr == nil {
		env.mr = miniredis.RunT(t)
	}
	if env.client == nil {
		env.client = fake.New("RR1", "RR2")
	}
	return workerFactories{
		newClient: func(cfg *config.Config) (PackagesClient, error) { return env.client, nil },
		newProducer: func(cfg *config.Config) (publisher.Producer, func()) {
			return env.producer, func() { env.closed++ }
		},
		newRateLimiter: func(cfg *config.Config) RateLimiter { return env.limiter },
		newCache: func(cfg *config.Config) (cache.BytesCache, func()) {
			c := rediscache.New(env.mr.Addr())
			return c, func() { env.closed++; _ = c.Close() }
		},
		newRegistry: func() (prometheus.Registerer, prometheus.Gatherer) {
			reg := prometheus.NewRegistry()
			return reg, reg
		},
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Kafka:          config.KafkaConfig{SnapshotsTopicName: "tracking.snapshots"},
		SeventeenTrack: config.SeventeenTrackConfig{APIKey: "0123456789abcdef"},
		TrackSync:      config.TrackSyncConfig{ClientMode: "fake", PollIntervalSeconds: 3600},
	}
}

func TestDefaultWorkerFactories_SelectClient(t *testing.T) {
	f := defaultWorkerFactories()

	c, err := f.newClient(&config.Config{TrackSync: config.TrackSyncConfig{ClientMode: "fake"}})
	require.NoError(t, err)
	_, ok := c.(*fake.FakeClient)
	require.True(t, ok)

	c, err = f.newClient(&config.Config{SeventeenTrack: config.SeventeenTrackConfig{APIKey: "k", BaseURL: "http://localhost:9000"}})
	require.NoError(t, err)
	_, ok = c.(*seventeentrack.Client)
	require.True(t, ok)

	_, err = f.newClient(&config.Config{TrackSync: config.TrackSyncConfig{ClientMode: "live"}})
	require.Error(t, err)

	_, err = f.newClient(&config.Config{TrackSync: config.TrackSyncConfig{ClientMode: "carrier-pigeon"}})
	require.Error(t, err)
}

func TestDefaultWorkerFactories_ProducerAndRateLimiter_NonNil(t *testing.T) {
	f := defaultWorkerFactories()
	cfg := &config.Config{
		Kafka: config.KafkaConfig{Host: "localhost", Port: 9092},
		Redis: config.RedisConfig{Host: "localhost", Port: 6379},
	}
	p, closeP := f.newProducer(cfg)
	require.NotNil(t, p)
	closeP()
	require.NotNil(t, f.newRateLimiter(cfg))
	c, closeC := f.newCache(cfg)
	require.NotNil(t, c)
	closeC()
}

func TestAccountIDFor(t *testing.T) {
	cfg := testConfig()
	require.Equal(t, "fake", accountIDFor(cfg))

	cfg.TrackSync.ClientMode = "live"
	require.Equal(t, "89abcdef", accountIDFor(cfg))
}

func TestNewWorker_RejectedToken(t *testing.T) {
	env := &testEnv{client: &rejectingClient{FakeClient: fake.New(), valid: false}}

	_, err := newWorker(context.Background(), testConfig(), newTestFactories(t, env))
	require.Error(t, err)
	require.Contains(t, err.Error(), "rejected")
}

func TestNewWorker_UnreachableTokenCheckIsNotFatal(t *testing.T) {
	env := &testEnv{client: &rejectingClient{
		FakeClient: fake.New(),
		err:        &seventeentrack.TransportError{Endpoint: "gettrackinfo", Err: errors.New("dial tcp")},
	}}

	w, err := newWorker(context.Background(), testConfig(), newTestFactories(t, env))
	require.NoError(t, err)
	w.Close()
}

func TestNewWorker_Defaults(t *testing.T) {
	cfg := testConfig()
	cfg.TrackSync.PollIntervalSeconds = 0

	w, err := newWorker(context.Background(), cfg, newTestFactories(t, &testEnv{}))
	require.NoError(t, err)
	defer w.Close()

	require.Equal(t, 20*time.Minute, w.coord.Options().PollInterval)
	require.Equal(t, int64(30), w.rateLimitPerMinute)
}

func TestRunTrackWorker_PublishesAndStopsOnCancel(t *testing.T) {
	env := &testEnv{}
	f := newTestFactories(t, env)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- RunTrackWorker(ctx, testConfig(), f) }()

	require.Eventually(t, func() bool { return env.producer.count() >= 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return env.mr.Exists("snapshot:fake:current") }, 2*time.Second, 10*time.Millisecond)

	env.producer.mu.Lock()
	require.Equal(t, "tracking.snapshots", env.producer.topics[0])
	require.Equal(t, "fake", env.producer.keys[0])
	env.producer.mu.Unlock()

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	require.Equal(t, 2, env.closed)
}

func TestRunTrackWorker_ContextCanceled(t *testing.T) {
	env := &testEnv{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunTrackWorker(ctx, testConfig(), newTestFactories(t, env))
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 2, env.closed)
}

var _ PackagesClient = (*seventeentrack.Client)(nil)
var _ PackagesClient = (*fake.FakeClient)(nil)
