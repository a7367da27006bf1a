package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BearBump/TrackSync/config"
	"github.com/BearBump/TrackSync/internal/broker/kafka"
	"github.com/BearBump/TrackSync/internal/cache"
	"github.com/BearBump/TrackSync/internal/cache/rediscache"
	"github.com/BearBump/TrackSync/internal/integrations/seventeentrack"
	"github.com/BearBump/TrackSync/internal/integrations/seventeentrack/fake"
	"github.com/BearBump/TrackSync/internal/models"
	"github.com/BearBump/TrackSync/internal/obs"
	"github.com/BearBump/TrackSync/internal/services/coordinator"
	"github.com/BearBump/TrackSync/internal/services/publisher"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	clientModeLive = "live"
	clientModeFake = "fake"
)

// PackagesClient is the 17TRACK surface the worker needs.
type PackagesClient interface {
	ValidateToken(ctx context.Context) (bool, error)
	GetPackages(ctx context.Context) ([]*models.Package, error)
	AddPackage(ctx context.Context, trackingNumber, title string) error
	ArchivePackage(ctx context.Context, trackingNumber string) error
}

type RateLimiter interface {
	AllowPerMinute(ctx context.Context, scope string, limit int64) (bool, error)
}

type workerFactories struct {
	newClient      func(cfg *config.Config) (PackagesClient, error)
	newProducer    func(cfg *config.Config) (publisher.Producer, func())
	newRateLimiter func(cfg *config.Config) RateLimiter
	newCache       func(cfg *config.Config) (cache.BytesCache, func())
	newRegistry    func() (prometheus.Registerer, prometheus.Gatherer)
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newClient: func(cfg *config.Config) (PackagesClient, error) {
			switch cfg.TrackSync.ClientMode {
			case clientModeFake:
				return fake.New(), nil
			case "", clientModeLive:
				if cfg.SeventeenTrack.APIKey == "" {
					return nil, fmt.Errorf("seventeentrack.api_key is required in %q client mode", clientModeLive)
				}
				c := seventeentrack.New(cfg.SeventeenTrack.BaseURL, cfg.SeventeenTrack.APIKey)
				c.WithTimeout(time.Duration(cfg.SeventeenTrack.RequestTimeoutSeconds) * time.Second)
				return c, nil
			default:
				return nil, fmt.Errorf("unknown client_mode %q", cfg.TrackSync.ClientMode)
			}
		},
		newProducer: func(cfg *config.Config) (publisher.Producer, func()) {
			p := kafka.NewProducer([]string{cfg.Kafka.Addr()})
			return p, func() { _ = p.Close() }
		},
		newRateLimiter: func(cfg *config.Config) RateLimiter {
			return rediscache.NewRateLimiter(cfg.Redis.Addr())
		},
		newCache: func(cfg *config.Config) (cache.BytesCache, func()) {
			c := rediscache.New(cfg.Redis.Addr())
			return c, func() { _ = c.Close() }
		},
		newRegistry: func() (prometheus.Registerer, prometheus.Gatherer) {
			return prometheus.DefaultRegisterer, prometheus.DefaultGatherer
		},
	}
}

// worker holds everything the refresh loop and the HTTP surface share.
type worker struct {
	cfg       *config.Config
	accountID string
	coord     *coordinator.Coordinator
	client    PackagesClient
	rl        RateLimiter
	cache     cache.BytesCache
	gatherer  prometheus.Gatherer

	rateLimitPerMinute int64
	closers            []func()
}

func (w *worker) Close() {
	for i := len(w.closers) - 1; i >= 0; i-- {
		w.closers[i]()
	}
}

func accountIDFor(cfg *config.Config) string {
	if cfg.TrackSync.ClientMode == clientModeFake {
		return clientModeFake
	}
	return seventeentrack.AccountID(cfg.SeventeenTrack.APIKey)
}

// newWorker validates the 17TRACK token and wires the coordinator with its sinks.
// A rejected token is fatal; an unreachable 17TRACK is left to the refresh loop.
func newWorker(ctx context.Context, cfg *config.Config, f workerFactories) (*worker, error) {
	topic := cfg.Kafka.SnapshotsTopicName
	if topic == "" {
		topic = "tracking.snapshots"
	}
	pollInterval := time.Duration(cfg.TrackSync.PollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = coordinator.DefaultPollInterval
	}
	snapshotTTL := time.Duration(cfg.TrackSync.SnapshotTTLSeconds) * time.Second
	if snapshotTTL <= 0 {
		snapshotTTL = 24 * time.Hour
	}
	rlPerMin := int64(cfg.TrackSync.WorkerRateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 30
	}

	client, err := f.newClient(cfg)
	if err != nil {
		return nil, err
	}

	accountID := accountIDFor(cfg)
	ok, err := client.ValidateToken(ctx)
	switch {
	case err != nil:
		slog.Warn("17track token check failed", "account", accountID, "error", err.Error())
	case !ok:
		return nil, fmt.Errorf("17track rejected the api key of account %s", accountID)
	}

	w := &worker{
		cfg:                cfg,
		accountID:          accountID,
		client:             client,
		rl:                 f.newRateLimiter(cfg),
		rateLimitPerMinute: rlPerMin,
	}
	if c, ok := w.rl.(interface{ Close() error }); ok {
		w.closers = append(w.closers, func() { _ = c.Close() })
	}

	producer, closeProducer := f.newProducer(cfg)
	w.closers = append(w.closers, closeProducer)
	c, closeCache := f.newCache(cfg)
	w.closers = append(w.closers, closeCache)
	w.cache = c

	reg, gatherer := f.newRegistry()
	w.gatherer = gatherer
	metrics := obs.NewRefreshMetrics(reg)

	def := coordinator.DefaultPlannerConfig()
	w.coord = coordinator.New(client, coordinator.Options{
		PollInterval:  pollInterval,
		ShowArchived:  cfg.SeventeenTrack.ShowArchived,
		ShowDelivered: cfg.SeventeenTrack.ShowDelivered,
	}).
		WithPlanner(coordinator.PlannerConfig{
			Backoff1: secondsOr(cfg.TrackSync.Backoff1Seconds, def.Backoff1),
			Backoff2: secondsOr(cfg.TrackSync.Backoff2Seconds, def.Backoff2),
			Backoff3: secondsOr(cfg.TrackSync.Backoff3Seconds, def.Backoff3),
		}).
		WithObserver(metrics).
		WithSinks(
			metrics,
			publisher.NewCacheSink(c, accountID, snapshotTTL),
			publisher.NewKafkaSink(producer, topic, accountID),
		)

	return w, nil
}

func secondsOr(n int, def time.Duration) time.Duration {
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

func RunTrackWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	w, err := newWorker(ctx, cfg, f)
	if err != nil {
		return err
	}
	defer w.Close()

	slog.Info("track worker started",
		"account", w.accountID,
		"poll_interval", w.coord.Options().PollInterval.String(),
	)

	if addr := cfg.TrackSync.WorkerHTTPAddr; addr != "" {
		go func() {
			opts := workerHTTPOpts{httpAddr: addr, swaggerPath: os.Getenv("workerSwaggerPath"), worker: w}
			if err := runWorkerHTTPServer(ctx, opts); err != nil && ctx.Err() == nil {
				slog.Error("worker http server", "error", err.Error())
			}
		}()
	}

	return w.coord.Run(ctx)
}
