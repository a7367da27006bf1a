package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/TrackSync/config"
	"github.com/BearBump/TrackSync/internal/broker/kafka"
	"github.com/BearBump/TrackSync/internal/cache/rediscache"
	"github.com/BearBump/TrackSync/internal/services/coordinator"
	"github.com/BearBump/TrackSync/internal/services/packages"
	"github.com/BearBump/TrackSync/internal/storage/pgpackages"
)

type trackAPIApp struct {
	ctx        context.Context
	cancel     context.CancelFunc
	opts       trackAPIOpts
	svc        *packages.Service
	consumer   *kafka.Consumer
	closeDB    func()
	closeCache func() error
}

func mustBootstrapTrackAPI() *trackAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config, %v", err))
	}

	opts := apiOptsFromConfig(cfg, swaggerPath)

	summaryTTL := time.Duration(cfg.TrackSync.SummaryTTLSeconds) * time.Second
	if summaryTTL <= 0 {
		summaryTTL = 10 * time.Minute
	}

	st := mustOpenPostgresWithRetry(cfg.Database.DSN(), 60*time.Second)
	rc := rediscache.New(cfg.Redis.Addr())
	svc := packages.New(st, rc, summaryTTL)

	consumer := kafka.NewConsumer([]string{cfg.Kafka.Addr()}, opts.topic, opts.consumerGroup)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &trackAPIApp{
		ctx:        ctx,
		cancel:     cancel,
		opts:       opts,
		svc:        svc,
		consumer:   consumer,
		closeDB:    st.Close,
		closeCache: rc.Close,
	}
}

func apiOptsFromConfig(cfg *config.Config, swaggerPath string) trackAPIOpts {
	httpAddr := cfg.TrackSync.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.TrackSync.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "track-api"
	}
	topic := cfg.Kafka.SnapshotsTopicName
	if topic == "" {
		topic = "tracking.snapshots"
	}
	return trackAPIOpts{
		httpAddr:      httpAddr,
		swaggerPath:   swaggerPath,
		topic:         topic,
		consumerGroup: consumerGroup,
		corsOrigins:   cfg.TrackSync.CORSAllowedOrigins,
		display: coordinator.Options{
			ShowArchived:  cfg.SeventeenTrack.ShowArchived,
			ShowDelivered: cfg.SeventeenTrack.ShowDelivered,
		},
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgpackages.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgpackages.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *trackAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeCache != nil {
		_ = a.closeCache()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *trackAPIApp) Run() error {
	return runTrackAPI(a.ctx, a.opts, a.svc, a.consumer)
}
