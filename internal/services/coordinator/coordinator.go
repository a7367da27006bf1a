package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/TrackSync/internal/models"
	"github.com/pkg/errors"
)

const DefaultPollInterval = 20 * time.Minute

type PackageClient interface {
	GetPackages(ctx context.Context) ([]*models.Package, error)
}

// SnapshotSink receives every snapshot right after it is published.
type SnapshotSink interface {
	HandleSnapshot(ctx context.Context, s *Snapshot) error
}

// Observer is notified about every finished refresh attempt.
type Observer interface {
	ObserveRefresh(d time.Duration, err error)
}

// Options are supplied by the caller and never changed by the coordinator.
// ShowArchived and ShowDelivered are display filters for consumers; the snapshot is always complete.
type Options struct {
	PollInterval  time.Duration
	ShowArchived  bool
	ShowDelivered bool
}

type Coordinator struct {
	client   PackageClient
	sinks    []SnapshotSink
	observer Observer
	planner  *Planner
	opts     Options

	refreshMu sync.Mutex
	current   atomic.Pointer[Snapshot]
	fresh     atomic.Bool
	failCount atomic.Int64

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastRefreshUnixNano atomic.Int64
	lastSuccessUnixNano atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalRefreshes      atomic.Int64
	totalErrors         atomic.Int64
	totalSinkErrors     atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(client PackageClient, opts Options) *Coordinator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Coordinator{
		client:            client,
		opts:              opts,
		planner:           NewPlanner(PlannerConfig{Interval: opts.PollInterval}),
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (c *Coordinator) WithSinks(sinks ...SnapshotSink) *Coordinator {
	c.sinks = append(c.sinks, sinks...)
	return c
}

func (c *Coordinator) WithObserver(o Observer) *Coordinator {
	c.observer = o
	return c
}

// WithPlanner replaces the retry schedule; the interval always comes from Options.
func (c *Coordinator) WithPlanner(cfg PlannerConfig) *Coordinator {
	cfg.Interval = c.opts.PollInterval
	c.planner = NewPlanner(cfg)
	return c
}

func (c *Coordinator) Options() Options {
	return c.opts
}

// Snapshot returns the last published snapshot, or nil before the first successful refresh.
// A failed refresh keeps the previous snapshot; use Fresh to tell the two apart.
func (c *Coordinator) Snapshot() *Snapshot {
	return c.current.Load()
}

// Fresh reports whether the last refresh succeeded.
func (c *Coordinator) Fresh() bool {
	return c.fresh.Load()
}

// Refresh fetches all packages and publishes a new snapshot.
// On error the previous snapshot stays in place and the coordinator turns stale.
func (c *Coordinator) Refresh(ctx context.Context) (*Snapshot, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	start := time.Now().UTC()
	c.lastRefreshUnixNano.Store(start.UnixNano())
	c.totalRefreshes.Add(1)

	snap, err := c.fetch(ctx)
	if c.observer != nil {
		c.observer.ObserveRefresh(time.Since(start), err)
	}
	if err != nil {
		c.fresh.Store(false)
		c.failCount.Add(1)
		c.totalErrors.Add(1)
		c.setLastError(err.Error())
		return nil, err
	}

	c.current.Store(snap)
	c.fresh.Store(true)
	c.failCount.Store(0)
	c.lastSuccessUnixNano.Store(time.Now().UTC().UnixNano())
	c.setLastError("")

	for _, sink := range c.sinks {
		if err := sink.HandleSnapshot(ctx, snap); err != nil {
			c.totalSinkErrors.Add(1)
			slog.Error("snapshot sink", "error", err.Error())
		}
	}
	return snap, nil
}

func (c *Coordinator) fetch(ctx context.Context) (*Snapshot, error) {
	pkgs, err := c.client.GetPackages(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "refresh packages")
	}
	snap := BuildSnapshot(pkgs)
	// Cancelled while fetching: nothing gets committed.
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "refresh packages")
	}
	return snap, nil
}

// Trigger forces an immediate refresh (best-effort, non-blocking).
func (c *Coordinator) Trigger() {
	c.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case c.triggerCh <- struct{}{}:
	default:
	}
}

// Run refreshes right away and then on the planner schedule until ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	t := time.NewTimer(0)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		case <-c.triggerCh:
			if !t.Stop() {
				select {
				case <-t.C:
				default:
				}
			}
		}

		if _, err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
			slog.Error("refresh packages", "error", err.Error(), "fail_count", c.failCount.Load())
		}
		t.Reset(c.planner.NextDelay(int(c.failCount.Load())))
	}
}

type Stats struct {
	StartedAt       time.Time  `json:"startedAt"`
	LastRefreshAt   *time.Time `json:"lastRefreshAt,omitempty"`
	LastSuccessAt   *time.Time `json:"lastSuccessAt,omitempty"`
	LastTriggerAt   *time.Time `json:"lastTriggerAt,omitempty"`
	TotalRefreshes  int64      `json:"totalRefreshes"`
	TotalErrors     int64      `json:"totalErrors"`
	TotalSinkErrors int64      `json:"totalSinkErrors"`
	FailCount       int64      `json:"failCount"`
	Fresh           bool       `json:"fresh"`
	Packages        int        `json:"packages"`
	LastError       string     `json:"lastError,omitempty"`
}

func (c *Coordinator) Stats() Stats {
	st := Stats{
		StartedAt:       time.Unix(0, c.startedAtUnixNano).UTC(),
		TotalRefreshes:  c.totalRefreshes.Load(),
		TotalErrors:     c.totalErrors.Load(),
		TotalSinkErrors: c.totalSinkErrors.Load(),
		FailCount:       c.failCount.Load(),
		Fresh:           c.fresh.Load(),
	}
	st.LastRefreshAt = unixNanoPtr(c.lastRefreshUnixNano.Load())
	st.LastSuccessAt = unixNanoPtr(c.lastSuccessUnixNano.Load())
	st.LastTriggerAt = unixNanoPtr(c.lastTriggerUnixNano.Load())
	if s := c.current.Load(); s != nil {
		st.Packages = s.Len()
	}
	c.lastErrorMu.Lock()
	st.LastError = c.lastError
	c.lastErrorMu.Unlock()
	return st
}

func (c *Coordinator) setLastError(s string) {
	c.lastErrorMu.Lock()
	c.lastError = s
	c.lastErrorMu.Unlock()
}

func unixNanoPtr(n int64) *time.Time {
	if n <= 0 {
		return nil
	}
	t := time.Unix(0, n).UTC()
	return &t
}
