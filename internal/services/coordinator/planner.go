package coordinator

import "time"

type PlannerConfig struct {
	Interval time.Duration // default: 20 minutes

	Backoff1 time.Duration // default: 1 minute
	Backoff2 time.Duration // default: 2 minutes
	Backoff3 time.Duration // default: 5 minutes
}

func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		Interval: 20 * time.Minute,
		Backoff1: 1 * time.Minute,
		Backoff2: 2 * time.Minute,
		Backoff3: 5 * time.Minute,
	}
}

// Planner decides when the next refresh runs.
type Planner struct {
	cfg PlannerConfig
}

func NewPlanner(cfg PlannerConfig) *Planner {
	def := DefaultPlannerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Backoff1 <= 0 {
		cfg.Backoff1 = def.Backoff1
	}
	if cfg.Backoff2 <= 0 {
		cfg.Backoff2 = def.Backoff2
	}
	if cfg.Backoff3 <= 0 {
		cfg.Backoff3 = def.Backoff3
	}
	return &Planner{cfg: cfg}
}

// NextDelay returns the wait before the next refresh given consecutive failures so far.
// A retry never waits longer than the regular interval.
func (p *Planner) NextDelay(failCount int) time.Duration {
	var d time.Duration
	switch {
	case failCount <= 0:
		return p.cfg.Interval
	case failCount == 1:
		d = p.cfg.Backoff1
	case failCount == 2:
		d = p.cfg.Backoff2
	default:
		d = p.cfg.Backoff3
	}
	return min(d, p.cfg.Interval)
}

func (p *Planner) Interval() time.Duration {
	return p.cfg.Interval
}
