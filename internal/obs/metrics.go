package obs

import (
	"context"
	"time"

	"github.com/BearBump/TrackSync/internal/services/coordinator"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tracksync"

// RefreshMetrics observes coordinator refreshes and exports bucket sizes.
type RefreshMetrics struct {
	Refreshes        *prometheus.CounterVec
	RefreshDuration  prometheus.Histogram
	PackagesByStatus *prometheus.GaugeVec
	Fresh            prometheus.Gauge
}

// NewRefreshMetrics creates and registers the collectors on reg (the default registerer when nil).
func NewRefreshMetrics(reg prometheus.Registerer) *RefreshMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &RefreshMetrics{
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Count of 17TRACK refresh attempts by result.",
		}, []string{"result"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of 17TRACK refresh attempts.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		PackagesByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "packages",
			Help:      "Number of packages per status slug in the current snapshot.",
		}, []string{"status"}),
		Fresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_fresh",
			Help:      "1 when the last refresh succeeded, 0 otherwise.",
		}),
	}
	reg.MustRegister(m.Refreshes, m.RefreshDuration, m.PackagesByStatus, m.Fresh)
	return m
}

func (m *RefreshMetrics) ObserveRefresh(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		m.Fresh.Set(0)
	} else {
		m.Fresh.Set(1)
	}
	m.Refreshes.WithLabelValues(result).Inc()
	m.RefreshDuration.Observe(d.Seconds())
}

// HandleSnapshot replaces the per-status gauges; slugs gone from the snapshot are dropped.
func (m *RefreshMetrics) HandleSnapshot(ctx context.Context, s *coordinator.Snapshot) error {
	m.PackagesByStatus.Reset()
	for _, b := range s.Summary() {
		m.PackagesByStatus.WithLabelValues(b.Slug).Set(float64(b.Quantity))
	}
	return nil
}
