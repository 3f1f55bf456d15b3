// Package metrics collects per-run counters and pushes them to a Prometheus Pushgateway.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Job is the Pushgateway job name of a notifier run.
const Job = "feed_notifier"

// Metrics holds the collectors of a single run.
type Metrics struct {
	registry *prometheus.Registry

	EntriesFetched *prometheus.CounterVec
	EntriesNew     *prometheus.CounterVec
	EntriesStored  *prometheus.CounterVec
	Deliveries     *prometheus.CounterVec
	TagFailures    *prometheus.CounterVec
	RunDuration    prometheus.Gauge
	LastSuccess    prometheus.Gauge
}

// New creates collectors registered on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		EntriesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feed_notifier_entries_fetched_total",
			Help: "Feed entries fetched, per tag.",
		}, []string{"tag"}),
		EntriesNew: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feed_notifier_entries_new_total",
			Help: "Feed entries not seen before, per tag.",
		}, []string{"tag"}),
		EntriesStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feed_notifier_entries_stored_total",
			Help: "Feed entries recorded as seen, per tag.",
		}, []string{"tag"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feed_notifier_deliveries_total",
			Help: "Notification messages by sink and result.",
		}, []string{"sink", "result"}),
		TagFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feed_notifier_tag_failures_total",
			Help: "Tags that failed, by pipeline stage.",
		}, []string{"stage"}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "feed_notifier_run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "feed_notifier_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}),
	}

	m.registry.MustRegister(
		m.EntriesFetched,
		m.EntriesNew,
		m.EntriesStored,
		m.Deliveries,
		m.TagFailures,
		m.RunDuration,
		m.LastSuccess,
	)
	return m
}

// Registry returns the registry holding the run's collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRun records the duration of a run and, when ok, its completion time.
// A failed run drops LastSuccess from the registry so a push leaves the
// gateway's previous value in place.
func (m *Metrics) ObserveRun(started time.Time, ok bool) {
	now := time.Now()
	m.RunDuration.Set(now.Sub(started).Seconds())
	if ok {
		m.LastSuccess.Set(float64(now.Unix()))
		return
	}
	m.registry.Unregister(m.LastSuccess)
}

// Push sends the collected metrics to the Pushgateway at url. Only metrics
// with the pushed names are replaced in the job's group.
func (m *Metrics) Push(ctx context.Context, url string) error {
	if err := push.New(url, Job).Gatherer(m.registry).AddContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
