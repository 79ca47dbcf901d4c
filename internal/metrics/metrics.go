package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the process-wide instrument set. One instance is wired through
// the daemon; tests build their own against a private registry.
type Metrics struct {
	registry *prometheus.Registry

	SyncRuns      *prometheus.CounterVec
	UpdatesStored prometheus.Counter
	TasksUpserted prometheus.Counter
	Commands      *prometheus.CounterVec
	Regenerations prometheus.Counter
	PlanRevision  prometheus.Gauge
	SyncDuration  *prometheus.HistogramVec
}

// New builds and registers the instrument set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry: registry,
		SyncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mira",
			Name:      "sync_runs_total",
			Help:      "Sync attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		UpdatesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mira",
			Name:      "updates_stored_total",
			Help:      "Update cards persisted after dedupe.",
		}),
		TasksUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mira",
			Name:      "tasks_upserted_total",
			Help:      "Task upserts, including merges into existing tasks.",
		}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mira",
			Name:      "commands_total",
			Help:      "Chat commands by firewall verdict.",
		}, []string{"verdict"}),
		Regenerations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mira",
			Name:      "plan_regenerations_total",
			Help:      "Full plan regenerations.",
		}),
		PlanRevision: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mira",
			Name:      "plan_revision",
			Help:      "Current plan revision id.",
		}),
		SyncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mira",
			Name:      "sync_duration_seconds",
			Help:      "Wall time of one account sync pass.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"provider"}),
	}
	registry.MustRegister(
		m.SyncRuns, m.UpdatesStored, m.TasksUpserted,
		m.Commands, m.Regenerations, m.PlanRevision, m.SyncDuration,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
