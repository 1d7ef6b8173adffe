// Package metrics provides Prometheus metrics collection for conftree.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for conftree.
type Collector struct {
	// Document metrics
	DocumentLoads *prometheus.CounterVec
	DocumentSaves *prometheus.CounterVec
	SaveConflicts *prometheus.CounterVec
	LoadDuration  *prometheus.HistogramVec
	SecretsSealed prometheus.Counter

	// File watch metrics
	Reloads      prometheus.Counter
	ReloadErrors prometheus.Counter
	LastReload   prometheus.Gauge
}

// New creates a new metrics collector with all metrics registered on
// the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		// Document metrics
		DocumentLoads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "conftree",
				Name:      "document_loads_total",
				Help:      "Total number of document loads",
			},
			[]string{"name"},
		),
		DocumentSaves: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "conftree",
				Name:      "document_saves_total",
				Help:      "Total number of document versions saved",
			},
			[]string{"name"},
		),
		SaveConflicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "conftree",
				Name:      "save_conflicts_total",
				Help:      "Total number of saves rejected by a version conflict",
			},
			[]string{"name"},
		),
		LoadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "conftree",
				Name:      "load_duration_seconds",
				Help:      "Document load duration in seconds",
				Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"name"},
		),
		SecretsSealed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "conftree",
				Name:      "secrets_sealed_total",
				Help:      "Total number of secret values sealed on save",
			},
		),

		// File watch metrics
		Reloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "conftree",
				Name:      "reloads_total",
				Help:      "Total number of successful file reloads",
			},
		),
		ReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "conftree",
				Name:      "reload_errors_total",
				Help:      "Total number of file reload errors",
			},
		),
		LastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "conftree",
				Name:      "last_reload_timestamp",
				Help:      "Unix timestamp of last successful file reload",
			},
		),
	}
}
