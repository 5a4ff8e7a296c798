// Package metrics holds the Prometheus collectors for round tracking.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific collectors.
	Registry = prometheus.NewRegistry()

	HoleSaves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "golftrack",
			Subsystem: "session",
			Name:      "hole_saves_total",
			Help:      "Hole upserts by outcome (ok, transient, rejected, skipped).",
		},
		[]string{"outcome"},
	)

	SaveWatchdogFires = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "golftrack",
			Subsystem: "session",
			Name:      "save_watchdog_fires_total",
			Help:      "Times the saving flag was force-cleared before the write settled.",
		},
	)

	SaveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "golftrack",
			Subsystem: "session",
			Name:      "hole_save_duration_seconds",
			Help:      "Duration of hole upserts against the remote store.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	Finalizations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "golftrack",
			Subsystem: "rounds",
			Name:      "finalizations_total",
			Help:      "Round finalization attempts by outcome.",
		},
		[]string{"outcome"},
	)

	Deletions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "golftrack",
			Subsystem: "rounds",
			Name:      "deletions_total",
			Help:      "Round deletion attempts by outcome.",
		},
		[]string{"outcome"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "golftrack",
			Subsystem: "session",
			Name:      "active",
			Help:      "Client sessions currently held in memory.",
		},
	)
)

func init() {
	Registry.MustRegister(
		HoleSaves,
		SaveWatchdogFires,
		SaveDuration,
		Finalizations,
		Deletions,
		ActiveSessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
