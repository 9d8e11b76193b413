// Package metrics defines the Prometheus instrumentation of the playset
// server. All metrics are prefixed with "playset_".
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playset_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playset_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Library metrics
var (
	LoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playset_library_loads_total",
			Help: "Total number of library loads by result",
		},
		[]string{"result"}, // "ok", "error", "canceled"
	)

	LoadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "playset_library_load_duration_seconds",
			Help:    "Duration of library loads in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	LoadFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playset_library_load_failures_total",
			Help: "Items and set files skipped during loads",
		},
	)

	Songs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "playset_library_songs",
			Help: "Number of songs in the universal set",
		},
	)

	Sets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "playset_library_sets",
			Help: "Number of named sets besides the universal set",
		},
	)

	FlattenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playset_flatten_total",
			Help: "Total number of set evaluations by result",
		},
		[]string{"result"}, // "ok", "parse", "reference", ...
	)

	FlattenDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "playset_flatten_duration_seconds",
			Help:    "Duration of set evaluations in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	EditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playset_edits_total",
			Help: "Total number of set edits by kind and result",
		},
		[]string{"kind", "result"},
	)
)
