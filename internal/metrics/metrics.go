package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every swur collector. A dedicated registry keeps Go runtime and
// process collectors out of what is pushed at the end of a run.
var Registry = prometheus.NewRegistry()

// Upstream API metrics
var (
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swur_api_requests_total",
			Help: "Total number of Sonarr API calls by method, endpoint and status code.",
		},
		[]string{"method", "endpoint", "code"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swur_api_request_duration_seconds",
			Help:    "Duration of Sonarr API calls.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// Reconciliation metrics, set once per run
var (
	TrackedSeries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "swur_tracked_series",
			Help: "Number of series whose latest season was reconciled in the last run.",
		},
	)

	EpisodesScanned = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "swur_episodes_scanned",
			Help: "Number of latest-season episodes with an air date inspected in the last run.",
		},
	)

	EpisodesPending = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swur_episodes_pending",
			Help: "Number of episodes found in the wrong monitored state in the last run.",
		},
		[]string{"action"},
	)

	EpisodesUpdated = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swur_episodes_updated",
			Help: "Number of episodes whose monitored flag was changed in the last run.",
		},
		[]string{"action"},
	)

	LastRunSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "swur_last_run_success",
			Help: "1 if the last run completed without error, 0 otherwise.",
		},
	)

	LastRunDuration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "swur_last_run_duration_seconds",
			Help: "Wall-clock duration of the last run.",
		},
	)

	LastRunTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "swur_last_run_timestamp_seconds",
			Help: "Unix time at which the last run finished.",
		},
	)
)

func init() {
	Registry.MustRegister(
		APIRequestsTotal,
		APIRequestDuration,
		TrackedSeries,
		EpisodesScanned,
		EpisodesPending,
		EpisodesUpdated,
		LastRunSuccess,
		LastRunDuration,
		LastRunTimestamp,
	)
}
