package metrics

import (
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "suiterun"

var (
	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Total number of suite execution submissions, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	StatusRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_requests_total",
			Help:      "Total number of execution status requests, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	StatusRequestLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "status_request_latency_seconds",
			Help:      "Latency of execution status requests (seconds).",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	PollRoundsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_rounds_total",
			Help:      "Total number of polling rounds executed.",
		},
	)

	ExecutionsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_completed_total",
			Help:      "Total number of executions observed in a terminal state, labeled by final status.",
		},
		[]string{"status"},
	)

	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of runs, labeled by aggregate outcome.",
		},
		[]string{"outcome"},
	)

	RunDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time from submission to aggregate outcome (seconds).",
			Buckets:   []float64{1, 10, 30, 60, 120, 300, 600, 1800, 3600, 7200},
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		SubmissionsTotal,
		StatusRequestsTotal,
		StatusRequestLatencySeconds,
		PollRoundsTotal,
		ExecutionsCompletedTotal,
		RunsTotal,
		RunDurationSeconds,
	)
}

// WriteTextfile dumps the default registry in the text exposition format, for
// node_exporter's textfile collector or a CI artifact.
func WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
