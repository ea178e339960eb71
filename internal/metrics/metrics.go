// Package metrics provides Prometheus metrics for build sessions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Parsing
	stepsParsedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitesmith_steps_parsed_total",
			Help: "Steps extracted from model responses",
		},
		[]string{"kind"},
	)

	fragmentsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sitesmith_fragments_dropped_total",
			Help: "Malformed action fragments skipped by the parser",
		},
	)

	// Tree building
	stepsAppliedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sitesmith_steps_applied_total",
			Help: "Pending steps folded into the file tree",
		},
	)

	stepsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitesmith_steps_rejected_total",
			Help: "Steps rejected while folding into the file tree",
		},
		[]string{"reason"},
	)

	treeNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sitesmith_tree_nodes",
			Help: "Number of files and folders in the latest tree",
		},
	)

	// Sandbox
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitesmith_sandbox_transitions_total",
			Help: "Sandbox state transitions by target state",
		},
		[]string{"state"},
	)

	reconcileDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitesmith_reconcile_duration_seconds",
			Help:    "Time from reconcile request to serving or failure",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	// Upstream model
	llmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitesmith_llm_requests_total",
			Help: "Chat requests sent to the model provider",
		},
		[]string{"purpose", "status"},
	)

	llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitesmith_llm_request_duration_seconds",
			Help:    "Chat request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"purpose"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordParsed records the steps and dropped fragments of one parse.
func RecordParsed(kinds []string, dropped int) {
	for _, k := range kinds {
		stepsParsedTotal.WithLabelValues(k).Inc()
	}
	fragmentsDroppedTotal.Add(float64(dropped))
}

// RecordFold records the outcome of folding pending steps into the tree.
func RecordFold(applied int, rejectReasons []string, nodes int) {
	stepsAppliedTotal.Add(float64(applied))
	for _, r := range rejectReasons {
		stepsRejectedTotal.WithLabelValues(r).Inc()
	}
	treeNodes.Set(float64(nodes))
}

// RecordTransition counts a sandbox state change.
func RecordTransition(state string) {
	transitionsTotal.WithLabelValues(state).Inc()
}

// RecordReconcile records how long a reconcile took to settle.
func RecordReconcile(outcome string, duration time.Duration) {
	reconcileDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordLLMRequest records one chat request.
func RecordLLMRequest(purpose string, duration time.Duration, success bool) {
	llmRequestDuration.WithLabelValues(purpose).Observe(duration.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	llmRequestsTotal.WithLabelValues(purpose, status).Inc()
}
