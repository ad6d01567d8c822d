// Package metrics exposes Prometheus instruments for the predictor.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "match_predictor"

var (
	// predictionsTotal counts fused predictions.
	// Labels: winner (HOME, DRAW, AWAY), confidence (HIGH, MEDIUM, LOW)
	predictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fusion",
		Name:      "predictions_total",
		Help:      "Total predictions produced by the fusion engine",
	}, []string{"winner", "confidence"})

	// predictionLatency measures signal assembly plus fusion
	predictionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "fusion",
		Name:      "latency_seconds",
		Help:      "Time to assemble signals and fuse one prediction",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	// degradedSignals counts providers that fell back to the neutral default.
	// Labels: signal
	degradedSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "signals",
		Name:      "degraded_total",
		Help:      "Signals replaced by neutral defaults",
	}, []string{"signal"})

	// correctionsApplied counts coefficient changes made by learning runs.
	// Labels: type
	correctionsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "learning",
		Name:      "corrections_total",
		Help:      "Coefficient corrections applied by learning runs",
	}, []string{"type"})

	// batchAccuracy is the accuracy of the last learning batch
	batchAccuracy = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "learning",
		Name:      "batch_accuracy",
		Help:      "Accuracy of the most recent learning batch",
	})

	// retrains counts retrain attempts.
	// Labels: status (COMMITTED, NO_IMPROVEMENT, NOT_ELIGIBLE, TRAINING_FAILED, BUSY)
	retrains = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "evolution",
		Name:      "retrains_total",
		Help:      "Retrain attempts by result",
	}, []string{"status"})

	// modelBuild is the current build number of the model version
	modelBuild = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "evolution",
		Name:      "model_build",
		Help:      "Build component of the current model version",
	})

	// jobRuns counts scheduled job executions.
	// Labels: job, status (success, error, skipped)
	jobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "job_runs_total",
		Help:      "Scheduled job executions",
	}, []string{"job", "status"})
)

// RecordPrediction records one fused prediction
func RecordPrediction(winner, confidence string, took time.Duration) {
	predictionsTotal.WithLabelValues(winner, confidence).Inc()
	predictionLatency.Observe(took.Seconds())
}

// RecordDegraded records a signal that fell back to its neutral default
func RecordDegraded(signal string) {
	degradedSignals.WithLabelValues(signal).Inc()
}

// RecordLearning records the outcome of a learning run
func RecordLearning(accuracy float64, correctionTypes []string) {
	batchAccuracy.Set(accuracy)
	for _, typ := range correctionTypes {
		correctionsApplied.WithLabelValues(typ).Inc()
	}
}

// RecordRetrain records a retrain attempt and the resulting build
func RecordRetrain(status string, build int) {
	retrains.WithLabelValues(status).Inc()
	modelBuild.Set(float64(build))
}

// RecordJob records a scheduler run
func RecordJob(job, status string) {
	jobRuns.WithLabelValues(job, status).Inc()
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
