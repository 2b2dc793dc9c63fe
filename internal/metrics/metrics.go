// Package metrics provides Prometheus metrics for the model trainer.
// It covers trial throughput and latency, the selected model's scores,
// quality gate rejections, experiment tracking failures and persisted
// artifacts. A batch run pushes its final values to a Pushgateway.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds all Prometheus metrics for a training invocation.
type Metrics struct {
	// Search metrics
	Trials        *prometheus.CounterVec   // Trials attempted, by family
	TrialFailures *prometheus.CounterVec   // Trials that failed to train, by family
	TrialDuration *prometheus.HistogramVec // Wall time per trial, by family

	// Selection metrics
	BestScore      *prometheus.GaugeVec   // Winning model's score, by split
	GateRejections *prometheus.CounterVec // Quality gate rejections, by reason

	// Output metrics
	TrackingFailures prometheus.Counter // Experiment tracking writes that failed
	ArtifactsBuilt   prometheus.Counter // Trainer artifacts persisted
	ErrorsTotal      prometheus.Counter // Training invocations that ended in error

	gatherer prometheus.Gatherer
}

// New creates metrics on a fresh registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry creates metrics registered on registerer. When registerer
// is also a Gatherer it is the source for Push.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	m := &Metrics{
		Trials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trainer_trials_total",
			Help: "Total number of search trials attempted",
		}, []string{"family"}),
		TrialFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trainer_trial_failures_total",
			Help: "Total number of search trials that failed to train",
		}, []string{"family"}),
		TrialDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trainer_trial_duration_seconds",
			Help:    "Wall time of a single search trial in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"family"}),
		BestScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trainer_best_score",
			Help: "Score of the selected model",
		}, []string{"split"}),
		GateRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trainer_gate_rejections_total",
			Help: "Total number of selected models rejected by the quality gate",
		}, []string{"reason"}),
		TrackingFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "trainer_tracking_failures_total",
			Help: "Total number of experiment tracking writes that failed",
		}),
		ArtifactsBuilt: factory.NewCounter(prometheus.CounterOpts{
			Name: "trainer_artifacts_built_total",
			Help: "Total number of trainer artifacts persisted",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "trainer_errors_total",
			Help: "Total number of training invocations that ended in error",
		}),
		gatherer: prometheus.DefaultGatherer,
	}
	if g, ok := registerer.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

func (m *Metrics) TrialsInc(family string) {
	m.Trials.WithLabelValues(family).Inc()
}

func (m *Metrics) TrialFailuresInc(family string) {
	m.TrialFailures.WithLabelValues(family).Inc()
}

func (m *Metrics) TrialDurationObserve(family string, seconds float64) {
	m.TrialDuration.WithLabelValues(family).Observe(seconds)
}

// SetBestScores records the winning model's train and test scores.
func (m *Metrics) SetBestScores(train, test float64) {
	m.BestScore.WithLabelValues("train").Set(train)
	m.BestScore.WithLabelValues("test").Set(test)
}

func (m *Metrics) GateRejectionsInc(reason string) {
	m.GateRejections.WithLabelValues(reason).Inc()
}

// Push sends every gathered metric to the Pushgateway at url under job.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(m.gatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}

// Handler serves the gathered metrics for scraping while a run is in
// progress.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
