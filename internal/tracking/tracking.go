// Package tracking records one experiment run per training invocation.
//
// A Tracker is the backend: MLflowTracker talks to an MLflow tracking
// server over REST, BoltTracker keeps runs in a local bbolt file when no
// server is configured. Recorder builds the run from a search selection
// and never lets a tracking failure abort training.
package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"network-security/internal/metrics"
	"network-security/internal/model"
	"network-security/internal/search"
)

// Run is one experiment-tracking record.
type Run struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Params    map[string]string  `json:"params"`
	Metrics   map[string]float64 `json:"metrics"`
	Tags      map[string]string  `json:"tags"`
	StartTime time.Time          `json:"start_time"`
	EndTime   time.Time          `json:"end_time"`
}

// Tracker persists runs.
type Tracker interface {
	LogRun(ctx context.Context, run Run) error
}

const (
	TagFamily    = "model_family"
	TagModelPath = "model_path"
	TagMetric    = "selection_metric"
)

// NewRun builds the run for a selection: the winner's family and params,
// train and test classification scores, selection scores and the model
// location.
func NewRun(sel *search.Selection, trainMetric, testMetric model.ClassificationMetric, modelPath string) Run {
	best := sel.Best
	params := best.Params.StringMap()

	m := map[string]float64{
		"train_f1_score":        trainMetric.F1,
		"train_precision_score": trainMetric.Precision,
		"train_recall_score":    trainMetric.Recall,
		"test_f1_score":         testMetric.F1,
		"test_precision_score":  testMetric.Precision,
		"test_recall_score":     testMetric.Recall,
		"train_score":           best.TrainScore,
		"test_score":            best.TestScore,
		"trials":                float64(len(sel.Trials)),
		"failed_trials":         float64(len(sel.Failures)),
	}
	if best.CVScore != 0 {
		m["cv_score"] = best.CVScore
	}

	now := time.Now().UTC()
	return Run{
		Name:    fmt.Sprintf("%s-%s", best.Family, now.Format("20060102T150405")),
		Params:  params,
		Metrics: m,
		Tags: map[string]string{
			TagFamily:    string(best.Family),
			TagModelPath: modelPath,
			TagMetric:    string(sel.Metric),
		},
		StartTime: now.Add(-best.Duration),
		EndTime:   now,
	}
}

// Recorder writes the single run of a training invocation.
type Recorder struct {
	tracker  Tracker
	failures metrics.Counter
}

// NewRecorder creates a recorder. failures may be nil.
func NewRecorder(tracker Tracker, failures metrics.Counter) *Recorder {
	if failures == nil {
		failures = metrics.NopCounter()
	}
	return &Recorder{tracker: tracker, failures: failures}
}

// Record logs one run for sel. Errors are logged and counted, never
// returned.
func (r *Recorder) Record(ctx context.Context, sel *search.Selection, trainMetric, testMetric model.ClassificationMetric, modelPath string) {
	if r == nil || r.tracker == nil || sel == nil {
		return
	}
	run := NewRun(sel, trainMetric, testMetric, modelPath)
	if err := r.tracker.LogRun(ctx, run); err != nil {
		r.failures.Inc()
		log.Warn().Err(err).Str("run", run.Name).Msg("Experiment tracking failed, continuing")
		return
	}
	log.Info().Str("run", run.Name).Str("family", run.Tags[TagFamily]).Msg("Experiment run recorded")
}
