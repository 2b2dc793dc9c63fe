// Package trainer runs one model training invocation: search the candidate
// families, evaluate the winner, enforce the quality gate, record the
// experiment run and persist the combined model.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"network-security/internal/cfg"
	"network-security/internal/dataset"
	"network-security/internal/errs"
	"network-security/internal/gate"
	"network-security/internal/metrics"
	"network-security/internal/ml"
	"network-security/internal/model"
	"network-security/internal/preprocess"
	"network-security/internal/search"
	"network-security/internal/tracking"
)

const (
	importanceRepeats = 3
	topFeatures       = 10
)

// ModelTrainer wires the training stages together.
type ModelTrainer struct {
	config   cfg.TrainerConfig
	registry search.Registry
	engine   *search.Engine
	recorder *tracking.Recorder
	builder  *ml.Builder
	metrics  *metrics.Metrics
	seed     int64
	metric   model.Metric
}

// Deps are the collaborators of a ModelTrainer. Recorder and Metrics may
// be nil.
type Deps struct {
	Registry search.Registry
	Search   search.Config
	Builder  *ml.Builder
	Recorder *tracking.Recorder
	Metrics  *metrics.Metrics
}

// New creates a trainer enforcing the gate in c.
func New(c cfg.TrainerConfig, deps Deps) *ModelTrainer {
	var observer search.MetricsInterface
	if deps.Metrics != nil {
		observer = deps.Metrics
	}
	engine := search.NewEngine(deps.Search, observer)
	metric := deps.Search.Metric
	if metric == "" {
		metric = model.MetricAccuracy
	}
	return &ModelTrainer{
		config:   c,
		registry: deps.Registry,
		engine:   engine,
		recorder: deps.Recorder,
		builder:  deps.Builder,
		metrics:  deps.Metrics,
		seed:     deps.Search.Seed,
		metric:   metric,
	}
}

// FromSettings builds a trainer from loaded settings. Runs go to MLflow
// when a tracking URI is configured and to a local bbolt store otherwise.
// The returned closer releases the tracking backend.
func FromSettings(s cfg.Settings, m *metrics.Metrics) (*ModelTrainer, io.Closer, error) {
	metric, err := model.ParseMetric(s.Metric)
	if err != nil {
		return nil, nil, errs.New(errs.ErrInvalidInput, errs.Origin{Component: "trainer", Operation: "configure"}, err)
	}
	reg, err := search.RegistryFromConfig(s.Candidates)
	if err != nil {
		return nil, nil, err
	}
	builder, err := ml.NewBuilder(s.Trainer)
	if err != nil {
		return nil, nil, err
	}

	var (
		tracker tracking.Tracker
		closer  io.Closer = nopCloser{}
	)
	if s.TrackingURI != "" {
		tracker = tracking.NewMLflow(s.TrackingURI, s.ExperimentName, s.TrackingUsername, s.TrackingPassword, s.TrackingTimeout)
		log.Info().Str("uri", s.TrackingURI).Str("experiment", s.ExperimentName).Msg("Tracking runs in MLflow")
	} else {
		bolt, err := tracking.NewBolt(s.TrackingDBPath)
		if err != nil {
			return nil, nil, errs.New(errs.ErrPersistence, errs.Origin{Component: "trainer", Operation: "configure", Input: s.TrackingDBPath}, err)
		}
		tracker, closer = bolt, bolt
		log.Info().Str("path", s.TrackingDBPath).Msg("Tracking runs locally")
	}

	var failures metrics.Counter
	if m != nil {
		failures = m.TrackingFailures
	}

	t := New(s.Trainer, Deps{
		Registry: reg,
		Search: search.Config{
			Metric:  metric,
			CVFolds: s.CVFolds,
			Workers: s.Workers,
			Seed:    s.Seed,
			Timeout: s.Timeout,
		},
		Builder:  builder,
		Recorder: tracking.NewRecorder(tracker, failures),
		Metrics:  m,
	})
	return t, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Run loads the transformed arrays and the preprocessor named by artifact
// and trains on them.
func (t *ModelTrainer) Run(ctx context.Context, artifact dataset.TransformationArtifact) (*ml.TrainerArtifact, error) {
	log.Info().
		Str("train", artifact.TrainPath).
		Str("test", artifact.TestPath).
		Str("preprocessor", artifact.PreprocessorPath).
		Msg("Loading transformation artifact")

	train, err := dataset.Load(artifact.TrainPath)
	if err != nil {
		return nil, t.fail(err)
	}
	test, err := dataset.Load(artifact.TestPath)
	if err != nil {
		return nil, t.fail(err)
	}
	pre, err := preprocess.Load(artifact.PreprocessorPath)
	if err != nil {
		return nil, t.fail(err)
	}
	return t.Train(ctx, train, test, pre)
}

// Train selects the best model on train/test, gates it and persists it
// together with preprocessor.
func (t *ModelTrainer) Train(ctx context.Context, train, test dataset.Dataset, preprocessor *preprocess.Pipeline) (*ml.TrainerArtifact, error) {
	if t.builder == nil {
		return nil, t.fail(errs.Newf(errs.ErrInvalidInput, errs.Origin{Component: "trainer", Operation: "train"}, "no artifact builder configured"))
	}
	if preprocessor != nil && preprocessor.Features != train.Cols() {
		return nil, t.fail(errs.Newf(errs.ErrInvalidInput, errs.Origin{Component: "trainer", Operation: "train"},
			"preprocessor emits %d features, arrays have %d", preprocessor.Features, train.Cols()))
	}

	sel, err := t.engine.Search(ctx, t.registry, train, test)
	if err != nil {
		return nil, t.fail(err)
	}
	best := sel.Best

	for family, score := range sel.Report() {
		log.Info().Str("family", string(family)).Float64("test_score", score).Msg("Family result")
	}

	trainMetric := model.ClassificationReport(train.Y, best.Model.Predict(train.X))
	testMetric := model.ClassificationReport(test.Y, best.Model.Predict(test.X))
	log.Info().
		Float64("train_f1", trainMetric.F1).
		Float64("train_precision", trainMetric.Precision).
		Float64("train_recall", trainMetric.Recall).
		Float64("test_f1", testMetric.F1).
		Float64("test_precision", testMetric.Precision).
		Float64("test_recall", testMetric.Recall).
		Msg("Classification report")
	if t.metrics != nil {
		t.metrics.SetBestScores(best.TrainScore, best.TestScore)
	}

	if err := gate.Check(best, t.config); err != nil {
		if t.metrics != nil {
			t.metrics.GateRejectionsInc(rejectionReason(err))
		}
		log.Warn().Err(err).Msg("Selected model rejected by quality gate")
		return nil, t.fail(err)
	}

	importances := ml.PermutationImportance(best.Model, test, t.metric, importanceRepeats, t.seed)
	top := ml.TopFeatures(importances, topFeatures)

	t.recorder.Record(ctx, sel, trainMetric, testMetric, t.config.ModelPath)

	artifact, err := t.builder.Build(sel, preprocessor, ml.Report{
		TrainMetric:     trainMetric,
		TestMetric:      testMetric,
		TopFeatures:     top,
		TrainingSamples: train.Rows(),
	})
	if err != nil {
		return nil, t.fail(err)
	}
	if t.metrics != nil {
		t.metrics.ArtifactsBuilt.Inc()
	}
	return artifact, nil
}

func (t *ModelTrainer) fail(err error) error {
	if t.metrics != nil {
		t.metrics.ErrorsTotal.Inc()
	}
	return fmt.Errorf("model trainer: %w", err)
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, errs.ErrBelowAccuracyThreshold):
		return "below_accuracy"
	case errors.Is(err, errs.ErrOverfitUnderfit):
		return "overfit_underfit"
	default:
		return "other"
	}
}
