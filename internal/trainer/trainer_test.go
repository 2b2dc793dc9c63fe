package trainer

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"network-security/internal/cfg"
	"network-security/internal/dataset"
	"network-security/internal/errs"
	"network-security/internal/metrics"
	"network-security/internal/ml"
	"network-security/internal/model"
	"network-security/internal/preprocess"
	"network-security/internal/search"
	"network-security/internal/tracking"
)

const (
	memorizing model.Family = "trainer_test_memorizer"
	constant   model.Family = "trainer_test_constant"
)

// memorizer recalls training labels and predicts 0 for unseen rows.
type memorizer struct {
	seen map[string]float64
}

func (m *memorizer) Fit(x *mat.Dense, y []float64) error {
	m.seen = make(map[string]float64, len(y))
	for i := range y {
		m.seen[fmt.Sprint(x.RawRowView(i))] = y[i]
	}
	return nil
}

func (m *memorizer) Predict(x *mat.Dense) []float64 {
	r, _ := x.Dims()
	out := make([]float64, r)
	for i := range out {
		out[i] = m.seen[fmt.Sprint(x.RawRowView(i))]
	}
	return out
}

func (m *memorizer) Family() model.Family { return memorizing }

type ones struct{}

func (ones) Fit(*mat.Dense, []float64) error { return nil }

func (ones) Predict(x *mat.Dense) []float64 {
	r, _ := x.Dims()
	out := make([]float64, r)
	for i := range out {
		out[i] = 1
	}
	return out
}

func (ones) Family() model.Family { return constant }

func init() {
	model.Register(memorizing, func(model.Params, int64) (model.Classifier, error) {
		return &memorizer{}, nil
	}, nil)
	model.Register(constant, func(model.Params, int64) (model.Classifier, error) {
		return ones{}, nil
	}, nil)
}

func separable(t *testing.T, n, cols int, seed int64) dataset.Dataset {
	t.Helper()
	rnd := rand.New(rand.NewSource(seed))
	rows := make([][]float64, n)
	labels := make([]float64, n)
	for i := range rows {
		row := make([]float64, cols)
		margin := 0.5 + rnd.Float64()
		if i%2 == 0 {
			margin = -margin
		} else {
			labels[i] = 1
		}
		row[0] = margin
		for j := 1; j < cols; j++ {
			row[j] = (rnd.Float64() - 0.5) * 0.2
		}
		rows[i] = row
	}
	d, err := dataset.FromRows(rows, labels)
	require.NoError(t, err)
	return d
}

func identity(cols int) *preprocess.Pipeline {
	mean := make([]float64, cols)
	scale := make([]float64, cols)
	for i := range scale {
		scale[i] = 1
	}
	return preprocess.NewPipeline(cols, preprocess.Imputer(make([]float64, cols)), preprocess.Scaler(mean, scale))
}

type harness struct {
	trainer *ModelTrainer
	config  cfg.TrainerConfig
	runs    *tracking.BoltTracker
	metrics *metrics.Metrics
}

func newHarness(t *testing.T, reg search.Registry, minAccuracy, maxGap float64) harness {
	t.Helper()
	dir := t.TempDir()
	conf := cfg.TrainerConfig{
		ModelPath:     filepath.Join(dir, "model_trainer", "trained_model", "model.json"),
		FinalModelDir: filepath.Join(dir, "final_model"),
		ModelsDir:     filepath.Join(dir, "models"),
		MinAccuracy:   minAccuracy,
		MaxGap:        maxGap,
	}
	builder, err := ml.NewBuilder(conf)
	require.NoError(t, err)
	runs, err := tracking.NewBolt(filepath.Join(dir, "tracking.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = runs.Close() })

	m := metrics.New()
	tr := New(conf, Deps{
		Registry: reg,
		Search:   search.Config{Metric: model.MetricAccuracy, Workers: 2, Seed: 7},
		Builder:  builder,
		Recorder: tracking.NewRecorder(runs, m.TrackingFailures),
		Metrics:  m,
	})
	return harness{trainer: tr, config: conf, runs: runs, metrics: m}
}

func TestTrain_PersistsGatedModel(t *testing.T) {
	reg := search.Registry{
		{Family: model.DecisionTreeFamily},
		{Family: model.LogisticRegressionFamily},
	}
	h := newHarness(t, reg, 0.6, 0.05)
	train := separable(t, 100, 10, 1)
	test := separable(t, 20, 10, 2)

	artifact, err := h.trainer.Train(context.Background(), train, test, identity(10))
	require.NoError(t, err)

	assert.Equal(t, h.config.ModelPath, artifact.TrainedModelPath)
	assert.GreaterOrEqual(t, artifact.TestScore, 0.6)
	assert.LessOrEqual(t, artifact.TrainScore-artifact.TestScore, 0.05)
	assert.NotEmpty(t, artifact.Version)
	assert.LessOrEqual(t, len(artifact.TopFeatures), 10)
	require.NotEmpty(t, artifact.TopFeatures)
	assert.Equal(t, 0, artifact.TopFeatures[0].Feature)

	loaded, err := ml.LoadNetworkModel(artifact.TrainedModelPath)
	require.NoError(t, err)
	got, err := loaded.Predict(test.X)
	require.NoError(t, err)
	assert.Equal(t, artifact.TestScore, model.Accuracy(test.Y, got))
	assert.FileExists(t, filepath.Join(h.config.FinalModelDir, "model.json"))

	runs, err := h.runs.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, string(artifact.Family), runs[0].Tags[tracking.TagFamily])
	assert.Equal(t, artifact.TestScore, runs[0].Metrics["test_score"])

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ArtifactsBuilt))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Trials.WithLabelValues(string(model.DecisionTreeFamily))))
	assert.Equal(t, artifact.TestScore, testutil.ToFloat64(h.metrics.BestScore.WithLabelValues("test")))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.ErrorsTotal))
}

func TestTrain_RejectsOverfitModel(t *testing.T) {
	h := newHarness(t, search.Registry{{Family: memorizing}}, 0.4, 0.05)
	train := separable(t, 40, 3, 1)
	test := separable(t, 20, 3, 2)

	_, err := h.trainer.Train(context.Background(), train, test, identity(3))
	require.ErrorIs(t, err, errs.ErrOverfitUnderfit)

	assert.NoFileExists(t, h.config.ModelPath)
	runs, err := h.runs.ListRuns()
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.GateRejections.WithLabelValues("overfit_underfit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ErrorsTotal))
}

func TestTrain_RejectsWeakModel(t *testing.T) {
	h := newHarness(t, search.Registry{{Family: constant}}, 0.6, 0.05)
	train := separable(t, 40, 3, 1)
	test := separable(t, 20, 3, 2)

	_, err := h.trainer.Train(context.Background(), train, test, identity(3))
	require.ErrorIs(t, err, errs.ErrBelowAccuracyThreshold)
	assert.NoFileExists(t, h.config.ModelPath)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.GateRejections.WithLabelValues("below_accuracy")))
}

func TestTrain_EmptyRegistry(t *testing.T) {
	h := newHarness(t, search.Registry{}, 0.6, 0.05)
	train := separable(t, 20, 3, 1)
	test := separable(t, 10, 3, 2)

	_, err := h.trainer.Train(context.Background(), train, test, identity(3))
	assert.ErrorIs(t, err, errs.ErrNoViableModel)
	assert.NoFileExists(t, h.config.ModelPath)
}

func TestTrain_PreprocessorMismatch(t *testing.T) {
	h := newHarness(t, search.Registry{{Family: model.DecisionTreeFamily}}, 0.6, 0.05)
	train := separable(t, 20, 3, 1)
	test := separable(t, 10, 3, 2)

	_, err := h.trainer.Train(context.Background(), train, test, identity(4))
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func writeArtifact(t *testing.T, dir string, train, test dataset.Dataset) dataset.TransformationArtifact {
	t.Helper()
	artifact := dataset.TransformationArtifact{
		TrainPath:        filepath.Join(dir, "train.npy"),
		TestPath:         filepath.Join(dir, "test.npy"),
		PreprocessorPath: filepath.Join(dir, "preprocessing.json"),
	}
	require.NoError(t, dataset.Save(artifact.TrainPath, train))
	require.NoError(t, dataset.Save(artifact.TestPath, test))
	require.NoError(t, identity(train.Cols()).Save(artifact.PreprocessorPath))
	return artifact
}

func TestRun_WithCrossValidation(t *testing.T) {
	dir := t.TempDir()
	artifact := writeArtifact(t, dir, separable(t, 60, 4, 1), separable(t, 20, 4, 2))

	conf := cfg.TrainerConfig{
		ModelPath:   filepath.Join(dir, "out", "model.json"),
		MinAccuracy: 0.6,
		MaxGap:      0.05,
	}
	builder, err := ml.NewBuilder(conf)
	require.NoError(t, err)
	tr := New(conf, Deps{
		Registry: search.Registry{{Family: model.DecisionTreeFamily, Grid: search.Grid{"max_depth": {1, 3}}}},
		Search:   search.Config{CVFolds: 3, Workers: 1},
		Builder:  builder,
	})

	out, err := tr.Run(context.Background(), artifact)
	require.NoError(t, err)
	assert.Equal(t, model.DecisionTreeFamily, out.Family)
	assert.FileExists(t, conf.ModelPath)
}

func TestRun_MissingFiles(t *testing.T) {
	builder, err := ml.NewBuilder(cfg.TrainerConfig{ModelPath: filepath.Join(t.TempDir(), "model.json")})
	require.NoError(t, err)
	tr := New(cfg.TrainerConfig{}, Deps{Builder: builder})

	_, err = tr.Run(context.Background(), dataset.TransformationArtifact{
		TrainPath:        filepath.Join(t.TempDir(), "missing.npy"),
		TestPath:         filepath.Join(t.TempDir(), "missing.npy"),
		PreprocessorPath: filepath.Join(t.TempDir(), "missing.json"),
	})
	assert.ErrorIs(t, err, errs.ErrPersistence)
}

func TestFromSettings_LocalTracking(t *testing.T) {
	dir := t.TempDir()
	artifact := writeArtifact(t, dir, separable(t, 60, 4, 1), separable(t, 20, 4, 2))
	dbPath := filepath.Join(dir, "tracking.db")

	settings := cfg.Settings{
		Data: artifact,
		Trainer: cfg.TrainerConfig{
			ModelPath:   filepath.Join(dir, "model.json"),
			ModelsDir:   filepath.Join(dir, "models"),
			MinAccuracy: 0.6,
			MaxGap:      0.05,
		},
		Metric:         "accuracy",
		Workers:        2,
		TrackingDBPath: dbPath,
		Candidates:     []cfg.CandidateConfig{{Family: "decision_tree"}},
	}
	m := metrics.New()
	tr, closer, err := FromSettings(settings, m)
	require.NoError(t, err)

	_, err = tr.Run(context.Background(), settings.Data)
	require.NoError(t, err)
	require.NoError(t, closer.Close())

	runs, err := tracking.NewBolt(dbPath)
	require.NoError(t, err)
	defer runs.Close()
	recorded, err := runs.ListRuns()
	require.NoError(t, err)
	assert.Len(t, recorded, 1)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.TrackingFailures))
}

func TestFromSettings_InvalidMetric(t *testing.T) {
	_, _, err := FromSettings(cfg.Settings{Metric: "auc"}, nil)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}
