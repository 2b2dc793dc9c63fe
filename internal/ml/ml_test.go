package ml

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"network-security/internal/cfg"
	"network-security/internal/dataset"
	"network-security/internal/errs"
	"network-security/internal/model"
	"network-security/internal/preprocess"
	"network-security/internal/search"
)

// fixture returns a tree fit on rows labelled by the sign of column 0 plus
// a matching scaler pipeline.
func fixture(t *testing.T) (dataset.Dataset, *preprocess.Pipeline, model.Classifier) {
	t.Helper()
	rows := [][]float64{
		{-2, 5}, {2, 5}, {-1.5, 3}, {1.5, 3},
		{-1, 1}, {1, 1}, {-0.5, 2}, {0.5, 2},
	}
	labels := []float64{0, 1, 0, 1, 0, 1, 0, 1}
	d, err := dataset.FromRows(rows, labels)
	require.NoError(t, err)

	pre := preprocess.NewPipeline(2,
		preprocess.Imputer([]float64{0, 0}),
		preprocess.Scaler([]float64{0, 2}, []float64{1, 2}),
	)
	x, err := pre.Transform(d.X)
	require.NoError(t, err)

	c, err := model.New(model.DecisionTreeFamily, nil, 0)
	require.NoError(t, err)
	require.NoError(t, c.Fit(x, d.Y))
	return d, pre, c
}

func selection(c model.Classifier) *search.Selection {
	return &search.Selection{
		Metric: model.MetricAccuracy,
		Best: search.TrialResult{
			Family:     c.Family(),
			Params:     model.Params{"criterion": "gini"},
			Model:      c,
			TrainScore: 1,
			TestScore:  0.98,
		},
	}
}

func TestNetworkModel_PredictAndPersist(t *testing.T) {
	d, pre, c := fixture(t)
	nm := &NetworkModel{Preprocessor: pre, Model: c}

	got, err := nm.Predict(d.X)
	require.NoError(t, err)
	assert.Equal(t, d.Y, got)

	path := filepath.Join(t.TempDir(), "nested", "model.json")
	require.NoError(t, nm.Save(path))

	loaded, err := LoadNetworkModel(path)
	require.NoError(t, err)
	again, err := loaded.Predict(d.X)
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, pre, loaded.Preprocessor)
}

func TestNetworkModel_ImputesMissingValues(t *testing.T) {
	_, pre, c := fixture(t)
	nm := &NetworkModel{Preprocessor: pre, Model: c}

	raw := mat.NewDense(1, 2, []float64{3, math.NaN()})
	got, err := nm.Predict(raw)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, got)
}

func TestNetworkModel_PredictErrors(t *testing.T) {
	_, pre, c := fixture(t)

	_, err := (&NetworkModel{}).Predict(mat.NewDense(1, 2, nil))
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = (&NetworkModel{Preprocessor: pre, Model: c}).Predict(mat.NewDense(1, 3, nil))
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestLoadNetworkModel_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadNetworkModel(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, errs.ErrPersistence)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"model":{"family":"svm","model":{}}}`), 0o644))
	_, err = LoadNetworkModel(bad)
	assert.ErrorIs(t, err, errs.ErrPersistence)
}

func TestBuilder_Build(t *testing.T) {
	d, pre, c := fixture(t)
	dir := t.TempDir()
	conf := cfg.TrainerConfig{
		ModelPath:     filepath.Join(dir, "model_trainer", "trained_model", "model.json"),
		FinalModelDir: filepath.Join(dir, "final_model"),
		ModelsDir:     filepath.Join(dir, "models"),
	}
	b, err := NewBuilder(conf)
	require.NoError(t, err)

	report := Report{
		TrainMetric:     model.ClassificationMetric{F1: 1, Precision: 1, Recall: 1},
		TestMetric:      model.ClassificationMetric{F1: 0.9, Precision: 0.9, Recall: 0.9},
		TopFeatures:     []FeatureImportance{{Feature: 0, Importance: 0.5}},
		TrainingSamples: d.Rows(),
	}
	artifact, err := b.Build(selection(c), pre, report)
	require.NoError(t, err)

	assert.Equal(t, conf.ModelPath, artifact.TrainedModelPath)
	assert.Equal(t, filepath.Join(conf.FinalModelDir, "model.json"), artifact.FinalModelPath)
	assert.Equal(t, model.DecisionTreeFamily, artifact.Family)
	assert.Equal(t, 0.9, artifact.TestMetric.F1)
	assert.NotEmpty(t, artifact.Version)

	loaded, err := LoadNetworkModel(artifact.TrainedModelPath)
	require.NoError(t, err)
	got, err := loaded.Predict(d.X)
	require.NoError(t, err)
	assert.Equal(t, d.Y, got)

	trained, err := os.ReadFile(conf.ModelPath)
	require.NoError(t, err)
	final, err := os.ReadFile(artifact.FinalModelPath)
	require.NoError(t, err)
	assert.Equal(t, trained, final)
	assert.FileExists(t, filepath.Join(conf.FinalModelDir, "preprocessor.json"))

	record, err := os.ReadFile(filepath.Join(filepath.Dir(conf.ModelPath), "trainer_artifact.json"))
	require.NoError(t, err)
	var decoded TrainerArtifact
	require.NoError(t, json.Unmarshal(record, &decoded))
	assert.Equal(t, artifact.TrainedModelPath, decoded.TrainedModelPath)
	assert.Equal(t, artifact.TopFeatures, decoded.TopFeatures)

	current := b.Versions().GetCurrentVersion()
	require.NotNil(t, current)
	assert.Equal(t, artifact.Version, current.Version)
	assert.Equal(t, d.Rows(), current.Metrics.TrainingSamples)
	assert.FileExists(t, current.Path)
}

func TestBuilder_Idempotent(t *testing.T) {
	_, pre, c := fixture(t)
	conf := cfg.TrainerConfig{ModelPath: filepath.Join(t.TempDir(), "model.json")}
	b, err := NewBuilder(conf)
	require.NoError(t, err)

	first, err := b.Build(selection(c), pre, Report{})
	require.NoError(t, err)
	before, err := os.ReadFile(conf.ModelPath)
	require.NoError(t, err)

	second, err := b.Build(selection(c), pre, Report{})
	require.NoError(t, err)
	after, err := os.ReadFile(conf.ModelPath)
	require.NoError(t, err)

	assert.Equal(t, before, after)
	assert.Equal(t, first, second)
}

func TestBuilder_PersistenceErrors(t *testing.T) {
	_, pre, c := fixture(t)
	dir := t.TempDir()

	b, err := NewBuilder(cfg.TrainerConfig{})
	require.NoError(t, err)
	_, err = b.Build(selection(c), pre, Report{})
	assert.ErrorIs(t, err, errs.ErrPersistence)

	// A regular file where a directory is needed.
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	b, err = NewBuilder(cfg.TrainerConfig{ModelPath: filepath.Join(blocker, "model.json")})
	require.NoError(t, err)
	_, err = b.Build(selection(c), pre, Report{})
	assert.ErrorIs(t, err, errs.ErrPersistence)
	origin, ok := errs.OriginOf(err)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(blocker, "model.json"), origin.Input)

	b, err = NewBuilder(cfg.TrainerConfig{ModelPath: filepath.Join(dir, "model.json")})
	require.NoError(t, err)
	_, err = b.Build(&search.Selection{}, pre, Report{})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestModelManager_Versions(t *testing.T) {
	dir := t.TempDir()
	mm, err := NewModelManager(dir)
	require.NoError(t, err)
	assert.Nil(t, mm.GetCurrentVersion())

	v1, err := mm.Store([]byte(`{"v":1}`), ModelMetrics{Family: model.DecisionTreeFamily, TestScore: 0.9})
	require.NoError(t, err)
	require.NoError(t, mm.ActivateVersion(v1.Version))
	time.Sleep(2 * time.Millisecond)
	v2, err := mm.AddVersion(filepath.Join(dir, "other.json"), ModelMetrics{Family: model.AdaBoostFamily, TestScore: 0.95})
	require.NoError(t, err)
	require.NoError(t, mm.ActivateVersion(v2.Version))

	versions := mm.ListVersions()
	require.Len(t, versions, 2)
	assert.Equal(t, v2.Version, versions[0].Version)
	assert.Equal(t, v2.Version, mm.GetCurrentVersion().Version)

	require.NoError(t, mm.Rollback())
	assert.Equal(t, v1.Version, mm.GetCurrentVersion().Version)
	assert.Error(t, mm.Rollback())

	// Reload from disk keeps the active version.
	reloaded, err := NewModelManager(dir)
	require.NoError(t, err)
	assert.Equal(t, v1.Version, reloaded.GetCurrentVersion().Version)
	assert.Len(t, reloaded.ListVersions(), 2)

	assert.Error(t, mm.ActivateVersion("missing"))
}

func TestPermutationImportance(t *testing.T) {
	d, pre, c := fixture(t)
	x, err := pre.Transform(d.X)
	require.NoError(t, err)
	transformed := dataset.Dataset{X: x, Y: d.Y}

	imp := PermutationImportance(c, transformed, model.MetricAccuracy, 5, 1)
	require.Len(t, imp, 2)
	assert.Greater(t, imp[0].Importance, 0.0)
	assert.Equal(t, 0.0, imp[1].Importance)

	// Scoring must not disturb the input.
	again, err := pre.Transform(d.X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(again, transformed.X))

	top := TopFeatures(imp, 1)
	require.Len(t, top, 1)
	assert.Equal(t, 0, top[0].Feature)
	assert.Len(t, TopFeatures(imp, 10), 2)
}

func TestEvaluate(t *testing.T) {
	d, pre, c := fixture(t)

	ev, err := Evaluate(&NetworkModel{Preprocessor: pre, Model: c}, d)
	require.NoError(t, err)
	assert.Equal(t, 8, ev.Samples)
	assert.Equal(t, 4, ev.Positives)
	assert.Equal(t, 1.0, ev.Accuracy)
	assert.Equal(t, 1.0, ev.Report.F1)

	_, err = Evaluate(&NetworkModel{}, d)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}
