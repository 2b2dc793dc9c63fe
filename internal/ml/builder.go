package ml

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"network-security/internal/cfg"
	"network-security/internal/errs"
	"network-security/internal/model"
	"network-security/internal/preprocess"
	"network-security/internal/search"
)

const (
	artifactFileName     = "trainer_artifact.json"
	finalModelFileName   = "model.json"
	finalPreprocFileName = "preprocessor.json"
)

// TrainerArtifact describes a persisted model and how it scored.
type TrainerArtifact struct {
	TrainedModelPath string                     `json:"trained_model_file_path" yaml:"trainedModelPath"`
	FinalModelPath   string                     `json:"final_model_file_path,omitempty" yaml:"finalModelPath,omitempty"`
	Family           model.Family               `json:"family" yaml:"family"`
	Params           model.Params               `json:"params" yaml:"params"`
	TrainMetric      model.ClassificationMetric `json:"train_metric_artifact" yaml:"trainMetric"`
	TestMetric       model.ClassificationMetric `json:"test_metric_artifact" yaml:"testMetric"`
	TrainScore       float64                    `json:"train_score" yaml:"trainScore"`
	TestScore        float64                    `json:"test_score" yaml:"testScore"`
	TopFeatures      []FeatureImportance        `json:"top_features,omitempty" yaml:"topFeatures,omitempty"`
	Version          string                     `json:"version,omitempty" yaml:"version,omitempty"`
}

// Report is the evaluation of the selected model stored with it.
type Report struct {
	TrainMetric model.ClassificationMetric
	TestMetric  model.ClassificationMetric
	TopFeatures []FeatureImportance

	// TrainingSamples is the number of rows the model was fit on.
	TrainingSamples int
}

// Builder persists the selected model.
type Builder struct {
	cfg      cfg.TrainerConfig
	versions *ModelManager
}

// NewBuilder creates a builder. A version history is kept when
// c.ModelsDir is set.
func NewBuilder(c cfg.TrainerConfig) (*Builder, error) {
	b := &Builder{cfg: c}
	if c.ModelsDir != "" {
		mm, err := NewModelManager(c.ModelsDir)
		if err != nil {
			return nil, errs.New(errs.ErrPersistence, errs.Origin{Component: "ml", Operation: "new_builder", Input: c.ModelsDir}, err)
		}
		b.versions = mm
	}
	return b, nil
}

// Versions returns the version manager, or nil when versioning is off.
func (b *Builder) Versions() *ModelManager {
	return b.versions
}

// Build combines preprocessor with the selected model, writes it to the
// configured model path with a trainer_artifact.json beside it, copies it
// into the final model directory and stores and activates it as a new
// version.
// Rebuilding the same selection rewrites identical model bytes.
func (b *Builder) Build(sel *search.Selection, preprocessor *preprocess.Pipeline, report Report) (*TrainerArtifact, error) {
	path := b.cfg.ModelPath
	o := errs.Origin{Component: "ml", Operation: "build", Input: path}
	if path == "" {
		return nil, errs.Newf(errs.ErrPersistence, o, "model path is empty")
	}
	if sel == nil || sel.Best.Model == nil {
		return nil, errs.Newf(errs.ErrInvalidInput, o, "no selected model to persist")
	}
	best := sel.Best

	nm := &NetworkModel{Preprocessor: preprocessor, Model: best.Model}
	data, err := json.Marshal(nm)
	if err != nil {
		return nil, errs.New(errs.ErrPersistence, o, fmt.Errorf("encode model: %w", err))
	}
	if err := writeFileAtomic(path, data); err != nil {
		return nil, err
	}

	artifact := &TrainerArtifact{
		TrainedModelPath: path,
		Family:           best.Family,
		Params:           best.Params,
		TrainMetric:      report.TrainMetric,
		TestMetric:       report.TestMetric,
		TrainScore:       best.TrainScore,
		TestScore:        best.TestScore,
		TopFeatures:      report.TopFeatures,
	}

	if b.cfg.FinalModelDir != "" {
		final := filepath.Join(b.cfg.FinalModelDir, finalModelFileName)
		if err := writeFileAtomic(final, data); err != nil {
			return nil, err
		}
		if preprocessor != nil {
			pre, err := json.MarshalIndent(preprocessor, "", "  ")
			if err != nil {
				return nil, errs.New(errs.ErrPersistence, o, fmt.Errorf("encode preprocessor: %w", err))
			}
			if err := writeFileAtomic(filepath.Join(b.cfg.FinalModelDir, finalPreprocFileName), pre); err != nil {
				return nil, err
			}
		}
		artifact.FinalModelPath = final
	}

	if b.versions != nil {
		v, err := b.versions.Store(data, ModelMetrics{
			Family:     best.Family,
			Params:     best.Params,
			TrainScore: best.TrainScore,
			TestScore:  best.TestScore,
			F1Score:    report.TestMetric.F1,
			Precision:  report.TestMetric.Precision,
			Recall:     report.TestMetric.Recall,

			TrainingSamples: report.TrainingSamples,
		})
		if err == nil {
			err = b.versions.ActivateVersion(v.Version)
		}
		if err != nil {
			return nil, errs.New(errs.ErrPersistence, errs.Origin{Component: "ml", Operation: "register_version", Input: b.cfg.ModelsDir}, err)
		}
		artifact.Version = v.Version
	}

	record, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return nil, errs.New(errs.ErrPersistence, o, fmt.Errorf("encode artifact: %w", err))
	}
	if err := writeFileAtomic(filepath.Join(filepath.Dir(path), artifactFileName), record); err != nil {
		return nil, err
	}

	log.Info().
		Str("path", path).
		Str("family", string(best.Family)).
		Str("version", artifact.Version).
		Msg("Model trainer artifact built")
	return artifact, nil
}
