// Package preprocess applies the preprocessing pipeline fitted by the data
// transformation stage. The pipeline is consumed as a pre-built artifact:
// this package loads its fitted parameters and applies them, it never fits.
package preprocess

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"network-security/internal/errs"

	"gonum.org/v1/gonum/mat"
)

// StepKind names a preprocessing step.
type StepKind string

const (
	// Impute replaces missing (NaN) values with a per-column fill value.
	Impute StepKind = "impute"
	// Scale standardises each column as (x - mean) / scale.
	Scale StepKind = "scale"
)

// Step is one fitted transformation.
type Step struct {
	Kind  StepKind  `json:"kind"`
	Fill  []float64 `json:"fill,omitempty"`
	Mean  []float64 `json:"mean,omitempty"`
	Scale []float64 `json:"scale,omitempty"`
}

// Pipeline is an ordered sequence of fitted steps over a fixed column count.
type Pipeline struct {
	Features int    `json:"n_features"`
	Steps    []Step `json:"steps"`
}

// NewPipeline returns a pipeline for the given column count. With no steps
// it is the identity transform.
func NewPipeline(features int, steps ...Step) *Pipeline {
	return &Pipeline{Features: features, Steps: steps}
}

// Imputer returns an impute step.
func Imputer(fill []float64) Step {
	return Step{Kind: Impute, Fill: fill}
}

// Scaler returns a scale step.
func Scaler(mean, scale []float64) Step {
	return Step{Kind: Scale, Mean: mean, Scale: scale}
}

// Load reads a fitted pipeline from a JSON file.
func Load(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New(errs.ErrPersistence, errs.Origin{Component: "preprocess", Operation: "load", Input: path}, err)
	}
	var p Pipeline
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errs.New(errs.ErrPersistence, errs.Origin{Component: "preprocess", Operation: "load", Input: path},
			fmt.Errorf("decode pipeline: %w", err))
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return &p, nil
}

// Save writes the pipeline as JSON.
func (p *Pipeline) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks that every step's parameter vectors match Features.
func (p *Pipeline) Validate() error {
	if p.Features <= 0 {
		return errs.Newf(errs.ErrInvalidInput, errs.Origin{Component: "preprocess", Operation: "validate"},
			"pipeline must declare a positive feature count, got %d", p.Features)
	}
	for i, s := range p.Steps {
		o := errs.Origin{Component: "preprocess", Operation: "validate", Input: fmt.Sprintf("step[%d]=%s", i, s.Kind)}
		switch s.Kind {
		case Impute:
			if len(s.Fill) != p.Features {
				return errs.Newf(errs.ErrInvalidInput, o, "fill has %d values, want %d", len(s.Fill), p.Features)
			}
		case Scale:
			if len(s.Mean) != p.Features || len(s.Scale) != p.Features {
				return errs.Newf(errs.ErrInvalidInput, o, "mean/scale have %d/%d values, want %d",
					len(s.Mean), len(s.Scale), p.Features)
			}
		default:
			return errs.Newf(errs.ErrInvalidInput, o, "unknown step kind")
		}
	}
	return nil
}

// Transform applies every step to a copy of x.
func (p *Pipeline) Transform(x *mat.Dense) (*mat.Dense, error) {
	r, c := x.Dims()
	if c != p.Features {
		return nil, errs.Newf(errs.ErrInvalidInput, errs.Origin{Component: "preprocess", Operation: "transform"},
			"expected %d features, got %d", p.Features, c)
	}
	out := mat.DenseCopyOf(x)
	for _, s := range p.Steps {
		for i := 0; i < r; i++ {
			row := out.RawRowView(i)
			for j := range row {
				switch s.Kind {
				case Impute:
					if math.IsNaN(row[j]) {
						row[j] = s.Fill[j]
					}
				case Scale:
					scale := s.Scale[j]
					if scale == 0 {
						scale = 1
					}
					row[j] = (row[j] - s.Mean[j]) / scale
				}
			}
		}
	}
	return out, nil
}
