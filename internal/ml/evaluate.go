package ml

import (
	"fmt"

	"network-security/internal/dataset"
	"network-security/internal/errs"
	"network-security/internal/model"
)

// Evaluation scores a predictor on labelled raw rows.
type Evaluation struct {
	Samples   int                        `json:"samples"`
	Positives int                        `json:"positives"`
	Accuracy  float64                    `json:"accuracy"`
	Report    model.ClassificationMetric `json:"report"`
}

// Evaluate labels d.X with p and compares the result to d.Y. Rows may
// hold missing values the predictor's pipeline imputes.
func Evaluate(p Predictor, d dataset.Dataset) (Evaluation, error) {
	if d.Rows() == 0 || d.Rows() != len(d.Y) {
		return Evaluation{}, errs.Newf(errs.ErrInvalidInput, errs.Origin{Component: "ml", Operation: "evaluate"},
			"%d rows but %d labels", d.Rows(), len(d.Y))
	}
	pred, err := p.Predict(d.X)
	if err != nil {
		return Evaluation{}, fmt.Errorf("predict: %w", err)
	}
	return Evaluation{
		Samples:   d.Rows(),
		Positives: d.Positives(),
		Accuracy:  model.Accuracy(d.Y, pred),
		Report:    model.ClassificationReport(d.Y, pred),
	}, nil
}
