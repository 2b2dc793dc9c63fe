// Package ml packages the selected classifier for use outside training.
// It combines the fitted preprocessing pipeline with the winning model,
// persists the result with its trainer artifact, and keeps a versioned
// history of persisted models for activation and rollback.
package ml

import "gonum.org/v1/gonum/mat"

// Predictor labels raw, untransformed feature rows.
type Predictor interface {
	// Predict returns one 0/1 label per row of raw, or an error if the rows
	// cannot be transformed.
	Predict(raw *mat.Dense) ([]float64, error)
}
