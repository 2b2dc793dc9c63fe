// Package model implements the candidate classifier families searched by
// the trainer: decision tree, random forest, gradient boosting, logistic
// regression, AdaBoost and k-nearest neighbours.
//
// All families are binary classifiers over 0/1 labels, fit on a gonum
// matrix and seeded so that a refit on the same data reproduces the same
// predictions. Fitted models are plain structs with exported state so they
// can be persisted through the family-tagged codec in codec.go.
package model

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Family identifies a learning algorithm.
type Family string

const (
	DecisionTreeFamily       Family = "decision_tree"
	RandomForestFamily       Family = "random_forest"
	GradientBoostingFamily   Family = "gradient_boosting"
	LogisticRegressionFamily Family = "logistic_regression"
	AdaBoostFamily           Family = "adaboost"
	KNNFamily                Family = "knn"
)

// Classifier is a binary classifier over 0/1 labels.
type Classifier interface {
	Fit(x *mat.Dense, y []float64) error
	// Predict returns one 0/1 label per row of x.
	Predict(x *mat.Dense) []float64
	Family() Family
}

var errEmptyTrainingSet = errors.New("empty training set")

func checkXY(x *mat.Dense, y []float64) error {
	if x == nil || len(y) == 0 {
		return errEmptyTrainingSet
	}
	r, c := x.Dims()
	if r != len(y) {
		return fmt.Errorf("x has %d rows but y has %d labels", r, len(y))
	}
	if c == 0 {
		return errors.New("x has no columns")
	}
	return nil
}

func label(p float64) float64 {
	if p > 0.5 {
		return 1
	}
	return 0
}
