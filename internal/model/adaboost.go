package model

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// AdaBoost is discrete (SAMME) boosting over weighted decision stumps.
type AdaBoost struct {
	NEstimators  int     `json:"n_estimators"`
	LearningRate float64 `json:"learning_rate"`

	Stumps []*Node    `json:"stumps"`
	Alphas []float64 `json:"alphas"`
}

var errWeakLearner = errors.New("first stump is no better than chance")

func newAdaBoost(p Params, _ int64) (Classifier, error) {
	r := readParams(p)
	ab := &AdaBoost{
		NEstimators:  r.Int("n_estimators", 50),
		LearningRate: r.Float("learning_rate", 1.0),
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if ab.NEstimators < 1 {
		return nil, fmt.Errorf("n_estimators must be >= 1, got %d", ab.NEstimators)
	}
	if ab.LearningRate <= 0 {
		return nil, fmt.Errorf("learning_rate must be > 0, got %v", ab.LearningRate)
	}
	return ab, nil
}

func (ab *AdaBoost) Family() Family { return AdaBoostFamily }

func (ab *AdaBoost) Fit(x *mat.Dense, y []float64) error {
	if err := checkXY(x, y); err != nil {
		return err
	}
	n := len(y)
	weight := make([]float64, n)
	for i := range weight {
		weight[i] = 1 / float64(n)
	}

	ab.Stumps = ab.Stumps[:0]
	ab.Alphas = ab.Alphas[:0]
	idx := allRows(n)
	for m := 0; m < ab.NEstimators; m++ {
		g := &grower{
			x:        x,
			target:   y,
			weight:   weight,
			crit:     gini,
			maxDepth: 1,
			minSplit: 2,
			minLeaf:  1,
		}
		stump := g.grow(idx, 0)

		miss := make([]bool, n)
		var errW, total float64
		for i := 0; i < n; i++ {
			miss[i] = label(stump.eval(x.RawRowView(i))) != y[i]
			if miss[i] {
				errW += weight[i]
			}
			total += weight[i]
		}
		rate := errW / total

		if rate <= 0 {
			ab.Stumps = append(ab.Stumps, stump)
			ab.Alphas = append(ab.Alphas, 1)
			break
		}
		if rate >= 0.5 {
			if len(ab.Stumps) == 0 {
				return errWeakLearner
			}
			break
		}

		alpha := ab.LearningRate * math.Log((1-rate)/rate)
		ab.Stumps = append(ab.Stumps, stump)
		ab.Alphas = append(ab.Alphas, alpha)

		var sum float64
		for i := range weight {
			if miss[i] {
				weight[i] *= math.Exp(alpha)
			}
			sum += weight[i]
		}
		for i := range weight {
			weight[i] /= sum
		}
	}
	return nil
}

// DecisionFunction returns the weighted vote per row; positive means class 1.
func (ab *AdaBoost) DecisionFunction(x *mat.Dense) []float64 {
	r, _ := x.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		row := x.RawRowView(i)
		for m, s := range ab.Stumps {
			if label(s.eval(row)) == 1 {
				out[i] += ab.Alphas[m]
			} else {
				out[i] -= ab.Alphas[m]
			}
		}
	}
	return out
}

func (ab *AdaBoost) Predict(x *mat.Dense) []float64 {
	out := ab.DecisionFunction(x)
	for i, s := range out {
		if s > 0 {
			out[i] = 1
		} else {
			out[i] = 0
		}
	}
	return out
}
