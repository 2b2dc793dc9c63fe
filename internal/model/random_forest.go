package model

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// RandomForest is a bagged ensemble of decision trees. Each tree gets its
// own seed (Seed + tree index). Trees are fit on the calling goroutine.
type RandomForest struct {
	NEstimators     int    `json:"n_estimators"`
	Criterion       string `json:"criterion"`
	MaxDepth        int    `json:"max_depth"`
	MinSamplesSplit int    `json:"min_samples_split"`
	MinSamplesLeaf  int    `json:"min_samples_leaf"`
	MaxFeatures     string `json:"max_features"`
	Bootstrap       bool   `json:"bootstrap"`
	Seed            int64  `json:"seed"`

	Trees []*DecisionTree `json:"trees"`
}

func newRandomForest(p Params, seed int64) (Classifier, error) {
	r := readParams(p)
	rf := &RandomForest{
		NEstimators:     r.Int("n_estimators", 100),
		Criterion:       r.String("criterion", "gini"),
		MaxDepth:        r.Int("max_depth", 0),
		MinSamplesSplit: r.Int("min_samples_split", 2),
		MinSamplesLeaf:  r.Int("min_samples_leaf", 1),
		MaxFeatures:     r.String("max_features", "sqrt"),
		Bootstrap:       r.Bool("bootstrap", true),
		Seed:            seed,
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if rf.NEstimators < 1 {
		return nil, fmt.Errorf("n_estimators must be >= 1, got %d", rf.NEstimators)
	}
	if _, err := criterionFor(rf.Criterion); err != nil {
		return nil, err
	}
	return rf, nil
}

func (rf *RandomForest) Family() Family { return RandomForestFamily }

func (rf *RandomForest) Fit(x *mat.Dense, y []float64) error {
	if err := checkXY(x, y); err != nil {
		return err
	}
	n := len(y)
	trees := make([]*DecisionTree, rf.NEstimators)
	for i := range trees {
		seed := rf.Seed + int64(i)
		tree := &DecisionTree{
			Criterion:       rf.Criterion,
			MaxDepth:        rf.MaxDepth,
			MinSamplesSplit: rf.MinSamplesSplit,
			MinSamplesLeaf:  rf.MinSamplesLeaf,
			MaxFeatures:     rf.MaxFeatures,
			Seed:            seed,
		}
		var weight []float64
		if rf.Bootstrap {
			rnd := rand.New(rand.NewSource(seed))
			weight = make([]float64, n)
			for j := 0; j < n; j++ {
				weight[rnd.Intn(n)]++
			}
		}
		if err := tree.FitWeighted(x, y, weight); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
		trees[i] = tree
	}
	rf.Trees = trees
	return nil
}

// PredictProba averages the class-1 probability over all trees.
func (rf *RandomForest) PredictProba(x *mat.Dense) []float64 {
	r, _ := x.Dims()
	out := make([]float64, r)
	if len(rf.Trees) == 0 {
		return out
	}
	for _, t := range rf.Trees {
		for i, p := range t.PredictProba(x) {
			out[i] += p
		}
	}
	for i := range out {
		out[i] /= float64(len(rf.Trees))
	}
	return out
}

func (rf *RandomForest) Predict(x *mat.Dense) []float64 {
	proba := rf.PredictProba(x)
	for i, p := range proba {
		proba[i] = label(p)
	}
	return proba
}
