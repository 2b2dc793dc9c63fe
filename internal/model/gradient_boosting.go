package model

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// GradientBoosting fits regression trees to the gradient of the binomial
// deviance, using a Newton step for each leaf value.
type GradientBoosting struct {
	LearningRate    float64 `json:"learning_rate"`
	NEstimators     int     `json:"n_estimators"`
	Subsample       float64 `json:"subsample"`
	MaxDepth        int     `json:"max_depth"`
	MinSamplesSplit int     `json:"min_samples_split"`
	MinSamplesLeaf  int     `json:"min_samples_leaf"`
	Seed            int64   `json:"seed"`

	Init  float64 `json:"init"`
	Trees []*Node `json:"trees"`
}

func newGradientBoosting(p Params, seed int64) (Classifier, error) {
	r := readParams(p)
	gb := &GradientBoosting{
		LearningRate:    r.Float("learning_rate", 0.1),
		NEstimators:     r.Int("n_estimators", 100),
		Subsample:       r.Float("subsample", 1.0),
		MaxDepth:        r.Int("max_depth", 3),
		MinSamplesSplit: r.Int("min_samples_split", 2),
		MinSamplesLeaf:  r.Int("min_samples_leaf", 1),
		Seed:            seed,
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	switch {
	case gb.LearningRate <= 0:
		return nil, fmt.Errorf("learning_rate must be > 0, got %v", gb.LearningRate)
	case gb.NEstimators < 1:
		return nil, fmt.Errorf("n_estimators must be >= 1, got %d", gb.NEstimators)
	case gb.Subsample <= 0 || gb.Subsample > 1:
		return nil, fmt.Errorf("subsample must be in (0, 1], got %v", gb.Subsample)
	}
	return gb, nil
}

func (gb *GradientBoosting) Family() Family { return GradientBoostingFamily }

func (gb *GradientBoosting) Fit(x *mat.Dense, y []float64) error {
	if err := checkXY(x, y); err != nil {
		return err
	}
	n := len(y)

	prior := 0.0
	for _, v := range y {
		prior += v
	}
	prior = math.Min(math.Max(prior/float64(n), 1e-6), 1-1e-6)
	gb.Init = math.Log(prior / (1 - prior))

	raw := make([]float64, n)
	for i := range raw {
		raw[i] = gb.Init
	}
	residual := make([]float64, n)
	hessian := make([]float64, n)
	rnd := rand.New(rand.NewSource(gb.Seed))
	sampleSize := int(math.Max(1, math.Round(gb.Subsample*float64(n))))

	gb.Trees = make([]*Node, 0, gb.NEstimators)
	for m := 0; m < gb.NEstimators; m++ {
		for i := range y {
			p := sigmoid(raw[i])
			residual[i] = y[i] - p
			hessian[i] = p * (1 - p)
		}

		idx := allRows(n)
		if sampleSize < n {
			idx = rnd.Perm(n)[:sampleSize]
			sort.Ints(idx)
		}

		g := &grower{
			x:        x,
			target:   residual,
			crit:     squaredError,
			maxDepth: gb.MaxDepth,
			minSplit: gb.MinSamplesSplit,
			minLeaf:  gb.MinSamplesLeaf,
			leafValue: func(leaf []int) float64 {
				var num, den float64
				for _, i := range leaf {
					num += residual[i]
					den += hessian[i]
				}
				if den < 1e-12 {
					return 0
				}
				return num / den
			},
		}
		tree := g.grow(idx, 0)
		gb.Trees = append(gb.Trees, tree)

		for i := 0; i < n; i++ {
			raw[i] += gb.LearningRate * tree.eval(x.RawRowView(i))
		}
	}
	return nil
}

// DecisionFunction returns the raw log-odds per row.
func (gb *GradientBoosting) DecisionFunction(x *mat.Dense) []float64 {
	r, _ := x.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		row := x.RawRowView(i)
		f := gb.Init
		for _, t := range gb.Trees {
			f += gb.LearningRate * t.eval(row)
		}
		out[i] = f
	}
	return out
}

func (gb *GradientBoosting) Predict(x *mat.Dense) []float64 {
	out := gb.DecisionFunction(x)
	for i, f := range out {
		out[i] = label(sigmoid(f))
	}
	return out
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
