package model

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// DecisionTree is a CART classifier.
type DecisionTree struct {
	Criterion       string `json:"criterion"`
	MaxDepth        int    `json:"max_depth"`
	MinSamplesSplit int    `json:"min_samples_split"`
	MinSamplesLeaf  int    `json:"min_samples_leaf"`
	MaxFeatures     string `json:"max_features"`
	Seed            int64  `json:"seed"`

	Root *Node `json:"root"`
}

func newDecisionTree(p Params, seed int64) (Classifier, error) {
	r := readParams(p)
	t := &DecisionTree{
		Criterion:       r.String("criterion", "gini"),
		MaxDepth:        r.Int("max_depth", 0),
		MinSamplesSplit: r.Int("min_samples_split", 2),
		MinSamplesLeaf:  r.Int("min_samples_leaf", 1),
		MaxFeatures:     r.String("max_features", "all"),
		Seed:            seed,
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if _, err := criterionFor(t.Criterion); err != nil {
		return nil, err
	}
	if t.MinSamplesSplit < 2 {
		return nil, fmt.Errorf("min_samples_split must be >= 2, got %d", t.MinSamplesSplit)
	}
	if t.MinSamplesLeaf < 1 {
		return nil, fmt.Errorf("min_samples_leaf must be >= 1, got %d", t.MinSamplesLeaf)
	}
	return t, nil
}

func criterionFor(name string) (criterion, error) {
	switch name {
	case "gini":
		return gini, nil
	case "entropy", "log_loss":
		return entropy, nil
	}
	return nil, fmt.Errorf("unknown criterion %q", name)
}

func (t *DecisionTree) Family() Family { return DecisionTreeFamily }

func (t *DecisionTree) Fit(x *mat.Dense, y []float64) error {
	return t.FitWeighted(x, y, nil)
}

// FitWeighted fits the tree with per-row sample weights. Rows with zero
// weight are ignored; a nil weight slice weights every row equally.
func (t *DecisionTree) FitWeighted(x *mat.Dense, y, weight []float64) error {
	if err := checkXY(x, y); err != nil {
		return err
	}
	crit, err := criterionFor(t.Criterion)
	if err != nil {
		return err
	}
	_, cols := x.Dims()
	k, err := resolveMaxFeatures(t.MaxFeatures, cols)
	if err != nil {
		return err
	}

	idx := allRows(len(y))
	if weight != nil {
		idx = idx[:0]
		for i, w := range weight {
			if w > 0 {
				idx = append(idx, i)
			}
		}
		if len(idx) == 0 {
			return fmt.Errorf("all sample weights are zero")
		}
	}

	g := &grower{
		x:           x,
		target:      y,
		weight:      weight,
		crit:        crit,
		maxDepth:    t.MaxDepth,
		minSplit:    t.MinSamplesSplit,
		minLeaf:     t.MinSamplesLeaf,
		maxFeatures: k,
		rnd:         rand.New(rand.NewSource(t.Seed)),
	}
	t.Root = g.grow(idx, 0)
	return nil
}

// PredictProba returns P(y=1) per row.
func (t *DecisionTree) PredictProba(x *mat.Dense) []float64 {
	r, _ := x.Dims()
	out := make([]float64, r)
	if t.Root == nil {
		return out
	}
	for i := 0; i < r; i++ {
		out[i] = t.Root.eval(x.RawRowView(i))
	}
	return out
}

func (t *DecisionTree) Predict(x *mat.Dense) []float64 {
	proba := t.PredictProba(x)
	for i, p := range proba {
		proba[i] = label(p)
	}
	return proba
}
