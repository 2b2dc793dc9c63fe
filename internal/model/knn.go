package model

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// KNN classifies by majority vote of the k nearest training rows
// (Euclidean distance). Ties in distance keep training order; an even
// split vote predicts class 0.
type KNN struct {
	NNeighbors int `json:"n_neighbors"`

	X [][]float64 `json:"x"`
	Y []float64   `json:"y"`
}

func newKNN(p Params, _ int64) (Classifier, error) {
	r := readParams(p)
	k := &KNN{NNeighbors: r.Int("n_neighbors", 5)}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if k.NNeighbors < 1 {
		return nil, fmt.Errorf("n_neighbors must be >= 1, got %d", k.NNeighbors)
	}
	return k, nil
}

func (k *KNN) Family() Family { return KNNFamily }

func (k *KNN) Fit(x *mat.Dense, y []float64) error {
	if err := checkXY(x, y); err != nil {
		return err
	}
	if len(y) < k.NNeighbors {
		return fmt.Errorf("n_neighbors=%d exceeds %d training rows", k.NNeighbors, len(y))
	}
	k.X = make([][]float64, len(y))
	for i := range k.X {
		k.X[i] = append([]float64(nil), x.RawRowView(i)...)
	}
	k.Y = append([]float64(nil), y...)
	return nil
}

func (k *KNN) Predict(x *mat.Dense) []float64 {
	type neighbour struct {
		d float64
		y float64
	}
	r, _ := x.Dims()
	out := make([]float64, r)
	nbrs := make([]neighbour, len(k.X))
	for i := 0; i < r; i++ {
		row := x.RawRowView(i)
		for j, train := range k.X {
			nbrs[j] = neighbour{d: euclidSquared(row, train), y: k.Y[j]}
		}
		sort.SliceStable(nbrs, func(a, b int) bool { return nbrs[a].d < nbrs[b].d })

		votes := 0.0
		for _, nb := range nbrs[:k.NNeighbors] {
			votes += nb.y
		}
		out[i] = label(votes / float64(k.NNeighbors))
	}
	return out
}

func euclidSquared(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}
