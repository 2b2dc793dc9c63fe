package ml

import (
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"network-security/internal/dataset"
	"network-security/internal/model"
)

// FeatureImportance is the mean score drop when one column is shuffled.
type FeatureImportance struct {
	Feature    int     `json:"feature"`
	Importance float64 `json:"importance"`
}

// PermutationImportance scores c on d, then for every column shuffles that
// column repeats times and records the mean drop in metric. Results are in
// column order.
func PermutationImportance(c model.Classifier, d dataset.Dataset, metric model.Metric, repeats int, seed int64) []FeatureImportance {
	if repeats < 1 {
		repeats = 1
	}
	rnd := rand.New(rand.NewSource(seed))
	baseline := model.Score(metric, d.Y, c.Predict(d.X))

	rows, cols := d.X.Dims()
	out := make([]FeatureImportance, cols)
	x := mat.DenseCopyOf(d.X)
	column := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(column, j, d.X)
		drop := 0.0
		for r := 0; r < repeats; r++ {
			perm := rnd.Perm(rows)
			for i, p := range perm {
				x.Set(i, j, column[p])
			}
			drop += baseline - model.Score(metric, d.Y, c.Predict(x))
		}
		x.SetCol(j, column)
		out[j] = FeatureImportance{Feature: j, Importance: drop / float64(repeats)}
	}
	return out
}

// TopFeatures returns the n most important features, highest first.
// Equal importances keep column order.
func TopFeatures(importances []FeatureImportance, n int) []FeatureImportance {
	sorted := append([]FeatureImportance(nil), importances...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Importance > sorted[j].Importance
	})
	if n >= 0 && n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}
