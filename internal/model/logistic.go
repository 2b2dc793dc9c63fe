package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// LogisticRegression is an L2-regularised logistic model fit by full-batch
// gradient descent. Columns are standardised internally during fitting and
// the learned weights are mapped back to the original feature scale.
type LogisticRegression struct {
	C            float64 `json:"C"`
	MaxIter      int     `json:"max_iter"`
	LearningRate float64 `json:"learning_rate"`

	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

func newLogisticRegression(p Params, _ int64) (Classifier, error) {
	r := readParams(p)
	lr := &LogisticRegression{
		C:            r.Float("C", 1.0),
		MaxIter:      r.Int("max_iter", 300),
		LearningRate: r.Float("learning_rate", 0.5),
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	switch {
	case lr.C <= 0:
		return nil, fmt.Errorf("C must be > 0, got %v", lr.C)
	case lr.MaxIter < 1:
		return nil, fmt.Errorf("max_iter must be >= 1, got %d", lr.MaxIter)
	case lr.LearningRate <= 0:
		return nil, fmt.Errorf("learning_rate must be > 0, got %v", lr.LearningRate)
	}
	return lr, nil
}

func (lr *LogisticRegression) Family() Family { return LogisticRegressionFamily }

func (lr *LogisticRegression) Fit(x *mat.Dense, y []float64) error {
	if err := checkXY(x, y); err != nil {
		return err
	}
	n, cols := x.Dims()

	mean := make([]float64, cols)
	scale := make([]float64, cols)
	col := make([]float64, n)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, x)
		mean[j], scale[j] = stat.MeanStdDev(col, nil)
		if scale[j] == 0 || math.IsNaN(scale[j]) {
			scale[j] = 1
		}
	}

	z := mat.NewDense(n, cols, nil)
	for i := 0; i < n; i++ {
		src, dst := x.RawRowView(i), z.RawRowView(i)
		for j := range src {
			dst[j] = (src[j] - mean[j]) / scale[j]
		}
	}

	w := make([]float64, cols)
	b := 0.0
	grad := make([]float64, cols)
	penalty := 1 / (lr.C * float64(n))
	for iter := 0; iter < lr.MaxIter; iter++ {
		for j := range grad {
			grad[j] = penalty * w[j]
		}
		gb := 0.0
		for i := 0; i < n; i++ {
			row := z.RawRowView(i)
			d := (sigmoid(dot(w, row)+b) - y[i]) / float64(n)
			for j, v := range row {
				grad[j] += d * v
			}
			gb += d
		}
		for j := range w {
			w[j] -= lr.LearningRate * grad[j]
		}
		b -= lr.LearningRate * gb
	}

	lr.Weights = make([]float64, cols)
	lr.Bias = b
	for j := range w {
		lr.Weights[j] = w[j] / scale[j]
		lr.Bias -= w[j] * mean[j] / scale[j]
	}
	for _, v := range lr.Weights {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("gradient descent diverged")
		}
	}
	return nil
}

// PredictProba returns P(y=1) per row.
func (lr *LogisticRegression) PredictProba(x *mat.Dense) []float64 {
	r, _ := x.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		out[i] = sigmoid(dot(lr.Weights, x.RawRowView(i)) + lr.Bias)
	}
	return out
}

func (lr *LogisticRegression) Predict(x *mat.Dense) []float64 {
	proba := lr.PredictProba(x)
	for i, p := range proba {
		proba[i] = label(p)
	}
	return proba
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
