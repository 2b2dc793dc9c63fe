package model

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Metric names the score used to compare trials.
type Metric string

const (
	MetricAccuracy Metric = "accuracy"
	MetricF1       Metric = "f1"
	// MetricR2 is the coefficient of determination over 0/1 labels. It is
	// kept for parity with the regression-style score the pipeline used
	// historically.
	MetricR2 Metric = "r2"
)

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case MetricAccuracy, MetricF1, MetricR2:
		return m, nil
	}
	return "", fmt.Errorf("unknown metric %q (want accuracy, f1 or r2)", s)
}

// Score computes metric m for predictions yPred against yTrue.
func Score(m Metric, yTrue, yPred []float64) float64 {
	switch m {
	case MetricF1:
		return F1(yTrue, yPred)
	case MetricR2:
		return R2(yTrue, yPred)
	default:
		return Accuracy(yTrue, yPred)
	}
}

// Accuracy is the fraction of matching labels.
func Accuracy(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	hit := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			hit++
		}
	}
	return float64(hit) / float64(len(yTrue))
}

// R2 is the coefficient of determination. A constant target scores 1 for a
// perfect prediction and 0 otherwise.
func R2(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	constant := true
	for _, v := range yTrue[1:] {
		if v != yTrue[0] {
			constant = false
			break
		}
	}
	if constant {
		for i := range yTrue {
			if yPred[i] != yTrue[i] {
				return 0
			}
		}
		return 1
	}
	return stat.RSquaredFrom(yPred, yTrue, nil)
}

// ClassificationMetric is the precision/recall/F1 snapshot for class 1.
type ClassificationMetric struct {
	F1        float64 `json:"f1_score" yaml:"f1_score"`
	Precision float64 `json:"precision_score" yaml:"precision_score"`
	Recall    float64 `json:"recall_score" yaml:"recall_score"`
}

// ClassificationReport computes precision, recall and F1 for class 1.
// Undefined ratios (no predicted or no actual positives) are 0.
func ClassificationReport(yTrue, yPred []float64) ClassificationMetric {
	var tp, fp, fn float64
	for i := range yTrue {
		switch {
		case yPred[i] == 1 && yTrue[i] == 1:
			tp++
		case yPred[i] == 1 && yTrue[i] == 0:
			fp++
		case yPred[i] == 0 && yTrue[i] == 1:
			fn++
		}
	}
	var m ClassificationMetric
	if tp+fp > 0 {
		m.Precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		m.Recall = tp / (tp + fn)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}

// F1 is the F1 score for class 1.
func F1(yTrue, yPred []float64) float64 {
	return ClassificationReport(yTrue, yPred).F1
}
