package search

import (
	"fmt"
	"math"
	"time"

	"network-security/internal/dataset"
	"network-security/internal/errs"
	"network-security/internal/model"
)

// TrialResult is one fitted (family, params) combination and its scores.
type TrialResult struct {
	Family      model.Family
	FamilyIndex int
	PointIndex  int
	Params      model.Params
	Model       model.Classifier
	TrainScore  float64
	TestScore   float64
	// CVScore is the mean cross-validation score that selected Params; it
	// is zero when the search ran without cross-validation.
	CVScore  float64
	Duration time.Duration
}

// Gap is the absolute train/test score difference.
func (t TrialResult) Gap() float64 {
	return math.Abs(t.TrainScore - t.TestScore)
}

// Summary drops the fitted model.
func (t TrialResult) Summary() TrialSummary {
	return TrialSummary{
		Family:     t.Family,
		Params:     t.Params,
		TrainScore: t.TrainScore,
		TestScore:  t.TestScore,
		CVScore:    t.CVScore,
	}
}

// TrialSummary is the part of a trial kept after selection.
type TrialSummary struct {
	Family     model.Family `json:"family"`
	Params     model.Params `json:"params"`
	TrainScore float64      `json:"train_score"`
	TestScore  float64      `json:"test_score"`
	CVScore    float64      `json:"cv_score,omitempty"`
}

// FitAndScore fits a fresh model of family with params on train and scores
// it on train and test with the same metric. The returned model is fully
// fit and safe to use independently.
func FitAndScore(family model.Family, params model.Params, seed int64, metric model.Metric, train, test dataset.Dataset) (TrialResult, error) {
	if err := dataset.CheckCompatible(train, test); err != nil {
		return TrialResult{}, err
	}
	return fitAndScore(family, params, seed, metric, train, test)
}

func fitAndScore(family model.Family, params model.Params, seed int64, metric model.Metric, train, test dataset.Dataset) (TrialResult, error) {
	start := time.Now()
	c, err := fit(family, params, seed, train)
	if err != nil {
		return TrialResult{}, err
	}
	return TrialResult{
		Family:     family,
		Params:     params,
		Model:      c,
		TrainScore: model.Score(metric, train.Y, c.Predict(train.X)),
		TestScore:  model.Score(metric, test.Y, c.Predict(test.X)),
		Duration:   time.Since(start),
	}, nil
}

// fit builds and fits one model, converting build errors, fit errors and
// panics into ErrTraining.
func fit(family model.Family, params model.Params, seed int64, train dataset.Dataset) (c model.Classifier, err error) {
	o := errs.Origin{Component: "search", Operation: "fit", Input: fmt.Sprintf("%s %s", family, params)}
	defer func() {
		if r := recover(); r != nil {
			c = nil
			err = errs.Newf(errs.ErrTraining, o, "panic: %v", r)
		}
	}()

	c, err = model.New(family, params, seed)
	if err != nil {
		return nil, errs.New(errs.ErrTraining, o, err)
	}
	if err := c.Fit(train.X, train.Y); err != nil {
		return nil, errs.New(errs.ErrTraining, o, err)
	}
	return c, nil
}

type fold struct {
	fit, val dataset.Dataset
}

// makeFolds drops parts that would leave an empty fit or validation set.
func makeFolds(train dataset.Dataset, k int, seed int64) []fold {
	parts := dataset.StratifiedKFold(train.Y, k, seed)
	folds := make([]fold, 0, len(parts))
	for _, part := range parts {
		rest := dataset.TrainIndices(train.Rows(), part)
		if len(part) == 0 || len(rest) == 0 {
			continue
		}
		folds = append(folds, fold{
			fit: train.Subset(rest),
			val: train.Subset(part),
		})
	}
	return folds
}

// crossValidate returns the mean validation score of params over folds.
func crossValidate(family model.Family, params model.Params, seed int64, metric model.Metric, folds []fold) (float64, error) {
	sum := 0.0
	for _, f := range folds {
		c, err := fit(family, params, seed, f.fit)
		if err != nil {
			return 0, err
		}
		sum += model.Score(metric, f.val.Y, c.Predict(f.val.X))
	}
	return sum / float64(len(folds)), nil
}
