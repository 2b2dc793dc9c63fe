// Package gate enforces the minimum quality a selected model must reach
// before it is persisted.
package gate

import (
	"fmt"

	"network-security/internal/cfg"
	"network-security/internal/errs"
	"network-security/internal/search"
)

// Tolerance absorbs floating-point noise at the thresholds.
const Tolerance = 1e-9

// Check accepts best when its test score is at least c.MinAccuracy and its
// train/test gap is at most c.MaxGap. Values exactly on a threshold pass.
func Check(best search.TrialResult, c cfg.TrainerConfig) error {
	o := errs.Origin{
		Component: "gate",
		Operation: "check",
		Input: fmt.Sprintf("%s train=%.6f test=%.6f gap=%.6f",
			best.Family, best.TrainScore, best.TestScore, best.Gap()),
	}
	if best.TestScore < c.MinAccuracy-Tolerance {
		return errs.Newf(errs.ErrBelowAccuracyThreshold, o,
			"test score %.6f below minimum %.6f", best.TestScore, c.MinAccuracy)
	}
	if best.Gap() > c.MaxGap+Tolerance {
		return errs.Newf(errs.ErrOverfitUnderfit, o,
			"train/test gap %.6f exceeds maximum %.6f", best.Gap(), c.MaxGap)
	}
	return nil
}
