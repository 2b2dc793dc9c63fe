package search

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"network-security/internal/dataset"
	"network-security/internal/errs"
	"network-security/internal/model"
)

// MetricsInterface receives per-trial instrumentation.
type MetricsInterface interface {
	TrialsInc(family string)
	TrialFailuresInc(family string)
	TrialDurationObserve(family string, seconds float64)
}

// Config controls how the search runs.
type Config struct {
	Metric  model.Metric
	CVFolds int
	Workers int
	Seed    int64
	Timeout time.Duration
}

// Selection is the outcome of a search.
type Selection struct {
	Metric   model.Metric
	Best     TrialResult
	Trials   []TrialSummary
	Failures []error
}

// Report returns the best test score reached by each family.
func (s *Selection) Report() map[model.Family]float64 {
	report := make(map[model.Family]float64)
	for _, t := range s.Trials {
		if best, ok := report[t.Family]; !ok || t.TestScore > best {
			report[t.Family] = t.TestScore
		}
	}
	return report
}

// Engine runs model searches.
type Engine struct {
	cfg     Config
	metrics MetricsInterface
}

// NewEngine creates an engine. metrics may be nil.
func NewEngine(cfg Config, metrics MetricsInterface) *Engine {
	if cfg.Metric == "" {
		cfg.Metric = model.MetricAccuracy
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Engine{cfg: cfg, metrics: metrics}
}

type job struct {
	familyIndex int
	pointIndex  int
	family      model.Family
	params      model.Params
}

type outcome struct {
	trial TrialResult
	err   error
}

// Search fits every candidate over its grid and returns the trial with the
// highest test score. Ties go to the family declared first, then to the
// smaller train/test gap, then to the earlier grid point. Trials that fail
// to train are skipped; if none succeed the error wraps ErrNoViableModel.
func (e *Engine) Search(ctx context.Context, reg Registry, train, test dataset.Dataset) (*Selection, error) {
	o := errs.Origin{Component: "search", Operation: "search", Input: fmt.Sprintf("%d candidates", len(reg))}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	if err := dataset.CheckCompatible(train, test); err != nil {
		return nil, err
	}
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	jobs := make([]job, 0, reg.Size())
	for fi, c := range reg {
		for pi, p := range c.Grid.Points() {
			jobs = append(jobs, job{familyIndex: fi, pointIndex: pi, family: c.Family, params: p})
		}
	}

	log.Info().
		Int("candidates", len(reg)).
		Int("grid_points", len(jobs)).
		Int("cv_folds", e.cfg.CVFolds).
		Str("metric", string(e.cfg.Metric)).
		Msg("Starting model search")

	var (
		outcomes []outcome
		err      error
	)
	if e.cfg.CVFolds >= 2 {
		outcomes, err = e.searchCV(ctx, jobs, train, test)
	} else {
		outcomes, err = e.run(ctx, jobs, func(j job) (TrialResult, error) {
			return fitAndScore(j.family, j.params, e.cfg.Seed, e.cfg.Metric, train, test)
		})
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, errs.New(errs.ErrSearchAborted, o, err)
		}
		return nil, err
	}

	sel := &Selection{Metric: e.cfg.Metric}
	var best *TrialResult
	for i := range outcomes {
		oc := &outcomes[i]
		if oc.err != nil {
			sel.Failures = append(sel.Failures, oc.err)
			continue
		}
		sel.Trials = append(sel.Trials, oc.trial.Summary())
		if best == nil || better(oc.trial, *best) {
			best = &oc.trial
		}
	}
	if best == nil {
		return nil, errs.New(errs.ErrNoViableModel, o, errors.Join(sel.Failures...))
	}
	sel.Best = *best

	log.Info().
		Str("family", string(best.Family)).
		Str("params", best.Params.String()).
		Float64("train_score", best.TrainScore).
		Float64("test_score", best.TestScore).
		Int("trials", len(sel.Trials)).
		Int("failures", len(sel.Failures)).
		Msg("Best model selected")
	return sel, nil
}

// searchCV scores every grid point by stratified k-fold mean on train, then
// refits the best point of each family on the full train set.
func (e *Engine) searchCV(ctx context.Context, jobs []job, train, test dataset.Dataset) ([]outcome, error) {
	folds := makeFolds(train, e.cfg.CVFolds, e.cfg.Seed)
	if len(folds) < 2 {
		return nil, errs.Newf(errs.ErrInvalidInput, errs.Origin{Component: "search", Operation: "cross_validate"},
			"%d rows cannot fill %d folds", train.Rows(), e.cfg.CVFolds)
	}

	scored, err := e.run(ctx, jobs, func(j job) (TrialResult, error) {
		score, err := crossValidate(j.family, j.params, e.cfg.Seed, e.cfg.Metric, folds)
		if err != nil {
			return TrialResult{}, err
		}
		return TrialResult{Family: j.family, Params: j.params, CVScore: score}, nil
	})
	if err != nil {
		return nil, err
	}

	// Best CV point per family; the earlier point wins ties.
	chosen := make(map[int]int)
	var failures []outcome
	for i, oc := range scored {
		if oc.err != nil {
			failures = append(failures, oc)
			continue
		}
		fi := jobs[i].familyIndex
		if cur, ok := chosen[fi]; !ok || oc.trial.CVScore > scored[cur].trial.CVScore {
			chosen[fi] = i
		}
	}

	refit := make([]job, 0, len(chosen))
	for i, j := range jobs {
		if cur, ok := chosen[j.familyIndex]; ok && cur == i {
			refit = append(refit, j)
		}
	}
	outcomes, err := e.run(ctx, refit, func(j job) (TrialResult, error) {
		return fitAndScore(j.family, j.params, e.cfg.Seed, e.cfg.Metric, train, test)
	})
	if err != nil {
		return nil, err
	}
	for i := range outcomes {
		if outcomes[i].err == nil {
			outcomes[i].trial.CVScore = scored[chosen[refit[i].familyIndex]].trial.CVScore
		}
	}
	return append(outcomes, failures...), nil
}

// run executes fn for every job on a bounded pool. Training failures are
// recorded in the outcome; only context cancellation aborts the run.
func (e *Engine) run(ctx context.Context, jobs []job, fn func(job) (TrialResult, error)) ([]outcome, error) {
	out := make([]outcome, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	for i, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			res, err := fn(j)
			elapsed := time.Since(start)

			if e.metrics != nil {
				e.metrics.TrialsInc(string(j.family))
				e.metrics.TrialDurationObserve(string(j.family), elapsed.Seconds())
			}
			if err != nil {
				if e.metrics != nil {
					e.metrics.TrialFailuresInc(string(j.family))
				}
				log.Warn().Err(err).
					Str("family", string(j.family)).
					Str("params", j.params.String()).
					Msg("Trial failed, skipping")
				out[i] = outcome{err: err}
				return nil
			}

			res.FamilyIndex = j.familyIndex
			res.PointIndex = j.pointIndex
			res.Duration = elapsed
			log.Debug().
				Str("family", string(j.family)).
				Str("params", j.params.String()).
				Float64("train_score", res.TrainScore).
				Float64("test_score", res.TestScore).
				Float64("cv_score", res.CVScore).
				Dur("duration", elapsed).
				Msg("Trial finished")
			out[i] = outcome{trial: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func better(a, b TrialResult) bool {
	if a.TestScore != b.TestScore {
		return a.TestScore > b.TestScore
	}
	if a.FamilyIndex != b.FamilyIndex {
		return a.FamilyIndex < b.FamilyIndex
	}
	if a.Gap() != b.Gap() {
		return a.Gap() < b.Gap()
	}
	return a.PointIndex < b.PointIndex
}
