// Package search trains every candidate model family over its
// hyperparameter grid and selects the best trial by held-out score.
package search

import (
	"fmt"
	"sort"

	"network-security/internal/cfg"
	"network-security/internal/errs"
	"network-security/internal/model"
)

// Grid maps a hyperparameter name to its candidate values.
type Grid map[string][]any

// Points expands the grid into its cross-product. Parameter names are
// iterated in sorted order and values in declared order, with the last
// name varying fastest. An empty grid yields a single empty point.
func (g Grid) Points() []model.Params {
	names := make([]string, 0, len(g))
	for name := range g {
		names = append(names, name)
	}
	sort.Strings(names)

	points := []model.Params{{}}
	for _, name := range names {
		next := make([]model.Params, 0, len(points)*len(g[name]))
		for _, p := range points {
			for _, v := range g[name] {
				q := p.Clone()
				q[name] = v
				next = append(next, q)
			}
		}
		points = next
	}
	return points
}

// Size returns the number of points in the grid.
func (g Grid) Size() int {
	n := 1
	for _, values := range g {
		n *= len(values)
	}
	return n
}

// CandidateSpec is a model family with its search grid.
type CandidateSpec struct {
	Family model.Family `yaml:"family" json:"family"`
	Grid   Grid         `yaml:"grid" json:"grid"`
}

// Registry is the ordered list of candidates. Declaration order is
// significant: it breaks ties between families with equal test scores.
type Registry []CandidateSpec

// DefaultRegistry returns the phishing-detection candidates.
func DefaultRegistry() Registry {
	return Registry{
		{Family: model.RandomForestFamily, Grid: Grid{
			"n_estimators": {8, 16, 32, 128, 256},
		}},
		{Family: model.DecisionTreeFamily, Grid: Grid{
			"criterion": {"gini", "entropy", "log_loss"},
		}},
		{Family: model.GradientBoostingFamily, Grid: Grid{
			"learning_rate": {0.1, 0.01, 0.05, 0.001},
			"subsample":     {0.6, 0.7, 0.75, 0.85, 0.9},
			"n_estimators":  {8, 16, 32, 64, 128, 256},
		}},
		{Family: model.LogisticRegressionFamily, Grid: Grid{}},
		{Family: model.AdaBoostFamily, Grid: Grid{
			"learning_rate": {0.1, 0.01, 0.001},
			"n_estimators":  {8, 16, 32, 64, 128, 256},
		}},
	}
}

// RegistryFromConfig builds a registry from declared candidates, keeping
// their order. An empty declaration selects DefaultRegistry.
func RegistryFromConfig(candidates []cfg.CandidateConfig) (Registry, error) {
	if len(candidates) == 0 {
		return DefaultRegistry(), nil
	}
	reg := make(Registry, len(candidates))
	for i, c := range candidates {
		reg[i] = CandidateSpec{Family: model.Family(c.Family), Grid: Grid(c.Grid)}
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

// Validate checks that every family is known, appears once, and that every
// grid parameter has at least one value.
func (r Registry) Validate() error {
	seen := make(map[model.Family]bool, len(r))
	for i, c := range r {
		o := errs.Origin{Component: "search", Operation: "validate_registry", Input: fmt.Sprintf("candidate[%d]=%s", i, c.Family)}
		if !model.Known(c.Family) {
			return errs.Newf(errs.ErrInvalidInput, o, "unknown model family")
		}
		if seen[c.Family] {
			return errs.Newf(errs.ErrInvalidInput, o, "family declared twice")
		}
		seen[c.Family] = true
		for name, values := range c.Grid {
			if len(values) == 0 {
				return errs.Newf(errs.ErrInvalidInput, o, "parameter %s has no candidate values", name)
			}
		}
	}
	return nil
}

// Size returns the total number of grid points across all candidates.
func (r Registry) Size() int {
	n := 0
	for _, c := range r {
		n += c.Grid.Size()
	}
	return n
}
