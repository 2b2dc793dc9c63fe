package model

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds an unfitted classifier from hyperparameters and a seed.
// It returns an error for unknown or invalid parameters.
type Factory func(p Params, seed int64) (Classifier, error)

type registration struct {
	build Factory
	// blank returns a zero value the codec can decode into; nil marks a
	// family that cannot be persisted.
	blank func() Classifier
}

var (
	registryMu sync.RWMutex
	registry   = map[Family]registration{
		DecisionTreeFamily:       {newDecisionTree, func() Classifier { return &DecisionTree{} }},
		RandomForestFamily:       {newRandomForest, func() Classifier { return &RandomForest{} }},
		GradientBoostingFamily:   {newGradientBoosting, func() Classifier { return &GradientBoosting{} }},
		LogisticRegressionFamily: {newLogisticRegression, func() Classifier { return &LogisticRegression{} }},
		AdaBoostFamily:           {newAdaBoost, func() Classifier { return &AdaBoost{} }},
		KNNFamily:                {newKNN, func() Classifier { return &KNN{} }},
	}
)

// Register adds or replaces a family. blank may be nil when models of the
// family are never persisted.
func Register(f Family, build Factory, blank func() Classifier) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[f] = registration{build: build, blank: blank}
}

// New builds an unfitted classifier of family f.
func New(f Family, p Params, seed int64) (Classifier, error) {
	registryMu.RLock()
	reg, ok := registry[f]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown model family %q", f)
	}
	if p == nil {
		p = Params{}
	}
	c, err := reg.build(p, seed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f, err)
	}
	return c, nil
}

// Known reports whether f is registered.
func Known(f Family) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[f]
	return ok
}

// Families returns every registered family in sorted order.
func Families() []Family {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Family, 0, len(registry))
	for f := range registry {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func blankOf(f Family) (Classifier, error) {
	registryMu.RLock()
	reg, ok := registry[f]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown model family %q", f)
	}
	if reg.blank == nil {
		return nil, fmt.Errorf("model family %q cannot be decoded", f)
	}
	return reg.blank(), nil
}
