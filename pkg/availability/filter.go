// Package availability computes the ordered set of steps a session can currently reach.
package availability

import (
	"cmp"
	"slices"

	"github.com/aretw0/stepflow/pkg/domain"
)

// Evaluator resolves a single condition against a context.
type Evaluator interface {
	Evaluate(cond domain.Condition, ctx *domain.StepContext) bool
}

// Filter applies the reachability rules to a step table.
// It never mutates its inputs.
type Filter struct {
	evaluator Evaluator
}

// New creates a Filter backed by the given evaluator.
func New(evaluator Evaluator) *Filter {
	return &Filter{evaluator: evaluator}
}

// Available returns the reachable steps of defs, which must be given in registration order.
//
// A visible step is reachable when all its dependencies are completed and all its conditions
// hold. Dependencies are checked first: a step with an unmet dependency is dropped without
// evaluating any of its conditions. The result is sorted by Order, ties keeping registration order.
func (f *Filter) Available(defs []domain.StepDefinition, ctx *domain.StepContext) []domain.StepDefinition {
	if ctx == nil {
		ctx = &domain.StepContext{}
	}

	out := make([]domain.StepDefinition, 0, len(defs))
	for _, def := range defs {
		if !def.IsVisible {
			continue
		}
		if !DependenciesMet(def, ctx) {
			continue
		}
		if !f.conditionsHold(def, ctx) {
			continue
		}
		out = append(out, def)
	}

	SortByOrder(out)
	return out
}

// DependenciesMet reports whether every dependency of def is completed in ctx.
func DependenciesMet(def domain.StepDefinition, ctx *domain.StepContext) bool {
	for _, dep := range def.Dependencies {
		if !ctx.IsCompleted(dep) {
			return false
		}
	}
	return true
}

func (f *Filter) conditionsHold(def domain.StepDefinition, ctx *domain.StepContext) bool {
	for _, c := range def.Conditions {
		if !f.evaluator.Evaluate(c, ctx) {
			return false
		}
	}
	return true
}

// SortByOrder sorts steps ascending by Order. The sort is stable, so callers that pass
// steps in registration order get registration order as the tiebreak.
func SortByOrder(defs []domain.StepDefinition) {
	slices.SortStableFunc(defs, func(a, b domain.StepDefinition) int {
		return cmp.Compare(a.Order, b.Order)
	})
}

// IndexOf returns the position of id in steps, or -1.
func IndexOf(steps []domain.StepDefinition, id domain.StepID) int {
	return slices.IndexFunc(steps, func(d domain.StepDefinition) bool {
		return d.ID == id
	})
}
