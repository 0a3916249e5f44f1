// Package condition evaluates step conditions against a session context.
//
// Evaluation fails closed: anything the evaluator does not understand (an unknown
// condition type or operator, a missing predicate, a malformed expression) evaluates
// to false, hiding the step instead of exposing it.
package condition

import (
	"log/slog"
	"reflect"
	"sync"

	"github.com/aretw0/stepflow/internal/logging"
	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/expr-lang/expr/vm"
)

// PredicateFunc is a named predicate referenced by ConditionCustom.
type PredicateFunc func(ctx *domain.StepContext) bool

// Evaluator resolves conditions. It is safe for concurrent use.
type Evaluator struct {
	mu         sync.RWMutex
	predicates map[string]PredicateFunc
	programs   map[string]*vm.Program
	logger     *slog.Logger
}

// Option configures the Evaluator.
type Option func(*Evaluator)

// WithLogger configures a logger for fail-closed diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// WithPredicate registers a named predicate at construction time.
func WithPredicate(name string, fn PredicateFunc) Option {
	return func(e *Evaluator) {
		e.predicates[name] = fn
	}
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		predicates: make(map[string]PredicateFunc),
		programs:   make(map[string]*vm.Program),
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterPredicate adds or replaces a named predicate.
func (e *Evaluator) RegisterPredicate(name string, fn PredicateFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.predicates[name]; exists {
		e.logger.Warn("overwriting condition predicate", "predicate", name)
	}
	e.predicates[name] = fn
}

// Evaluate reports whether cond holds for ctx.
func (e *Evaluator) Evaluate(cond domain.Condition, ctx *domain.StepContext) bool {
	if ctx == nil {
		ctx = &domain.StepContext{}
	}
	switch cond.Type {
	case domain.ConditionCustom:
		return e.evaluatePredicate(cond, ctx)
	case domain.ConditionExpr:
		return e.evaluateExpr(cond, ctx)
	case domain.ConditionCategory:
		return e.compare(cond, ctx.Field("category"))
	case domain.ConditionIntent:
		return e.compare(cond, ctx.Field("intent"))
	case domain.ConditionFeatureFlag:
		if cond.Value == nil {
			cond.Value = true
		}
		return e.compare(cond, ctx.Field("featureFlags."+cond.Field))
	case domain.ConditionField:
		return e.compare(cond, ctx.Field(cond.Field))
	default:
		e.logger.Warn("unrecognized condition type, evaluating as false", "type", cond.Type)
		return false
	}
}

// All reports whether every condition holds. Zero conditions hold trivially.
func (e *Evaluator) All(conds []domain.Condition, ctx *domain.StepContext) bool {
	for _, c := range conds {
		if !e.Evaluate(c, ctx) {
			return false
		}
	}
	return true
}

func (e *Evaluator) evaluatePredicate(cond domain.Condition, ctx *domain.StepContext) bool {
	name, _ := cond.Value.(string)
	e.mu.RLock()
	fn, ok := e.predicates[name]
	e.mu.RUnlock()
	if !ok || fn == nil {
		e.logger.Warn("unknown condition predicate, evaluating as false", "predicate", name)
		return false
	}
	return fn(ctx)
}

func (e *Evaluator) compare(cond domain.Condition, actual any) bool {
	switch cond.Operator {
	case domain.OpEquals, "":
		return identical(actual, cond.Value)
	case domain.OpNotEquals:
		return !identical(actual, cond.Value)
	case domain.OpIn, domain.OpNotIn:
		members, ok := asSlice(cond.Value)
		if !ok {
			e.logger.Warn("membership condition requires a list, evaluating as false", "condition", cond.String())
			return false
		}
		found := false
		for _, m := range members {
			if identical(actual, m) {
				found = true
				break
			}
		}
		if cond.Operator == domain.OpIn {
			return found
		}
		return !found
	default:
		e.logger.Warn("unrecognized condition operator, evaluating as false", "operator", cond.Operator)
		return false
	}
}

// identical compares primitives by value. Numbers compare by value whatever their Go type,
// so a catalog int matches a JSON float64. Values of non-comparable types are never identical.
func identical(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if na, ok := number(a); ok {
		nb, ok := number(b)
		return ok && na == nb
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

func number(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func asSlice(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
