package availability_test

import (
	"math"
	"testing"

	"github.com/aretw0/stepflow/pkg/availability"
	"github.com/aretw0/stepflow/pkg/condition"
	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spyEvaluator records every condition it is asked about.
type spyEvaluator struct {
	calls  []domain.Condition
	answer bool
}

func (s *spyEvaluator) Evaluate(c domain.Condition, _ *domain.StepContext) bool {
	s.calls = append(s.calls, c)
	return s.answer
}

func step(id string, order int, deps ...domain.StepID) domain.StepDefinition {
	return domain.StepDefinition{
		ID:           domain.StepID(id),
		DisplayName:  id,
		Component:    id,
		Order:        order,
		IsVisible:    true,
		Dependencies: deps,
	}
}

func TestAvailable_DependenciesShortCircuitConditions(t *testing.T) {
	spy := &spyEvaluator{answer: true}
	f := availability.New(spy)

	gated := step("location", 3, "category", "intent")
	gated.Conditions = []domain.Condition{domain.CategoryIs(domain.OpEquals, "property")}

	ctx := domain.NewStepContext(nil)
	ctx.MarkCompleted("category")

	got := f.Available([]domain.StepDefinition{gated}, ctx)

	assert.Empty(t, got, "unmet dependency must exclude the step")
	assert.Empty(t, spy.calls, "conditions must not be evaluated while dependencies are unmet")

	ctx.MarkCompleted("intent")
	got = f.Available([]domain.StepDefinition{gated}, ctx)
	assert.Equal(t, []domain.StepID{"location"}, domain.IDs(got))
	assert.Len(t, spy.calls, 1)
}

func TestAvailable_ConditionsAreANDed(t *testing.T) {
	f := availability.New(condition.New())
	s := step("pricing", 1)
	s.Conditions = []domain.Condition{
		domain.CategoryIs(domain.OpEquals, "property"),
		domain.IntentIs(domain.OpEquals, "offer"),
	}

	ctx := domain.NewStepContext(nil)
	require.NoError(t, ctx.Merge(domain.Payload{domain.KeyCategory: "property"}))
	assert.Empty(t, f.Available([]domain.StepDefinition{s}, ctx))

	require.NoError(t, ctx.Merge(domain.Payload{domain.KeyIntent: "offer"}))
	assert.Len(t, f.Available([]domain.StepDefinition{s}, ctx), 1)
}

func TestAvailable_HiddenStepsNeverAppear(t *testing.T) {
	f := availability.New(condition.New())
	hidden := step("internal", 0)
	hidden.IsVisible = false

	got := f.Available([]domain.StepDefinition{hidden, step("category", 1)}, domain.NewStepContext(nil))
	assert.Equal(t, []domain.StepID{"category"}, domain.IDs(got))
}

func TestAvailable_StableOrdering(t *testing.T) {
	f := availability.New(condition.New())
	defs := []domain.StepDefinition{
		step("b", 2),
		step("a1", 1),
		step("c", 3),
		step("a2", 1),
		step("a3", 1),
	}
	ctx := domain.NewStepContext(nil)

	first := domain.IDs(f.Available(defs, ctx))
	assert.Equal(t, []domain.StepID{"a1", "a2", "a3", "b", "c"}, first, "ties keep registration order")

	for i := 0; i < 20; i++ {
		assert.Equal(t, first, domain.IDs(f.Available(defs, ctx)))
	}
	assert.Equal(t, domain.StepID("b"), defs[0].ID, "input must not be reordered")
}

func TestSortByOrder_ExtremeOrders(t *testing.T) {
	defs := []domain.StepDefinition{
		step("last", math.MaxInt),
		step("first", math.MinInt),
		step("middle", 0),
	}
	availability.SortByOrder(defs)
	assert.Equal(t, []domain.StepID{"first", "middle", "last"}, domain.IDs(defs))
}

func TestAvailable_PropertyOnlyStep(t *testing.T) {
	f := availability.New(condition.New())
	propertyOnly := step("propertyOnlyStep", 4, "category")
	propertyOnly.Conditions = []domain.Condition{
		{Type: domain.ConditionCategory, Operator: domain.OpNotEquals, Value: "job"},
	}
	defs := []domain.StepDefinition{step("category", 1), propertyOnly}

	jobCtx := domain.NewStepContext(nil)
	require.NoError(t, jobCtx.Merge(domain.Payload{domain.KeyCategory: "job"}))
	jobCtx.MarkCompleted("category")
	assert.Equal(t, []domain.StepID{"category"}, domain.IDs(f.Available(defs, jobCtx)))

	propertyCtx := domain.NewStepContext(nil)
	require.NoError(t, propertyCtx.Merge(domain.Payload{domain.KeyCategory: "property"}))
	propertyCtx.MarkCompleted("category")
	assert.Equal(t, []domain.StepID{"category", "propertyOnlyStep"}, domain.IDs(f.Available(defs, propertyCtx)))
}

func TestIndexOf(t *testing.T) {
	steps := []domain.StepDefinition{step("a", 1), step("b", 2)}
	assert.Equal(t, 1, availability.IndexOf(steps, "b"))
	assert.Equal(t, -1, availability.IndexOf(steps, "z"))
}
