package runtime

import (
	"context"

	"github.com/aretw0/stepflow/pkg/availability"
	"github.com/aretw0/stepflow/pkg/domain"
)

// Advance moves the cursor to the entry following the current step.
// At the last entry the cursor stays and the outcome is OutcomeNoNextStep.
func (c *Controller) Advance(ctx context.Context) (domain.NavigationResult, error) {
	return c.step(ctx, +1)
}

// Retreat moves the cursor to the entry preceding the current step.
// Going back never clears selections or completions.
func (c *Controller) Retreat(ctx context.Context) (domain.NavigationResult, error) {
	return c.step(ctx, -1)
}

func (c *Controller) step(ctx context.Context, delta int) (domain.NavigationResult, error) {
	if err := c.begin(); err != nil {
		return domain.NavigationResult{}, err
	}
	res := c.navigate(ctx, delta)
	return c.end(ctx, res), nil
}

func (c *Controller) navigate(ctx context.Context, delta int) domain.NavigationResult {
	from := c.state.StepID
	steps := c.AvailableSteps()

	switch c.state.Status {
	case domain.StatusProfileActive:
		return c.result(domain.OutcomeProfileActive, from, steps)
	case domain.StatusIdle:
		// Context changes may have opened steps since the controller went idle.
		if len(steps) == 0 {
			return c.result(domain.OutcomeIdle, from, steps)
		}
		c.moveTo(ctx, steps[0].ID)
		return c.result(domain.OutcomeMoved, from, steps)
	}

	idx := availability.IndexOf(steps, from)
	if idx < 0 {
		c.markUnavailable(ctx, from)
		return c.result(domain.OutcomeUnavailable, from, steps)
	}
	if c.state.Status == domain.StatusStepUnavailable {
		// The step came back: resume it before moving on.
		c.setState(domain.ControllerState{Status: domain.StatusAwaitingStep, StepID: from})
	}

	next := idx + delta
	switch {
	case next >= len(steps):
		return c.result(domain.OutcomeNoNextStep, from, steps)
	case next < 0:
		return c.result(domain.OutcomeNoPreviousStep, from, steps)
	}

	c.moveTo(ctx, steps[next].ID)
	return c.result(domain.OutcomeMoved, from, steps)
}

// GoTo jumps directly to an available step.
// A step that is not currently available leaves the state untouched and reports OutcomeUnavailable.
func (c *Controller) GoTo(ctx context.Context, id domain.StepID) (domain.NavigationResult, error) {
	if err := c.begin(); err != nil {
		return domain.NavigationResult{}, err
	}
	if _, ok := c.registry.GetStep(id); !ok {
		c.end(ctx, domain.NavigationResult{})
		return domain.NavigationResult{}, stepNotFound(id)
	}

	from := c.state.StepID
	steps := c.AvailableSteps()

	var res domain.NavigationResult
	switch {
	case c.state.Status == domain.StatusProfileActive:
		res = c.result(domain.OutcomeProfileActive, from, steps)
	case availability.IndexOf(steps, id) < 0:
		res = c.result(domain.OutcomeUnavailable, from, steps)
		res.StepID = id
	case id == from && c.state.Status == domain.StatusAwaitingStep:
		res = c.result(domain.OutcomeStayed, from, steps)
	default:
		c.moveTo(ctx, id)
		res = c.result(domain.OutcomeMoved, from, steps)
	}
	return c.end(ctx, res), nil
}

func (c *Controller) moveTo(ctx context.Context, id domain.StepID) {
	from := c.state.StepID
	c.setState(domain.ControllerState{Status: domain.StatusAwaitingStep, StepID: id})
	if from != id {
		c.emitStepChange(ctx, id, from)
	}
}

// markUnavailable keeps the cursor on id but flags it. It never substitutes another step.
func (c *Controller) markUnavailable(ctx context.Context, id domain.StepID) {
	if c.state.Status == domain.StatusStepUnavailable && c.state.StepID == id {
		return
	}
	c.setState(domain.ControllerState{Status: domain.StatusStepUnavailable, StepID: id})
	c.emitStepUnavailable(ctx, id)
}
