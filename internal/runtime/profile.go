package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/stepflow/pkg/domain"
)

// ActivateProfile applies a flow profile and enters ProfileActive.
//
// While a profile is active the combined-input surface replaces the step cursor:
// Advance, Retreat and GoTo report OutcomeProfileActive and Complete merges without moving.
// The cursor position is remembered for DeactivateProfile.
func (c *Controller) ActivateProfile(ctx context.Context, id string) (domain.NavigationResult, error) {
	if err := c.begin(); err != nil {
		return domain.NavigationResult{}, err
	}
	res, err := c.activate(ctx, id)
	res = c.end(ctx, res)
	return res, err
}

func (c *Controller) activate(ctx context.Context, id string) (domain.NavigationResult, error) {
	p, ok := c.profiles.Get(id)
	if !ok {
		return domain.NavigationResult{}, fmt.Errorf("%w: %s", domain.ErrProfileNotFound, id)
	}

	from := c.state.StepID
	previous := c.state.ProfileID
	if c.state.Status != domain.StatusProfileActive {
		c.resumeAt = from
	}

	c.registry.SetFlowProfile(p)
	c.setState(domain.ControllerState{Status: domain.StatusProfileActive, ProfileID: p.ID})
	if previous != p.ID {
		c.emitProfileChange(ctx, p.ID, previous)
	}
	return c.result(domain.OutcomeProfileActive, from, c.AvailableSteps()), nil
}

// DeactivateProfile restores the baseline orders and resumes step navigation at the
// remembered step if it is still available, otherwise at the first uncompleted step.
func (c *Controller) DeactivateProfile(ctx context.Context) (domain.NavigationResult, error) {
	if err := c.begin(); err != nil {
		return domain.NavigationResult{}, err
	}
	if c.state.Status != domain.StatusProfileActive {
		res := c.result(domain.OutcomeStayed, c.state.StepID, c.AvailableSteps())
		return c.end(ctx, res), nil
	}

	previous := c.registry.ClearFlowProfile()
	if previous == "" {
		previous = c.state.ProfileID
	}
	resume := c.resumeAt
	c.resumeAt = ""

	steps := c.AvailableSteps()
	var res domain.NavigationResult
	if isAvailable(steps, resume) {
		c.moveTo(ctx, resume)
		res = c.result(domain.OutcomeMoved, "", steps)
	} else if target, ok := firstUncompleted(steps, c.context); ok {
		c.moveTo(ctx, target.ID)
		res = c.result(domain.OutcomeMoved, "", steps)
	} else {
		c.setState(domain.ControllerState{Status: domain.StatusIdle})
		res = c.result(domain.OutcomeIdle, "", steps)
	}
	c.emitProfileChange(ctx, "", previous)
	return c.end(ctx, res), nil
}

// ApplyMatchingProfile activates the first registered profile whose activation conditions
// hold for the current context. With no match it reports OutcomeStayed and changes nothing.
func (c *Controller) ApplyMatchingProfile(ctx context.Context) (domain.NavigationResult, bool, error) {
	if c.closed {
		return domain.NavigationResult{}, false, domain.ErrSessionClosed
	}
	p, ok := c.profiles.Select(c.context, c.registry.Evaluator())
	if !ok {
		return c.result(domain.OutcomeStayed, c.state.StepID, c.AvailableSteps()), false, nil
	}
	res, err := c.ActivateProfile(ctx, p.ID)
	return res, err == nil, err
}

func isAvailable(steps []domain.StepDefinition, id domain.StepID) bool {
	if id == "" {
		return false
	}
	for _, s := range steps {
		if s.ID == id {
			return true
		}
	}
	return false
}
