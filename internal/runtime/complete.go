package runtime

import (
	"context"
	"fmt"
	"slices"

	"github.com/aretw0/stepflow/pkg/domain"
)

// Complete merges payload into the context and marks the step completed.
//
// Navigation is not recomputed against the pre-mutation availability: a recompute task is
// queued and runs only after OnStepComplete and OnContextCommitted have observed the commit.
// When Complete is the outermost operation the returned result is the recompute's; when it
// is nested in a hook, the recompute runs once the outer operation returns.
func (c *Controller) Complete(ctx context.Context, id domain.StepID, payload domain.Payload) (domain.NavigationResult, error) {
	if err := c.begin(); err != nil {
		return domain.NavigationResult{}, err
	}
	res, err := c.commit(ctx, id, payload)
	final, ran := c.finish(ctx)
	if err != nil {
		return domain.NavigationResult{}, err
	}
	if ran {
		return final, nil
	}
	return res, nil
}

func (c *Controller) commit(ctx context.Context, id domain.StepID, payload domain.Payload) (domain.NavigationResult, error) {
	def, ok := c.registry.GetStep(id)
	if !ok {
		return domain.NavigationResult{}, stepNotFound(id)
	}
	if err := checkOwnership(def, payload, c.registry.Claimed); err != nil {
		return domain.NavigationResult{}, err
	}
	if behavior, ok := c.registry.Behavior(id); ok {
		if err := behavior.Validate(payload); err != nil {
			return domain.NavigationResult{}, fmt.Errorf("%w by step %s: %w", domain.ErrPayloadRejected, id, err)
		}
	}

	old := c.context.Clone()
	if err := c.context.Merge(payload); err != nil {
		return domain.NavigationResult{}, fmt.Errorf("%w: step %s: %w", domain.ErrPayloadRejected, id, err)
	}
	c.context.MarkCompleted(id)

	c.emitStepComplete(ctx, id, payload)
	c.emitCommitted(ctx, old)
	if c.closed {
		// An observer ended the session; nothing is left to navigate.
		return domain.NavigationResult{Outcome: domain.OutcomeStayed, From: c.state.StepID, StepID: c.state.StepID, State: c.state}, nil
	}

	c.queue.push(task{
		name: "recompute:" + string(id),
		run: func(ctx context.Context) domain.NavigationResult {
			return c.recompute(ctx, id)
		},
	})

	return domain.NavigationResult{
		Outcome: domain.OutcomeStayed,
		From:    c.state.StepID,
		StepID:  c.state.StepID,
		State:   c.state,
	}, nil
}

// recompute reads the live context, so it stays correct however late it runs.
func (c *Controller) recompute(ctx context.Context, completed domain.StepID) domain.NavigationResult {
	from := c.state.StepID
	steps := c.AvailableSteps()

	switch c.state.Status {
	case domain.StatusProfileActive:
		return c.result(domain.OutcomeProfileActive, from, steps)
	case domain.StatusIdle:
		if target, ok := firstUncompleted(steps, c.context); ok {
			c.moveTo(ctx, target.ID)
			return c.result(domain.OutcomeMoved, from, steps)
		}
		return c.result(domain.OutcomeIdle, from, steps)
	}

	for _, s := range c.following(steps, completed) {
		if !c.context.IsCompleted(s.ID) {
			c.moveTo(ctx, s.ID)
			return c.result(domain.OutcomeMoved, from, steps)
		}
	}

	if !slices.ContainsFunc(steps, func(s domain.StepDefinition) bool { return s.ID == from }) {
		c.markUnavailable(ctx, from)
		return c.result(domain.OutcomeUnavailable, from, steps)
	}
	if c.state.Status == domain.StatusStepUnavailable {
		c.setState(domain.ControllerState{Status: domain.StatusAwaitingStep, StepID: from})
	}
	return c.result(domain.OutcomeNoNextStep, from, steps)
}

// following returns the entries after completed. If completed itself is no longer
// available, its order marks the position instead.
func (c *Controller) following(steps []domain.StepDefinition, completed domain.StepID) []domain.StepDefinition {
	for i, s := range steps {
		if s.ID == completed {
			return steps[i+1:]
		}
	}
	def, ok := c.registry.GetStep(completed)
	if !ok {
		return nil
	}
	for i, s := range steps {
		if s.Order > def.Order {
			return steps[i:]
		}
	}
	return nil
}

// checkOwnership rejects keys outside the step's Owns. A step without Owns may set any key
// no other step has claimed.
func checkOwnership(def domain.StepDefinition, payload domain.Payload, claimed func(string) bool) error {
	var foreign []string
	for key := range payload {
		if len(def.Owns) == 0 {
			if claimed(key) {
				foreign = append(foreign, key)
			}
			continue
		}
		if !def.OwnsField(key) {
			foreign = append(foreign, key)
		}
	}
	if len(foreign) == 0 {
		return nil
	}
	slices.Sort(foreign)
	return &domain.OwnershipError{StepID: def.ID, Keys: foreign}
}

func stepNotFound(id domain.StepID) error {
	return fmt.Errorf("%w: %s", domain.ErrStepNotFound, id)
}
