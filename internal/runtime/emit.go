package runtime

import (
	"context"

	"github.com/aretw0/stepflow/pkg/domain"
)

func (c *Controller) base(t domain.EventType) domain.EventBase {
	return domain.EventBase{
		Timestamp: c.now(),
		Type:      t,
		SessionID: c.sessionID,
	}
}

func (c *Controller) emitStepChange(ctx context.Context, id, from domain.StepID) {
	c.logger.DebugContext(ctx, "step change", "step_id", id, "from", from)
	if c.hooks.OnStepChange != nil {
		c.hooks.OnStepChange(ctx, &domain.StepEvent{
			EventBase: c.base(domain.EventStepChange),
			StepID:    id,
			From:      from,
		})
	}
}

func (c *Controller) emitStepUnavailable(ctx context.Context, id domain.StepID) {
	c.logger.InfoContext(ctx, "current step no longer available", "step_id", id)
	if c.hooks.OnStepUnavailable != nil {
		c.hooks.OnStepUnavailable(ctx, &domain.StepEvent{
			EventBase: c.base(domain.EventStepUnavailable),
			StepID:    id,
		})
	}
}

func (c *Controller) emitStepComplete(ctx context.Context, id domain.StepID, payload domain.Payload) {
	c.logger.DebugContext(ctx, "step complete", "step_id", id, "fields", len(payload))
	if c.hooks.OnStepComplete != nil {
		c.hooks.OnStepComplete(ctx, &domain.CompletionEvent{
			EventBase: c.base(domain.EventStepComplete),
			StepID:    id,
			Payload:   payload,
		})
	}
}

// emitCommitted hands observers a diff against old and a copy of the committed context.
func (c *Controller) emitCommitted(ctx context.Context, old *domain.StepContext) {
	if c.hooks.OnContextCommitted == nil {
		return
	}
	c.hooks.OnContextCommitted(ctx, &domain.CommitEvent{
		EventBase: c.base(domain.EventContextCommitted),
		Diff:      domain.Diff(old, c.context),
		Context:   c.context.Clone(),
	})
}

func (c *Controller) emitProfileChange(ctx context.Context, id, previous string) {
	c.logger.InfoContext(ctx, "flow profile change", "profile", id, "previous", previous)
	if c.hooks.OnProfileChange != nil {
		c.hooks.OnProfileChange(ctx, &domain.ProfileEvent{
			EventBase: c.base(domain.EventProfileChange),
			ProfileID: id,
			Previous:  previous,
		})
	}
}
