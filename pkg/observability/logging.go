package observability

import (
	"context"
	"log/slog"
	"maps"
	"slices"

	"github.com/aretw0/stepflow/pkg/domain"
)

// LoggingHooks returns lifecycle hooks that write one structured record per event.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepChange: func(ctx context.Context, e *domain.StepEvent) {
			logger.InfoContext(ctx, "step_change",
				"session_id", e.SessionID,
				"step_id", e.StepID,
				"from", e.From,
			)
		},
		OnStepComplete: func(ctx context.Context, e *domain.CompletionEvent) {
			logger.InfoContext(ctx, "step_complete",
				"session_id", e.SessionID,
				"step_id", e.StepID,
				"fields", payloadKeys(e.Payload),
			)
		},
		OnStepUnavailable: func(ctx context.Context, e *domain.StepEvent) {
			logger.WarnContext(ctx, "step_unavailable",
				"session_id", e.SessionID,
				"step_id", e.StepID,
			)
		},
		OnContextCommitted: func(ctx context.Context, e *domain.CommitEvent) {
			var changed []string
			if e.Diff != nil {
				changed = slices.Sorted(maps.Keys(e.Diff.Fields))
			}
			logger.DebugContext(ctx, "context_committed",
				"session_id", e.SessionID,
				"changed", changed,
			)
		},
		OnProfileChange: func(ctx context.Context, e *domain.ProfileEvent) {
			logger.InfoContext(ctx, "profile_change",
				"session_id", e.SessionID,
				"profile_id", e.ProfileID,
				"previous", e.Previous,
			)
		},
	}
}

// payloadKeys logs field names only; values may carry personal data.
func payloadKeys(p domain.Payload) []string {
	return slices.Sorted(maps.Keys(p))
}
