package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/aretw0/stepflow/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	hooks := m.Hooks()
	ctx := context.Background()
	hooks.OnStepChange(ctx, &domain.StepEvent{StepID: "intent"})
	hooks.OnStepChange(ctx, &domain.StepEvent{StepID: "intent"})
	hooks.OnStepComplete(ctx, &domain.CompletionEvent{StepID: "category"})
	hooks.OnStepUnavailable(ctx, &domain.StepEvent{StepID: "transaction"})
	hooks.OnProfileChange(ctx, &domain.ProfileEvent{ProfileID: "quick"})
	hooks.OnProfileChange(ctx, &domain.ProfileEvent{Previous: "quick"})
	hooks.OnContextCommitted(ctx, &domain.CommitEvent{Diff: &domain.ContextDiff{Fields: map[string]any{"category": "job"}}})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.StepChanges.WithLabelValues("intent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StepCompletions.WithLabelValues("category")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StepUnavailable.WithLabelValues("transaction")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProfileChanges.WithLabelValues("quick")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProfileChanges.WithLabelValues("none")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ChangedFields))
}

func TestNewMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := observability.NewMetrics(reg)
	require.NoError(t, err)
	second, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	second.Hooks().OnStepComplete(context.Background(), &domain.CompletionEvent{StepID: "a"})
	assert.Equal(t, 1.0, testutil.ToFloat64(first.StepCompletions.WithLabelValues("a")))
}

func TestLoggingHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	hooks := observability.LoggingHooks(logger)
	ctx := context.Background()
	hooks.OnStepComplete(ctx, &domain.CompletionEvent{
		EventBase: domain.EventBase{SessionID: "s1"},
		StepID:    "category",
		Payload:   domain.Payload{"selectedCategory": "job", "secret": "x"},
	})
	hooks.OnContextCommitted(ctx, &domain.CommitEvent{
		EventBase: domain.EventBase{SessionID: "s1"},
		Diff:      &domain.ContextDiff{Fields: map[string]any{"category": "job"}},
	})

	out := buf.String()
	assert.Contains(t, out, "msg=step_complete")
	assert.Contains(t, out, "session_id=s1")
	assert.Contains(t, out, "fields=\"[secret selectedCategory]\"")
	assert.NotContains(t, out, "job", "payload values are not logged")
	assert.Contains(t, out, "msg=context_committed")
	assert.Contains(t, out, "changed=[category]")
}
