package observability

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors fed by lifecycle hooks.
type Metrics struct {
	StepChanges     *prometheus.CounterVec
	StepCompletions *prometheus.CounterVec
	StepUnavailable *prometheus.CounterVec
	ProfileChanges  *prometheus.CounterVec
	ChangedFields   prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
// Collectors already registered by an earlier call are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		StepChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepflow_step_changes_total",
				Help: "Total number of cursor moves, by destination step",
			},
			[]string{"step_id"},
		),
		StepCompletions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepflow_step_completions_total",
				Help: "Total number of completed steps",
			},
			[]string{"step_id"},
		),
		StepUnavailable: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepflow_step_unavailable_total",
				Help: "Total number of times the current step dropped out of the availability list",
			},
			[]string{"step_id"},
		),
		ProfileChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepflow_profile_changes_total",
				Help: "Total number of flow profile activations and deactivations",
			},
			[]string{"profile_id"},
		),
		ChangedFields: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stepflow_context_changed_fields",
				Help:    "Number of selection fields changed per context commit",
				Buckets: []float64{0, 1, 2, 3, 5, 8},
			},
		),
	}

	if reg == nil {
		return m, nil
	}
	var err error
	m.StepChanges, err = register(reg, m.StepChanges)
	if err != nil {
		return nil, err
	}
	m.StepCompletions, err = register(reg, m.StepCompletions)
	if err != nil {
		return nil, err
	}
	m.StepUnavailable, err = register(reg, m.StepUnavailable)
	if err != nil {
		return nil, err
	}
	m.ProfileChanges, err = register(reg, m.ProfileChanges)
	if err != nil {
		return nil, err
	}
	m.ChangedFields, err = register(reg, m.ChangedFields)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register metrics: %w", err)
	}
	return c, nil
}

// Hooks returns lifecycle hooks that record into the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepChange: func(_ context.Context, e *domain.StepEvent) {
			m.StepChanges.WithLabelValues(string(e.StepID)).Inc()
		},
		OnStepComplete: func(_ context.Context, e *domain.CompletionEvent) {
			m.StepCompletions.WithLabelValues(string(e.StepID)).Inc()
		},
		OnStepUnavailable: func(_ context.Context, e *domain.StepEvent) {
			m.StepUnavailable.WithLabelValues(string(e.StepID)).Inc()
		},
		OnContextCommitted: func(_ context.Context, e *domain.CommitEvent) {
			n := 0
			if e.Diff != nil {
				n = len(e.Diff.Fields)
			}
			m.ChangedFields.Observe(float64(n))
		},
		OnProfileChange: func(_ context.Context, e *domain.ProfileEvent) {
			id := e.ProfileID
			if id == "" {
				id = "none"
			}
			m.ProfileChanges.WithLabelValues(id).Inc()
		},
	}
}
