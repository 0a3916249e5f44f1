// Package profile stores named flow profiles and selects them by activation conditions.
package profile

import (
	"log/slog"
	"sync"

	"github.com/aretw0/stepflow/internal/logging"
	"github.com/aretw0/stepflow/pkg/availability"
	"github.com/aretw0/stepflow/pkg/domain"
)

// Store holds flow profiles independently of the step registry.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]domain.FlowProfile
	order    []string
	logger   *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger configures a logger for store warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		profiles: make(map[string]domain.FlowProfile),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a profile. Re-registering an id overwrites it with a warning.
func (s *Store) Register(p domain.FlowProfile) error {
	if p.ID == "" {
		return &domain.ValidationError{Key: "id", Reason: "required"}
	}
	if p.Name == "" {
		return &domain.ValidationError{Key: "name", Reason: "required", Value: p.ID}
	}
	for _, o := range p.StepOrderOverrides {
		if o.StepID == "" {
			return &domain.ValidationError{Key: "step_order_overrides", Reason: "empty step id", Value: p.ID}
		}
		if o.Order < 0 {
			return &domain.ValidationError{Key: "step_order_overrides", Reason: "must be a non-negative integer", Value: o.Order}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[p.ID]; ok {
		s.logger.Warn("overwriting flow profile", "profile", p.ID)
	} else {
		s.order = append(s.order, p.ID)
	}
	s.profiles[p.ID] = p.Clone()
	return nil
}

// Get looks up a profile by id.
func (s *Store) Get(id string) (domain.FlowProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return domain.FlowProfile{}, false
	}
	return p.Clone(), true
}

// List returns all profiles in registration order.
func (s *Store) List() []domain.FlowProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.FlowProfile, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.profiles[id].Clone())
	}
	return out
}

// Select returns the first profile, in registration order, whose activation conditions
// all hold. Profiles without activation conditions are only ever activated explicitly.
func (s *Store) Select(ctx *domain.StepContext, eval availability.Evaluator) (domain.FlowProfile, bool) {
	for _, p := range s.List() {
		if len(p.ActivationConditions) == 0 {
			continue
		}
		if allHold(p.ActivationConditions, ctx, eval) {
			return p, true
		}
	}
	return domain.FlowProfile{}, false
}

func allHold(conds []domain.Condition, ctx *domain.StepContext, eval availability.Evaluator) bool {
	for _, c := range conds {
		if !eval.Evaluate(c, ctx) {
			return false
		}
	}
	return true
}
