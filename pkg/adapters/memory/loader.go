package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aretw0/stepflow/pkg/catalog"
	"github.com/aretw0/stepflow/pkg/domain"
)

// Loader implements ports.CatalogLoader over values held in memory.
// Safe for concurrent use.
type Loader struct {
	mu       sync.RWMutex
	steps    []domain.StepDefinition
	profiles []domain.FlowProfile
	watchers []chan string
}

// NewLoader creates a loader serving the given definitions and profiles.
func NewLoader(steps []domain.StepDefinition, profiles ...domain.FlowProfile) *Loader {
	l := &Loader{}
	l.set(steps, profiles)
	return l
}

// NewFromYAML creates a loader from a catalog document.
func NewFromYAML(doc string) (*Loader, error) {
	c, err := catalog.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, err
	}
	if err := catalog.Validate(c).Err(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return NewLoader(c.Definitions(), c.FlowProfiles()...), nil
}

// LoadSteps returns copies of the definitions in insertion order.
func (l *Loader) LoadSteps(ctx context.Context) ([]domain.StepDefinition, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.StepDefinition, len(l.steps))
	for i, s := range l.steps {
		out[i] = s.Clone()
	}
	return out, nil
}

// LoadProfiles returns copies of the profiles in insertion order.
func (l *Loader) LoadProfiles(ctx context.Context) ([]domain.FlowProfile, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.FlowProfile, len(l.profiles))
	for i, p := range l.profiles {
		out[i] = p.Clone()
	}
	return out, nil
}

// Update replaces the catalog and notifies watchers with the ids of the steps it now holds.
func (l *Loader) Update(steps []domain.StepDefinition, profiles ...domain.FlowProfile) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.set(steps, profiles)
	ids := domain.IDs(l.steps)
	for _, ch := range l.watchers {
		for _, id := range ids {
			select {
			case ch <- string(id):
			default:
			}
		}
	}
}

func (l *Loader) set(steps []domain.StepDefinition, profiles []domain.FlowProfile) {
	l.steps = make([]domain.StepDefinition, len(steps))
	for i, s := range steps {
		l.steps[i] = s.Clone()
	}
	l.profiles = make([]domain.FlowProfile, len(profiles))
	for i, p := range profiles {
		l.profiles[i] = p.Clone()
	}
}

// Watch implements ports.Watchable. Notifications that find the channel full are dropped.
func (l *Loader) Watch(ctx context.Context) (<-chan string, error) {
	ch := make(chan string, 16)

	l.mu.Lock()
	l.watchers = append(l.watchers, ch)
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, w := range l.watchers {
			if w == ch {
				l.watchers = append(l.watchers[:i], l.watchers[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}
