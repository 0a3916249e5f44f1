package loam

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/loam"
	"github.com/aretw0/stepflow/pkg/catalog"
	"github.com/aretw0/stepflow/pkg/domain"
)

// Loader adapts the Loam library to the stepflow CatalogLoader interface.
// Every Markdown, JSON or YAML document in the repository is one step or one profile.
type Loader struct {
	Repo *loam.TypedRepository[DocumentMetadata]
}

// New creates a new Loam adapter.
func New(repo *loam.TypedRepository[DocumentMetadata]) *Loader {
	return &Loader{
		Repo: repo,
	}
}

type document struct {
	path    string
	id      string
	content string
	meta    DocumentMetadata
}

// documents lists the repository in path order, which fixes the registration order
// and therefore the tiebreak between steps of equal order.
func (l *Loader) documents(ctx context.Context) ([]document, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	out := make([]document, 0, len(docs))
	for _, doc := range docs {
		rawID := doc.Data.ID
		if rawID == "" {
			rawID = doc.ID
		}
		out = append(out, document{
			path:    doc.ID,
			id:      trimExtension(rawID),
			content: doc.Content,
			meta:    doc.Data,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].path < out[j].path })

	seen := make(map[string]string, len(out))
	for _, d := range out {
		key := kindOf(d.meta) + "/" + d.id
		if existing, ok := seen[key]; ok {
			return nil, fmt.Errorf("collision detected: ID '%s' is defined in both '%s' and '%s'", d.id, existing, d.path)
		}
		seen[key] = d.path
	}
	return out, nil
}

func kindOf(meta DocumentMetadata) string {
	if meta.Kind == "" {
		return KindStep
	}
	return meta.Kind
}

// LoadSteps implements ports.CatalogLoader.
func (l *Loader) LoadSteps(ctx context.Context) ([]domain.StepDefinition, error) {
	docs, err := l.documents(ctx)
	if err != nil {
		return nil, err
	}

	steps := make([]domain.StepDefinition, 0, len(docs))
	for _, d := range docs {
		switch kindOf(d.meta) {
		case KindStep:
			def, err := toDefinition(d)
			if err != nil {
				return nil, fmt.Errorf("step %s (%s): %w", d.id, d.path, err)
			}
			steps = append(steps, def)
		case KindProfile:
		default:
			return nil, fmt.Errorf("document %s: unknown kind %q", d.path, d.meta.Kind)
		}
	}
	return steps, nil
}

// LoadProfiles implements ports.CatalogLoader.
func (l *Loader) LoadProfiles(ctx context.Context) ([]domain.FlowProfile, error) {
	docs, err := l.documents(ctx)
	if err != nil {
		return nil, err
	}

	var profiles []domain.FlowProfile
	for _, d := range docs {
		if kindOf(d.meta) != KindProfile {
			continue
		}
		p, err := toProfile(d)
		if err != nil {
			return nil, fmt.Errorf("profile %s (%s): %w", d.id, d.path, err)
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// Catalog loads the whole repository as a catalog document, ready for validation.
func (l *Loader) Catalog(ctx context.Context) (*catalog.Catalog, error) {
	steps, err := l.LoadSteps(ctx)
	if err != nil {
		return nil, err
	}
	profiles, err := l.LoadProfiles(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.New(steps, profiles), nil
}

func toDefinition(d document) (domain.StepDefinition, error) {
	m := d.meta
	order, err := catalog.ToInt(m.Order)
	if err != nil {
		return domain.StepDefinition{}, fmt.Errorf("order: %w", err)
	}

	visible := true
	if m.Visible != nil {
		visible = *m.Visible
	}

	def := domain.StepDefinition{
		ID:          domain.StepID(d.id),
		DisplayName: m.DisplayName,
		Component:   m.Component,
		Order:       order,
		IsVisible:   visible,
		Conditions:  normalizeConditions(m.Conditions),
		CardSlots:   m.CardSlots,
		Owns:        m.Owns,
	}
	for _, dep := range m.Dependencies {
		def.Dependencies = append(def.Dependencies, domain.StepID(trimExtension(dep)))
	}
	if m.Metadata != nil {
		def.Metadata = flattenMetadata(m.Metadata)
	}
	if body := strings.TrimSpace(d.content); body != "" {
		if def.Metadata == nil {
			def.Metadata = make(map[string]string, 1)
		}
		if _, ok := def.Metadata["description"]; !ok {
			def.Metadata["description"] = body
		}
	}
	return def, nil
}

func toProfile(d document) (domain.FlowProfile, error) {
	m := d.meta
	p := domain.FlowProfile{
		ID:                   d.id,
		Name:                 m.Name,
		ActivationConditions: normalizeConditions(m.ActivationConditions),
	}
	if p.Name == "" {
		p.Name = m.DisplayName
	}
	for i, o := range m.StepOrderOverrides {
		order, err := catalog.ToInt(o.Order)
		if err != nil {
			return domain.FlowProfile{}, fmt.Errorf("step_order_overrides[%d].order: %w", i, err)
		}
		p.StepOrderOverrides = append(p.StepOrderOverrides, domain.OrderOverride{
			StepID: domain.StepID(trimExtension(o.StepID)),
			Order:  order,
		})
	}
	return p, nil
}

func normalizeConditions(conds []domain.Condition) []domain.Condition {
	if conds == nil {
		return nil
	}
	out := make([]domain.Condition, len(conds))
	for i, c := range conds {
		c.Value = catalog.NormalizeValue(c.Value)
		out[i] = c
	}
	return out
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}

// Watch implements ports.Watchable.
func (l *Loader) Watch(ctx context.Context) (<-chan string, error) {
	events, err := l.Repo.Watch(ctx, "**/*.{md,json,yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan string, 1)

	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				select {
				case ch <- trimExtension(evt.ID):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

// flattenMetadata converts nested front matter into a flat map[string]string
// with dash-joined keys. Lists are joined with spaces.
func flattenMetadata(src map[string]any) map[string]string {
	res := make(map[string]string)
	var visit func(prefix string, v any)

	visit = func(prefix string, v any) {
		switch val := v.(type) {
		case map[string]any:
			for k, sub := range val {
				fullKey := k
				if prefix != "" {
					fullKey = prefix + "-" + k
				}
				visit(fullKey, sub)
			}
		case map[any]any:
			for k, sub := range val {
				strKey := fmt.Sprintf("%v", k)
				fullKey := strKey
				if prefix != "" {
					fullKey = prefix + "-" + strKey
				}
				visit(fullKey, sub)
			}
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprintf("%v", item))
			}
			res[prefix] = strings.Join(parts, " ")
		default:
			if prefix != "" {
				res[prefix] = fmt.Sprintf("%v", val)
			}
		}
	}

	for k, v := range src {
		visit(k, v)
	}
	return res
}
