package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/aretw0/stepflow/pkg/condition"
	"github.com/aretw0/stepflow/pkg/domain"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// Validation phases.
const (
	PhaseStructural = "structural"
	PhaseSemantic   = "semantic"
	PhaseDomain     = "domain"
)

// Severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Issue is a single validation finding with its location in the document.
type Issue struct {
	Phase    string `json:"phase"`
	Path     string `json:"path"` // e.g. "steps[2].conditions[0]"
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

func (e *Issue) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("[%s] %s", e.Phase, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// Issues is the result of a validation run.
type Issues []*Issue

// Errors drops warnings.
func (is Issues) Errors() Issues {
	var out Issues
	for _, i := range is {
		if i.Severity == SeverityError {
			out = append(out, i)
		}
	}
	return out
}

// Warnings drops errors.
func (is Issues) Warnings() Issues {
	var out Issues
	for _, i := range is {
		if i.Severity == SeverityWarning {
			out = append(out, i)
		}
	}
	return out
}

// Err folds the error-severity issues into one error matching domain.ErrInvalidDefinition.
// It returns nil when only warnings remain.
func (is Issues) Err() error {
	errs := is.Errors()
	if len(errs) == 0 {
		return nil
	}
	joined := make([]error, len(errs))
	for i, e := range errs {
		joined[i] = e
	}
	return fmt.Errorf("%w: %w", domain.ErrInvalidDefinition, errors.Join(joined...))
}

// ValidateFile runs the full pipeline on a catalog file:
// strict decode, then the JSON Schema, then graph-level rules.
func ValidateFile(path string) (*Catalog, Issues) {
	c, err := LoadFile(path)
	if err != nil {
		return nil, Issues{{Phase: PhaseStructural, Message: err.Error(), Severity: SeverityError}}
	}
	return c, Validate(c)
}

// Validate runs the semantic and domain phases on a decoded catalog.
func Validate(c *Catalog) Issues {
	issues := validateSemantic(c)
	return append(issues, ValidateDomain(c)...)
}

func validateSemantic(c *Catalog) Issues {
	fail := func(format string, args ...any) Issues {
		return Issues{{Phase: PhaseSemantic, Message: fmt.Sprintf(format, args...), Severity: SeverityError}}
	}

	sch, err := compiledSchema()
	if err != nil {
		return fail("%v", err)
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fail("marshal for schema validation: %v", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fail("unmarshal document: %v", err)
	}

	if err := sch.Validate(doc); err != nil {
		var ve *sjsonschema.ValidationError
		if !errors.As(err, &ve) {
			return fail("%v", err)
		}
		var issues Issues
		for _, cause := range flattenValidationErrors(ve) {
			issues = append(issues, &Issue{
				Phase:    PhaseSemantic,
				Path:     instancePath(cause.InstanceLocation),
				Message:  fmt.Sprintf("%v", cause.ErrorKind),
				Severity: SeverityError,
			})
		}
		return issues
	}
	return nil
}

func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// instancePath turns ["steps", "0", "id"] into "steps[0].id".
func instancePath(loc []string) string {
	var b strings.Builder
	for _, seg := range loc {
		if isIndex(seg) {
			b.WriteString("[" + seg + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ValidateDomain checks the rules a schema cannot express: references between steps,
// dependency cycles, and condition well-formedness.
func ValidateDomain(c *Catalog) Issues {
	var issues Issues
	add := func(severity, path, format string, args ...any) {
		issues = append(issues, &Issue{
			Phase:    PhaseDomain,
			Path:     path,
			Message:  fmt.Sprintf(format, args...),
			Severity: severity,
		})
	}

	index := make(map[domain.StepID]int, len(c.Steps))
	for i, s := range c.Steps {
		if first, dup := index[s.ID]; dup {
			add(SeverityWarning, fmt.Sprintf("steps[%d].id", i), "step %q redefines steps[%d]; the later definition wins", s.ID, first)
			continue
		}
		index[s.ID] = i
	}

	for i, s := range c.Steps {
		base := fmt.Sprintf("steps[%d]", i)
		for j, dep := range s.Dependencies {
			path := fmt.Sprintf("%s.dependencies[%d]", base, j)
			switch {
			case dep == s.ID:
				add(SeverityError, path, "step %q depends on itself", s.ID)
			case !contains(index, dep):
				add(SeverityError, path, "unknown dependency %q", dep)
			}
		}
		for j, cond := range s.Conditions {
			for _, msg := range checkCondition(cond) {
				add(SeverityError, fmt.Sprintf("%s.conditions[%d]", base, j), "%s", msg)
			}
		}
		if !s.visible() && len(s.Conditions) > 0 {
			add(SeverityWarning, base+".visible", "step %q is hidden, its conditions are never evaluated", s.ID)
		}
	}

	for _, cycle := range dependencyCycles(c.Steps) {
		parts := make([]string, len(cycle))
		for i, id := range cycle {
			parts[i] = string(id)
		}
		add(SeverityError, fmt.Sprintf("steps[%d].dependencies", index[cycle[0]]), "dependency cycle: %s", strings.Join(parts, " -> "))
	}

	seen := make(map[string]int, len(c.Profiles))
	for i, p := range c.Profiles {
		base := fmt.Sprintf("profiles[%d]", i)
		if first, dup := seen[p.ID]; dup {
			add(SeverityWarning, base+".id", "profile %q redefines profiles[%d]; the later definition wins", p.ID, first)
		} else {
			seen[p.ID] = i
		}

		overridden := make(map[domain.StepID]bool, len(p.StepOrderOverrides))
		for j, o := range p.StepOrderOverrides {
			path := fmt.Sprintf("%s.step_order_overrides[%d]", base, j)
			if !contains(index, o.StepID) {
				add(SeverityError, path, "override references unknown step %q", o.StepID)
			}
			if overridden[o.StepID] {
				add(SeverityWarning, path, "step %q is overridden more than once; the last order wins", o.StepID)
			}
			overridden[o.StepID] = true
		}
		for j, cond := range p.ActivationConditions {
			for _, msg := range checkCondition(cond) {
				add(SeverityError, fmt.Sprintf("%s.activation_conditions[%d]", base, j), "%s", msg)
			}
		}
	}

	return issues
}

func (s StepSpec) visible() bool {
	return s.Visible == nil || *s.Visible
}

func contains(index map[domain.StepID]int, id domain.StepID) bool {
	_, ok := index[id]
	return ok
}

// checkCondition mirrors what the evaluator would silently treat as false.
func checkCondition(cond domain.Condition) []string {
	var msgs []string

	switch cond.Operator {
	case "", domain.OpEquals, domain.OpNotEquals:
	case domain.OpIn, domain.OpNotIn:
		if !isList(cond.Value) {
			msgs = append(msgs, fmt.Sprintf("operator %q requires a list value", cond.Operator))
		}
	default:
		msgs = append(msgs, fmt.Sprintf("unknown operator %q", cond.Operator))
	}

	switch cond.Type {
	case domain.ConditionCategory, domain.ConditionIntent:
	case domain.ConditionFeatureFlag:
		if cond.Field == "" {
			msgs = append(msgs, "featureFlag condition requires a field naming the flag")
		}
	case domain.ConditionField:
		if !domain.IsFieldName(cond.Field) {
			msgs = append(msgs, fmt.Sprintf("unknown context field %q", cond.Field))
		}
	case domain.ConditionCustom:
		if name, ok := cond.Value.(string); !ok || name == "" {
			msgs = append(msgs, "custom condition requires a predicate name as value")
		}
	case domain.ConditionExpr:
		source, ok := cond.Value.(string)
		if !ok || source == "" {
			msgs = append(msgs, "expr condition requires an expression as value")
			break
		}
		if err := condition.Compile(source); err != nil {
			msgs = append(msgs, err.Error())
		}
	default:
		msgs = append(msgs, fmt.Sprintf("unknown condition type %q", cond.Type))
	}
	return msgs
}

func isList(v any) bool {
	if v == nil {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// dependencyCycles reports each cycle once, starting from its earliest declared step.
func dependencyCycles(steps []StepSpec) [][]domain.StepID {
	deps := make(map[domain.StepID][]domain.StepID, len(steps))
	var order []domain.StepID
	for _, s := range steps {
		if _, ok := deps[s.ID]; !ok {
			order = append(order, s.ID)
		}
		deps[s.ID] = s.Dependencies
	}

	const (
		unvisited = iota
		active
		done
	)
	state := make(map[domain.StepID]int, len(deps))
	var stack []domain.StepID
	var cycles [][]domain.StepID

	var visit func(id domain.StepID)
	visit = func(id domain.StepID) {
		state[id] = active
		stack = append(stack, id)
		for _, dep := range deps[id] {
			if _, known := deps[dep]; !known || dep == id {
				continue
			}
			switch state[dep] {
			case unvisited:
				visit(dep)
			case active:
				start := len(stack) - 1
				for stack[start] != dep {
					start--
				}
				cycle := append([]domain.StepID(nil), stack[start:]...)
				cycles = append(cycles, append(cycle, dep))
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
	}

	for _, id := range order {
		if state[id] == unvisited {
			visit(id)
		}
	}
	return cycles
}
