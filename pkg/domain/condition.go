package domain

import (
	"fmt"
)

// ConditionType selects how a condition is resolved against the context.
type ConditionType string

const (
	// ConditionCategory compares the selected category.
	ConditionCategory ConditionType = "category"
	// ConditionIntent compares the selected intent.
	ConditionIntent ConditionType = "intent"
	// ConditionFeatureFlag compares FeatureFlags[Field]. Value defaults to true.
	ConditionFeatureFlag ConditionType = "featureFlag"
	// ConditionField compares any named context field (see StepContext.Field).
	ConditionField ConditionType = "field"
	// ConditionCustom invokes a predicate registered on the evaluator under the name in Value.
	ConditionCustom ConditionType = "custom"
	// ConditionExpr evaluates the expression held in Value.
	ConditionExpr ConditionType = "expr"
)

// Operator is the comparison applied to an extracted field.
type Operator string

const (
	OpEquals    Operator = "equals"
	OpNotEquals Operator = "notEquals"
	OpIn        Operator = "in"
	OpNotIn     Operator = "notIn"
)

// Condition gates the availability of a step.
// It is a plain value: no closures, so catalogs can be serialized and logged.
type Condition struct {
	Type     ConditionType `json:"type" yaml:"type" mapstructure:"type" jsonschema:"enum=category,enum=intent,enum=featureFlag,enum=field,enum=custom,enum=expr"`
	Field    string        `json:"field,omitempty" yaml:"field,omitempty" mapstructure:"field"`
	Operator Operator      `json:"operator,omitempty" yaml:"operator,omitempty" mapstructure:"operator" jsonschema:"enum=equals,enum=notEquals,enum=in,enum=notIn"`
	Value    any           `json:"value,omitempty" yaml:"value,omitempty" mapstructure:"value"`
}

// Clone copies slice values so that callers cannot alias the registered condition.
func (c Condition) Clone() Condition {
	out := c
	switch v := c.Value.(type) {
	case []any:
		out.Value = append([]any(nil), v...)
	case []string:
		out.Value = append([]string(nil), v...)
	}
	return out
}

func (c Condition) String() string {
	switch c.Type {
	case ConditionCustom:
		return fmt.Sprintf("custom(%v)", c.Value)
	case ConditionExpr:
		return fmt.Sprintf("expr(%v)", c.Value)
	case ConditionFeatureFlag, ConditionField:
		return fmt.Sprintf("%s[%s] %s %v", c.Type, c.Field, c.operator(), c.Value)
	default:
		return fmt.Sprintf("%s %s %v", c.Type, c.operator(), c.Value)
	}
}

func (c Condition) operator() Operator {
	if c.Operator == "" {
		return OpEquals
	}
	return c.Operator
}

// CategoryIs is shorthand for a category condition.
func CategoryIs(op Operator, value any) Condition {
	return Condition{Type: ConditionCategory, Operator: op, Value: value}
}

// IntentIs is shorthand for an intent condition.
func IntentIs(op Operator, value any) Condition {
	return Condition{Type: ConditionIntent, Operator: op, Value: value}
}

// FlagSet requires the named feature flag to be enabled.
func FlagSet(name string) Condition {
	return Condition{Type: ConditionFeatureFlag, Field: name, Operator: OpEquals, Value: true}
}

// FieldIs compares a named context field.
func FieldIs(field string, op Operator, value any) Condition {
	return Condition{Type: ConditionField, Field: field, Operator: op, Value: value}
}

// Predicate references a named predicate registered on the evaluator.
func Predicate(name string) Condition {
	return Condition{Type: ConditionCustom, Value: name}
}

// Expr builds an expression condition, e.g. `category == "job" && "remote" in custom.tags`.
func Expr(source string) Condition {
	return Condition{Type: ConditionExpr, Value: source}
}
