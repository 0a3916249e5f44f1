package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Payload keys understood by StepContext.Merge. Any other key lands in CustomData.
const (
	KeyCategory        = "selectedCategory"
	KeyIntent          = "selectedIntent"
	KeyTransactionType = "selectedTransactionType"
	KeyEmploymentType  = "selectedEmploymentType"
	KeyOccupation      = "selectedOccupation"
	KeyLocation        = "location"
	KeyDetails         = "details"
	KeyPricing         = "pricing"
	KeyReview          = "review"
	KeyFeatureFlags    = "featureFlags"
)

// Payload carries the fields a step submits on completion.
type Payload map[string]any

// StepContext is the accumulated record of one wizard session.
// Empty strings and nil maps mean "not chosen yet".
type StepContext struct {
	CurrentStepID StepID `json:"current_step_id"`

	Category        string `json:"category,omitempty"`
	Intent          string `json:"intent,omitempty"`
	TransactionType string `json:"transaction_type,omitempty"`
	EmploymentType  string `json:"employment_type,omitempty"`
	Occupation      string `json:"occupation,omitempty"`

	Location map[string]any `json:"location,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Pricing  map[string]any `json:"pricing,omitempty"`
	Review   map[string]any `json:"review,omitempty"`

	CompletedSteps map[StepID]bool `json:"completed_steps"`
	FeatureFlags   map[string]bool `json:"feature_flags,omitempty"`
	CustomData     map[string]any  `json:"custom_data,omitempty"`
}

// NewStepContext creates an empty context with the given feature flags.
func NewStepContext(flags map[string]bool) *StepContext {
	c := &StepContext{
		CompletedSteps: make(map[StepID]bool),
		FeatureFlags:   make(map[string]bool, len(flags)),
		CustomData:     make(map[string]any),
	}
	for k, v := range flags {
		c.FeatureFlags[k] = v
	}
	return c
}

// contextPatch mirrors the payload keys. Pointer and map fields stay nil when absent,
// which is what lets Merge preserve untouched fields.
type contextPatch struct {
	Category        *string         `mapstructure:"selectedCategory"`
	Intent          *string         `mapstructure:"selectedIntent"`
	TransactionType *string         `mapstructure:"selectedTransactionType"`
	EmploymentType  *string         `mapstructure:"selectedEmploymentType"`
	Occupation      *string         `mapstructure:"selectedOccupation"`
	Location        map[string]any  `mapstructure:"location"`
	Details         map[string]any  `mapstructure:"details"`
	Pricing         map[string]any  `mapstructure:"pricing"`
	Review          map[string]any  `mapstructure:"review"`
	FeatureFlags    map[string]bool `mapstructure:"featureFlags"`
	Custom          map[string]any  `mapstructure:",remain"`
}

// Merge applies a payload: present fields overwrite, absent fields are preserved.
// On a decode error the context is left untouched.
func (c *StepContext) Merge(p Payload) error {
	if len(p) == 0 {
		return nil
	}

	var patch contextPatch
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &patch,
		TagName: "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("failed to build payload decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(p)); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	setString(&c.Category, patch.Category)
	setString(&c.Intent, patch.Intent)
	setString(&c.TransactionType, patch.TransactionType)
	setString(&c.EmploymentType, patch.EmploymentType)
	setString(&c.Occupation, patch.Occupation)

	if patch.Location != nil {
		c.Location = copyMap(patch.Location)
	}
	if patch.Details != nil {
		c.Details = copyMap(patch.Details)
	}
	if patch.Pricing != nil {
		c.Pricing = copyMap(patch.Pricing)
	}
	if patch.Review != nil {
		c.Review = copyMap(patch.Review)
	}
	if len(patch.FeatureFlags) > 0 {
		if c.FeatureFlags == nil {
			c.FeatureFlags = make(map[string]bool)
		}
		for k, v := range patch.FeatureFlags {
			c.FeatureFlags[k] = v
		}
	}
	if len(patch.Custom) > 0 {
		if c.CustomData == nil {
			c.CustomData = make(map[string]any)
		}
		for k, v := range patch.Custom {
			c.CustomData[k] = v
		}
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// MarkCompleted records the step as completed.
func (c *StepContext) MarkCompleted(id StepID) {
	if c.CompletedSteps == nil {
		c.CompletedSteps = make(map[StepID]bool)
	}
	c.CompletedSteps[id] = true
}

// IsCompleted reports whether the step has been completed in this session.
func (c *StepContext) IsCompleted(id StepID) bool {
	return c.CompletedSteps[id]
}

// Completed lists completed steps in lexical order.
func (c *StepContext) Completed() []StepID {
	out := make([]StepID, 0, len(c.CompletedSteps))
	for id, done := range c.CompletedSteps {
		if done {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Field extracts a named field for condition evaluation.
// Unset selections yield nil. Nested lookups use "featureFlags.<name>" and "custom.<key>".
func (c *StepContext) Field(name string) any {
	if c == nil {
		return nil
	}
	switch name {
	case "currentStepId":
		return nilIfEmpty(string(c.CurrentStepID))
	case "category":
		return nilIfEmpty(c.Category)
	case "intent":
		return nilIfEmpty(c.Intent)
	case "transactionType":
		return nilIfEmpty(c.TransactionType)
	case "employmentType":
		return nilIfEmpty(c.EmploymentType)
	case "occupation":
		return nilIfEmpty(c.Occupation)
	case "location":
		return nilIfNilMap(c.Location)
	case "details":
		return nilIfNilMap(c.Details)
	case "pricing":
		return nilIfNilMap(c.Pricing)
	case "review":
		return nilIfNilMap(c.Review)
	}

	if flag, ok := strings.CutPrefix(name, "featureFlags."); ok {
		return c.FeatureFlags[flag]
	}
	if key, ok := strings.CutPrefix(name, "custom."); ok {
		if v, exists := c.CustomData[key]; exists {
			return v
		}
	}
	return nil
}

// IsFieldName reports whether name is addressable through Field.
func IsFieldName(name string) bool {
	switch name {
	case "currentStepId", "category", "intent", "transactionType", "employmentType",
		"occupation", "location", "details", "pricing", "review":
		return true
	}
	for _, prefix := range []string{"featureFlags.", "custom."} {
		if rest, ok := strings.CutPrefix(name, prefix); ok && rest != "" {
			return true
		}
	}
	return false
}

// Env flattens the context into the variable set used by expression conditions.
func (c *StepContext) Env() map[string]any {
	completed := c.Completed()
	done := make([]string, len(completed))
	for i, id := range completed {
		done[i] = string(id)
	}
	flags := make(map[string]any, len(c.FeatureFlags))
	for k, v := range c.FeatureFlags {
		flags[k] = v
	}
	return map[string]any{
		"currentStep":     string(c.CurrentStepID),
		"category":        c.Category,
		"intent":          c.Intent,
		"transactionType": c.TransactionType,
		"employmentType":  c.EmploymentType,
		"occupation":      c.Occupation,
		"location":        orEmpty(c.Location),
		"details":         orEmpty(c.Details),
		"pricing":         orEmpty(c.Pricing),
		"review":          orEmpty(c.Review),
		"completed":       done,
		"flags":           flags,
		"custom":          orEmpty(c.CustomData),
	}
}

// Clone returns a deep-enough copy for safe hand-off to hosts and renderers.
func (c *StepContext) Clone() *StepContext {
	if c == nil {
		return nil
	}
	next := *c
	next.Location = copyMap(c.Location)
	next.Details = copyMap(c.Details)
	next.Pricing = copyMap(c.Pricing)
	next.Review = copyMap(c.Review)
	next.CustomData = copyMap(c.CustomData)
	next.CompletedSteps = make(map[StepID]bool, len(c.CompletedSteps))
	for k, v := range c.CompletedSteps {
		next.CompletedSteps[k] = v
	}
	next.FeatureFlags = make(map[string]bool, len(c.FeatureFlags))
	for k, v := range c.FeatureFlags {
		next.FeatureFlags[k] = v
	}
	return &next
}

func copyMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nilIfNilMap(m map[string]any) any {
	if m == nil {
		return nil
	}
	return m
}
