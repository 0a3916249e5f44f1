package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders markdown using glamour.
// Without a usable terminal renderer, markdown is returned as is.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
	)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}

	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// StepMarkdown describes the current step of a session as markdown.
func StepMarkdown(snap domain.SessionSnapshot, def domain.StepDefinition) string {
	var sb strings.Builder

	title := def.DisplayName
	if title == "" {
		title = string(def.ID)
	}
	fmt.Fprintf(&sb, "# %s\n\n", title)
	if desc := def.Metadata["description"]; desc != "" {
		fmt.Fprintf(&sb, "%s\n\n", desc)
	}
	fmt.Fprintf(&sb, "- **component**: `%s`\n", def.Component)
	fmt.Fprintf(&sb, "- **status**: %s\n", snap.State.Status)
	if len(def.CardSlots) > 0 {
		fmt.Fprintf(&sb, "- **card slots**: %s\n", strings.Join(def.CardSlots, ", "))
	}
	if len(def.Owns) > 0 {
		fmt.Fprintf(&sb, "- **fields**: %s\n", strings.Join(def.Owns, ", "))
	}

	sb.WriteString("\n## Steps\n\n")
	for _, id := range snap.AvailableSteps {
		mark := " "
		if snap.Context != nil && snap.Context.IsCompleted(id) {
			mark = "x"
		}
		cursor := ""
		if id == snap.State.StepID {
			cursor = " ←"
		}
		fmt.Fprintf(&sb, "- [%s] %s%s\n", mark, id, cursor)
	}
	return sb.String()
}

// ContextMarkdown lists the non-empty fields of a context.
func ContextMarkdown(ctx *domain.StepContext) string {
	if ctx == nil {
		return ""
	}
	env := ctx.Env()
	keys := make([]string, 0, len(env))
	for k, v := range env {
		switch fmt.Sprint(v) {
		case "", "[]", "map[]", "<nil>":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("## Context\n\n")
	for _, k := range keys {
		fmt.Fprintf(&sb, "- **%s**: %v\n", k, env[k])
	}
	return sb.String()
}
