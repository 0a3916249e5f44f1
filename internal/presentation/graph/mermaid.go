package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/stepflow/pkg/domain"
)

// GraphOverlay contains session state to visualize on the graph.
type GraphOverlay struct {
	Completed   []domain.StepID
	Available   []domain.StepID
	CurrentStep domain.StepID
}

// GenerateMermaid produces a Mermaid flowchart of the step dependency graph.
// Edges point from a dependency to the step that needs it.
// It applies semantic styling:
// - Entry step (no dependencies): ((Circle))
// - Conditional step: {{Hexagon}} labelled with its conditions
// - Default: [Rectangle]
// Hidden steps get the hidden class. With an overlay, steps are styled as completed,
// current or unavailable.
func GenerateMermaid(steps []domain.StepDefinition, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	var hidden []string
	for _, step := range steps {
		safeID := sanitizeMermaidID(string(step.ID))

		opener, closer := "[", "]"
		switch {
		case len(step.Dependencies) == 0:
			opener, closer = "((", "))"
		case len(step.Conditions) > 0:
			opener, closer = "{{", "}}"
		}

		label := fmt.Sprintf("%s <br/> #%d", step.ID, step.Order)
		for _, c := range step.Conditions {
			label += " <br/> " + escapeLabel(c.String())
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, label, closer))

		for _, dep := range step.Dependencies {
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", sanitizeMermaidID(string(dep)), safeID))
		}
		if !step.IsVisible {
			hidden = append(hidden, safeID)
		}
	}

	if len(hidden) > 0 {
		sb.WriteString("\n    classDef hidden stroke-dasharray: 5 5,color:#888;\n")
		for _, id := range hidden {
			sb.WriteString(fmt.Sprintf("    class %s hidden;\n", id))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef completed fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		sb.WriteString("    classDef unavailable fill:#eeeeee,stroke:#9e9e9e,color:#9e9e9e;\n")

		available := make(map[domain.StepID]bool, len(overlay.Available))
		for _, id := range overlay.Available {
			available[id] = true
		}
		for _, step := range steps {
			if overlay.Available != nil && !available[step.ID] {
				sb.WriteString(fmt.Sprintf("    class %s unavailable;\n", sanitizeMermaidID(string(step.ID))))
			}
		}

		seen := make(map[string]bool)
		for _, id := range overlay.Completed {
			safeID := sanitizeMermaidID(string(id))
			if !seen[safeID] && safeID != "" {
				seen[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s completed;\n", safeID))
			}
		}

		if overlay.CurrentStep != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(string(overlay.CurrentStep))))
		}
	}

	return sb.String()
}

// escapeLabel keeps condition text from closing the quoted Mermaid label.
func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\"", "'")
	s = strings.ReplaceAll(s, "|", "/")
	return s
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
