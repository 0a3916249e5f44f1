/*
Package stepflow is a step-flow orchestration engine for guided data-entry wizards.

A wizard is a catalog of steps. Each step declares the steps it depends on and the
conditions under which it is offered. As the user completes steps, their payloads accumulate
in a per-session context and the engine recomputes which steps are available, in which order,
and where the cursor should go next. The context stays consistent when steps are completed out
of order or the user navigates back and changes an earlier answer.

# Concept

The catalog (Logic) is separate from the session context (State) and from the screens that
render each step (Host). The engine never draws anything: it tells the host which component to
show and takes the submitted payload back. Catalogs can be Markdown/YAML documents in a
directory, a single YAML file, or built in Go with the dsl package.

# Key Features

  - Declarative steps: dependencies, conditional visibility and a mutable display order.
  - Flow profiles: named order overrides, selected explicitly or by activation conditions.
  - Consistent context: completion order never changes the resulting context.
  - Session isolation: each session navigates its own copy of the registry.
  - Observability: lifecycle hooks for step changes, completions and context commits.

# Usage

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/stepflow"
		"github.com/aretw0/stepflow/pkg/domain"
	)

	func main() {
		// Reads one document per step from ./listing
		eng, err := stepflow.New("./listing")
		if err != nil {
			log.Fatal(err)
		}

		ctx := context.Background()
		s, err := eng.Start(ctx, map[string]bool{"media": true})
		if err != nil {
			log.Fatal(err)
		}

		res, err := s.Complete(ctx, "category", domain.Payload{domain.KeyCategory: "property"})
		if err != nil {
			log.Fatal(err)
		}
		log.Println("next step:", res.StepID, "available:", res.Steps)
	}
*/
package stepflow
