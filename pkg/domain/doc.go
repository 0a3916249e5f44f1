/*
Package domain contains the core domain models of the stepflow engine.

It defines the step catalog entities, the per-session context and the controller
state shared by every other package. This package is kept pure and free of I/O,
so that the registry, the availability filter and the controller can be tested
against plain values.

# Key Entities

  - StepDefinition: One registered wizard step with its dependencies, conditions and mutable order.
  - Condition: A serializable predicate over the context that gates a step.
  - StepContext: The accumulated user selections and completion bookkeeping of one session.
  - FlowProfile: A named alternative ordering of steps, activatable at runtime.
  - ControllerState: The controller's position (Idle, AwaitingStep, StepUnavailable, ProfileActive).
*/
package domain
