package workflow

import "context"

// Params carries the transition data that guards evaluate
type Params struct {
	// RequestedCost is the total of requested parts, in cents
	RequestedCost int64

	// Resolution is the outcome code supplied with COMPLETE
	Resolution Resolution
}

// StateMachine represents a state machine that tracks current state and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the action has at least one outgoing edge in the current state
	CanFire(action Action) bool

	// Fire attempts to execute the action, transitioning to the new state if allowed
	Fire(ctx context.Context, action Action, params Params) error

	// PermittedActions returns all actions that have an edge from the current state
	PermittedActions() []Action
}
