package workflow

import (
	"context"

	"github.com/garyjia/repair-center/internal/domain/entity"
	domainwf "github.com/garyjia/repair-center/internal/domain/workflow"
)

// Payload carries the action-specific data of a transition command
type Payload struct {
	TechnicianID string              `json:"technician_id,omitempty"`
	Notes        string              `json:"notes,omitempty"`
	Parts        entity.Parts        `json:"parts,omitempty"`
	Resolution   domainwf.Resolution `json:"resolution,omitempty"`
	Reason       string              `json:"reason,omitempty"`
}

// Command asks the engine to apply one action to one instance
type Command struct {
	InstanceID int64
	Action     domainwf.Action
	Payload    Payload
	Actor      entity.Actor

	// ExpectedVersion, when set, must match the stored version
	ExpectedVersion *int64
}

// Effect runs inside the transition transaction, before the instance row is written.
// It may adjust inst (cost, flags) and entry.Details. Returning an error rolls back everything.
type Effect func(ctx context.Context, inst *entity.WorkflowInstance, entry *entity.TransitionLogEntry) error

// Result is the outcome of a committed transition
type Result struct {
	Instance *entity.WorkflowInstance
	Entry    *entity.TransitionLogEntry
}

// WorkflowEngine owns machine status and the transition log
type WorkflowEngine interface {
	// Receive opens a new instance in RECEIVED_AT_CENTER
	Receive(ctx context.Context, in entity.ReceiveInput, actor entity.Actor) (*Result, error)

	// Transition validates and applies a command. effect may be nil.
	Transition(ctx context.Context, cmd Command, effect Effect) (*Result, error)

	// GetStateMachine returns a state machine positioned at the instance's current status
	GetStateMachine(ctx context.Context, instanceID int64) (domainwf.StateMachine, error)

	// GetCurrentState returns the current state of an instance
	GetCurrentState(ctx context.Context, instanceID int64) (domainwf.State, error)
}
