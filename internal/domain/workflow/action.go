package workflow

// Action represents an operation that can cause a state transition
type Action string

const (
	ActionAssign          Action = "ASSIGN"
	ActionInspect         Action = "INSPECT"
	ActionRequestApproval Action = "REQUEST_APPROVAL"
	ActionApprove         Action = "APPROVE"
	ActionReject          Action = "REJECT"
	ActionComplete        Action = "COMPLETE"
	ActionReturn          Action = "RETURN"

	// ActionReceive is recorded in the transition log when an instance is created.
	// It is not an edge of the state machine.
	ActionReceive Action = "RECEIVE"
)

var transitionActions = map[Action]bool{
	ActionAssign:          true,
	ActionInspect:         true,
	ActionRequestApproval: true,
	ActionApprove:         true,
	ActionReject:          true,
	ActionComplete:        true,
	ActionReturn:          true,
}

// String returns the string representation of the action
func (a Action) String() string {
	return string(a)
}

// IsValid returns true if the action can be fired against the state machine
func (a Action) IsValid() bool {
	return transitionActions[a]
}
