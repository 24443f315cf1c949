package workflow

import (
	"fmt"
	"strings"
)

// State represents the status of a machine in the maintenance center pipeline
type State string

const (
	StateReceivedAtCenter State = "RECEIVED_AT_CENTER"
	StateAssigned         State = "ASSIGNED"
	StateUnderInspection  State = "UNDER_INSPECTION"
	StateAwaitingApproval State = "AWAITING_APPROVAL"
	StateInProgress       State = "IN_PROGRESS"
	StateRepairApproved   State = "REPAIR_APPROVED"
	StateRejected         State = "REJECTED"
	StateRepaired         State = "REPAIRED"
	StateScrapped         State = "SCRAPPED"
	StateReturnedAsIs     State = "RETURNED_AS_IS"
	StateReadyForReturn   State = "READY_FOR_RETURN"
	StateReturned         State = "RETURNED"
)

var validStates = map[State]bool{
	StateReceivedAtCenter: true,
	StateAssigned:         true,
	StateUnderInspection:  true,
	StateAwaitingApproval: true,
	StateInProgress:       true,
	StateRepairApproved:   true,
	StateRejected:         true,
	StateRepaired:         true,
	StateScrapped:         true,
	StateReturnedAsIs:     true,
	StateReadyForReturn:   true,
	StateReturned:         true,
}

var terminalStates = map[State]bool{
	StateReturned: true,
}

// legacyStates maps the older dashboard vocabulary onto the canonical one.
var legacyStates = map[string]State{
	"PENDING_APPROVAL": StateAwaitingApproval,
	"COMPLETED":        StateRepaired,
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid workflow state
func (s State) IsValid() bool {
	return validStates[s]
}

// ParseState parses a status string, accepting legacy aliases on input
func ParseState(s string) (State, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	if state := State(normalized); state.IsValid() {
		return state, nil
	}
	if state, ok := legacyStates[normalized]; ok {
		return state, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidState, s)
}

// Resolution is the outcome code recorded when work on a machine completes
type Resolution string

const (
	ResolutionRepaired     Resolution = "REPAIRED"
	ResolutionScrapped     Resolution = "SCRAPPED"
	ResolutionReturnedAsIs Resolution = "RETURNED_AS_IS"
)

// IsValid returns true if the resolution is one of the known outcome codes
func (r Resolution) IsValid() bool {
	switch r {
	case ResolutionRepaired, ResolutionScrapped, ResolutionReturnedAsIs:
		return true
	default:
		return false
	}
}
