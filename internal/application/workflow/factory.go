package workflow

import (
	domainwf "github.com/garyjia/repair-center/internal/domain/workflow"
)

// BuildRepairMachine creates a state machine for the repair lifecycle positioned at initialState
func BuildRepairMachine(initialState domainwf.State) domainwf.StateMachine {
	return domainwf.Apply(domainwf.NewBuilder(), domainwf.RepairTable).Build(initialState)
}
