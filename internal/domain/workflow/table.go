package workflow

import "context"

// Edge is one row of a transition table
type Edge struct {
	From   State
	Action Action
	To     State
	Guard  GuardFunc
}

func costPositive(_ context.Context, p Params) bool { return p.RequestedCost > 0 }

func costZero(_ context.Context, p Params) bool { return p.RequestedCost == 0 }

func resolvedAs(r Resolution) GuardFunc {
	return func(_ context.Context, p Params) bool { return p.Resolution == r }
}

// RepairTable is the authoritative repair lifecycle.
// Edges sharing a (From, Action) pair are tried in table order.
var RepairTable = []Edge{
	{StateReceivedAtCenter, ActionAssign, StateAssigned, nil},
	{StateAssigned, ActionAssign, StateAssigned, nil},
	{StateAssigned, ActionInspect, StateUnderInspection, nil},

	{StateUnderInspection, ActionRequestApproval, StateAwaitingApproval, costPositive},
	{StateUnderInspection, ActionRequestApproval, StateInProgress, costZero},
	{StateInProgress, ActionRequestApproval, StateAwaitingApproval, costPositive},
	{StateInProgress, ActionRequestApproval, StateInProgress, costZero},
	{StateRepairApproved, ActionRequestApproval, StateAwaitingApproval, costPositive},
	{StateRepairApproved, ActionRequestApproval, StateInProgress, costZero},
	{StateRejected, ActionRequestApproval, StateAwaitingApproval, costPositive},
	{StateRejected, ActionRequestApproval, StateInProgress, costZero},

	{StateAwaitingApproval, ActionApprove, StateRepairApproved, nil},
	{StateAwaitingApproval, ActionReject, StateRejected, nil},
	{StateRejected, ActionInspect, StateUnderInspection, nil},

	{StateUnderInspection, ActionComplete, StateRepaired, resolvedAs(ResolutionRepaired)},
	{StateUnderInspection, ActionComplete, StateScrapped, resolvedAs(ResolutionScrapped)},
	{StateUnderInspection, ActionComplete, StateReturnedAsIs, resolvedAs(ResolutionReturnedAsIs)},
	{StateInProgress, ActionComplete, StateRepaired, resolvedAs(ResolutionRepaired)},
	{StateInProgress, ActionComplete, StateScrapped, resolvedAs(ResolutionScrapped)},
	{StateInProgress, ActionComplete, StateReturnedAsIs, resolvedAs(ResolutionReturnedAsIs)},
	{StateRepairApproved, ActionComplete, StateRepaired, resolvedAs(ResolutionRepaired)},
	{StateRepairApproved, ActionComplete, StateScrapped, resolvedAs(ResolutionScrapped)},
	{StateRejected, ActionComplete, StateScrapped, resolvedAs(ResolutionScrapped)},
	{StateRejected, ActionComplete, StateReturnedAsIs, resolvedAs(ResolutionReturnedAsIs)},

	{StateRepaired, ActionReturn, StateReadyForReturn, nil},
	{StateScrapped, ActionReturn, StateReadyForReturn, nil},
	{StateReturnedAsIs, ActionReturn, StateReadyForReturn, nil},
	{StateReadyForReturn, ActionReturn, StateReturned, nil},
}

// Apply configures every edge of the table on the builder
func Apply(builder StateMachineBuilder, edges []Edge) StateMachineBuilder {
	for _, e := range edges {
		cfg := builder.Configure(e.From)
		if e.Guard == nil {
			cfg.Permit(e.Action, e.To)
			continue
		}
		cfg.PermitIf(e.Action, e.To, e.Guard)
	}
	return builder
}

// NextStates lists the distinct target states reachable from a state by an action
func NextStates(edges []Edge, from State, action Action) []State {
	seen := make(map[State]bool)
	var out []State
	for _, e := range edges {
		if e.From == from && e.Action == action && !seen[e.To] {
			seen[e.To] = true
			out = append(out, e.To)
		}
	}
	return out
}
