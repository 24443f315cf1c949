package service

import (
	"fmt"

	"github.com/garyjia/repair-center/internal/domain/entity"
	domainwf "github.com/garyjia/repair-center/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Outcome is what a mutating workflow operation produced.
// Approval and Payment are set only when the operation touched them.
type Outcome struct {
	Instance *entity.WorkflowInstance   `json:"instance"`
	Entry    *entity.TransitionLogEntry `json:"entry"`
	Approval *entity.ApprovalRequest    `json:"approval,omitempty"`
	Payment  *entity.PendingPayment     `json:"payment,omitempty"`
}

// branchScope returns the branch a listing must be restricted to, or "" for all
func branchScope(actor entity.Actor, requested string) string {
	if actor.CanSeeAllBranches() {
		return requested
	}
	return actor.BranchID
}

// checkVisible hides records of other branches from branch-scoped actors
func checkVisible(actor entity.Actor, visible bool, what string, id int64) error {
	if actor.CanSeeAllBranches() || visible {
		return nil
	}
	return fmt.Errorf("%s %d: %w", what, id, domainwf.ErrNotFound)
}
