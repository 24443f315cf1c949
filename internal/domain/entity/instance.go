package entity

import (
	"time"

	"github.com/garyjia/repair-center/internal/domain/workflow"
)

// WorkflowInstance tracks one machine's stay in the maintenance center
type WorkflowInstance struct {
	ID                   int64               `json:"id"`
	MachineSerial        string              `json:"machine_serial"`
	Status               workflow.State      `json:"current_status"`
	OriginBranchID       string              `json:"origin_branch_id"`
	CenterBranchID       string              `json:"center_branch_id"`
	AssignedTechnicianID string              `json:"assigned_technician_id,omitempty"`
	CustomerID           string              `json:"customer_id,omitempty"`
	TotalCost            int64               `json:"total_cost"`
	RejectionFlag        bool                `json:"rejection_flag"`
	Resolution           workflow.Resolution `json:"resolution,omitempty"`
	AssignedAt           *time.Time          `json:"assigned_at,omitempty"`
	StartedAt            *time.Time          `json:"started_at,omitempty"`
	CompletedAt          *time.Time          `json:"completed_at,omitempty"`
	LastActivityAt       time.Time           `json:"last_activity_at"`
	Version              int64               `json:"version"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// BelongsTo reports whether the instance is visible to a branch
func (i *WorkflowInstance) BelongsTo(branchID string) bool {
	return i.OriginBranchID == branchID || i.CenterBranchID == branchID
}

// Clone returns a copy that can be mutated without touching the original
func (i *WorkflowInstance) Clone() *WorkflowInstance {
	c := *i
	return &c
}

// ReceiveInput carries the data captured when a machine arrives at the center
type ReceiveInput struct {
	MachineSerial  string `json:"machine_serial"`
	OriginBranchID string `json:"origin_branch_id"`
	CenterBranchID string `json:"center_branch_id"`
	CustomerID     string `json:"customer_id,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// Validate checks required receive fields
func (in ReceiveInput) Validate() error {
	if in.MachineSerial == "" {
		return validationError("machine_serial is required")
	}
	if in.OriginBranchID == "" {
		return validationError("origin_branch_id is required")
	}
	if in.CenterBranchID == "" {
		return validationError("center_branch_id is required")
	}
	return nil
}
