package entity

import (
	"math"
	"strings"
	"time"
)

// ApprovalStatus is the lifecycle status of a cost approval request
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRejected ApprovalStatus = "REJECTED"
)

// IsValid returns true for known approval statuses
func (s ApprovalStatus) IsValid() bool {
	switch s {
	case ApprovalStatusPending, ApprovalStatusApproved, ApprovalStatusRejected:
		return true
	default:
		return false
	}
}

// Decision is a branch manager's answer to an approval request
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// IsValid returns true for APPROVE and REJECT
func (d Decision) IsValid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// Part is a line of requested spare parts. UnitCost is in cents.
type Part struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	UnitCost int64  `json:"unit_cost"`
}

// Parts is an ordered parts list
type Parts []Part

// Validate checks every line and that the total fits in int64
func (p Parts) Validate() error {
	if len(p) == 0 {
		return validationError("at least one part is required")
	}
	var total int64
	for i, part := range p {
		if strings.TrimSpace(part.Name) == "" {
			return validationError("part %d: name is required", i)
		}
		if part.Quantity <= 0 {
			return validationError("part %d: quantity must be positive", i)
		}
		if part.UnitCost < 0 {
			return validationError("part %d: unit cost must not be negative", i)
		}
		if part.UnitCost > 0 && int64(part.Quantity) > math.MaxInt64/part.UnitCost {
			return validationError("part %d: line total overflows", i)
		}
		line := int64(part.Quantity) * part.UnitCost
		if total > math.MaxInt64-line {
			return validationError("parts total overflows")
		}
		total += line
	}
	return nil
}

// Total returns the sum of quantity times unit cost
func (p Parts) Total() int64 {
	var total int64
	for _, part := range p {
		total += int64(part.Quantity) * part.UnitCost
	}
	return total
}

// ApprovalRequest asks the origin branch to accept the cost of a repair
type ApprovalRequest struct {
	ID                 int64          `json:"id"`
	AssignmentID       int64          `json:"assignment_id"`
	RequestedParts     Parts          `json:"requested_parts"`
	TotalRequestedCost int64          `json:"total_requested_cost"`
	Status             ApprovalStatus `json:"status"`
	RejectionReason    string         `json:"rejection_reason,omitempty"`
	RequestedBy        string         `json:"requested_by"`
	RespondedBy        string         `json:"responded_by,omitempty"`
	RespondedAt        *time.Time     `json:"responded_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// NewApprovalRequest builds a PENDING request whose total is derived from its parts
func NewApprovalRequest(assignmentID int64, parts Parts, requestedBy string, now time.Time) *ApprovalRequest {
	return &ApprovalRequest{
		AssignmentID:       assignmentID,
		RequestedParts:     parts,
		TotalRequestedCost: parts.Total(),
		Status:             ApprovalStatusPending,
		RequestedBy:        requestedBy,
		CreatedAt:          now,
	}
}

// IsPending returns true while the request awaits a decision
func (a *ApprovalRequest) IsPending() bool {
	return a.Status == ApprovalStatusPending
}

// CheckTotal verifies the stored total still matches the parts
func (a *ApprovalRequest) CheckTotal() error {
	if got := a.RequestedParts.Total(); got != a.TotalRequestedCost {
		return validationError("approval %d: total %d does not match parts total %d", a.ID, a.TotalRequestedCost, got)
	}
	return nil
}
