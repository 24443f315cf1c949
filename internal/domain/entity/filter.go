package entity

import (
	"time"

	"github.com/garyjia/repair-center/internal/domain/workflow"
)

// InstanceFilter narrows instance listings. Zero values are ignored.
type InstanceFilter struct {
	Status   workflow.State
	BranchID string
	Serial   string
	Limit    int
	Offset   int
}

// ApprovalFilter narrows approval listings
type ApprovalFilter struct {
	Status       ApprovalStatus
	BranchID     string
	AssignmentID int64
	Limit        int
	Offset       int
}

// PaymentFilter narrows payment listings. From/To bound created_at, half-open.
type PaymentFilter struct {
	Status   PaymentStatus
	BranchID string
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}
