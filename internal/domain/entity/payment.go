package entity

import "time"

// PaymentStatus is the settlement status of a pending payment
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
)

// IsValid returns true for known payment statuses
func (s PaymentStatus) IsValid() bool {
	return s == PaymentStatusPending || s == PaymentStatusPaid
}

// PaymentPlace is where a settlement was made
type PaymentPlace string

const (
	PaymentPlaceCenterCashier PaymentPlace = "CENTER_CASHIER"
	PaymentPlaceBranchCashier PaymentPlace = "BRANCH_CASHIER"
	PaymentPlaceBankTransfer  PaymentPlace = "BANK_TRANSFER"
)

// IsValid returns true for the enumerated payment places
func (p PaymentPlace) IsValid() bool {
	switch p {
	case PaymentPlaceCenterCashier, PaymentPlaceBranchCashier, PaymentPlaceBankTransfer:
		return true
	default:
		return false
	}
}

// PendingPayment is money owed by a branch to the center for an approved repair
type PendingPayment struct {
	ID             int64         `json:"id"`
	AssignmentID   int64         `json:"assignment_id"`
	ApprovalID     int64         `json:"approval_id"`
	Amount         int64         `json:"amount"`
	PartsDetails   Parts         `json:"parts_details"`
	Status         PaymentStatus `json:"status"`
	ReceiptNumber  string        `json:"receipt_number,omitempty"`
	PaymentPlace   PaymentPlace  `json:"payment_place,omitempty"`
	PaidBy         string        `json:"paid_by,omitempty"`
	PaidAt         *time.Time    `json:"paid_at,omitempty"`
	OriginBranchID string        `json:"origin_branch_id"`
	CenterBranchID string        `json:"center_branch_id"`
	CreatedAt      time.Time     `json:"created_at"`
}

// NewPendingPayment snapshots an approved request into an unpaid ledger entry
func NewPendingPayment(inst *WorkflowInstance, approval *ApprovalRequest, now time.Time) *PendingPayment {
	parts := make(Parts, len(approval.RequestedParts))
	copy(parts, approval.RequestedParts)

	return &PendingPayment{
		AssignmentID:   inst.ID,
		ApprovalID:     approval.ID,
		Amount:         approval.TotalRequestedCost,
		PartsDetails:   parts,
		Status:         PaymentStatusPending,
		OriginBranchID: inst.OriginBranchID,
		CenterBranchID: inst.CenterBranchID,
		CreatedAt:      now,
	}
}

// IsPaid returns true once the payment has been settled
func (p *PendingPayment) IsPaid() bool {
	return p.Status == PaymentStatusPaid
}

// BelongsTo reports whether the payment involves a branch
func (p *PendingPayment) BelongsTo(branchID string) bool {
	return p.OriginBranchID == branchID || p.CenterBranchID == branchID
}
