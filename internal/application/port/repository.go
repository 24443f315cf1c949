package port

import (
	"context"
	"time"

	"github.com/garyjia/repair-center/internal/domain/entity"
)

// InstanceRepository defines persistence operations for WorkflowInstance
type InstanceRepository interface {
	// Create inserts a new instance and sets its ID.
	// A serial that already has a non-RETURNED instance yields workflow.ErrMachineAlreadyActive.
	Create(ctx context.Context, instance *entity.WorkflowInstance) error

	// GetByID returns nil, nil when the instance does not exist
	GetByID(ctx context.Context, id int64) (*entity.WorkflowInstance, error)

	// GetActiveBySerial returns the open (non-RETURNED) instance for a serial, or nil
	GetActiveBySerial(ctx context.Context, serial string) (*entity.WorkflowInstance, error)

	// Update writes the instance only if its stored version equals expectedVersion,
	// then bumps the version. A lost race yields workflow.ErrConcurrentModification.
	Update(ctx context.Context, instance *entity.WorkflowInstance, expectedVersion int64) error

	List(ctx context.Context, filter entity.InstanceFilter) ([]*entity.WorkflowInstance, error)
}

// TransitionLogRepository defines persistence operations for the append-only transition log
type TransitionLogRepository interface {
	Append(ctx context.Context, entry *entity.TransitionLogEntry) error

	// GetByInstanceID returns entries ordered by performed_at, then id
	GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.TransitionLogEntry, error)
}

// ApprovalRepository defines persistence operations for ApprovalRequest
type ApprovalRepository interface {
	// Create inserts a PENDING request. A second pending request for the same
	// instance yields workflow.ErrDuplicatePendingApproval.
	Create(ctx context.Context, req *entity.ApprovalRequest) error

	GetByID(ctx context.Context, id int64) (*entity.ApprovalRequest, error)
	GetPendingByInstanceID(ctx context.Context, instanceID int64) (*entity.ApprovalRequest, error)

	// Resolve moves a PENDING request to its final status.
	// A request that is no longer PENDING yields workflow.ErrAlreadyResolved.
	Resolve(ctx context.Context, req *entity.ApprovalRequest) error

	List(ctx context.Context, filter entity.ApprovalFilter) ([]*entity.ApprovalRequest, error)
}

// PaymentRepository defines persistence operations for PendingPayment
type PaymentRepository interface {
	Create(ctx context.Context, payment *entity.PendingPayment) error
	GetByID(ctx context.Context, id int64) (*entity.PendingPayment, error)
	GetByApprovalID(ctx context.Context, approvalID int64) (*entity.PendingPayment, error)

	// GetPaidByReceipt returns the PAID payment holding a receipt number, or nil
	GetPaidByReceipt(ctx context.Context, receiptNumber string) (*entity.PendingPayment, error)

	// MarkPaid settles a PENDING payment. An already PAID payment yields
	// workflow.ErrAlreadySettled; a receipt held by another PAID payment
	// yields workflow.ErrReceiptNumberConflict.
	MarkPaid(ctx context.Context, id int64, receiptNumber string, place entity.PaymentPlace, paidBy string, paidAt time.Time) error

	List(ctx context.Context, filter entity.PaymentFilter) ([]*entity.PendingPayment, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
