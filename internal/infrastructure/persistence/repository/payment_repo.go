package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/repair-center/internal/application/port"
	"github.com/garyjia/repair-center/internal/domain/entity"
	"github.com/garyjia/repair-center/internal/domain/workflow"
	"github.com/garyjia/repair-center/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const paymentColumns = `
	id, assignment_id, approval_id, amount, parts_details, status,
	receipt_number, payment_place, paid_by, paid_at,
	origin_branch_id, center_branch_id, created_at`

// PaymentRepository implements port.PaymentRepository
type PaymentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *sql.DB, logger *zap.Logger) *PaymentRepository {
	return &PaymentRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a ledger entry. One payment exists per approval.
func (r *PaymentRepository) Create(ctx context.Context, payment *entity.PendingPayment) error {
	parts, err := json.Marshal(payment.PartsDetails)
	if err != nil {
		return fmt.Errorf("failed to marshal parts details: %w", err)
	}

	query := `
		INSERT INTO pending_payments (
			assignment_id, approval_id, amount, parts_details, status,
			receipt_number, payment_place, paid_by, paid_at,
			origin_branch_id, center_branch_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		payment.AssignmentID,
		payment.ApprovalID,
		payment.Amount,
		string(parts),
		string(payment.Status),
		nullString(payment.ReceiptNumber),
		nullString(string(payment.PaymentPlace)),
		nullString(payment.PaidBy),
		nullTime(payment.PaidAt),
		payment.OriginBranchID,
		payment.CenterBranchID,
		utc(payment.CreatedAt),
	)
	if err != nil {
		if sqlite.IsUniqueViolation(err, "pending_payments.approval_id") {
			return fmt.Errorf("payment for approval %d already exists: %w", payment.ApprovalID, workflow.ErrAlreadyResolved)
		}
		r.logger.Error("Failed to create pending payment",
			zap.Int64("approval_id", payment.ApprovalID),
			zap.Error(err))
		return fmt.Errorf("failed to create pending payment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	payment.ID = id
	return nil
}

// GetByID retrieves a payment by ID
func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*entity.PendingPayment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM pending_payments WHERE id = ?`, id)
}

// GetByApprovalID retrieves the payment created for an approval
func (r *PaymentRepository) GetByApprovalID(ctx context.Context, approvalID int64) (*entity.PendingPayment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM pending_payments WHERE approval_id = ?`, approvalID)
}

// GetPaidByReceipt returns the settled payment holding a receipt number
func (r *PaymentRepository) GetPaidByReceipt(ctx context.Context, receiptNumber string) (*entity.PendingPayment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM pending_payments WHERE receipt_number = ? AND status = ?`,
		receiptNumber, string(entity.PaymentStatusPaid))
}

// MarkPaid settles a PENDING payment
func (r *PaymentRepository) MarkPaid(ctx context.Context, id int64, receiptNumber string, place entity.PaymentPlace, paidBy string, paidAt time.Time) error {
	query := `
		UPDATE pending_payments SET
			status = ?, receipt_number = ?, payment_place = ?, paid_by = ?, paid_at = ?
		WHERE id = ? AND status = ?
	`

	conn := sqlite.Conn(ctx, r.db)
	result, err := conn.ExecContext(ctx, query,
		string(entity.PaymentStatusPaid),
		receiptNumber,
		string(place),
		paidBy,
		utc(paidAt),
		id,
		string(entity.PaymentStatusPending),
	)
	if err != nil {
		if sqlite.IsUniqueViolation(err, "pending_payments.receipt_number") {
			return fmt.Errorf("receipt %q: %w", receiptNumber, workflow.ErrReceiptNumberConflict)
		}
		r.logger.Error("Failed to mark payment paid",
			zap.Int64("payment_id", id),
			zap.Error(err))
		return fmt.Errorf("failed to mark payment paid: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists int
	err = conn.QueryRowContext(ctx, `SELECT 1 FROM pending_payments WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("payment %d: %w", id, workflow.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check payment: %w", err)
	}
	return fmt.Errorf("payment %d: %w", id, workflow.ErrAlreadySettled)
}

// List returns payments matching the filter, oldest first
func (r *PaymentRepository) List(ctx context.Context, filter entity.PaymentFilter) ([]*entity.PendingPayment, error) {
	var where whereClause
	if filter.Status != "" {
		where.add("status = ?", string(filter.Status))
	}
	if filter.BranchID != "" {
		where.add("(origin_branch_id = ? OR center_branch_id = ?)", filter.BranchID, filter.BranchID)
	}
	if filter.From != nil {
		where.add("created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		where.add("created_at < ?", filter.To.UTC())
	}

	query := `SELECT ` + paymentColumns + ` FROM pending_payments` + where.String() + ` ORDER BY created_at ASC, id ASC`
	query = where.paginate(query, filter.Limit, filter.Offset)

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, where.args...)
	if err != nil {
		r.logger.Error("Failed to list payments", zap.Error(err))
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*entity.PendingPayment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}

func (r *PaymentRepository) getOne(ctx context.Context, query string, args ...interface{}) (*entity.PendingPayment, error) {
	payment, err := scanPayment(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get payment", zap.Error(err))
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return payment, nil
}

func scanPayment(row rowScanner) (*entity.PendingPayment, error) {
	var (
		payment                entity.PendingPayment
		parts, status          string
		receipt, place, paidBy sql.NullString
		paidAt                 sql.NullTime
	)

	if err := row.Scan(
		&payment.ID,
		&payment.AssignmentID,
		&payment.ApprovalID,
		&payment.Amount,
		&parts,
		&status,
		&receipt,
		&place,
		&paidBy,
		&paidAt,
		&payment.OriginBranchID,
		&payment.CenterBranchID,
		&payment.CreatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(parts), &payment.PartsDetails); err != nil {
		return nil, fmt.Errorf("payment %d: invalid parts_details: %w", payment.ID, err)
	}
	payment.Status = entity.PaymentStatus(status)
	payment.ReceiptNumber = receipt.String
	payment.PaymentPlace = entity.PaymentPlace(place.String)
	payment.PaidBy = paidBy.String
	payment.PaidAt = timePtr(paidAt)
	payment.CreatedAt = payment.CreatedAt.UTC()
	return &payment, nil
}

var _ port.PaymentRepository = (*PaymentRepository)(nil)
