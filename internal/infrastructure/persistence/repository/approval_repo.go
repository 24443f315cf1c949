package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/garyjia/repair-center/internal/application/port"
	"github.com/garyjia/repair-center/internal/domain/entity"
	"github.com/garyjia/repair-center/internal/domain/workflow"
	"github.com/garyjia/repair-center/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const approvalColumns = `
	a.id, a.assignment_id, a.requested_parts, a.total_requested_cost, a.status,
	a.rejection_reason, a.requested_by, a.responded_by, a.responded_at, a.created_at`

// ApprovalRepository implements port.ApprovalRepository
type ApprovalRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewApprovalRepository creates a new approval repository
func NewApprovalRepository(db *sql.DB, logger *zap.Logger) *ApprovalRepository {
	return &ApprovalRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a PENDING approval request
func (r *ApprovalRepository) Create(ctx context.Context, req *entity.ApprovalRequest) error {
	parts, err := json.Marshal(req.RequestedParts)
	if err != nil {
		return fmt.Errorf("failed to marshal requested parts: %w", err)
	}

	query := `
		INSERT INTO approval_requests (
			assignment_id, requested_parts, total_requested_cost, status,
			rejection_reason, requested_by, responded_by, responded_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		req.AssignmentID,
		string(parts),
		req.TotalRequestedCost,
		string(req.Status),
		nullString(req.RejectionReason),
		req.RequestedBy,
		nullString(req.RespondedBy),
		nullTime(req.RespondedAt),
		utc(req.CreatedAt),
	)
	if err != nil {
		if sqlite.IsUniqueViolation(err, "approval_requests.assignment_id") {
			return fmt.Errorf("instance %d: %w", req.AssignmentID, workflow.ErrDuplicatePendingApproval)
		}
		r.logger.Error("Failed to create approval request",
			zap.Int64("instance_id", req.AssignmentID),
			zap.Error(err))
		return fmt.Errorf("failed to create approval request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	req.ID = id
	return nil
}

// GetByID retrieves an approval request by ID
func (r *ApprovalRepository) GetByID(ctx context.Context, id int64) (*entity.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_requests a WHERE a.id = ?`
	return r.getOne(ctx, query, id)
}

// GetPendingByInstanceID returns the open request of an instance, or nil
func (r *ApprovalRepository) GetPendingByInstanceID(ctx context.Context, instanceID int64) (*entity.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_requests a
		WHERE a.assignment_id = ? AND a.status = ?`
	return r.getOne(ctx, query, instanceID, string(entity.ApprovalStatusPending))
}

// Resolve records the decision on a PENDING request
func (r *ApprovalRepository) Resolve(ctx context.Context, req *entity.ApprovalRequest) error {
	if req.Status == entity.ApprovalStatusPending || !req.Status.IsValid() {
		return fmt.Errorf("approval %d: cannot resolve to %q", req.ID, req.Status)
	}

	query := `
		UPDATE approval_requests SET
			status = ?, rejection_reason = ?, responded_by = ?, responded_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		string(req.Status),
		nullString(req.RejectionReason),
		nullString(req.RespondedBy),
		nullTime(req.RespondedAt),
		req.ID,
		string(entity.ApprovalStatusPending),
	)
	if err != nil {
		r.logger.Error("Failed to resolve approval request",
			zap.Int64("approval_id", req.ID),
			zap.Error(err))
		return fmt.Errorf("failed to resolve approval request: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("approval %d: %w", req.ID, workflow.ErrAlreadyResolved)
	}
	return nil
}

// List returns approval requests matching the filter, newest first.
// The branch filter matches either side of the owning instance.
func (r *ApprovalRepository) List(ctx context.Context, filter entity.ApprovalFilter) ([]*entity.ApprovalRequest, error) {
	var where whereClause
	if filter.Status != "" {
		where.add("a.status = ?", string(filter.Status))
	}
	if filter.AssignmentID != 0 {
		where.add("a.assignment_id = ?", filter.AssignmentID)
	}
	if filter.BranchID != "" {
		where.add("(w.origin_branch_id = ? OR w.center_branch_id = ?)", filter.BranchID, filter.BranchID)
	}

	query := `SELECT ` + approvalColumns + `
		FROM approval_requests a
		JOIN workflow_instances w ON w.id = a.assignment_id` + where.String() + ` ORDER BY a.id DESC`
	query = where.paginate(query, filter.Limit, filter.Offset)

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, where.args...)
	if err != nil {
		r.logger.Error("Failed to list approval requests", zap.Error(err))
		return nil, fmt.Errorf("failed to list approval requests: %w", err)
	}
	defer rows.Close()

	var requests []*entity.ApprovalRequest
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval request: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func (r *ApprovalRepository) getOne(ctx context.Context, query string, args ...interface{}) (*entity.ApprovalRequest, error) {
	req, err := scanApproval(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get approval request", zap.Error(err))
		return nil, fmt.Errorf("failed to get approval request: %w", err)
	}
	return req, nil
}

func scanApproval(row rowScanner) (*entity.ApprovalRequest, error) {
	var (
		req                 entity.ApprovalRequest
		parts, status       string
		reason, respondedBy sql.NullString
		respondedAt         sql.NullTime
	)

	if err := row.Scan(
		&req.ID,
		&req.AssignmentID,
		&parts,
		&req.TotalRequestedCost,
		&status,
		&reason,
		&req.RequestedBy,
		&respondedBy,
		&respondedAt,
		&req.CreatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(parts), &req.RequestedParts); err != nil {
		return nil, fmt.Errorf("approval %d: invalid requested_parts: %w", req.ID, err)
	}
	req.Status = entity.ApprovalStatus(status)
	req.RejectionReason = reason.String
	req.RespondedBy = respondedBy.String
	req.RespondedAt = timePtr(respondedAt)
	req.CreatedAt = req.CreatedAt.UTC()
	return &req, nil
}

var _ port.ApprovalRepository = (*ApprovalRepository)(nil)
