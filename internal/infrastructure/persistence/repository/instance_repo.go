package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garyjia/repair-center/internal/application/port"
	"github.com/garyjia/repair-center/internal/domain/entity"
	"github.com/garyjia/repair-center/internal/domain/workflow"
	"github.com/garyjia/repair-center/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const instanceColumns = `
	id, machine_serial, current_status, origin_branch_id, center_branch_id,
	assigned_technician_id, customer_id, total_cost, rejection_flag, resolution,
	assigned_at, started_at, completed_at, last_activity_at, version,
	created_at, updated_at`

// InstanceRepository implements port.InstanceRepository
type InstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sql.DB, logger *zap.Logger) *InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a workflow instance and sets its ID
func (r *InstanceRepository) Create(ctx context.Context, inst *entity.WorkflowInstance) error {
	query := `
		INSERT INTO workflow_instances (
			machine_serial, current_status, origin_branch_id, center_branch_id,
			assigned_technician_id, customer_id, total_cost, rejection_flag, resolution,
			assigned_at, started_at, completed_at, last_activity_at, version,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if inst.Version == 0 {
		inst.Version = 1
	}

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		inst.MachineSerial,
		string(inst.Status),
		inst.OriginBranchID,
		inst.CenterBranchID,
		nullString(inst.AssignedTechnicianID),
		nullString(inst.CustomerID),
		inst.TotalCost,
		inst.RejectionFlag,
		nullString(string(inst.Resolution)),
		nullTime(inst.AssignedAt),
		nullTime(inst.StartedAt),
		nullTime(inst.CompletedAt),
		utc(inst.LastActivityAt),
		inst.Version,
		utc(inst.CreatedAt),
		utc(inst.UpdatedAt),
	)
	if err != nil {
		if sqlite.IsUniqueViolation(err, "workflow_instances.machine_serial") {
			return fmt.Errorf("serial %q: %w", inst.MachineSerial, workflow.ErrMachineAlreadyActive)
		}
		r.logger.Error("Failed to create workflow instance",
			zap.String("serial", inst.MachineSerial),
			zap.Error(err))
		return fmt.Errorf("failed to create workflow instance: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	inst.ID = id
	return nil
}

// GetByID retrieves an instance by ID
func (r *InstanceRepository) GetByID(ctx context.Context, id int64) (*entity.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE id = ?`
	return r.getOne(ctx, query, id)
}

// GetActiveBySerial returns the non-RETURNED instance for a serial
func (r *InstanceRepository) GetActiveBySerial(ctx context.Context, serial string) (*entity.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances
		WHERE machine_serial = ? AND current_status <> ?
		ORDER BY id DESC LIMIT 1`
	return r.getOne(ctx, query, serial, string(workflow.StateReturned))
}

// Update writes the instance under optimistic concurrency control
func (r *InstanceRepository) Update(ctx context.Context, inst *entity.WorkflowInstance, expectedVersion int64) error {
	query := `
		UPDATE workflow_instances SET
			current_status = ?, assigned_technician_id = ?, customer_id = ?,
			total_cost = ?, rejection_flag = ?, resolution = ?,
			assigned_at = ?, started_at = ?, completed_at = ?,
			last_activity_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		string(inst.Status),
		nullString(inst.AssignedTechnicianID),
		nullString(inst.CustomerID),
		inst.TotalCost,
		inst.RejectionFlag,
		nullString(string(inst.Resolution)),
		nullTime(inst.AssignedAt),
		nullTime(inst.StartedAt),
		nullTime(inst.CompletedAt),
		utc(inst.LastActivityAt),
		utc(inst.UpdatedAt),
		inst.ID,
		expectedVersion,
	)
	if err != nil {
		if sqlite.IsBusy(err) {
			return fmt.Errorf("instance %d: %w", inst.ID, workflow.ErrConcurrentModification)
		}
		r.logger.Error("Failed to update workflow instance",
			zap.Int64("instance_id", inst.ID),
			zap.Error(err))
		return fmt.Errorf("failed to update workflow instance: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("instance %d at version %d: %w", inst.ID, expectedVersion, workflow.ErrConcurrentModification)
	}

	inst.Version = expectedVersion + 1
	return nil
}

// List returns instances matching the filter, newest first
func (r *InstanceRepository) List(ctx context.Context, filter entity.InstanceFilter) ([]*entity.WorkflowInstance, error) {
	var where whereClause
	if filter.Status != "" {
		where.add("current_status = ?", string(filter.Status))
	}
	if filter.BranchID != "" {
		where.add("(origin_branch_id = ? OR center_branch_id = ?)", filter.BranchID, filter.BranchID)
	}
	if filter.Serial != "" {
		where.add("machine_serial = ?", filter.Serial)
	}

	query := `SELECT ` + instanceColumns + ` FROM workflow_instances` + where.String() + ` ORDER BY id DESC`
	query = where.paginate(query, filter.Limit, filter.Offset)

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, where.args...)
	if err != nil {
		r.logger.Error("Failed to list workflow instances", zap.Error(err))
		return nil, fmt.Errorf("failed to list workflow instances: %w", err)
	}
	defer rows.Close()

	var instances []*entity.WorkflowInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow instance: %w", err)
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

func (r *InstanceRepository) getOne(ctx context.Context, query string, args ...interface{}) (*entity.WorkflowInstance, error) {
	inst, err := scanInstance(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow instance", zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow instance: %w", err)
	}
	return inst, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstance(row rowScanner) (*entity.WorkflowInstance, error) {
	var (
		inst                               entity.WorkflowInstance
		status                             string
		technician, customer, resolution   sql.NullString
		assignedAt, startedAt, completedAt sql.NullTime
	)

	err := row.Scan(
		&inst.ID,
		&inst.MachineSerial,
		&status,
		&inst.OriginBranchID,
		&inst.CenterBranchID,
		&technician,
		&customer,
		&inst.TotalCost,
		&inst.RejectionFlag,
		&resolution,
		&assignedAt,
		&startedAt,
		&completedAt,
		&inst.LastActivityAt,
		&inst.Version,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inst.Status = workflow.State(status)
	inst.AssignedTechnicianID = technician.String
	inst.CustomerID = customer.String
	inst.Resolution = workflow.Resolution(resolution.String)
	inst.AssignedAt = timePtr(assignedAt)
	inst.StartedAt = timePtr(startedAt)
	inst.CompletedAt = timePtr(completedAt)
	inst.LastActivityAt = inst.LastActivityAt.UTC()
	inst.CreatedAt = inst.CreatedAt.UTC()
	inst.UpdatedAt = inst.UpdatedAt.UTC()
	return &inst, nil
}

var _ port.InstanceRepository = (*InstanceRepository)(nil)
