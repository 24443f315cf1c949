package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/repair-center/internal/application/port"
	"github.com/garyjia/repair-center/internal/domain/entity"
	"github.com/garyjia/repair-center/internal/domain/workflow"
	"github.com/garyjia/repair-center/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// TransitionLogRepository implements port.TransitionLogRepository.
// The table rejects UPDATE and DELETE through triggers.
type TransitionLogRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTransitionLogRepository creates a new transition log repository
func NewTransitionLogRepository(db *sql.DB, logger *zap.Logger) *TransitionLogRepository {
	return &TransitionLogRepository{
		db:     db,
		logger: logger,
	}
}

// Append records one transition
func (r *TransitionLogRepository) Append(ctx context.Context, entry *entity.TransitionLogEntry) error {
	query := `
		INSERT INTO transition_log (
			workflow_instance_id, action, from_status, to_status,
			details, performed_by, performed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		entry.WorkflowInstanceID,
		string(entry.Action),
		nullString(string(entry.FromStatus)),
		string(entry.ToStatus),
		entry.Details,
		entry.PerformedBy,
		utc(entry.PerformedAt),
	)
	if err != nil {
		r.logger.Error("Failed to append transition log",
			zap.Int64("instance_id", entry.WorkflowInstanceID),
			zap.String("action", string(entry.Action)),
			zap.Error(err))
		return fmt.Errorf("failed to append transition log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	entry.ID = id
	return nil
}

// GetByInstanceID returns the history of an instance in order
func (r *TransitionLogRepository) GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.TransitionLogEntry, error) {
	query := `
		SELECT id, workflow_instance_id, action, from_status, to_status,
			details, performed_by, performed_at
		FROM transition_log
		WHERE workflow_instance_id = ?
		ORDER BY performed_at ASC, id ASC
	`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, instanceID)
	if err != nil {
		r.logger.Error("Failed to query transition log",
			zap.Int64("instance_id", instanceID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to query transition log: %w", err)
	}
	defer rows.Close()

	var entries []*entity.TransitionLogEntry
	for rows.Next() {
		var (
			entry      entity.TransitionLogEntry
			action, to string
			from       sql.NullString
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.WorkflowInstanceID,
			&action,
			&from,
			&to,
			&entry.Details,
			&entry.PerformedBy,
			&entry.PerformedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transition log: %w", err)
		}
		entry.Action = workflow.Action(action)
		entry.FromStatus = workflow.State(from.String)
		entry.ToStatus = workflow.State(to)
		entry.PerformedAt = entry.PerformedAt.UTC()
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

var _ port.TransitionLogRepository = (*TransitionLogRepository)(nil)
