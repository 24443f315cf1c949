package entity

import (
	"time"

	"github.com/garyjia/repair-center/internal/domain/workflow"
)

// TransitionLogEntry is one immutable row of an instance's history
type TransitionLogEntry struct {
	ID                 int64           `json:"id"`
	WorkflowInstanceID int64           `json:"workflow_instance_id"`
	Action             workflow.Action `json:"action"`
	FromStatus         workflow.State  `json:"from_status,omitempty"`
	ToStatus           workflow.State  `json:"to_status"`
	Details            string          `json:"details,omitempty"`
	PerformedBy        string          `json:"performed_by"`
	PerformedAt        time.Time       `json:"performed_at"`
}
