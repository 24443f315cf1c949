package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/repair-center/internal/application/dispatcher"
	"github.com/garyjia/repair-center/internal/application/port"
	"github.com/garyjia/repair-center/internal/domain/entity"
	"github.com/garyjia/repair-center/internal/domain/event"
	domainwf "github.com/garyjia/repair-center/internal/domain/workflow"
	"github.com/garyjia/repair-center/pkg/utils"
)

const maxDetailsLength = 2000

// engineImpl is the concrete implementation of WorkflowEngine
type engineImpl struct {
	instanceRepo port.InstanceRepository
	logRepo      port.TransitionLogRepository
	txManager    port.TransactionManager
	locker       *InstanceLocker
	dispatcher   dispatcher.Dispatcher
	logger       dispatcher.Logger
	now          func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithLocker shares a keyed locker with other writers of the same instances
func WithLocker(l *InstanceLocker) EngineOption {
	return func(e *engineImpl) {
		e.locker = l
	}
}

// WithLogger sets a logger for rejected and committed transitions
func WithLogger(l dispatcher.Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// WithClock overrides the time source. Times are always stored in UTC.
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	instanceRepo port.InstanceRepository,
	logRepo port.TransitionLogRepository,
	txManager port.TransactionManager,
	opts ...EngineOption,
) WorkflowEngine {
	e := &engineImpl{
		instanceRepo: instanceRepo,
		logRepo:      logRepo,
		txManager:    txManager,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}
	if e.locker == nil {
		e.locker = NewInstanceLocker()
	}

	return e
}

// Receive opens a new instance in RECEIVED_AT_CENTER
func (e *engineImpl) Receive(ctx context.Context, in entity.ReceiveInput, actor entity.Actor) (*Result, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	in.MachineSerial = utils.SanitizeString(in.MachineSerial)
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if !actor.HasRole(centerRoles...) || (!actor.CanSeeAllBranches() && actor.BranchID != in.CenterBranchID) {
		return nil, fmt.Errorf("actor %s cannot receive at center %s: %w", actor.ID, in.CenterBranchID, domainwf.ErrForbidden)
	}

	active, err := e.instanceRepo.GetActiveBySerial(ctx, in.MachineSerial)
	if err != nil {
		return nil, fmt.Errorf("failed to check active instance: %w", err)
	}
	if active != nil {
		return nil, fmt.Errorf("serial %s is open as instance %d: %w", in.MachineSerial, active.ID, domainwf.ErrMachineAlreadyActive)
	}

	now := e.now().UTC()
	inst := &entity.WorkflowInstance{
		MachineSerial:  in.MachineSerial,
		Status:         domainwf.StateReceivedAtCenter,
		OriginBranchID: in.OriginBranchID,
		CenterBranchID: in.CenterBranchID,
		CustomerID:     in.CustomerID,
		LastActivityAt: now,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	entry := &entity.TransitionLogEntry{
		Action:      domainwf.ActionReceive,
		ToStatus:    domainwf.StateReceivedAtCenter,
		Details:     utils.Truncate(utils.SanitizeString(in.Notes), maxDetailsLength),
		PerformedBy: actor.ID,
		PerformedAt: now,
	}

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.instanceRepo.Create(txCtx, inst); err != nil {
			return fmt.Errorf("failed to create instance: %w", err)
		}
		entry.WorkflowInstanceID = inst.ID
		if err := e.logRepo.Append(txCtx, entry); err != nil {
			return fmt.Errorf("failed to append transition log: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, event.TypeWorkflowReceived, inst, entry)
	return &Result{Instance: inst, Entry: entry}, nil
}

// Transition validates and applies a command
func (e *engineImpl) Transition(ctx context.Context, cmd Command, effect Effect) (*Result, error) {
	if err := cmd.Actor.Validate(); err != nil {
		return nil, err
	}
	if !cmd.Action.IsValid() {
		return nil, fmt.Errorf("%w: unknown action %q", domainwf.ErrValidation, cmd.Action)
	}
	params, err := paramsFor(cmd)
	if err != nil {
		return nil, err
	}

	unlock, ok := e.locker.TryLock(cmd.InstanceID)
	if !ok {
		return nil, fmt.Errorf("instance %d is being modified: %w", cmd.InstanceID, domainwf.ErrConcurrentModification)
	}
	defer unlock()

	current, err := e.load(ctx, cmd.InstanceID)
	if err != nil {
		return nil, err
	}
	if err := authorize(cmd.Actor, cmd.Action, current); err != nil {
		return nil, err
	}

	if cmd.ExpectedVersion != nil && *cmd.ExpectedVersion != current.Version {
		return nil, fmt.Errorf("instance %d is at version %d, expected %d: %w",
			current.ID, current.Version, *cmd.ExpectedVersion, domainwf.ErrConcurrentModification)
	}

	if current.Status == domainwf.StateAwaitingApproval {
		switch cmd.Action {
		case domainwf.ActionComplete:
			return nil, fmt.Errorf("instance %d: %w", current.ID, domainwf.ErrApprovalPending)
		case domainwf.ActionRequestApproval:
			return nil, fmt.Errorf("instance %d: %w", current.ID, domainwf.ErrDuplicatePendingApproval)
		}
	}

	machine := BuildRepairMachine(current.Status)
	if err := machine.Fire(ctx, cmd.Action, params); err != nil {
		e.logRejected(cmd, current, err)
		return nil, err
	}

	now := e.now().UTC()
	performedAt := now
	if performedAt.Before(current.LastActivityAt) {
		performedAt = current.LastActivityAt
	}

	next := current.Clone()
	next.Status = machine.State()
	next.LastActivityAt = performedAt
	next.UpdatedAt = now
	applyPayload(next, cmd, now)

	entry := &entity.TransitionLogEntry{
		WorkflowInstanceID: current.ID,
		Action:             cmd.Action,
		FromStatus:         current.Status,
		ToStatus:           next.Status,
		Details:            describe(cmd, params),
		PerformedBy:        cmd.Actor.ID,
		PerformedAt:        performedAt,
	}

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if effect != nil {
			if err := effect(txCtx, next, entry); err != nil {
				return err
			}
		}
		if err := e.instanceRepo.Update(txCtx, next, current.Version); err != nil {
			return fmt.Errorf("failed to update instance %d: %w", current.ID, err)
		}
		entry.Details = utils.Truncate(entry.Details, maxDetailsLength)
		if err := e.logRepo.Append(txCtx, entry); err != nil {
			return fmt.Errorf("failed to append transition log: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.logger != nil {
		e.logger.Info("Workflow transitioned",
			"instance_id", next.ID,
			"action", cmd.Action,
			"from", current.Status,
			"to", next.Status,
			"version", next.Version,
		)
	}
	e.publish(ctx, event.TypeWorkflowTransitioned, next, entry)

	return &Result{Instance: next, Entry: entry}, nil
}

// GetStateMachine returns a state machine positioned at the instance's current status
func (e *engineImpl) GetStateMachine(ctx context.Context, instanceID int64) (domainwf.StateMachine, error) {
	inst, err := e.load(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	return BuildRepairMachine(inst.Status), nil
}

// GetCurrentState returns the current state of an instance
func (e *engineImpl) GetCurrentState(ctx context.Context, instanceID int64) (domainwf.State, error) {
	inst, err := e.load(ctx, instanceID)
	if err != nil {
		return "", err
	}
	return inst.Status, nil
}

func (e *engineImpl) load(ctx context.Context, id int64) (*entity.WorkflowInstance, error) {
	inst, err := e.instanceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch instance: %w", err)
	}
	if inst == nil {
		return nil, fmt.Errorf("instance %d: %w", id, domainwf.ErrNotFound)
	}
	if !inst.Status.IsValid() {
		return nil, fmt.Errorf("instance %d has invalid status %q: %w", id, inst.Status, domainwf.ErrInvalidState)
	}
	return inst, nil
}

var (
	centerRoles   = []entity.Role{entity.RoleCenterManager, entity.RoleTechnician, entity.RoleAdmin}
	approverRoles = []entity.Role{entity.RoleBranchManager, entity.RoleAdmin}
)

// authorize applies branch scoping and the role policy to a command.
// Instances outside the actor's branches are reported as missing.
func authorize(actor entity.Actor, action domainwf.Action, inst *entity.WorkflowInstance) error {
	if actor.CanSeeAllBranches() {
		return nil
	}
	if !inst.BelongsTo(actor.BranchID) {
		return fmt.Errorf("instance %d: %w", inst.ID, domainwf.ErrNotFound)
	}

	roles, branch := centerRoles, inst.CenterBranchID
	if action == domainwf.ActionApprove || action == domainwf.ActionReject {
		roles, branch = approverRoles, inst.OriginBranchID
	}
	if !actor.HasRole(roles...) || actor.BranchID != branch {
		return fmt.Errorf("actor %s cannot %s instance %d: %w", actor.ID, action, inst.ID, domainwf.ErrForbidden)
	}
	return nil
}

func (e *engineImpl) publish(ctx context.Context, t event.Type, inst *entity.WorkflowInstance, entry *entity.TransitionLogEntry) {
	if e.dispatcher == nil {
		return
	}
	evt := event.NewEvent(t, inst.ID, map[string]interface{}{
		"action":           entry.Action.String(),
		"from_status":      entry.FromStatus.String(),
		"to_status":        entry.ToStatus.String(),
		"performed_by":     entry.PerformedBy,
		"origin_branch_id": inst.OriginBranchID,
		"version":          inst.Version,
	})
	e.dispatcher.DispatchAsync(ctx, evt)
}

func (e *engineImpl) logRejected(cmd Command, inst *entity.WorkflowInstance, err error) {
	if e.logger == nil {
		return
	}
	e.logger.Info("Transition rejected",
		"instance_id", inst.ID,
		"action", cmd.Action,
		"status", inst.Status,
		"actor", cmd.Actor.ID,
		"reason", err.Error(),
	)
}

// paramsFor validates the payload required by an action and derives guard params
func paramsFor(cmd Command) (domainwf.Params, error) {
	var p domainwf.Params

	switch cmd.Action {
	case domainwf.ActionAssign:
		if strings.TrimSpace(cmd.Payload.TechnicianID) == "" {
			return p, fmt.Errorf("%w: technician_id is required to assign", domainwf.ErrValidation)
		}
	case domainwf.ActionRequestApproval:
		if len(cmd.Payload.Parts) > 0 {
			if err := cmd.Payload.Parts.Validate(); err != nil {
				return p, err
			}
		}
		p.RequestedCost = cmd.Payload.Parts.Total()
	case domainwf.ActionComplete:
		if !cmd.Payload.Resolution.IsValid() {
			return p, fmt.Errorf("%w: resolution must be one of REPAIRED, SCRAPPED, RETURNED_AS_IS", domainwf.ErrValidation)
		}
		p.Resolution = cmd.Payload.Resolution
	}

	return p, nil
}

// applyPayload records the per-action instance fields
func applyPayload(inst *entity.WorkflowInstance, cmd Command, now time.Time) {
	switch cmd.Action {
	case domainwf.ActionAssign:
		inst.AssignedTechnicianID = strings.TrimSpace(cmd.Payload.TechnicianID)
		inst.AssignedAt = &now
	case domainwf.ActionInspect:
		if inst.StartedAt == nil {
			inst.StartedAt = &now
		}
	case domainwf.ActionComplete:
		inst.Resolution = cmd.Payload.Resolution
		inst.CompletedAt = &now
	}
}

// describe renders the human readable details of a log entry
func describe(cmd Command, params domainwf.Params) string {
	var parts []string

	switch cmd.Action {
	case domainwf.ActionAssign:
		parts = append(parts, "technician: "+strings.TrimSpace(cmd.Payload.TechnicianID))
	case domainwf.ActionRequestApproval:
		parts = append(parts, fmt.Sprintf("requested cost: %d (%d parts)", params.RequestedCost, len(cmd.Payload.Parts)))
	case domainwf.ActionReject:
		if r := utils.SanitizeString(cmd.Payload.Reason); r != "" {
			parts = append(parts, "reason: "+r)
		}
	case domainwf.ActionComplete:
		parts = append(parts, "resolution: "+string(params.Resolution))
	}

	if notes := utils.SanitizeString(cmd.Payload.Notes); notes != "" {
		parts = append(parts, notes)
	}
	return strings.Join(parts, "; ")
}
