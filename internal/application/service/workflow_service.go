package service

import (
	"context"
	"fmt"

	"github.com/garyjia/repair-center/internal/application/port"
	"github.com/garyjia/repair-center/internal/application/workflow"
	"github.com/garyjia/repair-center/internal/domain/entity"
	domainwf "github.com/garyjia/repair-center/internal/domain/workflow"
)

// WorkflowService is the entry point for repair lifecycle operations
type WorkflowService interface {
	Receive(ctx context.Context, in entity.ReceiveInput, actor entity.Actor) (*Outcome, error)

	// Transition applies any action. Approval actions are routed through the approval sub-workflow.
	Transition(ctx context.Context, cmd workflow.Command) (*Outcome, error)

	GetInstance(ctx context.Context, id int64, actor entity.Actor) (*entity.WorkflowInstance, error)
	ListInstances(ctx context.Context, filter entity.InstanceFilter, actor entity.Actor) ([]*entity.WorkflowInstance, error)

	// GetLog returns the instance's transition log, oldest first
	GetLog(ctx context.Context, id int64, actor entity.Actor) ([]*entity.TransitionLogEntry, error)
}

type workflowServiceImpl struct {
	engine       workflow.WorkflowEngine
	approvals    ApprovalService
	instanceRepo port.InstanceRepository
	logRepo      port.TransitionLogRepository
	logger       Logger
}

// NewWorkflowService creates a new WorkflowService
func NewWorkflowService(
	engine workflow.WorkflowEngine,
	approvals ApprovalService,
	instanceRepo port.InstanceRepository,
	logRepo port.TransitionLogRepository,
	logger Logger,
) WorkflowService {
	return &workflowServiceImpl{
		engine:       engine,
		approvals:    approvals,
		instanceRepo: instanceRepo,
		logRepo:      logRepo,
		logger:       logger,
	}
}

func (s *workflowServiceImpl) Receive(ctx context.Context, in entity.ReceiveInput, actor entity.Actor) (*Outcome, error) {
	res, err := s.engine.Receive(ctx, in, actor)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Machine received",
		"instance_id", res.Instance.ID,
		"serial", res.Instance.MachineSerial,
		"origin_branch_id", res.Instance.OriginBranchID,
	)
	return &Outcome{Instance: res.Instance, Entry: res.Entry}, nil
}

func (s *workflowServiceImpl) Transition(ctx context.Context, cmd workflow.Command) (*Outcome, error) {
	switch cmd.Action {
	case domainwf.ActionRequestApproval:
		return s.approvals.RequestApproval(ctx, cmd.InstanceID, cmd.Payload.Parts, cmd.Payload.Notes, cmd.Actor, cmd.ExpectedVersion)
	case domainwf.ActionApprove:
		return s.approvals.ResolvePending(ctx, cmd.InstanceID, entity.DecisionApprove, cmd.Payload.Reason, cmd.Actor, cmd.ExpectedVersion)
	case domainwf.ActionReject:
		return s.approvals.ResolvePending(ctx, cmd.InstanceID, entity.DecisionReject, cmd.Payload.Reason, cmd.Actor, cmd.ExpectedVersion)
	}

	res, err := s.engine.Transition(ctx, cmd, nil)
	if err != nil {
		return nil, err
	}
	return &Outcome{Instance: res.Instance, Entry: res.Entry}, nil
}

func (s *workflowServiceImpl) GetInstance(ctx context.Context, id int64, actor entity.Actor) (*entity.WorkflowInstance, error) {
	inst, err := s.instanceRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get instance", "error", err, "id", id)
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("instance %d: %w", id, domainwf.ErrNotFound)
	}
	if err := checkVisible(actor, inst.BelongsTo(actor.BranchID), "instance", id); err != nil {
		return nil, err
	}
	return inst, nil
}

func (s *workflowServiceImpl) ListInstances(ctx context.Context, filter entity.InstanceFilter, actor entity.Actor) ([]*entity.WorkflowInstance, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", domainwf.ErrValidation, filter.Status)
	}
	filter.BranchID = branchScope(actor, filter.BranchID)

	instances, err := s.instanceRepo.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list instances", "error", err)
		return nil, err
	}
	return instances, nil
}

func (s *workflowServiceImpl) GetLog(ctx context.Context, id int64, actor entity.Actor) ([]*entity.TransitionLogEntry, error) {
	if _, err := s.GetInstance(ctx, id, actor); err != nil {
		return nil, err
	}
	entries, err := s.logRepo.GetByInstanceID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get transition log", "error", err, "id", id)
		return nil, err
	}
	return entries, nil
}
