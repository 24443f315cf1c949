package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/repair-center/internal/application/dispatcher"
	"github.com/garyjia/repair-center/internal/application/port"
	"github.com/garyjia/repair-center/internal/application/workflow"
	"github.com/garyjia/repair-center/internal/domain/entity"
	"github.com/garyjia/repair-center/internal/domain/event"
	domainwf "github.com/garyjia/repair-center/internal/domain/workflow"
	"github.com/garyjia/repair-center/pkg/utils"
)

// ApprovalService gates paid repairs behind origin-branch sign-off
type ApprovalService interface {
	// RequestApproval drives REQUEST_APPROVAL. A positive total opens a PENDING request;
	// a zero total skips approval and the returned Outcome has no Approval.
	RequestApproval(ctx context.Context, instanceID int64, parts entity.Parts, notes string, actor entity.Actor, expectedVersion *int64) (*Outcome, error)

	// Resolve approves or rejects a pending request
	Resolve(ctx context.Context, approvalID int64, decision entity.Decision, reason string, actor entity.Actor) (*Outcome, error)

	// ResolvePending resolves the single pending request of an instance
	ResolvePending(ctx context.Context, instanceID int64, decision entity.Decision, reason string, actor entity.Actor, expectedVersion *int64) (*Outcome, error)

	Get(ctx context.Context, id int64, actor entity.Actor) (*entity.ApprovalRequest, error)
	List(ctx context.Context, filter entity.ApprovalFilter, actor entity.Actor) ([]*entity.ApprovalRequest, error)
}

type approvalServiceImpl struct {
	engine       workflow.WorkflowEngine
	instanceRepo port.InstanceRepository
	approvalRepo port.ApprovalRepository
	ledger       LedgerService
	dispatcher   dispatcher.Dispatcher
	logger       Logger
	now          func() time.Time
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	engine workflow.WorkflowEngine,
	instanceRepo port.InstanceRepository,
	approvalRepo port.ApprovalRepository,
	ledger LedgerService,
	d dispatcher.Dispatcher,
	logger Logger,
) ApprovalService {
	return &approvalServiceImpl{
		engine:       engine,
		instanceRepo: instanceRepo,
		approvalRepo: approvalRepo,
		ledger:       ledger,
		dispatcher:   d,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *approvalServiceImpl) RequestApproval(ctx context.Context, instanceID int64, parts entity.Parts, notes string, actor entity.Actor, expectedVersion *int64) (*Outcome, error) {
	if len(parts) > 0 {
		if err := parts.Validate(); err != nil {
			return nil, err
		}
	}

	var created *entity.ApprovalRequest
	effect := func(txCtx context.Context, inst *entity.WorkflowInstance, entry *entity.TransitionLogEntry) error {
		if inst.Status != domainwf.StateAwaitingApproval {
			return nil
		}
		req := entity.NewApprovalRequest(inst.ID, parts, actor.ID, s.now().UTC())
		if err := s.approvalRepo.Create(txCtx, req); err != nil {
			return fmt.Errorf("failed to create approval request: %w", err)
		}
		entry.Details = fmt.Sprintf("%s; approval #%d", entry.Details, req.ID)
		created = req
		return nil
	}

	res, err := s.engine.Transition(ctx, workflow.Command{
		InstanceID:      instanceID,
		Action:          domainwf.ActionRequestApproval,
		Payload:         workflow.Payload{Parts: parts, Notes: notes},
		Actor:           actor,
		ExpectedVersion: expectedVersion,
	}, effect)
	if err != nil {
		return nil, err
	}

	if created != nil {
		s.logger.Info("Approval requested",
			"instance_id", instanceID,
			"approval_id", created.ID,
			"total", created.TotalRequestedCost,
		)
		s.publish(ctx, event.TypeApprovalRequested, res.Instance, created)
	}

	return &Outcome{Instance: res.Instance, Entry: res.Entry, Approval: created}, nil
}

func (s *approvalServiceImpl) Resolve(ctx context.Context, approvalID int64, decision entity.Decision, reason string, actor entity.Actor) (*Outcome, error) {
	req, err := s.loadApproval(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, req, decision, reason, actor, nil)
}

func (s *approvalServiceImpl) ResolvePending(ctx context.Context, instanceID int64, decision entity.Decision, reason string, actor entity.Actor, expectedVersion *int64) (*Outcome, error) {
	if !decision.IsValid() {
		return nil, fmt.Errorf("%w: decision must be APPROVE or REJECT", domainwf.ErrValidation)
	}
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	inst, err := s.approverInstance(ctx, instanceID, actor)
	if err != nil {
		return nil, err
	}

	req, err := s.approvalRepo.GetPendingByInstanceID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending approval: %w", err)
	}
	if req == nil {
		// No pending request: report the illegal transition from the current status
		action := domainwf.ActionApprove
		if decision == entity.DecisionReject {
			action = domainwf.ActionReject
		}
		return nil, &domainwf.TransitionError{From: inst.Status, Action: action}
	}
	return s.resolve(ctx, req, decision, reason, actor, expectedVersion)
}

// approverInstance loads the instance behind an approval and checks the
// actor may decide on it. Instances outside the actor's branches are
// reported as missing.
func (s *approvalServiceImpl) approverInstance(ctx context.Context, instanceID int64, actor entity.Actor) (*entity.WorkflowInstance, error) {
	inst, err := s.instanceRepo.GetByID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch instance: %w", err)
	}
	if inst == nil {
		return nil, fmt.Errorf("instance %d: %w", instanceID, domainwf.ErrNotFound)
	}
	if err := checkVisible(actor, inst.BelongsTo(actor.BranchID), "instance", instanceID); err != nil {
		return nil, err
	}
	if !actor.HasRole(entity.RoleBranchManager, entity.RoleAdmin) {
		return nil, fmt.Errorf("role %s cannot decide approvals: %w", actor.Role, domainwf.ErrForbidden)
	}
	if !actor.CanSeeAllBranches() && inst.OriginBranchID != actor.BranchID {
		return nil, fmt.Errorf("instance %d belongs to branch %s: %w", inst.ID, inst.OriginBranchID, domainwf.ErrForbidden)
	}
	return inst, nil
}

func (s *approvalServiceImpl) resolve(ctx context.Context, req *entity.ApprovalRequest, decision entity.Decision, reason string, actor entity.Actor, expectedVersion *int64) (*Outcome, error) {
	if !decision.IsValid() {
		return nil, fmt.Errorf("%w: decision must be APPROVE or REJECT", domainwf.ErrValidation)
	}
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.approverInstance(ctx, req.AssignmentID, actor); err != nil {
		return nil, err
	}
	if !req.IsPending() {
		return nil, fmt.Errorf("approval %d is %s: %w", req.ID, req.Status, domainwf.ErrAlreadyResolved)
	}
	if err := req.CheckTotal(); err != nil {
		return nil, err
	}

	reason = utils.SanitizeString(reason)
	action := domainwf.ActionApprove
	if decision == entity.DecisionReject {
		action = domainwf.ActionReject
	}

	resolved := *req
	var payment *entity.PendingPayment
	effect := func(txCtx context.Context, inst *entity.WorkflowInstance, entry *entity.TransitionLogEntry) error {
		respondedAt := s.now().UTC()
		resolved.RespondedBy = actor.ID
		resolved.RespondedAt = &respondedAt

		if decision == entity.DecisionApprove {
			resolved.Status = entity.ApprovalStatusApproved
		} else {
			resolved.Status = entity.ApprovalStatusRejected
			resolved.RejectionReason = reason
		}
		if err := s.approvalRepo.Resolve(txCtx, &resolved); err != nil {
			return err
		}

		if decision == entity.DecisionApprove {
			inst.TotalCost += resolved.TotalRequestedCost
			p, err := s.ledger.CreateForApproval(txCtx, inst, &resolved)
			if err != nil {
				return err
			}
			payment = p
			entry.Details = fmt.Sprintf("approval #%d approved, payment #%d for %d", resolved.ID, p.ID, p.Amount)
		} else {
			inst.RejectionFlag = true
			entry.Details = fmt.Sprintf("approval #%d rejected", resolved.ID)
			if reason != "" {
				entry.Details += ": " + reason
			}
		}
		return nil
	}

	res, err := s.engine.Transition(ctx, workflow.Command{
		InstanceID:      req.AssignmentID,
		Action:          action,
		Payload:         workflow.Payload{Reason: reason},
		Actor:           actor,
		ExpectedVersion: expectedVersion,
	}, effect)
	if err != nil {
		if errors.Is(err, domainwf.ErrInvalidTransition) {
			// Lost a race with another resolver
			if latest, lerr := s.approvalRepo.GetByID(ctx, req.ID); lerr == nil && latest != nil && !latest.IsPending() {
				return nil, fmt.Errorf("approval %d is %s: %w", req.ID, latest.Status, domainwf.ErrAlreadyResolved)
			}
		}
		return nil, err
	}

	s.logger.Info("Approval resolved",
		"approval_id", resolved.ID,
		"decision", string(decision),
		"actor", actor.ID,
	)
	s.publish(ctx, event.TypeApprovalResolved, res.Instance, &resolved)
	if payment != nil && s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypePaymentCreated, res.Instance.ID, map[string]interface{}{
			"payment_id":       payment.ID,
			"approval_id":      payment.ApprovalID,
			"amount":           payment.Amount,
			"origin_branch_id": payment.OriginBranchID,
		}))
	}

	return &Outcome{Instance: res.Instance, Entry: res.Entry, Approval: &resolved, Payment: payment}, nil
}

func (s *approvalServiceImpl) Get(ctx context.Context, id int64, actor entity.Actor) (*entity.ApprovalRequest, error) {
	req, err := s.loadApproval(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanSeeAllBranches() {
		inst, err := s.instanceRepo.GetByID(ctx, req.AssignmentID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch instance: %w", err)
		}
		if err := checkVisible(actor, inst != nil && inst.BelongsTo(actor.BranchID), "approval", id); err != nil {
			return nil, err
		}
	}
	return req, nil
}

func (s *approvalServiceImpl) List(ctx context.Context, filter entity.ApprovalFilter, actor entity.Actor) ([]*entity.ApprovalRequest, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown approval status %q", domainwf.ErrValidation, filter.Status)
	}
	filter.BranchID = branchScope(actor, filter.BranchID)

	reqs, err := s.approvalRepo.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list approvals", "error", err)
		return nil, err
	}
	return reqs, nil
}

func (s *approvalServiceImpl) loadApproval(ctx context.Context, id int64) (*entity.ApprovalRequest, error) {
	req, err := s.approvalRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch approval: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("approval %d: %w", id, domainwf.ErrNotFound)
	}
	return req, nil
}

func (s *approvalServiceImpl) publish(ctx context.Context, t event.Type, inst *entity.WorkflowInstance, req *entity.ApprovalRequest) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.DispatchAsync(ctx, event.NewEvent(t, inst.ID, map[string]interface{}{
		"approval_id":      req.ID,
		"status":           string(req.Status),
		"total":            req.TotalRequestedCost,
		"origin_branch_id": inst.OriginBranchID,
	}))
}
