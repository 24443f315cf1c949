package service

import (
	"context"
	"errors"
	"testing"

	"github.com/garyjia/repair-center/internal/application/workflow"
	"github.com/garyjia/repair-center/internal/domain/entity"
	domainwf "github.com/garyjia/repair-center/internal/domain/workflow"
)

var repairParts = entity.Parts{
	{Name: "bearing", Quantity: 2, UnitCost: 50},
	{Name: "belt", Quantity: 1, UnitCost: 30},
}

func TestApprovalService_ApproveCreatesPayment(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	inst := h.inspected("SN-1")

	out, err := h.approval.RequestApproval(ctx, inst.ID, repairParts, "worn drive", technician, nil)
	if err != nil {
		t.Fatalf("RequestApproval() error: %v", err)
	}
	if out.Instance.Status != domainwf.StateAwaitingApproval {
		t.Errorf("status = %s, want AWAITING_APPROVAL", out.Instance.Status)
	}
	if out.Approval == nil || out.Approval.TotalRequestedCost != 130 || !out.Approval.IsPending() {
		t.Fatalf("approval = %+v", out.Approval)
	}

	resolved, err := h.approval.Resolve(ctx, out.Approval.ID, entity.DecisionApprove, "", branchMgr)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if resolved.Instance.Status != domainwf.StateRepairApproved {
		t.Errorf("status = %s, want REPAIR_APPROVED", resolved.Instance.Status)
	}
	if resolved.Instance.TotalCost != 130 {
		t.Errorf("total cost = %d, want 130", resolved.Instance.TotalCost)
	}
	if resolved.Approval.Status != entity.ApprovalStatusApproved || resolved.Approval.RespondedBy != "bm-1" {
		t.Errorf("approval = %+v", resolved.Approval)
	}
	if resolved.Payment == nil || resolved.Payment.Amount != 130 || resolved.Payment.Status != entity.PaymentStatusPending {
		t.Fatalf("payment = %+v", resolved.Payment)
	}
	if resolved.Payment.ApprovalID != out.Approval.ID || len(resolved.Payment.PartsDetails) != 2 {
		t.Errorf("payment not linked to approval: %+v", resolved.Payment)
	}

	// Second resolution of the same request
	_, err = h.approval.Resolve(ctx, out.Approval.ID, entity.DecisionReject, "late", branchMgr)
	if !errors.Is(err, domainwf.ErrAlreadyResolved) {
		t.Errorf("second Resolve() = %v, want ErrAlreadyResolved", err)
	}
}

func TestApprovalService_RejectSetsStickyFlag(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	inst := h.inspected("SN-2")

	out, err := h.approval.RequestApproval(ctx, inst.ID, repairParts, "", technician, nil)
	if err != nil {
		t.Fatalf("RequestApproval() error: %v", err)
	}
	rejected, err := h.approval.Resolve(ctx, out.Approval.ID, entity.DecisionReject, "too expensive", branchMgr)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if rejected.Instance.Status != domainwf.StateRejected || !rejected.Instance.RejectionFlag {
		t.Errorf("instance = %+v", rejected.Instance)
	}
	if rejected.Approval.RejectionReason != "too expensive" || rejected.Payment != nil {
		t.Errorf("rejection outcome = %+v", rejected)
	}

	// A new, cheaper request after rejection is allowed
	again, err := h.approval.RequestApproval(ctx, inst.ID, entity.Parts{{Name: "belt", Quantity: 1, UnitCost: 30}}, "", technician, nil)
	if err != nil {
		t.Fatalf("second RequestApproval() error: %v", err)
	}
	approved, err := h.approval.Resolve(ctx, again.Approval.ID, entity.DecisionApprove, "", admin)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if !approved.Instance.RejectionFlag {
		t.Error("rejection flag must never be cleared")
	}
	if approved.Instance.TotalCost != 30 {
		t.Errorf("total cost = %d, want 30", approved.Instance.TotalCost)
	}
}

func TestApprovalService_ZeroCostSkipsApproval(t *testing.T) {
	h := newHarness()
	inst := h.inspected("SN-3")

	out, err := h.approval.RequestApproval(context.Background(), inst.ID,
		entity.Parts{{Name: "cleaning", Quantity: 1, UnitCost: 0}}, "", technician, nil)
	if err != nil {
		t.Fatalf("RequestApproval() error: %v", err)
	}
	if out.Approval != nil {
		t.Errorf("zero-cost request created approval %+v", out.Approval)
	}
	if out.Instance.Status != domainwf.StateInProgress {
		t.Errorf("status = %s, want IN_PROGRESS", out.Instance.Status)
	}

	done, err := h.workflows.Transition(context.Background(), workflow.Command{
		InstanceID: inst.ID,
		Action:     domainwf.ActionComplete,
		Payload:    workflow.Payload{Resolution: domainwf.ResolutionRepaired},
		Actor:      technician,
	})
	if err != nil || done.Instance.Status != domainwf.StateRepaired {
		t.Fatalf("COMPLETE after zero-cost = %v, %v", done, err)
	}
}

func TestApprovalService_PendingBlocksCompletionAndDuplicates(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	inst := h.inspected("SN-4")

	if _, err := h.approval.RequestApproval(ctx, inst.ID, repairParts, "", technician, nil); err != nil {
		t.Fatalf("RequestApproval() error: %v", err)
	}

	_, err := h.workflows.Transition(ctx, workflow.Command{
		InstanceID: inst.ID,
		Action:     domainwf.ActionComplete,
		Payload:    workflow.Payload{Resolution: domainwf.ResolutionScrapped},
		Actor:      technician,
	})
	if domainwf.KindOf(err) != domainwf.KindApprovalPending {
		t.Errorf("COMPLETE while pending = %v", err)
	}

	_, err = h.approval.RequestApproval(ctx, inst.ID, repairParts, "", technician, nil)
	if domainwf.KindOf(err) != domainwf.KindDuplicatePendingApproval {
		t.Errorf("second request = %v", err)
	}

	pending, _ := h.approval.List(ctx, entity.ApprovalFilter{Status: entity.ApprovalStatusPending}, admin)
	if len(pending) != 1 {
		t.Errorf("pending approvals = %d, want 1", len(pending))
	}
}

func TestApprovalService_InvalidParts(t *testing.T) {
	h := newHarness()
	inst := h.inspected("SN-5")

	_, err := h.approval.RequestApproval(context.Background(), inst.ID,
		entity.Parts{{Name: "", Quantity: 1, UnitCost: 10}}, "", technician, nil)
	if !errors.Is(err, domainwf.ErrValidation) {
		t.Errorf("RequestApproval() with blank part = %v", err)
	}
	stored, _ := h.instances.GetByID(context.Background(), inst.ID)
	if stored.Status != domainwf.StateUnderInspection {
		t.Errorf("status changed to %s", stored.Status)
	}
}

func TestApprovalService_ResolveAuthorization(t *testing.T) {
	originTech := entity.Actor{ID: "tech-9", Role: entity.RoleTechnician, BranchID: "branch-1"}
	foreignTech := entity.Actor{ID: "tech-2", Role: entity.RoleTechnician, BranchID: "center-2"}
	tests := []struct {
		name    string
		actor   entity.Actor
		wantErr error
	}{
		{"origin branch manager", branchMgr, nil},
		{"admin", admin, nil},
		{"other branch manager", otherMgr, domainwf.ErrNotFound},
		{"foreign technician", foreignTech, domainwf.ErrNotFound},
		{"center technician", technician, domainwf.ErrForbidden},
		{"center manager", centerMgr, domainwf.ErrForbidden},
		{"technician on origin branch", originTech, domainwf.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, viaTransition := range []bool{false, true} {
				h := newHarness()
				ctx := context.Background()
				inst := h.inspected("SN-6")
				out, err := h.approval.RequestApproval(ctx, inst.ID, repairParts, "", technician, nil)
				if err != nil {
					t.Fatalf("RequestApproval() error: %v", err)
				}

				if viaTransition {
					_, err = h.workflows.Transition(ctx, workflow.Command{InstanceID: inst.ID, Action: domainwf.ActionApprove, Actor: tt.actor})
				} else {
					_, err = h.approval.Resolve(ctx, out.Approval.ID, entity.DecisionApprove, "", tt.actor)
				}
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("approve (via transition %v) error = %v, want %v", viaTransition, err, tt.wantErr)
				}
				if tt.wantErr == nil {
					continue
				}
				stored, _ := h.approvals.GetByID(ctx, out.Approval.ID)
				if !stored.IsPending() || len(h.payments.payments) != 0 {
					t.Errorf("rejected approve left approval %s with %d payments", stored.Status, len(h.payments.payments))
				}
				current, _ := h.instances.GetByID(ctx, inst.ID)
				if current.Status != domainwf.StateAwaitingApproval {
					t.Errorf("status = %s, want AWAITING_APPROVAL", current.Status)
				}
			}
		})
	}
}

func TestApprovalService_ResolvedHiddenFromOtherBranch(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	inst := h.inspected("SN-6")
	out, _ := h.approval.RequestApproval(ctx, inst.ID, repairParts, "", technician, nil)
	if _, err := h.approval.Resolve(ctx, out.Approval.ID, entity.DecisionApprove, "", branchMgr); err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	if _, err := h.approval.Resolve(ctx, out.Approval.ID, entity.DecisionReject, "", otherMgr); !errors.Is(err, domainwf.ErrNotFound) {
		t.Errorf("Resolve() of resolved approval by other branch = %v, want ErrNotFound", err)
	}
	if _, err := h.approval.Get(ctx, out.Approval.ID, otherMgr); !errors.Is(err, domainwf.ErrNotFound) {
		t.Errorf("Get() by other branch = %v, want ErrNotFound", err)
	}
	_, err := h.workflows.Transition(ctx, workflow.Command{InstanceID: inst.ID, Action: domainwf.ActionReject, Actor: otherMgr})
	if !errors.Is(err, domainwf.ErrNotFound) {
		t.Errorf("REJECT without pending request by other branch = %v, want ErrNotFound", err)
	}
}

func TestWorkflowService_RoutesApprovalActions(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	inst := h.inspected("SN-7")

	requested, err := h.workflows.Transition(ctx, workflow.Command{
		InstanceID: inst.ID,
		Action:     domainwf.ActionRequestApproval,
		Payload:    workflow.Payload{Parts: repairParts},
		Actor:      technician,
	})
	if err != nil || requested.Approval == nil {
		t.Fatalf("REQUEST_APPROVAL = %+v, %v", requested, err)
	}

	approved, err := h.workflows.Transition(ctx, workflow.Command{
		InstanceID: inst.ID,
		Action:     domainwf.ActionApprove,
		Actor:      branchMgr,
	})
	if err != nil {
		t.Fatalf("APPROVE error: %v", err)
	}
	if approved.Payment == nil || approved.Instance.Status != domainwf.StateRepairApproved {
		t.Errorf("APPROVE outcome = %+v", approved)
	}

	// No pending request left: APPROVE is an illegal transition
	_, err = h.workflows.Transition(ctx, workflow.Command{InstanceID: inst.ID, Action: domainwf.ActionApprove, Actor: branchMgr})
	if !errors.Is(err, domainwf.ErrInvalidTransition) {
		t.Errorf("APPROVE without pending request = %v", err)
	}

	entries, err := h.workflows.GetLog(ctx, inst.ID, admin)
	if err != nil {
		t.Fatalf("GetLog() error: %v", err)
	}
	actions := make([]domainwf.Action, len(entries))
	for i, e := range entries {
		actions[i] = e.Action
	}
	want := []domainwf.Action{
		domainwf.ActionReceive, domainwf.ActionAssign, domainwf.ActionInspect,
		domainwf.ActionRequestApproval, domainwf.ActionApprove,
	}
	if len(actions) != len(want) {
		t.Fatalf("log actions = %v, want %v", actions, want)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Errorf("log[%d] = %s, want %s", i, actions[i], want[i])
		}
	}
}

func TestWorkflowService_BranchVisibility(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	inst := h.inspected("SN-8")

	if _, err := h.workflows.GetInstance(ctx, inst.ID, branchMgr); err != nil {
		t.Errorf("origin branch manager cannot see instance: %v", err)
	}
	if _, err := h.workflows.GetInstance(ctx, inst.ID, otherMgr); !errors.Is(err, domainwf.ErrNotFound) {
		t.Errorf("other branch GetInstance() = %v, want ErrNotFound", err)
	}
	list, _ := h.workflows.ListInstances(ctx, entity.InstanceFilter{}, otherMgr)
	if len(list) != 0 {
		t.Errorf("other branch sees %d instances", len(list))
	}
	list, _ = h.workflows.ListInstances(ctx, entity.InstanceFilter{}, admin)
	if len(list) != 1 {
		t.Errorf("admin sees %d instances, want 1", len(list))
	}
}

func TestWorkflowService_CenterScoping(t *testing.T) {
	foreignTech := entity.Actor{ID: "tech-2", Role: entity.RoleTechnician, BranchID: "center-2"}
	h := newHarness()
	ctx := context.Background()
	inst := h.inspected("SN-9")

	_, err := h.workflows.Transition(ctx, workflow.Command{
		InstanceID: inst.ID,
		Action:     domainwf.ActionComplete,
		Payload:    workflow.Payload{Resolution: domainwf.ResolutionScrapped},
		Actor:      foreignTech,
	})
	if !errors.Is(err, domainwf.ErrNotFound) {
		t.Errorf("COMPLETE by other center = %v, want ErrNotFound", err)
	}
	stored, _ := h.instances.GetByID(ctx, inst.ID)
	if stored.Status != domainwf.StateUnderInspection {
		t.Errorf("status changed to %s", stored.Status)
	}

	receivers := []struct {
		name  string
		actor entity.Actor
	}{
		{"other center", entity.Actor{ID: "cm-2", Role: entity.RoleCenterManager, BranchID: "center-2"}},
		{"origin branch manager", branchMgr},
	}
	for _, r := range receivers {
		_, err := h.workflows.Receive(ctx, entity.ReceiveInput{
			MachineSerial: "SN-10", OriginBranchID: "branch-1", CenterBranchID: "center-1",
		}, r.actor)
		if !errors.Is(err, domainwf.ErrForbidden) {
			t.Errorf("Receive() by %s = %v, want ErrForbidden", r.name, err)
		}
	}
}
