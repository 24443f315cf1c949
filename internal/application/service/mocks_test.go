package service

import (
	"context"
	"sync"
	"time"

	"github.com/garyjia/repair-center/internal/application/workflow"
	"github.com/garyjia/repair-center/internal/domain/entity"
	domainwf "github.com/garyjia/repair-center/internal/domain/workflow"
)

// Mock implementations

type mockInstanceRepo struct {
	mu        sync.Mutex
	instances map[int64]*entity.WorkflowInstance
	nextID    int64
}

func (m *mockInstanceRepo) Create(ctx context.Context, inst *entity.WorkflowInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	inst.ID = m.nextID
	m.instances[inst.ID] = inst.Clone()
	return nil
}

func (m *mockInstanceRepo) GetByID(ctx context.Context, id int64) (*entity.WorkflowInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inst, ok := m.instances[id]; ok {
		return inst.Clone(), nil
	}
	return nil, nil
}

func (m *mockInstanceRepo) GetActiveBySerial(ctx context.Context, serial string) (*entity.WorkflowInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inst := range m.instances {
		if inst.MachineSerial == serial && inst.Status != domainwf.StateReturned {
			return inst.Clone(), nil
		}
	}
	return nil, nil
}

func (m *mockInstanceRepo) Update(ctx context.Context, inst *entity.WorkflowInstance, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.instances[inst.ID]
	if !ok || stored.Version != expectedVersion {
		return domainwf.ErrConcurrentModification
	}
	inst.Version = expectedVersion + 1
	m.instances[inst.ID] = inst.Clone()
	return nil
}

func (m *mockInstanceRepo) List(ctx context.Context, filter entity.InstanceFilter) ([]*entity.WorkflowInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.WorkflowInstance
	for _, inst := range m.instances {
		if filter.BranchID != "" && !inst.BelongsTo(filter.BranchID) {
			continue
		}
		out = append(out, inst.Clone())
	}
	return out, nil
}

type mockLogRepo struct {
	mu      sync.Mutex
	entries []*entity.TransitionLogEntry
}

func (m *mockLogRepo) Append(ctx context.Context, entry *entity.TransitionLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockLogRepo) GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.TransitionLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.TransitionLogEntry
	for _, e := range m.entries {
		if e.WorkflowInstanceID == instanceID {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockApprovalRepo struct {
	mu       sync.Mutex
	requests map[int64]*entity.ApprovalRequest
	nextID   int64
}

func (m *mockApprovalRepo) Create(ctx context.Context, req *entity.ApprovalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.AssignmentID == req.AssignmentID && r.IsPending() {
			return domainwf.ErrDuplicatePendingApproval
		}
	}
	m.nextID++
	req.ID = m.nextID
	c := *req
	m.requests[req.ID] = &c
	return nil
}

func (m *mockApprovalRepo) GetByID(ctx context.Context, id int64) (*entity.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.requests[id]; ok {
		c := *r
		return &c, nil
	}
	return nil, nil
}

func (m *mockApprovalRepo) GetPendingByInstanceID(ctx context.Context, instanceID int64) (*entity.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.AssignmentID == instanceID && r.IsPending() {
			c := *r
			return &c, nil
		}
	}
	return nil, nil
}

func (m *mockApprovalRepo) Resolve(ctx context.Context, req *entity.ApprovalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.requests[req.ID]
	if !ok || !stored.IsPending() {
		return domainwf.ErrAlreadyResolved
	}
	c := *req
	m.requests[req.ID] = &c
	return nil
}

func (m *mockApprovalRepo) List(ctx context.Context, filter entity.ApprovalFilter) ([]*entity.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.ApprovalRequest
	for _, r := range m.requests {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		c := *r
		out = append(out, &c)
	}
	return out, nil
}

type mockPaymentRepo struct {
	mu       sync.Mutex
	payments map[int64]*entity.PendingPayment
	nextID   int64
	lists    int
}

func (m *mockPaymentRepo) Create(ctx context.Context, p *entity.PendingPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	c := *p
	m.payments[p.ID] = &c
	return nil
}

func (m *mockPaymentRepo) GetByID(ctx context.Context, id int64) (*entity.PendingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payments[id]; ok {
		c := *p
		return &c, nil
	}
	return nil, nil
}

func (m *mockPaymentRepo) GetByApprovalID(ctx context.Context, approvalID int64) (*entity.PendingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.ApprovalID == approvalID {
			c := *p
			return &c, nil
		}
	}
	return nil, nil
}

func (m *mockPaymentRepo) GetPaidByReceipt(ctx context.Context, receipt string) (*entity.PendingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.IsPaid() && p.ReceiptNumber == receipt {
			c := *p
			return &c, nil
		}
	}
	return nil, nil
}

func (m *mockPaymentRepo) MarkPaid(ctx context.Context, id int64, receipt string, place entity.PaymentPlace, paidBy string, paidAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.IsPaid() {
		return domainwf.ErrAlreadySettled
	}
	for _, other := range m.payments {
		if other.IsPaid() && other.ReceiptNumber == receipt {
			return domainwf.ErrReceiptNumberConflict
		}
	}
	p.Status = entity.PaymentStatusPaid
	p.ReceiptNumber = receipt
	p.PaymentPlace = place
	p.PaidBy = paidBy
	p.PaidAt = &paidAt
	return nil
}

func (m *mockPaymentRepo) List(ctx context.Context, filter entity.PaymentFilter) ([]*entity.PendingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	var out []*entity.PendingPayment
	for _, p := range m.payments {
		if filter.BranchID != "" && !p.BelongsTo(filter.BranchID) {
			continue
		}
		if filter.From != nil && p.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !p.CreatedAt.Before(*filter.To) {
			continue
		}
		c := *p
		out = append(out, &c)
	}
	return out, nil
}

type mockTxManager struct{}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

// harness wires the real engine and services over in-memory repositories

type harness struct {
	instances *mockInstanceRepo
	logs      *mockLogRepo
	approvals *mockApprovalRepo
	payments  *mockPaymentRepo
	cache     *SummaryCache

	engine    workflow.WorkflowEngine
	workflows WorkflowService
	approval  ApprovalService
	ledger    LedgerService
}

var (
	centerMgr  = entity.Actor{ID: "cm-1", Role: entity.RoleCenterManager, BranchID: "center-1"}
	technician = entity.Actor{ID: "tech-1", Role: entity.RoleTechnician, BranchID: "center-1"}
	branchMgr  = entity.Actor{ID: "bm-1", Role: entity.RoleBranchManager, BranchID: "branch-1"}
	otherMgr   = entity.Actor{ID: "bm-2", Role: entity.RoleBranchManager, BranchID: "branch-2"}
	admin      = entity.Actor{ID: "root", Role: entity.RoleAdmin}
)

func newHarness() *harness {
	h := &harness{
		instances: &mockInstanceRepo{instances: make(map[int64]*entity.WorkflowInstance)},
		logs:      &mockLogRepo{},
		approvals: &mockApprovalRepo{requests: make(map[int64]*entity.ApprovalRequest)},
		payments:  &mockPaymentRepo{payments: make(map[int64]*entity.PendingPayment)},
		cache:     NewSummaryCache(time.Minute, 16),
	}
	tx := &mockTxManager{}
	locker := workflow.NewInstanceLocker()

	h.engine = workflow.NewEngine(h.instances, h.logs, tx, workflow.WithLocker(locker))
	h.ledger = NewLedgerService(h.payments, tx, locker, &mockLogger{}, WithSummaryCache(h.cache))
	h.approval = NewApprovalService(h.engine, h.instances, h.approvals, h.ledger, nil, &mockLogger{})
	h.workflows = NewWorkflowService(h.engine, h.approval, h.instances, h.logs, &mockLogger{})
	return h
}

// inspected receives a machine from branch-1 and brings it to UNDER_INSPECTION
func (h *harness) inspected(serial string) *entity.WorkflowInstance {
	ctx := context.Background()
	out, err := h.workflows.Receive(ctx, entity.ReceiveInput{
		MachineSerial: serial, OriginBranchID: "branch-1", CenterBranchID: "center-1",
	}, centerMgr)
	if err != nil {
		panic(err)
	}
	id := out.Instance.ID
	if _, err := h.workflows.Transition(ctx, workflow.Command{
		InstanceID: id, Action: domainwf.ActionAssign, Payload: workflow.Payload{TechnicianID: "tech-1"}, Actor: centerMgr,
	}); err != nil {
		panic(err)
	}
	res, err := h.workflows.Transition(ctx, workflow.Command{InstanceID: id, Action: domainwf.ActionInspect, Actor: technician})
	if err != nil {
		panic(err)
	}
	return res.Instance
}
