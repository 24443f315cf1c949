package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/repair-center/internal/application/service"
	"github.com/garyjia/repair-center/internal/application/workflow"
	"github.com/garyjia/repair-center/internal/domain/entity"
	domainwf "github.com/garyjia/repair-center/internal/domain/workflow"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type fakeVerifier map[string]entity.Actor

func (f fakeVerifier) Verify(token string) (entity.Actor, error) {
	actor, ok := f[token]
	if !ok {
		return entity.Actor{}, errors.New("bad token")
	}
	return actor, nil
}

type fakeHealth struct{ err error }

func (f fakeHealth) Health(ctx context.Context) error { return f.err }

type fakeWorkflow struct {
	receive    func(entity.ReceiveInput, entity.Actor) (*service.Outcome, error)
	transition func(workflow.Command) (*service.Outcome, error)
	get        func(int64, entity.Actor) (*entity.WorkflowInstance, error)
	list       func(entity.InstanceFilter, entity.Actor) ([]*entity.WorkflowInstance, error)
}

func (f *fakeWorkflow) Receive(ctx context.Context, in entity.ReceiveInput, actor entity.Actor) (*service.Outcome, error) {
	return f.receive(in, actor)
}

func (f *fakeWorkflow) Transition(ctx context.Context, cmd workflow.Command) (*service.Outcome, error) {
	return f.transition(cmd)
}

func (f *fakeWorkflow) GetInstance(ctx context.Context, id int64, actor entity.Actor) (*entity.WorkflowInstance, error) {
	return f.get(id, actor)
}

func (f *fakeWorkflow) ListInstances(ctx context.Context, filter entity.InstanceFilter, actor entity.Actor) ([]*entity.WorkflowInstance, error) {
	return f.list(filter, actor)
}

func (f *fakeWorkflow) GetLog(ctx context.Context, id int64, actor entity.Actor) ([]*entity.TransitionLogEntry, error) {
	return nil, nil
}

type fakeApprovals struct {
	resolve func(int64, entity.Decision, string, entity.Actor) (*service.Outcome, error)
}

func (f *fakeApprovals) RequestApproval(ctx context.Context, instanceID int64, parts entity.Parts, notes string, actor entity.Actor, expectedVersion *int64) (*service.Outcome, error) {
	return nil, errors.New("not used")
}

func (f *fakeApprovals) Resolve(ctx context.Context, approvalID int64, decision entity.Decision, reason string, actor entity.Actor) (*service.Outcome, error) {
	return f.resolve(approvalID, decision, reason, actor)
}

func (f *fakeApprovals) ResolvePending(ctx context.Context, instanceID int64, decision entity.Decision, reason string, actor entity.Actor, expectedVersion *int64) (*service.Outcome, error) {
	return nil, errors.New("not used")
}

func (f *fakeApprovals) Get(ctx context.Context, id int64, actor entity.Actor) (*entity.ApprovalRequest, error) {
	return nil, fmt.Errorf("approval %d: %w", id, domainwf.ErrNotFound)
}

func (f *fakeApprovals) List(ctx context.Context, filter entity.ApprovalFilter, actor entity.Actor) ([]*entity.ApprovalRequest, error) {
	return nil, nil
}

type fakeLedger struct {
	settle  func(int64, string, entity.PaymentPlace, entity.Actor) (*entity.PendingPayment, error)
	summary func(entity.Scope, entity.Period, time.Time, entity.Actor) (*entity.Summary, error)
}

func (f *fakeLedger) CreateForApproval(ctx context.Context, inst *entity.WorkflowInstance, approval *entity.ApprovalRequest) (*entity.PendingPayment, error) {
	return nil, errors.New("not used")
}

func (f *fakeLedger) Settle(ctx context.Context, paymentID int64, receiptNumber string, place entity.PaymentPlace, actor entity.Actor) (*entity.PendingPayment, error) {
	return f.settle(paymentID, receiptNumber, place, actor)
}

func (f *fakeLedger) Summary(ctx context.Context, scope entity.Scope, period entity.Period, at time.Time, actor entity.Actor) (*entity.Summary, error) {
	return f.summary(scope, period, at, actor)
}

func (f *fakeLedger) RefreshSummaries(ctx context.Context) error { return nil }

func (f *fakeLedger) Get(ctx context.Context, id int64, actor entity.Actor) (*entity.PendingPayment, error) {
	return nil, fmt.Errorf("payment %d: %w", id, domainwf.ErrNotFound)
}

func (f *fakeLedger) List(ctx context.Context, filter entity.PaymentFilter, actor entity.Actor) ([]*entity.PendingPayment, error) {
	return nil, nil
}

var (
	centerMgr = entity.Actor{ID: "cm-1", Role: entity.RoleCenterManager, BranchID: "center"}
	branchMgr = entity.Actor{ID: "bm-1", Role: entity.RoleBranchManager, BranchID: "branch-1"}
	tech      = entity.Actor{ID: "tech-1", Role: entity.RoleTechnician, BranchID: "center"}
)

type fixture struct {
	server    *Server
	workflow  *fakeWorkflow
	approvals *fakeApprovals
	ledger    *fakeLedger
}

func newFixture(health HealthChecker) *fixture {
	f := &fixture{
		workflow:  &fakeWorkflow{},
		approvals: &fakeApprovals{},
		ledger:    &fakeLedger{},
	}
	verifier := fakeVerifier{"cm": centerMgr, "bm": branchMgr, "tech": tech}
	f.server = NewServer(DefaultServerConfig(), Services{
		Workflow:  f.workflow,
		Approvals: f.approvals,
		Ledger:    f.ledger,
	}, verifier, health, nopLogger{})
	return f
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func TestHealthCheck(t *testing.T) {
	rec, resp := newFixture(fakeHealth{}).do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec, resp = newFixture(fakeHealth{err: errors.New("db down")}).do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, resp.Success)
}

func TestActorMiddleware(t *testing.T) {
	f := newFixture(nil)

	rec, resp := f.do(t, http.MethodGet, "/api/v1/workflow", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "Unauthorized", resp.Error.Kind)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/workflow", "forged", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoleGating(t *testing.T) {
	f := newFixture(nil)
	f.approvals.resolve = func(int64, entity.Decision, string, entity.Actor) (*service.Outcome, error) {
		t.Fatal("service must not be reached")
		return nil, nil
	}
	f.workflow.receive = func(entity.ReceiveInput, entity.Actor) (*service.Outcome, error) {
		t.Fatal("service must not be reached")
		return nil, nil
	}

	rec, resp := f.do(t, http.MethodPost, "/api/v1/approvals/1/approve", "tech", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Forbidden", resp.Error.Kind)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/workflow", "bm", entity.ReceiveInput{MachineSerial: "SN"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReceiveMachine(t *testing.T) {
	f := newFixture(nil)
	f.workflow.receive = func(in entity.ReceiveInput, actor entity.Actor) (*service.Outcome, error) {
		assert.Equal(t, "SN-1", in.MachineSerial)
		assert.Equal(t, centerMgr, actor)
		return &service.Outcome{Instance: &entity.WorkflowInstance{ID: 7, Status: domainwf.StateReceivedAtCenter}}, nil
	}

	rec, resp := f.do(t, http.MethodPost, "/api/v1/workflow", "cm", entity.ReceiveInput{
		MachineSerial: "SN-1", OriginBranchID: "branch-1", CenterBranchID: "center",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, resp.Success)
}

func TestTransition_ErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		kind      string
		retryable bool
	}{
		{"invalid transition", &domainwf.TransitionError{From: domainwf.StateReturned, Action: domainwf.ActionAssign}, http.StatusConflict, "InvalidTransition", false},
		{"approval pending", fmt.Errorf("x: %w", domainwf.ErrApprovalPending), http.StatusConflict, "ApprovalPending", false},
		{"lost race", fmt.Errorf("x: %w", domainwf.ErrConcurrentModification), http.StatusConflict, "ConcurrentModification", true},
		{"not found", fmt.Errorf("x: %w", domainwf.ErrNotFound), http.StatusNotFound, "NotFound", false},
		{"validation", fmt.Errorf("%w: bad parts", domainwf.ErrValidation), http.StatusBadRequest, "Validation", false},
		{"forbidden", fmt.Errorf("x: %w", domainwf.ErrForbidden), http.StatusForbidden, "Forbidden", false},
		{"internal", errors.New("disk I/O error"), http.StatusInternalServerError, "Internal", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(nil)
			f.workflow.transition = func(cmd workflow.Command) (*service.Outcome, error) {
				return nil, tt.err
			}

			rec, resp := f.do(t, http.MethodPost, "/api/v1/workflow/3/transition", "tech", TransitionRequest{Action: "assign"})
			assert.Equal(t, tt.status, rec.Code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.kind, resp.Error.Kind)
			assert.Equal(t, tt.retryable, resp.Error.Retryable)
			if tt.kind == "Internal" {
				assert.Equal(t, "internal error", resp.Error.Message)
			}
		})
	}
}

func TestTransition_PassesCommand(t *testing.T) {
	f := newFixture(nil)
	version := int64(4)
	f.workflow.transition = func(cmd workflow.Command) (*service.Outcome, error) {
		assert.Equal(t, int64(3), cmd.InstanceID)
		assert.Equal(t, domainwf.ActionRequestApproval, cmd.Action)
		assert.Equal(t, int64(1500), cmd.Payload.Parts.Total())
		require.NotNil(t, cmd.ExpectedVersion)
		assert.Equal(t, version, *cmd.ExpectedVersion)
		assert.Equal(t, tech, cmd.Actor)
		return &service.Outcome{}, nil
	}

	rec, _ := f.do(t, http.MethodPost, "/api/v1/workflow/3/transition", "tech", TransitionRequest{
		Action:  "request_approval",
		Payload: workflow.Payload{Parts: entity.Parts{{Name: "fan", Quantity: 3, UnitCost: 500}}},
		Version: &version,
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/workflow/abc/transition", "tech", TransitionRequest{Action: "assign"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransition_ApprovalActionsReachService(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		action string
		err    error
		status int
	}{
		{"branch manager approves", "bm", "approve", nil, http.StatusOK},
		{"branch manager rejects", "bm", "REJECT", nil, http.StatusOK},
		{"technician approve refused by service", "tech", "approve", fmt.Errorf("x: %w", domainwf.ErrForbidden), http.StatusForbidden},
		{"foreign instance hidden", "bm", "complete", fmt.Errorf("x: %w", domainwf.ErrNotFound), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(nil)
			called := false
			f.workflow.transition = func(cmd workflow.Command) (*service.Outcome, error) {
				called = true
				assert.Equal(t, domainwf.Action(strings.ToUpper(tt.action)), cmd.Action)
				if tt.err != nil {
					return nil, tt.err
				}
				assert.Equal(t, branchMgr, cmd.Actor)
				return &service.Outcome{Instance: &entity.WorkflowInstance{ID: 3, Status: domainwf.StateRepairApproved}}, nil
			}

			rec, _ := f.do(t, http.MethodPost, "/api/v1/workflow/3/transition", tt.token, TransitionRequest{Action: tt.action})
			assert.True(t, called, "service not reached")
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestSettlePayment(t *testing.T) {
	f := newFixture(nil)
	stored := &entity.PendingPayment{ID: 9, Status: entity.PaymentStatusPaid, ReceiptNumber: "R-1"}
	f.ledger.settle = func(id int64, receipt string, place entity.PaymentPlace, actor entity.Actor) (*entity.PendingPayment, error) {
		assert.Equal(t, entity.PaymentPlaceBankTransfer, place)
		switch receipt {
		case "R-1":
			return stored, fmt.Errorf("payment 9: %w", domainwf.ErrAlreadySettled)
		case "R-2":
			return nil, fmt.Errorf("payment 9: %w", domainwf.ErrAlreadySettled)
		default:
			return nil, fmt.Errorf("receipt: %w", domainwf.ErrReceiptNumberConflict)
		}
	}

	rec, resp := f.do(t, http.MethodPut, "/api/v1/payments/9/settle", "bm", SettleRequest{ReceiptNumber: "R-1", PaymentPlace: "bank_transfer"})
	assert.Equal(t, http.StatusOK, rec.Code, "same receipt replays successfully")
	assert.True(t, resp.Success)

	rec, resp = f.do(t, http.MethodPut, "/api/v1/payments/9/settle", "bm", SettleRequest{ReceiptNumber: "R-2", PaymentPlace: "BANK_TRANSFER"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "AlreadySettled", resp.Error.Kind)

	rec, resp = f.do(t, http.MethodPut, "/api/v1/payments/9/settle", "bm", SettleRequest{ReceiptNumber: "R-3", PaymentPlace: "BANK_TRANSFER"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ReceiptNumberConflict", resp.Error.Kind)

	rec, _ = f.do(t, http.MethodPut, "/api/v1/payments/9/settle", "bm", map[string]string{"paymentPlace": "BANK_TRANSFER"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentSummary(t *testing.T) {
	f := newFixture(nil)
	f.ledger.summary = func(scope entity.Scope, period entity.Period, at time.Time, actor entity.Actor) (*entity.Summary, error) {
		assert.Equal(t, entity.Scope("branch-1"), scope)
		assert.Equal(t, entity.PeriodQuarter, period)
		assert.Equal(t, time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC), at)
		return &entity.Summary{Scope: scope, Period: period}, nil
	}

	rec, resp := f.do(t, http.MethodGet, "/api/v1/payments/summary?scope=branch-1&period=QUARTER&at=2026-05-02", "bm", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	rec, resp = f.do(t, http.MethodGet, "/api/v1/payments/summary?period=week", "bm", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Validation", resp.Error.Kind)
}

func TestGetMissingRecords(t *testing.T) {
	f := newFixture(nil)

	rec, resp := f.do(t, http.MethodGet, "/api/v1/approvals/5", "bm", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NotFound", resp.Error.Kind)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/payments/5", "bm", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/approvals?status=maybe", "bm", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
