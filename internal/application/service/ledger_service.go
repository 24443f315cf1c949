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

// LedgerService tracks money owed by branches for approved repairs
type LedgerService interface {
	// CreateForApproval records the payment owed for an approved request.
	// It must run inside the approving transaction.
	CreateForApproval(ctx context.Context, inst *entity.WorkflowInstance, approval *entity.ApprovalRequest) (*entity.PendingPayment, error)

	// Settle marks a payment as paid. A retry with the receipt that already settled
	// the payment returns the stored payment together with ErrAlreadySettled.
	Settle(ctx context.Context, paymentID int64, receiptNumber string, place entity.PaymentPlace, actor entity.Actor) (*entity.PendingPayment, error)

	// Summary returns per-status totals for payments created in the period containing at
	Summary(ctx context.Context, scope entity.Scope, period entity.Period, at time.Time, actor entity.Actor) (*entity.Summary, error)

	// RefreshSummaries recomputes every cached summary
	RefreshSummaries(ctx context.Context) error

	Get(ctx context.Context, id int64, actor entity.Actor) (*entity.PendingPayment, error)
	List(ctx context.Context, filter entity.PaymentFilter, actor entity.Actor) ([]*entity.PendingPayment, error)
}

type ledgerServiceImpl struct {
	paymentRepo port.PaymentRepository
	txManager   port.TransactionManager
	locker      *workflow.InstanceLocker
	cache       *SummaryCache
	dispatcher  dispatcher.Dispatcher
	logger      Logger
	now         func() time.Time
}

// LedgerOption configures the ledger service
type LedgerOption func(*ledgerServiceImpl)

// WithSummaryCache serves summaries from a cache
func WithSummaryCache(c *SummaryCache) LedgerOption {
	return func(s *ledgerServiceImpl) { s.cache = c }
}

// WithLedgerDispatcher publishes payment events
func WithLedgerDispatcher(d dispatcher.Dispatcher) LedgerOption {
	return func(s *ledgerServiceImpl) { s.dispatcher = d }
}

// WithLedgerClock overrides the time source
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(s *ledgerServiceImpl) { s.now = now }
}

// NewLedgerService creates a new LedgerService. The locker must be the one the
// workflow engine uses so settlement and transitions of one instance exclude each other.
func NewLedgerService(
	paymentRepo port.PaymentRepository,
	txManager port.TransactionManager,
	locker *workflow.InstanceLocker,
	logger Logger,
	opts ...LedgerOption,
) LedgerService {
	s := &ledgerServiceImpl{
		paymentRepo: paymentRepo,
		txManager:   txManager,
		locker:      locker,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ledgerServiceImpl) CreateForApproval(ctx context.Context, inst *entity.WorkflowInstance, approval *entity.ApprovalRequest) (*entity.PendingPayment, error) {
	if approval.Status != entity.ApprovalStatusApproved {
		return nil, fmt.Errorf("%w: approval %d is %s, not APPROVED", domainwf.ErrValidation, approval.ID, approval.Status)
	}
	if err := approval.CheckTotal(); err != nil {
		return nil, err
	}

	payment := entity.NewPendingPayment(inst, approval, s.now().UTC())
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment for approval %d: %w", approval.ID, err)
	}
	return payment, nil
}

func (s *ledgerServiceImpl) Settle(ctx context.Context, paymentID int64, receiptNumber string, place entity.PaymentPlace, actor entity.Actor) (*entity.PendingPayment, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	receipt, err := utils.NormalizeReceiptNumber(receiptNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainwf.ErrValidation, err)
	}
	if !place.IsValid() {
		return nil, fmt.Errorf("%w: unknown payment place %q", domainwf.ErrValidation, place)
	}

	payment, err := s.load(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !actor.CanSeeAllBranches() && !payment.BelongsTo(actor.BranchID) {
		return nil, fmt.Errorf("payment %d: %w", paymentID, domainwf.ErrForbidden)
	}

	unlock, ok := s.locker.TryLock(payment.AssignmentID)
	if !ok {
		return nil, fmt.Errorf("instance %d is being modified: %w", payment.AssignmentID, domainwf.ErrConcurrentModification)
	}
	defer unlock()

	// Re-read under the lock
	payment, err = s.load(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.IsPaid() {
		if payment.ReceiptNumber == receipt {
			return payment, fmt.Errorf("payment %d: %w", paymentID, domainwf.ErrAlreadySettled)
		}
		return nil, fmt.Errorf("payment %d: %w", paymentID, domainwf.ErrAlreadySettled)
	}

	holder, err := s.paymentRepo.GetPaidByReceipt(ctx, receipt)
	if err != nil {
		return nil, fmt.Errorf("failed to check receipt number: %w", err)
	}
	if holder != nil && holder.ID != payment.ID {
		return nil, fmt.Errorf("receipt %s already settles payment %d: %w", receipt, holder.ID, domainwf.ErrReceiptNumberConflict)
	}

	paidAt := s.now().UTC()
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.paymentRepo.MarkPaid(txCtx, payment.ID, receipt, place, actor.ID, paidAt)
	})
	if err != nil {
		s.logger.Error("Failed to settle payment", "payment_id", paymentID, "error", err)
		return nil, err
	}

	payment.Status = entity.PaymentStatusPaid
	payment.ReceiptNumber = receipt
	payment.PaymentPlace = place
	payment.PaidBy = actor.ID
	payment.PaidAt = &paidAt

	s.logger.Info("Payment settled", "payment_id", payment.ID, "amount", payment.Amount, "receipt", receipt)
	s.publish(ctx, event.TypePaymentSettled, payment)

	return payment, nil
}

func (s *ledgerServiceImpl) Summary(ctx context.Context, scope entity.Scope, period entity.Period, at time.Time, actor entity.Actor) (*entity.Summary, error) {
	if scope == "" {
		scope = entity.ScopeAll
	}
	if !actor.CanSeeAllBranches() {
		if scope == entity.ScopeAll {
			scope = entity.Scope(actor.BranchID)
		} else if string(scope) != actor.BranchID {
			return nil, fmt.Errorf("summary for branch %s: %w", scope, domainwf.ErrForbidden)
		}
	}
	if at.IsZero() {
		at = s.now()
	}

	key := NewSummaryKey(scope, period, at)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			return cached, nil
		}
	}

	sum, err := s.compute(ctx, key)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Put(key, sum)
	}
	return sum, nil
}

func (s *ledgerServiceImpl) RefreshSummaries(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}

	var errs []error
	for _, key := range s.cache.Keys() {
		if err := ctx.Err(); err != nil {
			return err
		}
		sum, err := s.compute(ctx, key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.cache.Put(key, sum)
	}
	return errors.Join(errs...)
}

// compute folds the payments of the key's window
func (s *ledgerServiceImpl) compute(ctx context.Context, key SummaryKey) (*entity.Summary, error) {
	at := key.At()
	from, to := key.Period.Window(at)

	filter := entity.PaymentFilter{From: &from, To: &to}
	if key.Scope != entity.ScopeAll {
		filter.BranchID = string(key.Scope)
	}

	payments, err := s.paymentRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments for summary: %w", err)
	}

	sum := entity.Summarize(payments, key.Scope, key.Period, at)
	return &sum, nil
}

func (s *ledgerServiceImpl) Get(ctx context.Context, id int64, actor entity.Actor) (*entity.PendingPayment, error) {
	payment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkVisible(actor, payment.BelongsTo(actor.BranchID), "payment", id); err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *ledgerServiceImpl) List(ctx context.Context, filter entity.PaymentFilter, actor entity.Actor) ([]*entity.PendingPayment, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown payment status %q", domainwf.ErrValidation, filter.Status)
	}
	filter.BranchID = branchScope(actor, filter.BranchID)

	payments, err := s.paymentRepo.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list payments", "error", err)
		return nil, err
	}
	return payments, nil
}

func (s *ledgerServiceImpl) load(ctx context.Context, id int64) (*entity.PendingPayment, error) {
	payment, err := s.paymentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment: %w", err)
	}
	if payment == nil {
		return nil, fmt.Errorf("payment %d: %w", id, domainwf.ErrNotFound)
	}
	return payment, nil
}

func (s *ledgerServiceImpl) publish(ctx context.Context, t event.Type, p *entity.PendingPayment) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.DispatchAsync(ctx, event.NewEvent(t, p.AssignmentID, map[string]interface{}{
		"payment_id":       p.ID,
		"approval_id":      p.ApprovalID,
		"amount":           p.Amount,
		"status":           string(p.Status),
		"origin_branch_id": p.OriginBranchID,
	}))
}
