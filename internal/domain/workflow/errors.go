package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when a state transition is not allowed
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a state is not valid
	ErrInvalidState = errors.New("invalid state")

	// ErrGuardFailed is returned when every guard on the matching edges fails
	ErrGuardFailed = errors.New("guard condition failed")

	// ErrApprovalPending is returned when work is completed while a cost approval is open
	ErrApprovalPending = errors.New("approval pending")

	// ErrDuplicatePendingApproval is returned when a second approval is requested while one is pending
	ErrDuplicatePendingApproval = errors.New("approval request already pending")

	// ErrAlreadyResolved is returned when an approval request is resolved twice
	ErrAlreadyResolved = errors.New("approval request already resolved")

	// ErrAlreadySettled is returned when a payment is settled twice
	ErrAlreadySettled = errors.New("payment already settled")

	// ErrConcurrentModification is returned when another writer changed the instance first
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrReceiptNumberConflict is returned when a receipt number is already used by another payment
	ErrReceiptNumberConflict = errors.New("receipt number already used")

	// ErrMachineAlreadyActive is returned when a machine serial already has an open instance
	ErrMachineAlreadyActive = errors.New("machine already active in the center")

	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")

	// ErrForbidden is returned when an actor acts outside its branch
	ErrForbidden = errors.New("forbidden")
)

// TransitionError names the status and action of a rejected transition
type TransitionError struct {
	From   State
	Action Action
	Reason error
}

func (e *TransitionError) Error() string {
	if e.Reason != nil {
		return fmt.Sprintf("cannot %s from %s: %v", e.Action, e.From, e.Reason)
	}
	return fmt.Sprintf("cannot %s from %s", e.Action, e.From)
}

// Is reports ErrInvalidTransition for every transition error, plus its reason
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition || (e.Reason != nil && target == e.Reason)
}

func (e *TransitionError) Unwrap() error {
	return e.Reason
}

// Kind is the caller-facing error category
type Kind string

const (
	KindInvalidTransition        Kind = "InvalidTransition"
	KindApprovalPending          Kind = "ApprovalPending"
	KindDuplicatePendingApproval Kind = "DuplicatePendingApproval"
	KindAlreadyResolved          Kind = "AlreadyResolved"
	KindAlreadySettled           Kind = "AlreadySettled"
	KindConcurrentModification   Kind = "ConcurrentModification"
	KindReceiptNumberConflict    Kind = "ReceiptNumberConflict"
	KindMachineAlreadyActive     Kind = "MachineAlreadyActive"
	KindNotFound                 Kind = "NotFound"
	KindValidation               Kind = "Validation"
	KindForbidden                Kind = "Forbidden"
	KindInternal                 Kind = "Internal"
)

var kindErrors = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrApprovalPending, KindApprovalPending},
	{ErrDuplicatePendingApproval, KindDuplicatePendingApproval},
	{ErrAlreadyResolved, KindAlreadyResolved},
	{ErrAlreadySettled, KindAlreadySettled},
	{ErrConcurrentModification, KindConcurrentModification},
	{ErrReceiptNumberConflict, KindReceiptNumberConflict},
	{ErrMachineAlreadyActive, KindMachineAlreadyActive},
	{ErrNotFound, KindNotFound},
	{ErrValidation, KindValidation},
	{ErrForbidden, KindForbidden},
	{ErrInvalidState, KindValidation},
}

// KindOf classifies an error into the caller-facing taxonomy
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, ke := range kindErrors {
		if errors.Is(err, ke.err) {
			return ke.kind
		}
	}
	return KindInternal
}

// ErrorForKind returns the sentinel error of a kind, or nil for unknown kinds
func ErrorForKind(kind Kind) error {
	for _, ke := range kindErrors {
		if ke.kind == kind {
			return ke.err
		}
	}
	return nil
}

// Retryable reports whether the caller should re-read state and retry
func (k Kind) Retryable() bool {
	return k == KindConcurrentModification
}
