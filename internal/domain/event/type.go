package event

// Type identifies the type of domain event
type Type string

const (
	TypeWorkflowReceived     Type = "workflow.received"
	TypeWorkflowTransitioned Type = "workflow.transitioned"
	TypeApprovalRequested    Type = "approval.requested"
	TypeApprovalResolved     Type = "approval.resolved"
	TypePaymentCreated       Type = "payment.created"
	TypePaymentSettled       Type = "payment.settled"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeWorkflowReceived,
		TypeWorkflowTransitioned,
		TypeApprovalRequested,
		TypeApprovalResolved,
		TypePaymentCreated,
		TypePaymentSettled:
		return true
	default:
		return false
	}
}

// IsLedgerChange is true for events that change payment totals
func (t Type) IsLedgerChange() bool {
	return t == TypePaymentCreated || t == TypePaymentSettled
}
