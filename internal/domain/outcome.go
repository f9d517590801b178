package domain

// OutcomeStatus classifies the result of processing one transfer event.
type OutcomeStatus string

const (
	// OutcomeApplied means both balance mutations and the audit record committed.
	OutcomeApplied OutcomeStatus = "APPLIED"
	// OutcomeRejected means the event was dropped with no side effect.
	OutcomeRejected OutcomeStatus = "REJECTED"
	// OutcomeDuplicate means the event was already applied by an earlier delivery.
	OutcomeDuplicate OutcomeStatus = "DUPLICATE"
)

// RejectionReason explains why an event was rejected.
type RejectionReason string

const (
	ReasonAccountNotFound     RejectionReason = "account_not_found"
	ReasonInsufficientBalance RejectionReason = "insufficient_balance"
)

// Outcome is the explicit result of processing a transfer event.
// Rejections are values, not errors: the caller acks the message either way
// and only the reason differs for observability.
type Outcome struct {
	Status OutcomeStatus
	Reason RejectionReason // set only when Status is OutcomeRejected
	Record *TransferRecord // set only when Status is OutcomeApplied
}

// Applied builds an outcome for a committed transfer.
func Applied(record *TransferRecord) Outcome {
	return Outcome{Status: OutcomeApplied, Record: record}
}

// Rejected builds an outcome for an event dropped with no side effect.
func Rejected(reason RejectionReason) Outcome {
	return Outcome{Status: OutcomeRejected, Reason: reason}
}

// Duplicate builds an outcome for an already-applied event.
func Duplicate() Outcome {
	return Outcome{Status: OutcomeDuplicate}
}
