package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest marks a transfer request that can never succeed
	// (non-positive amount, self-transfer). Terminal for the message.
	ErrInvalidRequest = errors.New("invalid transfer request")

	// ErrAccountNotFound is returned by account repositories when no
	// account exists for the given id.
	ErrAccountNotFound = errors.New("account not found")

	// ErrDuplicateEventKey is returned by the record store when a record
	// with the same event key was already committed.
	ErrDuplicateEventKey = errors.New("transfer record with this event key already exists")
)

// IncentiveFailure distinguishes the failure modes of the incentive resolver.
type IncentiveFailure string

const (
	// IncentiveUnreachable covers network errors and an open circuit breaker.
	IncentiveUnreachable IncentiveFailure = "unreachable"
	// IncentiveTimeout covers calls that exceeded the bounded timeout.
	IncentiveTimeout IncentiveFailure = "timeout"
	// IncentiveBadResponse covers non-2xx statuses, malformed bodies and
	// negative incentive amounts.
	IncentiveBadResponse IncentiveFailure = "bad_response"
)

// IncentiveError wraps a failed incentive resolution. The processor aborts
// the whole unit of work on any kind; the incentive is never defaulted to
// zero because that would change financial semantics without signal.
type IncentiveError struct {
	Kind IncentiveFailure
	Err  error
}

func (e *IncentiveError) Error() string {
	return fmt.Sprintf("incentive resolution failed (%s): %v", e.Kind, e.Err)
}

func (e *IncentiveError) Unwrap() error {
	return e.Err
}

// NewIncentiveError builds an IncentiveError of the given kind.
func NewIncentiveError(kind IncentiveFailure, err error) *IncentiveError {
	return &IncentiveError{Kind: kind, Err: err}
}
