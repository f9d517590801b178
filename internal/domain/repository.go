package domain

import (
	"context"
)

// AccountRepository defines the interface for account persistence operations
type AccountRepository interface {
	// GetByID retrieves an account by its ID.
	// Returns ErrAccountNotFound if no such account exists.
	// Inside a unit of work the row is loaded with an exclusive lock.
	GetByID(ctx context.Context, id int64) (*Account, error)

	// Save persists the account's current balance.
	// Returns ErrAccountNotFound if the account no longer exists.
	Save(ctx context.Context, account *Account) error
}

// TransferRecordRepository defines the interface for the append-only audit
// trail. No update or delete operation is part of the contract.
type TransferRecordRepository interface {
	// Append stores a new transfer record.
	// Returns ErrDuplicateEventKey if a record with the same event key
	// was already committed.
	Append(ctx context.Context, record *TransferRecord) error

	// ExistsByEventKey reports whether a record with the given event key
	// has been committed.
	ExistsByEventKey(ctx context.Context, eventKey string) (bool, error)
}

// Stores bundles the repositories bound to a live transaction.
type Stores struct {
	Accounts AccountRepository
	Records  TransferRecordRepository
}

// UnitOfWork runs a function whose store writes commit atomically:
// either every write made through the provided Stores is visible after
// Execute returns nil, or none are.
type UnitOfWork interface {
	Execute(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}

// IncentiveResolver computes the incentive for a transfer. It is an
// untrusted remote collaborator: calls may fail, time out or return
// invalid data, and any such failure aborts the event's unit of work.
type IncentiveResolver interface {
	Resolve(ctx context.Context, req TransferRequest) (Incentive, error)
}
