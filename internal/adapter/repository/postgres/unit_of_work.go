package postgres

import (
	"context"
	"fmt"

	"github.com/dmcarvalho/transferflow-backend/internal/domain"
)

// unitOfWork implements domain.UnitOfWork over a database transaction:
// both account updates and the transfer record insert commit together or
// roll back together.
type unitOfWork struct {
	db *DB
}

// NewUnitOfWork creates a new unit of work backed by the given database.
func NewUnitOfWork(db *DB) domain.UnitOfWork {
	return &unitOfWork{db: db}
}

// Execute runs fn inside a database transaction. The repositories handed to
// fn are bound to that transaction; account reads through them take
// exclusive row locks (SELECT ... FOR UPDATE).
func (u *unitOfWork) Execute(ctx context.Context, fn func(ctx context.Context, stores domain.Stores) error) error {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stores := domain.Stores{
		Accounts: &accountRepository{q: tx, forUpdate: true},
		Records:  &transferRecordRepository{q: tx},
	}

	if err := fn(ctx, stores); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
