package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dmcarvalho/transferflow-backend/internal/domain"
)

// querier abstracts *DB and *sql.Tx so the same repository code serves both
// plain reads and transactional, row-locked access.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// accountRepository implements domain.AccountRepository
type accountRepository struct {
	q querier
	// forUpdate is set for the transaction-bound variant: reads take an
	// exclusive row lock so concurrent transfers touching the same account
	// serialize on the database.
	forUpdate bool
}

// NewAccountRepository creates an account repository for reads outside a
// unit of work.
func NewAccountRepository(db *DB) domain.AccountRepository {
	return &accountRepository{q: db}
}

// GetByID retrieves an account by its ID
func (r *accountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	query := `
		SELECT id, balance
		FROM accounts
		WHERE id = $1
	`
	if r.forUpdate {
		query += " FOR UPDATE"
	}

	var account domain.Account
	var balanceStr string

	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&account.ID,
		&balanceStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account by ID: %w", err)
	}

	// Parse balance (DECIMAL)
	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance: %w", err)
	}
	account.Balance = balance

	return &account, nil
}

// Save persists the account's current balance. Accounts are provisioned
// externally, so a missing row is reported rather than inserted.
func (r *accountRepository) Save(ctx context.Context, account *domain.Account) error {
	query := `
		UPDATE accounts
		SET balance = $2
		WHERE id = $1
	`

	result, err := r.q.ExecContext(ctx, query,
		account.ID,
		account.Balance.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}

	if affected == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}
