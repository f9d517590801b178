package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/dmcarvalho/transferflow-backend/internal/domain"
)

// uniqueViolation is the postgres error code for a unique constraint breach.
const uniqueViolation = "23505"

// transferRecordRepository implements domain.TransferRecordRepository
type transferRecordRepository struct {
	q querier
}

// NewTransferRecordRepository creates a transfer record repository for reads
// outside a unit of work.
func NewTransferRecordRepository(db *DB) domain.TransferRecordRepository {
	return &transferRecordRepository{q: db}
}

// Append stores a new transfer record. The unique index on event_key is the
// last-line idempotency guard: a concurrent delivery of the same event that
// commits first turns this insert into ErrDuplicateEventKey.
func (r *transferRecordRepository) Append(ctx context.Context, record *domain.TransferRecord) error {
	query := `
		INSERT INTO transfer_records (id, event_key, sender_id, recipient_id, amount, incentive, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.q.ExecContext(ctx, query,
		record.ID,
		record.EventKey,
		record.SenderID,
		record.RecipientID,
		record.Amount.String(),
		record.Incentive.String(),
		record.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.ErrDuplicateEventKey
		}

		return fmt.Errorf("failed to insert transfer record: %w", err)
	}

	return nil
}

// ExistsByEventKey reports whether a record with the given event key has
// been committed.
func (r *transferRecordRepository) ExistsByEventKey(ctx context.Context, eventKey string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM transfer_records WHERE event_key = $1
		)
	`

	var exists bool
	if err := r.q.QueryRowContext(ctx, query, eventKey).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check event key: %w", err)
	}

	return exists, nil
}
