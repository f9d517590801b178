package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferRequest is the payload of a single transfer event.
// One message on the stream equals one transfer attempt; the struct is
// immutable once deserialized.
type TransferRequest struct {
	EventID     string          `json:"eventId,omitempty"` // optional producer-supplied id
	SenderID    int64           `json:"senderId"`
	RecipientID int64           `json:"recipientId"`
	Amount      decimal.Decimal `json:"amount"`
}

// Validate ensures the request adheres to domain rules.
// Returns ErrInvalidRequest (wrapped) if validation fails.
func (r *TransferRequest) Validate() error {
	if r.Amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}

	if r.SenderID == r.RecipientID {
		return fmt.Errorf("%w: sender and recipient must differ", ErrInvalidRequest)
	}

	return nil
}

// EventKey returns the idempotency key for this request.
// When the producer supplied an explicit event id, that id wins. Otherwise
// the key is a content hash over sender, recipient and amount, so redelivery
// of the same payload always maps to the same key.
func (r *TransferRequest) EventKey() string {
	if r.EventID != "" {
		return r.EventID
	}

	h := sha256.Sum256([]byte(fmt.Sprintf("%d|%d|%s", r.SenderID, r.RecipientID, r.Amount.String())))

	return hex.EncodeToString(h[:])
}

// Incentive is the externally computed incentive attached to a specific
// transfer. Produced fresh per request, never persisted on its own.
type Incentive struct {
	Amount decimal.Decimal `json:"amount"` // Must be >= 0
}

// TransferRecord is the append-only audit row for a committed transfer.
// Exactly one record exists per applied balance mutation pair.
type TransferRecord struct {
	ID          uuid.UUID
	EventKey    string // unique; blocks double application on redelivery
	SenderID    int64
	RecipientID int64
	Amount      decimal.Decimal
	Incentive   decimal.Decimal
	CreatedAt   time.Time
}

// NewTransferRecord builds the audit record for an applied transfer.
func NewTransferRecord(req TransferRequest, incentive decimal.Decimal) *TransferRecord {
	return &TransferRecord{
		ID:          uuid.New(),
		EventKey:    req.EventKey(),
		SenderID:    req.SenderID,
		RecipientID: req.RecipientID,
		Amount:      req.Amount,
		Incentive:   incentive,
		CreatedAt:   time.Now().UTC(),
	}
}
