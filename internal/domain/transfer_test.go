package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferRequest_Validate(t *testing.T) {
	valid := TransferRequest{
		SenderID:    1,
		RecipientID: 2,
		Amount:      decimal.NewFromInt(30),
	}
	assert.NoError(t, valid.Validate())

	zeroAmount := TransferRequest{SenderID: 1, RecipientID: 2, Amount: decimal.Zero}
	err := zeroAmount.Validate()
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	negativeAmount := TransferRequest{SenderID: 1, RecipientID: 2, Amount: decimal.NewFromInt(-5)}
	err = negativeAmount.Validate()
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	selfTransfer := TransferRequest{SenderID: 7, RecipientID: 7, Amount: decimal.NewFromInt(10)}
	err = selfTransfer.Validate()
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestTransferRequest_EventKey_ExplicitID(t *testing.T) {
	req := TransferRequest{
		EventID:     "evt-123",
		SenderID:    1,
		RecipientID: 2,
		Amount:      decimal.NewFromInt(30),
	}

	assert.Equal(t, "evt-123", req.EventKey())
}

func TestTransferRequest_EventKey_DerivedHash(t *testing.T) {
	req := TransferRequest{SenderID: 1, RecipientID: 2, Amount: decimal.NewFromInt(30)}

	// Same payload always maps to the same key.
	assert.Equal(t, req.EventKey(), req.EventKey())

	// Any field change produces a different key.
	differentAmount := TransferRequest{SenderID: 1, RecipientID: 2, Amount: decimal.NewFromInt(31)}
	assert.NotEqual(t, req.EventKey(), differentAmount.EventKey())

	differentRecipient := TransferRequest{SenderID: 1, RecipientID: 3, Amount: decimal.NewFromInt(30)}
	assert.NotEqual(t, req.EventKey(), differentRecipient.EventKey())
}

func TestNewTransferRecord(t *testing.T) {
	req := TransferRequest{
		EventID:     "evt-42",
		SenderID:    1,
		RecipientID: 2,
		Amount:      decimal.NewFromInt(30),
	}

	record := NewTransferRecord(req, decimal.NewFromInt(2))
	require.NotNil(t, record)

	assert.NotEqual(t, [16]byte{}, [16]byte(record.ID))
	assert.Equal(t, "evt-42", record.EventKey)
	assert.Equal(t, int64(1), record.SenderID)
	assert.Equal(t, int64(2), record.RecipientID)
	assert.True(t, record.Amount.Equal(decimal.NewFromInt(30)))
	assert.True(t, record.Incentive.Equal(decimal.NewFromInt(2)))
	assert.False(t, record.CreatedAt.IsZero())
}

func TestAccount_CanCover(t *testing.T) {
	account := Account{ID: 1, Balance: decimal.NewFromInt(100)}

	assert.True(t, account.CanCover(decimal.NewFromInt(100)))
	assert.True(t, account.CanCover(decimal.NewFromInt(30)))
	assert.False(t, account.CanCover(decimal.NewFromInt(101)))
}
