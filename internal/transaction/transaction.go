// Package transaction runs debits, credits and transfers as short sagas
// against the Balance Authority and the Ledger Recorder, compensating a
// transfer when its credit leg fails.
package transaction

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind is the money movement a Transaction performs.
type Kind string

const (
	KindDebit    Kind = "DEBIT"
	KindCredit   Kind = "CREDIT"
	KindTransfer Kind = "TRANSFER"
)

// Status is the saga state. Everything but INITIATED is terminal.
type Status string

const (
	StatusInitiated      Status = "INITIATED"
	StatusCompleted      Status = "COMPLETED"
	StatusFailed         Status = "FAILED"
	StatusReversed       Status = "REVERSED"
	StatusReversalFailed Status = "REVERSAL_FAILED"
	StatusLedgerFailed   Status = "LEDGER_FAILED"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s != StatusInitiated
}

// DefaultChannel is used when a caller leaves the channel empty.
const DefaultChannel = "SYSTEM"

var (
	// ErrDuplicateKey is returned by repositories when the idempotency key is taken.
	ErrDuplicateKey = errors.New("idempotency key already used")
	// ErrNotInitiated is returned when a terminal transaction would be moved again.
	ErrNotInitiated = errors.New("transaction already reached a terminal state")
)

// Transaction is the saga record. For transfers AccountID is the sender and
// CounterpartyAccountID the receiver.
type Transaction struct {
	ID                    uuid.UUID       `json:"id"`
	IdempotencyKey        string          `json:"idempotency_key"`
	AccountID             uuid.UUID       `json:"account_id"`
	CounterpartyAccountID *uuid.UUID      `json:"counterparty_account_id,omitempty"`
	CustomerID            string          `json:"customer_id"`
	BranchID              int             `json:"branch_id"`
	Amount                decimal.Decimal `json:"amount"`
	Kind                  Kind            `json:"kind"`
	Channel               string          `json:"channel"`
	Status                Status          `json:"status"`
	FailureReason         string          `json:"failure_reason,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// DebitInput withdraws Amount from AccountID.
type DebitInput struct {
	AccountID      uuid.UUID       `json:"account_id" validate:"required"`
	Amount         decimal.Decimal `json:"amount" validate:"positive_decimal"`
	Channel        string          `json:"channel" validate:"max=32"`
	IdempotencyKey string          `json:"idempotency_key" validate:"max=128"`
}

// CreditInput deposits Amount into AccountID.
type CreditInput struct {
	AccountID      uuid.UUID       `json:"account_id" validate:"required"`
	Amount         decimal.Decimal `json:"amount" validate:"positive_decimal"`
	Channel        string          `json:"channel" validate:"max=32"`
	IdempotencyKey string          `json:"idempotency_key" validate:"max=128"`
}

// TransferInput moves Amount from FromAccountID to ToAccountID.
type TransferInput struct {
	FromAccountID  uuid.UUID       `json:"from_account_id" validate:"required"`
	ToAccountID    uuid.UUID       `json:"to_account_id" validate:"required"`
	Amount         decimal.Decimal `json:"amount" validate:"positive_decimal"`
	Channel        string          `json:"channel" validate:"max=32"`
	IdempotencyKey string          `json:"idempotency_key" validate:"max=128"`
}
