// Package ledger records balanced double-entry postings. Every reference id
// carries exactly one DEBIT and one CREDIT of the same amount, and recording
// the same reference twice is a no-op.
package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryType is the side of a posting.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// RecordStatus tells whether Record wrote anything.
type RecordStatus string

const (
	StatusRecorded        RecordStatus = "RECORDED"
	StatusAlreadyRecorded RecordStatus = "LEDGER_ALREADY_RECORDED"
)

// ErrDuplicateReference is returned by repositories when the reference has
// already been posted.
var ErrDuplicateReference = errors.New("ledger reference already recorded")

// Entry is one side of a posting.
type Entry struct {
	ID          uuid.UUID       `json:"id"`
	ReferenceID string          `json:"reference_id"`
	AccountID   uuid.UUID       `json:"account_id"`
	CustomerID  string          `json:"customer_id"`
	BranchID    int             `json:"branch_id"`
	EntryType   EntryType       `json:"entry_type"`
	Amount      decimal.Decimal `json:"amount"`
	Narration   string          `json:"narration"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Leg identifies the account on one side of a posting.
type Leg struct {
	AccountID  uuid.UUID `json:"account_id" validate:"required"`
	CustomerID string    `json:"customer_id"`
	BranchID   int       `json:"branch_id"`
}

// RecordInput is a balanced posting request.
type RecordInput struct {
	ReferenceID string          `json:"reference_id" validate:"required,max=128"`
	Debit       Leg             `json:"debit"`
	Credit      Leg             `json:"credit"`
	Amount      decimal.Decimal `json:"amount" validate:"positive_decimal"`
	Narration   string          `json:"narration" validate:"max=255"`
}

// RecordResult reports the outcome of Record. LedgerID is the DEBIT entry id,
// of the prior posting when Status is StatusAlreadyRecorded.
type RecordResult struct {
	Status      RecordStatus    `json:"status"`
	LedgerID    uuid.UUID       `json:"ledger_id"`
	ReferenceID string          `json:"reference_id"`
	Amount      decimal.Decimal `json:"amount"`
	Narration   string          `json:"narration"`
}
