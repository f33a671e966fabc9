// Package balance is the Balance Authority: the only component allowed to
// change an account balance. Every change is a compare-and-swap on the
// account version, optionally serialized by a distributed per-account lock.
package balance

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an account.
type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusFrozen Status = "FROZEN"
	StatusClosed Status = "CLOSED"
)

// Account is a customer account as owned by the Balance Authority.
type Account struct {
	ID         uuid.UUID       `json:"id"`
	CustomerID string          `json:"customer_id"`
	BranchID   int             `json:"branch_id"`
	Type       string          `json:"account_type"`
	Balance    decimal.Decimal `json:"balance"`
	Status     Status          `json:"status"`
	Version    int64           `json:"version"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// OpenAccountInput describes a new account. ID is generated when zero.
type OpenAccountInput struct {
	ID             uuid.UUID       `json:"id"`
	CustomerID     string          `json:"customer_id" validate:"required,max=64"`
	BranchID       int             `json:"branch_id" validate:"gte=0"`
	Type           string          `json:"account_type" validate:"required,oneof=SAVINGS CURRENT LOAN SETTLEMENT"`
	OpeningBalance decimal.Decimal `json:"opening_balance" validate:"nonnegative_decimal"`
}
