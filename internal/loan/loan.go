// Package loan creates amortised loans and runs the EMI auto-debit batch that
// drives repayments through the transaction orchestrator.
package loan

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the state of a loan.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusOverdue Status = "OVERDUE"
	StatusClosed  Status = "CLOSED"
)

// EMIStatus is the state of one instalment.
type EMIStatus string

const (
	EMIPending EMIStatus = "PENDING"
	EMIPaid    EMIStatus = "PAID"
	EMIOverdue EMIStatus = "OVERDUE"
	// EMISkipped only appears in batch outcomes: the debit was still in flight
	// elsewhere and the instalment was left PENDING.
	EMISkipped EMIStatus = "SKIPPED"
)

// ChannelEMI tags the debits the batch issues.
const ChannelEMI = "EMI_AUTO"

// Loan is a disbursed loan. Schedule is filled on reads that return a single loan.
type Loan struct {
	ID           uuid.UUID       `json:"id"`
	CustomerID   string          `json:"customer_id"`
	BranchID     int             `json:"branch_id"`
	AccountID    uuid.UUID       `json:"account_id"`
	LoanType     string          `json:"loan_type"`
	Principal    decimal.Decimal `json:"principal"`
	InterestRate decimal.Decimal `json:"interest_rate"`
	TenureMonths int             `json:"tenure_months"`
	EMIAmount    decimal.Decimal `json:"emi_amount"`
	Status       Status          `json:"status"`
	StartDate    Date            `json:"start_date"`
	EndDate      Date            `json:"end_date"`
	CreatedAt    time.Time       `json:"created_at"`
	Schedule     []EMI           `json:"schedule,omitempty"`
}

// EMI is one row of a repayment schedule.
type EMI struct {
	ID                 uuid.UUID       `json:"id"`
	LoanID             uuid.UUID       `json:"loan_id"`
	Number             int             `json:"emi_number"`
	DueDate            Date            `json:"due_date"`
	Amount             decimal.Decimal `json:"amount"`
	PrincipalComponent decimal.Decimal `json:"principal_component"`
	InterestComponent  decimal.Decimal `json:"interest_component"`
	Status             EMIStatus       `json:"status"`
	PaidDate           *Date           `json:"paid_date,omitempty"`
	OverdueDays        int             `json:"overdue_days"`
	PenaltyAmount      decimal.Decimal `json:"penalty_amount"`
	TransactionID      *uuid.UUID      `json:"transaction_id,omitempty"`
}

// DueEMI is an instalment together with the loan it belongs to.
type DueEMI struct {
	EMI  EMI
	Loan Loan
}

// CreateLoanInput describes a new loan.
type CreateLoanInput struct {
	CustomerID   string          `json:"customer_id" validate:"required,max=64"`
	BranchID     int             `json:"branch_id" validate:"gte=0"`
	AccountID    uuid.UUID       `json:"account_id" validate:"required"`
	LoanType     string          `json:"loan_type" validate:"required,max=32"`
	Principal    decimal.Decimal `json:"principal_amount" validate:"positive_decimal"`
	InterestRate decimal.Decimal `json:"interest_rate" validate:"nonnegative_decimal"`
	TenureMonths int             `json:"tenure_months" validate:"gte=1,lte=600"`
	StartDate    Date            `json:"start_date"`
}

// EMIOutcome reports what the batch did with one instalment.
type EMIOutcome struct {
	LoanID        uuid.UUID       `json:"loan_id"`
	EMIID         uuid.UUID       `json:"emi_id"`
	EMINumber     int             `json:"emi_number"`
	Status        EMIStatus       `json:"status"`
	CustomerID    string          `json:"customer_id,omitempty"`
	DueDate       *Date           `json:"due_date,omitempty"`
	Amount        decimal.Decimal `json:"emi_amount"`
	OverdueDays   int             `json:"overdue_days,omitempty"`
	PenaltyAmount decimal.Decimal `json:"penalty_amount"`
	TransactionID *uuid.UUID      `json:"transaction_id,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// BatchResult summarises one ProcessDueEMIs run.
type BatchResult struct {
	ProcessedEMIs int          `json:"processed_emis"`
	Details       []EMIOutcome `json:"details"`
}

// OverdueEMI is a late instalment as listed for collections.
type OverdueEMI struct {
	CustomerID    string          `json:"customer_id"`
	LoanID        uuid.UUID       `json:"loan_id"`
	EMIID         uuid.UUID       `json:"emi_id"`
	EMINumber     int             `json:"emi_number"`
	DueDate       Date            `json:"due_date"`
	Amount        decimal.Decimal `json:"emi_amount"`
	OverdueDays   int             `json:"overdue_days"`
	PenaltyAmount decimal.Decimal `json:"penalty_amount"`
	Status        EMIStatus       `json:"status"`
}

// Repository persists loans and schedules.
//
// MarkPaid and MarkOverdue only move PENDING instalments and report false
// when the row had already left PENDING. MarkOverdue also flips the loan to
// OVERDUE in the same unit of work.
type Repository interface {
	CreateLoan(ctx context.Context, loan Loan, schedule []EMI) error
	FindLoan(ctx context.Context, id uuid.UUID) (Loan, error)
	Schedule(ctx context.Context, loanID uuid.UUID) ([]EMI, error)
	DueEMIs(ctx context.Context, asOf Date) ([]DueEMI, error)
	Unpaid(ctx context.Context, before Date) ([]DueEMI, error)
	MarkPaid(ctx context.Context, emiID uuid.UUID, paidDate Date, txID *uuid.UUID) (bool, error)
	MarkOverdue(ctx context.Context, emiID uuid.UUID, overdueDays int, penalty decimal.Decimal, txID *uuid.UUID) (bool, error)
}
