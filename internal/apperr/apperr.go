// Package apperr defines the business error codes shared by every corebank
// component and their translation into API responses.
//
// Each sentinel's text is its numeric code. Components wrap them with context
// using fmt.Errorf("...: %w", apperr.ErrX) and callers test with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation maps to error code 1001.
	ErrValidation = errors.New("1001")
	// ErrInsufficientFunds maps to error code 0018.
	ErrInsufficientFunds = errors.New("0018")
	// ErrAccountNotFound maps to error code 0019.
	ErrAccountNotFound = errors.New("0019")
	// ErrAccountInactive maps to error code 0024.
	ErrAccountInactive = errors.New("0024")
	// ErrDownstreamUnavailable maps to error code 0503.
	ErrDownstreamUnavailable = errors.New("0503")
	// ErrCompensated maps to error code 0601.
	ErrCompensated = errors.New("0601")
	// ErrReversalFailed maps to error code 0602.
	ErrReversalFailed = errors.New("0602")
	// ErrLedgerInconsistency maps to error code 0603.
	ErrLedgerInconsistency = errors.New("0603")
	// ErrTransactionInProgress maps to error code 0604.
	ErrTransactionInProgress = errors.New("0604")
	// ErrTransactionNotFound maps to error code 0605.
	ErrTransactionNotFound = errors.New("0605")
	// ErrAlertNotFound maps to error code 0701.
	ErrAlertNotFound = errors.New("0701")
	// ErrLoanNotFound maps to error code 0801.
	ErrLoanNotFound = errors.New("0801")
	// ErrVersionConflict maps to error code 0901. It never leaves the balance
	// authority unless retries are exhausted.
	ErrVersionConflict = errors.New("0901")
)

// DomainError is a validation failure on a single input field.
type DomainError struct {
	Code    string
	Field   string
	Message string
}

func (e DomainError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
}

// Is makes every DomainError match ErrValidation.
func (e DomainError) Is(target error) bool {
	return target == ErrValidation
}

// Validation creates a DomainError for field.
func Validation(field, message string) error {
	return DomainError{Code: ErrValidation.Error(), Field: field, Message: message}
}
