package apperr

import (
	"errors"
	"net/http"
)

// Response is the JSON error body returned by every HTTP surface.
type Response struct {
	Code    string `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (r Response) Error() string {
	return r.Message
}

type mapping struct {
	status  int
	title   string
	message string
}

var catalogue = []struct {
	err error
	mapping
}{
	{ErrInsufficientFunds, mapping{http.StatusUnprocessableEntity, "Insufficient Funds",
		"The account balance does not cover the requested amount."}},
	{ErrAccountNotFound, mapping{http.StatusNotFound, "Account Not Found",
		"The account does not exist."}},
	{ErrAccountInactive, mapping{http.StatusUnprocessableEntity, "Account Inactive",
		"The account status does not permit transactions."}},
	{ErrDownstreamUnavailable, mapping{http.StatusServiceUnavailable, "Service Unavailable",
		"A dependent service is unavailable."}},
	{ErrCompensated, mapping{http.StatusConflict, "Transfer Reversed",
		"The credit leg failed and the debit was reversed."}},
	{ErrReversalFailed, mapping{http.StatusInternalServerError, "Reversal Failed",
		"The credit leg failed and the debit could not be reversed. Operations have been alerted."}},
	{ErrLedgerInconsistency, mapping{http.StatusInternalServerError, "Ledger Inconsistency",
		"Balances were updated but the ledger write failed. The transaction is queued for reconciliation."}},
	{ErrTransactionInProgress, mapping{http.StatusConflict, "Transaction In Progress",
		"A transaction with this idempotency key is still being processed."}},
	{ErrTransactionNotFound, mapping{http.StatusNotFound, "Transaction Not Found",
		"The transaction does not exist."}},
	{ErrAlertNotFound, mapping{http.StatusNotFound, "Fraud Alert Not Found",
		"The fraud alert does not exist."}},
	{ErrLoanNotFound, mapping{http.StatusNotFound, "Loan Not Found",
		"The loan does not exist."}},
	{ErrVersionConflict, mapping{http.StatusConflict, "Concurrent Update",
		"The account was updated concurrently. Retry the request."}},
}

// ToResponse translates err into an HTTP status and body. Unknown errors become
// a generic 500 that does not leak internal details.
func ToResponse(err error) (int, Response) {
	var de DomainError
	if errors.As(err, &de) {
		return http.StatusBadRequest, Response{
			Code:    de.Code,
			Title:   "Invalid Request",
			Message: de.Message,
			Field:   de.Field,
		}
	}

	if errors.Is(err, ErrValidation) {
		return http.StatusBadRequest, Response{
			Code:    ErrValidation.Error(),
			Title:   "Invalid Request",
			Message: err.Error(),
		}
	}

	var remote Response
	if errors.As(err, &remote) {
		if status, ok := statusForCode(remote.Code); ok {
			return status, remote
		}
	}

	for _, c := range catalogue {
		if errors.Is(err, c.err) {
			return c.status, Response{Code: c.err.Error(), Title: c.title, Message: c.message}
		}
	}

	return http.StatusInternalServerError, Response{
		Code:    "0500",
		Title:   "Internal Server Error",
		Message: "internal server error",
	}
}

func statusForCode(code string) (int, bool) {
	if code == ErrValidation.Error() {
		return http.StatusBadRequest, true
	}

	for _, c := range catalogue {
		if c.err.Error() == code {
			return c.status, true
		}
	}

	return 0, false
}

// FromCode returns the sentinel for a code received from a remote service, or
// nil when the code is not part of the catalogue.
func FromCode(code string) error {
	if code == ErrValidation.Error() {
		return ErrValidation
	}

	for _, c := range catalogue {
		if c.err.Error() == code {
			return c.err
		}
	}

	return nil
}
