package ledger

import "context"

// Repository persists ledger entries.
type Repository interface {
	// InsertPair writes both entries atomically and returns
	// ErrDuplicateReference when either already exists.
	InsertPair(ctx context.Context, debit, credit Entry) error
	// ListByReference returns the entries of referenceID ordered DEBIT first.
	ListByReference(ctx context.Context, referenceID string) ([]Entry, error)
	// Last returns the most recent entry, or nil when the ledger is empty.
	Last(ctx context.Context) (*Entry, error)
}
