package balance

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository persists accounts. Implementations return apperr.ErrAccountNotFound
// for unknown ids and apperr.ErrVersionConflict when a CompareAndSwap loses.
type Repository interface {
	Create(ctx context.Context, account Account) error
	// Find may read from a replica.
	Find(ctx context.Context, id uuid.UUID) (Account, error)
	// FindCurrent reads the latest committed state, as CompareAndSwap sees it.
	FindCurrent(ctx context.Context, id uuid.UUID) (Account, error)
	// CompareAndSwap sets the balance when the stored version still equals
	// expectedVersion and returns the account with its version incremented.
	CompareAndSwap(ctx context.Context, id uuid.UUID, expectedVersion int64, balance decimal.Decimal) (Account, error)
}
