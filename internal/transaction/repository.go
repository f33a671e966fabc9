package transaction

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists saga records.
//
// Create returns ErrDuplicateKey when the idempotency key exists. UpdateStatus
// only moves an INITIATED record and returns ErrNotInitiated otherwise. Lookups
// return apperr.ErrTransactionNotFound.
type Repository interface {
	Create(ctx context.Context, tx Transaction) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, reason string) (Transaction, error)
	Find(ctx context.Context, id uuid.UUID) (Transaction, error)
	FindByIdempotencyKey(ctx context.Context, key string) (Transaction, error)
}
