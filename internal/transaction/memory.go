package transaction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/apperr"
	"github.com/google/uuid"
)

// MemoryRepository keeps saga records in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]Transaction
	byKey map[string]uuid.UUID
	now   func() time.Time
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:  make(map[uuid.UUID]Transaction),
		byKey: make(map[string]uuid.UUID),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) Create(_ context.Context, tx Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byKey[tx.IdempotencyKey]; ok {
		return fmt.Errorf("key %q: %w", tx.IdempotencyKey, ErrDuplicateKey)
	}

	r.byID[tx.ID] = tx
	r.byKey[tx.IdempotencyKey] = tx.ID

	return nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, id uuid.UUID, status Status, reason string) (Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.byID[id]
	if !ok {
		return Transaction{}, fmt.Errorf("transaction %s: %w", id, apperr.ErrTransactionNotFound)
	}

	if tx.Status.Terminal() {
		return Transaction{}, fmt.Errorf("transaction %s is %s: %w", id, tx.Status, ErrNotInitiated)
	}

	tx.Status = status
	tx.FailureReason = reason
	tx.UpdatedAt = r.now()
	r.byID[id] = tx

	return tx, nil
}

func (r *MemoryRepository) Find(_ context.Context, id uuid.UUID) (Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, ok := r.byID[id]
	if !ok {
		return Transaction{}, fmt.Errorf("transaction %s: %w", id, apperr.ErrTransactionNotFound)
	}

	return tx, nil
}

func (r *MemoryRepository) FindByIdempotencyKey(_ context.Context, key string) (Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byKey[key]
	if !ok {
		return Transaction{}, fmt.Errorf("key %q: %w", key, apperr.ErrTransactionNotFound)
	}

	return r.byID[id], nil
}
