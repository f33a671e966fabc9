package balance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/apperr"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryRepository keeps accounts in process memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]Account
	now      func() time.Time
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts: make(map[uuid.UUID]Account),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) Create(_ context.Context, account Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[account.ID]; ok {
		return fmt.Errorf("account %s already exists", account.ID)
	}

	r.accounts[account.ID] = account

	return nil
}

func (r *MemoryRepository) Find(_ context.Context, id uuid.UUID) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return Account{}, fmt.Errorf("account %s: %w", id, apperr.ErrAccountNotFound)
	}

	return account, nil
}

func (r *MemoryRepository) FindCurrent(ctx context.Context, id uuid.UUID) (Account, error) {
	return r.Find(ctx, id)
}

func (r *MemoryRepository) CompareAndSwap(_ context.Context, id uuid.UUID, expectedVersion int64, balance decimal.Decimal) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return Account{}, fmt.Errorf("account %s: %w", id, apperr.ErrAccountNotFound)
	}

	if account.Version != expectedVersion {
		return Account{}, fmt.Errorf("account %s at version %d, expected %d: %w",
			id, account.Version, expectedVersion, apperr.ErrVersionConflict)
	}

	account.Balance = balance
	account.Version++
	account.UpdatedAt = r.now()
	r.accounts[id] = account

	return account, nil
}
