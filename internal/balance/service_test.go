//go:build unit

package balance

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/apperr"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/money"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/redis"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T, svc *Service, balance string) Account {
	t.Helper()

	account, err := svc.OpenAccount(context.Background(), OpenAccountInput{
		CustomerID:     "CUST-1",
		BranchID:       10,
		Type:           "SAVINGS",
		OpeningBalance: money.MustParse(balance),
	})
	require.NoError(t, err)

	return account
}

func TestOpenAccount(t *testing.T) {
	t.Parallel()

	svc := NewService(NewMemoryRepository(), Config{})

	account := open(t, svc, "500.00")
	assert.Equal(t, StatusActive, account.Status)
	assert.Equal(t, int64(0), account.Version)
	assert.Equal(t, byte(7), account.ID[6]>>4, "uuid v7")

	tests := []struct {
		name  string
		in    OpenAccountInput
		field string
	}{
		{"missing customer", OpenAccountInput{Type: "SAVINGS"}, "customer_id"},
		{"missing type", OpenAccountInput{CustomerID: "C"}, "account_type"},
		{"negative balance", OpenAccountInput{CustomerID: "C", Type: "SAVINGS", OpeningBalance: decimal.NewFromInt(-1)}, "opening_balance"},
		{"three decimals", OpenAccountInput{CustomerID: "C", Type: "SAVINGS", OpeningBalance: decimal.RequireFromString("1.005")}, "opening_balance"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := svc.OpenAccount(context.Background(), tt.in)

			var de apperr.DomainError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.field, de.Field)
		})
	}
}

func TestAdjustBalance(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := NewService(NewMemoryRepository(), Config{})
	account := open(t, svc, "500.00")

	updated, err := svc.AdjustBalance(ctx, account.ID, money.MustParse("-200.00"))
	require.NoError(t, err)
	assert.True(t, updated.Balance.Equal(money.MustParse("300")))
	assert.Equal(t, int64(1), updated.Version)

	updated, err = svc.AdjustBalance(ctx, account.ID, money.MustParse("50.25"))
	require.NoError(t, err)
	assert.Equal(t, "350.25", updated.Balance.StringFixed(2))

	_, err = svc.AdjustBalance(ctx, account.ID, money.MustParse("-600"))
	assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)

	_, err = svc.AdjustBalance(ctx, uuid.Must(uuid.NewV7()), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, apperr.ErrAccountNotFound)

	_, err = svc.AdjustBalance(ctx, account.ID, decimal.Zero)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	got, err := svc.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "350.25", got.Balance.StringFixed(2))
	assert.Equal(t, int64(2), got.Version)
}

func TestAdjustBalanceRejectsInactiveAccount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMemoryRepository()
	svc := NewService(repo, Config{})
	account := open(t, svc, "100")

	repo.mu.Lock()
	frozen := repo.accounts[account.ID]
	frozen.Status = StatusFrozen
	repo.accounts[account.ID] = frozen
	repo.mu.Unlock()

	_, err := svc.AdjustBalance(ctx, account.ID, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, apperr.ErrAccountInactive)
}

// conflictingRepository loses the first n compare-and-swaps.
type conflictingRepository struct {
	*MemoryRepository
	remaining atomic.Int32
}

func (r *conflictingRepository) CompareAndSwap(ctx context.Context, id uuid.UUID, v int64, b decimal.Decimal) (Account, error) {
	if r.remaining.Add(-1) >= 0 {
		return Account{}, apperr.ErrVersionConflict
	}

	return r.MemoryRepository.CompareAndSwap(ctx, id, v, b)
}

func TestAdjustBalanceRetriesVersionConflicts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := &conflictingRepository{MemoryRepository: NewMemoryRepository()}
	svc := NewService(repo, Config{CASMaxRetries: 3, CASBaseBackoff: 1})
	account := open(t, svc, "10")

	repo.remaining.Store(3)
	updated, err := svc.AdjustBalance(ctx, account.ID, decimal.NewFromInt(-1))
	require.NoError(t, err)
	assert.Equal(t, "9.00", updated.Balance.StringFixed(2))

	repo.remaining.Store(10)
	_, err = svc.AdjustBalance(ctx, account.ID, decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, apperr.ErrVersionConflict)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	t.Parallel()

	for name, locker := range map[string]redis.Locker{
		"cas only":     nil,
		"local locker": redis.NewLocalLocker(),
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			svc := NewService(NewMemoryRepository(), Config{Locker: locker, CASMaxRetries: 50, CASBaseBackoff: 1})
			account := open(t, svc, "100.00")

			const workers = 16

			var (
				wg        sync.WaitGroup
				succeeded atomic.Int32
			)

			for range workers {
				wg.Add(1)

				go func() {
					defer wg.Done()

					_, err := svc.AdjustBalance(ctx, account.ID, money.MustParse("-100.00"))
					switch {
					case err == nil:
						succeeded.Add(1)
					case errors.Is(err, apperr.ErrInsufficientFunds), errors.Is(err, apperr.ErrVersionConflict):
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}

			wg.Wait()

			assert.Equal(t, int32(1), succeeded.Load())

			final, err := svc.GetAccount(ctx, account.ID)
			require.NoError(t, err)
			assert.True(t, final.Balance.IsZero())
		})
	}
}
