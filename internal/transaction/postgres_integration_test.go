//go:build integration

package transaction_test

import (
	"context"
	"testing"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/apperr"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/balance"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/ledger"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/money"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/postgres/postgrestest"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/transaction"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_PostgresSaga(t *testing.T) {
	client := postgrestest.Start(t)
	db, err := client.DB()
	require.NoError(t, err)

	ctx := context.Background()
	balances := balance.NewService(balance.NewPostgresRepository(db), balance.Config{})
	recorder := ledger.NewService(ledger.NewPostgresRepository(db))
	repo := transaction.NewPostgresRepository(db)

	orch := transaction.NewOrchestrator(repo, balances, recorder, nil, transaction.Config{
		SettlementAccount: uuid.MustParse("00000000-0000-7000-8000-000000000001"),
	})

	a, err := balances.OpenAccount(ctx, balance.OpenAccountInput{CustomerID: "A", BranchID: 1, Type: "SAVINGS", OpeningBalance: money.MustParse("500")})
	require.NoError(t, err)
	b, err := balances.OpenAccount(ctx, balance.OpenAccountInput{CustomerID: "B", BranchID: 2, Type: "CURRENT"})
	require.NoError(t, err)

	tx, err := orch.Transfer(ctx, transaction.TransferInput{FromAccountID: a.ID, ToAccountID: b.ID, Amount: money.MustParse("125.25"), IdempotencyKey: "pg-1"})
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCompleted, tx.Status)

	stored, err := orch.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCompleted, stored.Status)
	require.NotNil(t, stored.CounterpartyAccountID)
	assert.Equal(t, b.ID, *stored.CounterpartyAccountID)

	entries, err := recorder.ListByReference(ctx, tx.ID.String())
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	failed, err := orch.Debit(ctx, transaction.DebitInput{AccountID: a.ID, Amount: money.MustParse("600"), IdempotencyKey: "pg-2"})
	require.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	assert.Equal(t, transaction.StatusFailed, failed.Status)

	replayed, err := orch.Debit(ctx, transaction.DebitInput{AccountID: a.ID, Amount: money.MustParse("600"), IdempotencyKey: "pg-2"})
	require.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	assert.Equal(t, failed.ID, replayed.ID)

	_, err = repo.UpdateStatus(ctx, failed.ID, transaction.StatusCompleted, "")
	assert.ErrorIs(t, err, transaction.ErrNotInitiated)

	_, err = orch.Get(ctx, uuid.Must(uuid.NewV7()))
	assert.ErrorIs(t, err, apperr.ErrTransactionNotFound)

	account, err := balances.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "374.75", account.Balance.StringFixed(2))
}
