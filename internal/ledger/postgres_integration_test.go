//go:build integration

package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/ledger"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/money"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/postgres/postgrestest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_PostgresLedgerCollapsesDuplicates(t *testing.T) {
	client := postgrestest.Start(t)
	db, err := client.DB()
	require.NoError(t, err)

	ctx := context.Background()
	svc := ledger.NewService(ledger.NewPostgresRepository(db))

	last, err := svc.GetLast(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	in := ledger.RecordInput{
		ReferenceID: "TXN-PG-1",
		Debit:       ledger.Leg{AccountID: uuid.Must(uuid.NewV7()), CustomerID: "A", BranchID: 1},
		Credit:      ledger.Leg{AccountID: uuid.Must(uuid.NewV7()), CustomerID: "B", BranchID: 2},
		Amount:      money.MustParse("99.99"),
		Narration:   "integration",
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []ledger.RecordResult
	)

	for range 6 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			res, err := svc.Record(ctx, in)
			if !assert.NoError(t, err) {
				return
			}

			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}()
	}

	wg.Wait()

	recorded := 0
	for _, r := range results {
		if r.Status == ledger.StatusRecorded {
			recorded++
		}

		assert.Equal(t, results[0].LedgerID, r.LedgerID)
	}

	assert.Equal(t, 1, recorded)

	entries, err := svc.ListByReference(ctx, "TXN-PG-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "99.99", entries[0].Amount.StringFixed(2))

	last, err = svc.GetLast(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "TXN-PG-1", last.ReferenceID)
}
