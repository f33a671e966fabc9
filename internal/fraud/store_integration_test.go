//go:build integration

package fraud_test

import (
	"context"
	"testing"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/apperr"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/fraud"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/money"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/mongo"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/postgres/postgrestest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func exerciseStore(t *testing.T, store fraud.Store) {
	t.Helper()

	ctx := context.Background()
	svc := fraud.NewService(store)

	alert, err := svc.Check(ctx, fraud.CheckInput{
		TransactionID: "TXN-INT",
		AccountID:     "ACC-INT",
		BranchID:      120,
		Amount:        money.MustParse("210000.55"),
		Channel:       "NEFT",
	})
	require.NoError(t, err)
	assert.Equal(t, "BRANCH_DISTANCE_RISK", alert.Anomaly)

	got, err := svc.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, alert.ID, got.ID)
	assert.Equal(t, "210000.55", got.Amount.StringFixed(2))
	assert.Equal(t, fraud.ResolutionPending, got.ResolutionStatus)
	assert.Nil(t, got.ResolvedAt)

	resolved, err := svc.AttachFeedback(ctx, alert.ID, fraud.FeedbackInput{
		FeedbackType: "CONFIRMED_FRAUD",
		FeedbackDate: time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, fraud.ResolutionResolved, resolved.ResolutionStatus)
	require.NotNil(t, resolved.ResolvedAt)

	_, err = svc.GetAlert(ctx, uuid.Must(uuid.NewV7()))
	assert.ErrorIs(t, err, apperr.ErrAlertNotFound)

	_, err = svc.AttachFeedback(ctx, uuid.Must(uuid.NewV7()), fraud.FeedbackInput{FeedbackType: "X", FeedbackDate: time.Now()})
	assert.ErrorIs(t, err, apperr.ErrAlertNotFound)
}

func TestIntegration_PostgresStore(t *testing.T) {
	client := postgrestest.Start(t)
	db, err := client.DB()
	require.NoError(t, err)

	exerciseStore(t, fraud.NewPostgresStore(db))
}

func TestIntegration_MongoStore(t *testing.T) {
	ctx := context.Background()

	container, err := tcmongo.Run(ctx, "mongo:7")
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, container.Terminate(context.Background())) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, mongo.Config{URI: uri, Database: "corebank", Logger: log.NewNop()})
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close(context.Background()) })

	require.NoError(t, client.EnsureIndexes(ctx, fraud.AlertsCollection, fraud.Indexes()...))

	coll, err := client.Collection(fraud.AlertsCollection)
	require.NoError(t, err)

	exerciseStore(t, fraud.NewMongoStore(coll))
}
