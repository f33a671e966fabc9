//go:build unit

package fraud

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/apperr"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/httpx"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/money"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckStoresPendingAlert(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService(store)

	alert, err := svc.Check(ctx, CheckInput{
		TransactionID: "TXN-1",
		AccountID:     "ACC-1",
		BranchID:      10,
		Amount:        money.MustParse("1500000"),
		Channel:       ChannelUPI,
	})
	require.NoError(t, err)
	assert.Equal(t, 98, alert.RiskScore)
	assert.True(t, alert.FraudFlag)
	assert.Equal(t, ResolutionPending, alert.ResolutionStatus)

	stored, err := svc.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, alert, stored)
}

func TestCheckValidates(t *testing.T) {
	t.Parallel()

	svc := NewService(NewMemoryStore())

	tests := []struct {
		name  string
		in    CheckInput
		field string
	}{
		{"missing transaction", CheckInput{Amount: money.MustParse("1"), Channel: ChannelUPI}, "transaction_id"},
		{"zero amount", CheckInput{TransactionID: "T", Channel: ChannelUPI}, "amount"},
		{"missing channel", CheckInput{TransactionID: "T", Amount: money.MustParse("1")}, "channel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := svc.Check(context.Background(), tt.in)
			require.ErrorIs(t, err, apperr.ErrValidation)

			var de apperr.DomainError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.field, de.Field)
		})
	}
}

type failingStore struct {
	*MemoryStore
}

func (failingStore) Save(context.Context, Alert) error { return errors.New("disk full") }

func TestCheckSurfacesPersistenceFailure(t *testing.T) {
	t.Parallel()

	svc := NewService(failingStore{NewMemoryStore()})

	_, err := svc.Check(context.Background(), CheckInput{TransactionID: "T", Amount: money.MustParse("10"), Channel: ChannelATM})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestAttachFeedback(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := NewService(NewMemoryStore())

	alert, err := svc.Check(ctx, CheckInput{TransactionID: "T", Amount: money.MustParse("60000"), Channel: ChannelATM})
	require.NoError(t, err)

	feedbackDate := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	resolved, err := svc.AttachFeedback(ctx, alert.ID, FeedbackInput{FeedbackType: "FALSE_POSITIVE", FeedbackDate: feedbackDate})
	require.NoError(t, err)
	assert.Equal(t, ResolutionResolved, resolved.ResolutionStatus)
	assert.Equal(t, "FALSE_POSITIVE", resolved.FeedbackType)
	require.NotNil(t, resolved.FeedbackDate)
	assert.True(t, feedbackDate.Equal(*resolved.FeedbackDate))
	require.NotNil(t, resolved.ResolvedAt)

	_, err = svc.AttachFeedback(ctx, uuid.Must(uuid.NewV7()), FeedbackInput{FeedbackType: "FRAUD", FeedbackDate: feedbackDate})
	assert.ErrorIs(t, err, apperr.ErrAlertNotFound)

	_, err = svc.AttachFeedback(ctx, alert.ID, FeedbackInput{FeedbackDate: feedbackDate})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

type checkerFunc func(ctx context.Context, in CheckInput) (Alert, error)

func (f checkerFunc) Check(ctx context.Context, in CheckInput) (Alert, error) { return f(ctx, in) }

func TestDispatcherSwallowsFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	d := NewDispatcher(checkerFunc(func(_ context.Context, in CheckInput) (Alert, error) {
		calls.Add(1)

		switch in.TransactionID {
		case "panic":
			panic("scorer exploded")
		case "error":
			return Alert{}, errors.New("store down")
		}

		return Alert{}, nil
	}), time.Second, log.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, id := range []string{"ok", "error", "panic"} {
		d.Notify(ctx, CheckInput{TransactionID: id})
	}

	d.Wait()
	assert.Equal(t, int32(3), calls.Load())
}

func TestDispatcherBoundsEachCheck(t *testing.T) {
	t.Parallel()

	deadlines := make(chan bool, 1)

	d := NewDispatcher(checkerFunc(func(ctx context.Context, _ CheckInput) (Alert, error) {
		<-ctx.Done()
		_, ok := ctx.Deadline()
		deadlines <- ok

		return Alert{}, ctx.Err()
	}), 20*time.Millisecond, nil)

	start := time.Now()
	d.Notify(context.Background(), CheckInput{TransactionID: "slow"})
	d.Wait()

	assert.True(t, <-deadlines)
	assert.Less(t, time.Since(start), time.Second)
}

func newApp(svc *Service) *fiber.App {
	app := httpx.NewApp(httpx.AppConfig{Name: "fraud-test", Logger: log.NewNop()})
	NewHandler(svc).Register(app)

	return app
}

func TestHandlerRoutes(t *testing.T) {
	t.Parallel()

	app := newApp(NewService(NewMemoryStore()))

	req := httptest.NewRequest(http.MethodPost, "/v1/fraud/check",
		strings.NewReader(`{"transaction_id":"TXN-9","account_id":"A","branch_id":10,"amount":"60000","channel":"ATM"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var alert Alert
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&alert))
	assert.Equal(t, "ATM_HIGH_WITHDRAWAL", alert.Anomaly)

	req = httptest.NewRequest(http.MethodPost, "/v1/fraud/alerts/"+alert.ID.String()+"/feedback",
		strings.NewReader(`{"feedback_type":"CONFIRMED_FRAUD","feedback_date":"2026-03-02T10:00:00Z"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/v1/fraud/alerts/"+alert.ID.String(), nil))
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&alert))
	assert.Equal(t, ResolutionResolved, alert.ResolutionStatus)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/v1/fraud/alerts/"+uuid.NewString(), nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/v1/fraud/alerts/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClientFeedsDispatcher(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	app := newApp(NewService(store))
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	client := NewClient(httpx.NewClient("fraud", "http://"+ln.Addr().String(), 2*time.Second, nil))

	d := NewDispatcher(client, 2*time.Second, log.NewNop())
	d.Notify(context.Background(), CheckInput{TransactionID: "TXN-R", Amount: money.MustParse("10"), Channel: "SYSTEM"})
	d.Wait()

	assert.Equal(t, 1, store.Len())
}
