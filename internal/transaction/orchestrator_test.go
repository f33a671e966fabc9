//go:build unit

package transaction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/apperr"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/balance"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/fraud"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/ledger"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var settlementID = uuid.MustParse("00000000-0000-7000-8000-000000000001")

// faultyBalances wraps a real Balance Authority and fails chosen adjustments.
type faultyBalances struct {
	*balance.Service

	mu sync.Mutex
	// failCredit fails positive adjustments on these accounts.
	failCredit map[uuid.UUID]error
	// beforeAdjust runs ahead of every adjustment.
	beforeAdjust func()
	adjustments  int
}

func (f *faultyBalances) AdjustBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (balance.Account, error) {
	f.mu.Lock()
	f.adjustments++
	hook := f.beforeAdjust
	err, fail := f.failCredit[id]
	f.mu.Unlock()

	if hook != nil {
		hook()
	}

	if fail && delta.IsPositive() {
		return balance.Account{}, err
	}

	return f.Service.AdjustBalance(ctx, id, delta)
}

func (f *faultyBalances) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.adjustments
}

type failingLedger struct {
	err error
}

func (l failingLedger) Record(context.Context, ledger.RecordInput) (ledger.RecordResult, error) {
	return ledger.RecordResult{}, l.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []fraud.CheckInput
}

func (n *recordingNotifier) Notify(_ context.Context, in fraud.CheckInput) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.events = append(n.events, in)
}

func (n *recordingNotifier) all() []fraud.CheckInput {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]fraud.CheckInput(nil), n.events...)
}

type fixture struct {
	balances *faultyBalances
	ledger   *ledger.Service
	notifier *recordingNotifier
	repo     *MemoryRepository
	orch     *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		balances: &faultyBalances{
			Service:    balance.NewService(balance.NewMemoryRepository(), balance.Config{}),
			failCredit: map[uuid.UUID]error{},
		},
		ledger:   ledger.NewService(ledger.NewMemoryRepository()),
		notifier: &recordingNotifier{},
		repo:     NewMemoryRepository(),
	}

	f.orch = NewOrchestrator(f.repo, f.balances, f.ledger, f.notifier, Config{
		SettlementAccount: settlementID,
		BalanceTimeout:    time.Second,
		LedgerTimeout:     time.Second,
	})

	return f
}

func (f *fixture) open(t *testing.T, opening string, branch int) balance.Account {
	t.Helper()

	account, err := f.balances.OpenAccount(context.Background(), balance.OpenAccountInput{
		CustomerID:     "CUST-" + opening,
		BranchID:       branch,
		Type:           "SAVINGS",
		OpeningBalance: money.MustParse(opening),
	})
	require.NoError(t, err)

	return account
}

func (f *fixture) balanceOf(t *testing.T, id uuid.UUID) string {
	t.Helper()

	account, err := f.balances.GetAccount(context.Background(), id)
	require.NoError(t, err)

	return account.Balance.StringFixed(2)
}

func TestTransferConservesMoney(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a := f.open(t, "1000", 12)
	b := f.open(t, "200", 40)

	tx, err := f.orch.Transfer(context.Background(), TransferInput{
		FromAccountID: a.ID, ToAccountID: b.ID, Amount: money.MustParse("300"), Channel: "UPI",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, tx.Status)
	assert.Equal(t, KindTransfer, tx.Kind)
	assert.Equal(t, 12, tx.BranchID)
	require.NotNil(t, tx.CounterpartyAccountID)
	assert.Equal(t, b.ID, *tx.CounterpartyAccountID)

	assert.Equal(t, "700.00", f.balanceOf(t, a.ID))
	assert.Equal(t, "500.00", f.balanceOf(t, b.ID))

	entries, err := f.ledger.ListByReference(context.Background(), tx.ID.String())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, a.ID, entries[0].AccountID)
	assert.Equal(t, ledger.EntryDebit, entries[0].EntryType)
	assert.Equal(t, b.ID, entries[1].AccountID)

	events := f.notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, tx.ID.String(), events[0].TransactionID)
	assert.Equal(t, 12, events[0].BranchID)
	assert.Equal(t, "UPI", events[0].Channel)
}

func TestTransferCompensatesFailedCredit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a := f.open(t, "1000", 1)
	b := f.open(t, "0", 1)
	f.balances.failCredit[b.ID] = errors.New("receiver bank offline")

	tx, err := f.orch.Transfer(context.Background(), TransferInput{
		FromAccountID: a.ID, ToAccountID: b.ID, Amount: money.MustParse("250"), IdempotencyKey: "comp-1",
	})
	require.ErrorIs(t, err, apperr.ErrCompensated)
	require.NotNil(t, tx)
	assert.Equal(t, StatusReversed, tx.Status)
	assert.Equal(t, "1000.00", f.balanceOf(t, a.ID))
	assert.Equal(t, "0.00", f.balanceOf(t, b.ID))

	entries, err := f.ledger.ListByReference(context.Background(), tx.ID.String())
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, f.notifier.all())

	stored, err := f.orch.GetByIdempotencyKey(context.Background(), "comp-1")
	require.NoError(t, err)
	assert.Equal(t, StatusReversed, stored.Status)
}

func TestTransferReversalFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a := f.open(t, "1000", 1)
	b := f.open(t, "0", 1)
	f.balances.failCredit[a.ID] = errors.New("sender locked")
	f.balances.failCredit[b.ID] = errors.New("receiver locked")

	tx, err := f.orch.Transfer(context.Background(), TransferInput{
		FromAccountID: a.ID, ToAccountID: b.ID, Amount: money.MustParse("100"),
	})
	require.ErrorIs(t, err, apperr.ErrReversalFailed)
	assert.NotErrorIs(t, err, apperr.ErrCompensated)
	assert.Equal(t, StatusReversalFailed, tx.Status)
	assert.Equal(t, "900.00", f.balanceOf(t, a.ID))
}

func TestTransferPreCheckDoesNotStartSaga(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a := f.open(t, "50", 1)
	b := f.open(t, "0", 1)

	tx, err := f.orch.Transfer(context.Background(), TransferInput{
		FromAccountID: a.ID, ToAccountID: b.ID, Amount: money.MustParse("50.01"), IdempotencyKey: "pre-1",
	})
	require.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	assert.Nil(t, tx)
	assert.Equal(t, 0, f.balances.count())

	_, err = f.orch.GetByIdempotencyKey(context.Background(), "pre-1")
	assert.ErrorIs(t, err, apperr.ErrTransactionNotFound)
}

func TestTransferValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a := f.open(t, "10", 1)

	tests := []struct {
		name  string
		in    TransferInput
		field string
	}{
		{"same account", TransferInput{FromAccountID: a.ID, ToAccountID: a.ID, Amount: money.MustParse("1")}, "to_account_id"},
		{"zero amount", TransferInput{FromAccountID: a.ID, ToAccountID: uuid.Must(uuid.NewV7())}, "amount"},
		{"negative amount", TransferInput{FromAccountID: a.ID, ToAccountID: uuid.Must(uuid.NewV7()), Amount: money.MustParse("-5")}, "amount"},
		{"missing sender", TransferInput{ToAccountID: a.ID, Amount: money.MustParse("1")}, "from_account_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := f.orch.Transfer(context.Background(), tt.in)
			require.ErrorIs(t, err, apperr.ErrValidation)

			var de apperr.DomainError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.field, de.Field)
		})
	}
}

func TestFailedDebitLeavesBalanceUnchanged(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a := f.open(t, "500", 1)

	tx, err := f.orch.Debit(context.Background(), DebitInput{AccountID: a.ID, Amount: money.MustParse("600"), IdempotencyKey: "fail-1"})
	require.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	require.NotNil(t, tx)
	assert.Equal(t, StatusFailed, tx.Status)
	assert.Equal(t, "500.00", f.balanceOf(t, a.ID))

	adjustments := f.balances.count()

	replayed, err := f.orch.Debit(context.Background(), DebitInput{AccountID: a.ID, Amount: money.MustParse("600"), IdempotencyKey: "fail-1"})
	require.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	assert.Equal(t, tx.ID, replayed.ID)
	assert.Equal(t, adjustments, f.balances.count())
}

func TestDebitAndCreditPostAgainstSettlement(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	a := f.open(t, "100", 3)

	debit, err := f.orch.Debit(ctx, DebitInput{AccountID: a.ID, Amount: money.MustParse("40")})
	require.NoError(t, err)
	assert.Equal(t, DefaultChannel, debit.Channel)
	assert.Equal(t, debit.ID.String(), debit.IdempotencyKey)

	credit, err := f.orch.Credit(ctx, CreditInput{AccountID: a.ID, Amount: money.MustParse("15.50"), Channel: "ATM"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, credit.Status)
	assert.Equal(t, "75.50", f.balanceOf(t, a.ID))

	entries, err := f.ledger.ListByReference(ctx, debit.ID.String())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, a.ID, entries[0].AccountID)
	assert.Equal(t, settlementID, entries[1].AccountID)

	entries, err = f.ledger.ListByReference(ctx, credit.ID.String())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, settlementID, entries[0].AccountID)
	assert.Equal(t, a.ID, entries[1].AccountID)

	events := f.notifier.all()
	require.Len(t, events, 2)
	assert.Equal(t, DefaultChannel, events[0].Channel)
}

func TestIdempotentRetryDoesNotMoveMoneyTwice(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	a := f.open(t, "100", 1)

	first, err := f.orch.Debit(ctx, DebitInput{AccountID: a.ID, Amount: money.MustParse("30"), IdempotencyKey: "emi:abc"})
	require.NoError(t, err)

	second, err := f.orch.Debit(ctx, DebitInput{AccountID: a.ID, Amount: money.MustParse("30"), IdempotencyKey: "emi:abc"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "70.00", f.balanceOf(t, a.ID))
}

func TestConcurrentRetriesExecuteOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	a := f.open(t, "100", 1)

	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := f.orch.Debit(ctx, DebitInput{AccountID: a.ID, Amount: money.MustParse("10"), IdempotencyKey: "dup"})
			if err != nil {
				assert.ErrorIs(t, err, apperr.ErrTransactionInProgress)
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, "90.00", f.balanceOf(t, a.ID))
}

func TestInitiatedKeyIsInProgress(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	a := f.open(t, "100", 1)

	require.NoError(t, f.repo.Create(ctx, Transaction{
		ID: uuid.Must(uuid.NewV7()), IdempotencyKey: "busy", AccountID: a.ID,
		Amount: money.MustParse("5"), Kind: KindDebit, Channel: DefaultChannel, Status: StatusInitiated,
	}))

	_, err := f.orch.Debit(ctx, DebitInput{AccountID: a.ID, Amount: money.MustParse("5"), IdempotencyKey: "busy"})
	require.ErrorIs(t, err, apperr.ErrTransactionInProgress)
	assert.Equal(t, "100.00", f.balanceOf(t, a.ID))
}

func TestLedgerFailureIsFatal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	a := f.open(t, "100", 1)

	orch := NewOrchestrator(f.repo, f.balances, failingLedger{err: errors.New("ledger db down")}, f.notifier,
		Config{SettlementAccount: settlementID})

	tx, err := orch.Debit(ctx, DebitInput{AccountID: a.ID, Amount: money.MustParse("20")})
	require.ErrorIs(t, err, apperr.ErrLedgerInconsistency)
	assert.Equal(t, StatusLedgerFailed, tx.Status)
	assert.Equal(t, "80.00", f.balanceOf(t, a.ID))
	assert.Empty(t, f.notifier.all())

	_, err = orch.Debit(ctx, DebitInput{AccountID: a.ID, Amount: money.MustParse("20"), IdempotencyKey: tx.IdempotencyKey})
	assert.ErrorIs(t, err, apperr.ErrLedgerInconsistency)
	assert.Equal(t, "80.00", f.balanceOf(t, a.ID))
}

func TestSagaSurvivesCallerCancellation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a := f.open(t, "100", 1)
	b := f.open(t, "0", 1)

	ctx, cancel := context.WithCancel(context.Background())
	f.balances.beforeAdjust = cancel

	tx, err := f.orch.Transfer(ctx, TransferInput{FromAccountID: a.ID, ToAccountID: b.ID, Amount: money.MustParse("10")})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, tx.Status)
	assert.Equal(t, "10.00", f.balanceOf(t, b.ID))
}

func TestUnknownAccount(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	tx, err := f.orch.Credit(context.Background(), CreditInput{AccountID: uuid.Must(uuid.NewV7()), Amount: money.MustParse("1")})
	require.ErrorIs(t, err, apperr.ErrAccountNotFound)
	assert.Nil(t, tx)
}

func TestOutcomeErrorForUncataloguedFailure(t *testing.T) {
	t.Parallel()

	err := outcomeError(Transaction{Status: StatusFailed, FailureReason: "0500: boom"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	err = outcomeError(Transaction{Status: StatusFailed, FailureReason: failureReason(apperr.ErrAccountInactive)})
	assert.ErrorIs(t, err, apperr.ErrAccountInactive)
}

func TestSettlementAccountCannotBeMoved(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	_, err := f.balances.OpenAccount(ctx, balance.OpenAccountInput{
		ID:             settlementID,
		CustomerID:     settlementCustomer,
		Type:           "SETTLEMENT",
		OpeningBalance: money.MustParse("1000"),
	})
	require.NoError(t, err)

	tx, err := f.orch.Debit(ctx, DebitInput{AccountID: settlementID, Amount: money.MustParse("10"), IdempotencyKey: "settle-debit"})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Nil(t, tx)

	tx, err = f.orch.Credit(ctx, CreditInput{AccountID: settlementID, Amount: money.MustParse("10"), IdempotencyKey: "settle-credit"})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Nil(t, tx)

	assert.Equal(t, "1000.00", f.balanceOf(t, settlementID))
	assert.Zero(t, f.balances.count())

	for _, key := range []string{"settle-debit", "settle-credit"} {
		_, err := f.repo.FindByIdempotencyKey(ctx, key)
		assert.ErrorIs(t, err, apperr.ErrTransactionNotFound)
	}
}

func TestReusedKeyWithDifferentPayload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	a := f.open(t, "100", 1)
	b := f.open(t, "50", 1)

	first, err := f.orch.Debit(ctx, DebitInput{AccountID: a.ID, Amount: money.MustParse("30"), IdempotencyKey: "reused"})
	require.NoError(t, err)

	tests := []struct {
		name string
		run  func() (*Transaction, error)
	}{
		{
			name: "different kind",
			run: func() (*Transaction, error) {
				return f.orch.Credit(ctx, CreditInput{AccountID: a.ID, Amount: money.MustParse("30"), IdempotencyKey: "reused"})
			},
		},
		{
			name: "different account",
			run: func() (*Transaction, error) {
				return f.orch.Debit(ctx, DebitInput{AccountID: b.ID, Amount: money.MustParse("30"), IdempotencyKey: "reused"})
			},
		},
		{
			name: "different amount",
			run: func() (*Transaction, error) {
				return f.orch.Debit(ctx, DebitInput{AccountID: a.ID, Amount: money.MustParse("31"), IdempotencyKey: "reused"})
			},
		},
		{
			name: "transfer",
			run: func() (*Transaction, error) {
				return f.orch.Transfer(ctx, TransferInput{FromAccountID: a.ID, ToAccountID: b.ID, Amount: money.MustParse("30"), IdempotencyKey: "reused"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := tt.run()
			require.ErrorIs(t, err, apperr.ErrValidation)
			assert.Nil(t, tx)
		})
	}

	assert.Equal(t, "70.00", f.balanceOf(t, a.ID))
	assert.Equal(t, "50.00", f.balanceOf(t, b.ID))

	stored, err := f.repo.FindByIdempotencyKey(ctx, "reused")
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID)
	assert.Equal(t, StatusCompleted, stored.Status)
}

// hangingBalances blocks every adjustment until its context ends.
type hangingBalances struct {
	*balance.Service
}

func (hangingBalances) AdjustBalance(ctx context.Context, _ uuid.UUID, _ decimal.Decimal) (balance.Account, error) {
	<-ctx.Done()

	return balance.Account{}, ctx.Err()
}

// hangingLedger blocks every record until its context ends.
type hangingLedger struct{}

func (hangingLedger) Record(ctx context.Context, _ ledger.RecordInput) (ledger.RecordResult, error) {
	<-ctx.Done()

	return ledger.RecordResult{}, ctx.Err()
}

func TestStepTimeouts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		hangBalance bool
		hangLedger  bool
		wantStatus  Status
		wantErr     error
		wantBalance string
	}{
		{
			name:        "balance adjustment",
			hangBalance: true,
			wantStatus:  StatusFailed,
			wantErr:     apperr.ErrDownstreamUnavailable,
			wantBalance: "100.00",
		},
		{
			name:        "ledger record",
			hangLedger:  true,
			wantStatus:  StatusLedgerFailed,
			wantErr:     apperr.ErrLedgerInconsistency,
			wantBalance: "80.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			f := newFixture(t)
			a := f.open(t, "100", 1)

			var (
				authority BalanceAuthority = f.balances
				recorder  LedgerRecorder   = f.ledger
			)

			if tt.hangBalance {
				authority = hangingBalances{Service: f.balances.Service}
			}

			if tt.hangLedger {
				recorder = hangingLedger{}
			}

			orch := NewOrchestrator(f.repo, authority, recorder, f.notifier, Config{
				SettlementAccount: settlementID,
				BalanceTimeout:    50 * time.Millisecond,
				LedgerTimeout:     50 * time.Millisecond,
			})

			started := time.Now()

			tx, err := orch.Debit(ctx, DebitInput{AccountID: a.ID, Amount: money.MustParse("20")})
			require.ErrorIs(t, err, tt.wantErr)
			require.NotNil(t, tx)
			assert.Equal(t, tt.wantStatus, tx.Status)
			assert.Less(t, time.Since(started), 2*time.Second)
			assert.Equal(t, tt.wantBalance, f.balanceOf(t, a.ID))
			assert.Empty(t, f.notifier.all())

			stored, err := f.repo.FindByIdempotencyKey(ctx, tx.IdempotencyKey)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, stored.Status)
		})
	}
}
