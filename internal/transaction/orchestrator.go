package transaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/apperr"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/balance"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/fraud"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/ledger"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/money"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/tracking"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultBalanceTimeout = 5 * time.Second
	defaultLedgerTimeout  = 5 * time.Second

	settlementCustomer = "SYSTEM"
)

// Config wires an Orchestrator.
type Config struct {
	// SettlementAccount is the contra leg posted for single-account debits and credits.
	SettlementAccount uuid.UUID
	BalanceTimeout    time.Duration
	LedgerTimeout     time.Duration
}

// Orchestrator executes money movements as sagas.
type Orchestrator struct {
	repo       Repository
	balances   BalanceAuthority
	ledger     LedgerRecorder
	fraud      FraudNotifier
	settlement uuid.UUID

	balanceTimeout time.Duration
	ledgerTimeout  time.Duration
	now            func() time.Time
}

// NewOrchestrator returns an Orchestrator. notifier may be nil, in which case
// completed movements are not scored.
func NewOrchestrator(repo Repository, balances BalanceAuthority, recorder LedgerRecorder, notifier FraudNotifier, cfg Config) *Orchestrator {
	if cfg.BalanceTimeout <= 0 {
		cfg.BalanceTimeout = defaultBalanceTimeout
	}

	if cfg.LedgerTimeout <= 0 {
		cfg.LedgerTimeout = defaultLedgerTimeout
	}

	return &Orchestrator{
		repo:           repo,
		balances:       balances,
		ledger:         recorder,
		fraud:          notifier,
		settlement:     cfg.SettlementAccount,
		balanceTimeout: cfg.BalanceTimeout,
		ledgerTimeout:  cfg.LedgerTimeout,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Debit withdraws money from one account. The ledger posts the account as
// DEBIT and the settlement account as CREDIT.
func (o *Orchestrator) Debit(ctx context.Context, in DebitInput) (*Transaction, error) {
	_, tracer, _, _ := tracking.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "orchestrator.debit")
	defer span.End()

	if err := validateMovement(in.AccountID, "account_id", in.Amount); err != nil {
		return nil, err
	}

	return o.single(ctx, span, KindDebit, in.AccountID, in.Amount, in.Channel, in.IdempotencyKey)
}

// Credit deposits money into one account. The ledger posts the settlement
// account as DEBIT and the account as CREDIT.
func (o *Orchestrator) Credit(ctx context.Context, in CreditInput) (*Transaction, error) {
	_, tracer, _, _ := tracking.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "orchestrator.credit")
	defer span.End()

	if err := validateMovement(in.AccountID, "account_id", in.Amount); err != nil {
		return nil, err
	}

	return o.single(ctx, span, KindCredit, in.AccountID, in.Amount, in.Channel, in.IdempotencyKey)
}

func (o *Orchestrator) single(ctx context.Context, span trace.Span, kind Kind, accountID uuid.UUID,
	amount decimal.Decimal, channel, key string,
) (*Transaction, error) {
	logger, _, _, _ := tracking.NewTrackingFromContext(ctx)
	start := time.Now()

	// The settlement account is the contra leg, so it cannot also be the customer leg.
	if accountID == o.settlement {
		return nil, apperr.Validation("account_id", "account_id must not be the settlement account")
	}

	tx := o.newTransaction(kind, accountID, amount, channel, key)

	span.SetAttributes(
		attribute.String("transaction_id", tx.ID.String()),
		attribute.String("idempotency_key", tx.IdempotencyKey),
		attribute.String("account_id", accountID.String()),
	)

	if prior, ok, err := o.replay(ctx, &tx); ok {
		return prior, err
	}

	account, err := o.getAccount(ctx, accountID)
	if err != nil {
		tracking.HandleSpanBusinessErrorEvent(span, "failed to resolve account", err)

		return nil, err
	}

	tx.CustomerID = account.CustomerID
	tx.BranchID = account.BranchID

	if prior, ok, err := o.claim(ctx, &tx); ok {
		return prior, err
	}

	// From here on the saga must reach a terminal state whatever the caller does.
	ctx = tracking.Detach(ctx)

	delta := amount
	if kind == KindDebit {
		delta = amount.Neg()
	}

	if _, err := o.adjust(ctx, accountID, delta); err != nil {
		tracking.HandleSpanBusinessErrorEvent(span, "balance adjustment failed", err)
		logger.Log(ctx, log.LevelWarn, "transaction failed",
			log.String("transaction_id", tx.ID.String()), log.Err(err))

		return o.finish(ctx, &tx, StatusFailed, failureReason(err), start), err
	}

	customer := ledger.Leg{AccountID: accountID, CustomerID: account.CustomerID, BranchID: account.BranchID}
	settlement := ledger.Leg{AccountID: o.settlement, CustomerID: settlementCustomer}

	record := ledger.RecordInput{ReferenceID: tx.ID.String(), Amount: tx.Amount, Narration: narration(tx)}
	if kind == KindDebit {
		record.Debit, record.Credit = customer, settlement
	} else {
		record.Debit, record.Credit = settlement, customer
	}

	if err := o.record(ctx, record); err != nil {
		return o.ledgerFailed(ctx, span, &tx, err, start)
	}

	o.finish(ctx, &tx, StatusCompleted, "", start)
	o.notify(ctx, tx)

	return &tx, nil
}

// Transfer moves money between two accounts. When the credit leg fails the
// sender is credited back once: success leaves the transaction REVERSED with
// ErrCompensated, failure leaves it REVERSAL_FAILED with ErrReversalFailed.
func (o *Orchestrator) Transfer(ctx context.Context, in TransferInput) (*Transaction, error) {
	logger, tracer, _, metrics := tracking.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "orchestrator.transfer")
	defer span.End()

	start := time.Now()

	if err := validateMovement(in.FromAccountID, "from_account_id", in.Amount); err != nil {
		return nil, err
	}

	if in.ToAccountID == uuid.Nil {
		return nil, apperr.Validation("to_account_id", "to_account_id is required")
	}

	if in.FromAccountID == in.ToAccountID {
		return nil, apperr.Validation("to_account_id", "sender and receiver must differ")
	}

	tx := o.newTransaction(KindTransfer, in.FromAccountID, in.Amount, in.Channel, in.IdempotencyKey)
	receiverID := in.ToAccountID
	tx.CounterpartyAccountID = &receiverID

	span.SetAttributes(
		attribute.String("transaction_id", tx.ID.String()),
		attribute.String("idempotency_key", tx.IdempotencyKey),
		attribute.String("from_account_id", in.FromAccountID.String()),
		attribute.String("to_account_id", in.ToAccountID.String()),
	)

	if prior, ok, err := o.replay(ctx, &tx); ok {
		return prior, err
	}

	sender, err := o.getAccount(ctx, in.FromAccountID)
	if err != nil {
		tracking.HandleSpanBusinessErrorEvent(span, "failed to resolve sender", err)

		return nil, err
	}

	receiver, err := o.getAccount(ctx, in.ToAccountID)
	if err != nil {
		tracking.HandleSpanBusinessErrorEvent(span, "failed to resolve receiver", err)

		return nil, err
	}

	if sender.Balance.LessThan(tx.Amount) {
		err := fmt.Errorf("account %s: %w", sender.ID, apperr.ErrInsufficientFunds)
		tracking.HandleSpanBusinessErrorEvent(span, "insufficient funds", err)

		return nil, err
	}

	tx.CustomerID = sender.CustomerID
	tx.BranchID = sender.BranchID

	if prior, ok, err := o.claim(ctx, &tx); ok {
		return prior, err
	}

	ctx = tracking.Detach(ctx)

	if _, err := o.adjust(ctx, sender.ID, tx.Amount.Neg()); err != nil {
		tracking.HandleSpanBusinessErrorEvent(span, "sender debit failed", err)
		logger.Log(ctx, log.LevelWarn, "transfer debit failed",
			log.String("transaction_id", tx.ID.String()), log.Err(err))

		return o.finish(ctx, &tx, StatusFailed, failureReason(err), start), err
	}

	if _, creditErr := o.adjust(ctx, receiver.ID, tx.Amount); creditErr != nil {
		logger.Log(ctx, log.LevelWarn, "transfer credit failed, reversing debit",
			log.String("transaction_id", tx.ID.String()), log.Err(creditErr))

		if _, reverseErr := o.adjust(ctx, sender.ID, tx.Amount); reverseErr != nil {
			err := fmt.Errorf("credit failed (%v) and reversal failed (%v): %w", creditErr, reverseErr, apperr.ErrReversalFailed)

			tracking.HandleSpanError(span, "transfer reversal failed", err)
			logger.Log(ctx, log.LevelError, "transfer reversal failed, manual reconciliation required",
				log.String("transaction_id", tx.ID.String()),
				log.String("from_account_id", sender.ID.String()),
				log.String("to_account_id", receiver.ID.String()),
				log.String("amount", tx.Amount.StringFixed(2)),
				log.Err(err),
			)

			_ = metrics.RecordCompensation(ctx, "failed")

			return o.finish(ctx, &tx, StatusReversalFailed, failureReason(err), start), err
		}

		err := fmt.Errorf("credit failed, reversed (%v): %w", creditErr, apperr.ErrCompensated)
		tracking.HandleSpanBusinessErrorEvent(span, "transfer reversed", err)

		_ = metrics.RecordCompensation(ctx, "reversed")

		return o.finish(ctx, &tx, StatusReversed, failureReason(err), start), err
	}

	record := ledger.RecordInput{
		ReferenceID: tx.ID.String(),
		Debit:       ledger.Leg{AccountID: sender.ID, CustomerID: sender.CustomerID, BranchID: sender.BranchID},
		Credit:      ledger.Leg{AccountID: receiver.ID, CustomerID: receiver.CustomerID, BranchID: receiver.BranchID},
		Amount:      tx.Amount,
		Narration:   narration(tx),
	}

	if err := o.record(ctx, record); err != nil {
		return o.ledgerFailed(ctx, span, &tx, err, start)
	}

	o.finish(ctx, &tx, StatusCompleted, "", start)
	o.notify(ctx, tx)

	return &tx, nil
}

// Get returns the transaction with id.
func (o *Orchestrator) Get(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	_, tracer, _, _ := tracking.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "orchestrator.get")
	defer span.End()

	tx, err := o.repo.Find(ctx, id)
	if err != nil {
		tracking.HandleSpanBusinessErrorEvent(span, "failed to get transaction", err)

		return nil, err
	}

	return &tx, nil
}

// GetByIdempotencyKey returns the transaction that claimed key.
func (o *Orchestrator) GetByIdempotencyKey(ctx context.Context, key string) (*Transaction, error) {
	_, tracer, _, _ := tracking.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "orchestrator.get_by_idempotency_key")
	defer span.End()

	tx, err := o.repo.FindByIdempotencyKey(ctx, key)
	if err != nil {
		tracking.HandleSpanBusinessErrorEvent(span, "failed to get transaction", err)

		return nil, err
	}

	return &tx, nil
}

func validateMovement(accountID uuid.UUID, field string, amount decimal.Decimal) error {
	if accountID == uuid.Nil {
		return apperr.Validation(field, field+" is required")
	}

	if err := money.RequirePositive(amount); err != nil {
		return apperr.Validation("amount", err.Error())
	}

	if err := money.CheckScale(amount); err != nil {
		return apperr.Validation("amount", err.Error())
	}

	return nil
}

func (o *Orchestrator) newTransaction(kind Kind, accountID uuid.UUID, amount decimal.Decimal, channel, key string) Transaction {
	id := uuid.Must(uuid.NewV7())

	if strings.TrimSpace(key) == "" {
		key = id.String()
	}

	if strings.TrimSpace(channel) == "" {
		channel = DefaultChannel
	}

	now := o.now()

	return Transaction{
		ID:             id,
		IdempotencyKey: key,
		AccountID:      accountID,
		Amount:         money.Round(amount),
		Kind:           kind,
		Channel:        channel,
		Status:         StatusInitiated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// replay reports ok when tx's key already belongs to a transaction, returning
// that record and the error its outcome maps to. A key reused for a different
// movement is rejected without touching the stored record.
func (o *Orchestrator) replay(ctx context.Context, tx *Transaction) (*Transaction, bool, error) {
	prior, err := o.repo.FindByIdempotencyKey(ctx, tx.IdempotencyKey)
	if errors.Is(err, apperr.ErrTransactionNotFound) {
		return nil, false, nil
	}

	if err != nil {
		return nil, true, fmt.Errorf("idempotency lookup: %w", err)
	}

	logger, _, _, _ := tracking.NewTrackingFromContext(ctx)

	if !samePayload(prior, *tx) {
		logger.Log(ctx, log.LevelWarn, "idempotency key reused with a different payload",
			log.String("idempotency_key", tx.IdempotencyKey),
			log.Stringer("transaction_id", prior.ID),
		)

		return nil, true, apperr.Validation("idempotency_key", "idempotency_key was already used for a different transaction")
	}

	tracking.HandleSpanEvent(trace.SpanFromContext(ctx), "idempotent replay",
		attribute.String("transaction_id", prior.ID.String()),
		attribute.String("status", string(prior.Status)),
	)
	logger.Log(ctx, log.LevelInfo, "idempotent replay",
		log.String("idempotency_key", tx.IdempotencyKey),
		log.Stringer("transaction_id", prior.ID),
		log.String("status", string(prior.Status)),
	)

	return &prior, true, outcomeError(prior)
}

// samePayload reports whether a retry describes the movement stored under its key.
func samePayload(prior, retry Transaction) bool {
	if prior.Kind != retry.Kind || prior.AccountID != retry.AccountID || !prior.Amount.Equal(retry.Amount) {
		return false
	}

	switch {
	case prior.CounterpartyAccountID == nil && retry.CounterpartyAccountID == nil:
		return true
	case prior.CounterpartyAccountID == nil || retry.CounterpartyAccountID == nil:
		return false
	default:
		return *prior.CounterpartyAccountID == *retry.CounterpartyAccountID
	}
}

// claim persists tx as INITIATED. A concurrent claim of the same key loses
// and replays the winner.
func (o *Orchestrator) claim(ctx context.Context, tx *Transaction) (*Transaction, bool, error) {
	err := o.repo.Create(ctx, *tx)
	if errors.Is(err, ErrDuplicateKey) {
		return o.replay(ctx, tx)
	}

	if err != nil {
		return nil, true, fmt.Errorf("create transaction: %w", err)
	}

	return nil, false, nil
}

func outcomeError(tx Transaction) error {
	switch tx.Status {
	case StatusCompleted:
		return nil
	case StatusInitiated:
		return fmt.Errorf("transaction %s: %w", tx.ID, apperr.ErrTransactionInProgress)
	case StatusReversed:
		return fmt.Errorf("transaction %s: %w", tx.ID, apperr.ErrCompensated)
	case StatusReversalFailed:
		return fmt.Errorf("transaction %s: %w", tx.ID, apperr.ErrReversalFailed)
	case StatusLedgerFailed:
		return fmt.Errorf("transaction %s: %w", tx.ID, apperr.ErrLedgerInconsistency)
	}

	code, _, _ := strings.Cut(tx.FailureReason, ":")
	if sentinel := apperr.FromCode(code); sentinel != nil {
		return fmt.Errorf("transaction %s failed: %w", tx.ID, sentinel)
	}

	return fmt.Errorf("transaction %s failed: %s", tx.ID, tx.FailureReason)
}

// failureReason stores the error code first so a replay can rebuild the
// typed error.
func failureReason(err error) string {
	_, resp := apperr.ToResponse(err)

	return resp.Code + ": " + err.Error()
}

func narration(tx Transaction) string {
	return fmt.Sprintf("%s via %s", strings.ToLower(string(tx.Kind)), tx.Channel)
}

func (o *Orchestrator) getAccount(ctx context.Context, id uuid.UUID) (balance.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, o.balanceTimeout)
	defer cancel()

	account, err := o.balances.GetAccount(ctx, id)

	return account, stepError("get account", err)
}

func (o *Orchestrator) adjust(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (balance.Account, error) {
	_, tracer, _, _ := tracking.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "orchestrator.adjust_balance")
	defer span.End()

	span.SetAttributes(attribute.String("account_id", id.String()), attribute.String("delta", delta.String()))

	ctx, cancel := context.WithTimeout(ctx, o.balanceTimeout)
	defer cancel()

	account, err := o.balances.AdjustBalance(ctx, id, delta)
	if err != nil {
		tracking.HandleSpanBusinessErrorEvent(span, "adjust balance failed", err)
	}

	return account, stepError("adjust balance", err)
}

func (o *Orchestrator) record(ctx context.Context, in ledger.RecordInput) error {
	_, tracer, _, _ := tracking.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "orchestrator.record_ledger")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.ledgerTimeout)
	defer cancel()

	if _, err := o.ledger.Record(ctx, in); err != nil {
		tracking.HandleSpanError(span, "ledger record failed", err)

		return stepError("record ledger", err)
	}

	return nil
}

// stepError turns a step timeout into ErrDownstreamUnavailable.
func stepError(step string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, apperr.ErrDownstreamUnavailable) {
		return fmt.Errorf("%s timed out: %w: %w", step, apperr.ErrDownstreamUnavailable, err)
	}

	return err
}

func (o *Orchestrator) ledgerFailed(ctx context.Context, span trace.Span, tx *Transaction, cause error, start time.Time) (*Transaction, error) {
	logger, _, _, _ := tracking.NewTrackingFromContext(ctx)

	err := fmt.Errorf("balances moved but ledger record failed (%v): %w", cause, apperr.ErrLedgerInconsistency)

	tracking.HandleSpanError(span, "ledger record failed", err)
	logger.Log(ctx, log.LevelError, "ledger record failed, reconciliation required",
		log.String("transaction_id", tx.ID.String()),
		log.String("kind", string(tx.Kind)),
		log.String("amount", tx.Amount.StringFixed(2)),
		log.Err(cause),
	)

	return o.finish(ctx, tx, StatusLedgerFailed, failureReason(err), start), err
}

// finish moves tx to its terminal status. A failed status write is logged and
// the in-memory outcome is still returned: the stored record stays INITIATED,
// which makes retries answer ErrTransactionInProgress instead of re-running.
func (o *Orchestrator) finish(ctx context.Context, tx *Transaction, status Status, reason string, start time.Time) *Transaction {
	logger, _, _, metrics := tracking.NewTrackingFromContext(ctx)

	updated, err := o.repo.UpdateStatus(ctx, tx.ID, status, reason)
	if err != nil {
		logger.Log(ctx, log.LevelError, "failed to persist transaction status",
			log.String("transaction_id", tx.ID.String()),
			log.String("status", string(status)),
			log.Err(err),
		)

		tx.Status = status
		tx.FailureReason = reason
		tx.UpdatedAt = o.now()
	} else {
		*tx = updated
	}

	_ = metrics.RecordTransaction(ctx, string(tx.Kind), string(status), time.Since(start))

	logger.Log(ctx, log.LevelInfo, "transaction finished",
		log.String("transaction_id", tx.ID.String()),
		log.String("kind", string(tx.Kind)),
		log.String("status", string(status)),
	)

	return tx
}

func (o *Orchestrator) notify(ctx context.Context, tx Transaction) {
	if o.fraud == nil {
		return
	}

	o.fraud.Notify(ctx, fraud.CheckInput{
		TransactionID: tx.ID.String(),
		AccountID:     tx.AccountID.String(),
		BranchID:      tx.BranchID,
		Amount:        tx.Amount,
		Channel:       tx.Channel,
	})
}
