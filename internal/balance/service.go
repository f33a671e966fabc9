package balance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/apperr"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/backoff"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/money"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/redis"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/tracking"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultMaxRetries  = 5
	defaultBaseBackoff = 5 * time.Millisecond
	maxBackoff         = 250 * time.Millisecond
)

// Config tunes a Service.
type Config struct {
	// Locker serializes adjustments per account across replicas. Optional.
	Locker         redis.Locker
	CASMaxRetries  int
	CASBaseBackoff time.Duration
}

// Service implements the Balance Authority operations.
type Service struct {
	repo        Repository
	locker      redis.Locker
	maxRetries  int
	baseBackoff time.Duration
	now         func() time.Time
}

// NewService builds a Service over repo.
func NewService(repo Repository, cfg Config) *Service {
	if cfg.CASMaxRetries <= 0 {
		cfg.CASMaxRetries = defaultMaxRetries
	}

	if cfg.CASBaseBackoff <= 0 {
		cfg.CASBaseBackoff = defaultBaseBackoff
	}

	return &Service{
		repo:        repo,
		locker:      cfg.Locker,
		maxRetries:  cfg.CASMaxRetries,
		baseBackoff: cfg.CASBaseBackoff,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// OpenAccount creates an ACTIVE account at version 0.
func (s *Service) OpenAccount(ctx context.Context, in OpenAccountInput) (Account, error) {
	logger, tracer, _, metrics := tracking.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "balance.open_account")
	defer span.End()

	if in.CustomerID == "" {
		return Account{}, apperr.Validation("customer_id", "customer_id is required")
	}

	if in.Type == "" {
		return Account{}, apperr.Validation("account_type", "account_type is required")
	}

	if in.OpeningBalance.IsNegative() {
		return Account{}, apperr.Validation("opening_balance", "opening balance must not be negative")
	}

	if err := money.CheckScale(in.OpeningBalance); err != nil {
		return Account{}, apperr.Validation("opening_balance", err.Error())
	}

	id := in.ID
	if id == uuid.Nil {
		id = uuid.Must(uuid.NewV7())
	}

	now := s.now()
	account := Account{
		ID:         id,
		CustomerID: in.CustomerID,
		BranchID:   in.BranchID,
		Type:       in.Type,
		Balance:    money.Round(in.OpeningBalance),
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.Create(ctx, account); err != nil {
		tracking.HandleSpanError(span, "failed to create account", err)
		logger.Log(ctx, log.LevelError, "failed to create account", log.String("account_id", id.String()), log.Err(err))

		return Account{}, err
	}

	_ = metrics.RecordAccountOpened(ctx, account.Type)

	logger.Log(ctx, log.LevelInfo, "account opened",
		log.String("account_id", id.String()),
		log.String("account_type", account.Type),
	)

	return account, nil
}

// GetAccount returns the account with id.
func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (Account, error) {
	_, tracer, _, _ := tracking.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "balance.get_account")
	defer span.End()

	account, err := s.repo.Find(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrAccountNotFound) {
			tracking.HandleSpanBusinessErrorEvent(span, "account not found", err)
		} else {
			tracking.HandleSpanError(span, "failed to get account", err)
		}

		return Account{}, err
	}

	return account, nil
}

// AdjustBalance adds delta to the account balance. A negative delta is a debit.
//
// The balance never drops below zero and the account must be ACTIVE. The
// read-modify-write is a compare-and-swap on Version retried with jittered
// backoff; when a Locker is configured the whole loop runs under the
// account's lock.
func (s *Service) AdjustBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (Account, error) {
	logger, tracer, _, _ := tracking.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "balance.adjust_balance")
	defer span.End()

	span.SetAttributes(attribute.String("account_id", id.String()), attribute.String("delta", delta.String()))

	if delta.IsZero() {
		return Account{}, apperr.Validation("delta", "delta must not be zero")
	}

	if err := money.CheckScale(delta); err != nil {
		return Account{}, apperr.Validation("delta", err.Error())
	}

	var account Account

	adjust := func(ctx context.Context) error {
		var err error

		account, err = s.casLoop(ctx, id, delta)

		return err
	}

	var err error
	if s.locker != nil {
		err = s.locker.WithLock(ctx, lockKey(id), adjust)
		if errors.Is(err, redis.ErrLockBusy) {
			err = fmt.Errorf("account %s: %w: %w", id, apperr.ErrVersionConflict, err)
		}
	} else {
		err = adjust(ctx)
	}

	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrInsufficientFunds),
			errors.Is(err, apperr.ErrAccountNotFound),
			errors.Is(err, apperr.ErrAccountInactive):
			tracking.HandleSpanBusinessErrorEvent(span, "balance adjustment rejected", err)
			logger.Log(ctx, log.LevelWarn, "balance adjustment rejected",
				log.String("account_id", id.String()), log.Err(err))
		default:
			tracking.HandleSpanError(span, "failed to adjust balance", err)
			logger.Log(ctx, log.LevelError, "failed to adjust balance",
				log.String("account_id", id.String()), log.Err(err))
		}

		return Account{}, err
	}

	return account, nil
}

func (s *Service) casLoop(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (Account, error) {
	for attempt := 0; ; attempt++ {
		current, err := s.repo.FindCurrent(ctx, id)
		if err != nil {
			return Account{}, err
		}

		if current.Status != StatusActive {
			return Account{}, fmt.Errorf("account %s is %s: %w", id, current.Status, apperr.ErrAccountInactive)
		}

		next := current.Balance.Add(delta)
		if next.IsNegative() {
			return Account{}, fmt.Errorf("account %s balance %s cannot cover %s: %w",
				id, current.Balance.StringFixed(money.Scale), delta.Neg().StringFixed(money.Scale), apperr.ErrInsufficientFunds)
		}

		updated, err := s.repo.CompareAndSwap(ctx, id, current.Version, next)
		if err == nil {
			return updated, nil
		}

		if !errors.Is(err, apperr.ErrVersionConflict) || attempt >= s.maxRetries {
			return Account{}, err
		}

		logger, _, _, _ := tracking.NewTrackingFromContext(ctx)
		logger.Log(ctx, log.LevelDebug, "balance version conflict, retrying",
			log.Stringer("account_id", id),
			log.Int64("version", current.Version),
			log.Int("attempt", attempt+1),
		)

		if err := backoff.SleepWithContext(ctx, backoff.Capped(s.baseBackoff, maxBackoff, attempt)); err != nil {
			return Account{}, err
		}
	}
}

func lockKey(id uuid.UUID) string {
	return "corebank:lock:account:" + id.String()
}
