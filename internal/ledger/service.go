package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/apperr"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/money"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/tracking"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Service is the Ledger Recorder.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds a Service over repo.
func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func validate(in RecordInput) error {
	if strings.TrimSpace(in.ReferenceID) == "" {
		return apperr.Validation("reference_id", "reference_id is required")
	}

	if err := money.RequirePositive(in.Amount); err != nil {
		return apperr.Validation("amount", err.Error())
	}

	if in.Debit.AccountID == uuid.Nil {
		return apperr.Validation("debit.account_id", "debit account is required")
	}

	if in.Credit.AccountID == uuid.Nil {
		return apperr.Validation("credit.account_id", "credit account is required")
	}

	if in.Debit.AccountID == in.Credit.AccountID {
		return apperr.Validation("credit.account_id", "debit and credit accounts must differ")
	}

	return nil
}

// Record posts a balanced DEBIT/CREDIT pair under in.ReferenceID. A reference
// that is already posted, including by a concurrent caller, yields
// StatusAlreadyRecorded with the prior ledger id and writes nothing.
func (s *Service) Record(ctx context.Context, in RecordInput) (RecordResult, error) {
	logger, tracer, _, metrics := tracking.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "ledger.record")
	defer span.End()

	span.SetAttributes(attribute.String("reference_id", in.ReferenceID))

	if err := validate(in); err != nil {
		tracking.HandleSpanBusinessErrorEvent(span, "invalid ledger request", err)

		return RecordResult{}, err
	}

	prior, err := s.existing(ctx, in.ReferenceID)
	if err != nil {
		tracking.HandleSpanError(span, "failed to check ledger reference", err)

		return RecordResult{}, err
	}

	if prior != nil {
		logger.Log(ctx, log.LevelInfo, "ledger reference already recorded", log.String("reference_id", in.ReferenceID))

		return *prior, nil
	}

	now := s.now()
	amount := money.Round(in.Amount)
	debit := Entry{
		ID:          uuid.Must(uuid.NewV7()),
		ReferenceID: in.ReferenceID,
		AccountID:   in.Debit.AccountID,
		CustomerID:  in.Debit.CustomerID,
		BranchID:    in.Debit.BranchID,
		EntryType:   EntryDebit,
		Amount:      amount,
		Narration:   in.Narration,
		CreatedAt:   now,
	}
	credit := Entry{
		ID:          uuid.Must(uuid.NewV7()),
		ReferenceID: in.ReferenceID,
		AccountID:   in.Credit.AccountID,
		CustomerID:  in.Credit.CustomerID,
		BranchID:    in.Credit.BranchID,
		EntryType:   EntryCredit,
		Amount:      amount,
		Narration:   in.Narration,
		CreatedAt:   now,
	}

	if err := s.repo.InsertPair(ctx, debit, credit); err != nil {
		if errors.Is(err, ErrDuplicateReference) {
			prior, lookupErr := s.existing(ctx, in.ReferenceID)
			if lookupErr == nil && prior != nil {
				logger.Log(ctx, log.LevelInfo, "concurrent ledger record collapsed", log.String("reference_id", in.ReferenceID))

				return *prior, nil
			}
		}

		tracking.HandleSpanError(span, "failed to record ledger entries", err)
		logger.Log(ctx, log.LevelError, "failed to record ledger entries",
			log.String("reference_id", in.ReferenceID), log.Err(err))

		return RecordResult{}, err
	}

	_ = metrics.RecordLedgerEntry(ctx, string(EntryDebit))
	_ = metrics.RecordLedgerEntry(ctx, string(EntryCredit))

	return RecordResult{
		Status:      StatusRecorded,
		LedgerID:    debit.ID,
		ReferenceID: in.ReferenceID,
		Amount:      amount,
		Narration:   in.Narration,
	}, nil
}

func (s *Service) existing(ctx context.Context, referenceID string) (*RecordResult, error) {
	entries, err := s.repo.ListByReference(ctx, referenceID)
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		if e.EntryType == EntryDebit {
			return &RecordResult{
				Status:      StatusAlreadyRecorded,
				LedgerID:    e.ID,
				ReferenceID: e.ReferenceID,
				Amount:      e.Amount,
				Narration:   e.Narration,
			}, nil
		}
	}

	return nil, nil
}

// GetLast returns the most recent entry, or nil when the ledger is empty.
func (s *Service) GetLast(ctx context.Context) (*Entry, error) {
	_, tracer, _, _ := tracking.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "ledger.get_last")
	defer span.End()

	e, err := s.repo.Last(ctx)
	if err != nil {
		tracking.HandleSpanError(span, "failed to read last ledger entry", err)

		return nil, fmt.Errorf("last ledger entry: %w", err)
	}

	return e, nil
}

// ListByReference returns every entry posted under referenceID.
func (s *Service) ListByReference(ctx context.Context, referenceID string) ([]Entry, error) {
	_, tracer, _, _ := tracking.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "ledger.list_by_reference")
	defer span.End()

	if strings.TrimSpace(referenceID) == "" {
		return nil, apperr.Validation("reference_id", "reference_id is required")
	}

	entries, err := s.repo.ListByReference(ctx, referenceID)
	if err != nil {
		tracking.HandleSpanError(span, "failed to list ledger entries", err)

		return nil, err
	}

	return entries, nil
}
