package loan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/apperr"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/errgroup"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/money"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/tracking"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/transaction"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Debiter issues the EMI debits. transaction.Orchestrator and
// transaction.Client both satisfy it.
type Debiter interface {
	Debit(ctx context.Context, in transaction.DebitInput) (*transaction.Transaction, error)
}

var (
	_ Debiter = (*transaction.Orchestrator)(nil)
	_ Debiter = (*transaction.Client)(nil)
)

// Config tunes a Service.
type Config struct {
	// Concurrency bounds the EMIs debited at once. 1 processes the batch in order.
	Concurrency int
}

// Service manages loans and their repayment batch.
type Service struct {
	repo        Repository
	debiter     Debiter
	concurrency int
	now         func() time.Time
}

// NewService returns a Service.
func NewService(repo Repository, debiter Debiter, cfg Config) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	return &Service{
		repo:        repo,
		debiter:     debiter,
		concurrency: cfg.Concurrency,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// IdempotencyKey is the orchestrator key for an instalment's debit, so a
// batch that is re-run never debits the same EMI twice.
func IdempotencyKey(emiID uuid.UUID) string {
	return "emi:" + emiID.String()
}

// CreateLoan disburses a loan and generates its full schedule.
func (s *Service) CreateLoan(ctx context.Context, in CreateLoanInput) (Loan, error) {
	logger, tracer, _, _ := tracking.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "loan.create_loan")
	defer span.End()

	if err := validateLoan(in); err != nil {
		return Loan{}, err
	}

	start := in.StartDate
	emi := CalculateEMI(in.Principal, in.InterestRate, in.TenureMonths)

	loan := Loan{
		ID:           uuid.Must(uuid.NewV7()),
		CustomerID:   in.CustomerID,
		BranchID:     in.BranchID,
		AccountID:    in.AccountID,
		LoanType:     in.LoanType,
		Principal:    money.Round(in.Principal),
		InterestRate: in.InterestRate,
		TenureMonths: in.TenureMonths,
		EMIAmount:    emi,
		Status:       StatusActive,
		StartDate:    start,
		EndDate:      start.AddMonths(in.TenureMonths),
		CreatedAt:    s.now(),
	}

	schedule := BuildSchedule(loan.Principal, loan.InterestRate, loan.TenureMonths, start, emi)
	for i := range schedule {
		schedule[i].ID = uuid.Must(uuid.NewV7())
		schedule[i].LoanID = loan.ID
	}

	if err := s.repo.CreateLoan(ctx, loan, schedule); err != nil {
		tracking.HandleSpanError(span, "failed to create loan", err)
		logger.Log(ctx, log.LevelError, "failed to create loan", log.String("customer_id", in.CustomerID), log.Err(err))

		return Loan{}, err
	}

	logger.Log(ctx, log.LevelInfo, "loan created",
		log.String("loan_id", loan.ID.String()),
		log.String("emi_amount", emi.StringFixed(2)),
		log.Int("tenure_months", loan.TenureMonths),
	)

	loan.Schedule = schedule

	return loan, nil
}

func validateLoan(in CreateLoanInput) error {
	switch {
	case strings.TrimSpace(in.CustomerID) == "":
		return apperr.Validation("customer_id", "customer_id is required")
	case in.AccountID == uuid.Nil:
		return apperr.Validation("account_id", "account_id is required")
	case strings.TrimSpace(in.LoanType) == "":
		return apperr.Validation("loan_type", "loan_type is required")
	case in.TenureMonths < 1:
		return apperr.Validation("tenure_months", "tenure_months must be at least 1")
	case in.InterestRate.IsNegative():
		return apperr.Validation("interest_rate", "interest_rate must not be negative")
	case in.StartDate.IsZero():
		return apperr.Validation("start_date", "start_date is required")
	}

	if err := money.RequirePositive(in.Principal); err != nil {
		return apperr.Validation("principal_amount", err.Error())
	}

	return nil
}

// GetLoan returns the loan with its schedule.
func (s *Service) GetLoan(ctx context.Context, id uuid.UUID) (Loan, error) {
	_, tracer, _, _ := tracking.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "loan.get_loan")
	defer span.End()

	loan, err := s.repo.FindLoan(ctx, id)
	if err != nil {
		tracking.HandleSpanBusinessErrorEvent(span, "failed to get loan", err)

		return Loan{}, err
	}

	loan.Schedule, err = s.repo.Schedule(ctx, id)
	if err != nil {
		tracking.HandleSpanError(span, "failed to get schedule", err)

		return Loan{}, err
	}

	return loan, nil
}

// ProcessDueEMIs debits every PENDING instalment due on or before asOf.
//
// A successful debit marks the EMI PAID. A failed one marks it OVERDUE with a
// penalty and moves the loan to OVERDUE, where it stays even if later
// instalments are paid. Each EMI is committed on its own and a failure never
// stops the rest of the batch.
func (s *Service) ProcessDueEMIs(ctx context.Context, asOf Date) (BatchResult, error) {
	logger, tracer, _, _ := tracking.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "loan.process_due_emis")
	defer span.End()

	due, err := s.repo.DueEMIs(ctx, asOf)
	if err != nil {
		tracking.HandleSpanError(span, "failed to load due emis", err)

		return BatchResult{}, err
	}

	span.SetAttributes(attribute.String("as_of", asOf.String()), attribute.Int("due", len(due)))

	outcomes := make([]EMIOutcome, len(due))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLogger(logger)
	g.SetLimit(s.concurrency)

	for i, d := range due {
		g.Go(func() error {
			outcomes[i] = s.processOne(gctx, d, asOf)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		tracking.HandleSpanError(span, "emi batch interrupted", err)
		logger.Log(ctx, log.LevelError, "emi batch interrupted", log.Err(err))
	}

	result := BatchResult{Details: make([]EMIOutcome, 0, len(outcomes))}

	var collected, penalties []decimal.Decimal

	statuses := make(map[EMIStatus]int)

	for _, o := range outcomes {
		if o.EMIID == uuid.Nil {
			continue
		}

		result.Details = append(result.Details, o)
		statuses[o.Status]++

		switch o.Status {
		case EMIPaid:
			collected = append(collected, o.Amount)
		case EMIOverdue:
			penalties = append(penalties, o.PenaltyAmount)
		}
	}

	result.ProcessedEMIs = len(result.Details)

	logger.Log(ctx, log.LevelInfo, "emi batch finished",
		log.String("as_of", asOf.String()),
		log.Int("due", len(due)),
		log.Int("processed", result.ProcessedEMIs),
		log.Any("statuses", statuses),
		log.String("collected", money.Sum(collected...).StringFixed(2)),
		log.String("penalties", money.Sum(penalties...).StringFixed(2)),
	)

	return result, nil
}

func (s *Service) processOne(ctx context.Context, d DueEMI, asOf Date) EMIOutcome {
	logger, tracer, _, metrics := tracking.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "loan.process_emi")
	defer span.End()

	emi, loan := d.EMI, d.Loan

	span.SetAttributes(attribute.String("emi_id", emi.ID.String()), attribute.String("loan_id", loan.ID.String()))

	outcome := EMIOutcome{
		LoanID:        loan.ID,
		EMIID:         emi.ID,
		EMINumber:     emi.Number,
		Amount:        emi.Amount,
		PenaltyAmount: decimal.Zero,
	}

	tx, debitErr := s.debiter.Debit(ctx, transaction.DebitInput{
		AccountID:      loan.AccountID,
		Amount:         emi.Amount,
		Channel:        ChannelEMI,
		IdempotencyKey: IdempotencyKey(emi.ID),
	})

	var txID *uuid.UUID
	if tx != nil {
		id := tx.ID
		txID = &id
		outcome.TransactionID = txID
	}

	if debitErr == nil {
		outcome.Status = EMIPaid

		if _, err := s.repo.MarkPaid(ctx, emi.ID, asOf, txID); err != nil {
			return s.persistFailed(ctx, span, outcome, err)
		}

		_ = metrics.RecordEMI(ctx, "paid")

		return outcome
	}

	if errors.Is(debitErr, apperr.ErrTransactionInProgress) {
		outcome.Status = EMISkipped
		outcome.Error = debitErr.Error()

		logger.Log(ctx, log.LevelInfo, "emi debit still in flight, leaving pending",
			log.Stringer("emi_id", emi.ID))

		return outcome
	}

	days := asOf.DaysSince(emi.DueDate)
	penalty := Penalty(emi.Amount, days)
	dueDate := emi.DueDate

	outcome.Status = EMIOverdue
	outcome.CustomerID = loan.CustomerID
	outcome.DueDate = &dueDate
	outcome.OverdueDays = days
	outcome.PenaltyAmount = penalty
	outcome.Error = debitErr.Error()

	tracking.HandleSpanBusinessErrorEvent(span, "emi debit failed", debitErr)
	logger.Log(ctx, log.LevelWarn, "emi debit failed, marking overdue",
		log.String("emi_id", emi.ID.String()),
		log.String("loan_id", loan.ID.String()),
		log.Int("overdue_days", days),
		log.String("penalty", penalty.StringFixed(2)),
		log.Err(debitErr),
	)

	if _, err := s.repo.MarkOverdue(ctx, emi.ID, days, penalty, txID); err != nil {
		return s.persistFailed(ctx, span, outcome, err)
	}

	_ = metrics.RecordEMI(ctx, "failed")

	return outcome
}

// persistFailed reports an EMI whose debit outcome could not be stored. The
// row stays PENDING and the next run replays the debit through its
// idempotency key.
func (s *Service) persistFailed(ctx context.Context, span trace.Span, outcome EMIOutcome, err error) EMIOutcome {
	logger, _, _, _ := tracking.NewTrackingFromContext(ctx)

	tracking.HandleSpanError(span, "failed to store emi outcome", err)
	logger.Log(ctx, log.LevelError, "failed to store emi outcome",
		log.String("emi_id", outcome.EMIID.String()),
		log.String("status", string(outcome.Status)),
		log.Err(err),
	)

	outcome.Error = err.Error()

	return outcome
}

// ListOverdue returns unpaid instalments due before asOf that are at least
// minOverdueDays late.
func (s *Service) ListOverdue(ctx context.Context, asOf Date, minOverdueDays int) ([]OverdueEMI, error) {
	_, tracer, _, _ := tracking.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "loan.list_overdue")
	defer span.End()

	if minOverdueDays < 1 {
		return nil, apperr.Validation("min_overdue_days", "min_overdue_days must be at least 1")
	}

	unpaid, err := s.repo.Unpaid(ctx, asOf)
	if err != nil {
		tracking.HandleSpanError(span, "failed to list unpaid emis", err)

		return nil, fmt.Errorf("list overdue: %w", err)
	}

	out := make([]OverdueEMI, 0, len(unpaid))

	for _, d := range unpaid {
		days := asOf.DaysSince(d.EMI.DueDate)
		if days < minOverdueDays {
			continue
		}

		out = append(out, OverdueEMI{
			CustomerID:    d.Loan.CustomerID,
			LoanID:        d.Loan.ID,
			EMIID:         d.EMI.ID,
			EMINumber:     d.EMI.Number,
			DueDate:       d.EMI.DueDate,
			Amount:        d.EMI.Amount,
			OverdueDays:   days,
			PenaltyAmount: Penalty(d.EMI.Amount, days),
			Status:        EMIOverdue,
		})
	}

	return out, nil
}
