package fraud

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/apperr"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/money"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/tracking"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Service scores transactions and manages their alerts.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService returns a Service persisting alerts in store.
func NewService(store Store) *Service {
	return &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Check evaluates in and stores a PENDING alert for it. The stored alert is
// returned even for clean transactions.
func (s *Service) Check(ctx context.Context, in CheckInput) (Alert, error) {
	logger, tracer, _, metrics := tracking.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "fraud.check")
	defer span.End()

	if strings.TrimSpace(in.TransactionID) == "" {
		return Alert{}, apperr.Validation("transaction_id", "transaction_id is required")
	}

	if err := money.RequirePositive(in.Amount); err != nil {
		return Alert{}, apperr.Validation("amount", err.Error())
	}

	if in.Channel == "" {
		return Alert{}, apperr.Validation("channel", "channel is required")
	}

	verdict := Evaluate(in.Amount, in.Channel, in.BranchID)

	span.SetAttributes(
		attribute.String("transaction_id", in.TransactionID),
		attribute.Int("risk_score", verdict.RiskScore),
		attribute.String("anomaly", verdict.Anomaly),
	)

	alert := Alert{
		ID:               uuid.Must(uuid.NewV7()),
		TransactionID:    in.TransactionID,
		AccountID:        in.AccountID,
		BranchID:         in.BranchID,
		Amount:           money.Round(in.Amount),
		Channel:          in.Channel,
		RiskScore:        verdict.RiskScore,
		FraudFlag:        verdict.FraudFlag,
		Reason:           verdict.Reason,
		Anomaly:          verdict.Anomaly,
		ResolutionStatus: ResolutionPending,
		CreatedAt:        s.now(),
	}

	if err := s.store.Save(ctx, alert); err != nil {
		tracking.HandleSpanError(span, "failed to save fraud alert", err)
		logger.Log(ctx, log.LevelError, "failed to save fraud alert",
			log.String("transaction_id", in.TransactionID), log.Err(err))

		return Alert{}, err
	}

	decision := "clear"
	if verdict.FraudFlag {
		decision = "flagged"

		logger.Log(ctx, log.LevelWarn, "transaction flagged",
			log.String("transaction_id", in.TransactionID),
			log.String("alert_id", alert.ID.String()),
			log.Int("risk_score", verdict.RiskScore),
			log.String("anomaly", verdict.Anomaly),
		)
	}

	_ = metrics.RecordFraudCheck(ctx, decision)

	return alert, nil
}

// AttachFeedback resolves the alert with the reviewer's verdict.
func (s *Service) AttachFeedback(ctx context.Context, id uuid.UUID, in FeedbackInput) (Alert, error) {
	logger, tracer, _, _ := tracking.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "fraud.attach_feedback")
	defer span.End()

	if strings.TrimSpace(in.FeedbackType) == "" {
		return Alert{}, apperr.Validation("feedback_type", "feedback_type is required")
	}

	if in.FeedbackDate.IsZero() {
		return Alert{}, apperr.Validation("feedback_date", "feedback_date is required")
	}

	alert, err := s.store.Resolve(ctx, id, in.FeedbackType, in.FeedbackDate.UTC(), s.now())
	if err != nil {
		if errors.Is(err, apperr.ErrAlertNotFound) {
			tracking.HandleSpanBusinessErrorEvent(span, "alert not found", err)
		} else {
			tracking.HandleSpanError(span, "failed to resolve alert", err)
		}

		return Alert{}, err
	}

	logger.Log(ctx, log.LevelInfo, "fraud alert resolved",
		log.String("alert_id", id.String()), log.String("feedback_type", in.FeedbackType))

	return alert, nil
}

func (s *Service) GetAlert(ctx context.Context, id uuid.UUID) (Alert, error) {
	_, tracer, _, _ := tracking.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "fraud.get_alert")
	defer span.End()

	alert, err := s.store.Get(ctx, id)
	if err != nil {
		tracking.HandleSpanBusinessErrorEvent(span, "failed to get alert", err)

		return Alert{}, err
	}

	return alert, nil
}
