package fraud

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ResolutionStatus tracks an alert through review.
type ResolutionStatus string

const (
	ResolutionPending  ResolutionStatus = "PENDING"
	ResolutionResolved ResolutionStatus = "RESOLVED"
)

// Alert is the persisted record of one fraud check.
type Alert struct {
	ID               uuid.UUID        `json:"alert_id"`
	TransactionID    string           `json:"transaction_id"`
	AccountID        string           `json:"account_id"`
	BranchID         int              `json:"branch_id"`
	Amount           decimal.Decimal  `json:"amount"`
	Channel          string           `json:"channel"`
	RiskScore        int              `json:"risk_score"`
	FraudFlag        bool             `json:"fraud_flag"`
	Reason           string           `json:"reason"`
	Anomaly          string           `json:"anomaly"`
	ResolutionStatus ResolutionStatus `json:"resolution_status"`
	FeedbackType     string           `json:"feedback_type,omitempty"`
	FeedbackDate     *time.Time       `json:"feedback_date,omitempty"`
	ResolvedAt       *time.Time       `json:"resolved_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// CheckInput describes the transaction being scored.
type CheckInput struct {
	TransactionID string          `json:"transaction_id" validate:"required,max=128"`
	AccountID     string          `json:"account_id" validate:"max=64"`
	BranchID      int             `json:"branch_id" validate:"gte=0"`
	Amount        decimal.Decimal `json:"amount" validate:"positive_decimal"`
	Channel       string          `json:"channel" validate:"required,max=32"`
}

// FeedbackInput resolves an alert.
type FeedbackInput struct {
	FeedbackType string    `json:"feedback_type" validate:"required,max=50"`
	FeedbackDate time.Time `json:"feedback_date" validate:"required"`
}

// Store persists alerts. Get and Resolve return apperr.ErrAlertNotFound for
// unknown ids.
type Store interface {
	Save(ctx context.Context, alert Alert) error
	Get(ctx context.Context, id uuid.UUID) (Alert, error)
	Resolve(ctx context.Context, id uuid.UUID, feedbackType string, feedbackDate, resolvedAt time.Time) (Alert, error)
}
