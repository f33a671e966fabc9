package fraud

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/apperr"
	"github.com/bxcodec/dbresolver/v2"
	"github.com/google/uuid"
)

const alertColumns = `id, transaction_id, account_id, branch_id, amount, channel, risk_score, fraud_flag,
	reason, anomaly, resolution_status, feedback_type, feedback_date, resolved_at, created_at`

// PostgresStore keeps alerts in the fraud_alerts table.
type PostgresStore struct {
	db dbresolver.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a store over db.
func NewPostgresStore(db dbresolver.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, a Alert) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fraud_alerts (`+alertColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		a.ID, a.TransactionID, a.AccountID, a.BranchID, a.Amount, a.Channel, a.RiskScore, a.FraudFlag,
		a.Reason, a.Anomaly, string(a.ResolutionStatus), nullString(a.FeedbackType), a.FeedbackDate, a.ResolvedAt, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert fraud alert %s: %w", a.ID, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (Alert, error) {
	var (
		a            Alert
		status       string
		feedbackType sql.NullString
		feedbackDate sql.NullTime
		resolvedAt   sql.NullTime
	)

	if err := row.Scan(&a.ID, &a.TransactionID, &a.AccountID, &a.BranchID, &a.Amount, &a.Channel, &a.RiskScore,
		&a.FraudFlag, &a.Reason, &a.Anomaly, &status, &feedbackType, &feedbackDate, &resolvedAt, &a.CreatedAt); err != nil {
		return Alert{}, err
	}

	a.ResolutionStatus = ResolutionStatus(status)
	a.FeedbackType = feedbackType.String
	a.CreatedAt = a.CreatedAt.UTC()

	if feedbackDate.Valid {
		t := feedbackDate.Time.UTC()
		a.FeedbackDate = &t
	}

	if resolvedAt.Valid {
		t := resolvedAt.Time.UTC()
		a.ResolvedAt = &t
	}

	return a, nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (Alert, error) {
	a, err := scanAlert(s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM fraud_alerts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Alert{}, fmt.Errorf("alert %s: %w", id, apperr.ErrAlertNotFound)
	}

	if err != nil {
		return Alert{}, fmt.Errorf("select fraud alert %s: %w", id, err)
	}

	return a, nil
}

func (s *PostgresStore) Resolve(ctx context.Context, id uuid.UUID, feedbackType string, feedbackDate, resolvedAt time.Time) (Alert, error) {
	a, err := scanAlert(s.db.QueryRowContext(ctx,
		`UPDATE fraud_alerts
		 SET feedback_type = $1, feedback_date = $2, resolved_at = $3, resolution_status = $4
		 WHERE id = $5
		 RETURNING `+alertColumns,
		feedbackType, feedbackDate, resolvedAt, string(ResolutionResolved), id))
	if errors.Is(err, sql.ErrNoRows) {
		return Alert{}, fmt.Errorf("alert %s: %w", id, apperr.ErrAlertNotFound)
	}

	if err != nil {
		return Alert{}, fmt.Errorf("resolve fraud alert %s: %w", id, err)
	}

	return a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
