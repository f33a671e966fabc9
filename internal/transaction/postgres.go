package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/apperr"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/postgres"
	"github.com/bxcodec/dbresolver/v2"
	"github.com/google/uuid"
)

const transactionColumns = `id, idempotency_key, account_id, counterparty_account_id, customer_id, branch_id,
	amount, kind, channel, status, failure_reason, created_at, updated_at`

// PostgresRepository stores saga records in the transactions table.
type PostgresRepository struct {
	db  dbresolver.DB
	now func() time.Time
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository returns a repository over db.
func NewPostgresRepository(db dbresolver.DB) *PostgresRepository {
	return &PostgresRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *PostgresRepository) Create(ctx context.Context, tx Transaction) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		tx.ID, tx.IdempotencyKey, tx.AccountID, tx.CounterpartyAccountID, tx.CustomerID, tx.BranchID,
		tx.Amount, string(tx.Kind), tx.Channel, string(tx.Status), tx.FailureReason, tx.CreatedAt, tx.UpdatedAt)
	if postgres.IsUniqueViolation(err) {
		return fmt.Errorf("key %q: %w", tx.IdempotencyKey, ErrDuplicateKey)
	}

	if err != nil {
		return fmt.Errorf("insert transaction %s: %w", tx.ID, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (Transaction, error) {
	var (
		tx           Transaction
		counterparty uuid.NullUUID
		kind, status string
	)

	if err := row.Scan(&tx.ID, &tx.IdempotencyKey, &tx.AccountID, &counterparty, &tx.CustomerID, &tx.BranchID,
		&tx.Amount, &kind, &tx.Channel, &status, &tx.FailureReason, &tx.CreatedAt, &tx.UpdatedAt); err != nil {
		return Transaction{}, err
	}

	if counterparty.Valid {
		id := counterparty.UUID
		tx.CounterpartyAccountID = &id
	}

	tx.Kind = Kind(kind)
	tx.Status = Status(status)
	tx.CreatedAt = tx.CreatedAt.UTC()
	tx.UpdatedAt = tx.UpdatedAt.UTC()

	return tx, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, reason string) (Transaction, error) {
	var out Transaction

	err := postgres.WithTx(ctx, r.db, func(dbtx dbresolver.Tx) error {
		current, err := scanTransaction(dbtx.QueryRowContext(ctx,
			`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("transaction %s: %w", id, apperr.ErrTransactionNotFound)
		}

		if err != nil {
			return err
		}

		if current.Status.Terminal() {
			return fmt.Errorf("transaction %s is %s: %w", id, current.Status, ErrNotInitiated)
		}

		out, err = scanTransaction(dbtx.QueryRowContext(ctx,
			`UPDATE transactions SET status = $1, failure_reason = $2, updated_at = $3
			 WHERE id = $4
			 RETURNING `+transactionColumns,
			string(status), reason, r.now(), id))

		return err
	})
	if err != nil {
		return Transaction{}, fmt.Errorf("update transaction %s: %w", id, err)
	}

	return out, nil
}

func (r *PostgresRepository) Find(ctx context.Context, id uuid.UUID) (Transaction, error) {
	tx, err := scanTransaction(r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, fmt.Errorf("transaction %s: %w", id, apperr.ErrTransactionNotFound)
	}

	if err != nil {
		return Transaction{}, fmt.Errorf("select transaction %s: %w", id, err)
	}

	return tx, nil
}

// FindByIdempotencyKey reads the primary: a replica could miss a key the
// saga has just claimed.
func (r *PostgresRepository) FindByIdempotencyKey(ctx context.Context, key string) (Transaction, error) {
	var out Transaction

	err := postgres.WithTx(ctx, r.db, func(dbtx dbresolver.Tx) error {
		var err error

		out, err = scanTransaction(dbtx.QueryRowContext(ctx,
			`SELECT `+transactionColumns+` FROM transactions WHERE idempotency_key = $1`, key))

		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, fmt.Errorf("key %q: %w", key, apperr.ErrTransactionNotFound)
	}

	if err != nil {
		return Transaction{}, fmt.Errorf("select transaction by key %q: %w", key, err)
	}

	return out, nil
}
