package balance

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
	"github.com/shopspring/decimal"
)

const accountColumns = `id, customer_id, branch_id, account_type, balance, status, version, created_at, updated_at`

// PostgresRepository stores accounts in the accounts table.
type PostgresRepository struct {
	db dbresolver.DB
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository returns a repository over db.
func NewPostgresRepository(db dbresolver.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (Account, error) {
	var (
		a      Account
		status string
	)

	err := row.Scan(&a.ID, &a.CustomerID, &a.BranchID, &a.Type, &a.Balance, &status, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Account{}, err
	}

	a.Status = Status(status)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()

	return a, nil
}

func (r *PostgresRepository) Create(ctx context.Context, a Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.CustomerID, a.BranchID, a.Type, a.Balance, string(a.Status), a.Version, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert account %s: %w", a.ID, err)
	}

	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, id uuid.UUID) (Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))

	return a, notFound(id, err)
}

// FindCurrent reads through a transaction so the query lands on the primary.
func (r *PostgresRepository) FindCurrent(ctx context.Context, id uuid.UUID) (Account, error) {
	var a Account

	err := postgres.WithTx(ctx, r.db, func(tx dbresolver.Tx) error {
		var err error

		a, err = scanAccount(tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))

		return err
	})

	return a, notFound(id, err)
}

func (r *PostgresRepository) CompareAndSwap(ctx context.Context, id uuid.UUID, expectedVersion int64, balance decimal.Decimal) (Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx,
		`UPDATE accounts SET balance = $1, version = version + 1, updated_at = $2
		 WHERE id = $3 AND version = $4
		 RETURNING `+accountColumns,
		balance, time.Now().UTC(), id, expectedVersion))
	if err == nil {
		return a, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return Account{}, fmt.Errorf("update account %s: %w", id, err)
	}

	// No row matched: either the account is gone or the version moved.
	if _, findErr := r.FindCurrent(ctx, id); findErr != nil {
		return Account{}, findErr
	}

	return Account{}, fmt.Errorf("account %s moved past version %d: %w", id, expectedVersion, apperr.ErrVersionConflict)
}

func notFound(id uuid.UUID, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("account %s: %w", id, apperr.ErrAccountNotFound)
	}

	return fmt.Errorf("select account %s: %w", id, err)
}
