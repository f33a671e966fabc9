package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/postgres"
	"github.com/bxcodec/dbresolver/v2"
)

const entryColumns = `id, reference_id, account_id, customer_id, branch_id, entry_type, amount, narration, created_at`

// PostgresRepository stores entries in ledger_entries. The unique
// (reference_id, entry_type) constraint turns concurrent duplicate postings
// into ErrDuplicateReference.
type PostgresRepository struct {
	db dbresolver.DB
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository returns a repository over db.
func NewPostgresRepository(db dbresolver.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) InsertPair(ctx context.Context, debit, credit Entry) error {
	err := postgres.WithTx(ctx, r.db, func(tx dbresolver.Tx) error {
		for _, e := range []Entry{debit, credit} {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO ledger_entries (`+entryColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				e.ID, e.ReferenceID, e.AccountID, e.CustomerID, e.BranchID, string(e.EntryType), e.Amount, e.Narration, e.CreatedAt,
			); err != nil {
				return err
			}
		}

		return nil
	})

	if postgres.IsUniqueViolation(err) {
		return fmt.Errorf("reference %s: %w", debit.ReferenceID, ErrDuplicateReference)
	}

	if err != nil {
		return fmt.Errorf("insert ledger entries %s: %w", debit.ReferenceID, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e         Entry
		entryType string
	)

	if err := row.Scan(&e.ID, &e.ReferenceID, &e.AccountID, &e.CustomerID, &e.BranchID,
		&entryType, &e.Amount, &e.Narration, &e.CreatedAt); err != nil {
		return Entry{}, err
	}

	e.EntryType = EntryType(entryType)
	e.CreatedAt = e.CreatedAt.UTC()

	return e, nil
}

// ListByReference reads the primary: it backs the idempotency check that
// precedes every insert.
func (r *PostgresRepository) ListByReference(ctx context.Context, referenceID string) ([]Entry, error) {
	var out []Entry

	err := postgres.WithTx(ctx, r.db, func(tx dbresolver.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT `+entryColumns+` FROM ledger_entries WHERE reference_id = $1 ORDER BY entry_type DESC`, referenceID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanEntry(rows)
			if err != nil {
				return err
			}

			out = append(out, e)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list ledger entries %s: %w", referenceID, err)
	}

	return out, nil
}

func (r *PostgresRepository) Last(ctx context.Context) (*Entry, error) {
	e, err := scanEntry(r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries ORDER BY created_at DESC, id DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("select last ledger entry: %w", err)
	}

	return &e, nil
}
