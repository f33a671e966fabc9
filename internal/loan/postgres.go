package loan

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

const (
	loanColumns = `l.id, l.customer_id, l.branch_id, l.account_id, l.loan_type, l.principal, l.interest_rate,
	l.tenure_months, l.emi_amount, l.status, l.start_date, l.end_date, l.created_at`
	emiColumns = `e.id, e.loan_id, e.emi_number, e.due_date, e.amount, e.principal_component, e.interest_component,
	e.status, e.paid_date, e.overdue_days, e.penalty_amount, e.transaction_id`
)

// PostgresRepository stores loans in loans and emi_schedules.
type PostgresRepository struct {
	db dbresolver.DB
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository returns a repository over db.
func NewPostgresRepository(db dbresolver.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateLoan(ctx context.Context, loan Loan, schedule []EMI) error {
	err := postgres.WithTx(ctx, r.db, func(tx dbresolver.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO loans (id, customer_id, branch_id, account_id, loan_type, principal, interest_rate,
			   tenure_months, emi_amount, status, start_date, end_date, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			loan.ID, loan.CustomerID, loan.BranchID, loan.AccountID, loan.LoanType, loan.Principal, loan.InterestRate,
			loan.TenureMonths, loan.EMIAmount, string(loan.Status), loan.StartDate.Time, loan.EndDate.Time, loan.CreatedAt,
		); err != nil {
			return err
		}

		for _, e := range schedule {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO emi_schedules (id, loan_id, emi_number, due_date, amount, principal_component,
				   interest_component, status, overdue_days, penalty_amount)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				e.ID, e.LoanID, e.Number, e.DueDate.Time, e.Amount, e.PrincipalComponent,
				e.InterestComponent, string(e.Status), e.OverdueDays, e.PenaltyAmount,
			); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("insert loan %s: %w", loan.ID, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner, extra ...any) (Loan, error) {
	var (
		l          Loan
		status     string
		start, end time.Time
	)

	dest := append([]any{&l.ID, &l.CustomerID, &l.BranchID, &l.AccountID, &l.LoanType, &l.Principal, &l.InterestRate,
		&l.TenureMonths, &l.EMIAmount, &status, &start, &end, &l.CreatedAt}, extra...)

	if err := row.Scan(dest...); err != nil {
		return Loan{}, err
	}

	l.Status = Status(status)
	l.StartDate = DateOf(start)
	l.EndDate = DateOf(end)
	l.CreatedAt = l.CreatedAt.UTC()

	return l, nil
}

// emiScan holds the scan targets for one emi_schedules row.
type emiScan struct {
	e      EMI
	status string
	due    time.Time
	paid   sql.NullTime
	txID   uuid.NullUUID
	fields []any
}

func newEMIScan() *emiScan {
	s := &emiScan{}
	s.fields = []any{&s.e.ID, &s.e.LoanID, &s.e.Number, &s.due, &s.e.Amount, &s.e.PrincipalComponent,
		&s.e.InterestComponent, &s.status, &s.paid, &s.e.OverdueDays, &s.e.PenaltyAmount, &s.txID}

	return s
}

func (s *emiScan) result() EMI {
	e := s.e
	e.Status = EMIStatus(s.status)
	e.DueDate = DateOf(s.due)

	if s.paid.Valid {
		d := DateOf(s.paid.Time)
		e.PaidDate = &d
	}

	if s.txID.Valid {
		id := s.txID.UUID
		e.TransactionID = &id
	}

	return e
}

func (r *PostgresRepository) FindLoan(ctx context.Context, id uuid.UUID) (Loan, error) {
	l, err := scanLoan(r.db.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans l WHERE l.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Loan{}, fmt.Errorf("loan %s: %w", id, apperr.ErrLoanNotFound)
	}

	if err != nil {
		return Loan{}, fmt.Errorf("select loan %s: %w", id, err)
	}

	return l, nil
}

func (r *PostgresRepository) Schedule(ctx context.Context, loanID uuid.UUID) ([]EMI, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+emiColumns+` FROM emi_schedules e WHERE e.loan_id = $1 ORDER BY e.emi_number`, loanID)
	if err != nil {
		return nil, fmt.Errorf("select schedule %s: %w", loanID, err)
	}
	defer rows.Close()

	var out []EMI

	for rows.Next() {
		s := newEMIScan()
		if err := rows.Scan(s.fields...); err != nil {
			return nil, fmt.Errorf("scan schedule %s: %w", loanID, err)
		}

		out = append(out, s.result())
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedule %s: %w", loanID, err)
	}

	return out, nil
}

func (r *PostgresRepository) joined(ctx context.Context, where string, arg any) ([]DueEMI, error) {
	var out []DueEMI

	// Read the primary: the batch must not act on instalments a replica still shows as PENDING.
	err := postgres.WithTx(ctx, r.db, func(tx dbresolver.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT `+loanColumns+`, `+emiColumns+`
			 FROM emi_schedules e JOIN loans l ON l.id = e.loan_id
			 WHERE `+where+`
			 ORDER BY e.due_date, e.loan_id, e.emi_number`, arg)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			s := newEMIScan()

			l, err := scanLoan(rows, s.fields...)
			if err != nil {
				return err
			}

			out = append(out, DueEMI{EMI: s.result(), Loan: l})
		}

		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("select instalments: %w", err)
	}

	return out, nil
}

func (r *PostgresRepository) DueEMIs(ctx context.Context, asOf Date) ([]DueEMI, error) {
	return r.joined(ctx, `e.status = 'PENDING' AND e.due_date <= $1`, asOf.Time)
}

func (r *PostgresRepository) Unpaid(ctx context.Context, before Date) ([]DueEMI, error) {
	return r.joined(ctx, `e.status <> 'PAID' AND e.due_date < $1`, before.Time)
}

func (r *PostgresRepository) MarkPaid(ctx context.Context, emiID uuid.UUID, paidDate Date, txID *uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE emi_schedules
		 SET status = 'PAID', paid_date = $1, overdue_days = 0, penalty_amount = 0, transaction_id = $2
		 WHERE id = $3 AND status = 'PENDING'`,
		paidDate.Time, txID, emiID)
	if err != nil {
		return false, fmt.Errorf("mark emi %s paid: %w", emiID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark emi %s paid: %w", emiID, err)
	}

	return n == 1, nil
}

func (r *PostgresRepository) MarkOverdue(ctx context.Context, emiID uuid.UUID, overdueDays int, penalty decimal.Decimal, txID *uuid.UUID) (bool, error) {
	var moved bool

	err := postgres.WithTx(ctx, r.db, func(tx dbresolver.Tx) error {
		var loanID uuid.UUID

		err := tx.QueryRowContext(ctx,
			`UPDATE emi_schedules
			 SET status = 'OVERDUE', overdue_days = $1, penalty_amount = $2, transaction_id = $3
			 WHERE id = $4 AND status = 'PENDING'
			 RETURNING loan_id`,
			overdueDays, penalty, txID, emiID).Scan(&loanID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}

		if err != nil {
			return err
		}

		moved = true

		_, err = tx.ExecContext(ctx, `UPDATE loans SET status = 'OVERDUE' WHERE id = $1`, loanID)

		return err
	})
	if err != nil {
		return false, fmt.Errorf("mark emi %s overdue: %w", emiID, err)
	}

	return moved, nil
}
