package loan

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/apperr"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryRepository keeps loans in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	loans map[uuid.UUID]Loan
	emis  map[uuid.UUID]EMI
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		loans: make(map[uuid.UUID]Loan),
		emis:  make(map[uuid.UUID]EMI),
	}
}

func (r *MemoryRepository) CreateLoan(_ context.Context, loan Loan, schedule []EMI) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.loans[loan.ID]; ok {
		return fmt.Errorf("loan %s already exists", loan.ID)
	}

	loan.Schedule = nil
	r.loans[loan.ID] = loan

	for _, e := range schedule {
		r.emis[e.ID] = e
	}

	return nil
}

func (r *MemoryRepository) FindLoan(_ context.Context, id uuid.UUID) (Loan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loan, ok := r.loans[id]
	if !ok {
		return Loan{}, fmt.Errorf("loan %s: %w", id, apperr.ErrLoanNotFound)
	}

	return loan, nil
}

func (r *MemoryRepository) Schedule(_ context.Context, loanID uuid.UUID) ([]EMI, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []EMI

	for _, e := range r.emis {
		if e.LoanID == loanID {
			out = append(out, e)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })

	return out, nil
}

func (r *MemoryRepository) collect(keep func(EMI) bool) []DueEMI {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []DueEMI

	for _, e := range r.emis {
		if keep(e) {
			out = append(out, DueEMI{EMI: e, Loan: r.loans[e.LoanID]})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].EMI, out[j].EMI
		if !a.DueDate.Equal(b.DueDate.Time) {
			return a.DueDate.Before(b.DueDate.Time)
		}

		if a.LoanID != b.LoanID {
			return a.LoanID.String() < b.LoanID.String()
		}

		return a.Number < b.Number
	})

	return out
}

func (r *MemoryRepository) DueEMIs(_ context.Context, asOf Date) ([]DueEMI, error) {
	return r.collect(func(e EMI) bool {
		return e.Status == EMIPending && !e.DueDate.After(asOf.Time)
	}), nil
}

func (r *MemoryRepository) Unpaid(_ context.Context, before Date) ([]DueEMI, error) {
	return r.collect(func(e EMI) bool {
		return e.Status != EMIPaid && e.DueDate.Before(before.Time)
	}), nil
}

func (r *MemoryRepository) MarkPaid(_ context.Context, emiID uuid.UUID, paidDate Date, txID *uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.emis[emiID]
	if !ok || e.Status != EMIPending {
		return false, nil
	}

	e.Status = EMIPaid
	e.PaidDate = &paidDate
	e.OverdueDays = 0
	e.PenaltyAmount = decimal.Zero
	e.TransactionID = txID
	r.emis[emiID] = e

	return true, nil
}

func (r *MemoryRepository) MarkOverdue(_ context.Context, emiID uuid.UUID, overdueDays int, penalty decimal.Decimal, txID *uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.emis[emiID]
	if !ok || e.Status != EMIPending {
		return false, nil
	}

	e.Status = EMIOverdue
	e.OverdueDays = overdueDays
	e.PenaltyAmount = penalty
	e.TransactionID = txID
	r.emis[emiID] = e

	loan := r.loans[e.LoanID]
	loan.Status = StatusOverdue
	r.loans[e.LoanID] = loan

	return true, nil
}
