package ledger

import (
	"context"
	"fmt"
	"sync"
)

// MemoryRepository keeps the ledger in process memory.
type MemoryRepository struct {
	mu          sync.RWMutex
	entries     []Entry
	byReference map[string][]int
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byReference: make(map[string][]int)}
}

func (r *MemoryRepository) InsertPair(_ context.Context, debit, credit Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byReference[debit.ReferenceID]; ok {
		return fmt.Errorf("reference %s: %w", debit.ReferenceID, ErrDuplicateReference)
	}

	r.entries = append(r.entries, debit, credit)
	n := len(r.entries)
	r.byReference[debit.ReferenceID] = []int{n - 2, n - 1}

	return nil
}

func (r *MemoryRepository) ListByReference(_ context.Context, referenceID string) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := r.byReference[referenceID]
	out := make([]Entry, 0, len(idx))

	for _, i := range idx {
		out = append(out, r.entries[i])
	}

	return out, nil
}

func (r *MemoryRepository) Last(context.Context) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.entries) == 0 {
		return nil, nil
	}

	e := r.entries[len(r.entries)-1]

	return &e, nil
}
