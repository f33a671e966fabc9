package fraud

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/apperr"
	"github.com/google/uuid"
)

// MemoryStore keeps alerts in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	alerts map[uuid.UUID]Alert
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{alerts: make(map[uuid.UUID]Alert)}
}

func (s *MemoryStore) Save(_ context.Context, alert Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alerts[alert.ID] = alert

	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alert, ok := s.alerts[id]
	if !ok {
		return Alert{}, fmt.Errorf("alert %s: %w", id, apperr.ErrAlertNotFound)
	}

	return alert, nil
}

func (s *MemoryStore) Resolve(_ context.Context, id uuid.UUID, feedbackType string, feedbackDate, resolvedAt time.Time) (Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[id]
	if !ok {
		return Alert{}, fmt.Errorf("alert %s: %w", id, apperr.ErrAlertNotFound)
	}

	alert.FeedbackType = feedbackType
	alert.FeedbackDate = &feedbackDate
	alert.ResolvedAt = &resolvedAt
	alert.ResolutionStatus = ResolutionResolved
	s.alerts[id] = alert

	return alert, nil
}

// Len reports how many alerts are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.alerts)
}
