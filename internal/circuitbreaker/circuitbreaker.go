// Package circuitbreaker guards calls to downstream corebank services with
// sony/gobreaker breakers, one per service name.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"github.com/sony/gobreaker"
)

// ErrUnavailable is wrapped into every error returned because a breaker
// rejected the call without running it.
var ErrUnavailable = errors.New("service unavailable")

// Config holds breaker thresholds.
type Config struct {
	MaxRequests         uint32        // requests allowed while half-open
	Interval            time.Duration // closed-state window after which counts reset
	Timeout             time.Duration // open-state duration before probing
	ConsecutiveFailures uint32
	FailureRatio        float64
	MinRequests         uint32
}

// DefaultConfig suits service-to-service HTTP calls inside the bank.
func DefaultConfig() Config {
	return Config{
		MaxRequests:         3,
		Interval:            2 * time.Minute,
		Timeout:             10 * time.Second,
		ConsecutiveFailures: 5,
		FailureRatio:        0.5,
		MinRequests:         10,
	}
}

// State is a breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
	StateUnknown  State = "unknown"
)

// Counts mirrors gobreaker.Counts.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// StateChangeListener is notified on every breaker transition.
type StateChangeListener interface {
	OnStateChange(serviceName string, from, to State)
}

// Manager owns the breakers for every downstream service.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker
	logger   log.Logger

	listenersMu sync.RWMutex
	listeners   []StateChangeListener
}

// NewManager creates an empty Manager.
func NewManager(logger log.Logger) *Manager {
	if logger == nil {
		logger = log.NewNop()
	}

	return &Manager{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		logger:   logger,
	}
}

// Register creates the breaker for serviceName if it does not exist yet.
func (m *Manager) Register(serviceName string, cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.breakers[serviceName]; ok {
		return
	}

	m.breakers[serviceName] = m.newBreaker(serviceName, cfg)
}

func (m *Manager) newBreaker(serviceName string, cfg Config) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "service-" + serviceName,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
				return true
			}

			if counts.Requests < cfg.MinRequests || counts.Requests == 0 {
				return false
			}

			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			var ignored *ignoredError

			return err == nil || errors.As(err, &ignored)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			m.notify(serviceName, convertState(from), convertState(to))
		},
	})
}

// Execute runs fn through serviceName's breaker, registering one with
// DefaultConfig on first use.
func (m *Manager) Execute(serviceName string, fn func() (any, error)) (any, error) {
	m.mu.RLock()
	breaker, ok := m.breakers[serviceName]
	m.mu.RUnlock()

	if !ok {
		m.Register(serviceName, DefaultConfig())

		m.mu.RLock()
		breaker = m.breakers[serviceName]
		m.mu.RUnlock()
	}

	result, err := breaker.Execute(fn)

	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		return nil, fmt.Errorf("%w: %s circuit open", ErrUnavailable, serviceName)
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %s recovering", ErrUnavailable, serviceName)
	}

	var ignored *ignoredError
	if errors.As(err, &ignored) {
		return result, ignored.err
	}

	return result, err
}

type ignoredError struct {
	err error
}

func (e *ignoredError) Error() string { return e.err.Error() }

func (e *ignoredError) Unwrap() error { return e.err }

// Ignore marks err as a caller-side failure that must not count against the
// breaker, such as a business rejection from a healthy service. Execute
// returns the original err.
func Ignore(err error) error {
	if err == nil {
		return nil
	}

	return &ignoredError{err: err}
}

// State returns serviceName's breaker state.
func (m *Manager) State(serviceName string) State {
	m.mu.RLock()
	breaker, ok := m.breakers[serviceName]
	m.mu.RUnlock()

	if !ok {
		return StateUnknown
	}

	return convertState(breaker.State())
}

// Counts returns serviceName's breaker counters.
func (m *Manager) Counts(serviceName string) Counts {
	m.mu.RLock()
	breaker, ok := m.breakers[serviceName]
	m.mu.RUnlock()

	if !ok {
		return Counts{}
	}

	c := breaker.Counts()

	return Counts{
		Requests:             c.Requests,
		TotalSuccesses:       c.TotalSuccesses,
		TotalFailures:        c.TotalFailures,
		ConsecutiveSuccesses: c.ConsecutiveSuccesses,
		ConsecutiveFailures:  c.ConsecutiveFailures,
	}
}

// Snapshot returns the state of every registered breaker.
func (m *Manager) Snapshot() map[string]State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]State, len(m.breakers))
	for name, b := range m.breakers {
		out[name] = convertState(b.State())
	}

	return out
}

// RegisterStateChangeListener adds listener to the notification list.
func (m *Manager) RegisterStateChangeListener(listener StateChangeListener) {
	if listener == nil {
		return
	}

	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	m.listeners = append(m.listeners, listener)
}

func (m *Manager) notify(serviceName string, from, to State) {
	m.logger.Log(context.Background(), log.LevelWarn, "circuit breaker state changed",
		log.String("service", serviceName),
		log.String("from", string(from)),
		log.String("to", string(to)),
	)

	// Transitions fire from inside gobreaker while m.mu may be held, so
	// listeners live behind their own lock.
	m.listenersMu.RLock()
	listeners := append([]StateChangeListener(nil), m.listeners...)
	m.listenersMu.RUnlock()

	for _, l := range listeners {
		l.OnStateChange(serviceName, from, to)
	}
}

func convertState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateUnknown
	}
}
