//go:build unit

package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type recordingListener struct {
	mu          sync.Mutex
	transitions []string
}

func (r *recordingListener) OnStateChange(service string, from, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.transitions = append(r.transitions, service+":"+string(from)+"->"+string(to))
}

func (r *recordingListener) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.transitions...)
}

func tripFast() Config {
	return Config{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             50 * time.Millisecond,
		ConsecutiveFailures: 2,
		FailureRatio:        1,
		MinRequests:         100,
	}
}

func TestExecutePassesThroughResults(t *testing.T) {
	t.Parallel()

	m := NewManager(log.NewNop())

	got, err := m.Execute("ledger", func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", got)

	boom := errors.New("boom")
	_, err = m.Execute("ledger", func() (any, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrUnavailable)

	assert.Equal(t, StateClosed, m.State("ledger"))
	assert.Equal(t, uint32(2), m.Counts("ledger").Requests)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	listener := &recordingListener{}
	m := NewManager(nil)
	m.RegisterStateChangeListener(listener)
	m.Register("balance", tripFast())

	fail := func() (any, error) { return nil, errors.New("down") }

	_, _ = m.Execute("balance", fail)
	_, _ = m.Execute("balance", fail)

	assert.Equal(t, StateOpen, m.State("balance"))

	called := false
	_, err := m.Execute("balance", func() (any, error) {
		called = true
		return nil, nil
	})

	assert.False(t, called)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, listener.all(), "balance:closed->open")
}

func TestIgnoredErrorsDoNotTrip(t *testing.T) {
	t.Parallel()

	m := NewManager(nil)
	m.Register("ledger", tripFast())

	rejected := errors.New("insufficient funds")

	for range 5 {
		_, err := m.Execute("ledger", func() (any, error) { return nil, Ignore(rejected) })
		assert.Same(t, rejected, err)
	}

	assert.Equal(t, StateClosed, m.State("ledger"))
	assert.Equal(t, uint32(5), m.Counts("ledger").TotalSuccesses)
	assert.NoError(t, Ignore(nil))
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	t.Parallel()

	m := NewManager(nil)
	m.Register("fraud", tripFast())

	fail := func() (any, error) { return nil, errors.New("down") }
	_, _ = m.Execute("fraud", fail)
	_, _ = m.Execute("fraud", fail)
	require.Equal(t, StateOpen, m.State("fraud"))

	assert.Eventually(t, func() bool {
		return m.State("fraud") == StateHalfOpen
	}, time.Second, 10*time.Millisecond)

	_, err := m.Execute("fraud", func() (any, error) { return nil, nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, m.State("fraud"))
}

func TestSnapshotAndUnknownService(t *testing.T) {
	t.Parallel()

	m := NewManager(nil)
	m.Register("ledger", tripFast())
	m.Register("balance", DefaultConfig())

	fail := func() (any, error) { return nil, errors.New("down") }
	_, _ = m.Execute("ledger", fail)
	_, _ = m.Execute("ledger", fail)

	snap := m.Snapshot()
	assert.Equal(t, StateOpen, snap["ledger"])
	assert.Equal(t, StateClosed, snap["balance"])

	assert.Equal(t, StateUnknown, m.State("missing"))
	assert.Equal(t, Counts{}, m.Counts("missing"))
}

func TestMetricsListenerCountsTransitions(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	factory, err := metrics.NewFactory(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("breaker-test"), log.NewNop())
	require.NoError(t, err)

	m := NewManager(nil)
	m.RegisterStateChangeListener(NewMetricsListener(factory, nil))
	m.Register("ledger", tripFast())

	fail := func() (any, error) { return nil, errors.New("down") }
	_, _ = m.Execute("ledger", fail)
	_, _ = m.Execute("ledger", fail)
	require.Equal(t, StateOpen, m.State("ledger"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var transitions int64

	for _, sm := range rm.ScopeMetrics {
		for _, got := range sm.Metrics {
			if got.Name != metrics.MetricBreakerTransitions.Name {
				continue
			}

			sum, ok := got.Data.(metricdata.Sum[int64])
			require.True(t, ok)

			for _, dp := range sum.DataPoints {
				transitions += dp.Value
			}
		}
	}

	assert.Equal(t, int64(1), transitions)
}
