// Package metrics builds the OpenTelemetry instruments corebank records.
//
// Instruments are created lazily on first use and cached by name, so callers
// can ask the Factory for the same Metric on every request.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// ErrNilMeter indicates that a nil meter was provided.
var ErrNilMeter = errors.New("metric meter cannot be nil")

// Metric describes an instrument.
type Metric struct {
	Name        string
	Description string
	Unit        string
	// Buckets are explicit histogram boundaries. Ignored for counters.
	Buckets []float64
}

// LatencyBuckets are millisecond boundaries for saga and downstream call latency.
var LatencyBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

var (
	MetricAccountsOpened = Metric{
		Name:        "corebank_accounts_opened",
		Unit:        "1",
		Description: "Number of accounts opened.",
	}

	MetricTransactionsProcessed = Metric{
		Name:        "corebank_transactions_processed",
		Unit:        "1",
		Description: "Number of transaction sagas that reached a terminal status, by type and status.",
	}

	MetricSagaDuration = Metric{
		Name:        "corebank_saga_duration",
		Unit:        "ms",
		Description: "Wall time of a transaction saga from INITIATED to a terminal status.",
		Buckets:     LatencyBuckets,
	}

	MetricCompensations = Metric{
		Name:        "corebank_saga_compensations",
		Unit:        "1",
		Description: "Number of transfer compensations attempted, by outcome.",
	}

	MetricLedgerEntries = Metric{
		Name:        "corebank_ledger_entries_recorded",
		Unit:        "1",
		Description: "Number of ledger entries recorded, by entry type.",
	}

	MetricFraudChecks = Metric{
		Name:        "corebank_fraud_checks",
		Unit:        "1",
		Description: "Number of fraud checks evaluated, by decision.",
	}

	MetricEMIsProcessed = Metric{
		Name:        "corebank_emis_processed",
		Unit:        "1",
		Description: "Number of EMIs attempted by the batch, by result.",
	}

	MetricBreakerTransitions = Metric{
		Name:        "corebank_circuit_breaker_transitions",
		Unit:        "1",
		Description: "Number of circuit breaker state changes, by service and target state.",
	}
)

// Factory creates and caches instruments on a single meter.
type Factory struct {
	meter      metric.Meter
	logger     log.Logger
	counters   sync.Map // name -> metric.Int64Counter
	histograms sync.Map // name -> metric.Int64Histogram
}

// NewFactory creates a Factory for meter.
func NewFactory(meter metric.Meter, logger log.Logger) (*Factory, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}

	if logger == nil {
		logger = log.NewNop()
	}

	return &Factory{meter: meter, logger: logger}, nil
}

// NewNopFactory returns a Factory backed by the no-op meter.
func NewNopFactory() *Factory {
	return &Factory{
		meter:  noop.NewMeterProvider().Meter("nop"),
		logger: log.NewNop(),
	}
}

// Counter returns a builder for the counter described by m.
func (f *Factory) Counter(m Metric) (*CounterBuilder, error) {
	if cached, ok := f.counters.Load(m.Name); ok {
		return &CounterBuilder{counter: cached.(metric.Int64Counter)}, nil
	}

	opts := []metric.Int64CounterOption{metric.WithDescription(m.Description)}
	if m.Unit != "" {
		opts = append(opts, metric.WithUnit(m.Unit))
	}

	counter, err := f.meter.Int64Counter(m.Name, opts...)
	if err != nil {
		f.logger.Log(context.Background(), log.LevelError, "failed to create counter metric",
			log.String("metric_name", m.Name), log.Err(err))

		return nil, fmt.Errorf("create counter %q: %w", m.Name, err)
	}

	actual, _ := f.counters.LoadOrStore(m.Name, counter)

	return &CounterBuilder{counter: actual.(metric.Int64Counter)}, nil
}

// Histogram returns a builder for the histogram described by m.
func (f *Factory) Histogram(m Metric) (*HistogramBuilder, error) {
	if cached, ok := f.histograms.Load(m.Name); ok {
		return &HistogramBuilder{histogram: cached.(metric.Int64Histogram)}, nil
	}

	opts := []metric.Int64HistogramOption{metric.WithDescription(m.Description)}
	if m.Unit != "" {
		opts = append(opts, metric.WithUnit(m.Unit))
	}

	if len(m.Buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(m.Buckets...))
	}

	histogram, err := f.meter.Int64Histogram(m.Name, opts...)
	if err != nil {
		f.logger.Log(context.Background(), log.LevelError, "failed to create histogram metric",
			log.String("metric_name", m.Name), log.Err(err))

		return nil, fmt.Errorf("create histogram %q: %w", m.Name, err)
	}

	actual, _ := f.histograms.LoadOrStore(m.Name, histogram)

	return &HistogramBuilder{histogram: actual.(metric.Int64Histogram)}, nil
}
