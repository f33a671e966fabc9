package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// RecordAccountOpened increments the accounts-opened counter.
func (f *Factory) RecordAccountOpened(ctx context.Context, accountType string) error {
	b, err := f.Counter(MetricAccountsOpened)
	if err != nil {
		return err
	}

	return b.WithAttributes(attribute.String("account_type", accountType)).AddOne(ctx)
}

// RecordTransaction records a saga reaching status along with its duration.
func (f *Factory) RecordTransaction(ctx context.Context, txType, status string, elapsed time.Duration) error {
	attrs := []attribute.KeyValue{
		attribute.String("transaction_type", txType),
		attribute.String("status", status),
	}

	counter, err := f.Counter(MetricTransactionsProcessed)
	if err != nil {
		return err
	}

	if err := counter.WithAttributes(attrs...).AddOne(ctx); err != nil {
		return err
	}

	histogram, err := f.Histogram(MetricSagaDuration)
	if err != nil {
		return err
	}

	return histogram.WithAttributes(attrs...).Record(ctx, elapsed.Milliseconds())
}

// RecordCompensation counts a compensation attempt; outcome is "reversed" or "failed".
func (f *Factory) RecordCompensation(ctx context.Context, outcome string) error {
	b, err := f.Counter(MetricCompensations)
	if err != nil {
		return err
	}

	return b.WithAttributes(attribute.String("outcome", outcome)).AddOne(ctx)
}

// RecordLedgerEntry counts a newly recorded ledger entry.
func (f *Factory) RecordLedgerEntry(ctx context.Context, entryType string) error {
	b, err := f.Counter(MetricLedgerEntries)
	if err != nil {
		return err
	}

	return b.WithAttributes(attribute.String("entry_type", entryType)).AddOne(ctx)
}

// RecordFraudCheck counts an evaluated fraud check.
func (f *Factory) RecordFraudCheck(ctx context.Context, decision string) error {
	b, err := f.Counter(MetricFraudChecks)
	if err != nil {
		return err
	}

	return b.WithAttributes(attribute.String("decision", decision)).AddOne(ctx)
}

// RecordEMI counts an EMI attempt; result is "paid" or "failed".
func (f *Factory) RecordEMI(ctx context.Context, result string) error {
	b, err := f.Counter(MetricEMIsProcessed)
	if err != nil {
		return err
	}

	return b.WithAttributes(attribute.String("result", result)).AddOne(ctx)
}

// RecordBreakerTransition counts a circuit breaker moving from one state to another.
func (f *Factory) RecordBreakerTransition(ctx context.Context, service, from, to string) error {
	b, err := f.Counter(MetricBreakerTransitions)
	if err != nil {
		return err
	}

	return b.WithAttributes(
		attribute.String("service", service),
		attribute.String("from", from),
		attribute.String("to", to),
	).AddOne(ctx)
}
