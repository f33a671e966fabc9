package circuitbreaker

import (
	"context"

	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/log"
	"github.com/Praveen-crypto-tech/core-banking-microservices/internal/metrics"
)

type metricsListener struct {
	factory *metrics.Factory
	logger  log.Logger
}

// NewMetricsListener returns a StateChangeListener that counts every
// transition on factory.
func NewMetricsListener(factory *metrics.Factory, logger log.Logger) StateChangeListener {
	if factory == nil {
		factory = metrics.NewNopFactory()
	}

	if logger == nil {
		logger = log.NewNop()
	}

	return &metricsListener{factory: factory, logger: logger}
}

func (l *metricsListener) OnStateChange(serviceName string, from, to State) {
	ctx := context.Background()

	if err := l.factory.RecordBreakerTransition(ctx, serviceName, string(from), string(to)); err != nil {
		l.logger.Log(ctx, log.LevelDebug, "failed to record breaker transition",
			log.String("service", serviceName), log.Err(err))
	}
}
