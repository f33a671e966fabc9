// Package zap adapts go.uber.org/zap to the corebank log.Logger contract.
//
// Every entry is teed to the OpenTelemetry log bridge so that logs follow the
// same export pipeline as traces and metrics.
package zap
