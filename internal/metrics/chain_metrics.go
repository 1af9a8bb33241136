// ============================================================================
// Villain - Content Framework
// ============================================================================
//
// Package:     metrics
// Description: OpenTelemetry instruments for request and command execution
// License:     MIT
// ============================================================================

package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

const meterName = "github.com/villain-cms/villain/internal/metrics"

// ChainMetrics records command and request outcomes. It satisfies
// chain.Observer.
type ChainMetrics struct {
	commandsExecuted metric.Int64Counter
	commandsFailed   metric.Int64Counter
	commandsSkipped  metric.Int64Counter
	commandDuration  metric.Float64Histogram
	requestDuration  metric.Float64Histogram
}

// NewChainMetrics creates the instruments on meter, or on the global
// provider when meter is nil.
func NewChainMetrics(meter metric.Meter) (*ChainMetrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	commandsExecuted, err := meter.Int64Counter(
		"villain.commands.executed",
		metric.WithDescription("Commands that completed successfully"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return nil, err
	}

	commandsFailed, err := meter.Int64Counter(
		"villain.commands.failed",
		metric.WithDescription("Commands that stopped their request"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return nil, err
	}

	commandsSkipped, err := meter.Int64Counter(
		"villain.commands.skipped",
		metric.WithDescription("Commands skipped after a soft failure"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return nil, err
	}

	commandDuration, err := meter.Float64Histogram(
		"villain.command.duration",
		metric.WithDescription("Duration of a single command in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"villain.chain.duration",
		metric.WithDescription("Duration of a complete request in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &ChainMetrics{
		commandsExecuted: commandsExecuted,
		commandsFailed:   commandsFailed,
		commandsSkipped:  commandsSkipped,
		commandDuration:  commandDuration,
		requestDuration:  requestDuration,
	}, nil
}

// CommandExecuted records a successful command
func (m *ChainMetrics) CommandExecuted(ctx context.Context, command, target string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("villain.target", target),
		attribute.String("status", "executed"),
	)
	m.commandsExecuted.Add(ctx, 1, attrs)
	m.commandDuration.Record(ctx, d.Seconds(), attrs)
}

// CommandFailed records a command that interrupted its request
func (m *ChainMetrics) CommandFailed(ctx context.Context, command, target string, d time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("villain.target", target),
		attribute.String("status", "failed"),
		attribute.String("error.code", verrors.GetCode(err).String()),
	)
	m.commandsFailed.Add(ctx, 1, attrs)
	m.commandDuration.Record(ctx, d.Seconds(), attrs)
}

// CommandSkipped records a soft failure
func (m *ChainMetrics) CommandSkipped(ctx context.Context, command, target string, d time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("villain.target", target),
		attribute.String("status", "skipped"),
	)
	m.commandsSkipped.Add(ctx, 1, attrs)
	m.commandDuration.Record(ctx, d.Seconds(), attrs)
}

// RequestCompleted records the duration of a whole request
func (m *ChainMetrics) RequestCompleted(ctx context.Context, request string, d time.Duration, err error) {
	status := "completed"
	if err != nil {
		status = "failed"
	}
	m.requestDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("villain.request", request),
			attribute.String("status", status),
		),
	)
}
