package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// DefaultShutdownTimeout bounds Shutdown when no timeout is given.
const DefaultShutdownTimeout = 10 * time.Second

// disabled hands out no-op providers; the globals are left alone.
type disabled struct{}

func (disabled) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }
func (disabled) MeterProvider() metric.MeterProvider  { return metricnoop.NewMeterProvider() }
func (disabled) Shutdown(context.Context) error       { return nil }
func (disabled) ForceFlush(context.Context) error     { return nil }

// Shutdown flushes provider and then shuts it down, both within one timeout
// (DefaultShutdownTimeout when <= 0).
func Shutdown(provider Provider, timeout time.Duration) error {
	if provider == nil {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	flushErr := provider.ForceFlush(ctx)
	if err := errors.Join(flushErr, provider.Shutdown(ctx)); err != nil {
		return fmt.Errorf("observability shutdown failed: %w", err)
	}
	return nil
}
