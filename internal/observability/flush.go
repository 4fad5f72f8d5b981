package observability

import (
	"context"
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// FlushTelemetry flushes telemetry buffers before process exit: shuts down the
// tracer provider (draining batched spans) and syncs logs. For pull-based
// Prometheus, metrics are already exposed. Call during graceful shutdown after
// in-flight requests have drained.
func FlushTelemetry(ctx context.Context, tp *sdktrace.TracerProvider, logger *zap.Logger) error {
	if tp != nil {
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("flush spans: %w", err)
		}
	}
	if logger != nil {
		if err := logger.Sync(); err != nil {
			return fmt.Errorf("flush logs: %w", err)
		}
	}
	return nil
}
