package observability

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// FlushTelemetry runs during graceful shutdown, after the HTTP server has
// drained and the scheduler has stopped. The Prometheus registry is
// pull-based and needs no flushing; buffered log entries do.
func FlushTelemetry(ctx context.Context, logger *zap.Logger) error {
	if logger == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("telemetry flush skipped: %w", err)
	}
	if err := logger.Sync(); err != nil {
		return fmt.Errorf("syncing log buffers: %w", err)
	}
	return nil
}
