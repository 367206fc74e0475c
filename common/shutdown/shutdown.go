// common/shutdown/shutdown.go
package shutdown

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/YaganovValera/market-stream/common/logger"
)

// Safe оборачивает вызов Close()/Shutdown() с логированием.
func Safe(ctx context.Context, name string, fn func() error, log *logger.Logger) {
	log.WithContext(ctx).Info(name + ": shutting down")
	if err := fn(); err != nil {
		log.WithContext(ctx).Error(name+": shutdown error", zap.Error(err))
		return
	}
	log.WithContext(ctx).Info(name + ": shutdown complete")
}

// WithTimeout выполняет shutdown-функцию с собственным таймаутом.
// Родительский контекст к этому моменту обычно уже отменён, поэтому
// отсчёт идёт от context.Background().
func WithTimeout(name string, timeout time.Duration, fn func(ctx context.Context) error, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	Safe(ctx, name, func() error { return fn(ctx) }, log)
}
