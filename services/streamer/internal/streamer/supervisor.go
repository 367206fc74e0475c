// services/streamer/internal/streamer/supervisor.go
package streamer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/YaganovValera/market-stream/common/backoff"
	"github.com/YaganovValera/market-stream/common/logger"
	"github.com/YaganovValera/market-stream/services/streamer/internal/metrics"
)

// DefaultReconnectDelay is the pause between a closed session and the next.
const DefaultReconnectDelay = 5 * time.Second

// Session is one connect-to-close streaming run.
type Session interface {
	Stream(ctx context.Context) error
}

// Supervise restarts s after every ErrConnectionClosed, waiting delay in
// between, for as long as ctx lives. Any other error stops it and is
// returned unchanged.
func Supervise(ctx context.Context, s Session, delay time.Duration, log *logger.Logger) error {
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	log = log.Named("supervisor")
	cfg := backoff.Config{InitialInterval: delay, Constant: true}

	attempt := 0
	run := func(ctx context.Context) error {
		attempt++
		log.Info("starting session", zap.Int("attempt", attempt))
		err := s.Stream(ctx)
		switch {
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case err == nil, errors.Is(err, ErrConnectionClosed):
			if err == nil {
				err = ErrConnectionClosed
			}
			return err
		default:
			log.Error("session failed, not retrying", zap.Error(err))
			return backoff.Permanent(err)
		}
	}
	onRetry := func(err error, d time.Duration, _ int) {
		metrics.Reconnects.Inc()
		log.Warn("connection closed, reconnecting", zap.Duration("delay", d), zap.Error(err))
	}
	return backoff.ExecuteNotify(ctx, cfg, log, run, onRetry)
}
