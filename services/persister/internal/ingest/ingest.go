// Package ingest turns entity lines into repository rows.
package ingest

import (
	"bytes"
	"context"

	"go.uber.org/zap"

	"github.com/YaganovValera/market-stream/common/logger"
	"github.com/YaganovValera/market-stream/common/model"
	"github.com/YaganovValera/market-stream/services/persister/internal/metrics"
	"github.com/YaganovValera/market-stream/services/persister/internal/repository"
)

// Ingester parses lines and stores the entities. Bad lines and failed
// inserts are logged and counted; the stream keeps going.
type Ingester struct {
	repo repository.Repository
	log  *logger.Logger
}

func New(repo repository.Repository, log *logger.Logger) *Ingester {
	return &Ingester{repo: repo, log: log.Named("ingest")}
}

// Handle processes one line. It only fails when ctx is done.
func (i *Ingester) Handle(ctx context.Context, line []byte) error {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}

	e, err := model.Parse(line)
	if err != nil {
		metrics.MalformedTotal.Inc()
		i.log.WithContext(ctx).Warn("malformed line skipped", zap.Error(err), zap.ByteString("line", truncate(line, 256)))
		return nil
	}

	if err := i.repo.Add(ctx, e); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		i.log.WithContext(ctx).Error("insert failed", zap.Stringer("model", e.Kind()), zap.Error(err))
	}
	return nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
