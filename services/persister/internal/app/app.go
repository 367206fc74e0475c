// services/persister/internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/YaganovValera/market-stream/common"
	"github.com/YaganovValera/market-stream/common/httpserver"
	consumer "github.com/YaganovValera/market-stream/common/kafka/consumer"
	"github.com/YaganovValera/market-stream/common/logger"
	"github.com/YaganovValera/market-stream/common/shutdown"
	"github.com/YaganovValera/market-stream/common/telemetry"

	"github.com/YaganovValera/market-stream/services/persister/internal/config"
	"github.com/YaganovValera/market-stream/services/persister/internal/ingest"
	"github.com/YaganovValera/market-stream/services/persister/internal/metrics"
	"github.com/YaganovValera/market-stream/services/persister/internal/repository"
	"github.com/YaganovValera/market-stream/services/persister/internal/source"
)

const closeTimeout = 5 * time.Second

// Run читает сущности из источника и пишет их в хранилище до EOF,
// отмены ctx или фатальной ошибки источника.
func Run(ctx context.Context, cfg *config.Config, stdin io.Reader, log *logger.Logger) error {
	common.InitServiceName(cfg.ServiceName)
	metrics.Register(nil)

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdown.WithTimeout("telemetry", closeTimeout, shutdownTracer, log)

	// 1) Хранилище
	repo, err := newRepository(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer shutdown.Safe(ctx, "repository", repo.Close, log)

	// 2) Источник
	src, err := newSource(ctx, cfg, stdin, log)
	if err != nil {
		return err
	}
	defer shutdown.Safe(ctx, "source", src.Close, log)

	in := ingest.New(repo, log)

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stopHTTP := context.WithCancel(gctx)
	defer stopHTTP()

	if cfg.HTTP.Enabled {
		readiness := func() error { return repo.Ping(runCtx) }
		httpSrv, err := httpserver.New(cfg.HTTP.Server, readiness, log)
		if err != nil {
			return fmt.Errorf("httpserver init: %w", err)
		}
		g.Go(func() error { return httpSrv.Start(runCtx) })
	}

	g.Go(func() error {
		// EOF на stdin завершает процесс целиком, включая HTTP.
		defer stopHTTP()
		return src.Run(runCtx, in.Handle)
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			log.WithContext(ctx).Info("persister stopped by context")
			return nil
		}
		return err
	}
	return nil
}

func newRepository(ctx context.Context, cfg *config.Config, log *logger.Logger) (repository.Repository, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		repo, err := repository.NewPostgres(ctx, repository.PostgresConfig{
			DSN:      cfg.Storage.DSN,
			MaxConns: cfg.Storage.MaxConns,
			Backoff:  cfg.Storage.Backoff,
		}, cfg.Mappings(), log)
		if err != nil {
			return nil, fmt.Errorf("postgres repository: %w", err)
		}
		return repo, nil
	default:
		repo, err := repository.NewSQLite(ctx, cfg.Storage.DSN, cfg.Mappings(), log)
		if err != nil {
			return nil, fmt.Errorf("sqlite repository: %w", err)
		}
		return repo, nil
	}
}

func newSource(ctx context.Context, cfg *config.Config, stdin io.Reader, log *logger.Logger) (source.Source, error) {
	switch cfg.Source.Type {
	case "kafka":
		c, err := consumer.New(ctx, cfg.Kafka, log)
		if err != nil {
			return nil, fmt.Errorf("kafka consumer init: %w", err)
		}
		return source.NewKafkaSource(c, cfg.Source.Topics...), nil
	default:
		return source.NewStdinSource(stdin, log), nil
	}
}
