// services/streamer/internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/YaganovValera/market-stream/common"
	"github.com/YaganovValera/market-stream/common/httpserver"
	producer "github.com/YaganovValera/market-stream/common/kafka/producer"
	"github.com/YaganovValera/market-stream/common/logger"
	"github.com/YaganovValera/market-stream/common/redis"
	"github.com/YaganovValera/market-stream/common/shutdown"
	"github.com/YaganovValera/market-stream/common/telemetry"

	"github.com/YaganovValera/market-stream/services/streamer/internal/amtclient"
	"github.com/YaganovValera/market-stream/services/streamer/internal/config"
	"github.com/YaganovValera/market-stream/services/streamer/internal/metrics"
	"github.com/YaganovValera/market-stream/services/streamer/internal/service"
	"github.com/YaganovValera/market-stream/services/streamer/internal/sink"
	"github.com/YaganovValera/market-stream/services/streamer/internal/streamer"
	"github.com/YaganovValera/market-stream/services/streamer/internal/tokenstore"
)

const closeTimeout = 5 * time.Second

// Run собирает все компоненты и держит сессию до отмены ctx или фатальной ошибки.
func Run(ctx context.Context, cfg *config.Config, out io.Writer, log *logger.Logger) error {
	common.InitServiceName(cfg.ServiceName)
	metrics.Register(nil)

	// Трассировка
	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdown.WithTimeout("telemetry", closeTimeout, shutdownTracer, log)

	// 1) Хранилище токенов
	store, closeStore, err := newTokenStore(ctx, cfg.TokenStore, log)
	if err != nil {
		return err
	}
	defer shutdown.Safe(ctx, "token-store", closeStore, log)

	// 2) REST-клиент и OAuth2
	httpClient := &http.Client{Timeout: cfg.Client.HTTPTimeout}
	exec := amtclient.NewExecutor(httpClient, nil, log)
	tokens, err := amtclient.NewTokenRetriever(ctx, amtclient.TokenConfig{
		ClientID:    cfg.Client.ConsumerKey,
		RedirectURI: cfg.Client.CallbackURL,
		Code:        cfg.Client.Code,
		TokenURL:    cfg.Client.TokenServiceURL,
	}, store, exec, log)
	if err != nil {
		return fmt.Errorf("token retriever init: %w", err)
	}
	authed := exec.WithTokenSource(tokens)
	principals := func(ctx context.Context) (streamer.Principals, error) {
		p, err := amtclient.NewPrincipalsRetriever(ctx, cfg.Client.UserPrincipalsServiceURL, authed)
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	// 3) Sink
	emitter, closeSink, err := newEmitter(ctx, cfg, out, log)
	if err != nil {
		return err
	}
	defer shutdown.Safe(ctx, "sink", closeSink, log)

	// 4) Сессия
	registry := service.NewRegistry(service.Deps{
		Quote: service.QuoteConfig{
			Keys:     cfg.Quote.KeysParam(),
			Mappings: cfg.Quote.FieldMappings,
		},
		Emitter: emitter,
		Log:     log,
	})
	session := streamer.New(streamer.Config{
		Service:          service.Type(cfg.Streamer.Service),
		Scheme:           cfg.Streamer.Scheme,
		Path:             cfg.Streamer.Path,
		HandshakeTimeout: cfg.Streamer.HandshakeTimeout,
		ReadTimeout:      cfg.Streamer.ReadTimeout,
		WriteTimeout:     cfg.Streamer.WriteTimeout,
	}, principals, registry, log)

	g, gctx := errgroup.WithContext(ctx)

	// HTTP: /metrics, /healthz, /readyz
	if cfg.HTTP.Enabled {
		readiness := func() error {
			if s := session.State(); s != streamer.Streaming {
				return fmt.Errorf("session is %s", s)
			}
			return nil
		}
		httpSrv, err := httpserver.New(cfg.HTTP.Server, readiness, log)
		if err != nil {
			return fmt.Errorf("httpserver init: %w", err)
		}
		g.Go(func() error { return httpSrv.Start(gctx) })
	}

	g.Go(func() error {
		return streamer.Supervise(gctx, session, cfg.Streamer.ReconnectDelay, log)
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			log.WithContext(ctx).Info("streamer stopped by context")
			return nil
		}
		return err
	}
	return nil
}

func newTokenStore(ctx context.Context, cfg config.TokenStoreConfig, log *logger.Logger) (tokenstore.Store, func() error, error) {
	switch cfg.Type {
	case "redis":
		client, err := redis.Connect(ctx, cfg.Redis, log)
		if err != nil {
			return nil, nil, fmt.Errorf("redis token store: %w", err)
		}
		return tokenstore.NewRedisStore(client, cfg.RedisKey, cfg.Redis.Backoff, log), client.Close, nil
	default:
		return tokenstore.NewFileStore(cfg.File, log), func() error { return nil }, nil
	}
}

func newEmitter(ctx context.Context, cfg *config.Config, out io.Writer, log *logger.Logger) (sink.Emitter, func() error, error) {
	switch cfg.Sink.Type {
	case "kafka":
		prod, err := producer.New(ctx, cfg.Kafka, log)
		if err != nil {
			return nil, nil, fmt.Errorf("kafka producer init: %w", err)
		}
		log.Info("sink: kafka", zap.String("topic", cfg.Sink.Topic))
		return sink.NewKafkaEmitter(prod, cfg.Sink.Topic, log), prod.Close, nil
	default:
		if out == nil {
			out = os.Stdout
		}
		return sink.NewLineEmitter(out), func() error { return nil }, nil
	}
}
