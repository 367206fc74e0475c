// common/redis/client.go
package redis

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/market-stream/common/backoff"
	"github.com/YaganovValera/market-stream/common/logger"
)

var serviceLabel = "unknown"

// SetServiceLabel вызывается из common.InitServiceName(..).
func SetServiceLabel(name string) { serviceLabel = name }

var redisMetrics = struct {
	ConnectAttempts *prometheus.CounterVec
	ConnectErrors   *prometheus.CounterVec
}{
	ConnectAttempts: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "common", Subsystem: "redis", Name: "connect_attempts_total",
			Help: "Redis connect (PING) attempts",
		},
		[]string{"service"},
	),
	ConnectErrors: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "common", Subsystem: "redis", Name: "connect_errors_total",
			Help: "Redis connect (PING) errors",
		},
		[]string{"service"},
	),
}

var tracer = otel.Tracer("redis-client")

// Config хранит параметры подключения к Redis.
type Config struct {
	URL     string         `mapstructure:"url"` // e.g. "redis://host:6379/0"
	Backoff backoff.Config `mapstructure:"backoff"`
}

func (c Config) validate() error {
	if c.URL == "" {
		return fmt.Errorf("redis: URL required")
	}
	return nil
}

// Connect парсит URL, создаёт клиента и проверяет соединение PING'ом с ретраями.
func Connect(ctx context.Context, cfg Config, log *logger.Logger) (*goredis.Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log = log.Named("redis")

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse URL: %w", err)
	}
	client := goredis.NewClient(opts)

	ping := func(ctx context.Context) error {
		redisMetrics.ConnectAttempts.WithLabelValues(serviceLabel).Inc()
		if err := client.Ping(ctx).Err(); err != nil {
			redisMetrics.ConnectErrors.WithLabelValues(serviceLabel).Inc()
			return err
		}
		return nil
	}
	ctxConn, span := tracer.Start(ctx, "Connect", trace.WithAttributes(attribute.String("addr", opts.Addr)))
	defer span.End()
	if err := backoff.Execute(ctxConn, cfg.Backoff, log, ping); err != nil {
		span.RecordError(err)
		_ = client.Close()
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	log.Info("redis: connected", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	return client, nil
}
