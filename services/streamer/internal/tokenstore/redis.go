// services/streamer/internal/tokenstore/redis.go
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/market-stream/common/backoff"
	"github.com/YaganovValera/market-stream/common/logger"
	"github.com/YaganovValera/market-stream/common/telemetry"
)

var tracer = telemetry.Tracer("streamer/tokenstore")

// RedisStore keeps the token JSON under one key, for deployments where
// several streamer instances cannot share a file. SET replaces the value
// atomically.
type RedisStore struct {
	client     goredis.UniversalClient
	key        string
	backoffCfg backoff.Config
	log        *logger.Logger
}

// defaultRedisRetries bounds Load/Save when bo sets no limit of its own.
const defaultRedisRetries = 3

// NewRedisStore wraps an already connected client.
func NewRedisStore(client goredis.UniversalClient, key string, bo backoff.Config, log *logger.Logger) *RedisStore {
	if bo.MaxRetries == 0 && (bo.Constant || bo.MaxElapsedTime <= 0) {
		bo.MaxRetries = defaultRedisRetries
	}
	return &RedisStore{client: client, key: key, backoffCfg: bo, log: log.Named("token-redis")}
}

func (s *RedisStore) Load(ctx context.Context) (*TokenState, error) {
	ctx, span := tracer.Start(ctx, "Load", trace.WithAttributes(attribute.String("key", s.key)))
	defer span.End()

	var raw []byte
	op := func(ctx context.Context) error {
		b, err := s.client.Get(ctx, s.key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return backoff.Permanent(ErrNotFound)
		}
		if err != nil {
			return err
		}
		raw = b
		return nil
	}
	if err := backoff.Execute(ctx, s.backoffCfg, s.log, op); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		telemetry.Fail(span, err)
		return nil, fmt.Errorf("tokenstore: redis GET %q: %w", s.key, err)
	}

	var st TokenState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("tokenstore: decode %q: %w", s.key, err)
	}
	return &st, nil
}

func (s *RedisStore) Save(ctx context.Context, st *TokenState) error {
	ctx, span := tracer.Start(ctx, "Save", trace.WithAttributes(attribute.String("key", s.key)))
	defer span.End()

	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("tokenstore: encode: %w", err)
	}
	op := func(ctx context.Context) error {
		return s.client.Set(ctx, s.key, b, 0).Err()
	}
	if err := backoff.Execute(ctx, s.backoffCfg, s.log, op); err != nil {
		telemetry.Fail(span, err)
		s.log.WithContext(ctx).Error("redis SET failed", zap.String("key", s.key), zap.Error(err))
		return fmt.Errorf("tokenstore: redis SET %q: %w", s.key, err)
	}
	return nil
}
