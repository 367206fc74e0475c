// services/streamer/internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/YaganovValera/market-stream/common/configloader"
	"github.com/YaganovValera/market-stream/common/httpserver"
	producer "github.com/YaganovValera/market-stream/common/kafka/producer"
	"github.com/YaganovValera/market-stream/common/logger"
	"github.com/YaganovValera/market-stream/common/model"
	"github.com/YaganovValera/market-stream/common/redis"
	"github.com/YaganovValera/market-stream/common/telemetry"
)

const envPrefix = "STREAMER"

// -----------------------------------------------------------------------------
// Структуры
// -----------------------------------------------------------------------------

// Config: все настройки сервиса.
type Config struct {
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`

	Client     ClientConfig     `mapstructure:"client"`
	TokenStore TokenStoreConfig `mapstructure:"token_store"`
	Streamer   StreamerConfig   `mapstructure:"streamer"`
	Quote      QuoteConfig      `mapstructure:"quote"`
	Sink       SinkConfig       `mapstructure:"sink"`

	Kafka     producer.Config  `mapstructure:"kafka"`
	HTTP      HTTPConfig       `mapstructure:"http"`
	Telemetry telemetry.Config `mapstructure:"telemetry"`
	Logging   logger.Config    `mapstructure:"logging"`
}

// ClientConfig: OAuth2-клиент брокера и его REST-эндпоинты.
type ClientConfig struct {
	ConsumerKey              string        `mapstructure:"consumer_key"`
	CallbackURL              string        `mapstructure:"callback_url"`
	Code                     string        `mapstructure:"code"`
	TokenServiceURL          string        `mapstructure:"token_service_url"`
	UserPrincipalsServiceURL string        `mapstructure:"user_principals_service_url"`
	HTTPTimeout              time.Duration `mapstructure:"http_timeout"`
}

// TokenStoreConfig выбирает, где кешируется TokenState.
type TokenStoreConfig struct {
	Type     string       `mapstructure:"type"` // "file" | "redis"
	File     string       `mapstructure:"file"`
	Redis    redis.Config `mapstructure:"redis"`
	RedisKey string       `mapstructure:"redis_key"`
}

// StreamerConfig: параметры WebSocket-сессии.
type StreamerConfig struct {
	Service          string        `mapstructure:"service"`
	Scheme           string        `mapstructure:"scheme"`
	Path             string        `mapstructure:"path"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	ReconnectDelay   time.Duration `mapstructure:"reconnect_delay"`
}

// QuoteConfig: подписка QUOTE.
type QuoteConfig struct {
	ServiceKeys   []string           `mapstructure:"service_keys"`
	FieldMappings model.FieldMapping `mapstructure:"field_mappings"`
}

// SinkConfig: куда уходят сущности.
type SinkConfig struct {
	Type  string `mapstructure:"type"` // "stdout" | "kafka"
	Topic string `mapstructure:"topic"`
}

// HTTPConfig: /metrics, /healthz, /readyz.
type HTTPConfig struct {
	Enabled bool              `mapstructure:"enabled"`
	Server  httpserver.Config `mapstructure:",squash"`
}

// -----------------------------------------------------------------------------
// Load
// -----------------------------------------------------------------------------

func registerDefaults() {
	configloader.RegisterDefaults("service_name", "streamer")
	configloader.RegisterDefaults("service_version", "v1.0.0")

	configloader.RegisterDefaults("client.token_service_url", "https://api.tdameritrade.com/v1/oauth2/token")
	configloader.RegisterDefaults("client.user_principals_service_url", "https://api.tdameritrade.com/v1/userprincipals")
	configloader.RegisterDefaults("client.callback_url", "https://localhost")
	configloader.RegisterDefaults("client.consumer_key", "")
	configloader.RegisterDefaults("client.code", "")
	configloader.RegisterDefaults("client.http_timeout", "15s")

	configloader.RegisterDefaults("token_store.type", "file")
	configloader.RegisterDefaults("token_store.file", "token.json")
	configloader.RegisterDefaults("token_store.redis.url", "")
	configloader.RegisterDefaults("token_store.redis_key", "streamer:token")
	configloader.RegisterDefaults("token_store.redis.backoff.initial_interval", "200ms")
	configloader.RegisterDefaults("token_store.redis.backoff.max_interval", "2s")
	configloader.RegisterDefaults("token_store.redis.backoff.max_elapsed_time", "10s")
	configloader.RegisterDefaults("token_store.redis.backoff.max_retries", 5)

	configloader.RegisterDefaults("streamer.service", "QUOTE")
	configloader.RegisterDefaults("streamer.scheme", "wss")
	configloader.RegisterDefaults("streamer.path", "/ws")
	configloader.RegisterDefaults("streamer.handshake_timeout", "10s")
	configloader.RegisterDefaults("streamer.read_timeout", "60s")
	configloader.RegisterDefaults("streamer.write_timeout", "10s")
	configloader.RegisterDefaults("streamer.reconnect_delay", "5s")

	configloader.RegisterDefaults("quote.field_mappings", []map[string]interface{}{
		{"from": "1", "to": "bid_price"},
		{"from": "2", "to": "ask_price"},
		{"from": "3", "to": "last_price"},
		{"from": "4", "to": "bid_size"},
		{"from": "5", "to": "ask_size"},
		{"from": "6", "to": "ask_id"},
		{"from": "7", "to": "bid_id"},
		{"from": "8", "to": "total_volume"},
		{"from": "9", "to": "last_size"},
		{"from": "10", "to": "trade_time"},
		{"from": "11", "to": "quote_time"},
	})

	configloader.RegisterDefaults("quote.service_keys", []string{})

	configloader.RegisterDefaults("sink.type", "stdout")
	configloader.RegisterDefaults("sink.topic", "marketdata.quotes")

	configloader.RegisterDefaults("kafka.brokers", []string{})
	configloader.RegisterDefaults("kafka.required_acks", "all")
	configloader.RegisterDefaults("kafka.timeout", "15s")
	configloader.RegisterDefaults("kafka.compression", "none")

	configloader.RegisterDefaults("http.enabled", false)
	configloader.RegisterDefaults("http.addr", ":8080")

	configloader.RegisterDefaults("telemetry.enabled", false)
	configloader.RegisterDefaults("telemetry.endpoint", "otel-collector:4317")
	configloader.RegisterDefaults("telemetry.insecure", true)
	configloader.RegisterDefaults("telemetry.sampler_ratio", 1.0)

	configloader.RegisterDefaults("logging.level", "info")
	configloader.RegisterDefaults("logging.dev_mode", false)
}

// Load загружает и валидирует конфиг. Если path пустой, читаются только ENV и defaults.
func Load(path string) (*Config, error) {
	registerDefaults()
	var cfg Config
	if err := configloader.Load(path, envPrefix, &cfg); err != nil {
		return nil, err
	}
	cfg.Telemetry.ServiceName = cfg.ServiceName
	cfg.Telemetry.ServiceVersion = cfg.ServiceVersion
	return &cfg, nil
}

// -----------------------------------------------------------------------------
// Validation
// -----------------------------------------------------------------------------

func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}

	// Client
	if c.Client.ConsumerKey == "" {
		return fmt.Errorf("client.consumer_key is required")
	}
	for k, u := range map[string]string{
		"client.token_service_url":           c.Client.TokenServiceURL,
		"client.user_principals_service_url": c.Client.UserPrincipalsServiceURL,
	} {
		if _, err := url.ParseRequestURI(u); err != nil {
			return fmt.Errorf("%s is invalid: %w", k, err)
		}
	}

	// Token store
	switch c.TokenStore.Type {
	case "file":
		if c.TokenStore.File == "" {
			return fmt.Errorf("token_store.file is required")
		}
	case "redis":
		if c.TokenStore.Redis.URL == "" || c.TokenStore.RedisKey == "" {
			return fmt.Errorf("token_store.redis.url and token_store.redis_key are required")
		}
	default:
		return fmt.Errorf("token_store.type must be one of [file, redis]")
	}

	// Streamer
	if c.Streamer.Service == "" {
		return fmt.Errorf("streamer.service is required")
	}
	switch c.Streamer.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("streamer.scheme must be one of [ws, wss]")
	}
	if !strings.HasPrefix(c.Streamer.Path, "/") {
		return fmt.Errorf("streamer.path must start with '/'")
	}
	if c.Streamer.ReadTimeout <= 0 || c.Streamer.WriteTimeout <= 0 {
		return fmt.Errorf("streamer.read_timeout and streamer.write_timeout must be > 0")
	}
	if c.Streamer.ReconnectDelay <= 0 {
		return fmt.Errorf("streamer.reconnect_delay must be > 0")
	}

	// Quote
	if len(c.Quote.ServiceKeys) == 0 {
		return fmt.Errorf("quote.service_keys must contain at least one entry")
	}
	if err := c.Quote.FieldMappings.Validate(); err != nil {
		return fmt.Errorf("quote.field_mappings: %w", err)
	}

	// Sink
	switch c.Sink.Type {
	case "stdout":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 || c.Sink.Topic == "" {
			return fmt.Errorf("kafka.brokers and sink.topic are required for the kafka sink")
		}
	default:
		return fmt.Errorf("sink.type must be one of [stdout, kafka]")
	}

	// Logging
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error]")
	}
	return nil
}

// KeysParam: ключи подписки в виде comma-list.
func (q QuoteConfig) KeysParam() string {
	return strings.Join(q.ServiceKeys, ",")
}
