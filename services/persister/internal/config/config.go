// services/persister/internal/config/config.go
package config

import (
	"fmt"
	"strings"

	"github.com/YaganovValera/market-stream/common/backoff"
	"github.com/YaganovValera/market-stream/common/configloader"
	"github.com/YaganovValera/market-stream/common/httpserver"
	consumer "github.com/YaganovValera/market-stream/common/kafka/consumer"
	"github.com/YaganovValera/market-stream/common/logger"
	"github.com/YaganovValera/market-stream/common/model"
	"github.com/YaganovValera/market-stream/common/telemetry"
)

const envPrefix = "PERSISTER"

// Config: все настройки сервиса.
type Config struct {
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`

	Source  SourceConfig  `mapstructure:"source"`
	Storage StorageConfig `mapstructure:"storage"`
	Quote   QuoteConfig   `mapstructure:"quote"`

	Kafka     consumer.Config  `mapstructure:"kafka"`
	HTTP      HTTPConfig       `mapstructure:"http"`
	Telemetry telemetry.Config `mapstructure:"telemetry"`
	Logging   logger.Config    `mapstructure:"logging"`
}

// SourceConfig: откуда читаются сущности.
type SourceConfig struct {
	Type   string   `mapstructure:"type"` // "stdin" | "kafka"
	Topics []string `mapstructure:"topics"`
}

// StorageConfig: реляционное хранилище.
type StorageConfig struct {
	Driver   string         `mapstructure:"driver"` // "postgres" | "sqlite"
	DSN      string         `mapstructure:"dsn"`
	MaxConns int32          `mapstructure:"max_conns"`
	Backoff  backoff.Config `mapstructure:"backoff"`
}

// QuoteConfig: переименование полей QUOTE перед записью.
type QuoteConfig struct {
	RepositoryFieldMappings model.FieldMapping `mapstructure:"repository_field_mappings"`
}

// HTTPConfig: /metrics, /healthz, /readyz.
type HTTPConfig struct {
	Enabled bool              `mapstructure:"enabled"`
	Server  httpserver.Config `mapstructure:",squash"`
}

func registerDefaults() {
	configloader.RegisterDefaults("service_name", "persister")
	configloader.RegisterDefaults("service_version", "v1.0.0")

	configloader.RegisterDefaults("source.type", "stdin")
	configloader.RegisterDefaults("source.topics", []string{"marketdata.quotes"})

	configloader.RegisterDefaults("storage.driver", "sqlite")
	configloader.RegisterDefaults("storage.dsn", "quotes.db")
	configloader.RegisterDefaults("storage.max_conns", 4)
	configloader.RegisterDefaults("storage.backoff.initial_interval", "1s")
	configloader.RegisterDefaults("storage.backoff.max_elapsed_time", "1m")

	configloader.RegisterDefaults("quote.repository_field_mappings", []map[string]interface{}{
		{"from": "key", "to": "symbol"},
		{"from": "timestamp", "to": "quote_timestamp"},
	})

	configloader.RegisterDefaults("kafka.brokers", []string{})
	configloader.RegisterDefaults("kafka.group_id", "persister")
	configloader.RegisterDefaults("kafka.version", "2.8.0")
	configloader.RegisterDefaults("kafka.initial_offset", "oldest")

	configloader.RegisterDefaults("http.enabled", false)
	configloader.RegisterDefaults("http.addr", ":8081")

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

func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}

	switch c.Source.Type {
	case "stdin":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 || c.Kafka.GroupID == "" {
			return fmt.Errorf("kafka.brokers and kafka.group_id are required for the kafka source")
		}
		if len(c.Source.Topics) == 0 {
			return fmt.Errorf("source.topics must contain at least one topic")
		}
	default:
		return fmt.Errorf("source.type must be one of [stdin, kafka]")
	}

	switch c.Storage.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("storage.driver must be one of [postgres, sqlite]")
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required")
	}

	if err := c.Quote.RepositoryFieldMappings.Validate(); err != nil {
		return fmt.Errorf("quote.repository_field_mappings: %w", err)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error]")
	}
	return nil
}

// Mappings: таблица переименований для репозитория.
func (c *Config) Mappings() model.MappingTable {
	return model.MappingTable{model.Quote: c.Quote.RepositoryFieldMappings}
}
