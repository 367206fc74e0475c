// common/kafka/consumer/consumer.go
package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/dnwe/otelsarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/market-stream/common/backoff"
	commonkafka "github.com/YaganovValera/market-stream/common/kafka"
	"github.com/YaganovValera/market-stream/common/logger"
)

// -----------------------------------------------------------------------------
// Service label (заполняется из common.InitServiceName)
// -----------------------------------------------------------------------------

var serviceLabel = "unknown"

// SetServiceLabel задаёт единое имя сервиса для метрик.
// Вызывается единожды из common.InitServiceName().
func SetServiceLabel(name string) { serviceLabel = name }

// -----------------------------------------------------------------------------
// Prometheus-метрики
// -----------------------------------------------------------------------------

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

var consumerMetrics = struct {
	Connects *prometheus.CounterVec
	Sessions *prometheus.CounterVec
	Messages *prometheus.CounterVec
}{
	Connects: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "common", Subsystem: "kafka_consumer", Name: "connects_total",
			Help: "Consumer group connect attempts by result",
		},
		[]string{"service", "result"},
	),
	Sessions: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "common", Subsystem: "kafka_consumer", Name: "sessions_total",
			Help: "Finished consume sessions (rebalance or error) by result",
		},
		[]string{"service", "result"},
	),
	Messages: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "common", Subsystem: "kafka_consumer", Name: "messages_total",
			Help: "Handled messages by topic and result",
		},
		[]string{"service", "topic", "result"},
	),
}

var tracer = otel.Tracer("kafka-consumer")

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config содержит параметры для Kafka ConsumerGroup.
//
// Brokers: адреса брокеров.
// GroupID: идентификатор consumer group.
// Version: строка версии Kafka (например, "2.8.0").
// InitialOffset: "oldest" | "newest" (дефолт).
// Backoff: стратегия ретраев при подключении и сбоях сессий.
type Config struct {
	Brokers       []string       `mapstructure:"brokers"`
	GroupID       string         `mapstructure:"group_id"`
	Version       string         `mapstructure:"version"`
	InitialOffset string         `mapstructure:"initial_offset"`
	Backoff       backoff.Config `mapstructure:"backoff"`
}

func (c *Config) applyDefaults() {
	if c.Version == "" {
		c.Version = "2.8.0"
	}
	if c.InitialOffset == "" {
		c.InitialOffset = "newest"
	}
}

// validate проверяет обязательные поля.
func (c Config) validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka consumer: brokers required")
	}
	if c.GroupID == "" {
		return fmt.Errorf("kafka consumer: GroupID required")
	}
	if c.Version == "" {
		return fmt.Errorf("kafka consumer: Version required")
	}
	if _, err := initialOffset(c.InitialOffset); err != nil {
		return err
	}
	return nil
}

func initialOffset(s string) (int64, error) {
	switch s {
	case "oldest":
		return sarama.OffsetOldest, nil
	case "newest":
		return sarama.OffsetNewest, nil
	default:
		return 0, fmt.Errorf("kafka consumer: invalid InitialOffset %q", s)
	}
}

// -----------------------------------------------------------------------------
// Consumer implementation
// -----------------------------------------------------------------------------

type kafkaConsumerGroup struct {
	group      sarama.ConsumerGroup
	log        *logger.Logger
	backoffCfg backoff.Config
}

// New подключает ConsumerGroup с ретраями.
func New(ctx context.Context, cfg Config, log *logger.Logger) (commonkafka.Consumer, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log = log.Named("kafka-consumer")

	sc, err := buildSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}

	var group sarama.ConsumerGroup
	connect := func(ctx context.Context) error {
		g, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
		consumerMetrics.Connects.WithLabelValues(serviceLabel, result(err)).Inc()
		if err != nil {
			return err
		}
		group = g
		return nil
	}

	ctxConn, span := tracer.Start(ctx, "Connect",
		trace.WithAttributes(attribute.StringSlice("brokers", cfg.Brokers), attribute.String("group", cfg.GroupID)))
	defer span.End()
	if err := backoff.Execute(ctxConn, cfg.Backoff, log, connect); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("kafka consumer: connect failed: %w", err)
	}

	log.Info("kafka consumer group connected",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("group", cfg.GroupID),
		zap.String("initial_offset", cfg.InitialOffset),
	)
	return &kafkaConsumerGroup{group: group, log: log, backoffCfg: cfg.Backoff}, nil
}

func buildSaramaConfig(cfg Config) (*sarama.Config, error) {
	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: invalid Version %q: %w", cfg.Version, err)
	}
	sc := sarama.NewConfig()
	sc.Version = version
	sc.Consumer.Return.Errors = true
	sc.Consumer.Offsets.Initial, _ = initialOffset(cfg.InitialOffset)
	return sc, nil
}

// Consume держит сессии группы: после ребаланса (nil) сразу открывает
// новую, после ошибки ждёт по стратегии back-off. Успешная сессия
// сбрасывает стратегию.
func (kc *kafkaConsumerGroup) Consume(ctx context.Context, topics []string, handler commonkafka.Handler) error {
	h := otelsarama.WrapConsumerGroupHandler(&consumerGroupHandler{handler: handler, log: kc.log})
	policy := kc.backoffCfg.Policy()

	for {
		err := kc.group.Consume(ctx, topics, h)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, sarama.ErrClosedConsumerGroup):
			return nil
		}
		consumerMetrics.Sessions.WithLabelValues(serviceLabel, result(err)).Inc()
		if err == nil {
			policy.Reset()
			continue
		}

		delay := policy.NextBackOff()
		if delay == backoff.Stop {
			return fmt.Errorf("kafka consumer: giving up: %w", err)
		}
		kc.log.Warn("consume session error", zap.Error(err), zap.Duration("retry_in", delay))
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Close закрывает ConsumerGroup; текущий Consume вернёт nil.
func (kc *kafkaConsumerGroup) Close() error {
	return kc.group.Close()
}

// -----------------------------------------------------------------------------
// Internal handler
// -----------------------------------------------------------------------------

type consumerGroupHandler struct {
	handler commonkafka.Handler
	log     *logger.Logger
}

func (h *consumerGroupHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim коммитит offset только успешно обработанных сообщений.
func (h *consumerGroupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for m := range claim.Messages() {
		// Родительский span приходит из заголовков, которые проставил producer.
		parent := otel.GetTextMapPropagator().Extract(sess.Context(), otelsarama.NewConsumerMessageCarrier(m))
		ctx, span := tracer.Start(parent, "HandleMessage",
			trace.WithAttributes(
				attribute.String("topic", m.Topic),
				attribute.Int64("offset", m.Offset),
			),
		)

		err := h.handler(ctx, toMessage(m))
		consumerMetrics.Messages.WithLabelValues(serviceLabel, m.Topic, result(err)).Inc()
		if err != nil {
			span.RecordError(err)
			h.log.WithContext(ctx).Error("handler error",
				zap.String("topic", m.Topic),
				zap.Int32("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err),
			)
		} else {
			sess.MarkMessage(m, "")
		}
		span.End()
	}
	return nil
}

func toMessage(m *sarama.ConsumerMessage) *commonkafka.Message {
	headers := make(map[string][]byte, len(m.Headers))
	for _, hdr := range m.Headers {
		if hdr != nil && hdr.Key != nil {
			headers[string(hdr.Key)] = hdr.Value
		}
	}
	return &commonkafka.Message{
		Topic:     m.Topic,
		Key:       m.Key,
		Value:     m.Value,
		Headers:   headers,
		Partition: m.Partition,
		Offset:    m.Offset,
		Timestamp: m.Timestamp,
	}
}
