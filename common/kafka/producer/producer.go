// common/kafka/producer/producer.go
package producer

import (
	"context"
	"fmt"
	"strings"
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
// Service label (заполняется через common.InitServiceName)
// -----------------------------------------------------------------------------

var serviceLabel = "unknown"

// SetServiceLabel вызывается из common.InitServiceName(..) один раз при старте.
func SetServiceLabel(name string) { serviceLabel = name }

// -----------------------------------------------------------------------------
// Prometheus-метрики
// -----------------------------------------------------------------------------

const (
	resultOK    = "ok"
	resultError = "error"
)

func result(err error) string {
	if err != nil {
		return resultError
	}
	return resultOK
}

var producerMetrics = struct {
	Connects       *prometheus.CounterVec
	Published      *prometheus.CounterVec
	PublishLatency *prometheus.HistogramVec
	Pings          *prometheus.CounterVec
}{
	Connects: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "common", Subsystem: "kafka_producer", Name: "connects_total",
			Help: "Kafka producer connect attempts by result",
		},
		[]string{"service", "result"},
	),
	Published: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "common", Subsystem: "kafka_producer", Name: "published_total",
			Help: "Published messages by topic and result",
		},
		[]string{"service", "topic", "result"},
	),
	PublishLatency: promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "common", Subsystem: "kafka_producer", Name: "publish_latency_seconds",
			Help:    "Publish latency including retries (seconds)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "topic"},
	),
	Pings: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "common", Subsystem: "kafka_producer", Name: "pings_total",
			Help: "Metadata refreshes used as readiness pings, by result",
		},
		[]string{"service", "result"},
	),
}

var tracer = otel.Tracer("kafka-producer")

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config groups all tunables for a Kafka sync producer.
// Zero values are replaced with defaults by applyDefaults().
type Config struct {
	Brokers  []string `mapstructure:"brokers"`
	ClientID string   `mapstructure:"client_id"`

	// RequiredAcks: "all" (дефолт) | "leader" | "none".
	// Идемпотентность включается только при "all".
	RequiredAcks string `mapstructure:"required_acks"`

	// Timeout: максимальное время ожидания ack от кластера.
	Timeout time.Duration `mapstructure:"timeout"`

	// Compression: "none" (дефолт) | "gzip" | "snappy" | "lz4" | "zstd".
	Compression string `mapstructure:"compression"`

	// Partitioner: "hash" (дефолт, порядок по ключу) | "random" | "roundrobin".
	Partitioner string `mapstructure:"partitioner"`

	// FlushFrequency / FlushMessages: батчинг; ноль → выключено.
	FlushFrequency time.Duration `mapstructure:"flush_frequency"`
	FlushMessages  int           `mapstructure:"flush_messages"`

	// Backoff: ретраи подключения и отправки.
	Backoff backoff.Config `mapstructure:"backoff"`
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RequiredAcks == "" {
		c.RequiredAcks = "all"
	}
	if c.Compression == "" {
		c.Compression = "none"
	}
	if c.Partitioner == "" {
		c.Partitioner = "hash"
	}
	if c.ClientID == "" {
		c.ClientID = serviceLabel
	}
}

func (c Config) validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka producer: brokers required")
	}
	return nil
}

var (
	acksByName = map[string]sarama.RequiredAcks{
		"all":    sarama.WaitForAll,
		"leader": sarama.WaitForLocal,
		"none":   sarama.NoResponse,
	}
	codecByName = map[string]sarama.CompressionCodec{
		"none":   sarama.CompressionNone,
		"gzip":   sarama.CompressionGZIP,
		"snappy": sarama.CompressionSnappy,
		"lz4":    sarama.CompressionLZ4,
		"zstd":   sarama.CompressionZSTD,
	}
	partitionerByName = map[string]sarama.PartitionerConstructor{
		"hash":       sarama.NewHashPartitioner,
		"random":     sarama.NewRandomPartitioner,
		"roundrobin": sarama.NewRoundRobinPartitioner,
	}
)

func buildSaramaConfig(c Config) (*sarama.Config, error) {
	sc := sarama.NewConfig()
	sc.ClientID = c.ClientID

	acks, ok := acksByName[strings.ToLower(c.RequiredAcks)]
	if !ok {
		return nil, fmt.Errorf("kafka producer: invalid RequiredAcks %q", c.RequiredAcks)
	}
	codec, ok := codecByName[strings.ToLower(c.Compression)]
	if !ok {
		return nil, fmt.Errorf("kafka producer: invalid Compression %q", c.Compression)
	}
	part, ok := partitionerByName[strings.ToLower(c.Partitioner)]
	if !ok {
		return nil, fmt.Errorf("kafka producer: invalid Partitioner %q", c.Partitioner)
	}

	sc.Producer.RequiredAcks = acks
	sc.Producer.Compression = codec
	sc.Producer.Partitioner = part
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Timeout = c.Timeout
	if acks == sarama.WaitForAll {
		sc.Producer.Idempotent = true
		sc.Net.MaxOpenRequests = 1
	}
	if c.FlushFrequency > 0 {
		sc.Producer.Flush.Frequency = c.FlushFrequency
	}
	if c.FlushMessages > 0 {
		sc.Producer.Flush.Messages = c.FlushMessages
	}
	return sc, sc.Validate()
}

// toSarama переводит общий Message в запись Sarama.
func toSarama(msg *commonkafka.Message) *sarama.ProducerMessage {
	pm := &sarama.ProducerMessage{
		Topic: msg.Topic,
		Value: sarama.ByteEncoder(msg.Value),
	}
	if msg.Key != nil {
		pm.Key = sarama.ByteEncoder(msg.Key)
	}
	if !msg.Timestamp.IsZero() {
		pm.Timestamp = msg.Timestamp
	}
	for k, v := range msg.Headers {
		pm.Headers = append(pm.Headers, sarama.RecordHeader{Key: []byte(k), Value: v})
	}
	return pm
}

// -----------------------------------------------------------------------------
// Producer implementation
// -----------------------------------------------------------------------------

type kafkaProducer struct {
	prod       sarama.SyncProducer
	client     sarama.Client
	log        *logger.Logger
	backoffCfg backoff.Config
}

// New подключается к кластеру с ретраями и возвращает sync producer,
// обёрнутый otelsarama (контекст трассировки уходит в заголовки).
func New(ctx context.Context, cfg Config, log *logger.Logger) (commonkafka.Producer, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log = log.Named("kafka-producer")

	sc, err := buildSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}

	var (
		client   sarama.Client
		syncProd sarama.SyncProducer
	)
	connect := func(ctx context.Context) error {
		c, err := sarama.NewClient(cfg.Brokers, sc)
		if err == nil {
			var p sarama.SyncProducer
			if p, err = sarama.NewSyncProducerFromClient(c); err == nil {
				client, syncProd = c, p
			} else {
				_ = c.Close()
			}
		}
		producerMetrics.Connects.WithLabelValues(serviceLabel, result(err)).Inc()
		return err
	}

	ctxConn, span := tracer.Start(ctx, "Connect",
		trace.WithAttributes(attribute.StringSlice("brokers", cfg.Brokers)))
	defer span.End()
	if err := backoff.Execute(ctxConn, cfg.Backoff, log, connect); err != nil {
		span.RecordError(err)
		log.Error("kafka producer connect failed", zap.Error(err))
		return nil, fmt.Errorf("kafka producer: connect: %w", err)
	}

	log.Info("kafka producer ready",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("acks", cfg.RequiredAcks),
		zap.String("partitioner", cfg.Partitioner),
	)
	return newFromSyncProducer(otelsarama.WrapSyncProducer(sc, syncProd), client, cfg.Backoff, log), nil
}

func newFromSyncProducer(p sarama.SyncProducer, client sarama.Client, bo backoff.Config, log *logger.Logger) *kafkaProducer {
	return &kafkaProducer{prod: p, client: client, log: log, backoffCfg: bo}
}

// Publish отправляет сообщение, повторяя временные ошибки.
func (k *kafkaProducer) Publish(ctx context.Context, msg *commonkafka.Message) error {
	ctx, span := tracer.Start(ctx, "Publish", trace.WithAttributes(attribute.String("topic", msg.Topic)))
	defer span.End()
	start := time.Now()

	var partition int32
	var offset int64
	send := func(context.Context) error {
		var err error
		partition, offset, err = k.prod.SendMessage(toSarama(msg))
		return err
	}
	err := backoff.Execute(ctx, k.backoffCfg, k.log, send)

	producerMetrics.PublishLatency.WithLabelValues(serviceLabel, msg.Topic).Observe(time.Since(start).Seconds())
	producerMetrics.Published.WithLabelValues(serviceLabel, msg.Topic, result(err)).Inc()
	if err != nil {
		span.RecordError(err)
		k.log.WithContext(ctx).Error("publish failed", zap.String("topic", msg.Topic), zap.Error(err))
		return err
	}
	span.SetAttributes(attribute.Int("partition", int(partition)), attribute.Int64("offset", offset))
	return nil
}

// Ping обновляет метаданные клиента, проверяя доступность кластера.
func (k *kafkaProducer) Ping(ctx context.Context) error {
	if k.client == nil {
		return fmt.Errorf("kafka producer: no client")
	}
	_, span := tracer.Start(ctx, "Ping")
	defer span.End()
	err := k.client.RefreshMetadata()
	producerMetrics.Pings.WithLabelValues(serviceLabel, result(err)).Inc()
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// Close закрывает продьюсер, затем клиент.
func (k *kafkaProducer) Close() error {
	if err := k.prod.Close(); err != nil {
		k.log.Error("producer close failed", zap.Error(err))
		return err
	}
	if k.client != nil {
		if err := k.client.Close(); err != nil {
			k.log.Error("client close failed", zap.Error(err))
			return err
		}
	}
	k.log.Info("kafka producer closed")
	return nil
}
