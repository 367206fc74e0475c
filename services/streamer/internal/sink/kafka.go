// services/streamer/internal/sink/kafka.go
package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	commonkafka "github.com/YaganovValera/market-stream/common/kafka"
	"github.com/YaganovValera/market-stream/common/logger"
	"github.com/YaganovValera/market-stream/common/model"
)

// partitionKeyField holds the subscription key (ticker symbol) in every
// decoded content item.
const partitionKeyField = "key"

// ModelHeader carries the entity kind so consumers can route without
// decoding the payload.
const ModelHeader = "model"

// KafkaEmitter publishes serialized entities to a topic, keyed by symbol
// so that one symbol's quotes stay ordered within a partition.
type KafkaEmitter struct {
	producer commonkafka.Producer
	topic    string
	log      *logger.Logger
}

// NewKafkaEmitter returns an emitter publishing through producer.
func NewKafkaEmitter(producer commonkafka.Producer, topic string, log *logger.Logger) *KafkaEmitter {
	return &KafkaEmitter{producer: producer, topic: topic, log: log.Named("kafka-sink")}
}

func (k *KafkaEmitter) Emit(ctx context.Context, e *model.Entity) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("sink: encode entity: %w", err)
	}
	var key []byte
	if v, err := e.Get(partitionKeyField); err == nil && v != nil {
		key = []byte(fmt.Sprint(v))
	}
	msg := &commonkafka.Message{
		Topic:   k.topic,
		Key:     key,
		Value:   b,
		Headers: map[string][]byte{ModelHeader: []byte(e.Kind().String())},
	}
	if err := k.producer.Publish(ctx, msg); err != nil {
		k.log.WithContext(ctx).Error("publish entity failed",
			zap.String("topic", k.topic),
			zap.ByteString("key", key),
			zap.Error(err),
		)
		return fmt.Errorf("sink: publish: %w", err)
	}
	return nil
}
