// common/kafka/interface.go
//
// Пакет kafka задаёт контракты обмена сообщениями между сервисами и не
// зависит от Sarama: реализации живут в producer/ и consumer/.
package kafka

import (
	"context"
	"time"
)

// Message: запись топика. Для Publish значимы Topic, Key, Value и Headers;
// остальные поля заполняет consumer.
type Message struct {
	Topic     string
	Key       []byte // ключ партиционирования (может быть nil)
	Value     []byte
	Headers   map[string][]byte
	Partition int32
	Offset    int64
	Timestamp time.Time
}

// Handler обрабатывает одно сообщение. ctx несёт span сообщения.
// Ошибка означает, что offset не будет закоммичен.
type Handler func(ctx context.Context, msg *Message) error

// Consumer читает топики в рамках consumer group.
//
// Consume блокирует, пока не будет отменён ctx (возвращает ctx.Err()),
// группа не будет закрыта (nil) или не случится невосстанавливаемая ошибка.
type Consumer interface {
	Consume(ctx context.Context, topics []string, handler Handler) error
	Close() error
}

// Producer публикует сообщения.
type Producer interface {
	// Publish блокирует до подтверждения согласно RequiredAcks;
	// временные ошибки повторяются по стратегии back-off.
	Publish(ctx context.Context, msg *Message) error
	// Ping проверяет достижимость кластера (обновление метаданных).
	Ping(ctx context.Context) error
	Close() error
}
