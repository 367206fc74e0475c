// common/service.go
package common

import (
	"github.com/YaganovValera/market-stream/common/backoff"
	consumer "github.com/YaganovValera/market-stream/common/kafka/consumer"
	producer "github.com/YaganovValera/market-stream/common/kafka/producer"
	"github.com/YaganovValera/market-stream/common/redis"
)

// ServiceNameKey: ключ лейбла для метрик всех подсистем.
const ServiceNameKey = "service"

// InitServiceName задаёт единое имя сервиса для backoff, Kafka, Redis.
// Нужно вызывать в main() до любых попыток логирования или отправки метрик.
func InitServiceName(name string) {
	backoff.SetServiceLabel(name)
	producer.SetServiceLabel(name)
	consumer.SetServiceLabel(name)
	redis.SetServiceLabel(name)
}
