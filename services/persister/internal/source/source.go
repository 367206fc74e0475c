// Package source feeds serialized entity lines to the persister.
package source

import (
	"bufio"
	"context"
	"fmt"
	"io"

	commonkafka "github.com/YaganovValera/market-stream/common/kafka"
	"github.com/YaganovValera/market-stream/common/logger"
	"github.com/YaganovValera/market-stream/services/persister/internal/metrics"
)

// MaxLineSize caps a single stdin line.
const MaxLineSize = 1 << 20

// Handler processes one line. A returned error stops the source.
type Handler func(ctx context.Context, line []byte) error

// Source delivers lines until it is exhausted or ctx is cancelled.
type Source interface {
	Run(ctx context.Context, handle Handler) error
	Close() error
}

// -----------------------------------------------------------------------------
// stdin
// -----------------------------------------------------------------------------

// StdinSource reads newline separated entities from a reader (normally
// the streamer's stdout piped in). Run returns nil at EOF.
type StdinSource struct {
	r   io.Reader
	log *logger.Logger
}

func NewStdinSource(r io.Reader, log *logger.Logger) *StdinSource {
	return &StdinSource{r: r, log: log.Named("stdin")}
}

func (s *StdinSource) Run(ctx context.Context, handle Handler) error {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)

	// Чтение блокирующее, поэтому сканер живёт в своей горутине.
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(s.r)
		sc.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("stdin: read: %w", err)
					}
				default:
				}
				s.log.Info("stdin: EOF")
				return nil
			}
			metrics.LinesTotal.WithLabelValues("stdin").Inc()
			if err := handle(ctx, line); err != nil {
				return err
			}
		}
	}
}

// Close is a no-op: stdin belongs to the process.
func (s *StdinSource) Close() error { return nil }

// -----------------------------------------------------------------------------
// kafka
// -----------------------------------------------------------------------------

// KafkaSource reads entity lines from Kafka topics via a consumer group.
type KafkaSource struct {
	consumer commonkafka.Consumer
	topics   []string
}

func NewKafkaSource(consumer commonkafka.Consumer, topics ...string) *KafkaSource {
	return &KafkaSource{consumer: consumer, topics: topics}
}

func (k *KafkaSource) Run(ctx context.Context, handle Handler) error {
	return k.consumer.Consume(ctx, k.topics, func(msgCtx context.Context, msg *commonkafka.Message) error {
		metrics.LinesTotal.WithLabelValues("kafka").Inc()
		return handle(msgCtx, msg.Value)
	})
}

func (k *KafkaSource) Close() error { return k.consumer.Close() }
