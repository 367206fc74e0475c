// services/streamer/internal/service/quote.go
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/market-stream/common/logger"
	"github.com/YaganovValera/market-stream/common/model"
	"github.com/YaganovValera/market-stream/common/telemetry"
	"github.com/YaganovValera/market-stream/services/streamer/internal/amtclient"
	"github.com/YaganovValera/market-stream/services/streamer/internal/metrics"
	"github.com/YaganovValera/market-stream/services/streamer/internal/sink"
)

var quoteTracer = telemetry.Tracer("streamer/service/quote")

// QuoteConfig configures the QUOTE subscription.
type QuoteConfig struct {
	Keys     string // comma-separated subscription keys
	Mappings model.FieldMapping
	Location *time.Location // zone of formatted_timestamp; nil → time.Local
}

type quoteClient struct {
	cfg     QuoteConfig
	creds   amtclient.Credentials
	emitter sink.Emitter
	log     *logger.Logger
}

// NewQuoteClient builds the QUOTE service client.
func NewQuoteClient(cfg QuoteConfig, creds amtclient.Credentials, emitter sink.Emitter, log *logger.Logger) Client {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &quoteClient{cfg: cfg, creds: creds, emitter: emitter, log: log.Named("quote")}
}

func (q *quoteClient) Type() Type { return TypeQuote }

// Request asks for the mapped wire field ids, in mapping order.
func (q *quoteClient) Request() ([]byte, error) {
	env := subscribeEnvelope{Requests: []subscribeRequest{{
		Service:   string(TypeQuote),
		RequestID: subscribeRequestID,
		Command:   commandSubscribe,
		Account:   q.creds.UserID,
		Source:    q.creds.AppID,
		Parameters: subscribeParams{
			Keys:   q.cfg.Keys,
			Fields: strings.Join(q.cfg.Mappings.Sources(), ","),
		},
	}}}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("quote: encode request: %w", err)
	}
	return b, nil
}

func (q *quoteClient) HandleMessage(ctx context.Context, raw []byte) ([]*model.Entity, error) {
	log := q.log.WithContext(ctx)
	block, err := decodePush(raw)
	if err != nil {
		return nil, err
	}
	if block == nil {
		log.Debug("frame without data ignored", zap.ByteString("frame", raw))
		return nil, nil
	}

	items := make([]model.Fields, 0, len(block.Content))
	for _, rawItem := range block.Content {
		var item model.Fields
		if err := item.UnmarshalJSON(rawItem); err != nil {
			log.Debug("non-object content item skipped", zap.ByteString("item", rawItem))
			continue
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, nil
	}

	ctx, span := quoteTracer.Start(ctx, "HandleMessage",
		trace.WithAttributes(attribute.Int("content.items", len(items))))
	defer span.End()

	ts, ok := timestampMillis(block.Timestamp)
	if !ok {
		log.Warn("data block without usable timestamp ignored",
			zap.ByteString("timestamp", block.Timestamp), zap.Int("items", len(items)))
		return nil, nil
	}
	formatted := formatTimestamp(ts, q.cfg.Location)

	entities := make([]*model.Entity, 0, len(items))
	for _, fields := range items {
		fields.Set(fieldTimestamp, ts)
		fields.Set(fieldFormattedTimestamp, formatted)
		entities = append(entities, model.New(model.Quote, fields, q.cfg.Mappings))
	}

	for _, e := range entities {
		if err := q.emitter.Emit(ctx, e); err != nil {
			metrics.EmitErrors.Inc()
			telemetry.Fail(span, err)
			return nil, err
		}
		metrics.EntitiesTotal.WithLabelValues(model.Quote.String()).Inc()
	}
	return entities, nil
}
