package producer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YaganovValera/market-stream/common/backoff"
	commonkafka "github.com/YaganovValera/market-stream/common/kafka"
	"github.com/YaganovValera/market-stream/common/logger"
)

func TestBuildSaramaConfig(t *testing.T) {
	cfg := Config{Brokers: []string{"b:9092"}}
	cfg.applyDefaults()
	sc, err := buildSaramaConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, sarama.WaitForAll, sc.Producer.RequiredAcks)
	assert.Equal(t, sarama.CompressionNone, sc.Producer.Compression)
	assert.True(t, sc.Producer.Idempotent)
	assert.Equal(t, 1, sc.Net.MaxOpenRequests)

	cfg.RequiredAcks = "leader"
	sc, err = buildSaramaConfig(cfg)
	require.NoError(t, err)
	assert.False(t, sc.Producer.Idempotent)

	for _, bad := range []func(c *Config){
		func(c *Config) { c.Compression = "brotli" },
		func(c *Config) { c.RequiredAcks = "some" },
		func(c *Config) { c.Partitioner = "sticky" },
	} {
		c := Config{Brokers: []string{"b:9092"}}
		c.applyDefaults()
		bad(&c)
		_, err := buildSaramaConfig(c)
		assert.Error(t, err)
	}
}

func TestValidate(t *testing.T) {
	assert.Error(t, Config{}.validate())
	assert.NoError(t, Config{Brokers: []string{"b:9092"}}.validate())
}

func TestToSarama(t *testing.T) {
	ts := time.Date(2021, 3, 15, 14, 30, 5, 0, time.UTC)
	pm := toSarama(&commonkafka.Message{
		Topic:     "quotes",
		Key:       []byte("AAPL"),
		Value:     []byte("{}"),
		Headers:   map[string][]byte{"model": []byte("QUOTE")},
		Timestamp: ts,
	})
	assert.Equal(t, "quotes", pm.Topic)
	assert.Equal(t, sarama.ByteEncoder("AAPL"), pm.Key)
	assert.Equal(t, ts, pm.Timestamp)
	require.Len(t, pm.Headers, 1)
	assert.Equal(t, "model", string(pm.Headers[0].Key))

	assert.Nil(t, toSarama(&commonkafka.Message{Topic: "q"}).Key)
}

func TestPublish(t *testing.T) {
	mp := mocks.NewSyncProducer(t, nil)
	mp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(m *sarama.ProducerMessage) error {
		v, _ := m.Value.Encode()
		k, _ := m.Key.Encode()
		if string(v) != `{"key":"AAPL"}` || string(k) != "AAPL" || m.Topic != "quotes" {
			return errors.New("unexpected message")
		}
		return nil
	})

	p := newFromSyncProducer(mp, nil, backoff.Config{}, logger.NewNop())
	require.NoError(t, p.Publish(context.Background(), &commonkafka.Message{
		Topic: "quotes",
		Key:   []byte("AAPL"),
		Value: []byte(`{"key":"AAPL"}`),
	}))
	require.NoError(t, p.Close())
}

func TestPublish_RetriesThenFails(t *testing.T) {
	mp := mocks.NewSyncProducer(t, nil)
	mp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	mp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	bo := backoff.Config{InitialInterval: time.Millisecond, Constant: true, MaxRetries: 1}
	p := newFromSyncProducer(mp, nil, bo, logger.NewNop())

	err := p.Publish(context.Background(), &commonkafka.Message{Topic: "quotes", Value: []byte("x")})
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestPing_NoClient(t *testing.T) {
	p := newFromSyncProducer(mocks.NewSyncProducer(t, nil), nil, backoff.Config{}, logger.NewNop())
	assert.Error(t, p.Ping(context.Background()))
	require.NoError(t, p.Close())
}
