package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YaganovValera/market-stream/common/logger"
	"github.com/YaganovValera/market-stream/common/model"
	"github.com/YaganovValera/market-stream/services/streamer/internal/amtclient"
)

type recordingEmitter struct {
	entities []*model.Entity
	err      error
}

func (r *recordingEmitter) Emit(_ context.Context, e *model.Entity) error {
	if r.err != nil {
		return r.err
	}
	r.entities = append(r.entities, e)
	return nil
}

var testCreds = amtclient.Credentials{UserID: "123456789", AppID: "APP1"}

func newTestQuote(em *recordingEmitter) Client {
	cfg := QuoteConfig{
		Keys:     "key1,key2,key3",
		Mappings: model.FieldMapping{{From: "1", To: "bid_price"}, {From: "2", To: "ask_price"}},
		Location: time.UTC,
	}
	return NewQuoteClient(cfg, testCreds, em, logger.NewNop())
}

func TestQuoteRequest(t *testing.T) {
	b, err := newTestQuote(&recordingEmitter{}).Request()
	require.NoError(t, err)

	assert.Equal(t,
		`{"requests":[{"service":"QUOTE","requestid":"2","command":"SUBS","account":"123456789","source":"APP1",`+
			`"parameters":{"keys":"key1,key2,key3","fields":"1,2"}}]}`,
		string(b))
}

func TestQuoteRequest_FieldsFollowMappingOrder(t *testing.T) {
	cfg := QuoteConfig{
		Keys:     "AAPL",
		Mappings: model.FieldMapping{{From: "3", To: "last_price"}, {From: "1", To: "bid_price"}, {From: "2", To: "ask_price"}},
	}
	b, err := NewQuoteClient(cfg, testCreds, &recordingEmitter{}, logger.NewNop()).Request()
	require.NoError(t, err)

	var env subscribeEnvelope
	require.NoError(t, json.Unmarshal(b, &env))
	assert.Equal(t, "3,1,2", env.Requests[0].Parameters.Fields)
}

func TestHandleMessage_NoData(t *testing.T) {
	em := &recordingEmitter{}
	q := newTestQuote(em)
	for _, frame := range []string{
		`{"notify":[{"heartbeat":"1615818605000"}]}`,
		`{"response":[{"service":"ADMIN","command":"LOGIN","content":{"code":0}}]}`,
		`{"data":[]}`,
		`{"data":null}`,
		`{"data":"x"}`,
		`{"data":{}}`,
		`{"data":[1,2]}`,
		`[{"heartbeat":"1"}]`,
		`"just a string"`,
		`{"data":[{"service":"QUOTE","command":"SUBS","content":[]}]}`,
		`{"data":[{"service":"QUOTE","command":"SUBS"}]}`,
		`{"data":[{"timestamp":1615818605000,"content":"AAPL"}]}`,
		`{"data":[{"timestamp":1615818605000,"content":[1,"x",null]}]}`,
		`{"data":[{"content":[{"key":"AAPL"}]}]}`,
		`{"data":[{"timestamp":"soon","content":[{"key":"AAPL"}]}]}`,
	} {
		got, err := q.HandleMessage(context.Background(), []byte(frame))
		require.NoError(t, err, frame)
		assert.Empty(t, got, frame)
	}
	assert.Empty(t, em.entities)
}

func TestHandleMessage_InvalidJSON(t *testing.T) {
	for _, frame := range []string{`{"data":`, `not json`, ``} {
		_, err := newTestQuote(&recordingEmitter{}).HandleMessage(context.Background(), []byte(frame))
		assert.ErrorIs(t, err, ErrDecode, frame)
	}
}

func TestHandleMessage_TwoItems(t *testing.T) {
	em := &recordingEmitter{}
	q := newTestQuote(em)
	frame := `{"data":[{"service":"QUOTE","timestamp":1615818605123,"command":"SUBS","content":[
		{"key":"AAPL","1":121.5,"2":121.75},
		{"key":"MSFT","1":230,"3":"x"}
	]}]}`

	got, err := q.HandleMessage(context.Background(), []byte(frame))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, got, em.entities, "every decoded entity is emitted")

	for _, e := range got {
		assert.Equal(t, model.Quote, e.Kind())
		ts, err := e.Get("timestamp")
		require.NoError(t, err)
		assert.Equal(t, int64(1615818605123), ts)
		f, err := e.Get("formatted_timestamp")
		require.NoError(t, err)
		assert.Equal(t, "2021-03-15 14:30:05.123000", f)
	}

	assert.Equal(t, []string{"key", "bid_price", "ask_price", "timestamp", "formatted_timestamp"}, got[0].Fields().Names())
	assert.Equal(t, []string{"key", "bid_price", "3", "timestamp", "formatted_timestamp"}, got[1].Fields().Names())
	bid, _ := got[1].Get("bid_price")
	assert.Equal(t, int64(230), bid)
}

func TestHandleMessage_EmitError(t *testing.T) {
	em := &recordingEmitter{err: errors.New("pipe closed")}
	frame := `{"data":[{"timestamp":1,"content":[{"key":"AAPL"}]}]}`
	_, err := newTestQuote(em).HandleMessage(context.Background(), []byte(frame))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDecode)
}

func TestHandleMessage_StringTimestampAndMixedItems(t *testing.T) {
	em := &recordingEmitter{}
	frame := `{"data":[{"timestamp":"1615818605000","content":[7,{"key":"AAPL","1":1.5}]}]}`
	got, err := newTestQuote(em).HandleMessage(context.Background(), []byte(frame))
	require.NoError(t, err)
	require.Len(t, got, 1)
	ts, err := got[0].Get("timestamp")
	require.NoError(t, err)
	assert.Equal(t, int64(1615818605000), ts)
	assert.Equal(t, got, em.entities)
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "2021-03-15 14:30:05", formatTimestamp(1615818605000, time.UTC))
	assert.Equal(t, "2021-03-15 14:30:05.001000", formatTimestamp(1615818605001, time.UTC))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(Deps{Emitter: &recordingEmitter{}, Log: logger.NewNop()})

	c, err := r.Client(TypeQuote, testCreds)
	require.NoError(t, err)
	assert.Equal(t, TypeQuote, c.Type())

	_, err = r.Client("CHART_EQUITY", testCreds)
	assert.ErrorIs(t, err, ErrUnsupportedService)
}
