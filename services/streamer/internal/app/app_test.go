package app

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YaganovValera/market-stream/common/logger"
	"github.com/YaganovValera/market-stream/common/model"
	"github.com/YaganovValera/market-stream/common/redis"
	"github.com/YaganovValera/market-stream/services/streamer/internal/config"
	"github.com/YaganovValera/market-stream/services/streamer/internal/sink"
	"github.com/YaganovValera/market-stream/services/streamer/internal/tokenstore"
)

func TestNewTokenStore_File(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "token.json")

	store, closeFn, err := newTokenStore(ctx, config.TokenStoreConfig{Type: "file", File: path}, logger.NewNop())
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &tokenstore.FileStore{}, store)

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, tokenstore.ErrNotFound)
}

func TestNewTokenStore_Redis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	cfg := config.TokenStoreConfig{
		Type:     "redis",
		Redis:    redis.Config{URL: "redis://" + mr.Addr()},
		RedisKey: "streamer:token",
	}
	store, closeFn, err := newTokenStore(ctx, cfg, logger.NewNop())
	require.NoError(t, err)
	defer closeFn()

	require.NoError(t, store.Save(ctx, &tokenstore.TokenState{AccessToken: "a", RefreshToken: "r"}))
	assert.True(t, mr.Exists("streamer:token"))
}

func TestNewEmitter_Stdout(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{Sink: config.SinkConfig{Type: "stdout"}}

	em, closeFn, err := newEmitter(context.Background(), cfg, &buf, logger.NewNop())
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &sink.LineEmitter{}, em)

	e := model.New(model.Quote, model.Fields{{Name: "key", Value: "AAPL"}}, nil)
	require.NoError(t, em.Emit(context.Background(), e))
	assert.Equal(t, `{"key":"AAPL","model":"QUOTE"}`+"\n", buf.String())
}
