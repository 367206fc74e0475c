package logger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YaganovValera/market-stream/common/logger"
)

func TestNew_InvalidLevel(t *testing.T) {
	_, err := logger.New(logger.Config{Level: "invalid"})
	require.Error(t, err)
}

func TestNew_ValidLevels(t *testing.T) {
	for _, lvl := range []string{"", "debug", "info", "warn", "error"} {
		_, err := logger.New(logger.Config{Level: lvl, DevMode: true})
		assert.NoError(t, err, "level %q", lvl)
	}
}

func TestWithContext_SessionID(t *testing.T) {
	l := logger.NewNop()
	ctx := logger.ContextWithSessionID(context.Background(), "sess-1")
	ctx = logger.ContextWithTraceID(ctx, "trace-1")

	sid, ok := logger.SessionIDFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "sess-1", sid)

	// the enriched logger must be usable
	l.WithContext(ctx).Info("test message")
	assert.Same(t, l, l.WithContext(context.Background()))
}
