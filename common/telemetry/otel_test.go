package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/YaganovValera/market-stream/common/logger"
)

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), Config{}, logger.NewNop())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestValidateConfig(t *testing.T) {
	cfg := Config{Enabled: true, ServiceName: "streamer", ServiceVersion: "v1"}
	assert.Error(t, validateConfig(cfg))

	cfg.Endpoint = "localhost:4317"
	assert.NoError(t, validateConfig(cfg))
}

func TestFail_SetsErrorStatus(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	Fail(span, errors.New("boom"))
	Fail(span, nil)
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "boom", ended[0].Status().Description)
	require.Len(t, ended[0].Events(), 1)
	assert.Equal(t, "exception", ended[0].Events()[0].Name)
}

func TestDefaults(t *testing.T) {
	cfg := Config{SamplerRatio: 3}
	applyDefaults(&cfg)
	assert.Equal(t, 1.0, cfg.SamplerRatio)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}
