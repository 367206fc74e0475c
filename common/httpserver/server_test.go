package httpserver

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YaganovValera/market-stream/common/logger"
)

func TestNew_RequiresAddr(t *testing.T) {
	_, err := New(Config{}, nil, logger.NewNop())
	require.Error(t, err)
}

func TestNew_BadPaths(t *testing.T) {
	_, err := New(Config{Addr: ":0", MetricsPath: "metrics"}, nil, logger.NewNop())
	require.ErrorContains(t, err, "must start with /")

	_, err = New(Config{Addr: ":0", HealthzPath: "/probe", ReadyzPath: "/probe"}, nil, logger.NewNop())
	require.ErrorContains(t, err, "share path")
}

func TestHandlers(t *testing.T) {
	var ready error = errors.New("still connecting")
	s, err := New(Config{Addr: ":0"}, func() error { return ready }, logger.NewNop())
	require.NoError(t, err)
	h := s.(*server).httpServer.Handler

	tests := []struct {
		path string
		want int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusServiceUnavailable},
		{"/metrics", http.StatusOK},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		assert.Equal(t, tt.want, rec.Code, tt.path)
	}

	ready = nil
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "READY", rec.Body.String())
}

func TestRecoverMiddleware(t *testing.T) {
	h := recoverMiddleware(logger.NewNop(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
