// services/streamer/internal/metrics/metrics.go
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// FramesTotal: число принятых WebSocket-фреймов.
	FramesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamer",
		Subsystem: "ws",
		Name:      "frames_total",
		Help:      "Total number of frames received from the streaming WebSocket",
	})

	// DecodeErrors: фреймы, которые не удалось разобрать.
	DecodeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamer",
		Subsystem: "ws",
		Name:      "decode_errors_total",
		Help:      "Frames that could not be decoded",
	})

	// EntitiesTotal: сущности, отданные в sink, по виду модели.
	EntitiesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamer",
		Subsystem: "pipeline",
		Name:      "entities_total",
		Help:      "Entities emitted to the sink",
	}, []string{"model"})

	// EmitErrors: ошибки записи в sink.
	EmitErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamer",
		Subsystem: "pipeline",
		Name:      "emit_errors_total",
		Help:      "Errors while emitting entities",
	})

	// SessionState: текущее состояние WebSocket-сессии (см. streamer.State).
	SessionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamer",
		Subsystem: "session",
		Name:      "state",
		Help:      "Current session state (0=disconnected … 6=failed)",
	})

	// Reconnects: перезапуски сессии супервизором.
	Reconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamer",
		Subsystem: "session",
		Name:      "reconnects_total",
		Help:      "Session restarts after a closed connection",
	})

	// TokenExchanges: обращения к OAuth2 token endpoint по grant_type.
	TokenExchanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamer",
		Subsystem: "oauth",
		Name:      "token_exchanges_total",
		Help:      "Token endpoint exchanges by grant type",
	}, []string{"grant_type"})

	// RequestLatency: латентность REST-вызовов брокера.
	RequestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "streamer",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency of brokerage REST calls (seconds)",
		Buckets:   prometheus.DefBuckets,
	}, []string{"host", "code"})
)

// Register регистрирует все метрики в заданном реестре.
// Можно вызвать без аргументов, чтобы зарегистрировать в DefaultRegisterer.
func Register(registerers ...prometheus.Registerer) {
	once.Do(func() {
		var reg prometheus.Registerer
		if len(registerers) > 0 && registerers[0] != nil {
			reg = registerers[0]
		} else {
			reg = prometheus.DefaultRegisterer
		}
		reg.MustRegister(
			FramesTotal,
			DecodeErrors,
			EntitiesTotal,
			EmitErrors,
			SessionState,
			Reconnects,
			TokenExchanges,
			RequestLatency,
		)
	})
}
