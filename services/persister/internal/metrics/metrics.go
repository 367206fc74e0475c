// services/persister/internal/metrics/metrics.go
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// LinesTotal: строки, полученные из источника.
	LinesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "persister",
		Subsystem: "source",
		Name:      "lines_total",
		Help:      "Entity lines read from the source",
	}, []string{"source"})

	// MalformedTotal: строки, которые не удалось разобрать как сущность.
	MalformedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "persister",
		Subsystem: "source",
		Name:      "malformed_total",
		Help:      "Lines skipped because they are not a valid entity",
	})

	// InsertsTotal: успешно сохранённые сущности.
	InsertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "persister",
		Subsystem: "repository",
		Name:      "inserts_total",
		Help:      "Entities inserted into the store",
	}, []string{"table"})

	// InsertErrors: ошибки вставки.
	InsertErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "persister",
		Subsystem: "repository",
		Name:      "insert_errors_total",
		Help:      "Entities that failed to insert",
	}, []string{"table"})

	// InsertLatency: длительность одной вставки.
	InsertLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "persister",
		Subsystem: "repository",
		Name:      "insert_duration_seconds",
		Help:      "Latency of a single insert",
		Buckets:   prometheus.DefBuckets,
	}, []string{"table"})
)

// Register регистрирует метрики один раз; без аргумента в DefaultRegisterer.
func Register(registerers ...prometheus.Registerer) {
	once.Do(func() {
		var reg prometheus.Registerer
		if len(registerers) > 0 && registerers[0] != nil {
			reg = registerers[0]
		} else {
			reg = prometheus.DefaultRegisterer
		}
		reg.MustRegister(
			LinesTotal,
			MalformedTotal,
			InsertsTotal,
			InsertErrors,
			InsertLatency,
		)
	})
}
