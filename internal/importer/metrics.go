// metrics.go — Prometheus метрики импорта архивных единиц.
package importer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Значения лейбла kind.
const (
	kindFresh  = "fresh"
	kindReload = "reload"
	kindFailed = "failed"
)

var (
	// importTotal — количество импортов по исходу.
	importTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tbc_import_total",
			Help: "Количество импортов файлов по исходу (fresh, reload, failed)",
		},
		[]string{"kind"},
	)

	importDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tbc_import_duration_seconds",
			Help:    "Длительность импорта одного файла в секундах",
			Buckets: prometheus.DefBuckets,
		},
	)
)
