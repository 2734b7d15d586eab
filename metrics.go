package xlpivot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type storeMetrics struct {
	builds       prometheus.Counter
	buildErrors  prometheus.Counter
	staleFetches prometheus.Counter
	labelLookups *prometheus.CounterVec
}

func newStoreMetrics(registerer prometheus.Registerer) *storeMetrics {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	factory := promauto.With(registerer)
	return &storeMetrics{
		builds: factory.NewCounter(prometheus.CounterOpts{
			Name: "xlpivot_cache_builds_total",
			Help: "Number of pivot caches built and installed.",
		}),
		buildErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "xlpivot_cache_build_errors_total",
			Help: "Number of pivot cache builds that failed.",
		}),
		staleFetches: factory.NewCounter(prometheus.CounterOpts{
			Name: "xlpivot_cache_stale_fetches_total",
			Help: "Number of pivot cache builds discarded because a newer fetch superseded them.",
		}),
		labelLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xlpivot_label_lookups_total",
				Help: "Number of background display name lookups by result.",
			},
			[]string{"result"},
		),
	}
}
