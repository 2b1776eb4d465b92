package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initSystemMetrics() {
	r.GoRoutines = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "threatgraph_goroutines",
			Help: "Number of goroutines at the end of the run",
		},
	)

	r.MemoryAllocBytes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "threatgraph_memory_alloc_bytes",
			Help: "Bytes of allocated heap objects at the end of the run",
		},
	)
}
