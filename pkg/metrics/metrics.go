package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Store operation status labels.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// RecordFlowsFetched records the number of connection records fetched
func (r *Registry) RecordFlowsFetched(n int) {
	if r == nil {
		return
	}
	r.FlowsFetched.Set(float64(n))
}

// RecordEnrichments records the number of indicators that returned a bundle
func (r *Registry) RecordEnrichments(n int) {
	if r == nil {
		return
	}
	r.EnrichmentsFound.Set(float64(n))
}

// RecordStep records the duration of a pipeline step
func (r *Registry) RecordStep(step string, duration time.Duration) {
	if r == nil {
		return
	}
	r.StepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordAssembled records the assembled graph size per kind
func (r *Registry) RecordAssembled(nodesByKind map[string]int, relationships int) {
	if r == nil {
		return
	}
	for kind, n := range nodesByKind {
		r.NodesAssembled.WithLabelValues(kind).Set(float64(n))
	}
	r.RelationshipsAssembled.Set(float64(relationships))
}

// RecordAnomaly counts a skipped bundle object
func (r *Registry) RecordAnomaly(reason string) {
	if r == nil {
		return
	}
	r.AnomaliesTotal.WithLabelValues(reason).Inc()
}

// RecordLookup records an indicator lookup with its duration
func (r *Registry) RecordLookup(outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	r.LookupsTotal.WithLabelValues(outcome).Inc()
	r.LookupDuration.Observe(duration.Seconds())
}

// RecordStoreOperation records a graph store operation
func (r *Registry) RecordStoreOperation(operation, status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.StoreOperationsTotal.WithLabelValues(operation, status).Inc()
	r.StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordRelabeled records the number of refined analysis labels
func (r *Registry) RecordRelabeled(n int) {
	if r == nil {
		return
	}
	r.NodesRelabeled.Set(float64(n))
}

// RecordRun marks the end of a run
func (r *Registry) RecordRun(success bool, finished time.Time) {
	if r == nil {
		return
	}
	r.LastRunTimestamp.Set(float64(finished.Unix()))
	if success {
		r.LastRunSuccess.Set(1)
	} else {
		r.LastRunSuccess.Set(0)
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))
	r.MemoryAllocBytes.Set(float64(mem.Alloc))
}

// WriteTextfile writes every metric in the text exposition format for the
// node_exporter textfile collector. The file is replaced atomically.
func (r *Registry) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
