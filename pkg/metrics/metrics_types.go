package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for one pipeline process. Every Record method is
// safe on a nil *Registry so components can run without metrics.
type Registry struct {
	// Pipeline Metrics
	FlowsFetched     prometheus.Gauge
	EnrichmentsFound prometheus.Gauge
	StepDuration     *prometheus.HistogramVec
	LastRunTimestamp prometheus.Gauge
	LastRunSuccess   prometheus.Gauge

	// Graph Assembly Metrics
	NodesAssembled         *prometheus.GaugeVec
	RelationshipsAssembled prometheus.Gauge
	AnomaliesTotal         *prometheus.CounterVec

	// Enrichment Metrics
	LookupsTotal   *prometheus.CounterVec
	LookupDuration prometheus.Histogram

	// Store Metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec
	NodesRelabeled         prometheus.Gauge

	// System Metrics
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge

	registry *prometheus.Registry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	// Initialize all metrics
	r.initPipelineMetrics()
	r.initGraphMetrics()
	r.initEnrichmentMetrics()
	r.initStoreMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
