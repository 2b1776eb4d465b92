package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initPipelineMetrics() {
	r.FlowsFetched = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "threatgraph_flows_fetched",
			Help: "Aggregated connection records fetched in the last run",
		},
	)

	r.EnrichmentsFound = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "threatgraph_enrichments_found",
			Help: "Indicators with an intelligence bundle in the last run",
		},
	)

	r.StepDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "threatgraph_step_duration_seconds",
			Help:    "Pipeline step duration in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"step"},
	)

	r.LastRunTimestamp = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "threatgraph_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		},
	)

	r.LastRunSuccess = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "threatgraph_last_run_success",
			Help: "Whether the last run finished without a fatal error (1 = yes, 0 = no)",
		},
	)
}

func (r *Registry) initGraphMetrics() {
	r.NodesAssembled = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "threatgraph_nodes_assembled",
			Help: "Nodes in the assembled graph by kind",
		},
		[]string{"kind"},
	)

	r.RelationshipsAssembled = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "threatgraph_relationships_assembled",
			Help: "Relationships in the assembled graph",
		},
	)

	r.AnomaliesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatgraph_anomalies_total",
			Help: "Bundle objects skipped because their shape was not recognized",
		},
		[]string{"reason"},
	)
}

func (r *Registry) initEnrichmentMetrics() {
	r.LookupsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatgraph_lookups_total",
			Help: "Indicator lookups by outcome",
		},
		[]string{"outcome"},
	)

	r.LookupDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "threatgraph_lookup_duration_seconds",
			Help:    "Indicator lookup duration in seconds, polling included",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
	)
}

func (r *Registry) initStoreMetrics() {
	r.StoreOperationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatgraph_store_operations_total",
			Help: "Total number of graph store operations",
		},
		[]string{"operation", "status"},
	)

	r.StoreOperationDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "threatgraph_store_operation_duration_seconds",
			Help:    "Graph store operation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
		[]string{"operation"},
	)

	r.NodesRelabeled = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "threatgraph_nodes_relabeled",
			Help: "Analysis nodes given a refined label in the last load",
		},
	)
}
