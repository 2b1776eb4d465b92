package pipeline

import (
	"fmt"

	"github.com/dd0wney/cluso-threatgraph/pkg/flow"
	"github.com/dd0wney/cluso-threatgraph/pkg/graph"
	"github.com/dd0wney/cluso-threatgraph/pkg/intel"
	"github.com/dd0wney/cluso-threatgraph/pkg/logging"
	"github.com/dd0wney/cluso-threatgraph/pkg/metrics"
)

// Assembly is the graph built from one run's inputs.
type Assembly struct {
	Graph     *graph.Assembler
	Anomalies int
}

// Build assembles flows first, then every enrichment bundle in order.
// Malformed bundle objects are skipped and counted; an invalid flow record
// or an unregistrable indicator is returned as an error.
func Build(records []flow.Record, enrichments []intel.Enrichment, noName string, logger logging.Logger, m *metrics.Registry) (*Assembly, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	asm := graph.NewAssembler()

	if err := flow.NewNormalizer(noName, logger).Normalize(records, asm); err != nil {
		return nil, fmt.Errorf("assemble flows: %w", err)
	}

	bundles := intel.NewNormalizer(logger, m)
	for _, e := range enrichments {
		if err := bundles.Normalize(e, asm); err != nil {
			return nil, fmt.Errorf("assemble bundles: %w", err)
		}
	}

	stats := asm.Stats()
	byKind := make(map[string]int, len(stats.Nodes))
	for _, kind := range graph.Kinds() {
		n := stats.Nodes[kind]
		byKind[kind.String()] = n
		if n > 0 {
			logger.Info("parsed nodes", logging.Kind(kind.String()), logging.Count(n))
		}
	}
	logger.Info("parsed relationships", logging.Count(stats.Relationships))
	m.RecordAssembled(byKind, stats.Relationships)

	return &Assembly{Graph: asm, Anomalies: bundles.Anomalies()}, nil
}
