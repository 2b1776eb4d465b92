package loader

import (
	"context"
	"strings"
	"time"

	"github.com/dd0wney/cluso-threatgraph/pkg/graph"
	"github.com/dd0wney/cluso-threatgraph/pkg/logging"
	"github.com/dd0wney/cluso-threatgraph/pkg/metrics"
)

// Result counts what a load wrote. Counts are attempts: idempotent upserts
// of existing entities are included.
type Result struct {
	Nodes         int
	Relationships int
	Relabeled     int
}

// Loader writes assembled graphs into a Store.
type Loader struct {
	store   Store
	logger  logging.Logger
	metrics *metrics.Registry
}

// New creates a loader. m may be nil.
func New(store Store, logger logging.Logger, m *metrics.Registry) *Loader {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Loader{
		store:   store,
		logger:  logger.With(logging.Component("loader")),
		metrics: m,
	}
}

// Load writes asm into the store. With clean set the store is reset first.
// The first store failure aborts the remaining steps; a re-run converges
// because every write is an upsert.
func (l *Loader) Load(ctx context.Context, asm *graph.Assembler, clean bool) (Result, error) {
	var res Result

	if clean {
		l.logger.Info("cleaning graph")
		if err := l.exec("reset", func() error { return l.store.Reset(ctx) }); err != nil {
			return res, &LoadError{Step: StepReset, Cause: err}
		}
	}

	nodes := asm.Nodes()
	l.logger.Info("loading nodes", logging.Count(len(nodes)))
	for _, node := range nodes {
		if err := ctx.Err(); err != nil {
			return res, &LoadError{Step: StepNodes, Cause: err}
		}
		if err := l.exec("upsert_node", func() error { return l.store.UpsertNode(ctx, node) }); err != nil {
			return res, &LoadError{Step: StepNodes, Kind: node.Kind, Key: node.Key, Cause: err}
		}
		res.Nodes++
	}

	rels := asm.Relationships()
	l.logger.Info("loading relationships", logging.Count(len(rels)))
	for _, rel := range rels {
		if err := ctx.Err(); err != nil {
			return res, &LoadError{Step: StepRelationships, Cause: err}
		}
		if err := l.exec("upsert_relationship", func() error { return l.store.UpsertRelationship(ctx, rel) }); err != nil {
			return res, &LoadError{Step: StepRelationships, Kind: rel.From.Kind, Key: rel.From.Key, Label: rel.Label, Cause: err}
		}
		res.Relationships++
	}

	l.logger.Info("refining analysis labels")
	generic := graph.KindMalwareAnalysis.Label()
	for _, node := range asm.NodesOf(graph.KindMalwareAnalysis) {
		if !NeedsRefinement(node) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, &LoadError{Step: StepRelabel, Cause: err}
		}
		refined := RefinedLabel(node.StringProperty(graph.PropDescription))
		if err := l.exec("relabel_node", func() error {
			return l.store.RelabelNode(ctx, node.NodeRef, generic, refined)
		}); err != nil {
			return res, &LoadError{Step: StepRelabel, Kind: node.Kind, Key: node.Key, Cause: err}
		}
		l.logger.Debug("node relabeled", logging.Key(node.Key), logging.String("label", refined))
		res.Relabeled++
	}

	l.metrics.RecordRelabeled(res.Relabeled)
	l.logger.Info("load finished",
		logging.Int("nodes", res.Nodes),
		logging.Int("relationships", res.Relationships),
		logging.Int("relabeled", res.Relabeled))
	return res, nil
}

func (l *Loader) exec(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}
	l.metrics.RecordStoreOperation(op, status, time.Since(start))
	return err
}

// NeedsRefinement reports whether an analysis node gets a specific label:
// it carries a description and is not a verdict (no score).
func NeedsRefinement(node *graph.Node) bool {
	if node.Kind != graph.KindMalwareAnalysis {
		return false
	}
	if _, scored := node.Property(graph.PropScore); scored {
		return false
	}
	return node.StringProperty(graph.PropDescription) != ""
}

// RefinedLabel derives the specific analysis label from a description:
// "MITRE ATT&CK" becomes "Malware_analysis_mitre_attack".
func RefinedLabel(description string) string {
	suffix := strings.ToLower(description)
	suffix = strings.ReplaceAll(suffix, " ", "_")
	suffix = strings.ReplaceAll(suffix, "&", "a")
	return graph.KindMalwareAnalysis.Label() + "_" + suffix
}
