package flow

import (
	"fmt"

	"github.com/dd0wney/cluso-threatgraph/pkg/graph"
	"github.com/dd0wney/cluso-threatgraph/pkg/logging"
	"github.com/dd0wney/cluso-threatgraph/pkg/validation"
)

// Normalizer maps connection records onto an assembler.
type Normalizer struct {
	noName string
	logger logging.Logger
}

// NewNormalizer creates a normalizer that treats noName as "no resolved name".
// An empty noName falls back to DefaultNoName.
func NewNormalizer(noName string, logger logging.Logger) *Normalizer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Normalizer{
		noName: validation.DefaultOr(noName, DefaultNoName),
		logger: logger.With(logging.Component("flow")),
	}
}

// Normalize registers every record in asm. A record failing its input
// contract aborts normalization; records before it stay registered.
func (n *Normalizer) Normalize(records []Record, asm *graph.Assembler) error {
	for i := range records {
		if err := n.normalizeRecord(&records[i], asm); err != nil {
			return fmt.Errorf("flow record %d: %w", i, err)
		}
	}
	n.logger.Debug("flow records normalized", logging.Count(len(records)))
	return nil
}

func (n *Normalizer) normalizeRecord(r *Record, asm *graph.Assembler) error {
	if err := validation.Struct(r); err != nil {
		return err
	}

	if err := asm.UpsertNode(graph.KindSource, r.Source, nil); err != nil {
		return err
	}
	if err := asm.UpsertNode(graph.KindIP, r.Destination, nil); err != nil {
		return err
	}

	src := graph.Ref(graph.KindSource, r.Source)
	dst := graph.Ref(graph.KindIP, r.Destination)
	access := map[string]any{graph.PropProtocol: r.Protocol}

	if !r.HasName(n.noName) {
		return asm.AddRelationship(graph.Relationship{
			From: src, To: dst, Label: graph.RelAccessesTo, Properties: access,
		})
	}

	if err := asm.UpsertNode(graph.KindDNS, r.DNS, nil); err != nil {
		return err
	}
	name := graph.Ref(graph.KindDNS, r.DNS)
	if err := asm.AddRelationship(graph.Relationship{
		From: src, To: name, Label: graph.RelAccessesTo, Properties: access,
	}); err != nil {
		return err
	}
	return asm.AddRelationship(graph.Relationship{
		From: name, To: dst, Label: graph.RelResolves,
	})
}
