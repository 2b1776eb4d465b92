package intel

import (
	"fmt"
	"strings"

	"github.com/dd0wney/cluso-threatgraph/pkg/graph"
	"github.com/dd0wney/cluso-threatgraph/pkg/logging"
	"github.com/dd0wney/cluso-threatgraph/pkg/metrics"
	"github.com/dd0wney/cluso-threatgraph/pkg/validation"
)

// Bundle object types with special handling.
const (
	TypeRelationship    = "relationship"
	TypeMalwareAnalysis = "malware-analysis"
	TypeAnalysisTool    = "analysis-tool"
)

const (
	stixPatternType = "stix"
	avScoreMarker   = "AV score"
)

// bundleContext is the per-bundle state shared by the two passes.
type bundleContext struct {
	asm    *graph.Assembler
	res    *resolver
	logger logging.Logger
}

type objectHandler func(b *bundleContext, obj *Object) error

// objectHandlers classifies pass-1 objects by type. A nil handler marks a
// type that is recognized but produces no node.
var objectHandlers = map[string]objectHandler{
	"ipv4-addr":         observable(graph.KindIP),
	"ipv4-address":      observable(graph.KindIP),
	"domain-name":       observable(graph.KindDNS),
	"file":              observable(graph.KindFile),
	"url":               observable(graph.KindURL),
	"indicator":         classifyIndicator,
	"malware":           classifyMalware,
	TypeMalwareAnalysis: classifyAnalysis,
	TypeAnalysisTool:    nil,
	TypeRelationship:    nil,
}

// Normalizer turns enrichment bundles into graph nodes and relationships.
type Normalizer struct {
	logger    logging.Logger
	metrics   *metrics.Registry
	anomalies int
}

// NewNormalizer creates a bundle normalizer. m may be nil.
func NewNormalizer(logger logging.Logger, m *metrics.Registry) *Normalizer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Normalizer{
		logger:  logger.With(logging.Component("intel")),
		metrics: m,
	}
}

// Anomalies returns how many objects were skipped so far.
func (n *Normalizer) Anomalies() int {
	return n.anomalies
}

// Normalize registers the queried indicator's details, classifies every
// bundle object and then synthesizes relationships from the bundle's
// references. Unrecognized objects are skipped; only a failure to register
// the queried indicator itself is returned.
func (n *Normalizer) Normalize(e Enrichment, asm *graph.Assembler) error {
	if e.Bundle == nil {
		return nil
	}
	b := &bundleContext{
		asm:    asm,
		res:    newResolver(),
		logger: n.logger.With(logging.Indicator(e.Indicator)),
	}

	if err := n.applyDetails(b, e); err != nil {
		return fmt.Errorf("indicator %q: %w", e.Indicator, err)
	}

	valid := make([]*Object, 0, len(e.Bundle.Graph.Objects))
	for i := range e.Bundle.Graph.Objects {
		obj := &e.Bundle.Graph.Objects[i]
		if err := n.classify(b, obj); err != nil {
			n.anomaly(b, obj, err)
			continue
		}
		valid = append(valid, obj)
	}

	for _, obj := range valid {
		if err := n.link(b, obj); err != nil {
			n.anomaly(b, obj, err)
		}
	}
	return nil
}

func (n *Normalizer) applyDetails(b *bundleContext, e Enrichment) error {
	basic, hist := e.Bundle.Details.Basic, e.Bundle.Details.History
	history := graph.History{
		LastUpdate: hist.LastUpdate.String(),
		Uploaded:   hist.Uploaded.String(),
		ValidFrom:  hist.ValidFrom.String(),
		ValidUntil: hist.ValidUntil.String(),
	}

	switch e.Bundle.IOC.Type {
	case "ip":
		return b.asm.UpsertNode(graph.KindIP, e.Indicator, graph.IPAttrs{
			ASOwner: basic.ASOwner.String(),
			ASN:     basic.ASN.String(),
			Network: basic.Network.String(),
			History: history,
		})
	case "domain":
		return b.asm.UpsertNode(graph.KindDNS, e.Indicator, graph.DNSAttrs{
			TopLevelDomain: basic.TopLevelDomain.String(),
			History:        history,
		})
	default:
		b.logger.Debug("no details for indicator type", logging.String("ioc_type", e.Bundle.IOC.Type))
		return nil
	}
}

func (n *Normalizer) classify(b *bundleContext, obj *Object) error {
	if err := validation.Struct(obj); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedObject, err)
	}
	handler, ok := objectHandlers[obj.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownObjectType, obj.Type)
	}
	if handler == nil {
		return nil
	}
	return handler(b, obj)
}

func (n *Normalizer) link(b *bundleContext, obj *Object) error {
	switch {
	case obj.Type == TypeRelationship:
		from, fromTool, fromErr := b.endpoint(obj.SourceRef)
		to, toTool, toErr := b.endpoint(obj.TargetRef)
		if fromTool || toTool {
			return nil
		}
		if fromErr != nil {
			return fromErr
		}
		if toErr != nil {
			return toErr
		}
		label := graph.NormalizeLabel(obj.RelationshipType)
		if err := validation.ValidateLabel(label); err != nil {
			return fmt.Errorf("%w: %v", ErrUnknownRelType, err)
		}
		return b.asm.AddRelationship(graph.Relationship{From: from, To: to, Label: label})

	case obj.Type == TypeMalwareAnalysis && strings.Contains(obj.Name, avScoreMarker) && obj.SampleRef != "":
		to, tool, err := b.endpoint(obj.SampleRef)
		if tool {
			return nil
		}
		if err != nil {
			return err
		}
		return b.asm.AddRelationship(graph.Relationship{
			From: graph.Ref(graph.KindMalwareAnalysis, obj.ID), To: to, Label: graph.RelSample,
		})

	default:
		return nil
	}
}

// endpoint resolves a "<type>--<id>" reference to a node. tool reports an
// analysis-tool reference, which never becomes an endpoint.
func (b *bundleContext) endpoint(ref string) (graph.NodeRef, bool, error) {
	kind, tool, ok := referenceKind(ref)
	if tool {
		return graph.NodeRef{}, true, nil
	}
	if !ok {
		return graph.NodeRef{}, false, fmt.Errorf("%w: %q", ErrUnknownReference, ref)
	}
	return graph.Ref(kind, b.res.resolve(ref)), false, nil
}

func (n *Normalizer) anomaly(b *bundleContext, obj *Object, err error) {
	n.anomalies++
	b.logger.Warn("skipping bundle object",
		logging.ObjectID(obj.ID),
		logging.ObjectType(obj.Type),
		logging.Error(err))
	n.metrics.RecordAnomaly(anomalyReason(err))
}

func observable(kind graph.Kind) objectHandler {
	return func(b *bundleContext, obj *Object) error {
		if obj.Name == "" {
			return fmt.Errorf("%w: %s without name", ErrMalformedObject, obj.Type)
		}
		b.res.bind(obj.ID, obj.Name)
		return b.asm.UpsertNode(kind, obj.Name, nil)
	}
}

func classifyIndicator(b *bundleContext, obj *Object) error {
	if obj.PatternType != stixPatternType {
		return fmt.Errorf("%w: %q", ErrUnknownPattern, obj.PatternType)
	}
	if b.asm.HasNode(graph.KindIndicator, obj.ID) {
		return nil
	}
	return b.asm.UpsertNode(graph.KindIndicator, obj.ID, graph.IndicatorAttrs{
		PatternType: obj.PatternType,
		Description: obj.Name,
		Pattern:     obj.Pattern,
	})
}

func classifyMalware(b *bundleContext, obj *Object) error {
	return b.asm.UpsertNode(graph.KindMalware, obj.ID, graph.MalwareAttrs{Description: obj.Name})
}

func classifyAnalysis(b *bundleContext, obj *Object) error {
	if obj.Name == "" {
		return nil
	}
	for _, rule := range analysisRules {
		if !rule.match(obj.Name) {
			continue
		}
		if rule.build == nil || b.asm.HasNode(graph.KindMalwareAnalysis, obj.ID) {
			return nil
		}
		attrs, err := rule.build(obj)
		if err != nil {
			return err
		}
		attrs.Description = obj.Name
		b.logger.Debug("analysis classified", logging.ObjectID(obj.ID), logging.String("rule", rule.name))
		return b.asm.UpsertNode(graph.KindMalwareAnalysis, obj.ID, attrs)
	}
	return fmt.Errorf("%w: %q", ErrUnknownAnalysis, obj.Name)
}
