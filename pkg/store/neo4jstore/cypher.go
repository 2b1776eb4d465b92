package neo4jstore

import (
	"fmt"

	"github.com/dd0wney/cluso-threatgraph/pkg/graph"
	"github.com/dd0wney/cluso-threatgraph/pkg/validation"
)

// keyProperty holds the natural key on every node.
const keyProperty = "name"

const (
	resetCypher = "MATCH (n) DETACH DELETE n"
	pingCypher  = "RETURN 1"
)

// quote validates label and wraps it in backticks for interpolation.
func quote(label string) (string, error) {
	if err := validation.ValidateLabel(label); err != nil {
		return "", err
	}
	return "`" + label + "`", nil
}

// refinable reports whether nodes of kind may carry a refined label after
// loading, so they must be matched by any label in their family.
func refinable(kind graph.Kind) bool {
	return kind == graph.KindMalwareAnalysis
}

// matchNode returns a MATCH clause binding alias to the node of kind whose
// key is in $param.
func matchNode(alias string, kind graph.Kind, param string) (string, error) {
	label, err := quote(kind.Label())
	if err != nil {
		return "", err
	}
	if !refinable(kind) {
		return fmt.Sprintf("MATCH (%s:%s {%s: $%s})", alias, label, keyProperty, param), nil
	}
	return fmt.Sprintf(
		"MATCH (%s {%s: $%s}) WHERE %s:%s OR any(l IN labels(%s) WHERE l STARTS WITH '%s_')",
		alias, keyProperty, param, alias, label, alias, kind.Label(),
	), nil
}

// nodeStatement returns the create-if-absent statement for a node of kind.
// Parameters: $name, $props.
func nodeStatement(kind graph.Kind) (string, error) {
	label, err := quote(kind.Label())
	if err != nil {
		return "", err
	}
	if !refinable(kind) {
		return fmt.Sprintf("MERGE (n:%s {%s: $name}) ON CREATE SET n += $props", label, keyProperty), nil
	}

	// A refined node no longer matches MERGE on the generic label.
	return fmt.Sprintf(
		"OPTIONAL MATCH (r {%s: $name}) WHERE r:%s OR any(l IN labels(r) WHERE l STARTS WITH '%s_') "+
			"WITH count(r) AS existing WHERE existing = 0 "+
			"CREATE (n:%s {%s: $name}) SET n += $props",
		keyProperty, label, kind.Label(), label, keyProperty,
	), nil
}

// relationshipStatement returns the create-if-absent statement for rel.
// Parameters: $from, $to, $props.
func relationshipStatement(rel graph.Relationship) (string, error) {
	from, err := matchNode("a", rel.From.Kind, "from")
	if err != nil {
		return "", err
	}
	to, err := matchNode("b", rel.To.Kind, "to")
	if err != nil {
		return "", err
	}
	label, err := quote(rel.Label)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s MERGE (a)-[l:%s]->(b) ON CREATE SET l += $props", from, to, label), nil
}

// relabelStatement returns the statement swapping label from for to on the
// node keyed by $name.
func relabelStatement(from, to string) (string, error) {
	qfrom, err := quote(from)
	if err != nil {
		return "", err
	}
	qto, err := quote(to)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("MATCH (n:%s {%s: $name}) REMOVE n:%s SET n:%s", qfrom, keyProperty, qfrom, qto), nil
}
