package graph

import (
	"strings"
)

// Fixed relationship labels synthesized from flow topology and bundle samples.
const (
	RelAccessesTo = "ACCESSES_TO"
	RelResolves   = "RESOLVES"
	RelSample     = "SAMPLE"
)

// Property names shared between normalizers and the loader.
const (
	PropProtocol    = "protocol"
	PropDescription = "description"
	PropScore       = "score"
	PropType        = "type"
	PropResult      = "result"
)

// NodeRef identifies a node by kind and natural key.
type NodeRef struct {
	Kind Kind   `json:"kind"`
	Key  string `json:"key"`
}

// Ref is shorthand for NodeRef{Kind: kind, Key: key}.
func Ref(kind Kind, key string) NodeRef {
	return NodeRef{Kind: kind, Key: key}
}

func (r NodeRef) String() string {
	return r.Kind.String() + ":" + r.Key
}

// Node is a registered graph entity with its accumulated properties.
type Node struct {
	NodeRef
	Properties map[string]any
}

// Property returns a property value and whether it is set.
func (n *Node) Property(name string) (any, bool) {
	v, ok := n.Properties[name]
	return v, ok
}

// StringProperty returns a string property, or "" when unset or not a string.
func (n *Node) StringProperty(name string) string {
	s, _ := n.Properties[name].(string)
	return s
}

// Relationship is a directed, labelled edge between two node references.
type Relationship struct {
	From       NodeRef
	To         NodeRef
	Label      string
	Properties map[string]any
}

// NormalizeLabel turns a declared relationship type into its label token:
// trimmed and upper-cased, punctuation kept ("communicates-with" -> "COMMUNICATES-WITH").
func NormalizeLabel(relType string) string {
	return strings.ToUpper(strings.TrimSpace(relType))
}
