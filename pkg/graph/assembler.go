package graph

import (
	"sort"
)

// Assembler owns the node registry and relationship list for one run.
// It is not safe for concurrent use.
type Assembler struct {
	nodes map[NodeRef]*Node
	rels  []Relationship
}

// Stats summarizes the registry contents.
type Stats struct {
	Nodes         map[Kind]int
	Relationships int
}

// TotalNodes sums the per-kind node counts.
func (s Stats) TotalNodes() int {
	total := 0
	for _, n := range s.Nodes {
		total += n
	}
	return total
}

// NewAssembler creates an empty registry.
func NewAssembler() *Assembler {
	return &Assembler{
		nodes: make(map[NodeRef]*Node),
		rels:  make([]Relationship, 0),
	}
}

// UpsertNode registers (kind, key) if absent and merges attrs into it.
// Fields already present on the node are never overwritten. attrs may be nil
// to register a bare stub.
func (a *Assembler) UpsertNode(kind Kind, key string, attrs Attributes) error {
	ref := Ref(kind, key)
	switch {
	case !kind.Valid():
		return &RegistryError{Op: "upsert_node", Ref: ref, Cause: ErrUnknownKind}
	case key == "":
		return &RegistryError{Op: "upsert_node", Ref: ref, Cause: ErrEmptyKey}
	case attrs != nil && attrs.Kind() != kind:
		return &RegistryError{Op: "upsert_node", Ref: ref, Cause: ErrKindMismatch}
	}

	node, ok := a.nodes[ref]
	if !ok {
		node = &Node{NodeRef: ref, Properties: make(map[string]any)}
		a.nodes[ref] = node
	}
	if attrs == nil {
		return nil
	}

	for field, value := range attrs.Properties() {
		if _, set := node.Properties[field]; !set {
			node.Properties[field] = value
		}
	}
	return nil
}

// HasNode reports whether (kind, key) is registered.
func (a *Assembler) HasNode(kind Kind, key string) bool {
	_, ok := a.nodes[Ref(kind, key)]
	return ok
}

// Node returns the registered node for (kind, key).
func (a *Assembler) Node(kind Kind, key string) (*Node, bool) {
	n, ok := a.nodes[Ref(kind, key)]
	return n, ok
}

// AddRelationship appends rel. Repeated triples are kept; the store's
// upsert collapses them.
func (a *Assembler) AddRelationship(rel Relationship) error {
	switch {
	case !rel.From.Kind.Valid():
		return &RegistryError{Op: "add_relationship", Ref: rel.From, Cause: ErrUnknownKind}
	case !rel.To.Kind.Valid():
		return &RegistryError{Op: "add_relationship", Ref: rel.To, Cause: ErrUnknownKind}
	case rel.From.Key == "":
		return &RegistryError{Op: "add_relationship", Ref: rel.From, Cause: ErrEmptyKey}
	case rel.To.Key == "":
		return &RegistryError{Op: "add_relationship", Ref: rel.To, Cause: ErrEmptyKey}
	case rel.Label == "":
		return &RegistryError{Op: "add_relationship", Ref: rel.From, Cause: ErrEmptyLabel}
	}
	if rel.Properties == nil {
		rel.Properties = map[string]any{}
	}
	a.rels = append(a.rels, rel)
	return nil
}

// Nodes returns every node ordered by kind, then key.
func (a *Assembler) Nodes() []*Node {
	nodes := make([]*Node, 0, len(a.nodes))
	for _, n := range a.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Kind != nodes[j].Kind {
			return nodes[i].Kind < nodes[j].Kind
		}
		return nodes[i].Key < nodes[j].Key
	})
	return nodes
}

// NodesOf returns the nodes of one kind ordered by key.
func (a *Assembler) NodesOf(kind Kind) []*Node {
	var nodes []*Node
	for ref, n := range a.nodes {
		if ref.Kind == kind {
			nodes = append(nodes, n)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Key < nodes[j].Key })
	return nodes
}

// Relationships returns the relationships in insertion order.
func (a *Assembler) Relationships() []Relationship {
	out := make([]Relationship, len(a.rels))
	copy(out, a.rels)
	return out
}

// Stats counts nodes per kind and relationships.
func (a *Assembler) Stats() Stats {
	stats := Stats{Nodes: make(map[Kind]int), Relationships: len(a.rels)}
	for ref := range a.nodes {
		stats.Nodes[ref.Kind]++
	}
	return stats
}
