// Package memstore is an in-process graph store with the same upsert-by-key
// semantics as the database backends. It backs dry runs and tests.
package memstore

import (
	"context"
	"errors"
	"maps"
	"sort"
	"sync"

	"github.com/dd0wney/cluso-threatgraph/pkg/graph"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("memstore: closed")

type storedNode struct {
	label string
	props map[string]any
}

type relKey struct {
	from  graph.NodeRef
	label string
	to    graph.NodeRef
}

// Store keeps nodes keyed by (kind, key) and relationships keyed by
// (from, label, to).
type Store struct {
	mu     sync.RWMutex
	nodes  map[graph.NodeRef]*storedNode
	rels   map[relKey]map[string]any
	closed bool
}

// New creates an empty store.
func New() *Store {
	return &Store{
		nodes: make(map[graph.NodeRef]*storedNode),
		rels:  make(map[relKey]map[string]any),
	}
}

func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.nodes = make(map[graph.NodeRef]*storedNode)
	s.rels = make(map[relKey]map[string]any)
	return nil
}

func (s *Store) UpsertNode(ctx context.Context, node *graph.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.nodes[node.NodeRef]; ok {
		return nil
	}
	s.nodes[node.NodeRef] = &storedNode{
		label: node.Kind.Label(),
		props: maps.Clone(node.Properties),
	}
	return nil
}

func (s *Store) UpsertRelationship(ctx context.Context, rel graph.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	_, fromOK := s.nodes[rel.From]
	_, toOK := s.nodes[rel.To]
	if !fromOK || !toOK {
		return nil
	}
	k := relKey{from: rel.From, label: rel.Label, to: rel.To}
	if _, ok := s.rels[k]; ok {
		return nil
	}
	s.rels[k] = maps.Clone(rel.Properties)
	return nil
}

func (s *Store) RelabelNode(ctx context.Context, ref graph.NodeRef, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if n, ok := s.nodes[ref]; ok && n.label == from {
		n.label = to
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// NodeCount returns the number of stored nodes.
func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// RelationshipCount returns the number of stored relationships.
func (s *Store) RelationshipCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rels)
}

// Label returns the current label of the node at ref.
func (s *Store) Label(ref graph.NodeRef) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[ref]
	if !ok {
		return "", false
	}
	return n.label, true
}

// Properties returns a copy of the stored properties of the node at ref.
func (s *Store) Properties(ref graph.NodeRef) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[ref]
	if !ok {
		return nil, false
	}
	return maps.Clone(n.props), true
}

// HasRelationship reports whether (from)-[label]->(to) is stored.
func (s *Store) HasRelationship(from graph.NodeRef, label string, to graph.NodeRef) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rels[relKey{from: from, label: label, to: to}]
	return ok
}

// LabelCounts returns node counts per label.
func (s *Store) LabelCounts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, n := range s.nodes {
		counts[n.label]++
	}
	return counts
}

// Labels returns the distinct node labels in sorted order.
func (s *Store) Labels() []string {
	counts := s.LabelCounts()
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}
