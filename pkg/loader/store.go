// Package loader writes an assembled graph into a graph store: an optional
// reset, idempotent node and relationship upserts, then label refinement.
package loader

import (
	"context"

	"github.com/dd0wney/cluso-threatgraph/pkg/graph"
)

// Store is the upsert-by-key contract every graph backend implements.
type Store interface {
	// Reset deletes every node and relationship.
	Reset(ctx context.Context) error

	// UpsertNode creates the node identified by (kind, key) with its
	// properties if it does not exist. An existing node is left untouched.
	UpsertNode(ctx context.Context, node *graph.Node) error

	// UpsertRelationship creates (from)-[label]->(to) with its properties if
	// that triple does not exist. Missing endpoints are not created; the
	// relationship is then silently skipped.
	UpsertRelationship(ctx context.Context, rel graph.Relationship) error

	// RelabelNode replaces label from with label to on the node at ref. A
	// node that no longer carries from is left untouched.
	RelabelNode(ctx context.Context, ref graph.NodeRef, from, to string) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close(ctx context.Context) error
}
