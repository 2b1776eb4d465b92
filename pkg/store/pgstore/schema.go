package pgstore

import "context"

// migrate creates the graph tables if they don't exist.
func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS graph_nodes (
		kind TEXT NOT NULL,
		key TEXT NOT NULL,
		label TEXT NOT NULL,
		properties JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (kind, key)
	);

	CREATE TABLE IF NOT EXISTS graph_relationships (
		from_kind TEXT NOT NULL,
		from_key TEXT NOT NULL,
		label TEXT NOT NULL,
		to_kind TEXT NOT NULL,
		to_key TEXT NOT NULL,
		properties JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (from_kind, from_key, label, to_kind, to_key),
		FOREIGN KEY (from_kind, from_key) REFERENCES graph_nodes (kind, key) ON DELETE CASCADE,
		FOREIGN KEY (to_kind, to_key) REFERENCES graph_nodes (kind, key) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_graph_nodes_label ON graph_nodes(label);
	CREATE INDEX IF NOT EXISTS idx_graph_relationships_to ON graph_relationships(to_kind, to_key);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}
