// Package pgstore persists the threat graph in PostgreSQL as a node table
// keyed by (kind, key) and a relationship table keyed by its full triple.
package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dd0wney/cluso-threatgraph/pkg/graph"
)

// DBPool abstracts pgxpool.Pool so the store can run against pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Config holds connection settings.
type Config struct {
	URL             string        `yaml:"url"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// Store is a loader.Store backed by PostgreSQL.
type Store struct {
	pool DBPool
}

// Open connects to the database at cfg.URL, verifies the connection and
// creates the tables.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	config, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	if cfg.MaxConns > 0 {
		config.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		config.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		config.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	s, err := New(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool, verifying it and running migrations.
func New(ctx context.Context, pool DBPool) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return s, nil
}

const (
	resetSQL = `TRUNCATE graph_relationships, graph_nodes`

	upsertNodeSQL = `
		INSERT INTO graph_nodes (kind, key, label, properties)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (kind, key) DO NOTHING
	`

	upsertRelationshipSQL = `
		INSERT INTO graph_relationships (from_kind, from_key, label, to_kind, to_key, properties)
		SELECT $1::text, $2::text, $3::text, $4::text, $5::text, $6::jsonb
		WHERE EXISTS (SELECT 1 FROM graph_nodes WHERE kind = $1 AND key = $2)
		  AND EXISTS (SELECT 1 FROM graph_nodes WHERE kind = $4 AND key = $5)
		ON CONFLICT DO NOTHING
	`

	relabelSQL = `
		UPDATE graph_nodes SET label = $4
		WHERE kind = $1 AND key = $2 AND label = $3
	`
)

// Reset deletes every node and relationship.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, resetSQL); err != nil {
		return fmt.Errorf("failed to reset graph: %w", err)
	}
	return nil
}

// UpsertNode inserts the node unless (kind, key) already exists.
func (s *Store) UpsertNode(ctx context.Context, node *graph.Node) error {
	props, err := marshalProperties(node.Properties)
	if err != nil {
		return fmt.Errorf("failed to marshal properties of %s: %w", node.NodeRef, err)
	}

	_, err = s.pool.Exec(ctx, upsertNodeSQL, node.Kind.String(), node.Key, node.Kind.Label(), props)
	if err != nil {
		return fmt.Errorf("failed to upsert node %s: %w", node.NodeRef, err)
	}
	return nil
}

// UpsertRelationship inserts the relationship when both endpoints exist and
// the triple is new.
func (s *Store) UpsertRelationship(ctx context.Context, rel graph.Relationship) error {
	props, err := marshalProperties(rel.Properties)
	if err != nil {
		return fmt.Errorf("failed to marshal properties of %s: %w", rel.Label, err)
	}

	_, err = s.pool.Exec(ctx, upsertRelationshipSQL,
		rel.From.Kind.String(), rel.From.Key,
		rel.Label,
		rel.To.Kind.String(), rel.To.Key,
		props,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert relationship %s -[%s]-> %s: %w", rel.From, rel.Label, rel.To, err)
	}
	return nil
}

// RelabelNode swaps from for to on the node at ref.
func (s *Store) RelabelNode(ctx context.Context, ref graph.NodeRef, from, to string) error {
	if _, err := s.pool.Exec(ctx, relabelSQL, ref.Kind.String(), ref.Key, from, to); err != nil {
		return fmt.Errorf("failed to relabel %s: %w", ref, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

func marshalProperties(props map[string]any) (json.RawMessage, error) {
	if len(props) == 0 {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(props)
}
