// Package neo4jstore loads the threat graph into Neo4j. Every node carries
// its kind label and its key in the name property.
package neo4jstore

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/dd0wney/cluso-threatgraph/pkg/graph"
)

// Config holds connection settings.
type Config struct {
	URI                   string        `yaml:"uri"`
	Username              string        `yaml:"username"`
	Password              string        `yaml:"password"`
	Database              string        `yaml:"database"`
	MaxConnectionPoolSize int           `yaml:"max_connection_pool_size"`
	ConnectionTimeout     time.Duration `yaml:"connection_timeout"`
}

// Runner executes write statements. The driver implementation runs each
// statement in its own managed write transaction.
type Runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) error
	Close(ctx context.Context) error
}

type driverRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

func (r *driverRunner) Run(ctx context.Context, cypher string, params map[string]any) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: r.database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	return err
}

func (r *driverRunner) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

// Store is a loader.Store backed by Neo4j.
type Store struct {
	runner Runner
}

// Open creates a driver for cfg and verifies connectivity.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	auth := neo4j.BasicAuth(cfg.Username, cfg.Password, "")

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(config *neo4j.Config) {
		if cfg.MaxConnectionPoolSize > 0 {
			config.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
		}
		if cfg.ConnectionTimeout > 0 {
			config.ConnectionAcquisitionTimeout = cfg.ConnectionTimeout
			config.SocketConnectTimeout = cfg.ConnectionTimeout
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j unreachable: %w", err)
	}

	return New(&driverRunner{driver: driver, database: cfg.Database}), nil
}

// New wraps a runner.
func New(runner Runner) *Store {
	return &Store{runner: runner}
}

// Reset detaches and deletes every node.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.runner.Run(ctx, resetCypher, nil); err != nil {
		return fmt.Errorf("failed to reset graph: %w", err)
	}
	return nil
}

// UpsertNode merges the node on (label, name) and sets its properties only
// on creation.
func (s *Store) UpsertNode(ctx context.Context, node *graph.Node) error {
	cypher, err := nodeStatement(node.Kind)
	if err != nil {
		return err
	}
	params := map[string]any{
		"name":  node.Key,
		"props": properties(node.Properties),
	}
	if err := s.runner.Run(ctx, cypher, params); err != nil {
		return fmt.Errorf("failed to upsert node %s: %w", node.NodeRef, err)
	}
	return nil
}

// UpsertRelationship merges the relationship between existing endpoints.
// When an endpoint is missing the MATCH yields no rows and nothing is written.
func (s *Store) UpsertRelationship(ctx context.Context, rel graph.Relationship) error {
	cypher, err := relationshipStatement(rel)
	if err != nil {
		return err
	}
	params := map[string]any{
		"from":  rel.From.Key,
		"to":    rel.To.Key,
		"props": properties(rel.Properties),
	}
	if err := s.runner.Run(ctx, cypher, params); err != nil {
		return fmt.Errorf("failed to upsert relationship %s -[%s]-> %s: %w", rel.From, rel.Label, rel.To, err)
	}
	return nil
}

// RelabelNode swaps from for to on the node at ref.
func (s *Store) RelabelNode(ctx context.Context, ref graph.NodeRef, from, to string) error {
	cypher, err := relabelStatement(from, to)
	if err != nil {
		return err
	}
	if err := s.runner.Run(ctx, cypher, map[string]any{"name": ref.Key}); err != nil {
		return fmt.Errorf("failed to relabel %s: %w", ref, err)
	}
	return nil
}

// Ping runs a trivial statement.
func (s *Store) Ping(ctx context.Context) error {
	return s.runner.Run(ctx, pingCypher, nil)
}

// Close closes the driver.
func (s *Store) Close(ctx context.Context) error {
	return s.runner.Close(ctx)
}

func properties(props map[string]any) map[string]any {
	if props == nil {
		return map[string]any{}
	}
	return props
}
