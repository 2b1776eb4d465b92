package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-threatgraph/pkg/store/memstore"
	"github.com/dd0wney/cluso-threatgraph/pkg/validation"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "threatgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "NO_DNS", cfg.Flow.NoName)
	assert.Equal(t, "now-30m", cfg.Flow.Window)
	assert.Equal(t, 1000, cfg.OpenSearch.BucketSize)
	assert.Equal(t, 500*time.Millisecond, cfg.TIP.Wait)
	assert.Equal(t, 10, cfg.TIP.Polls)
	assert.Equal(t, BackendNeo4j, cfg.Store.Backend)
	assert.True(t, cfg.Clean)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
opensearch:
  host: search.internal
  port: "9200"
  index: netflow-*
tip:
  url: https://tip.internal
  token: secret
  wait: 250ms
  polls: 4
store:
  backend: postgres
postgres:
  url: postgres://graph@db/graph
  max_conns: 8
flow:
  window: now-1h
clean: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://search.internal:9200", cfg.OpenSearch.Address())
	assert.Equal(t, "netflow-*", cfg.OpenSearch.Index)
	assert.Equal(t, 250*time.Millisecond, cfg.TIP.Wait)
	assert.Equal(t, 4, cfg.TIP.Polls)
	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.EqualValues(t, 8, cfg.Postgres.MaxConns)
	assert.Equal(t, "now-1h", cfg.Flow.Window)
	assert.Equal(t, "NO_DNS", cfg.Flow.NoName, "unset keys keep defaults")
	assert.False(t, cfg.Clean)
	assert.NoError(t, cfg.ValidateSources())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "store: [not, a, map]"))
	assert.Error(t, err)

	// Default backend is neo4j, which needs a URI.
	t.Setenv("NEO4J_URI", "")
	_, err = Load(writeConfig(t, "flow:\n  window: now-5m\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Neo4j.URI")
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{
		"OPENSEARCH_HOST":  "os.example",
		"OPENSEARCH_PORT":  "9201",
		"OPENSEARCH_LOGIN": "reader",
		"OPENSEARCH_INDEX": "flows",
		"TIP_URL":          "https://tip.example",
		"TIP_AUTH_TOKEN":   "t0k",
		"TIP_POLLS":        "3",
		"TIP_WAIT":         "1s",
		"NEO4J_URI":        "bolt://neo4j:7687",
		"NEO4J_DB":         "threats",
		"STORE_BACKEND":    "memory",
		"LOG_LEVEL":        "debug",
		"ARCHIVE_DIR":      "/var/lib/threatgraph",
		"CLEAN":            "false",
	}))
	require.NoError(t, err)

	assert.Equal(t, "https://os.example:9201", cfg.OpenSearch.Address())
	assert.Equal(t, "reader", cfg.OpenSearch.Username)
	assert.Equal(t, "flows", cfg.OpenSearch.Index)
	assert.Equal(t, "t0k", cfg.TIP.Token)
	assert.Equal(t, 3, cfg.TIP.Polls)
	assert.Equal(t, time.Second, cfg.TIP.Wait)
	assert.Equal(t, "threats", cfg.Neo4j.Database)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/var/lib/threatgraph", cfg.Archive.Dir)
	assert.False(t, cfg.Clean)
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	for _, key := range []string{"TIP_POLLS", "TIP_WAIT", "CLEAN"} {
		cfg := Default()
		err := cfg.ApplyEnv(env(map[string]string{key: "many"}))
		require.Error(t, err, key)
		assert.Contains(t, err.Error(), key)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"memory backend", func(c *Config) { c.Store.Backend = BackendMemory }, ""},
		{"unknown backend", func(c *Config) { c.Store.Backend = "sqlite" }, "Backend"},
		{"zero polls", func(c *Config) { c.Store.Backend = BackendMemory; c.TIP.Polls = 0 }, "Polls"},
		{"empty sentinel", func(c *Config) { c.Store.Backend = BackendMemory; c.Flow.NoName = "" }, "NoName"},
		{"postgres without url", func(c *Config) { c.Store.Backend = BackendPostgres }, "Postgres.URL"},
		{"bad log level", func(c *Config) { c.Store.Backend = BackendMemory; c.Logging.Level = "loud" }, "Logging.Level"},
		{"empty neo4j pool", func(c *Config) { c.Neo4j.URI = "bolt://neo4j"; c.Neo4j.MaxConnectionPoolSize = 0 }, "MaxConnectionPoolSize"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_StructTagsWrapInputContract(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = "sqlite"
	assert.ErrorIs(t, cfg.Validate(), validation.ErrInputContract)
}

func TestValidateSources(t *testing.T) {
	cfg := Default()
	err := cfg.ValidateSources()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "4 errors")

	cfg.OpenSearch.Host = "os"
	cfg.OpenSearch.Index = "flows"
	cfg.TIP.URL = "tip.internal"
	cfg.TIP.Token = "t"
	err = cfg.ValidateSources()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an http(s) URL")

	cfg.TIP.URL = "https://tip.internal"
	cfg.OpenSearch.Port = "https"
	err = cfg.ValidateSources()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a TCP port")

	cfg.OpenSearch.Port = "9200"
	assert.NoError(t, cfg.ValidateSources())
}

func TestOpenStore(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = BackendMemory
	s, err := cfg.OpenStore(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &memstore.Store{}, s)

	cfg.Store.Backend = "sqlite"
	_, err = cfg.OpenStore(context.Background())
	assert.Error(t, err)
}

func TestComponentBuilders(t *testing.T) {
	cfg := Default()
	cfg.OpenSearch.Host = "127.0.0.1"
	cfg.OpenSearch.Port = "9200"
	cfg.TIP.URL = "https://tip.internal"

	src, err := cfg.FlowSource(nil)
	require.NoError(t, err)
	assert.NotNil(t, src)
	assert.NotNil(t, cfg.TIPClient(nil))
}
