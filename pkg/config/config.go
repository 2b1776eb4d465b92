// Package config loads the threatgraph configuration from a YAML file and
// environment overrides, and builds the run's components from it.
package config

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-threatgraph/pkg/flow"
	"github.com/dd0wney/cluso-threatgraph/pkg/health"
	"github.com/dd0wney/cluso-threatgraph/pkg/intel"
	"github.com/dd0wney/cluso-threatgraph/pkg/loader"
	"github.com/dd0wney/cluso-threatgraph/pkg/logging"
	"github.com/dd0wney/cluso-threatgraph/pkg/store/memstore"
	"github.com/dd0wney/cluso-threatgraph/pkg/store/neo4jstore"
	"github.com/dd0wney/cluso-threatgraph/pkg/store/pgstore"
	"github.com/dd0wney/cluso-threatgraph/pkg/validation"
)

// Store backends.
const (
	BackendNeo4j    = "neo4j"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config is the complete run configuration.
type Config struct {
	OpenSearch OpenSearchConfig  `yaml:"opensearch"`
	TIP        TIPConfig         `yaml:"tip"`
	Store      StoreConfig       `yaml:"store"`
	Neo4j      neo4jstore.Config `yaml:"neo4j"`
	Postgres   pgstore.Config    `yaml:"postgres"`
	Flow       FlowConfig        `yaml:"flow"`
	Logging    logging.Options   `yaml:"logging"`
	Metrics    MetricsConfig     `yaml:"metrics"`
	Archive    ArchiveConfig     `yaml:"archive"`
	Health     HealthConfig      `yaml:"health"`

	// Clean resets the graph before loading.
	Clean bool `yaml:"clean"`
}

// OpenSearchConfig locates the flow index.
type OpenSearchConfig struct {
	Host               string `yaml:"host"`
	Port               string `yaml:"port"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	Index              string `yaml:"index"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	BucketSize         int    `yaml:"bucket_size" validate:"min=1,max=65536"`
}

// Address returns the cluster URL. The cluster is always reached over TLS.
func (c OpenSearchConfig) Address() string {
	host := c.Host
	if c.Port != "" {
		host = net.JoinHostPort(c.Host, c.Port)
	}
	return "https://" + host
}

// TIPConfig locates the threat intelligence portal.
type TIPConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Wait    time.Duration `yaml:"wait"`
	Polls   int           `yaml:"polls" validate:"min=1,max=1000"`
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig selects the graph backend.
type StoreConfig struct {
	Backend string `yaml:"backend" validate:"oneof=neo4j postgres memory"`
}

// FlowConfig holds flow query parameters.
type FlowConfig struct {
	NoName string `yaml:"no_name" validate:"required"`
	Window string `yaml:"window" validate:"required"`
}

// MetricsConfig enables the textfile exporter when Textfile is set.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// ArchiveConfig enables input archiving when Dir is set.
type ArchiveConfig struct {
	Dir string `yaml:"dir"`
}

// HealthConfig bounds availability checks.
type HealthConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		OpenSearch: OpenSearchConfig{
			InsecureSkipVerify: true,
			BucketSize:         flow.DefaultBucketSize,
		},
		TIP: TIPConfig{
			Wait:    intel.DefaultWait,
			Polls:   intel.DefaultPolls,
			Timeout: intel.DefaultTimeout,
		},
		Store: StoreConfig{Backend: BackendNeo4j},
		Neo4j: neo4jstore.Config{
			MaxConnectionPoolSize: 10,
			ConnectionTimeout:     30 * time.Second,
		},
		Flow: FlowConfig{
			NoName: flow.DefaultNoName,
			Window: flow.DefaultWindow,
		},
		Logging: logging.Options{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Health: HealthConfig{Timeout: health.DefaultTimeout},
		Clean:  true,
	}
}

// Load reads path (optional) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	str("OPENSEARCH_HOST", &c.OpenSearch.Host)
	str("OPENSEARCH_PORT", &c.OpenSearch.Port)
	str("OPENSEARCH_LOGIN", &c.OpenSearch.Username)
	str("OPENSEARCH_PASSWORD", &c.OpenSearch.Password)
	str("OPENSEARCH_INDEX", &c.OpenSearch.Index)
	str("TIP_URL", &c.TIP.URL)
	str("TIP_AUTH_TOKEN", &c.TIP.Token)
	str("NEO4J_URI", &c.Neo4j.URI)
	str("NEO4J_LOGIN", &c.Neo4j.Username)
	str("NEO4J_PASSWORD", &c.Neo4j.Password)
	str("NEO4J_DB", &c.Neo4j.Database)
	str("POSTGRES_URL", &c.Postgres.URL)
	str("STORE_BACKEND", &c.Store.Backend)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FILE", &c.Logging.File)
	str("METRICS_TEXTFILE", &c.Metrics.Textfile)
	str("ARCHIVE_DIR", &c.Archive.Dir)

	if v, ok := lookup("TIP_POLLS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TIP_POLLS: %w", err)
		}
		c.TIP.Polls = n
	}
	if v, ok := lookup("TIP_WAIT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TIP_WAIT: %w", err)
		}
		c.TIP.Wait = d
	}
	if v, ok := lookup("CLEAN"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CLEAN: %w", err)
		}
		c.Clean = b
	}
	return nil
}

// ApplyDefaults applies default values to zero-valued fields.
func (c *Config) ApplyDefaults() {
	defaults := Default()

	c.OpenSearch.BucketSize = validation.DefaultOrInt(c.OpenSearch.BucketSize, defaults.OpenSearch.BucketSize)
	c.TIP.Wait = validation.DefaultOrDuration(c.TIP.Wait, defaults.TIP.Wait)
	c.TIP.Polls = validation.DefaultOrInt(c.TIP.Polls, defaults.TIP.Polls)
	c.TIP.Timeout = validation.DefaultOrDuration(c.TIP.Timeout, defaults.TIP.Timeout)
	c.Store.Backend = validation.DefaultOr(c.Store.Backend, defaults.Store.Backend)
	c.Flow.NoName = validation.DefaultOr(c.Flow.NoName, defaults.Flow.NoName)
	c.Flow.Window = validation.DefaultOr(c.Flow.Window, defaults.Flow.Window)
	c.Logging.Level = validation.DefaultOr(c.Logging.Level, defaults.Logging.Level)
	c.Health.Timeout = validation.DefaultOrDuration(c.Health.Timeout, defaults.Health.Timeout)
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return err
	}

	v := validation.NewConfigValidator("Config")
	v.OneOf("Logging.Level", c.Logging.Level, []string{"debug", "info", "warn", "warning", "error", "DEBUG", "INFO", "WARN", "WARNING", "ERROR"}).
		RangeDuration("TIP.Wait", c.TIP.Wait, 10*time.Millisecond, time.Minute)

	v.When(c.Store.Backend == BackendNeo4j, func(cv *validation.ConfigValidator) {
		cv.Required("Neo4j.URI", c.Neo4j.URI).
			Positive("Neo4j.MaxConnectionPoolSize", c.Neo4j.MaxConnectionPoolSize)
	})
	v.When(c.Store.Backend == BackendPostgres, func(cv *validation.ConfigValidator) {
		cv.Required("Postgres.URL", c.Postgres.URL)
	})

	return v.Validate()
}

// ValidateSources checks the settings a live run needs on top of Validate:
// the flow index and the portal.
func (c *Config) ValidateSources() error {
	v := validation.NewConfigValidator("Config")
	v.Required("OpenSearch.Host", c.OpenSearch.Host).
		Required("OpenSearch.Index", c.OpenSearch.Index).
		Required("TIP.URL", c.TIP.URL).
		Required("TIP.Token", c.TIP.Token)
	v.When(c.TIP.URL != "", func(cv *validation.ConfigValidator) {
		cv.URL("TIP.URL", c.TIP.URL)
	})
	v.When(c.OpenSearch.Port != "", func(cv *validation.ConfigValidator) {
		cv.Custom("OpenSearch.Port", func() error {
			if n, err := strconv.Atoi(c.OpenSearch.Port); err != nil || n < 1 || n > 65535 {
				return fmt.Errorf("%q is not a TCP port", c.OpenSearch.Port)
			}
			return nil
		})
	})
	return v.Validate()
}

// FlowSource builds the OpenSearch flow source.
func (c *Config) FlowSource(logger logging.Logger) (*flow.OpenSearchSource, error) {
	return flow.NewOpenSearchSource(flow.OpenSearchConfig{
		Addresses:          []string{c.OpenSearch.Address()},
		Username:           c.OpenSearch.Username,
		Password:           c.OpenSearch.Password,
		InsecureSkipVerify: c.OpenSearch.InsecureSkipVerify,
		NoName:             c.Flow.NoName,
		BucketSize:         c.OpenSearch.BucketSize,
	}, logger)
}

// TIPClient builds the portal client.
func (c *Config) TIPClient(logger logging.Logger) *intel.Client {
	return intel.NewClient(intel.ClientConfig{
		URL:     c.TIP.URL,
		Token:   c.TIP.Token,
		Wait:    c.TIP.Wait,
		Polls:   c.TIP.Polls,
		Timeout: c.TIP.Timeout,
	}, logger)
}

// OpenStore connects the configured graph backend.
func (c *Config) OpenStore(ctx context.Context) (loader.Store, error) {
	switch c.Store.Backend {
	case BackendNeo4j:
		s, err := neo4jstore.Open(ctx, c.Neo4j)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendPostgres:
		s, err := pgstore.Open(ctx, c.Postgres)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendMemory:
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
}
