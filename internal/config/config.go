package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// EnvPrefix is prepended to every variable name, e.g. BEARCODE_HTTP_PORT.
const EnvPrefix = "BEARCODE"

// Config holds the configuration for the code search service
// Environment variables are automatically parsed from BEARCODE_ prefix
type Config struct {
	// Build target selects high-level environment: local, cloud-dev, cloud
	BuildTarget string `envconfig:"BUILD_TARGET" default:"cloud-dev"`

	// Derived or override drivers
	DBDriver    string `envconfig:"DB_DRIVER" default:"auto"`
	VectorStore string `envconfig:"VECTOR_STORE" default:"weaviate"`

	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string      `envconfig:"LOG_LEVEL" default:"info"`

	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Record store backends
	PostgresDSN   string `envconfig:"POSTGRES_DSN" default:""`
	SQLitePath    string `envconfig:"SQLITE_PATH" default:""`
	MongoURI      string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDatabase string `envconfig:"MONGO_DATABASE" default:"bearcode"`

	// Embedding / Search Configuration
	EmbedProvider string        `envconfig:"EMBED_PROVIDER" default:"ollama"`
	EmbedModel    string        `envconfig:"EMBED_MODEL" default:"nomic-embed-text"`
	OllamaURL     string        `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`
	WeaviateURL   string        `envconfig:"WEAVIATE_URL" default:"weaviate:8080"`
	VectorTimeout time.Duration `envconfig:"VECTOR_TIMEOUT" default:"10s"`

	// Credits
	DefaultCredits int64 `envconfig:"DEFAULT_CREDITS" default:"100"`
	IndexCost      int64 `envconfig:"INDEX_COST" default:"1"`
	SearchCost     int64 `envconfig:"SEARCH_COST" default:"2"`

	// Health
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`
	BootstrapTimeoutSeconds   int `envconfig:"BOOTSTRAP_TIMEOUT_SECONDS" default:"5"`

	// Outbox worker
	OutboxBatchSize int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	OutboxInterval  time.Duration `envconfig:"OUTBOX_INTERVAL" default:"2s"`
	OutboxInProcess bool          `envconfig:"OUTBOX_IN_PROCESS" default:"true"`
}

var (
	allowedDB     = map[string]bool{"postgres": true, "sqlite": true, "mongo": true, "memory": true}
	allowedVector = map[string]bool{"weaviate": true, "memory": true}
)

// ResolveDefaults validates BuildTarget and derives DBDriver when set to "auto" or empty.
func (c *Config) ResolveDefaults() error {
	var defaultDB string

	switch c.BuildTarget {
	case "cloud-dev", "cloud":
		defaultDB = "postgres"
	case "local":
		defaultDB = "sqlite"
	default:
		return fmt.Errorf("unsupported BUILD_TARGET: %s", c.BuildTarget)
	}

	if c.DBDriver == "" || c.DBDriver == "auto" {
		c.DBDriver = defaultDB
	}
	if !allowedDB[c.DBDriver] {
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	if c.VectorStore == "" {
		c.VectorStore = "weaviate"
	}
	if !allowedVector[c.VectorStore] {
		return fmt.Errorf("unsupported VECTOR_STORE: %s", c.VectorStore)
	}

	if c.DBDriver == "sqlite" && c.SQLitePath == "" {
		c.SQLitePath = "data/bearcode.db"
	}
	if c.DBDriver == "postgres" && c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required for DB_DRIVER=postgres")
	}

	if c.IndexCost <= 0 || c.SearchCost <= 0 {
		return fmt.Errorf("INDEX_COST and SEARCH_COST must be positive (got %d, %d)", c.IndexCost, c.SearchCost)
	}
	if c.DefaultCredits < 0 {
		return fmt.Errorf("DEFAULT_CREDITS must not be negative (got %d)", c.DefaultCredits)
	}
	return nil
}

// New creates a new Config by loading an optional .env file and parsing environment variables
// Environment variables should be prefixed with BEARCODE_
// Example: BEARCODE_HTTP_PORT, BEARCODE_SEARCH_COST
func New(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded, using process environment")
	}

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Str("vector_store", cfg.VectorStore).
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.HTTPPort).
		Str("embed_provider", cfg.EmbedProvider).
		Str("embed_model", cfg.EmbedModel).
		Str("postgres_dsn_present", func() string {
			if cfg.PostgresDSN != "" {
				return "true"
			}
			return "false"
		}()).
		Str("weaviate_url", cfg.WeaviateURL).
		Int64("index_cost", cfg.IndexCost).
		Int64("search_cost", cfg.SearchCost).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing
func NewForTesting() *Config {
	return &Config{
		BuildTarget:               "local",
		DBDriver:                  "memory",
		VectorStore:               "memory",
		Environment:               EnvTesting,
		LogLevel:                  "debug",
		HTTPPort:                  8080,
		EmbedProvider:             "ollama",
		EmbedModel:                "nomic-embed-text",
		OllamaURL:                 "http://localhost:11434",
		WeaviateURL:               "localhost:8082",
		VectorTimeout:             10 * time.Second,
		DefaultCredits:            100,
		IndexCost:                 1,
		SearchCost:                2,
		HealthIntervalSeconds:     30,
		HealthProbeTimeoutSeconds: 2,
		BootstrapTimeoutSeconds:   5,
		OutboxBatchSize:           100,
		OutboxInterval:            2 * time.Second,
	}
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// IsLocal reports whether the service runs on a developer machine.
func (c *Config) IsLocal() bool {
	return c.BuildTarget == "local"
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func (c *Config) HealthInterval() time.Duration {
	return time.Duration(c.HealthIntervalSeconds) * time.Second
}

func (c *Config) HealthProbeTimeout() time.Duration {
	return time.Duration(c.HealthProbeTimeoutSeconds) * time.Second
}

func (c *Config) BootstrapTimeout() time.Duration {
	return time.Duration(c.BootstrapTimeoutSeconds) * time.Second
}
