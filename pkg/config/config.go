package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all configuration for insights-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"5000"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// ShutdownTimeout bounds graceful shutdown of the HTTP server.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"15s"`

	// Database is the analytics database the generated SQL runs against.
	Database DatabaseConfig `yaml:"database"`

	// UsageLog controls where pipeline invocations are recorded.
	UsageLog UsageLogConfig `yaml:"usage_log"`

	LLM      LLMConfig      `yaml:"llm"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"insights"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ad_insights"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`

	// StatementTimeout is applied as a session runtime parameter on every pooled connection.
	StatementTimeout time.Duration `yaml:"statement_timeout" env:"PGSTATEMENT_TIMEOUT" env-default:"30s"`
	// QueryTimeout bounds a single query from the client side (context deadline).
	QueryTimeout time.Duration `yaml:"query_timeout" env:"PGQUERY_TIMEOUT" env-default:"35s"`
}

// UsageLogConfig holds settings for the usage log store.
// When DatabaseURL is empty the analytics database is used with a writable pool.
type UsageLogConfig struct {
	Enabled      bool          `yaml:"enabled" env:"USAGE_LOG_ENABLED" env-default:"true"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"USAGE_LOG_WRITE_TIMEOUT" env-default:"5s"`
	DatabaseURL  string        `yaml:"-" env:"USAGE_LOG_DATABASE_URL"` // Secret - may embed credentials
}

// LLMConfig holds settings for the text-completion oracle.
type LLMConfig struct {
	Provider string        `yaml:"provider" env:"LLM_PROVIDER" env-default:"anthropic"`
	BaseURL  string        `yaml:"base_url" env:"LLM_BASE_URL" env-default:""`
	Model    string        `yaml:"model" env:"LLM_MODEL" env-default:"claude-3-5-sonnet-20241022"`
	APIKey   string        `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	Timeout  time.Duration `yaml:"timeout" env:"LLM_TIMEOUT" env-default:"30s"`

	// TransportRetries is the number of extra attempts for transient provider errors (429, 5xx).
	TransportRetries int `yaml:"transport_retries" env:"LLM_TRANSPORT_RETRIES" env-default:"2"`

	CircuitThreshold  int           `yaml:"circuit_threshold" env:"LLM_CIRCUIT_THRESHOLD" env-default:"5"`
	CircuitResetAfter time.Duration `yaml:"circuit_reset_after" env:"LLM_CIRCUIT_RESET_AFTER" env-default:"30s"`
}

// PipelineConfig holds question-to-query pipeline settings.
type PipelineConfig struct {
	// MaxRetries is the number of extra attempts after the first failed one.
	MaxRetries      int           `yaml:"max_retries" env:"PIPELINE_MAX_RETRIES" env-default:"3"`
	DefaultRowLimit int           `yaml:"default_row_limit" env:"PIPELINE_DEFAULT_ROW_LIMIT" env-default:"100"`
	SchemaCacheTTL  time.Duration `yaml:"schema_cache_ttl" env:"PIPELINE_SCHEMA_CACHE_TTL" env-default:"5m"`
	SchemaNamespace string        `yaml:"schema_namespace" env:"PIPELINE_SCHEMA_NAMESPACE" env-default:"public"`
	// ProfilePath optionally points at a YAML prompt profile that replaces the embedded default.
	ProfilePath   string `yaml:"profile_path" env:"PIPELINE_PROFILE_PATH" env-default:""`
	RunMigrations bool   `yaml:"run_migrations" env:"PIPELINE_RUN_MIGRATIONS" env-default:"true"`
}

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Load reads configuration from config.yaml with environment variable overrides.
// A .env file in the working directory is loaded first when present; it never
// overrides variables already set in the process environment.
// A missing config.yaml is not an error: defaults and environment are used.
func Load(version string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown llm provider %q (want %q or %q)", c.LLM.Provider, ProviderAnthropic, ProviderOpenAI)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm model is required")
	}
	if c.LLM.TransportRetries < 0 {
		return fmt.Errorf("llm transport_retries must not be negative")
	}
	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("pipeline max_retries must not be negative")
	}
	if c.Pipeline.DefaultRowLimit <= 0 {
		return fmt.Errorf("pipeline default_row_limit must be positive")
	}
	if c.Pipeline.SchemaCacheTTL <= 0 {
		return fmt.Errorf("pipeline schema_cache_ttl must be positive")
	}
	return nil
}

// UsageLogConnectionString returns the DSN for the usage log store.
func (c *Config) UsageLogConnectionString() string {
	if c.UsageLog.DatabaseURL != "" {
		return c.UsageLog.DatabaseURL
	}
	return c.Database.ConnectionString()
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return c.BindAddr + ":" + c.Port
}

// ConnectionString returns a PostgreSQL connection URL.
func (c *DatabaseConfig) ConnectionString() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", ResolveHostForDocker(c.Host), c.Port),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
