// Package config provides application configuration with multi-source
// priority.
//
// Sources, highest to lowest:
//  1. Environment variables (runtime override; DATABASE_URL wins for Postgres)
//  2. Config file (~/.reqflow/config.yaml or ./config.yaml)
//  3. Defaults
//
// Missing connection parameters or provider credentials are configuration
// errors: fatal, raised at startup, never retried. Sensitive values are
// never logged.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfig is the root of all configuration failures; errors.Is(err,
	// ErrConfig) identifies fatal startup problems.
	ErrConfig = errors.New("invalid configuration")

	// ErrMissingAPIKey indicates the selected embedding provider has no
	// credential.
	ErrMissingAPIKey = fmt.Errorf("%w: missing embedding API key", ErrConfig)

	// ErrInvalidProvider indicates an unknown embedding provider name.
	ErrInvalidProvider = fmt.Errorf("%w: invalid embedding provider", ErrConfig)

	// ErrInvalidPostgres indicates unusable PostgreSQL connection settings.
	ErrInvalidPostgres = fmt.Errorf("%w: invalid PostgreSQL settings", ErrConfig)

	// ErrInvalidDimension indicates an embedding dimension that cannot match
	// the chunk schema.
	ErrInvalidDimension = fmt.Errorf("%w: invalid embedding dimension", ErrConfig)
)

// Embedding provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// EmbeddingDimension is the vector width of the chunks schema. Both
// providers are configured to emit exactly this many dimensions.
const EmbeddingDimension = 768

// Config stores application configuration. API keys are read only from the
// environment, never from the config file.
type Config struct {
	// Embedding provider selection
	Provider       string  `mapstructure:"provider"`
	EmbedderModel  string  `mapstructure:"embedder_model"`
	OpenAIBaseURL  string  `mapstructure:"openai_base_url"`
	EmbedRateLimit float64 `mapstructure:"embed_rate_limit"` // requests/second, 0 = unlimited

	// PostgreSQL connection
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Optional Redis embedding cache; empty address disables caching.
	RedisAddr string `mapstructure:"redis_addr"`

	// Ingestion chunking parameters
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`

	// Tracing
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`

	// Credentials, environment only
	GeminiAPIKey string `mapstructure:"-"`
	OpenAIAPIKey string `mapstructure:"-"`
}

// Load reads configuration from all sources and validates it.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".reqflow")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("embedder_model", "")
	v.SetDefault("embed_rate_limit", 10.0)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "reqflow")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_db_name", "reqflow")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("chunk_size", 1000)
	v.SetDefault("chunk_overlap", 200)

	v.SetDefault("tracing_enabled", false)
	v.SetDefault("otlp_endpoint", "localhost:4318")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("REQFLOW")
	v.AutomaticEnv()
}

// Validate performs fail-fast checks on all settings.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("%w: set GEMINI_API_KEY for provider %q", ErrMissingAPIKey, c.Provider)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: set OPENAI_API_KEY for provider %q", ErrMissingAPIKey, c.Provider)
		}
	default:
		return fmt.Errorf("%w: %q (expected %q or %q)", ErrInvalidProvider, c.Provider, ProviderGemini, ProviderOpenAI)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgres)
	}
	if c.PostgresPort <= 0 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidPostgres, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name is empty", ErrInvalidPostgres)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrConfig, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap*2 > c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap %d must be in [0, chunk_size/2]", ErrConfig, c.ChunkOverlap)
	}

	return nil
}
