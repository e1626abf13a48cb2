// Package config provides configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultBodySizeLimit is the default maximum request body size (1MB).
const DefaultBodySizeLimit int64 = 1 << 20

// History modes for turn-based providers.
const (
	// HistoryFull sends every caller message as a prior turn.
	HistoryFull = "full"
	// HistoryLast sends only the final caller message after the persona exchange.
	HistoryLast = "last"
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Provider ProviderConfig `yaml:"provider"`
	Persona  PersonaConfig  `yaml:"persona"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LogConfig      `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Usage    UsageConfig    `yaml:"usage"`
	Storage  StorageConfig  `yaml:"storage"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port          string `yaml:"port"`
	ChatPath      string `yaml:"chat_path"`
	BodySizeLimit int64  `yaml:"body_size_limit"`
}

// ProviderConfig selects and configures the chat backend.
type ProviderConfig struct {
	// Type is "gemini" or "openai".
	Type    string `yaml:"type"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`

	// APIKeyEnv names the environment variable read on every request.
	APIKeyEnv string `yaml:"api_key_env"`
	// APIKey is used only when APIKeyEnv is unset in the environment.
	APIKey string `yaml:"api_key"`

	// HistoryMode applies to turn-based providers: "full" or "last".
	HistoryMode string `yaml:"history_mode"`

	Temperature *float64 `yaml:"temperature"`
	MaxTokens   *int     `yaml:"max_tokens"`

	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker settings for the upstream client.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// PersonaConfig overrides the built-in persona.
type PersonaConfig struct {
	PromptFile      string `yaml:"prompt_file"`
	Acknowledgement string `yaml:"acknowledgement"`
}

// HTTPConfig holds outbound HTTP client timeouts.
type HTTPConfig struct {
	Timeout               time.Duration `yaml:"timeout"`
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	// Format is "auto", "pretty" or "json".
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// MetricsConfig holds Prometheus exposure settings.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// UsageConfig holds token usage tracking settings.
type UsageConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BufferSize    int           `yaml:"buffer_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	RetentionDays int           `yaml:"retention_days"`
}

// StorageConfig selects the database used by usage tracking.
type StorageConfig struct {
	// Type is "sqlite", "postgresql" or "mongodb".
	Type       string           `yaml:"type"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
	MongoDB    MongoDBConfig    `yaml:"mongodb"`
}

// SQLiteConfig holds SQLite settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgreSQLConfig holds PostgreSQL settings.
type PostgreSQLConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

// MongoDBConfig holds MongoDB settings.
type MongoDBConfig struct {
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
}

// defaultAPIKeyEnv maps provider types to the environment variable holding their key.
var defaultAPIKeyEnv = map[string]string{
	"gemini": "GEMINI_API_KEY",
	"openai": "OPENAI_API_KEY",
}

// defaultModels maps provider types to the model used when none is configured.
var defaultModels = map[string]string{
	"gemini": "gemini-2.0-flash",
	"openai": "gpt-3.5-turbo",
}

// Defaults returns a Config with every default applied.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          "8080",
			ChatPath:      "/api/chat",
			BodySizeLimit: DefaultBodySizeLimit,
		},
		Provider: ProviderConfig{
			Type:        "gemini",
			HistoryMode: HistoryFull,
		},
		HTTP: HTTPConfig{
			Timeout:               600 * time.Second,
			ResponseHeaderTimeout: 600 * time.Second,
		},
		Logging: LogConfig{
			Format: "auto",
			Level:  "info",
		},
		Metrics: MetricsConfig{
			Endpoint: "/metrics",
		},
		Usage: UsageConfig{
			BufferSize:    1000,
			FlushInterval: 5 * time.Second,
			RetentionDays: 90,
		},
		Storage: StorageConfig{
			Type: "sqlite",
			SQLite: SQLiteConfig{
				Path: "data/househunt.db",
			},
			PostgreSQL: PostgreSQLConfig{
				MaxConns: 10,
			},
			MongoDB: MongoDBConfig{
				Database: "househunt",
			},
		},
	}
}

// Load builds the configuration from defaults, the .env file, the optional YAML
// file at path, and environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	// .env is optional; values already present in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// no config file, env only
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal([]byte(expandString(string(data))), cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyProviderDefaults(&cfg.Provider)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail at request time.
func (c *Config) Validate() error {
	if _, ok := defaultModels[c.Provider.Type]; !ok {
		return fmt.Errorf("unknown provider type %q (valid: gemini, openai)", c.Provider.Type)
	}
	switch c.Provider.HistoryMode {
	case HistoryFull, HistoryLast:
	default:
		return fmt.Errorf("invalid history mode %q (valid: full, last)", c.Provider.HistoryMode)
	}
	switch c.Logging.Format {
	case "auto", "pretty", "json":
	default:
		return fmt.Errorf("invalid log format %q (valid: auto, pretty, json)", c.Logging.Format)
	}
	if !strings.HasPrefix(c.Server.ChatPath, "/") {
		return fmt.Errorf("chat path must start with '/': %q", c.Server.ChatPath)
	}
	if c.Usage.Enabled {
		switch c.Storage.Type {
		case "sqlite", "postgresql", "mongodb":
		default:
			return fmt.Errorf("unknown storage type %q (valid: sqlite, postgresql, mongodb)", c.Storage.Type)
		}
	}
	return nil
}

// applyProviderDefaults fills in provider fields that depend on the provider type.
func applyProviderDefaults(p *ProviderConfig) {
	if p.Model == "" {
		p.Model = defaultModels[p.Type]
	}
	if p.APIKeyEnv == "" {
		p.APIKeyEnv = defaultAPIKeyEnv[p.Type]
	}
	if p.HistoryMode == "" {
		p.HistoryMode = HistoryFull
	}
}

// applyEnv overrides cfg with environment variables that are set.
func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Server.ChatPath, "CHAT_PATH")
	setString(&cfg.Provider.Type, "CHAT_PROVIDER")
	setString(&cfg.Provider.Model, "CHAT_MODEL")
	setString(&cfg.Provider.BaseURL, "CHAT_BASE_URL")
	setString(&cfg.Provider.HistoryMode, "CHAT_HISTORY_MODE")
	setString(&cfg.Persona.PromptFile, "PERSONA_PROMPT_FILE")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Metrics.Endpoint, "METRICS_ENDPOINT")
	setString(&cfg.Storage.Type, "STORAGE_TYPE")
	setString(&cfg.Storage.SQLite.Path, "SQLITE_PATH")
	setString(&cfg.Storage.PostgreSQL.URL, "POSTGRES_URL")
	setString(&cfg.Storage.MongoDB.URL, "MONGODB_URL")
	setString(&cfg.Storage.MongoDB.Database, "MONGODB_DATABASE")

	if err := setBool(&cfg.Metrics.Enabled, "METRICS_ENABLED"); err != nil {
		return err
	}
	if err := setBool(&cfg.Usage.Enabled, "USAGE_ENABLED"); err != nil {
		return err
	}
	if v := os.Getenv("BODY_SIZE_LIMIT"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid BODY_SIZE_LIMIT %q", v)
		}
		cfg.Server.BodySizeLimit = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = b
	return nil
}

// expandString replaces ${VAR} and ${VAR:-default} placeholders with environment values.
// Unset variables without a default expand to "".
func expandString(s string) string {
	return os.Expand(s, func(key string) string {
		name, def, hasDefault := strings.Cut(key, ":-")
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		return ""
	})
}
