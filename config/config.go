// Package config provides configuration management for the application.
//
// Values are layered: built-in defaults, then an optional config.yaml (with
// ${VAR} and ${VAR:-default} placeholders expanded), then a .env file in the
// working directory, then environment variables, which always win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// configPaths are searched in order for the optional YAML file.
var configPaths = []string{"config/config.yaml", "config.yaml"}

const dotEnvPath = ".env"

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Logging    LogConfig        `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Usage      UsageConfig      `mapstructure:"usage"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Mistral    ProviderConfig   `mapstructure:"mistral"`
	Anthropic  ProviderConfig   `mapstructure:"anthropic"`
	ElevenLabs ElevenLabsConfig `mapstructure:"elevenlabs"`
	Azure      AzureConfig      `mapstructure:"azure"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `mapstructure:"port"`
	// MasterKey, when set, is required as a Bearer token on /api routes.
	MasterKey string `mapstructure:"master_key"`
	// BodySizeLimit uses echo's notation, e.g. "25M".
	BodySizeLimit    string   `mapstructure:"body_size_limit"`
	CORSAllowOrigins []string `mapstructure:"cors_allow_origins"`
}

// HTTPConfig holds upstream HTTP client timeouts, in seconds.
type HTTPConfig struct {
	Timeout               int `mapstructure:"timeout"`
	ResponseHeaderTimeout int `mapstructure:"response_header_timeout"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	// Format is "json", "text" or empty to pick by terminal detection.
	Format string `mapstructure:"format"`
	Level  string `mapstructure:"level"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// StorageConfig holds the sessions database configuration. An empty Type
// disables the sink.
type StorageConfig struct {
	Type       string           `mapstructure:"type"`
	SQLite     SQLiteConfig     `mapstructure:"sqlite"`
	PostgreSQL PostgreSQLConfig `mapstructure:"postgresql"`
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgreSQLConfig holds PostgreSQL-specific configuration
type PostgreSQLConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int    `mapstructure:"max_conns"`
}

// UsageConfig controls token usage recording. It needs a configured storage backend.
type UsageConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// BufferSize is how many records may wait in memory before new ones are dropped.
	BufferSize int `mapstructure:"buffer_size"`
	// FlushInterval is in seconds.
	FlushInterval int `mapstructure:"flush_interval"`
	// RetentionDays of 0 keeps records forever.
	RetentionDays int `mapstructure:"retention_days"`
}

// ProviderConfig is the common shape of an upstream's settings.
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// OpenAIConfig holds OpenAI-specific configuration
type OpenAIConfig struct {
	APIKey      string `mapstructure:"api_key"`
	BaseURL     string `mapstructure:"base_url"`
	ChatModel   string `mapstructure:"chat_model"`
	AssistantID string `mapstructure:"assistant_id"`
	// PollIntervalMs is the delay between assistant run status checks.
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
}

// ElevenLabsConfig holds ElevenLabs-specific configuration
type ElevenLabsConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	// Voices maps client language names to voice ids. Built-in table when empty.
	Voices map[string]string `mapstructure:"voices"`
}

// AzureConfig holds Azure Speech configuration
type AzureConfig struct {
	Key    string `mapstructure:"key"`
	Region string `mapstructure:"region"`
}

// envBindings maps configuration keys to the environment variables that override them.
var envBindings = map[string]string{
	"server.port":                  "PORT",
	"server.master_key":            "MASTER_KEY",
	"server.body_size_limit":       "BODY_SIZE_LIMIT",
	"server.cors_allow_origins":    "CORS_ALLOW_ORIGINS",
	"http.timeout":                 "HTTP_TIMEOUT",
	"http.response_header_timeout": "HTTP_RESPONSE_HEADER_TIMEOUT",
	"logging.format":               "LOG_FORMAT",
	"logging.level":                "LOG_LEVEL",
	"metrics.enabled":              "METRICS_ENABLED",
	"metrics.endpoint":             "METRICS_ENDPOINT",
	"storage.type":                 "STORAGE_TYPE",
	"storage.sqlite.path":          "SQLITE_PATH",
	"storage.postgresql.url":       "POSTGRES_URL",
	"storage.postgresql.max_conns": "POSTGRES_MAX_CONNS",
	"usage.enabled":                "USAGE_ENABLED",
	"usage.buffer_size":            "USAGE_BUFFER_SIZE",
	"usage.flush_interval":         "USAGE_FLUSH_INTERVAL",
	"usage.retention_days":         "USAGE_RETENTION_DAYS",
	"openai.api_key":               "OPENAI_API_KEY",
	"openai.base_url":              "OPENAI_BASE_URL",
	"openai.chat_model":            "OPENAI_CHAT_MODEL",
	"openai.assistant_id":          "OPENAI_ASSISTANT_ID",
	"openai.poll_interval_ms":      "OPENAI_POLL_INTERVAL_MS",
	"mistral.api_key":              "MISTRAL_API_KEY",
	"mistral.base_url":             "MISTRAL_BASE_URL",
	"mistral.model":                "MISTRAL_MODEL",
	"anthropic.api_key":            "ANTHROPIC_API_KEY",
	"anthropic.base_url":           "ANTHROPIC_BASE_URL",
	"anthropic.model":              "ANTHROPIC_MODEL",
	"elevenlabs.api_key":           "ELEVENLABS_API_KEY",
	"elevenlabs.base_url":          "ELEVENLABS_BASE_URL",
	"elevenlabs.model":             "ELEVENLABS_MODEL",
	"azure.key":                    "AZURE_SPEECH_KEY",
	"azure.region":                 "AZURE_SPEECH_REGION",
}

// setDefaults registers the values used when nothing overrides them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.body_size_limit", "25M")
	v.SetDefault("server.cors_allow_origins", []string{"*"})
	v.SetDefault("http.timeout", 300)
	v.SetDefault("http.response_header_timeout", 300)
	v.SetDefault("logging.level", "info")
	v.SetDefault("metrics.endpoint", "/metrics")
	v.SetDefault("storage.sqlite.path", "data/lingogate.db")
	v.SetDefault("storage.postgresql.max_conns", 10)
	v.SetDefault("usage.buffer_size", 1000)
	v.SetDefault("usage.flush_interval", 5)
	v.SetDefault("usage.retention_days", 90)
	v.SetDefault("openai.poll_interval_ms", 1000)
}

// Load reads configuration from config.yaml, .env and the environment.
func Load() (*Config, error) {
	dotenv, err := readDotEnv(dotEnvPath)
	if err != nil {
		return nil, err
	}
	lookup := func(name string) string {
		if value := os.Getenv(name); value != "" {
			return value
		}
		return dotenv.GetString(name)
	}

	v := viper.New()
	setDefaults(v)

	for _, path := range configPaths {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		v.SetConfigType("yaml")
		if err := v.ReadConfig(strings.NewReader(expandString(string(data), lookup))); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		break
	}

	for key, name := range envBindings {
		if err := v.BindEnv(key, name); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", name, err)
		}
		// .env sits below the process environment
		if value := dotenv.GetString(name); value != "" && os.Getenv(name) == "" {
			v.Set(key, value)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		stringToListHook(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// readDotEnv parses the optional .env file. A missing file yields an empty set.
func readDotEnv(path string) (*viper.Viper, error) {
	d := viper.New()
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return d, nil
	}
	d.SetConfigFile(path)
	d.SetConfigType("env")
	if err := d.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return d, nil
}

// stringToListHook splits comma separated strings into trimmed, non-empty items.
func stringToListHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}
		var items []string
		for _, item := range strings.Split(data.(string), ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items, nil
	}
}

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default} using lookup.
// An unset or empty variable with no default is left untouched.
func expandString(s string, lookup func(string) string) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := placeholderPattern.FindStringSubmatch(match)
		name, hasDefault, def := groups[1], groups[2] != "", groups[3]

		value := lookup(name)
		switch {
		case value != "":
			return value
		case hasDefault:
			return def
		default:
			return match
		}
	})
}
