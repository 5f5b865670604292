// Package config loads the service configuration from environment
// variables (EDUCARE prefix) with an optional YAML file underneath.
// Environment values take precedence over file values.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Security SecurityConfig `yaml:"security" envconfig:"SECURITY"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Storage  StorageConfig  `yaml:"storage" envconfig:"STORAGE"`
	License  LicenseConfig  `yaml:"license" envconfig:"LICENSE"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS" default:"true"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Output      string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT" default:"true"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Driver is "memory" for standalone operation or "postgres".
	Driver      string `yaml:"driver" envconfig:"DRIVER" default:"memory"`
	PostgresDSN string `yaml:"postgres_dsn" envconfig:"POSTGRES_DSN"`
	// Migrate applies pending schema migrations at startup.
	Migrate bool `yaml:"migrate" envconfig:"MIGRATE" default:"true"`
}

// LicenseConfig contains licensing-core configuration.
type LicenseConfig struct {
	// KeySecret signs generated license keys; at most 64 bytes (BLAKE2b
	// key limit).
	KeySecret          string        `yaml:"key_secret" envconfig:"KEY_SECRET" default:"educare-dev-key-secret"`
	ValidationCacheTTL time.Duration `yaml:"validation_cache_ttl" envconfig:"VALIDATION_CACHE_TTL" default:"30s"`
	ValidationCacheMax int           `yaml:"validation_cache_max" envconfig:"VALIDATION_CACHE_MAX" default:"1024"`
}

// Load loads configuration in three layers: tag defaults, then the
// optional YAML file, then environment variables.
func Load() (*Config, error) {
	var cfg Config

	// Load from environment variables first; unset variables fall back
	// to the struct tag defaults.
	if err := envconfig.Process("EDUCARE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// Load from config file if exists
	if path := configFilePath(); path != "" {
		if _, err := os.Stat(path); err == nil {
			fileCfg, keys, err := loadFromFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
			mergeFileConfig(&cfg, fileCfg, keys)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file. The raw key map is
// returned alongside the typed config so the merge can tell an absent
// key apart from an explicit zero value.
func loadFromFile(filePath string) (*Config, fileKeys, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, nil, err
	}

	var keys fileKeys
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return nil, nil, err
	}

	return &cfg, keys, nil
}

// fileKeys is the raw YAML document, used only for key presence checks.
type fileKeys map[interface{}]interface{}

func (k fileKeys) has(path ...string) bool {
	node := k
	for i, key := range path {
		v, ok := node[key]
		if !ok {
			return false
		}
		if i == len(path)-1 {
			return true
		}
		if node, ok = v.(map[interface{}]interface{}); !ok {
			return false
		}
	}
	return false
}

// mergeFileConfig overlays file values onto the env-processed config
// (env takes precedence). envconfig writes tag defaults for unset
// variables, so a zero-value check cannot tell "defaulted" from "set";
// a file value wins unless its variable is present in the environment.
func mergeFileConfig(cfg *Config, file *Config, keys fileKeys) {
	fromFile := func(envVar string, path ...string) bool {
		if _, ok := os.LookupEnv(envVar); ok {
			return false
		}
		return keys.has(path...)
	}

	// Server config
	if fromFile("EDUCARE_SERVER_PORT", "server", "port") {
		cfg.Server.Port = file.Server.Port
	}
	if fromFile("EDUCARE_SERVER_READ_TIMEOUT", "server", "read_timeout") {
		cfg.Server.ReadTimeout = file.Server.ReadTimeout
	}
	if fromFile("EDUCARE_SERVER_WRITE_TIMEOUT", "server", "write_timeout") {
		cfg.Server.WriteTimeout = file.Server.WriteTimeout
	}
	if fromFile("EDUCARE_SERVER_IDLE_TIMEOUT", "server", "idle_timeout") {
		cfg.Server.IdleTimeout = file.Server.IdleTimeout
	}
	if fromFile("EDUCARE_SERVER_MAX_HEADER_BYTES", "server", "max_header_bytes") {
		cfg.Server.MaxHeaderBytes = file.Server.MaxHeaderBytes
	}
	if fromFile("EDUCARE_SERVER_SHUTDOWN_TIMEOUT", "server", "shutdown_timeout") {
		cfg.Server.ShutdownTimeout = file.Server.ShutdownTimeout
	}
	if fromFile("EDUCARE_SERVER_REQUEST_TIMEOUT", "server", "request_timeout") {
		cfg.Server.RequestTimeout = file.Server.RequestTimeout
	}

	// Security config
	if fromFile("EDUCARE_SECURITY_ALLOWED_ORIGINS", "security", "allowed_origins") {
		cfg.Security.AllowedOrigins = file.Security.AllowedOrigins
	}
	if fromFile("EDUCARE_SECURITY_ENABLE_CORS", "security", "enable_cors") {
		cfg.Security.EnableCORS = file.Security.EnableCORS
	}
	if fromFile("EDUCARE_SECURITY_RATE_LIMIT_ENABLED", "security", "rate_limit", "enabled") {
		cfg.Security.RateLimit.Enabled = file.Security.RateLimit.Enabled
	}
	if fromFile("EDUCARE_SECURITY_RATE_LIMIT_RPS", "security", "rate_limit", "rps") {
		cfg.Security.RateLimit.RPS = file.Security.RateLimit.RPS
	}
	if fromFile("EDUCARE_SECURITY_RATE_LIMIT_BURST", "security", "rate_limit", "burst") {
		cfg.Security.RateLimit.Burst = file.Security.RateLimit.Burst
	}

	// Logging config
	if fromFile("EDUCARE_LOGGING_LEVEL", "logging", "level") {
		cfg.Logging.Level = file.Logging.Level
	}
	if fromFile("EDUCARE_LOGGING_OUTPUT", "logging", "output") {
		cfg.Logging.Output = file.Logging.Output
	}
	if fromFile("EDUCARE_LOGGING_FILE_PATH", "logging", "file_path") {
		cfg.Logging.FilePath = file.Logging.FilePath
	}
	if fromFile("EDUCARE_LOGGING_DEVELOPMENT", "logging", "development") {
		cfg.Logging.Development = file.Logging.Development
	}

	// Storage config
	if fromFile("EDUCARE_STORAGE_DRIVER", "storage", "driver") {
		cfg.Storage.Driver = file.Storage.Driver
	}
	if fromFile("EDUCARE_STORAGE_POSTGRES_DSN", "storage", "postgres_dsn") {
		cfg.Storage.PostgresDSN = file.Storage.PostgresDSN
	}
	if fromFile("EDUCARE_STORAGE_MIGRATE", "storage", "migrate") {
		cfg.Storage.Migrate = file.Storage.Migrate
	}

	// License config
	if fromFile("EDUCARE_LICENSE_KEY_SECRET", "license", "key_secret") {
		cfg.License.KeySecret = file.License.KeySecret
	}
	if fromFile("EDUCARE_LICENSE_VALIDATION_CACHE_TTL", "license", "validation_cache_ttl") {
		cfg.License.ValidationCacheTTL = file.License.ValidationCacheTTL
	}
	if fromFile("EDUCARE_LICENSE_VALIDATION_CACHE_MAX", "license", "validation_cache_max") {
		cfg.License.ValidationCacheMax = file.License.ValidationCacheMax
	}
}

func configFilePath() string {
	if path := os.Getenv("EDUCARE_CONFIG_FILE"); path != "" {
		return path
	}
	return "config.yaml"
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Storage.Driver != "memory" && c.Storage.Driver != "postgres" {
		return fmt.Errorf("unknown storage driver: %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("storage driver postgres requires a DSN")
	}
	if len(c.License.KeySecret) == 0 || len(c.License.KeySecret) > 64 {
		return fmt.Errorf("license key secret must be 1-64 bytes, got %d", len(c.License.KeySecret))
	}
	if c.Security.RateLimit.Enabled && c.Security.RateLimit.RPS <= 0 {
		return fmt.Errorf("rate limit rps must be positive")
	}
	return nil
}
