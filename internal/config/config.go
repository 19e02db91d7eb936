package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/entsearch/internal/domain/entity"
)

// Config holds the entsearch API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Search    SearchConfig    `yaml:"search"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Reindex   ReindexConfig   `yaml:"reindex"`
	Source    SourceConfig    `yaml:"source"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
	// AdminKeys guard reindex requests. Empty means any API key may reindex.
	AdminKeys []string `yaml:"admin_keys"`
	// TrustUserHeader lets X-User-ID narrow rate limiting to a user. Set it
	// only when a gateway in front of the service owns that header.
	TrustUserHeader bool `yaml:"trust_user_header"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds index store connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis, memory (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// SearchConfig holds query validation and ranking settings.
type SearchConfig struct {
	DefaultLimit     int `yaml:"default_limit"`
	MaxLimit         int `yaml:"max_limit"`
	MaxOffset        int `yaml:"max_offset"`
	MaxQueryLength   int `yaml:"max_query_length"`
	MaxScanPerType   int `yaml:"max_scan_per_type"` // 0 scans every member
	RecencyHalfLifeH int `yaml:"recency_half_life_hours"`
}

// RateLimitConfig holds per-identity search rate settings.
type RateLimitConfig struct {
	Limit     int `yaml:"limit"`
	WindowSec int `yaml:"window_sec"`
}

// AnalyticsConfig holds query log settings.
type AnalyticsConfig struct {
	LogCap         int `yaml:"log_cap"`
	Buffer         int `yaml:"buffer"`
	WriteTimeoutMs int `yaml:"write_timeout_ms"`
}

// ReindexConfig holds reindex worker pool settings.
type ReindexConfig struct {
	Workers          int     `yaml:"workers"`
	PageSize         int     `yaml:"page_size"`
	MaxPageRetries   int     `yaml:"max_page_retries"`
	RetryBaseDelayMs int     `yaml:"retry_base_delay_ms"`
	ReadsPerSecond   float64 `yaml:"reads_per_second"`
	LockTTLSec       int     `yaml:"lock_ttl_sec"`
	MaxErrors        int     `yaml:"max_errors"`
	QueueSize        int     `yaml:"queue_size"`
	PruneSkewMs      int     `yaml:"prune_skew_ms"`
}

// SourceConfig holds system of record settings.
type SourceConfig struct {
	Driver string `yaml:"driver"` // postgres, none (default: none)
	DSN    string `yaml:"dsn"`
	// Tables overrides the table per entity type. An empty name disables the type.
	Tables map[string]string `yaml:"tables"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, substituting env variables and applying defaults.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "valkey"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "entsearch:"
	}
	c.applySearchDefaults()
	c.applyBackgroundDefaults()
	if c.Source.Driver == "" {
		c.Source.Driver = "none"
	}
}

func (c *Config) applySearchDefaults() {
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 20
	}
	if c.Search.MaxLimit <= 0 {
		c.Search.MaxLimit = 100
	}
	if c.Search.MaxOffset <= 0 {
		c.Search.MaxOffset = 10000
	}
	if c.Search.MaxQueryLength <= 0 {
		c.Search.MaxQueryLength = 256
	}
	if c.Search.MaxScanPerType < 0 {
		c.Search.MaxScanPerType = 0
	}
	if c.Search.RecencyHalfLifeH <= 0 {
		c.Search.RecencyHalfLifeH = 30 * 24
	}
	if c.RateLimit.Limit <= 0 {
		c.RateLimit.Limit = 100
	}
	if c.RateLimit.WindowSec <= 0 {
		c.RateLimit.WindowSec = 60
	}
}

func (c *Config) applyBackgroundDefaults() {
	if c.Analytics.LogCap <= 0 {
		c.Analytics.LogCap = 1000
	}
	if c.Analytics.Buffer <= 0 {
		c.Analytics.Buffer = 1024
	}
	if c.Analytics.WriteTimeoutMs <= 0 {
		c.Analytics.WriteTimeoutMs = 500
	}
	if c.Reindex.Workers <= 0 {
		c.Reindex.Workers = 2
	}
	if c.Reindex.PageSize <= 0 {
		c.Reindex.PageSize = 200
	}
	if c.Reindex.MaxPageRetries <= 0 {
		c.Reindex.MaxPageRetries = 3
	}
	if c.Reindex.RetryBaseDelayMs <= 0 {
		c.Reindex.RetryBaseDelayMs = 200
	}
	if c.Reindex.ReadsPerSecond <= 0 {
		c.Reindex.ReadsPerSecond = 20
	}
	if c.Reindex.LockTTLSec <= 0 {
		c.Reindex.LockTTLSec = 120
	}
	if c.Reindex.MaxErrors <= 0 {
		c.Reindex.MaxErrors = 100
	}
	if c.Reindex.QueueSize <= 0 {
		c.Reindex.QueueSize = 64
	}
	if c.Reindex.PruneSkewMs <= 0 {
		c.Reindex.PruneSkewMs = 5000
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "valkey", "redis":
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required")
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver must be \"valkey\", \"redis\" or \"memory\", got %q", c.Database.Driver)
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit %d exceeds search.max_limit %d",
			c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	switch c.Source.Driver {
	case "postgres":
		if c.Source.DSN == "" {
			return fmt.Errorf("source.dsn is required for the postgres driver")
		}
	case "none":
	default:
		return fmt.Errorf("source.driver must be \"postgres\" or \"none\", got %q", c.Source.Driver)
	}
	for name := range c.Source.Tables {
		if _, err := entity.ParseType(name); err != nil {
			return fmt.Errorf("source.tables: %w", err)
		}
	}
	return nil
}

// HalfLife returns the recency half-life as a duration.
func (s SearchConfig) HalfLife() time.Duration {
	return time.Duration(s.RecencyHalfLifeH) * time.Hour
}

// Window returns the rate limit window as a duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSec) * time.Second
}

// SourceTables returns the table overrides keyed by entity type.
func (s SourceConfig) SourceTables() map[entity.Type]string {
	out := make(map[entity.Type]string, len(s.Tables))
	for name, table := range s.Tables {
		out[entity.Type(name)] = table
	}
	return out
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
