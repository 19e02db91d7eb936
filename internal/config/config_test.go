package config

import (
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/entsearch/internal/domain/entity"
)

func validConfig() Config {
	cfg := Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingValkeyAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Addrs = []string{}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing valkey addrs")
	}
}

func TestValidate_MemoryDriverNeedsNoAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = "memory"
	cfg.Database.Addrs = nil

	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Drivers(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown database driver", func(c *Config) { c.Database.Driver = "etcd" }},
		{"unknown source driver", func(c *Config) { c.Source.Driver = "mysql" }},
		{"postgres without dsn", func(c *Config) { c.Source.Driver = "postgres" }},
		{"unknown table type", func(c *Config) { c.Source.Tables = map[string]string{"order": "orders"} }},
		{"default limit above max", func(c *Config) { c.Search.DefaultLimit = 500 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Database.Driver != "valkey" {
		t.Errorf("expected Driver=valkey, got %q", cfg.Database.Driver)
	}
	if cfg.Storage.KeyPrefix != "entsearch:" {
		t.Errorf("expected KeyPrefix='entsearch:', got %q", cfg.Storage.KeyPrefix)
	}
	if cfg.Search.DefaultLimit != 20 || cfg.Search.MaxLimit != 100 {
		t.Errorf("expected limits 20/100, got %d/%d", cfg.Search.DefaultLimit, cfg.Search.MaxLimit)
	}
	if cfg.Search.MaxOffset != 10000 {
		t.Errorf("expected MaxOffset=10000, got %d", cfg.Search.MaxOffset)
	}
	if cfg.Search.MaxScanPerType != 0 {
		t.Errorf("expected unlimited scan, got %d", cfg.Search.MaxScanPerType)
	}
	if cfg.Reindex.PruneSkewMs != 5000 {
		t.Errorf("expected PruneSkewMs=5000, got %d", cfg.Reindex.PruneSkewMs)
	}
	if cfg.Auth.TrustUserHeader {
		t.Error("user header must not be trusted by default")
	}
	if cfg.Search.HalfLife() != 30*24*time.Hour {
		t.Errorf("expected 30 day half-life, got %s", cfg.Search.HalfLife())
	}
	if cfg.RateLimit.Limit != 100 || cfg.RateLimit.Window() != time.Minute {
		t.Errorf("expected 100/min, got %d/%s", cfg.RateLimit.Limit, cfg.RateLimit.Window())
	}
	if cfg.Analytics.LogCap != 1000 {
		t.Errorf("expected LogCap=1000, got %d", cfg.Analytics.LogCap)
	}
	if cfg.Reindex.Workers != 2 || cfg.Reindex.PageSize != 200 || cfg.Reindex.MaxPageRetries != 3 {
		t.Errorf("unexpected reindex defaults: %+v", cfg.Reindex)
	}
	if cfg.Source.Driver != "none" {
		t.Errorf("expected source driver none, got %q", cfg.Source.Driver)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:      HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Database:  DatabaseConfig{ReadinessTimeout: 15},
		Storage:   StorageConfig{KeyPrefix: "custom:"},
		Search:    SearchConfig{MaxLimit: 50},
		RateLimit: RateLimitConfig{Limit: 10, WindowSec: 1},
		Reindex:   ReindexConfig{Workers: 8},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec=60, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Storage.KeyPrefix != "custom:" {
		t.Errorf("expected KeyPrefix='custom:', got %q", cfg.Storage.KeyPrefix)
	}
	if cfg.Search.MaxLimit != 50 {
		t.Errorf("expected MaxLimit=50, got %d", cfg.Search.MaxLimit)
	}
	if cfg.RateLimit.Window() != time.Second {
		t.Errorf("expected 1s window, got %s", cfg.RateLimit.Window())
	}
	if cfg.Reindex.Workers != 8 {
		t.Errorf("expected Workers=8, got %d", cfg.Reindex.Workers)
	}
}

func TestParse_ExpandsEnvVars(t *testing.T) {
	t.Setenv("ENTSEARCH_TEST_PORT", "9090")
	t.Setenv("ENTSEARCH_TEST_DSN", "postgres://u:p@db/app")

	data := []byte(`
http:
  port: ${ENTSEARCH_TEST_PORT}
database:
  driver: ${ENTSEARCH_TEST_DRIVER:-memory}
source:
  driver: postgres
  dsn: ${ENTSEARCH_TEST_DSN}
  tables:
    invoice: billing.invoices
    report: ""
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.HTTP.Port)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("expected default driver memory, got %q", cfg.Database.Driver)
	}
	if !strings.HasPrefix(cfg.Source.DSN, "postgres://") {
		t.Errorf("expected expanded dsn, got %q", cfg.Source.DSN)
	}
	tables := cfg.Source.SourceTables()
	if tables[entity.Invoice] != "billing.invoices" {
		t.Errorf("expected invoice table override, got %q", tables[entity.Invoice])
	}
	if name, ok := tables[entity.Report]; !ok || name != "" {
		t.Errorf("expected report disabled, got %q (present=%v)", name, ok)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("http: [")); err == nil {
		t.Fatal("expected parse error")
	}
}
