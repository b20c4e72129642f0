package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/triage-ai/catalog/internal/store"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(New(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DB.Driver != store.DriverPostgres {
		t.Errorf("expected driver %s, got %s", store.DriverPostgres, cfg.DB.Driver)
	}
	if cfg.DB.Table != store.DefaultTable {
		t.Errorf("expected table %s, got %s", store.DefaultTable, cfg.DB.Table)
	}
	if cfg.DB.User != "" || cfg.DB.Password != "" {
		t.Errorf("credentials must not have defaults, got user=%q password=%q", cfg.DB.User, cfg.DB.Password)
	}
	if cfg.DB.Timeout != 10*time.Second {
		t.Errorf("expected 10s timeout, got %s", cfg.DB.Timeout)
	}
	if cfg.HTTP.Port != "8080" || cfg.GRPC.Port != "9090" {
		t.Errorf("unexpected ports http=%s grpc=%s", cfg.HTTP.Port, cfg.GRPC.Port)
	}
	if cfg.Auth.CacheTTL != 30*time.Second {
		t.Errorf("expected 30s cache ttl, got %s", cfg.Auth.CacheTTL)
	}
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfigFile(t, `
db:
  driver: sqlite
  dsn: file:/var/lib/catalog.db
  table: security.sensitivity
  timeout: 3s
tracing:
  exporter: stdout
`)

	cfg, err := Load(New(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DB.Driver != store.DriverSQLite {
		t.Errorf("expected sqlite, got %s", cfg.DB.Driver)
	}
	if cfg.DB.Table != "security.sensitivity" {
		t.Errorf("expected table from file, got %s", cfg.DB.Table)
	}
	if cfg.DB.Timeout != 3*time.Second {
		t.Errorf("expected 3s, got %s", cfg.DB.Timeout)
	}
	if cfg.DB.ResourceColumn != store.DefaultResourceColumn {
		t.Errorf("expected default resource column, got %s", cfg.DB.ResourceColumn)
	}
	if cfg.Tracing.Exporter != "stdout" {
		t.Errorf("expected stdout exporter, got %s", cfg.Tracing.Exporter)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
db:
  dsn: postgres://file-host/eagle
  user: from-file
`)
	t.Setenv("CATALOG_DB_DSN", "postgres://env-host/eagle")
	t.Setenv("CATALOG_DB_PASSWORD", "from-env")

	cfg, err := Load(New(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DB.DSN != "postgres://env-host/eagle" {
		t.Errorf("expected env DSN, got %s", cfg.DB.DSN)
	}
	if cfg.DB.User != "from-file" {
		t.Errorf("expected user from file, got %s", cfg.DB.User)
	}
	if cfg.DB.Password != "from-env" {
		t.Errorf("expected password from env, got %s", cfg.DB.Password)
	}
}

func TestLoad_FlagOverridesEnv(t *testing.T) {
	t.Setenv("CATALOG_DB_DSN", "postgres://env-host/eagle")

	v := New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(v, fs); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}
	if err := fs.Parse([]string{"--db-dsn", "postgres://flag-host/eagle", "--log-level", "debug"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(v, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DB.DSN != "postgres://flag-host/eagle" {
		t.Errorf("expected flag DSN, got %s", cfg.DB.DSN)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Log.Level)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(New(), "")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		cfg.DB.DSN = "postgres://db/eagle"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "sqlite driver", mutate: func(c *Config) { c.DB.Driver = store.DriverSQLite }},
		{name: "missing dsn", mutate: func(c *Config) { c.DB.DSN = "" }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.DB.Driver = "mysql" }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "verbose" }, wantErr: true},
		{name: "bad exporter", mutate: func(c *Config) { c.Tracing.Exporter = "jaeger" }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.DB.Timeout = -time.Second }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got: %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("expected no error, got: %v", err)
			}
		})
	}
}

func TestDBConfig_DataSource(t *testing.T) {
	c := DBConfig{
		Driver:         store.DriverPostgres,
		DSN:            "postgres://db/eagle",
		User:           "catalog",
		Password:       "pw",
		Table:          "t",
		ResourceColumn: "resource",
		Timeout:        time.Second,
	}

	ds := c.DataSource()
	if ds.Driver != c.Driver || ds.DSN != c.DSN || ds.User != c.User || ds.Password != c.Password ||
		ds.Table != c.Table || ds.ResourceColumn != c.ResourceColumn || ds.Timeout != c.Timeout {
		t.Errorf("descriptor does not mirror config: %+v", ds)
	}
}
