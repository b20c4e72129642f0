// Package config loads catalog service settings from defaults, an optional
// YAML file, CATALOG_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/triage-ai/catalog/internal/store"
)

const envPrefix = "CATALOG"

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	DB         DBConfig         `mapstructure:"db"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	GRPC       GRPCConfig       `mapstructure:"grpc"`
	Log        LogConfig        `mapstructure:"log"`
	Auth       AuthConfig       `mapstructure:"auth"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

type DBConfig struct {
	Driver         string        `mapstructure:"driver"`
	DSN            string        `mapstructure:"dsn"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	Table          string        `mapstructure:"table"`
	ResourceColumn string        `mapstructure:"resource_column"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type HTTPConfig struct {
	Port string `mapstructure:"port"`
}

type GRPCConfig struct {
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// AuthConfig holds the bcrypt hash of the API key accepted for writes.
// An empty hash disables the write endpoint.
type AuthConfig struct {
	APIKeyHash string        `mapstructure:"api_key_hash"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

type ClickHouseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type TracingConfig struct {
	Exporter string `mapstructure:"exporter"` // none, stdout or otlp
	Endpoint string `mapstructure:"endpoint"`
}

// New returns a viper instance with defaults and environment binding set up.
// Credentials have no defaults.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("db.driver", store.DriverPostgres)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.user", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.table", store.DefaultTable)
	v.SetDefault("db.resource_column", store.DefaultResourceColumn)
	v.SetDefault("db.timeout", 10*time.Second)
	v.SetDefault("http.port", "8080")
	v.SetDefault("grpc.port", "9090")
	v.SetDefault("log.level", "info")
	v.SetDefault("auth.api_key_hash", "")
	v.SetDefault("auth.cache_ttl", 30*time.Second)
	v.SetDefault("clickhouse.dsn", "")
	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.endpoint", "")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags registers the persistent flags that override file and env values.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	fs.String("db-driver", store.DriverPostgres, "database/sql driver (pgx or sqlite)")
	fs.String("db-dsn", "", "catalog database connection string")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")

	for key, flag := range map[string]string{
		"db.driver": "db-driver",
		"db.dsn":    "db-dsn",
		"log.level": "log-level",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return fmt.Errorf("BindFlags: %w", err)
		}
	}
	return nil
}

// Load reads the optional config file and decodes the merged settings.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("Load: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if c.DB.DSN == "" {
		return fmt.Errorf("%w: db.dsn (CATALOG_DB_DSN) is required", ErrInvalidConfig)
	}
	switch c.DB.Driver {
	case store.DriverPostgres, store.DriverSQLite:
	default:
		return fmt.Errorf("%w: unsupported db.driver %q", ErrInvalidConfig, c.DB.Driver)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unsupported log.level %q", ErrInvalidConfig, c.Log.Level)
	}
	switch c.Tracing.Exporter {
	case "none", "stdout", "otlp":
	default:
		return fmt.Errorf("%w: unsupported tracing.exporter %q", ErrInvalidConfig, c.Tracing.Exporter)
	}
	if c.DB.Timeout < 0 {
		return fmt.Errorf("%w: db.timeout must not be negative", ErrInvalidConfig)
	}
	return nil
}

// DataSource converts the database settings into a store descriptor.
func (c DBConfig) DataSource() store.DataSource {
	return store.DataSource{
		Driver:         c.Driver,
		DSN:            c.DSN,
		User:           c.User,
		Password:       c.Password,
		Table:          c.Table,
		ResourceColumn: c.ResourceColumn,
		Timeout:        c.Timeout,
	}
}
