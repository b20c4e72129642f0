package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
)

// Supported database/sql drivers.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

const (
	DefaultTable          = "hbase_sensitivity_entity"
	DefaultResourceColumn = "hbase_resource"
)

// DataSource describes how to reach the sensitivity table. A store copies it at
// construction and never changes it afterwards.
//
// For pgx, User and Password win over anything in the DSN. When neither they
// nor the DSN carry credentials, pgx applies the usual libpq lookups
// (PGUSER, PGPASSWORD, ~/.pgpass, the OS user). The store itself never
// supplies a default credential.
type DataSource struct {
	Driver         string
	DSN            string // opaque, only interpreted by the driver
	User           string // overrides the DSN user (pgx only)
	Password       string // overrides the DSN password (pgx only)
	Table          string
	ResourceColumn string
	Timeout        time.Duration // per-operation deadline, 0 = caller's context only
}

func (ds DataSource) withDefaults() DataSource {
	if ds.Driver == "" {
		ds.Driver = DriverPostgres
	}
	if ds.Table == "" {
		ds.Table = DefaultTable
	}
	if ds.ResourceColumn == "" {
		ds.ResourceColumn = DefaultResourceColumn
	}
	return ds
}

// Target describes the data source for logs. It never includes credentials.
func (ds DataSource) Target() string {
	if ds.Driver == DriverPostgres {
		cfg, err := pgconn.ParseConfig(ds.DSN)
		if err != nil {
			return "postgres://<unparseable dsn>"
		}
		return fmt.Sprintf("postgres://%s:%d/%s", cfg.Host, cfg.Port, cfg.Database)
	}
	path, _, _ := strings.Cut(ds.DSN, "?")
	return ds.Driver + ":" + path
}

// open returns a handle capped at one physical connection that is discarded
// as soon as it is released. Nothing is dialed until a connection is requested.
func (ds DataSource) open() (*sql.DB, error) {
	var db *sql.DB
	switch ds.Driver {
	case DriverPostgres:
		cfg, err := ds.pgxConfig()
		if err != nil {
			return nil, err
		}
		db = stdlib.OpenDB(*cfg)
	default:
		var err error
		db, err = sql.Open(ds.Driver, ds.DSN)
		if err != nil {
			return nil, err
		}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(0)
	return db, nil
}

// pgxConfig parses the DSN and applies the configured credentials on top.
func (ds DataSource) pgxConfig() (*pgx.ConnConfig, error) {
	cfg, err := pgx.ParseConfig(ds.DSN)
	if err != nil {
		return nil, err
	}
	if ds.User != "" {
		cfg.User = ds.User
	}
	if ds.Password != "" {
		cfg.Password = ds.Password
	}
	return cfg, nil
}

// statements renders the read and write SQL for this data source.
func (ds DataSource) statements() (query, insert string) {
	table := quoteIdent(ds.Table)
	resource := quoteIdent(ds.ResourceColumn)

	placeholders := "?, ?, ?"
	if ds.Driver == DriverPostgres {
		placeholders = "$1, $2, $3"
	}

	query = fmt.Sprintf("SELECT site, %s, sensitivity_type FROM %s", resource, table)
	insert = fmt.Sprintf("INSERT INTO %s (site, %s, sensitivity_type) VALUES (%s)", table, resource, placeholders)
	return query, insert
}

// quoteIdent quotes a possibly schema-qualified identifier ("schema.table").
func quoteIdent(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}
