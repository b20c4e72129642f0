// Package store provides access to the sensitivity classification catalog.
// Every operation opens its own short-lived connection and releases it,
// along with any statement or cursor, before returning.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	opListAll     = "list_all"
	opBatchInsert = "batch_insert"
	opPing        = "ping"
)

// SensitivityCatalogStore reads and appends rows of the sensitivity table.
// It holds no state besides its data source and is safe for concurrent use.
type SensitivityCatalogStore struct {
	ds        DataSource
	target    string
	querySQL  string
	insertSQL string
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewSensitivityCatalogStore creates a store for the given data source.
// It performs no I/O; connectivity is checked on first use.
func NewSensitivityCatalogStore(ds DataSource, logger *zap.Logger) *SensitivityCatalogStore {
	ds = ds.withDefaults()
	query, insert := ds.statements()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SensitivityCatalogStore{
		ds:        ds,
		target:    ds.Target(),
		querySQL:  query,
		insertSQL: insert,
		logger:    logger,
		tracer:    otel.Tracer("catalog/store"),
	}
}

// Target returns the redacted data source description used in logs.
func (s *SensitivityCatalogStore) Target() string {
	return s.target
}

// Ping opens a connection, pings it and releases it.
func (s *SensitivityCatalogStore) Ping(ctx context.Context) (err error) {
	ctx, span := s.start(ctx, "SensitivityCatalogStore.Ping")
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rel := &releaser{op: opPing}
	defer func() { err = s.finish(span, opPing, err, rel) }()

	db, conn, err := s.connect(ctx, rel)
	if err != nil {
		return err
	}
	defer rel.release("database handle", db.Close)
	defer rel.release("connection", conn.Close)

	if err := conn.PingContext(ctx); err != nil {
		return &ConnectionError{Target: s.target, Err: err}
	}
	return nil
}

// connect opens a fresh handle and takes its single connection.
func (s *SensitivityCatalogStore) connect(ctx context.Context, rel *releaser) (*sql.DB, *sql.Conn, error) {
	db, err := s.ds.open()
	if err != nil {
		return nil, nil, &ConnectionError{Target: s.target, Err: err}
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		rel.release("database handle", db.Close)
		return nil, nil, &ConnectionError{Target: s.target, Err: err}
	}
	return db, conn, nil
}

func (s *SensitivityCatalogStore) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("db.system", s.ds.Driver),
		attribute.String("db.sql.table", s.ds.Table),
	)
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *SensitivityCatalogStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.ds.Timeout > 0 {
		return context.WithTimeout(ctx, s.ds.Timeout)
	}
	return ctx, func() {}
}

// finish logs the outcome of an operation and merges cleanup failures into
// the returned error without hiding the primary one.
func (s *SensitivityCatalogStore) finish(span trace.Span, op string, err error, rel *releaser) error {
	defer span.End()

	cleanupErr := rel.err()
	if cleanupErr != nil {
		s.logger.Error("error in closing database resources",
			zap.String("op", op),
			zap.String("target", s.target),
			zap.Error(cleanupErr),
		)
	}

	if err != nil {
		s.logger.Error("catalog operation failed",
			zap.String("op", op),
			zap.String("target", s.target),
			zap.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if cleanupErr != nil {
			return errors.Join(err, cleanupErr)
		}
		return err
	}

	if cleanupErr != nil {
		span.RecordError(cleanupErr)
		span.SetStatus(codes.Error, cleanupErr.Error())
		return cleanupErr
	}
	return nil
}

// releaser records failures from deferred Close calls. Deferred releases run
// in reverse order of acquisition and a failure never stops the next one.
type releaser struct {
	op   string
	errs []error
}

func (r *releaser) release(what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		r.errs = append(r.errs, fmt.Errorf("close %s: %w", what, err))
	}
}

func (r *releaser) err() error {
	if len(r.errs) == 0 {
		return nil
	}
	return &ResourceCleanupError{Op: r.op, Errs: r.errs}
}
