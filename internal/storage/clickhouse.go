package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	bufferSize    = 4096
	flushInterval = 250 * time.Millisecond
	flushBatch    = 500
	sendTimeout   = 5 * time.Second
)

const insertCatalogEvents = `
	INSERT INTO catalog_events (
		event_id, request_id, timestamp, operation,
		record_count, sites, outcome, error_kind, error,
		latency_ms, source, caller
	)`

// batchPreparer is the part of driver.Conn the writer needs.
type batchPreparer interface {
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
	Close() error
}

// OpenClickHouse parses dsn, connects and pings. TLS is enabled when the DSN
// asks for it (?secure=true), as required by ClickHouse Cloud.
func OpenClickHouse(ctx context.Context, dsn string) (driver.Conn, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("OpenClickHouse: %w", err)
	}
	if opts.TLS != nil && opts.TLS.MinVersion == 0 {
		opts.TLS.MinVersion = tls.VersionTLS12
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("OpenClickHouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("OpenClickHouse: %w", err)
	}
	return conn, nil
}

// ClickHouseWriter appends audit events to the catalog_events table.
// Write() only enqueues; a single background goroutine batches and sends.
type ClickHouseWriter struct {
	conn     batchPreparer
	events   chan *CatalogEvent
	stop     chan struct{}
	stopped  chan struct{} // closed when run returns
	interval time.Duration
	maxBatch int
	logger   *zap.Logger
}

// NewClickHouseWriter connects to ClickHouse and starts the flush goroutine.
func NewClickHouseWriter(dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	conn, err := OpenClickHouse(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return newClickHouseWriter(conn, flushInterval, flushBatch, logger), nil
}

func newClickHouseWriter(conn batchPreparer, interval time.Duration, maxBatch int, logger *zap.Logger) *ClickHouseWriter {
	w := &ClickHouseWriter{
		conn:     conn,
		events:   make(chan *CatalogEvent, bufferSize),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
		interval: interval,
		maxBatch: maxBatch,
		logger:   logger,
	}
	go w.run()
	return w
}

// Write enqueues an event. The event is dropped, with a warning, when the
// queue is full so that catalog requests never wait on the audit trail.
func (w *ClickHouseWriter) Write(event *CatalogEvent) {
	select {
	case w.events <- event:
	default:
		w.logger.Warn("audit queue full, dropping catalog event",
			zap.String("event_id", event.EventID),
			zap.String("operation", event.Operation),
		)
	}
}

// Close flushes queued events, waits for the flush goroutine and closes the
// connection. Call it once.
func (w *ClickHouseWriter) Close() {
	close(w.stop)
	<-w.stopped
	if err := w.conn.Close(); err != nil {
		w.logger.Warn("clickhouse close failed", zap.Error(err))
	}
}

func (w *ClickHouseWriter) run() {
	defer close(w.stopped)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	pending := make([]*CatalogEvent, 0, w.maxBatch)
	for {
		select {
		case e := <-w.events:
			pending = append(pending, e)
			if len(pending) >= w.maxBatch {
				w.send(pending)
				pending = pending[:0]
			}
		case <-ticker.C:
			if len(pending) > 0 {
				w.send(pending)
				pending = pending[:0]
			}
		case <-w.stop:
			// Whatever is already queued goes out with the last batch.
		drain:
			for {
				select {
				case e := <-w.events:
					pending = append(pending, e)
				default:
					break drain
				}
			}
			if len(pending) > 0 {
				w.send(pending)
			}
			return
		}
	}
}

func (w *ClickHouseWriter) send(events []*CatalogEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, insertCatalogEvents)
	if err != nil {
		w.logger.Error("clickhouse prepare batch failed",
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
		return
	}

	for _, e := range events {
		if err := batch.Append(
			e.EventID,
			e.RequestID,
			e.Timestamp,
			e.Operation,
			e.RecordCount,
			e.Sites,
			e.Outcome,
			e.ErrorKind,
			e.Error,
			e.LatencyMs,
			e.Source,
			e.Caller,
		); err != nil {
			w.logger.Error("clickhouse append event failed",
				zap.String("event_id", e.EventID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		w.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
	}
}

// LogWriter is the EventWriter used when ClickHouse is not configured.
// It logs each event as a structured entry.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs events to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *CatalogEvent) {
	w.logger.Info("catalog_event",
		zap.String("event_id", event.EventID),
		zap.String("request_id", event.RequestID),
		zap.String("operation", event.Operation),
		zap.Uint32("record_count", event.RecordCount),
		zap.Strings("sites", event.Sites),
		zap.String("outcome", event.Outcome),
		zap.String("error_kind", event.ErrorKind),
		zap.String("error", event.Error),
		zap.Float32("latency_ms", event.LatencyMs),
		zap.String("source", event.Source),
		zap.String("caller", event.Caller),
	)
}

func (w *LogWriter) Close() {}
