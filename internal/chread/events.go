package chread

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/triage-ai/catalog/internal/storage"
	"go.uber.org/zap"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Reader provides read access to the ClickHouse catalog_events table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(dsn string, logger *zap.Logger) (*Reader, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := storage.OpenClickHouse(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	return &Reader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// EventRow is a single row of catalog_events.
type EventRow struct {
	EventID     string    `json:"event_id"`
	RequestID   string    `json:"request_id"`
	Timestamp   time.Time `json:"timestamp"`
	Operation   string    `json:"operation"`
	RecordCount uint32    `json:"record_count"`
	Sites       []string  `json:"sites"`
	Outcome     string    `json:"outcome"`
	ErrorKind   string    `json:"error_kind"`
	Error       string    `json:"error"`
	LatencyMs   float32   `json:"latency_ms"`
	Source      string    `json:"source"`
	Caller      string    `json:"caller"`
}

// ListEventsParams holds filters for event listing. Nil filters are ignored.
type ListEventsParams struct {
	Operation *string
	Outcome   *string
	Site      *string
	Since     *time.Time
	Limit     int
}

// ClampLimit maps a requested page size onto [1, MaxLimit], with
// DefaultLimit for non-positive values.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

func listEventsQuery(params ListEventsParams) (string, []any) {
	var conditions []string
	var args []any

	if params.Operation != nil {
		conditions = append(conditions, "operation = @operation")
		args = append(args, clickhouse.Named("operation", *params.Operation))
	}
	if params.Outcome != nil {
		conditions = append(conditions, "outcome = @outcome")
		args = append(args, clickhouse.Named("outcome", *params.Outcome))
	}
	if params.Site != nil {
		conditions = append(conditions, "has(sites, @site)")
		args = append(args, clickhouse.Named("site", *params.Site))
	}
	if params.Since != nil {
		conditions = append(conditions, "timestamp >= @since")
		args = append(args, clickhouse.Named("since", *params.Since))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ") + " "
	}

	query := "SELECT event_id, request_id, timestamp, operation, record_count, sites, " +
		"outcome, error_kind, error, latency_ms, source, caller " +
		"FROM catalog_events " + where +
		"ORDER BY timestamp DESC " +
		"LIMIT @limit"
	args = append(args, clickhouse.Named("limit", uint32(ClampLimit(params.Limit))))
	return query, args
}

// ListEvents returns the most recent events matching params, newest first.
func (r *Reader) ListEvents(ctx context.Context, params ListEventsParams) ([]EventRow, error) {
	query, args := listEventsQuery(params)

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListEvents query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := []EventRow{}
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.EventID, &e.RequestID, &e.Timestamp, &e.Operation, &e.RecordCount, &e.Sites,
			&e.Outcome, &e.ErrorKind, &e.Error, &e.LatencyMs, &e.Source, &e.Caller,
		); err != nil {
			return nil, fmt.Errorf("ListEvents scan: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListEvents rows: %w", err)
	}
	return events, nil
}

// OperationStats aggregates one operation over a time window.
type OperationStats struct {
	Operation    string  `json:"operation"`
	Total        int     `json:"total"`
	Errors       int     `json:"errors"`
	Conflicts    int     `json:"conflicts"`
	RecordsTotal int     `json:"records_total"`
	LatencyP95   float64 `json:"latency_p95_ms"`
}

// Summary returns per-operation counts since the given time.
func (r *Reader) Summary(ctx context.Context, since time.Time) ([]OperationStats, error) {
	rows, err := r.conn.Query(ctx,
		"SELECT operation, count() AS total, "+
			"countIf(outcome = 'error') AS errors, "+
			"countIf(error_kind = 'conflict') AS conflicts, "+
			"sum(record_count) AS records_total, "+
			"quantile(0.95)(latency_ms) AS p95 "+
			"FROM catalog_events WHERE timestamp >= @since "+
			"GROUP BY operation ORDER BY operation",
		clickhouse.Named("since", since),
	)
	if err != nil {
		return nil, fmt.Errorf("Summary query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := []OperationStats{}
	for rows.Next() {
		var (
			op                     string
			total, errs, conflicts uint64
			records                uint64
			p95                    float64
		)
		if err := rows.Scan(&op, &total, &errs, &conflicts, &records, &p95); err != nil {
			return nil, fmt.Errorf("Summary scan: %w", err)
		}
		stats = append(stats, OperationStats{
			Operation:    op,
			Total:        int(total),
			Errors:       int(errs),
			Conflicts:    int(conflicts),
			RecordsTotal: int(records),
			LatencyP95:   safeFloat(p95),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Summary rows: %w", err)
	}
	return stats, nil
}

// safeFloat replaces NaN/Inf with 0.0.
// ClickHouse returns NaN for quantile() on empty result sets.
func safeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0.0
	}
	return f
}
