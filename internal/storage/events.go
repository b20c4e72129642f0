package storage

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/triage-ai/catalog/internal/store"
)

// EventWriter is the interface for writing catalog audit events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *CatalogEvent)
	Close()
}

// Audited catalog operations.
const (
	OpListAll     = "list_all"
	OpBatchInsert = "batch_insert"
)

// Event outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// CatalogEvent records one catalog operation for the audit trail.
type CatalogEvent struct {
	EventID     string
	RequestID   string
	Timestamp   time.Time
	Operation   string
	RecordCount uint32
	Sites       []string // distinct sites touched by a write
	Outcome     string
	ErrorKind   string // connection, query, batch_write, conflict, cleanup, other
	Error       string
	LatencyMs   float32
	Source      string // "http" or "cli"
	Caller      string // API key prefix or remote address
}

// NewCatalogEvent builds an audit event for a finished operation.
func NewCatalogEvent(requestID, op, source string, records []store.SensitivityRecord, started time.Time, err error) *CatalogEvent {
	e := &CatalogEvent{
		EventID:     uuid.NewString(),
		RequestID:   requestID,
		Timestamp:   started.UTC(),
		Operation:   op,
		RecordCount: uint32(len(records)),
		Outcome:     OutcomeOK,
		LatencyMs:   float32(time.Since(started).Microseconds()) / 1000,
		Source:      source,
	}
	if op == OpBatchInsert {
		e.Sites = DistinctSites(records)
	}
	if err != nil {
		e.Outcome = OutcomeError
		e.ErrorKind = ErrorKind(err)
		e.Error = TruncateError(err.Error(), ErrorPreviewLength)
	}
	return e
}

// ErrorKind classifies a store error for the audit trail.
func ErrorKind(err error) string {
	var (
		connErr    *store.ConnectionError
		queryErr   *store.QueryError
		writeErr   *store.BatchWriteError
		cleanupErr *store.ResourceCleanupError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &connErr):
		return "connection"
	case errors.As(err, &queryErr):
		return "query"
	case store.IsConflict(err):
		return "conflict"
	case errors.As(err, &writeErr):
		return "batch_write"
	case errors.As(err, &cleanupErr):
		return "cleanup"
	default:
		return "other"
	}
}

// DistinctSites returns the sites of records in first-seen order.
func DistinctSites(records []store.SensitivityRecord) []string {
	seen := make(map[string]struct{}, len(records))
	sites := make([]string, 0)
	for _, r := range records {
		if _, ok := seen[r.Site]; ok {
			continue
		}
		seen[r.Site] = struct{}{}
		sites = append(sites, r.Site)
	}
	return sites
}

// ErrorPreviewLength is the max chars stored in the error column.
const ErrorPreviewLength = 500

// TruncateError returns the first N characters (runes) of an error message.
// It never splits a multi-byte UTF-8 character.
func TruncateError(msg string, maxLen int) string {
	runes := []rune(msg)
	if len(runes) <= maxLen {
		return msg
	}
	return string(runes[:maxLen])
}
