package api

import (
	"context"
	"net/http"
	"time"

	"github.com/triage-ai/catalog/internal/auth"
	"github.com/triage-ai/catalog/internal/chread"
	"github.com/triage-ai/catalog/internal/storage"
	"github.com/triage-ai/catalog/internal/store"
	"go.uber.org/zap"
)

// Catalog is the part of store.SensitivityCatalogStore the handlers use.
type Catalog interface {
	ListAll(ctx context.Context) ([]store.SensitivityRecord, error)
	BatchInsert(ctx context.Context, records []store.SensitivityRecord) error
}

// AuditReader queries the audit trail. *chread.Reader implements it.
type AuditReader interface {
	ListEvents(ctx context.Context, params chread.ListEventsParams) ([]chread.EventRow, error)
	Summary(ctx context.Context, since time.Time) ([]chread.OperationStats, error)
}

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Catalog Catalog
	Auth    auth.Authenticator
	Writer  storage.EventWriter
	Reader  AuditReader // nil if ClickHouse unavailable
	Logger  *zap.Logger
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Catalog (writes require a Bearer csk_ key)
	mux.HandleFunc("GET /api/catalog/sensitivities", deps.handleListSensitivities)
	mux.HandleFunc("POST /api/catalog/sensitivities", deps.writeAuth(deps.handleBatchInsert))

	// Audit trail (ClickHouse only)
	mux.HandleFunc("GET /api/catalog/audit", deps.handleListAudit)
	mux.HandleFunc("GET /api/catalog/audit/summary", deps.handleAuditSummary)

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestID(requestLogging(mux, deps.Logger)))
}
