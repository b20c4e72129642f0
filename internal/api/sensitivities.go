package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/triage-ai/catalog/internal/storage"
	"github.com/triage-ai/catalog/internal/store"
	"go.uber.org/zap"
)

// maxBodyBytes bounds a batch insert request body.
const maxBodyBytes = 4 << 20

func (d *Dependencies) handleListSensitivities(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	records, err := d.Catalog.ListAll(r.Context())
	d.audit(r, storage.OpListAll, records, started, err)

	if err != nil && !cleanupOnly(err) {
		d.Logger.Error("failed to list sensitivities",
			zap.String("request_id", requestIDFromContext(r.Context())),
			zap.Error(err),
		)
		writeJSON(w, statusFor(err), ErrorResp{Detail: "Failed to list sensitivities"})
		return
	}

	writeJSON(w, http.StatusOK, RecordListResp{Records: records, Count: len(records)})
}

func (d *Dependencies) handleBatchInsert(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	_ = r.Body.Close()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Failed to read request body"})
		return
	}
	if err := validateBatchBody(body); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
		return
	}

	var req BatchInsertReq
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid request body"})
		return
	}

	started := time.Now()
	err = d.Catalog.BatchInsert(r.Context(), req.Records)
	d.audit(r, storage.OpBatchInsert, req.Records, started, err)

	if err != nil && !cleanupOnly(err) {
		d.Logger.Error("failed to insert sensitivities",
			zap.String("request_id", requestIDFromContext(r.Context())),
			zap.Int("records", len(req.Records)),
			zap.Error(err),
		)
		detail := "Failed to insert sensitivities"
		if store.IsConflict(err) {
			detail = "Batch contains a (site, resource) pair that already exists; nothing was inserted"
		}
		writeJSON(w, statusFor(err), ErrorResp{Detail: detail})
		return
	}

	writeJSON(w, http.StatusCreated, BatchInsertResp{Inserted: len(req.Records)})
}

func (d *Dependencies) audit(r *http.Request, op string, records []store.SensitivityRecord, started time.Time, err error) {
	if d.Writer == nil {
		return
	}
	event := storage.NewCatalogEvent(requestIDFromContext(r.Context()), op, "http", records, started, err)
	event.Caller = callerName(r)
	d.Writer.Write(event)
}

// cleanupOnly reports whether err is a release failure after the operation
// itself succeeded. Such results are still served.
func cleanupOnly(err error) bool {
	_, ok := err.(*store.ResourceCleanupError)
	return ok
}

// statusFor maps a store error onto an HTTP status.
func statusFor(err error) int {
	var connErr *store.ConnectionError
	switch {
	case errors.As(err, &connErr):
		return http.StatusServiceUnavailable
	case store.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
