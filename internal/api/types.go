package api

import (
	"time"

	"github.com/triage-ai/catalog/internal/chread"
	"github.com/triage-ai/catalog/internal/store"
)

// --- Catalog ---

// BatchInsertReq is the body of POST /api/catalog/sensitivities.
type BatchInsertReq struct {
	Records []store.SensitivityRecord `json:"records"`
}

type BatchInsertResp struct {
	Inserted int `json:"inserted"`
}

type RecordListResp struct {
	Records []store.SensitivityRecord `json:"records"`
	Count   int                       `json:"count"`
}

// --- Audit ---

type AuditListResp struct {
	Events []chread.EventRow `json:"events"`
	Count  int               `json:"count"`
}

type AuditSummaryResp struct {
	Since      time.Time               `json:"since"`
	Operations []chread.OperationStats `json:"operations"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
