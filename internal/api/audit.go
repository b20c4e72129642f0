package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/triage-ai/catalog/internal/chread"
	"go.uber.org/zap"
)

func (d *Dependencies) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	q := r.URL.Query()
	params := chread.ListEventsParams{
		Limit: queryInt(q, "limit", chread.DefaultLimit),
	}
	if v := q.Get("operation"); v != "" {
		params.Operation = &v
	}
	if v := q.Get("outcome"); v != "" {
		params.Outcome = &v
	}
	if v := q.Get("site"); v != "" {
		params.Site = &v
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "since must be an RFC 3339 timestamp"})
			return
		}
		params.Since = &t
	}

	events, err := d.Reader.ListEvents(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to list audit events", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list audit events"})
		return
	}

	writeJSON(w, http.StatusOK, AuditListResp{Events: events, Count: len(events)})
}

func (d *Dependencies) handleAuditSummary(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	hours := queryInt(r.URL.Query(), "hours", 24)
	if hours < 1 {
		hours = 1
	}
	if hours > 24*90 {
		hours = 24 * 90
	}
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	stats, err := d.Reader.Summary(r.Context(), since)
	if err != nil {
		d.Logger.Error("failed to summarize audit events", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to summarize audit events"})
		return
	}

	writeJSON(w, http.StatusOK, AuditSummaryResp{Since: since, Operations: stats})
}

func queryInt(q interface{ Get(string) string }, key string, defaultVal int) int {
	v := q.Get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}
