package store

import (
	"context"
	"database/sql"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SensitivityRecord classifies one resource of a site. (Site, Resource) is the
// table's composite key; the store does not deduplicate records itself.
type SensitivityRecord struct {
	Site            string `json:"site" yaml:"site"`
	Resource        string `json:"resource" yaml:"resource"`
	SensitivityType string `json:"sensitivity_type" yaml:"sensitivity_type"`
}

// ListAll returns every row of the sensitivity table in the order the database
// yields them. An empty catalog gives an empty, non-nil slice. On failure the
// slice is empty and the error is a *ConnectionError or *QueryError.
func (s *SensitivityCatalogStore) ListAll(ctx context.Context) (records []SensitivityRecord, err error) {
	ctx, span := s.start(ctx, "SensitivityCatalogStore.ListAll")
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rel := &releaser{op: opListAll}
	defer func() { err = s.finish(span, opListAll, err, rel) }()

	db, conn, err := s.connect(ctx, rel)
	if err != nil {
		return []SensitivityRecord{}, err
	}
	defer rel.release("database handle", db.Close)
	defer rel.release("connection", conn.Close)

	rows, err := conn.QueryContext(ctx, s.querySQL)
	if err != nil {
		return []SensitivityRecord{}, &QueryError{Op: opListAll, Err: err}
	}
	defer rel.release("cursor", rows.Close)

	out := []SensitivityRecord{}
	for rows.Next() {
		var r SensitivityRecord
		if err := rows.Scan(&r.Site, &r.Resource, &r.SensitivityType); err != nil {
			return []SensitivityRecord{}, &QueryError{Op: opListAll, Err: err}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return []SensitivityRecord{}, &QueryError{Op: opListAll, Err: err}
	}

	span.SetAttributes(attribute.Int("catalog.records", len(out)))
	return out, nil
}

// BatchInsert appends records in a single transaction: either all of them are
// committed or none. Records are forwarded exactly as given. A duplicate
// (site, resource) key fails the whole batch with a conflicting
// *BatchWriteError. An empty batch is a no-op and opens no connection.
func (s *SensitivityCatalogStore) BatchInsert(ctx context.Context, records []SensitivityRecord) (err error) {
	if len(records) == 0 {
		return nil
	}

	ctx, span := s.start(ctx, "SensitivityCatalogStore.BatchInsert",
		attribute.Int("catalog.records", len(records)),
	)
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rel := &releaser{op: opBatchInsert}
	defer func() { err = s.finish(span, opBatchInsert, err, rel) }()

	db, conn, err := s.connect(ctx, rel)
	if err != nil {
		return err
	}
	defer rel.release("database handle", db.Close)
	defer rel.release("connection", conn.Close)

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return newBatchWriteError(StageBegin, -1, err)
	}
	// Rolls back anything not committed; a no-op after Commit.
	defer rel.release("transaction", func() error {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			return err
		}
		return nil
	})

	stmt, err := tx.PrepareContext(ctx, s.insertSQL)
	if err != nil {
		return newBatchWriteError(StagePrepare, -1, err)
	}
	defer rel.release("statement", stmt.Close)

	for i, r := range records {
		if _, err := stmt.ExecContext(ctx, r.Site, r.Resource, r.SensitivityType); err != nil {
			return newBatchWriteError(StageExecute, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return newBatchWriteError(StageCommit, -1, err)
	}

	s.logger.Debug("sensitivity records committed",
		zap.String("target", s.target),
		zap.Int("count", len(records)),
	)
	return nil
}
