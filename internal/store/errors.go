package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite" // also registers the "sqlite" driver
	sqlite3 "modernc.org/sqlite/lib"
)

// Batch write stages reported by BatchWriteError.
const (
	StageBegin   = "begin"
	StagePrepare = "prepare"
	StageExecute = "execute"
	StageCommit  = "commit"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// ConnectionError means the store could not be opened, reached or authenticated.
type ConnectionError struct {
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryError means the read statement failed after a connection was established.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: query: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// BatchWriteError reports a failed BatchInsert. Index is the position of the
// offending record for StageExecute and -1 otherwise. Conflict is set when the
// store rejected a duplicate (site, resource) key.
type BatchWriteError struct {
	Stage    string
	Index    int
	Conflict bool
	Err      error
}

func newBatchWriteError(stage string, index int, err error) *BatchWriteError {
	return &BatchWriteError{
		Stage:    stage,
		Index:    index,
		Conflict: isUniqueViolation(err),
		Err:      err,
	}
}

func (e *BatchWriteError) Error() string {
	if e.Stage == StageExecute {
		return fmt.Sprintf("batch insert: %s record %d: %v", e.Stage, e.Index, e.Err)
	}
	return fmt.Sprintf("batch insert: %s: %v", e.Stage, e.Err)
}

func (e *BatchWriteError) Unwrap() error { return e.Err }

// ResourceCleanupError collects failures hit while releasing a cursor,
// statement, transaction or connection.
type ResourceCleanupError struct {
	Op   string
	Errs []error
}

func (e *ResourceCleanupError) Error() string {
	return fmt.Sprintf("%s: release resources: %v", e.Op, errors.Join(e.Errs...))
}

func (e *ResourceCleanupError) Unwrap() []error { return e.Errs }

// IsConflict reports whether err is a BatchWriteError caused by a duplicate
// (site, resource) key.
func IsConflict(err error) bool {
	var bw *BatchWriteError
	return errors.As(err, &bw) && bw.Conflict
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		// CHECK, NOT NULL and FOREIGN KEY share the constraint class; only key
		// collisions are conflicts.
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}
