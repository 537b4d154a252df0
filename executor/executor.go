// Package executor dispatches validated SQL to a data-source-specific
// backend and materializes bounded, typed results.
package executor

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aiser/queryengine/internal/metrics"
	"github.com/aiser/queryengine/types"
)

// Backend is the narrow interface a data-source kind must implement to be
// queryable. Implementations are unit-tested with sqlmock so this package
// never needs a live database to verify its row-materialization logic.
type Backend interface {
	Query(ctx context.Context, sqlText string) (*sql.Rows, error)
	Close() error
}

// ExecuteRequest bundles the inputs to a single query execution.
type ExecuteRequest struct {
	SQL          string
	DataSourceID string
	TimeoutSec   int
	MaxRows      int
	SampleForAI  bool
}

// ExecuteResult is the outcome of dispatching a query; OK distinguishes a
// clean failure (bad SQL, backend error) from a successful run.
type ExecuteResult struct {
	OK         bool
	Rows       []types.Row
	RowCount   int
	Schema     []string
	DurationMs int64
	Truncated  bool
	Error      string
}

var readOnlyPrefixes = []string{"SELECT", "WITH"}

// Registry resolves a DataSource to its Backend, returning
// ErrBackendNotRegistered for kinds this build doesn't ship a driver for.
type Registry struct {
	backends map[string]Backend
	logger   *zap.Logger
	metrics  *metrics.Collector
}

// NewRegistry creates an empty backend registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{backends: make(map[string]Backend), logger: logger}
}

// Register associates a data source ID with a concrete backend connection.
func (r *Registry) Register(dataSourceID string, b Backend) {
	r.backends[dataSourceID] = b
}

// SetMetrics attaches a collector that Execute reports query duration to.
// A nil registry receiver is a no-op so callers need not guard this.
func (r *Registry) SetMetrics(c *metrics.Collector) {
	if r == nil {
		return
	}
	r.metrics = c
}

// ErrBackendNotRegistered is returned when no backend is wired for a data source.
type ErrBackendNotRegistered struct{ DataSourceID string }

func (e *ErrBackendNotRegistered) Error() string {
	return "connection/backend_not_registered: " + e.DataSourceID
}

// Execute runs req.SQL against the backend registered for req.DataSourceID,
// enforcing a read-only guarantee, a timeout, and a row cap.
func Execute(ctx context.Context, reg *Registry, req ExecuteRequest) *ExecuteResult {
	start := time.Now()

	trimmed := strings.TrimSpace(req.SQL)
	upper := strings.ToUpper(trimmed)
	isReadOnly := false
	for _, p := range readOnlyPrefixes {
		if strings.HasPrefix(upper, p) {
			isReadOnly = true
			break
		}
	}
	if !isReadOnly {
		return &ExecuteResult{OK: false, Error: "sql_execution/not_read_only: only SELECT/WITH statements are executable"}
	}

	backend, ok := reg.backends[req.DataSourceID]
	if !ok {
		reg.recordQuery(req.DataSourceID, "not_registered", time.Since(start))
		return &ExecuteResult{OK: false, Error: (&ErrBackendNotRegistered{DataSourceID: req.DataSourceID}).Error()}
	}

	timeout := time.Duration(req.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := backend.Query(ctx, trimmed)
	if err != nil {
		reg.recordQuery(req.DataSourceID, "error", time.Since(start))
		return &ExecuteResult{OK: false, Error: "sql_execution: " + err.Error(), DurationMs: time.Since(start).Milliseconds()}
	}
	defer rows.Close()

	result, err := materialize(rows, req.MaxRows)
	if err != nil {
		reg.recordQuery(req.DataSourceID, "error", time.Since(start))
		return &ExecuteResult{OK: false, Error: "sql_execution: " + err.Error(), DurationMs: time.Since(start).Milliseconds()}
	}
	result.OK = true
	result.DurationMs = time.Since(start).Milliseconds()
	reg.recordQuery(req.DataSourceID, "success", time.Since(start))
	return result
}

func (r *Registry) recordQuery(dataSourceID, status string, duration time.Duration) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordSQLQuery(dataSourceID, status, duration)
}

func materialize(rows *sql.Rows, maxRows int) (*ExecuteResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := &ExecuteResult{Schema: cols}
	cap := maxRows
	if cap <= 0 {
		cap = 1000
	}

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if len(out.Rows) >= cap {
			out.Truncated = true
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(types.Row, len(cols))
		for i, c := range cols {
			row[c] = normalizeValue(values[i])
		}
		out.Rows = append(out.Rows, row)
	}
	out.RowCount = len(out.Rows)
	return out, rows.Err()
}

// normalizeValue unwraps database/sql's []byte scan convention into strings
// so downstream JSON serialization doesn't emit byte arrays.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
