// Package executor runs validated queries against registered connections,
// applying row-limit and timeout policy and normalizing driver results
// into the uniform QueryResult shape.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dbgateway/internal/core"
	"dbgateway/internal/registry"
)

type Executor struct {
	registry     *registry.Registry
	queryTimeout time.Duration
	hardCap      int
	log          *slog.Logger
	logQueries   bool
}

func New(reg *registry.Registry, queryTimeout time.Duration, hardCap int, logQueries bool, log *slog.Logger) *Executor {
	return &Executor{
		registry:     reg,
		queryTimeout: queryTimeout,
		hardCap:      hardCap,
		log:          log,
		logQueries:   logQueries,
	}
}

// Execute runs query text that already carries an allowing verdict. The
// verdict is re-checked here: the executor refuses to run anything the
// validator did not clear, even if called out of order.
func (e *Executor) Execute(ctx context.Context, connectionID string, verdict core.Verdict, query string, requestedLimit int) (*core.QueryResult, error) {
	if !verdict.Allowed() {
		return nil, &core.ExecutionError{Category: core.ExecDriverError,
			Message: "refusing to execute a query without an allowing verdict"}
	}

	limit := e.effectiveLimit(verdict, requestedLimit)
	start := time.Now()

	var raw *core.RawResult
	err := e.registry.Use(connectionID, func(h core.Handle) error {
		runCtx, cancel := context.WithTimeout(ctx, e.queryTimeout)
		defer cancel()

		var runErr error
		raw, runErr = h.Run(runCtx, query, limit)
		if runErr != nil && runCtx.Err() != nil {
			// Cancellation reached the driver (or the result is being
			// discarded either way); report timeout, not the driver text.
			return &core.ExecutionError{Category: core.ExecTimeout,
				Message: "query exceeded the configured timeout"}
		}
		return runErr
	})
	elapsed := time.Since(start)

	if e.logQueries {
		e.log.Info("query executed",
			"connection_id", connectionID,
			"query", core.TruncateQuery(query, 200),
			"elapsed_ms", elapsed.Milliseconds(),
			"error", err != nil)
	}

	if err != nil {
		return nil, e.wrap(err)
	}

	return &core.QueryResult{
		Columns:   raw.Columns,
		Rows:      raw.Rows,
		RowCount:  len(raw.Rows),
		Truncated: raw.More && limit > 0 && len(raw.Rows) == limit,
		ElapsedMs: elapsed.Milliseconds(),
	}, nil
}

// Explain wraps the query in the connection kind's EXPLAIN syntax and
// executes it. The verdict must cover the original query text.
func (e *Executor) Explain(ctx context.Context, connectionID string, verdict core.Verdict, query string) (*core.QueryResult, error) {
	rec, err := e.registry.Peek(connectionID)
	if err != nil {
		return nil, e.wrap(err)
	}
	adapter, ok := e.registry.Adapter(rec.Kind)
	if !ok {
		return nil, &core.ExecutionError{Category: core.ExecDriverError,
			Message: "no adapter for kind " + string(rec.Kind)}
	}
	stmt, err := adapter.ExplainStatement(query)
	if err != nil {
		return nil, &core.ExecutionError{Category: core.ExecDriverError, Err: err}
	}
	// Plans are small; plain ALLOW with the hard cap as a backstop.
	return e.Execute(ctx, connectionID, verdict, stmt, e.hardCap)
}

// Introspect reads schema metadata through the connection's handle under
// the same per-connection serialization as queries.
func (e *Executor) Introspect(ctx context.Context, connectionID string, scope core.IntrospectScope) (*core.SchemaMetadata, error) {
	var meta *core.SchemaMetadata
	err := e.registry.Use(connectionID, func(h core.Handle) error {
		runCtx, cancel := context.WithTimeout(ctx, e.queryTimeout)
		defer cancel()

		var ierr error
		meta, ierr = h.Introspect(runCtx, scope)
		return ierr
	})
	if err != nil {
		return nil, e.wrap(err)
	}

	rec, err := e.registry.Peek(connectionID)
	if err == nil {
		meta.Kind = rec.Kind
	}
	return meta, nil
}

// effectiveLimit resolves the row limit: the caller's request narrows the
// verdict's default, and the hard cap bounds everything. Plain ALLOW
// verdicts (SHOW/DESCRIBE/EXPLAIN or explicit LIMIT clauses) still run
// under the hard cap.
func (e *Executor) effectiveLimit(verdict core.Verdict, requested int) int {
	limit := verdict.DefaultLimit
	if requested > 0 {
		limit = requested
	}
	if limit <= 0 || limit > e.hardCap {
		limit = e.hardCap
	}
	return limit
}

func (e *Executor) wrap(err error) error {
	if errors.Is(err, core.ErrNotFound) {
		return &core.ExecutionError{Category: core.ExecNotFound, Message: "unknown connection id"}
	}
	var execErr *core.ExecutionError
	if errors.As(err, &execErr) {
		return execErr
	}
	return &core.ExecutionError{Category: core.ExecDriverError, Err: err}
}
