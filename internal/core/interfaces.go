package core

import (
	"context"
	"time"
)

// Adapter is the per-kind connection strategy. The registry and executor
// depend only on this capability set, never on a concrete kind.
type Adapter interface {
	Kind() Kind

	// Connect establishes a physical connection. Implementations must
	// enforce read-only session settings where the engine supports them
	// and must scrub credentials from any returned error.
	Connect(ctx context.Context, creds Credentials, timeout time.Duration) (Handle, error)

	// ExplainStatement wraps a query in the engine's EXPLAIN syntax, or
	// returns an error for kinds without execution plans.
	ExplainStatement(query string) (string, error)
}

// Handle is one live physical connection. Handles are not assumed safe
// for concurrent use; the executor serializes access per connection id.
type Handle interface {
	// Run executes validated query text, scanning at most limit rows when
	// limit > 0. More is set when at least one additional row existed.
	Run(ctx context.Context, query string, limit int) (*RawResult, error)

	// Introspect reads schema metadata for the requested scope.
	Introspect(ctx context.Context, scope IntrospectScope) (*SchemaMetadata, error)

	// Ping verifies the connection is still reachable.
	Ping(ctx context.Context) error

	Close() error
}

// RawResult is the driver-level result shape before the executor
// normalizes it into a QueryResult.
type RawResult struct {
	Columns []string
	Rows    []map[string]any
	More    bool
}

// IntrospectScope narrows an introspection request.
type IntrospectScope struct {
	// Schema restricts results to one schema (engine-dependent default
	// when empty, e.g. "public" for postgres).
	Schema string
	// Table restricts results to a single table or collection.
	Table string
	// Relationships requests foreign-key edges where supported.
	Relationships bool
	// Stats requests row-count estimates where cheaply available.
	Stats bool
}
