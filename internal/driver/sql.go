package driver

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dbgateway/internal/core"
)

// dialect captures the engine-specific pieces shared by all SQL kinds:
// DSN construction, read-only enforcement, and introspection queries.
type dialect interface {
	driverName() string
	dsn(creds core.Credentials, timeout time.Duration) string
	enforceReadOnly(ctx context.Context, db *sql.DB) error
	defaultSchema(creds core.Credentials) string
	tablesQuery(schema string) (string, []any)
	columnsQuery(schema, table string) (string, []any)
	relationshipsQuery(schema, table string) (string, []any)
	rowEstimateQuery(schema, table string) (string, []any)
}

// connectSQL opens and pings a database/sql connection for the given
// dialect. Errors are scrubbed of the secret before returning.
func connectSQL(ctx context.Context, d dialect, creds core.Credentials, timeout time.Duration) (*sqlHandle, error) {
	db, err := sql.Open(d.driverName(), d.dsn(creds, timeout))
	if err != nil {
		return nil, core.ScrubError(err, creds.Secret)
	}

	// One logical gateway connection maps to one physical connection;
	// pooling happens at the registry level, not inside database/sql.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, core.ScrubError(err, creds.Secret)
	}

	// The DSN already carries the read-only setting for every physical
	// connection; this session statement makes the first connection fail
	// fast if the engine refuses it.
	if err := d.enforceReadOnly(ctx, db); err != nil {
		db.Close()
		return nil, core.ScrubError(fmt.Errorf("enforcing read-only session: %w", err), creds.Secret)
	}

	return &sqlHandle{db: db, dialect: d, schema: d.defaultSchema(creds)}, nil
}

// sqlHandle is the shared Handle implementation for all database/sql
// backed kinds.
type sqlHandle struct {
	db      *sql.DB
	dialect dialect
	schema  string
}

func (h *sqlHandle) Run(ctx context.Context, query string, limit int) (*core.RawResult, error) {
	rows, err := h.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows, limit)
}

func (h *sqlHandle) Ping(ctx context.Context) error { return h.db.PingContext(ctx) }

func (h *sqlHandle) Close() error { return h.db.Close() }

func (h *sqlHandle) Introspect(ctx context.Context, scope core.IntrospectScope) (*core.SchemaMetadata, error) {
	schema := scope.Schema
	if schema == "" {
		schema = h.schema
	}
	meta := &core.SchemaMetadata{Schema: schema}

	var tableNames []string
	if scope.Table != "" {
		tableNames = []string{scope.Table}
	} else {
		q, args := h.dialect.tablesQuery(schema)
		rows, err := h.db.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return nil, err
			}
			tableNames = append(tableNames, name)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	for _, name := range tableNames {
		table := core.TableInfo{Name: name}

		cols, err := h.columns(ctx, schema, name)
		if err != nil {
			return nil, err
		}
		table.Columns = cols

		if scope.Relationships {
			rels, err := h.relationships(ctx, schema, name)
			if err != nil {
				return nil, err
			}
			table.Relationships = rels
		}

		if scope.Stats {
			if est, err := h.rowEstimate(ctx, schema, name); err == nil {
				table.RowEstimate = est
			}
		}

		meta.Tables = append(meta.Tables, table)
	}
	return meta, nil
}

func (h *sqlHandle) columns(ctx context.Context, schema, table string) ([]core.ColumnInfo, error) {
	q, args := h.dialect.columnsQuery(schema, table)
	rows, err := h.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []core.ColumnInfo
	for rows.Next() {
		var name, dataType, nullable string
		var def, key sql.NullString
		if err := rows.Scan(&name, &dataType, &nullable, &def, &key); err != nil {
			return nil, err
		}
		col := core.ColumnInfo{
			Name:     name,
			DataType: dataType,
			Nullable: nullable == "YES" || nullable == "1",
			Default:  def.String,
			Key:      key.String,
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

func (h *sqlHandle) relationships(ctx context.Context, schema, table string) ([]core.Relationship, error) {
	q, args := h.dialect.relationshipsQuery(schema, table)
	if q == "" {
		return nil, nil
	}
	rows, err := h.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rels []core.Relationship
	for rows.Next() {
		var r core.Relationship
		if err := rows.Scan(&r.Constraint, &r.Column, &r.RefTable, &r.RefColumn); err != nil {
			return nil, err
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

func (h *sqlHandle) rowEstimate(ctx context.Context, schema, table string) (int64, error) {
	q, args := h.dialect.rowEstimateQuery(schema, table)
	if q == "" {
		return 0, nil
	}
	var est sql.NullInt64
	if err := h.db.QueryRowContext(ctx, q, args...).Scan(&est); err != nil {
		return 0, err
	}
	return est.Int64, nil
}

// scanRows reads at most limit rows generically, probing for one more to
// report More. limit <= 0 means unbounded.
func scanRows(rows *sql.Rows, limit int) (*core.RawResult, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &core.RawResult{Columns: columns, Rows: []map[string]any{}}
	for rows.Next() {
		if limit > 0 && len(result.Rows) >= limit {
			result.More = true
			break
		}

		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
