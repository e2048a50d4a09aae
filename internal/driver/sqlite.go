package driver

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"dbgateway/internal/core"
)

type sqliteAdapter struct{}

func (a *sqliteAdapter) Kind() core.Kind { return core.KindSQLite }

func (a *sqliteAdapter) Connect(ctx context.Context, creds core.Credentials, timeout time.Duration) (core.Handle, error) {
	return connectSQL(ctx, sqliteDialect{}, creds, timeout)
}

func (a *sqliteAdapter) ExplainStatement(query string) (string, error) {
	return "EXPLAIN QUERY PLAN " + query, nil
}

type sqliteDialect struct{}

func (sqliteDialect) driverName() string { return "sqlite" }

// mode=ro makes the read-only guarantee a property of the file handle
// itself, on top of the query validator.
func (sqliteDialect) dsn(creds core.Credentials, _ time.Duration) string {
	return "file:" + creds.Path + "?mode=ro"
}

func (sqliteDialect) enforceReadOnly(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, "PRAGMA query_only = ON")
	return err
}

func (sqliteDialect) defaultSchema(core.Credentials) string { return "main" }

func (sqliteDialect) tablesQuery(string) (string, []any) {
	return `SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`, nil
}

func (sqliteDialect) columnsQuery(_, table string) (string, []any) {
	return `SELECT name, type,
			CASE "notnull" WHEN 1 THEN '0' ELSE '1' END,
			dflt_value,
			CASE pk WHEN 0 THEN '' ELSE 'PRI' END
		FROM pragma_table_info(?)`, []any{table}
}

func (sqliteDialect) relationshipsQuery(_, table string) (string, []any) {
	return `SELECT 'fk_' || CAST(id AS TEXT), "from", "table", "to"
		FROM pragma_foreign_key_list(?)`, []any{table}
}

func (sqliteDialect) rowEstimateQuery(_, table string) (string, []any) {
	// No cheap estimate without sqlite_stat1; skip rather than scan.
	return "", nil
}
