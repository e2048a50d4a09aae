package driver

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/lib/pq"

	"dbgateway/internal/core"
)

type postgresAdapter struct{}

func (a *postgresAdapter) Kind() core.Kind { return core.KindPostgres }

func (a *postgresAdapter) Connect(ctx context.Context, creds core.Credentials, timeout time.Duration) (core.Handle, error) {
	return connectSQL(ctx, postgresDialect{}, creds, timeout)
}

func (a *postgresAdapter) ExplainStatement(query string) (string, error) {
	return "EXPLAIN (FORMAT TEXT) " + query, nil
}

type postgresDialect struct{}

func (postgresDialect) driverName() string { return "postgres" }

// default_transaction_read_only rides in the DSN so every physical
// connection the pool dials gets it, not just the first one.
func (postgresDialect) dsn(creds core.Credentials, timeout time.Duration) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=prefer&connect_timeout=%d&options=%s",
		url.QueryEscape(creds.Username), url.QueryEscape(creds.Secret),
		creds.Host, creds.Port, creds.Database, int(timeout/time.Second),
		url.QueryEscape("-c default_transaction_read_only=on"))
}

func (postgresDialect) enforceReadOnly(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, "SET SESSION CHARACTERISTICS AS TRANSACTION READ ONLY")
	return err
}

func (postgresDialect) defaultSchema(core.Credentials) string { return "public" }

func (postgresDialect) tablesQuery(schema string) (string, []any) {
	return `SELECT table_name FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name`, []any{schema}
}

func (postgresDialect) columnsQuery(schema, table string) (string, []any) {
	return `SELECT column_name, data_type, is_nullable, column_default, ''
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, []any{schema, table}
}

func (postgresDialect) relationshipsQuery(schema, table string) (string, []any) {
	return `SELECT tc.constraint_name, kcu.column_name,
			ccu.table_name AS ref_table, ccu.column_name AS ref_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = $1 AND tc.table_name = $2`, []any{schema, table}
}

func (postgresDialect) rowEstimateQuery(schema, table string) (string, []any) {
	return `SELECT reltuples::bigint FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relname = $2`, []any{schema, table}
}
