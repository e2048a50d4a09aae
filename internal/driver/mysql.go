package driver

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"dbgateway/internal/core"
)

type mysqlAdapter struct{}

func (a *mysqlAdapter) Kind() core.Kind { return core.KindMySQL }

func (a *mysqlAdapter) Connect(ctx context.Context, creds core.Credentials, timeout time.Duration) (core.Handle, error) {
	return connectSQL(ctx, mysqlDialect{}, creds, timeout)
}

func (a *mysqlAdapter) ExplainStatement(query string) (string, error) {
	return "EXPLAIN FORMAT=JSON " + query, nil
}

type mysqlDialect struct{}

func (mysqlDialect) driverName() string { return "mysql" }

// transaction_read_only is passed as a DSN system variable, which the
// driver sets on every new physical connection during the handshake.
func (mysqlDialect) dsn(creds core.Credentials, timeout time.Duration) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?timeout=%ds&parseTime=true&transaction_read_only=1",
		creds.Username, creds.Secret, creds.Host, creds.Port, creds.Database,
		int(timeout/time.Second))
}

func (mysqlDialect) enforceReadOnly(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, "SET SESSION TRANSACTION READ ONLY")
	return err
}

func (d mysqlDialect) defaultSchema(creds core.Credentials) string { return creds.Database }

func (mysqlDialect) tablesQuery(schema string) (string, []any) {
	return `SELECT table_name FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE'
		ORDER BY table_name`, []any{schema}
}

func (mysqlDialect) columnsQuery(schema, table string) (string, []any) {
	return `SELECT column_name, data_type, is_nullable, column_default, column_key
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`, []any{schema, table}
}

func (mysqlDialect) relationshipsQuery(schema, table string) (string, []any) {
	return `SELECT constraint_name, column_name, referenced_table_name, referenced_column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = ? AND table_name = ? AND referenced_table_name IS NOT NULL`,
		[]any{schema, table}
}

func (mysqlDialect) rowEstimateQuery(schema, table string) (string, []any) {
	return `SELECT table_rows FROM information_schema.tables
		WHERE table_schema = ? AND table_name = ?`, []any{schema, table}
}
