package core

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies a supported database engine. The set is closed on
// purpose: every kind added here must go through the same security review
// as the validator rules that protect it.
type Kind string

const (
	KindPostgres Kind = "postgres"
	KindMySQL    Kind = "mysql"
	KindSQLite   Kind = "sqlite"
	KindDocument Kind = "document"
)

// ParseKind normalizes a caller-supplied kind string, accepting the
// aliases the original tool surface used (postgresql, mongodb, mongo).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg":
		return KindPostgres, nil
	case "mysql":
		return KindMySQL, nil
	case "sqlite", "sqlite3":
		return KindSQLite, nil
	case "document", "mongodb", "mongo":
		return KindDocument, nil
	default:
		return "", &ConnectionError{Category: ConnUnsupportedKind, Message: fmt.Sprintf("unsupported database kind: %s", s)}
	}
}

// DefaultPort returns the conventional port for network kinds, 0 for
// file-based ones.
func (k Kind) DefaultPort() int {
	switch k {
	case KindPostgres:
		return 5432
	case KindMySQL:
		return 3306
	case KindDocument:
		return 27017
	default:
		return 0
	}
}

// FileBased reports whether the kind connects to a local file instead of
// a network endpoint.
func (k Kind) FileBased() bool { return k == KindSQLite }

// Credentials is the transient value object used to establish a
// connection. It is validated once, handed to the driver adapter, and
// never persisted or logged.
type Credentials struct {
	Kind     Kind
	Host     string
	Port     int
	Username string
	Secret   string
	Database string
	// Path is the database file path for file-based kinds.
	Path string
}

// Redacted returns a copy safe for logging and error messages.
func (c Credentials) Redacted() Credentials {
	c.Secret = "[redacted]"
	return c
}

// ConnStatus is the lifecycle state of a registry record. A closed record
// never transitions back to active; reconnecting always issues a new id.
type ConnStatus string

const (
	StatusActive ConnStatus = "active"
	StatusIdle   ConnStatus = "idle"
	StatusClosed ConnStatus = "closed"
	StatusFailed ConnStatus = "failed"
)

// ConnectionRecord is the registry's view of one logical connection. The
// physical driver handle is owned by the registry and never leaves it.
type ConnectionRecord struct {
	ID         string     `json:"id"`
	Kind       Kind       `json:"kind"`
	Host       string     `json:"host"`
	Port       int        `json:"port"`
	Database   string     `json:"database"`
	Status     ConnStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt time.Time  `json:"last_used_at"`
	QueryCount int64      `json:"query_count"`
}

// Decision is the validator's classification of a query string.
type Decision string

const (
	Allow          Decision = "ALLOW"
	AllowWithLimit Decision = "ALLOW_WITH_LIMIT"
	Reject         Decision = "REJECT"
)

// Verdict is produced fresh for every query text. RiskScore aggregates
// soft signals for audit reporting only and never overrides Decision.
type Verdict struct {
	Decision     Decision `json:"decision"`
	Reason       string   `json:"reason"`
	MatchedRule  string   `json:"matched_rule,omitempty"`
	RiskScore    int      `json:"risk_score"`
	DefaultLimit int      `json:"default_limit,omitempty"`
}

// Allowed reports whether the verdict permits execution.
func (v Verdict) Allowed() bool { return v.Decision != Reject }

// QueryResult is the uniform result shape across tabular and document
// stores. Truncated is true when the row count hit the applied limit and
// at least one more row existed.
type QueryResult struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated"`
	ElapsedMs int64            `json:"elapsed_ms"`
}

// SchemaMetadata is the normalized introspection result.
type SchemaMetadata struct {
	Kind   Kind        `json:"kind"`
	Schema string      `json:"schema,omitempty"`
	Tables []TableInfo `json:"tables"`
}

// TableInfo describes one table or collection.
type TableInfo struct {
	Name          string         `json:"name"`
	Columns       []ColumnInfo   `json:"columns,omitempty"`
	RowEstimate   int64          `json:"row_estimate,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty"`
}

// ColumnInfo describes one column.
type ColumnInfo struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
	Default  string `json:"default,omitempty"`
	Key      string `json:"key,omitempty"`
}

// Relationship is a foreign-key edge discovered during introspection.
type Relationship struct {
	Constraint string `json:"constraint"`
	Column     string `json:"column"`
	RefTable   string `json:"ref_table"`
	RefColumn  string `json:"ref_column"`
}

// TruncateQuery shortens query text for logs and audit records so that
// oversized or hostile input never bloats the audit trail.
func TruncateQuery(q string, max int) string {
	q = strings.TrimSpace(q)
	if max <= 0 {
		max = 200
	}
	if len(q) <= max {
		return q
	}
	return q[:max] + "..."
}
