package audit

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one audited event: a validator decision, optionally followed by
// an execution outcome. Query text is stored pre-truncated and secrets
// never reach this layer.
type Entry struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	ConnectionID string    `json:"connection_id,omitempty"`
	Kind         string    `json:"kind,omitempty"`
	Query        string    `json:"query"`
	Decision     string    `json:"decision"`
	MatchedRule  string    `json:"matched_rule,omitempty"`
	RiskScore    int       `json:"risk_score"`
	Status       string    `json:"status"` // validated | executed | failed
	ErrorMessage string    `json:"error,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	RowCount     int       `json:"row_count"`
}

// Store persists the audit trail in a local SQLite database so history
// survives restarts and the reporting tools have something to aggregate.
type Store struct {
	db *sql.DB
}

func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS query_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		connection_id TEXT,
		kind TEXT,
		query TEXT NOT NULL,
		decision TEXT NOT NULL,
		matched_rule TEXT,
		risk_score INTEGER,
		status TEXT NOT NULL,
		error_message TEXT,
		duration_ms INTEGER,
		row_count INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_query_log_connection ON query_log(connection_id, id);
	`
	_, err := db.Exec(schema)
	return err
}

func (s *Store) Insert(e Entry) error {
	_, err := s.db.Exec(`INSERT INTO query_log
		(timestamp, connection_id, kind, query, decision, matched_rule, risk_score, status, error_message, duration_ms, row_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Timestamp, e.ConnectionID, e.Kind, e.Query, e.Decision, e.MatchedRule,
		e.RiskScore, e.Status, e.ErrorMessage, e.DurationMs, e.RowCount)
	return err
}

// History returns the most recent entries, optionally filtered to one
// connection, newest first.
func (s *Store) History(connectionID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `SELECT id, timestamp, connection_id, kind, query, decision,
			matched_rule, risk_score, status, error_message, duration_ms, row_count
		FROM query_log`
	args := []any{}
	if connectionID != "" {
		query += ` WHERE connection_id = ?`
		args = append(args, connectionID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var connID, kind, rule, errMsg sql.NullString
		if err := rows.Scan(&e.ID, &e.Timestamp, &connID, &kind, &e.Query, &e.Decision,
			&rule, &e.RiskScore, &e.Status, &errMsg, &e.DurationMs, &e.RowCount); err != nil {
			return nil, err
		}
		e.ConnectionID = connID.String
		e.Kind = kind.String
		e.MatchedRule = rule.String
		e.ErrorMessage = errMsg.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RecentRejections returns the latest rejected queries for the security
// audit report.
func (s *Store) RecentRejections(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`SELECT id, timestamp, connection_id, kind, query, decision,
			matched_rule, risk_score, status, error_message, duration_ms, row_count
		FROM query_log WHERE decision = 'REJECT' ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var connID, kind, rule, errMsg sql.NullString
		if err := rows.Scan(&e.ID, &e.Timestamp, &connID, &kind, &e.Query, &e.Decision,
			&rule, &e.RiskScore, &e.Status, &errMsg, &e.DurationMs, &e.RowCount); err != nil {
			return nil, err
		}
		e.ConnectionID = connID.String
		e.Kind = kind.String
		e.MatchedRule = rule.String
		e.ErrorMessage = errMsg.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) Close() error { return s.db.Close() }
