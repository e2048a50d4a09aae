package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbgateway/internal/core"
)

func newValidator() *QueryValidator {
	return NewQueryValidator(Options{
		MaxQueryLength:         10000,
		DefaultRowLimit:        100,
		MaxRowLimit:            1000,
		AllowInformationSchema: true,
	})
}

func TestValidateAllowsPlainSelectWithLimit(t *testing.T) {
	v := newValidator()

	verdict := v.Validate("select name from customers")
	assert.Equal(t, core.AllowWithLimit, verdict.Decision)
	assert.Equal(t, 100, verdict.DefaultLimit)
	assert.True(t, verdict.Allowed())
}

func TestValidateAllowsExplicitLimit(t *testing.T) {
	v := newValidator()

	verdict := v.Validate("SELECT id FROM orders LIMIT 20")
	assert.Equal(t, core.Allow, verdict.Decision)
	assert.Zero(t, verdict.DefaultLimit)
}

func TestValidateAllowsReadOnlyStatementTypes(t *testing.T) {
	v := newValidator()

	for _, q := range []string{
		"SHOW TABLES",
		"DESCRIBE users",
		"DESC users",
		"EXPLAIN SELECT * FROM users LIMIT 1",
	} {
		verdict := v.Validate(q)
		assert.Equal(t, core.Allow, verdict.Decision, "query: %s", q)
	}
}

func TestValidateRejectsMutatingStatements(t *testing.T) {
	v := newValidator()

	for _, q := range []string{
		"DELETE FROM users",
		"INSERT INTO users VALUES (1)",
		"UPDATE users SET name = 'x'",
		"DROP TABLE users",
		"TRUNCATE TABLE users",
		"CREATE TABLE t (id int)",
		"GRANT ALL ON users TO PUBLIC",
		"  delete from users where true",
	} {
		verdict := v.Validate(q)
		require.Equal(t, core.Reject, verdict.Decision, "query: %s", q)
		assert.Equal(t, RuleStatementType, verdict.MatchedRule, "query: %s", q)
	}
}

func TestValidateRejectsStackedStatements(t *testing.T) {
	v := newValidator()

	verdict := v.Validate("SELECT * FROM users; DROP TABLE users")
	require.Equal(t, core.Reject, verdict.Decision)
	assert.Equal(t, RuleStacking, verdict.MatchedRule)

	// A single trailing semicolon is fine.
	verdict = v.Validate("SELECT id FROM users LIMIT 5;")
	assert.Equal(t, core.Allow, verdict.Decision)

	// Semicolon hidden in a string literal is not stacking.
	verdict = v.Validate("SELECT 'a;b' AS v FROM users LIMIT 5")
	assert.Equal(t, core.Allow, verdict.Decision)
}

func TestValidateRejectsDangerousKeywordInsideSelect(t *testing.T) {
	v := newValidator()

	verdict := v.Validate("SELECT * FROM users WHERE id IN (SELECT 1) AND EXISTS (SELECT * FROM t) OR 1=1 UNION SELECT 1; DELETE FROM t")
	assert.Equal(t, core.Reject, verdict.Decision)

	verdict = v.Validate("EXPLAIN DELETE FROM users")
	require.Equal(t, core.Reject, verdict.Decision)
	assert.Equal(t, "dangerous-keyword:DELETE", verdict.MatchedRule)
}

func TestValidateKeywordBoundaries(t *testing.T) {
	v := newValidator()

	// Column names containing keyword substrings must not false-positive.
	verdict := v.Validate("SELECT created_at, updated_at FROM audit_events LIMIT 10")
	assert.Equal(t, core.Allow, verdict.Decision)

	verdict = v.Validate("SELECT dropped_count FROM stats LIMIT 10")
	assert.Equal(t, core.Allow, verdict.Decision)
}

func TestValidateKeywordInStringLiteralAllowed(t *testing.T) {
	v := newValidator()

	verdict := v.Validate("SELECT * FROM logs WHERE message = 'DROP TABLE users' LIMIT 10")
	assert.Equal(t, core.Allow, verdict.Decision)
}

func TestValidateRejectsMidStatementComment(t *testing.T) {
	v := newValidator()

	verdict := v.Validate("SELECT * FROM users /* hidden */ WHERE id = 1")
	require.Equal(t, core.Reject, verdict.Decision)
	assert.Equal(t, RuleComment, verdict.MatchedRule)

	// Leading and trailing comments are tolerated.
	verdict = v.Validate("/* report */ SELECT id FROM users LIMIT 5")
	assert.Equal(t, core.Allow, verdict.Decision)
}

func TestValidateRejectsFileOperations(t *testing.T) {
	v := newValidator()

	for _, q := range []string{
		"SELECT * FROM users INTO OUTFILE '/tmp/x'",
		"SELECT LOAD_FILE('/etc/passwd')",
		"SELECT pg_read_file('/etc/passwd')",
	} {
		verdict := v.Validate(q)
		require.Equal(t, core.Reject, verdict.Decision, "query: %s", q)
		assert.Equal(t, RuleFileOp, verdict.MatchedRule, "query: %s", q)
	}
}

func TestValidateRejectsSelectInto(t *testing.T) {
	v := newValidator()

	for _, q := range []string{
		"SELECT * INTO stolen_copy FROM users",
		"select name, email into backup_users from users where 1=1",
		"EXPLAIN SELECT * INTO t2 FROM t1",
	} {
		verdict := v.Validate(q)
		require.Equal(t, core.Reject, verdict.Decision, "query: %s", q)
		assert.Equal(t, RuleSelectInto, verdict.MatchedRule, "query: %s", q)
	}

	// "into" inside an identifier is not the INTO keyword.
	verdict := v.Validate("SELECT into_count FROM conversion_stats LIMIT 10")
	assert.Equal(t, core.Allow, verdict.Decision)

	// ... and neither is a quoted literal.
	verdict = v.Validate("SELECT * FROM logs WHERE message = 'select x into y from z' LIMIT 5")
	assert.Equal(t, core.Allow, verdict.Decision)
}

func TestValidateRejectsDelayFunctions(t *testing.T) {
	v := newValidator()

	for _, q := range []string{
		"SELECT pg_sleep(10)",
		"SELECT SLEEP(10)",
		"SELECT BENCHMARK(100000000, MD5('x'))",
	} {
		verdict := v.Validate(q)
		require.Equal(t, core.Reject, verdict.Decision, "query: %s", q)
		assert.Equal(t, RuleDoS, verdict.MatchedRule, "query: %s", q)
	}
}

func TestValidateMetadataGate(t *testing.T) {
	open := newValidator()
	verdict := open.Validate("SELECT table_name FROM information_schema.tables LIMIT 10")
	assert.Equal(t, core.Allow, verdict.Decision)

	closed := NewQueryValidator(Options{AllowInformationSchema: false})
	verdict = closed.Validate("SELECT table_name FROM information_schema.tables LIMIT 10")
	require.Equal(t, core.Reject, verdict.Decision)
	assert.Equal(t, RuleMetadata, verdict.MatchedRule)
}

func TestValidateRejectsOversizedQuery(t *testing.T) {
	v := NewQueryValidator(Options{MaxQueryLength: 50})

	verdict := v.Validate("SELECT " + strings.Repeat("x", 60))
	require.Equal(t, core.Reject, verdict.Decision)
	assert.Equal(t, RuleLength, verdict.MatchedRule)
	assert.Equal(t, 100, verdict.RiskScore)
}

func TestValidateRejectsEmptyAndMalformed(t *testing.T) {
	v := newValidator()

	verdict := v.Validate("   ")
	require.Equal(t, core.Reject, verdict.Decision)
	assert.Equal(t, RuleEmpty, verdict.MatchedRule)

	verdict = v.Validate("SELECT '\xff\xfe' FROM t")
	require.Equal(t, core.Reject, verdict.Decision)
	assert.Equal(t, RuleEncoding, verdict.MatchedRule)
}

func TestValidateIsDeterministic(t *testing.T) {
	v := newValidator()
	q := "SELECT * FROM users WHERE email LIKE '%@example.com'"

	first := v.Validate(q)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, v.Validate(q))
	}
}

func TestValidateRejectionRiskFloor(t *testing.T) {
	v := newValidator()

	verdict := v.Validate("DELETE FROM t")
	require.Equal(t, core.Reject, verdict.Decision)
	assert.GreaterOrEqual(t, verdict.RiskScore, 50)
}

func TestRiskScoreSignals(t *testing.T) {
	v := newValidator()

	plain := v.Validate("SELECT id FROM users WHERE id = 1 LIMIT 1")
	risky := v.Validate("SELECT * FROM users")

	assert.Greater(t, risky.RiskScore, plain.RiskScore)
	assert.LessOrEqual(t, risky.RiskScore, 100)
}

func TestValidateUnionExfiltration(t *testing.T) {
	v := newValidator()

	verdict := v.Validate("SELECT name FROM t UNION SELECT password FROM users")
	require.Equal(t, core.Reject, verdict.Decision)
	assert.Equal(t, RuleUnionExfil, verdict.MatchedRule)
}
