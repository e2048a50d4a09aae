package audit

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbgateway/internal/core"
)

func testAuditor(t *testing.T) *Auditor {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAuditor(NewMetrics(), tempStore(t), log)
}

func TestAuditorCountsDecisions(t *testing.T) {
	a := testAuditor(t)

	a.RecordVerdict("SELECT 1", core.Verdict{Decision: core.Allow, RiskScore: 10})
	a.RecordVerdict("SELECT * FROM t", core.Verdict{Decision: core.AllowWithLimit, RiskScore: 25})
	a.RecordVerdict("DELETE FROM t", core.Verdict{
		Decision: core.Reject, MatchedRule: "statement-not-permitted", RiskScore: 50,
	})

	report := a.SecurityReport()
	assert.Equal(t, int64(3), report["total_validations"])

	decisions := report["decisions"].(map[string]int64)
	assert.Equal(t, int64(1), decisions["ALLOW"])
	assert.Equal(t, int64(1), decisions["ALLOW_WITH_LIMIT"])
	assert.Equal(t, int64(1), decisions["REJECT"])

	assert.Contains(t, report, "last_rejection_at")
	assert.InDelta(t, (10.0+25.0+50.0)/3.0, report["average_risk_score"], 0.001)
}

func TestAuditorPersistsRejections(t *testing.T) {
	a := testAuditor(t)

	a.RecordVerdict("DROP TABLE users", core.Verdict{
		Decision: core.Reject, MatchedRule: "statement-not-permitted", RiskScore: 60,
	})
	a.RecordVerdict("SELECT 1", core.Verdict{Decision: core.Allow})

	entries, err := a.History("", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1, "only rejections are persisted at validation time")
	assert.Equal(t, "REJECT", entries[0].Decision)
}

func TestAuditorRecordsExecutions(t *testing.T) {
	a := testAuditor(t)
	verdict := core.Verdict{Decision: core.Allow}

	a.RecordExecution("conn-1", core.KindPostgres, "SELECT 1", verdict,
		&core.QueryResult{RowCount: 1, ElapsedMs: 3}, nil)
	a.RecordExecution("conn-1", core.KindPostgres, "SELECT * FROM missing", verdict,
		nil, errors.New("relation does not exist"))

	stats := a.ExecutionStats()
	assert.Equal(t, int64(2), stats["executions_total"])
	assert.Equal(t, int64(1), stats["execution_failures"])

	entries, err := a.History("conn-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "failed", entries[0].Status)
	assert.Equal(t, "executed", entries[1].Status)
}

func TestAuditorTruncatesLongQueries(t *testing.T) {
	a := testAuditor(t)

	long := "SELECT " + strings.Repeat("a", 500)
	a.RecordExecution("conn-1", core.KindMySQL, long, core.Verdict{Decision: core.Allow}, &core.QueryResult{}, nil)

	entries, err := a.History("conn-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.LessOrEqual(t, len(entries[0].Query), 203)
}
