package gateway

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"dbgateway/internal/core"
)

// maxBatchSize bounds execute_batch_queries so a single call cannot tie up
// a connection indefinitely.
const maxBatchSize = 10

// ExecuteQuery validates and runs one query. Every validation decision is
// audited whether or not execution follows.
func (g *Gateway) ExecuteQuery(ctx context.Context, connectionID, query string, limit int) Envelope {
	verdict := g.validator.Validate(query)
	g.auditor.RecordVerdict(query, verdict)

	if !verdict.Allowed() {
		return fail(errors.New(verdict.Reason), map[string]any{
			"rule":       verdict.MatchedRule,
			"risk_score": verdict.RiskScore,
		})
	}

	rec, err := g.registry.Peek(connectionID)
	if err != nil {
		return fail(&core.ExecutionError{Category: core.ExecNotFound, Message: "unknown connection id"}, nil)
	}

	result, err := g.executor.Execute(ctx, connectionID, verdict, query, limit)
	g.auditor.RecordExecution(connectionID, rec.Kind, query, verdict, result, err)
	if err != nil {
		var execErr *core.ExecutionError
		if errors.As(err, &execErr) {
			return fail(err, map[string]any{"category": string(execErr.Category)})
		}
		return fail(err, nil)
	}

	return ok("query executed", result)
}

// ValidateQuery classifies a query without executing it. The verdict is
// audited so dry runs show up in the security report too.
func (g *Gateway) ValidateQuery(_ context.Context, query string) Envelope {
	verdict := g.validator.Validate(query)
	g.auditor.RecordVerdict(query, verdict)

	return ok("query validated", map[string]any{
		"decision":     string(verdict.Decision),
		"allowed":      verdict.Allowed(),
		"reason":       verdict.Reason,
		"matched_rule": verdict.MatchedRule,
		"risk_score":   verdict.RiskScore,
		"row_limit":    verdict.DefaultLimit,
	})
}

// ExplainQuery validates the query then runs it under the connection
// kind's EXPLAIN wrapper.
func (g *Gateway) ExplainQuery(ctx context.Context, connectionID, query string) Envelope {
	verdict := g.validator.Validate(query)
	g.auditor.RecordVerdict(query, verdict)

	if !verdict.Allowed() {
		return fail(errors.New(verdict.Reason), map[string]any{
			"rule":       verdict.MatchedRule,
			"risk_score": verdict.RiskScore,
		})
	}

	result, err := g.executor.Explain(ctx, connectionID, verdict, query)
	if err != nil {
		var execErr *core.ExecutionError
		if errors.As(err, &execErr) {
			return fail(err, map[string]any{"category": string(execErr.Category)})
		}
		return fail(err, nil)
	}
	return ok("execution plan", result)
}

// BatchOutcome is one query's result inside an execute_batch_queries call.
type BatchOutcome struct {
	Index   int               `json:"index"`
	Success bool              `json:"success"`
	Error   string            `json:"error,omitempty"`
	Rule    string            `json:"rule,omitempty"`
	Result  *core.QueryResult `json:"result,omitempty"`
}

// ExecuteBatchQueries runs up to maxBatchSize queries sequentially against
// one connection. A failure does not abort the batch; each query gets its
// own verdict and outcome.
func (g *Gateway) ExecuteBatchQueries(ctx context.Context, connectionID string, queries []string, limit int) Envelope {
	if len(queries) == 0 {
		return fail(errors.New("no queries supplied"), nil)
	}
	if len(queries) > maxBatchSize {
		return fail(errors.New("too many queries in batch"), map[string]any{"max": maxBatchSize})
	}

	rec, err := g.registry.Peek(connectionID)
	if err != nil {
		return fail(&core.ExecutionError{Category: core.ExecNotFound, Message: "unknown connection id"}, nil)
	}

	outcomes := make([]BatchOutcome, 0, len(queries))
	succeeded := 0
	for i, query := range queries {
		verdict := g.validator.Validate(query)
		g.auditor.RecordVerdict(query, verdict)

		if !verdict.Allowed() {
			outcomes = append(outcomes, BatchOutcome{Index: i, Error: verdict.Reason, Rule: verdict.MatchedRule})
			continue
		}

		result, execErr := g.executor.Execute(ctx, connectionID, verdict, query, limit)
		g.auditor.RecordExecution(connectionID, rec.Kind, query, verdict, result, execErr)
		if execErr != nil {
			outcomes = append(outcomes, BatchOutcome{Index: i, Error: execErr.Error()})
			continue
		}
		outcomes = append(outcomes, BatchOutcome{Index: i, Success: true, Result: result})
		succeeded++
	}

	return ok("batch executed", map[string]any{
		"outcomes":  outcomes,
		"total":     len(queries),
		"succeeded": succeeded,
		"failed":    len(queries) - succeeded,
	})
}

// GetQueryHistory returns audited queries, optionally scoped to one
// connection. Stored text is pre-truncated; secrets never reach the log.
func (g *Gateway) GetQueryHistory(_ context.Context, connectionID string, limit int) Envelope {
	entries, err := g.auditor.History(connectionID, limit)
	if err != nil {
		return fail(err, nil)
	}
	return ok("query history", map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

var (
	leadingWildcardRe = regexp.MustCompile(`(?i)\blike\s+'%`)
	orChainRe         = regexp.MustCompile(`(?i)\bor\b`)
	distinctRe        = regexp.MustCompile(`(?i)\bselect\s+distinct\b`)
	orderNoLimitRe    = regexp.MustCompile(`(?i)\border\s+by\b`)
)

// AnalyzeQueryPerformance applies static heuristics to an allowed query
// and suggests improvements. It never touches a database.
func (g *Gateway) AnalyzeQueryPerformance(_ context.Context, query string) Envelope {
	verdict := g.validator.Validate(query)
	if !verdict.Allowed() {
		return fail(errors.New(verdict.Reason), map[string]any{"rule": verdict.MatchedRule})
	}

	stripped, _ := strings.CutSuffix(strings.TrimSpace(query), ";")
	var findings []string

	if selectStarRe.MatchString(stripped) {
		findings = append(findings, "SELECT * fetches every column; name only the columns you need")
	}
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(stripped)), "SELECT") && !whereRe.MatchString(stripped) {
		findings = append(findings, "no WHERE clause; the statement scans the whole table")
	}
	if !limitRe.MatchString(stripped) {
		findings = append(findings, "no LIMIT clause; a default row limit will be applied at execution time")
	}
	if leadingWildcardRe.MatchString(stripped) {
		findings = append(findings, "LIKE with a leading wildcard cannot use an index")
	}
	if orderNoLimitRe.MatchString(stripped) && !limitRe.MatchString(stripped) {
		findings = append(findings, "ORDER BY without LIMIT sorts the full result set")
	}
	if n := len(orChainRe.FindAllString(stripped, -1)); n >= 3 {
		findings = append(findings, "long OR chains defeat index selection; consider IN (...)")
	}
	if distinctRe.MatchString(stripped) {
		findings = append(findings, "DISTINCT forces deduplication; check whether the join is producing duplicates instead")
	}
	if depth := strings.Count(stripped, "("); depth > 3 {
		findings = append(findings, "deeply nested subqueries; consider a join or a CTE")
	}

	rating := "good"
	switch {
	case len(findings) >= 4:
		rating = "poor"
	case len(findings) >= 2:
		rating = "fair"
	}

	return ok("performance analysis", map[string]any{
		"rating":     rating,
		"findings":   findings,
		"risk_score": verdict.RiskScore,
	})
}

var (
	selectStarRe = regexp.MustCompile(`(?i)\bselect\s+(?:\w+\s*\(\s*)?\*`)
	whereRe      = regexp.MustCompile(`(?i)\bwhere\b`)
	limitRe      = regexp.MustCompile(`(?i)\b(?:limit\s+\d+|fetch\s+first\s+\d+|top\s+\d+)\b`)
)
