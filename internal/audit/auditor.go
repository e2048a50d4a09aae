// Package audit aggregates validator decisions, execution outcomes and
// registry state into the gateway's health and security reports. It holds
// no decision logic of its own.
package audit

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"dbgateway/internal/core"
)

// Auditor fans each event out to the in-memory counters, the Prometheus
// collectors and the persistent history store.
type Auditor struct {
	mu            sync.Mutex
	decisions     map[core.Decision]int64
	ruleHits      map[string]int64
	executions    int64
	execFailures  int64
	riskSum       int64
	riskSamples   int64
	startedAt     time.Time
	lastRejection time.Time

	metrics *Metrics
	store   *Store
	log     *slog.Logger
}

func NewAuditor(metrics *Metrics, store *Store, log *slog.Logger) *Auditor {
	return &Auditor{
		decisions: make(map[core.Decision]int64),
		ruleHits:  make(map[string]int64),
		startedAt: time.Now(),
		metrics:   metrics,
		store:     store,
		log:       log,
	}
}

// Metrics exposes the Prometheus collectors for the HTTP transport.
func (a *Auditor) Metrics() *Metrics { return a.metrics }

// RecordVerdict audits one validator decision. The query text is
// truncated before it goes anywhere.
func (a *Auditor) RecordVerdict(query string, verdict core.Verdict) {
	a.mu.Lock()
	a.decisions[verdict.Decision]++
	if verdict.MatchedRule != "" {
		a.ruleHits[verdict.MatchedRule]++
	}
	a.riskSum += int64(verdict.RiskScore)
	a.riskSamples++
	if verdict.Decision == core.Reject {
		a.lastRejection = time.Now()
	}
	a.mu.Unlock()

	a.metrics.validationDecisions.WithLabelValues(string(verdict.Decision), verdict.MatchedRule).Inc()

	if verdict.Decision == core.Reject {
		a.log.Warn("query rejected",
			"rule", verdict.MatchedRule,
			"reason", verdict.Reason,
			"risk_score", verdict.RiskScore,
			"query", core.TruncateQuery(query, 120))
		if err := a.store.Insert(Entry{
			Timestamp:   time.Now(),
			Query:       core.TruncateQuery(query, 200),
			Decision:    string(verdict.Decision),
			MatchedRule: verdict.MatchedRule,
			RiskScore:   verdict.RiskScore,
			Status:      "validated",
		}); err != nil {
			a.log.Error("audit store insert failed", "error", err)
		}
	}
}

// RecordExecution audits one execution attempt after its verdict.
func (a *Auditor) RecordExecution(connectionID string, kind core.Kind, query string, verdict core.Verdict, result *core.QueryResult, execErr error) {
	status := "executed"
	errMsg := ""
	var durationMs int64
	rowCount := 0
	if execErr != nil {
		status = "failed"
		errMsg = execErr.Error()
	} else if result != nil {
		durationMs = result.ElapsedMs
		rowCount = result.RowCount
	}

	a.mu.Lock()
	a.executions++
	if execErr != nil {
		a.execFailures++
	}
	a.mu.Unlock()

	a.metrics.queriesTotal.WithLabelValues(string(kind), status).Inc()
	if execErr == nil && result != nil {
		a.metrics.queryDuration.Observe(float64(result.ElapsedMs) / 1000)
	}

	if err := a.store.Insert(Entry{
		Timestamp:    time.Now(),
		ConnectionID: connectionID,
		Kind:         string(kind),
		Query:        core.TruncateQuery(query, 200),
		Decision:     string(verdict.Decision),
		MatchedRule:  verdict.MatchedRule,
		RiskScore:    verdict.RiskScore,
		Status:       status,
		ErrorMessage: errMsg,
		DurationMs:   durationMs,
		RowCount:     rowCount,
	}); err != nil {
		a.log.Error("audit store insert failed", "error", err)
	}
}

// History proxies the persistent store for the query-history tool.
func (a *Auditor) History(connectionID string, limit int) ([]Entry, error) {
	return a.store.History(connectionID, limit)
}

// SecurityReport aggregates validator activity for the audit tool.
func (a *Auditor) SecurityReport() map[string]any {
	a.mu.Lock()
	decisions := make(map[string]int64, len(a.decisions))
	var total int64
	for d, n := range a.decisions {
		decisions[string(d)] = n
		total += n
	}
	type ruleCount struct {
		Rule  string `json:"rule"`
		Count int64  `json:"count"`
	}
	rules := make([]ruleCount, 0, len(a.ruleHits))
	for r, n := range a.ruleHits {
		rules = append(rules, ruleCount{r, n})
	}
	avgRisk := float64(0)
	if a.riskSamples > 0 {
		avgRisk = float64(a.riskSum) / float64(a.riskSamples)
	}
	lastRejection := a.lastRejection
	a.mu.Unlock()

	sort.Slice(rules, func(i, j int) bool { return rules[i].Count > rules[j].Count })
	if len(rules) > 10 {
		rules = rules[:10]
	}

	report := map[string]any{
		"total_validations":  total,
		"decisions":          decisions,
		"top_matched_rules":  rules,
		"average_risk_score": avgRisk,
		"uptime_seconds":     int64(time.Since(a.startedAt).Seconds()),
	}
	if !lastRejection.IsZero() {
		report["last_rejection_at"] = lastRejection
	}

	if recent, err := a.store.RecentRejections(10); err == nil {
		report["recent_rejections"] = recent
	}
	return report
}

// ExecutionStats feeds the connection-metrics and status tools.
func (a *Auditor) ExecutionStats() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return map[string]any{
		"executions_total":   a.executions,
		"execution_failures": a.execFailures,
	}
}
