package gateway

import (
	"context"
	"time"

	"dbgateway/internal/core"
)

// GetDatabaseStatus summarizes the gateway: supported kinds, connection
// occupancy and execution totals.
func (g *Gateway) GetDatabaseStatus(_ context.Context) Envelope {
	stats := g.auditor.ExecutionStats()
	return ok("gateway status", map[string]any{
		"version":            Version,
		"uptime_seconds":     int64(time.Since(g.startedAt).Seconds()),
		"supported_kinds":    []core.Kind{core.KindPostgres, core.KindMySQL, core.KindSQLite, core.KindDocument},
		"active_connections": g.registry.LiveCount(),
		"max_connections":    g.cfg.MaxConnections,
		"executions":         stats,
	})
}

// GetConnectionMetrics returns per-connection usage counters plus the
// aggregate execution stats.
func (g *Gateway) GetConnectionMetrics(_ context.Context) Envelope {
	records := g.registry.List()
	perConn := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		perConn = append(perConn, map[string]any{
			"connection_id": rec.ID,
			"kind":          rec.Kind,
			"status":        rec.Status,
			"query_count":   rec.QueryCount,
			"created_at":    rec.CreatedAt,
			"last_used_at":  rec.LastUsedAt,
		})
	}
	return ok("connection metrics", map[string]any{
		"connections": perConn,
		"live":        len(records),
		"max":         g.cfg.MaxConnections,
		"executions":  g.auditor.ExecutionStats(),
	})
}

// CleanupIdleConnections forces an idle sweep immediately instead of
// waiting for the background ticker.
func (g *Gateway) CleanupIdleConnections(_ context.Context) Envelope {
	closed := g.registry.Sweep(g.cfg.IdleTimeout)
	if closed > 0 {
		g.auditor.Metrics().SweepClosed(closed)
	}
	return ok("idle cleanup complete", map[string]any{
		"closed":    closed,
		"remaining": g.registry.LiveCount(),
	})
}

// GetSecurityAudit reports validator activity: decision counts, most-hit
// rules, average risk and recent rejections.
func (g *Gateway) GetSecurityAudit(_ context.Context) Envelope {
	return ok("security audit", g.auditor.SecurityReport())
}

// ExportConfiguration returns the effective limits. Credentials are not
// part of configuration and can never appear here.
func (g *Gateway) ExportConfiguration(_ context.Context) Envelope {
	return ok("configuration", g.cfg.Redacted())
}

// HealthCheck is the cheap liveness probe used by both transports.
func (g *Gateway) HealthCheck(_ context.Context) Envelope {
	return ok("healthy", map[string]any{
		"version":            Version,
		"uptime_seconds":     int64(time.Since(g.startedAt).Seconds()),
		"active_connections": g.registry.LiveCount(),
	})
}
