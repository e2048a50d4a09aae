// Package api is the optional HTTP transport: the same tool surface the
// MCP server exposes, mounted as POST endpoints plus health and metrics.
// It is intended for local operation and monitoring, not public exposure.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dbgateway/internal/audit"
	"dbgateway/internal/gateway"
)

type Handler struct {
	gw      *gateway.Gateway
	metrics *audit.Metrics
	log     *slog.Logger
}

func NewHandler(gw *gateway.Gateway, metrics *audit.Metrics, log *slog.Logger) *Handler {
	return &Handler{gw: gw, metrics: metrics, log: log}
}

// Router mounts every tool under POST /tools/{name} with a JSON body,
// plus GET /health and GET /metrics.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(LoggingMiddleware(h.log))

	r.Get("/health", h.health)
	r.Handle("/metrics", h.metrics.Handler())
	r.Post("/tools/{name}", h.callTool)

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, h.gw.HealthCheck(r.Context()))
}

// toolBody is the union of every tool's parameters; each tool reads the
// fields it cares about.
type toolBody struct {
	gateway.ConnectRequest
	ConnectionID string   `json:"connection_id"`
	Query        string   `json:"query"`
	Queries      []string `json:"queries"`
	Limit        int      `json:"limit"`
	Schema       string   `json:"schema"`
	Table        string   `json:"table"`
}

func (h *Handler) callTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var body toolBody
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	}

	ctx := r.Context()
	var env gateway.Envelope
	switch name {
	case "connect_database":
		env = h.gw.ConnectDatabase(ctx, body.ConnectRequest)
	case "disconnect_database":
		env = h.gw.DisconnectDatabase(ctx, body.ConnectionID)
	case "list_connections":
		env = h.gw.ListConnections(ctx)
	case "test_connection":
		env = h.gw.TestConnection(ctx, body.ConnectionID)
	case "get_connection_info":
		env = h.gw.GetConnectionInfo(ctx, body.ConnectionID)
	case "validate_connection_params":
		env = h.gw.ValidateConnectionParams(ctx, body.ConnectRequest)
	case "execute_query":
		env = h.gw.ExecuteQuery(ctx, body.ConnectionID, body.Query, body.Limit)
	case "validate_query":
		env = h.gw.ValidateQuery(ctx, body.Query)
	case "explain_query":
		env = h.gw.ExplainQuery(ctx, body.ConnectionID, body.Query)
	case "execute_batch_queries":
		env = h.gw.ExecuteBatchQueries(ctx, body.ConnectionID, body.Queries, body.Limit)
	case "get_query_history":
		env = h.gw.GetQueryHistory(ctx, body.ConnectionID, body.Limit)
	case "analyze_query_performance":
		env = h.gw.AnalyzeQueryPerformance(ctx, body.Query)
	case "get_schema_info":
		env = h.gw.GetSchemaInfo(ctx, body.ConnectionID, body.Schema)
	case "get_table_info":
		env = h.gw.GetTableInfo(ctx, body.ConnectionID, body.Schema, body.Table)
	case "explore_schema_advanced":
		env = h.gw.ExploreSchemaAdvanced(ctx, body.ConnectionID, body.Schema)
	case "get_table_relationships":
		env = h.gw.GetTableRelationships(ctx, body.ConnectionID, body.Schema, body.Table)
	case "get_database_status":
		env = h.gw.GetDatabaseStatus(ctx)
	case "get_connection_metrics":
		env = h.gw.GetConnectionMetrics(ctx)
	case "cleanup_idle_connections":
		env = h.gw.CleanupIdleConnections(ctx)
	case "get_security_audit":
		env = h.gw.GetSecurityAudit(ctx)
	case "export_configuration":
		env = h.gw.ExportConfiguration(ctx)
	case "health_check":
		env = h.gw.HealthCheck(ctx)
	default:
		http.Error(w, "unknown tool: "+name, http.StatusNotFound)
		return
	}

	writeEnvelope(w, env)
}

func writeEnvelope(w http.ResponseWriter, env gateway.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	if !env.Success {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}
	_ = json.NewEncoder(w).Encode(env)
}
