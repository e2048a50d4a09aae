package mcp

import (
	"context"
	"encoding/json"

	"dbgateway/internal/gateway"
)

// connectionProps are the shared parameters of connect_database and
// validate_connection_params.
func connectionProps() map[string]Property {
	return map[string]Property{
		"kind":     {Type: "string", Description: "Database kind: postgres, mysql, sqlite or document (mongodb)"},
		"host":     {Type: "string", Description: "Server hostname or IP (network kinds)"},
		"port":     {Type: "integer", Description: "Server port; defaults to the kind's conventional port"},
		"username": {Type: "string", Description: "Database username"},
		"secret":   {Type: "string", Description: "Database password; never logged or echoed"},
		"database": {Type: "string", Description: "Database name"},
		"path":     {Type: "string", Description: "Database file path (sqlite only)"},
	}
}

func connIDProp() map[string]Property {
	return map[string]Property{
		"connection_id": {Type: "string", Description: "Opaque id returned by connect_database"},
	}
}

func toolDefinitions() []Tool {
	obj := func(props map[string]Property, required ...string) InputSchema {
		if props == nil {
			props = map[string]Property{}
		}
		return InputSchema{Type: "object", Properties: props, Required: required}
	}
	withConn := func(extra map[string]Property) map[string]Property {
		props := connIDProp()
		for k, v := range extra {
			props[k] = v
		}
		return props
	}

	return []Tool{
		{
			Name:        "connect_database",
			Description: "Open a read-only connection to a database and return an opaque connection id",
			InputSchema: obj(connectionProps(), "kind"),
		},
		{
			Name:        "disconnect_database",
			Description: "Close a connection; closing an already-closed connection succeeds",
			InputSchema: obj(connIDProp(), "connection_id"),
		},
		{
			Name:        "list_connections",
			Description: "List registered connections with status and usage counters, credentials excluded",
			InputSchema: obj(nil),
		},
		{
			Name:        "test_connection",
			Description: "Ping a connection and report reachability and latency",
			InputSchema: obj(connIDProp(), "connection_id"),
		},
		{
			Name:        "get_connection_info",
			Description: "Return one connection's record without counting as usage",
			InputSchema: obj(connIDProp(), "connection_id"),
		},
		{
			Name:        "validate_connection_params",
			Description: "Check connection parameters without opening a connection",
			InputSchema: obj(connectionProps(), "kind"),
		},
		{
			Name:        "execute_query",
			Description: "Validate and run a read-only query; results are row-limited and truncation is flagged",
			InputSchema: obj(withConn(map[string]Property{
				"query": {Type: "string", Description: "SQL text; only SELECT, SHOW, DESCRIBE and EXPLAIN are permitted"},
				"limit": {Type: "integer", Description: "Row limit for this call; capped by the configured maximum"},
			}), "connection_id", "query"),
		},
		{
			Name:        "validate_query",
			Description: "Classify a query as ALLOW, ALLOW_WITH_LIMIT or REJECT without executing it",
			InputSchema: obj(map[string]Property{
				"query": {Type: "string", Description: "SQL text to classify"},
			}, "query"),
		},
		{
			Name:        "explain_query",
			Description: "Run the query under the engine's EXPLAIN and return the plan",
			InputSchema: obj(withConn(map[string]Property{
				"query": {Type: "string", Description: "SQL text to explain"},
			}), "connection_id", "query"),
		},
		{
			Name:        "execute_batch_queries",
			Description: "Run up to 10 queries sequentially on one connection; failures do not abort the batch",
			InputSchema: obj(withConn(map[string]Property{
				"queries": {Type: "array", Description: "Queries to run in order", Items: &Items{Type: "string"}},
				"limit":   {Type: "integer", Description: "Row limit applied to each query"},
			}), "connection_id", "queries"),
		},
		{
			Name:        "get_query_history",
			Description: "Return audited queries, newest first, optionally for one connection",
			InputSchema: obj(map[string]Property{
				"connection_id": {Type: "string", Description: "Restrict history to this connection"},
				"limit":         {Type: "integer", Description: "Entries to return (default 50, max 500)"},
			}),
		},
		{
			Name:        "analyze_query_performance",
			Description: "Static performance review of a query: index-hostile patterns, missing limits, full scans",
			InputSchema: obj(map[string]Property{
				"query": {Type: "string", Description: "SQL text to analyze"},
			}, "query"),
		},
		{
			Name:        "get_schema_info",
			Description: "List tables or collections in the connected database",
			InputSchema: obj(withConn(map[string]Property{
				"schema": {Type: "string", Description: "Schema to inspect; the kind's default when omitted"},
			}), "connection_id"),
		},
		{
			Name:        "get_table_info",
			Description: "Return column names, types, nullability and keys for one table",
			InputSchema: obj(withConn(map[string]Property{
				"schema": {Type: "string", Description: "Schema containing the table"},
				"table":  {Type: "string", Description: "Table name"},
			}), "connection_id", "table"),
		},
		{
			Name:        "explore_schema_advanced",
			Description: "Full schema exploration: tables, columns, foreign keys and row estimates",
			InputSchema: obj(withConn(map[string]Property{
				"schema": {Type: "string", Description: "Schema to explore"},
			}), "connection_id"),
		},
		{
			Name:        "get_table_relationships",
			Description: "Foreign-key relationships, optionally filtered to one table",
			InputSchema: obj(withConn(map[string]Property{
				"schema": {Type: "string", Description: "Schema to inspect"},
				"table":  {Type: "string", Description: "Only edges touching this table"},
			}), "connection_id"),
		},
		{
			Name:        "get_database_status",
			Description: "Gateway status: supported kinds, connection occupancy, execution totals",
			InputSchema: obj(nil),
		},
		{
			Name:        "get_connection_metrics",
			Description: "Per-connection usage counters and aggregate execution stats",
			InputSchema: obj(nil),
		},
		{
			Name:        "cleanup_idle_connections",
			Description: "Close connections idle past the configured timeout right now",
			InputSchema: obj(nil),
		},
		{
			Name:        "get_security_audit",
			Description: "Validator activity report: decisions, most-hit rules, recent rejections",
			InputSchema: obj(nil),
		},
		{
			Name:        "export_configuration",
			Description: "Effective gateway limits and toggles; contains no credentials",
			InputSchema: obj(nil),
		},
		{
			Name:        "health_check",
			Description: "Cheap liveness probe",
			InputSchema: obj(nil),
		},
	}
}

func (s *Server) dispatch(ctx context.Context, name string, args map[string]any) (gateway.Envelope, *RPCError) {
	switch name {
	case "connect_database":
		return s.gw.ConnectDatabase(ctx, connectRequest(args)), nil
	case "disconnect_database":
		return s.gw.DisconnectDatabase(ctx, stringArg(args, "connection_id")), nil
	case "list_connections":
		return s.gw.ListConnections(ctx), nil
	case "test_connection":
		return s.gw.TestConnection(ctx, stringArg(args, "connection_id")), nil
	case "get_connection_info":
		return s.gw.GetConnectionInfo(ctx, stringArg(args, "connection_id")), nil
	case "validate_connection_params":
		return s.gw.ValidateConnectionParams(ctx, connectRequest(args)), nil
	case "execute_query":
		return s.gw.ExecuteQuery(ctx, stringArg(args, "connection_id"), stringArg(args, "query"), intArg(args, "limit")), nil
	case "validate_query":
		return s.gw.ValidateQuery(ctx, stringArg(args, "query")), nil
	case "explain_query":
		return s.gw.ExplainQuery(ctx, stringArg(args, "connection_id"), stringArg(args, "query")), nil
	case "execute_batch_queries":
		return s.gw.ExecuteBatchQueries(ctx, stringArg(args, "connection_id"), stringSliceArg(args, "queries"), intArg(args, "limit")), nil
	case "get_query_history":
		return s.gw.GetQueryHistory(ctx, stringArg(args, "connection_id"), intArg(args, "limit")), nil
	case "analyze_query_performance":
		return s.gw.AnalyzeQueryPerformance(ctx, stringArg(args, "query")), nil
	case "get_schema_info":
		return s.gw.GetSchemaInfo(ctx, stringArg(args, "connection_id"), stringArg(args, "schema")), nil
	case "get_table_info":
		return s.gw.GetTableInfo(ctx, stringArg(args, "connection_id"), stringArg(args, "schema"), stringArg(args, "table")), nil
	case "explore_schema_advanced":
		return s.gw.ExploreSchemaAdvanced(ctx, stringArg(args, "connection_id"), stringArg(args, "schema")), nil
	case "get_table_relationships":
		return s.gw.GetTableRelationships(ctx, stringArg(args, "connection_id"), stringArg(args, "schema"), stringArg(args, "table")), nil
	case "get_database_status":
		return s.gw.GetDatabaseStatus(ctx), nil
	case "get_connection_metrics":
		return s.gw.GetConnectionMetrics(ctx), nil
	case "cleanup_idle_connections":
		return s.gw.CleanupIdleConnections(ctx), nil
	case "get_security_audit":
		return s.gw.GetSecurityAudit(ctx), nil
	case "export_configuration":
		return s.gw.ExportConfiguration(ctx), nil
	case "health_check":
		return s.gw.HealthCheck(ctx), nil
	default:
		return gateway.Envelope{}, &RPCError{Code: InvalidParams, Message: "unknown tool: " + name}
	}
}

func connectRequest(args map[string]any) gateway.ConnectRequest {
	return gateway.ConnectRequest{
		Kind:     stringArg(args, "kind"),
		Host:     stringArg(args, "host"),
		Port:     intArg(args, "port"),
		Username: stringArg(args, "username"),
		Secret:   stringArg(args, "secret"),
		Database: stringArg(args, "database"),
		Path:     stringArg(args, "path"),
	}
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// intArg tolerates both JSON numbers and already-typed ints.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return 0
}

func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
