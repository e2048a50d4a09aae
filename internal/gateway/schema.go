package gateway

import (
	"context"
	"errors"
	"regexp"

	"dbgateway/internal/core"
)

// Schema and table names come straight from the caller and end up inside
// introspection queries, so they are held to bare-identifier shape.
var (
	schemaNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	tableNameRe  = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

func validSchemaName(name string) bool {
	return name == "" || (len(name) <= 64 && schemaNameRe.MatchString(name))
}

func validTableName(name string) bool {
	return len(name) <= 64 && tableNameRe.MatchString(name)
}

// GetSchemaInfo lists tables (and collections, for document stores) in
// the connection's database, optionally scoped to one schema.
func (g *Gateway) GetSchemaInfo(ctx context.Context, connectionID, schema string) Envelope {
	if !validSchemaName(schema) {
		return fail(errors.New("invalid schema name"), nil)
	}

	meta, err := g.executor.Introspect(ctx, connectionID, core.IntrospectScope{Schema: schema})
	if err != nil {
		return introspectFail(err)
	}
	return ok("schema info", meta)
}

// GetTableInfo returns column metadata for one table.
func (g *Gateway) GetTableInfo(ctx context.Context, connectionID, schema, table string) Envelope {
	if !validSchemaName(schema) {
		return fail(errors.New("invalid schema name"), nil)
	}
	if !validTableName(table) {
		return fail(errors.New("invalid table name"), nil)
	}

	meta, err := g.executor.Introspect(ctx, connectionID, core.IntrospectScope{Schema: schema, Table: table})
	if err != nil {
		return introspectFail(err)
	}
	if len(meta.Tables) == 0 {
		return fail(errors.New("table not found"), nil)
	}
	return ok("table info", meta.Tables[0])
}

// ExploreSchemaAdvanced returns tables with columns, foreign-key
// relationships and row estimates in one pass.
func (g *Gateway) ExploreSchemaAdvanced(ctx context.Context, connectionID, schema string) Envelope {
	if !validSchemaName(schema) {
		return fail(errors.New("invalid schema name"), nil)
	}

	meta, err := g.executor.Introspect(ctx, connectionID, core.IntrospectScope{
		Schema:        schema,
		Relationships: true,
		Stats:         true,
	})
	if err != nil {
		return introspectFail(err)
	}
	return ok("schema explored", meta)
}

// GetTableRelationships returns foreign-key edges, optionally filtered to
// one table's incoming and outgoing references.
func (g *Gateway) GetTableRelationships(ctx context.Context, connectionID, schema, table string) Envelope {
	if !validSchemaName(schema) {
		return fail(errors.New("invalid schema name"), nil)
	}
	if table != "" && !validTableName(table) {
		return fail(errors.New("invalid table name"), nil)
	}

	meta, err := g.executor.Introspect(ctx, connectionID, core.IntrospectScope{Schema: schema, Relationships: true})
	if err != nil {
		return introspectFail(err)
	}

	type edge struct {
		Table string `json:"table"`
		core.Relationship
	}
	edges := []edge{}
	for _, t := range meta.Tables {
		for _, rel := range t.Relationships {
			if table != "" && t.Name != table && rel.RefTable != table {
				continue
			}
			edges = append(edges, edge{Table: t.Name, Relationship: rel})
		}
	}

	return ok("table relationships", map[string]any{
		"relationships": edges,
		"count":         len(edges),
	})
}

func introspectFail(err error) Envelope {
	var execErr *core.ExecutionError
	if errors.As(err, &execErr) {
		return fail(err, map[string]any{"category": string(execErr.Category)})
	}
	return fail(err, nil)
}
