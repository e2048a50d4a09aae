package driver

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"dbgateway/internal/core"
)

// documentAdapter connects to a Mongo-compatible document store. The
// SQL-shaped surface is deliberately tiny: SHOW COLLECTIONS plus
// introspection, mirroring what the gateway's validator can vouch for.
type documentAdapter struct{}

func (a *documentAdapter) Kind() core.Kind { return core.KindDocument }

func (a *documentAdapter) ExplainStatement(string) (string, error) {
	return "", fmt.Errorf("execution plans are not supported for document connections")
}

func (a *documentAdapter) Connect(ctx context.Context, creds core.Credentials, timeout time.Duration) (core.Handle, error) {
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d/?authSource=%s",
		url.QueryEscape(creds.Username), url.QueryEscape(creds.Secret),
		creds.Host, creds.Port, creds.Database)

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(timeout).
		SetConnectTimeout(timeout))
	if err != nil {
		return nil, core.ScrubError(err, creds.Secret)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, core.ScrubError(err, creds.Secret)
	}

	return &documentHandle{client: client, database: creds.Database}, nil
}

type documentHandle struct {
	client   *mongo.Client
	database string
}

var showCollectionsRe = regexp.MustCompile(`(?i)^\s*show\s+collections\s*;?\s*$`)

func (h *documentHandle) Run(ctx context.Context, query string, limit int) (*core.RawResult, error) {
	if !showCollectionsRe.MatchString(query) {
		return nil, fmt.Errorf("only SHOW COLLECTIONS is supported for document connections")
	}

	names, err := h.client.Database(h.database).ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, err
	}

	result := &core.RawResult{Columns: []string{"collection"}, Rows: []map[string]any{}}
	for _, name := range names {
		if limit > 0 && len(result.Rows) >= limit {
			result.More = true
			break
		}
		result.Rows = append(result.Rows, map[string]any{"collection": name})
	}
	return result, nil
}

func (h *documentHandle) Introspect(ctx context.Context, scope core.IntrospectScope) (*core.SchemaMetadata, error) {
	db := h.client.Database(h.database)
	meta := &core.SchemaMetadata{Schema: h.database}

	var names []string
	if scope.Table != "" {
		names = []string{scope.Table}
	} else {
		var err error
		names, err = db.ListCollectionNames(ctx, bson.D{})
		if err != nil {
			return nil, err
		}
	}

	for _, name := range names {
		table := core.TableInfo{Name: name}

		// Field shape is inferred from a single sampled document; a
		// schemaless store has nothing stronger to offer cheaply.
		var sample bson.M
		err := db.Collection(name).FindOne(ctx, bson.D{}).Decode(&sample)
		if err == nil {
			for field, value := range sample {
				table.Columns = append(table.Columns, core.ColumnInfo{
					Name:     field,
					DataType: fmt.Sprintf("%T", value),
					Nullable: true,
				})
			}
		} else if err != mongo.ErrNoDocuments {
			return nil, err
		}

		if scope.Stats {
			if count, err := db.Collection(name).EstimatedDocumentCount(ctx); err == nil {
				table.RowEstimate = count
			}
		}

		meta.Tables = append(meta.Tables, table)
	}
	return meta, nil
}

func (h *documentHandle) Ping(ctx context.Context) error {
	return h.client.Ping(ctx, readpref.Primary())
}

func (h *documentHandle) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.client.Disconnect(ctx)
}
