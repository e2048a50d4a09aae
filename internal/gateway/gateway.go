// Package gateway is the service layer behind every tool operation. It
// wires the credential validator, connection registry, query safety
// validator, executor and auditor together and speaks only the uniform
// response envelope to its transports.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"dbgateway/internal/audit"
	"dbgateway/internal/config"
	"dbgateway/internal/core"
	"dbgateway/internal/executor"
	"dbgateway/internal/registry"
	"dbgateway/internal/security"
)

// Version is reported by health_check and the MCP handshake.
const Version = "1.0.0"

type Gateway struct {
	cfg       *config.Config
	log       *slog.Logger
	creds     *security.CredentialValidator
	validator *security.QueryValidator
	registry  *registry.Registry
	executor  *executor.Executor
	auditor   *audit.Auditor
	startedAt time.Time
}

func New(cfg *config.Config, reg *registry.Registry, exec *executor.Executor, auditor *audit.Auditor, log *slog.Logger) *Gateway {
	g := &Gateway{
		cfg:   cfg,
		log:   log,
		creds: security.NewCredentialValidator(),
		validator: security.NewQueryValidator(security.Options{
			MaxQueryLength:         cfg.MaxQueryLength,
			DefaultRowLimit:        cfg.DefaultRowLimit,
			MaxRowLimit:            cfg.MaxRowLimit,
			AllowInformationSchema: cfg.AllowInformationSchema,
		}),
		registry:  reg,
		executor:  exec,
		auditor:   auditor,
		startedAt: time.Now(),
	}
	reg.SetHooks(auditor.Metrics().ConnectionOpened, auditor.Metrics().ConnectionClosed)
	return g
}

// ConnectRequest carries the connect_database tool parameters.
type ConnectRequest struct {
	Kind     string `json:"kind"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Secret   string `json:"secret"`
	Database string `json:"database"`
	Path     string `json:"path"`
}

func (r ConnectRequest) credentials() (core.Credentials, error) {
	kind, err := core.ParseKind(r.Kind)
	if err != nil {
		return core.Credentials{}, err
	}
	creds := core.Credentials{
		Kind:     kind,
		Host:     r.Host,
		Port:     r.Port,
		Username: r.Username,
		Secret:   r.Secret,
		Database: r.Database,
		Path:     r.Path,
	}
	if creds.Port == 0 {
		creds.Port = kind.DefaultPort()
	}
	return creds, nil
}

// ConnectDatabase validates credentials and opens a registered connection.
func (g *Gateway) ConnectDatabase(ctx context.Context, req ConnectRequest) Envelope {
	creds, err := req.credentials()
	if err != nil {
		return fail(err, map[string]any{"category": string(core.ConnUnsupportedKind)})
	}

	if err := g.creds.Validate(creds); err != nil {
		g.log.Warn("credential validation failed", "kind", creds.Kind, "host", creds.Host)
		var credErr *core.CredentialError
		if errors.As(err, &credErr) {
			return fail(err, map[string]any{"field": credErr.Field})
		}
		return fail(err, nil)
	}

	id, err := g.registry.Open(ctx, creds)
	if err != nil {
		var connErr *core.ConnectionError
		if errors.As(err, &connErr) {
			return fail(err, map[string]any{"category": string(connErr.Category)})
		}
		return fail(err, nil)
	}

	return ok("connected", map[string]any{
		"connection_id": id,
		"kind":          string(creds.Kind),
		"host":          creds.Host,
		"database":      creds.Database,
	})
}

// DisconnectDatabase closes a connection; closing twice is a no-op success.
func (g *Gateway) DisconnectDatabase(_ context.Context, connectionID string) Envelope {
	if err := g.registry.Close(connectionID); err != nil {
		return fail(err, nil)
	}
	return ok("disconnected", map[string]any{"connection_id": connectionID})
}

// ListConnections returns redacted records, oldest first.
func (g *Gateway) ListConnections(_ context.Context) Envelope {
	records := g.registry.List()
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return ok("active connections", map[string]any{
		"connections": records,
		"count":       len(records),
		"max":         g.cfg.MaxConnections,
	})
}

// TestConnection pings the physical handle and reports latency.
func (g *Gateway) TestConnection(ctx context.Context, connectionID string) Envelope {
	latency, err := g.registry.Ping(ctx, connectionID)
	if errors.Is(err, core.ErrNotFound) {
		return fail(err, nil)
	}
	if err != nil {
		return ok("connection unreachable", map[string]any{
			"reachable": false,
			"error":     err.Error(),
		})
	}
	return ok("connection reachable", map[string]any{
		"reachable":  true,
		"latency_ms": latency.Milliseconds(),
	})
}

// GetConnectionInfo returns one record without touching last_used_at.
func (g *Gateway) GetConnectionInfo(_ context.Context, connectionID string) Envelope {
	rec, err := g.registry.Peek(connectionID)
	if err != nil {
		return fail(err, nil)
	}
	return ok("connection info", rec)
}

// ValidateConnectionParams dry-runs credential validation without dialing.
func (g *Gateway) ValidateConnectionParams(_ context.Context, req ConnectRequest) Envelope {
	creds, err := req.credentials()
	if err != nil {
		return ok("parameters invalid", map[string]any{"valid": false, "reason": err.Error()})
	}
	if err := g.creds.Validate(creds); err != nil {
		return ok("parameters invalid", map[string]any{"valid": false, "reason": err.Error()})
	}
	return ok("parameters valid", map[string]any{"valid": true})
}
