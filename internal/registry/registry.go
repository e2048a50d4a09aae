// Package registry is the single authority over connection identity,
// capacity and idle reclamation. It is the only component allowed to open
// or close a physical database connection, and all of the gateway's
// locking discipline lives here.
package registry

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"dbgateway/internal/core"
)

// connectRetries bounds transient network retry attempts during open.
const connectRetries = 3

// idleAfter is how long a connection can sit unused before it is reported
// as idle (distinct from the sweep timeout that closes it).
const idleAfter = 5 * time.Minute

type conn struct {
	mu     sync.Mutex // serializes execution against the physical handle
	record core.ConnectionRecord
	handle core.Handle
}

// Registry owns the set of live connections behind a single mutex guarding
// the map plus per-record mutexes for execution. Cardinality is small
// (tens of connections), so the coarse map lock is never contended enough
// to matter.
type Registry struct {
	mu       sync.Mutex
	conns    map[string]*conn
	reserved int // open calls that passed the capacity check but have not connected yet

	adapters       map[core.Kind]core.Adapter
	maxConnections int
	connectTimeout time.Duration
	log            *slog.Logger

	onOpen  func()
	onClose func()
}

func New(adapters map[core.Kind]core.Adapter, maxConnections int, connectTimeout time.Duration, log *slog.Logger) *Registry {
	return &Registry{
		conns:          make(map[string]*conn),
		adapters:       adapters,
		maxConnections: maxConnections,
		connectTimeout: connectTimeout,
		log:            log,
	}
}

// SetHooks installs open/close callbacks used by the auditor's gauges.
func (r *Registry) SetHooks(onOpen, onClose func()) {
	r.onOpen = onOpen
	r.onClose = onClose
}

// Adapter exposes the per-kind strategy for components that need
// kind-specific statements (the executor's EXPLAIN wrapping).
func (r *Registry) Adapter(kind core.Kind) (core.Adapter, bool) {
	a, ok := r.adapters[kind]
	return a, ok
}

// Open validates capacity, establishes a physical connection and registers
// it under a fresh opaque id. The capacity check and the registration are
// atomic with respect to concurrent Open calls: a slot is reserved under
// the lock before dialing and released if the dial fails.
func (r *Registry) Open(ctx context.Context, creds core.Credentials) (string, error) {
	adapter, ok := r.adapters[creds.Kind]
	if !ok {
		return "", &core.ConnectionError{Category: core.ConnUnsupportedKind,
			Message: "unsupported database kind: " + string(creds.Kind)}
	}

	r.mu.Lock()
	if r.liveCountLocked()+r.reserved >= r.maxConnections {
		r.mu.Unlock()
		return "", &core.ConnectionError{Category: core.ConnLimitExceeded,
			Message: "maximum number of connections reached"}
	}
	r.reserved++
	r.mu.Unlock()

	handle, err := r.dial(ctx, adapter, creds)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.reserved--

	if err != nil {
		r.log.Warn("connection failed",
			"kind", creds.Kind, "host", creds.Host, "database", creds.Database, "error", err)
		return "", err
	}

	id := uuid.NewString()
	now := time.Now()
	r.conns[id] = &conn{
		record: core.ConnectionRecord{
			ID:         id,
			Kind:       creds.Kind,
			Host:       creds.Host,
			Port:       creds.Port,
			Database:   databaseLabel(creds),
			Status:     core.StatusActive,
			CreatedAt:  now,
			LastUsedAt: now,
		},
		handle: handle,
	}
	if r.onOpen != nil {
		r.onOpen()
	}
	r.log.Info("connection opened", "id", id, "kind", creds.Kind, "host", creds.Host, "database", databaseLabel(creds))
	return id, nil
}

// dial connects with bounded exponential backoff. Only transient network
// failures are retried; authentication failures surface immediately.
func (r *Registry) dial(ctx context.Context, adapter core.Adapter, creds core.Credentials) (core.Handle, error) {
	var handle core.Handle

	operation := func() error {
		h, err := adapter.Connect(ctx, creds, r.connectTimeout)
		if err != nil {
			if isAuthError(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		handle = h
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.WithContext(backoff.NewExponentialBackOff(), ctx), connectRetries)
	if err := backoff.Retry(operation, policy); err != nil {
		category := core.ConnNetwork
		if isAuthError(err) {
			category = core.ConnAuth
		}
		return nil, &core.ConnectionError{
			Category: category,
			Err:      core.ScrubError(err, creds.Secret),
		}
	}
	return handle, nil
}

// Get returns a snapshot of the record and touches last_used_at.
func (r *Registry) Get(id string) (core.ConnectionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok || c.record.Status == core.StatusClosed {
		return core.ConnectionRecord{}, core.ErrNotFound
	}
	c.record.LastUsedAt = time.Now()
	return snapshot(c.record), nil
}

// Peek returns a snapshot without touching last_used_at.
func (r *Registry) Peek(id string) (core.ConnectionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return core.ConnectionRecord{}, core.ErrNotFound
	}
	return snapshot(c.record), nil
}

// Use runs fn against the connection's handle while holding the
// per-record lock, so operations against one physical connection never
// interleave. last_used_at and the query counter are updated on entry.
func (r *Registry) Use(id string, fn func(core.Handle) error) error {
	r.mu.Lock()
	c, ok := r.conns[id]
	if !ok || c.record.Status == core.StatusClosed {
		r.mu.Unlock()
		return core.ErrNotFound
	}
	c.record.LastUsedAt = time.Now()
	c.record.QueryCount++
	r.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-check after acquiring: the sweeper may have closed the record
	// while we were waiting for the execution lock.
	r.mu.Lock()
	closed := c.record.Status == core.StatusClosed
	r.mu.Unlock()
	if closed {
		return core.ErrNotFound
	}

	return fn(c.handle)
}

// Ping verifies reachability and reports latency.
func (r *Registry) Ping(ctx context.Context, id string) (time.Duration, error) {
	var latency time.Duration
	err := r.Use(id, func(h core.Handle) error {
		start := time.Now()
		if err := h.Ping(ctx); err != nil {
			return err
		}
		latency = time.Since(start)
		return nil
	})
	return latency, err
}

// Close closes a connection. Closing an already-closed id is a no-op
// success so duplicate cleanup requests are harmless; an id that was never
// issued is NotFound. A closed record never becomes active again.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	c, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return core.ErrNotFound
	}
	if c.record.Status == core.StatusClosed {
		r.mu.Unlock()
		return nil
	}
	c.record.Status = core.StatusClosed
	r.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle != nil {
		if err := c.handle.Close(); err != nil {
			r.log.Warn("closing physical connection", "id", id, "error", err)
		}
		c.handle = nil
	}
	if r.onClose != nil {
		r.onClose()
	}
	r.log.Info("connection closed", "id", id)
	return nil
}

// Sweep closes every connection idle for at least timeout and drops
// closed tombstones past the same window. Returns the number closed.
func (r *Registry) Sweep(timeout time.Duration) int {
	cutoff := time.Now().Add(-timeout)

	r.mu.Lock()
	var stale []string
	for id, c := range r.conns {
		if c.record.Status == core.StatusClosed {
			if c.record.LastUsedAt.Before(cutoff) {
				delete(r.conns, id)
			}
			continue
		}
		if c.record.LastUsedAt.Before(cutoff) || c.record.LastUsedAt.Equal(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	for _, id := range stale {
		_ = r.Close(id)
	}
	if len(stale) > 0 {
		r.log.Info("idle sweep", "closed", len(stale))
	}
	return len(stale)
}

// StartSweeper runs periodic idle reclamation until ctx is cancelled.
func (r *Registry) StartSweeper(ctx context.Context, interval, timeout time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep(timeout)
			}
		}
	}()
}

// List returns redacted snapshots of every non-tombstone record.
func (r *Registry) List() []core.ConnectionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]core.ConnectionRecord, 0, len(r.conns))
	for _, c := range r.conns {
		if c.record.Status == core.StatusClosed {
			continue
		}
		out = append(out, snapshot(c.record))
	}
	return out
}

// LiveCount reports connections counted against capacity.
func (r *Registry) LiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.liveCountLocked()
}

// CloseAll tears down every live connection (process shutdown).
func (r *Registry) CloseAll() {
	for _, rec := range r.List() {
		_ = r.Close(rec.ID)
	}
}

func (r *Registry) liveCountLocked() int {
	n := 0
	for _, c := range r.conns {
		if c.record.Status != core.StatusClosed {
			n++
		}
	}
	return n
}

// snapshot derives the reported status from recency without mutating the
// stored record.
func snapshot(rec core.ConnectionRecord) core.ConnectionRecord {
	if rec.Status == core.StatusActive && time.Since(rec.LastUsedAt) > idleAfter {
		rec.Status = core.StatusIdle
	}
	return rec
}

func databaseLabel(creds core.Credentials) string {
	if creds.Kind.FileBased() {
		return creds.Path
	}
	return creds.Database
}

// isAuthError distinguishes credential rejections from transient network
// faults using the phrasing the supported drivers emit.
func isAuthError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"password authentication failed",
		"access denied",
		"authentication failed",
		"auth error",
		"unable to authenticate",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
