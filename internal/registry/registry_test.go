package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbgateway/internal/core"
)

type fakeHandle struct {
	mu      sync.Mutex
	closed  bool
	pingErr error
	runFn   func(ctx context.Context, query string, limit int) (*core.RawResult, error)
}

func (h *fakeHandle) Run(ctx context.Context, query string, limit int) (*core.RawResult, error) {
	if h.runFn != nil {
		return h.runFn(ctx, query, limit)
	}
	return &core.RawResult{Columns: []string{"n"}, Rows: []map[string]any{{"n": 1}}}, nil
}

func (h *fakeHandle) Introspect(ctx context.Context, scope core.IntrospectScope) (*core.SchemaMetadata, error) {
	return &core.SchemaMetadata{Tables: []core.TableInfo{{Name: "users"}}}, nil
}

func (h *fakeHandle) Ping(ctx context.Context) error { return h.pingErr }

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

type fakeAdapter struct {
	mu         sync.Mutex
	connectErr error
	failures   int // consume this many failing attempts before succeeding
	attempts   int
	handles    []*fakeHandle
}

func (a *fakeAdapter) Kind() core.Kind { return core.KindPostgres }

func (a *fakeAdapter) Connect(ctx context.Context, creds core.Credentials, timeout time.Duration) (core.Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempts++
	if a.connectErr != nil {
		return nil, a.connectErr
	}
	if a.failures > 0 {
		a.failures--
		return nil, errors.New("connection refused")
	}
	h := &fakeHandle{}
	a.handles = append(a.handles, h)
	return h, nil
}

func (a *fakeAdapter) ExplainStatement(query string) (string, error) {
	return "EXPLAIN " + query, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry(adapter *fakeAdapter, max int) *Registry {
	return New(map[core.Kind]core.Adapter{core.KindPostgres: adapter}, max, time.Second, discard())
}

func testCreds() core.Credentials {
	return core.Credentials{Kind: core.KindPostgres, Host: "db", Port: 5432, Username: "u", Secret: "s", Database: "d"}
}

func TestOpenIssuesUniqueIDs(t *testing.T) {
	reg := testRegistry(&fakeAdapter{}, 10)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		id, err := reg.Open(context.Background(), testCreds())
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Equal(t, 5, reg.LiveCount())
}

func TestOpenEnforcesConnectionLimit(t *testing.T) {
	reg := testRegistry(&fakeAdapter{}, 2)

	_, err := reg.Open(context.Background(), testCreds())
	require.NoError(t, err)
	_, err = reg.Open(context.Background(), testCreds())
	require.NoError(t, err)

	_, err = reg.Open(context.Background(), testCreds())
	require.Error(t, err)

	var connErr *core.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, core.ConnLimitExceeded, connErr.Category)

	// Closing one frees a slot.
	records := reg.List()
	require.NotEmpty(t, records)
	require.NoError(t, reg.Close(records[0].ID))

	_, err = reg.Open(context.Background(), testCreds())
	assert.NoError(t, err)
}

func TestOpenRetriesTransientFailures(t *testing.T) {
	adapter := &fakeAdapter{failures: 2}
	reg := testRegistry(adapter, 10)

	_, err := reg.Open(context.Background(), testCreds())
	require.NoError(t, err)
	assert.Equal(t, 3, adapter.attempts)
}

func TestOpenDoesNotRetryAuthFailures(t *testing.T) {
	adapter := &fakeAdapter{connectErr: errors.New("password authentication failed for user \"u\"")}
	reg := testRegistry(adapter, 10)

	_, err := reg.Open(context.Background(), testCreds())
	require.Error(t, err)
	assert.Equal(t, 1, adapter.attempts)

	var connErr *core.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, core.ConnAuth, connErr.Category)
}

func TestOpenScrubsSecretFromErrors(t *testing.T) {
	adapter := &fakeAdapter{connectErr: errors.New("dial failed: dsn postgres://u:hunter2@db refused")}
	reg := testRegistry(adapter, 10)

	creds := testCreds()
	creds.Secret = "hunter2"
	_, err := reg.Open(context.Background(), creds)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "hunter2")
	assert.Contains(t, err.Error(), "[redacted]")
}

func TestOpenUnknownKind(t *testing.T) {
	reg := testRegistry(&fakeAdapter{}, 10)

	creds := testCreds()
	creds.Kind = core.Kind("oracle")
	_, err := reg.Open(context.Background(), creds)

	var connErr *core.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, core.ConnUnsupportedKind, connErr.Category)
}

func TestCloseIsIdempotent(t *testing.T) {
	adapter := &fakeAdapter{}
	reg := testRegistry(adapter, 10)

	id, err := reg.Open(context.Background(), testCreds())
	require.NoError(t, err)

	require.NoError(t, reg.Close(id))
	require.NoError(t, reg.Close(id), "second close must be a no-op")
	assert.True(t, adapter.handles[0].closed)

	assert.ErrorIs(t, reg.Close("never-issued"), core.ErrNotFound)
}

func TestClosedConnectionRejectsUse(t *testing.T) {
	reg := testRegistry(&fakeAdapter{}, 10)

	id, err := reg.Open(context.Background(), testCreds())
	require.NoError(t, err)
	require.NoError(t, reg.Close(id))

	err = reg.Use(id, func(core.Handle) error { return nil })
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = reg.Get(id)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestUseTracksUsage(t *testing.T) {
	reg := testRegistry(&fakeAdapter{}, 10)

	id, err := reg.Open(context.Background(), testCreds())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, reg.Use(id, func(core.Handle) error { return nil }))
	}

	rec, err := reg.Peek(id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.QueryCount)
}

func TestUseSerializesPerConnection(t *testing.T) {
	reg := testRegistry(&fakeAdapter{}, 10)

	id, err := reg.Open(context.Background(), testCreds())
	require.NoError(t, err)

	var inFlight, maxInFlight int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = reg.Use(id, func(core.Handle) error {
				mu.Lock()
				inFlight++
				if inFlight > maxInFlight {
					maxInFlight = inFlight
				}
				mu.Unlock()

				time.Sleep(2 * time.Millisecond)

				mu.Lock()
				inFlight--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInFlight, "operations on one connection must not interleave")
}

func TestSweepClosesOnlyStaleConnections(t *testing.T) {
	adapter := &fakeAdapter{}
	reg := testRegistry(adapter, 10)

	stale, err := reg.Open(context.Background(), testCreds())
	require.NoError(t, err)
	fresh, err := reg.Open(context.Background(), testCreds())
	require.NoError(t, err)

	// Backdate the stale record past the timeout.
	reg.mu.Lock()
	reg.conns[stale].record.LastUsedAt = time.Now().Add(-2 * time.Hour)
	reg.mu.Unlock()

	closed := reg.Sweep(time.Hour)
	assert.Equal(t, 1, closed)

	_, err = reg.Get(stale)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = reg.Get(fresh)
	assert.NoError(t, err)
}

func TestListSkipsTombstones(t *testing.T) {
	reg := testRegistry(&fakeAdapter{}, 10)

	id1, _ := reg.Open(context.Background(), testCreds())
	id2, _ := reg.Open(context.Background(), testCreds())
	require.NoError(t, reg.Close(id1))

	records := reg.List()
	require.Len(t, records, 1)
	assert.Equal(t, id2, records[0].ID)
}

func TestListReportsIdleStatus(t *testing.T) {
	reg := testRegistry(&fakeAdapter{}, 10)

	id, err := reg.Open(context.Background(), testCreds())
	require.NoError(t, err)

	reg.mu.Lock()
	reg.conns[id].record.LastUsedAt = time.Now().Add(-10 * time.Minute)
	reg.mu.Unlock()

	rec, err := reg.Peek(id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusIdle, rec.Status)
}

func TestPingReportsLatency(t *testing.T) {
	reg := testRegistry(&fakeAdapter{}, 10)

	id, err := reg.Open(context.Background(), testCreds())
	require.NoError(t, err)

	latency, err := reg.Ping(context.Background(), id)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, latency, time.Duration(0))
}

func TestCloseAll(t *testing.T) {
	adapter := &fakeAdapter{}
	reg := testRegistry(adapter, 10)

	for i := 0; i < 3; i++ {
		_, err := reg.Open(context.Background(), testCreds())
		require.NoError(t, err)
	}

	reg.CloseAll()
	assert.Zero(t, reg.LiveCount())
	for _, h := range adapter.handles {
		assert.True(t, h.closed)
	}
}

func TestConcurrentOpenNeverExceedsLimit(t *testing.T) {
	reg := testRegistry(&fakeAdapter{}, 5)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = reg.Open(context.Background(), testCreds())
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, reg.LiveCount(), 5)
	assert.Equal(t, 5, reg.LiveCount())
}
