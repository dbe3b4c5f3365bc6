package db

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakePool struct {
	closed  atomic.Int32
	pingErr error
}

func (p *fakePool) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("SELECT 1"), nil
}

func (p *fakePool) QueryRow(context.Context, string, ...any) pgx.Row { return errRow{} }

func (p *fakePool) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	return nil, errors.New("not supported")
}

func (p *fakePool) Ping(context.Context) error { return p.pingErr }

func (p *fakePool) Close() { p.closed.Add(1) }

// gatedConnector blocks each attempt until release is closed.
type gatedConnector struct {
	calls   atomic.Int32
	release chan struct{}
	pool    *fakePool
	err     error

	mu      sync.Mutex
	lastCtx context.Context
}

func newGatedConnector() *gatedConnector {
	return &gatedConnector{release: make(chan struct{}), pool: &fakePool{}}
}

func (g *gatedConnector) connect(ctx context.Context) (Pool, error) {
	g.calls.Add(1)
	g.mu.Lock()
	g.lastCtx = ctx
	g.mu.Unlock()

	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if g.err != nil {
		return nil, g.err
	}
	return g.pool, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DatabaseURL = "postgres://sessiond@127.0.0.1:1/sessiond"
	return cfg
}

func TestManager_SingleFlight(t *testing.T) {
	t.Parallel()

	g := newGatedConnector()
	m := NewManager(testConfig(), WithConnector(g.connect))

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.EnsureConnected(context.Background(), 2*time.Second)
		}()
	}

	// Let every caller join before the attempt completes.
	time.Sleep(20 * time.Millisecond)
	close(g.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("EnsureConnected: %v", err)
		}
	}
	if got := g.calls.Load(); got != 1 {
		t.Fatalf("expected exactly 1 connection attempt, got %d", got)
	}
	if m.State() != Connected {
		t.Fatalf("expected Connected, got %s", m.State())
	}
	if m.Pool() == nil {
		t.Fatalf("expected a pool after connecting")
	}

	// Already connected: no new attempt.
	if err := m.EnsureConnected(context.Background(), time.Second); err != nil {
		t.Fatalf("EnsureConnected (connected): %v", err)
	}
	if got := g.calls.Load(); got != 1 {
		t.Fatalf("expected no further attempts, got %d", got)
	}
}

func TestManager_CallerTimeoutDoesNotCancelAttempt(t *testing.T) {
	t.Parallel()

	g := newGatedConnector()
	m := NewManager(testConfig(), WithConnector(g.connect))

	err := m.EnsureConnected(context.Background(), 20*time.Millisecond)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on wait timeout, got %v", err)
	}
	if m.State() != Connecting {
		t.Fatalf("expected attempt still Connecting, got %s", m.State())
	}

	// A cancelled caller context must not reach the attempt either.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.EnsureConnected(ctx, time.Second); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for cancelled caller, got %v", err)
	}

	g.mu.Lock()
	attemptCtx := g.lastCtx
	g.mu.Unlock()
	if attemptCtx.Err() != nil {
		t.Fatalf("attempt context was cancelled: %v", attemptCtx.Err())
	}

	close(g.release)
	if err := m.EnsureConnected(context.Background(), time.Second); err != nil {
		t.Fatalf("EnsureConnected after release: %v", err)
	}
	if got := g.calls.Load(); got != 1 {
		t.Fatalf("expected the original attempt to be reused, got %d attempts", got)
	}
}

func TestManager_FailedAttemptReturnsToDisconnected(t *testing.T) {
	t.Parallel()

	g := newGatedConnector()
	g.err = errors.New("connection refused")
	close(g.release)

	reg := prometheus.NewRegistry()
	m := NewManager(testConfig(), WithConnector(g.connect), WithRegisterer(reg))

	err := m.EnsureConnected(context.Background(), time.Second)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if m.State() != Disconnected {
		t.Fatalf("expected Disconnected after failure, got %s", m.State())
	}
	if got := testutil.ToFloat64(m.attempts.WithLabelValues("fail")); got != 1 {
		t.Fatalf("fail counter: got %v want 1", got)
	}

	// The next caller starts a fresh attempt.
	g.err = nil
	if err := m.EnsureConnected(context.Background(), time.Second); err != nil {
		t.Fatalf("EnsureConnected retry: %v", err)
	}
	if got := g.calls.Load(); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
	if got := testutil.ToFloat64(m.connected); got != 1 {
		t.Fatalf("connected gauge: got %v want 1", got)
	}
}

func TestManager_DisconnectIdempotent(t *testing.T) {
	t.Parallel()

	g := newGatedConnector()
	close(g.release)
	m := NewManager(testConfig(), WithConnector(g.connect))

	m.Disconnect()
	if m.State() != Disconnected {
		t.Fatalf("expected Disconnected, got %s", m.State())
	}

	if err := m.EnsureConnected(context.Background(), time.Second); err != nil {
		t.Fatalf("EnsureConnected: %v", err)
	}
	m.Disconnect()
	m.Disconnect()

	if got := g.pool.closed.Load(); got != 1 {
		t.Fatalf("expected pool closed once, got %d", got)
	}
	if m.Pool() != nil || m.State() != Disconnected {
		t.Fatalf("expected no pool after disconnect")
	}
}

func TestManager_DisconnectDuringConnectDiscardsPool(t *testing.T) {
	t.Parallel()

	g := newGatedConnector()
	m := NewManager(testConfig(), WithConnector(g.connect))

	_ = m.EnsureConnected(context.Background(), 10*time.Millisecond)
	m.Disconnect()
	close(g.release)

	deadline := time.Now().Add(time.Second)
	for g.pool.closed.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := g.pool.closed.Load(); got != 1 {
		t.Fatalf("expected late pool to be closed, got %d", got)
	}
	if m.State() != Disconnected {
		t.Fatalf("expected Disconnected, got %s", m.State())
	}
}

func TestManager_DisconnectedQueriesAreUnavailable(t *testing.T) {
	t.Parallel()

	m := NewManager(testConfig())
	ctx := context.Background()

	if _, err := m.Exec(ctx, "SELECT 1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Exec: expected ErrUnavailable, got %v", err)
	}
	var one int
	if err := m.QueryRow(ctx, "SELECT 1").Scan(&one); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("QueryRow: expected ErrUnavailable, got %v", err)
	}
	if _, err := m.BeginTx(ctx, pgx.TxOptions{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("BeginTx: expected ErrUnavailable, got %v", err)
	}
	if err := m.Ping(ctx, time.Second); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Ping: expected ErrUnavailable, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"missing url", func(c *Config) { c.DatabaseURL = "" }, false},
		{"min above max", func(c *Config) { c.MinConns = 20; c.MaxConns = 5 }, false},
		{"zero connect timeout", func(c *Config) { c.ConnectTimeout = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err == nil) != tt.ok {
				t.Fatalf("Validate: ok=%v err=%v", tt.ok, err)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	for s, want := range map[State]string{
		Disconnected: "disconnected",
		Connecting:   "connecting",
		Connected:    "connected",
		State(42):    "unknown",
	} {
		if got := s.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
