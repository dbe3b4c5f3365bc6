package db

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

// State is the connection state of a Manager.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Connector opens a ready-to-use pool. ctx carries the attempt's own timeout.
type Connector func(ctx context.Context) (Pool, error)

// DefaultWait bounds EnsureConnected when the caller passes wait <= 0.
const DefaultWait = 5 * time.Second

// Manager owns the process-wide pool and serializes connection attempts.
//
// Manager also implements the Exec/QueryRow/BeginTx surface used by the stores,
// delegating to the current pool and returning ErrUnavailable while disconnected.
type Manager struct {
	cfg     Config
	connect Connector
	log     *slog.Logger

	flight singleflight.Group

	mu    sync.RWMutex
	state State
	pool  Pool
	// gen changes on every Disconnect so an attempt that started before it
	// does not resurrect the pool.
	gen uint64

	connected prometheus.Gauge
	attempts  *prometheus.CounterVec
}

// Option configures a Manager.
type Option func(*Manager)

// WithConnector replaces the pgxpool-backed connector.
func WithConnector(c Connector) Option {
	return func(m *Manager) {
		if c != nil {
			m.connect = c
		}
	}
}

// WithLogger sets the logger for connection events.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithRegisterer registers connection metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(m *Manager) {
		f := promauto.With(reg)
		m.connected = f.NewGauge(prometheus.GaugeOpts{
			Namespace: "sessiond",
			Name:      "db_connected",
			Help:      "1 when the database pool is connected.",
		})
		m.attempts = f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessiond",
			Name:      "db_connect_attempts_total",
			Help:      "Database connection attempts by result.",
		}, []string{"result"})
	}
}

// NewManager returns a disconnected Manager. Nothing is dialed until the first
// EnsureConnected.
func NewManager(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:   cfg,
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		state: Disconnected,
	}
	m.connect = func(ctx context.Context) (Pool, error) {
		p, err := NewPool(ctx, m.cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Pool returns the current pool, or nil when not connected.
func (m *Manager) Pool() Pool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pool
}

// EnsureConnected returns nil once the pool is connected.
//
// If no attempt is in flight one is started; otherwise the caller joins the
// existing one. The caller waits at most min(ctx deadline, wait). Giving up
// returns ErrUnavailable but leaves the attempt running for the others.
func (m *Manager) EnsureConnected(ctx context.Context, wait time.Duration) error {
	if m.State() == Connected {
		return nil
	}
	if wait <= 0 {
		wait = DefaultWait
	}

	detached := context.WithoutCancel(ctx)
	ch := m.flight.DoChan("connect", func() (any, error) {
		return nil, m.attempt(detached)
	})

	t := time.NewTimer(wait)
	defer t.Stop()

	select {
	case res := <-ch:
		if res.Err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, res.Err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	case <-t.C:
		return fmt.Errorf("%w: still connecting after %s", ErrUnavailable, wait)
	}
}

func (m *Manager) attempt(ctx context.Context) error {
	m.mu.Lock()
	if m.state == Connected {
		m.mu.Unlock()
		return nil
	}
	m.state = Connecting
	gen := m.gen
	m.mu.Unlock()

	timeout := m.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	pool, err := m.connect(actx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.state = Disconnected
		m.observe("fail", false)
		m.log.Warn("db.connect.fail",
			slog.String("state", m.state.String()),
			slog.Any("err", err),
			slog.Duration("elapsed", time.Since(start)),
		)
		return err
	}
	if gen != m.gen {
		pool.Close()
		m.state = Disconnected
		m.observe("aborted", false)
		return fmt.Errorf("disconnected while connecting")
	}

	m.pool = pool
	m.state = Connected
	m.observe("ok", true)
	m.log.Info("db.connect.ok", slog.String("state", m.state.String()), slog.Duration("elapsed", time.Since(start)))
	return nil
}

func (m *Manager) observe(result string, connected bool) {
	if m.attempts == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

// Disconnect closes the pool if connected. Calling it again is a no-op.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gen++
	if m.pool != nil {
		m.pool.Close()
		m.pool = nil
		m.log.Info("db.disconnect")
	}
	m.state = Disconnected
	if m.connected != nil {
		m.connected.Set(0)
	}
}

// Ping verifies the current pool answers within timeout.
func (m *Manager) Ping(ctx context.Context, timeout time.Duration) error {
	p := m.Pool()
	if p == nil {
		return ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Ping(ctx)
}

// Exec runs sql on the current pool.
func (m *Manager) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p := m.Pool()
	if p == nil {
		return pgconn.CommandTag{}, ErrUnavailable
	}
	return p.Exec(ctx, sql, args...)
}

// QueryRow runs sql on the current pool. While disconnected the returned row
// reports ErrUnavailable from Scan.
func (m *Manager) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	p := m.Pool()
	if p == nil {
		return errRow{err: ErrUnavailable}
	}
	return p.QueryRow(ctx, sql, args...)
}

// BeginTx starts a transaction on the current pool.
func (m *Manager) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	p := m.Pool()
	if p == nil {
		return nil, ErrUnavailable
	}
	return p.BeginTx(ctx, opts)
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }
