// Package app wires the sessiond runtime: config, logging, storage backends,
// the auth HTTP routes and the expiry sweeper.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"sessiond/cmd/identity"
	"sessiond/cmd/internal/auth"
	"sessiond/cmd/internal/auth/api"
	"sessiond/cmd/internal/auth/session"
	"sessiond/cmd/internal/db"
	"sessiond/cmd/internal/db/migrate"
	"sessiond/cmd/security/password"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// dbSchema is the schema created by the embedded migrations.
const dbSchema = "sessiond"

// App owns the HTTP server and every long-lived dependency.
type App struct {
	cfg Config
	log Logger

	registry *prometheus.Registry
	httpm    *httpMetrics
	dbm      *db.Manager
	rdb      redis.UniversalClient

	sweeper *session.Sweeper
	auth    *api.Handler
	checks  []readyCheck
}

// New validates cfg and constructs a fully wired App. Nothing is dialed yet:
// the database connects lazily on the first request or in Run.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pw, err := password.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	a := &App{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.httpm = newHTTPMetrics(a.registry)

	if cfg.DatabaseURL != "" {
		a.dbm = db.NewManager(cfg.dbConfig(), db.WithLogger(log), db.WithRegisterer(a.registry))
		a.checks = append(a.checks, readyCheck{name: "database", check: func(ctx context.Context) error {
			if a.dbm.State() != db.Connected {
				return db.ErrUnavailable
			}
			return a.dbm.Ping(ctx, 2*time.Second)
		}})
	}
	if cfg.RedisAddr != "" {
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.checks = append(a.checks, readyCheck{name: "redis", check: func(ctx context.Context) error {
			return a.rdb.Ping(ctx).Err()
		}})
	}

	users, err := a.userStore(pw)
	if err != nil {
		return nil, err
	}
	sessions, err := a.sessionStore()
	if err != nil {
		return nil, err
	}

	scfg := cfg.sessionConfig()
	codec, err := session.NewCodec(scfg)
	if err != nil {
		return nil, err
	}
	metrics := session.NewMetrics(a.registry)
	engine, err := session.NewEngine(scfg, sessions, codec,
		session.WithLogger(log),
		session.WithMetrics(metrics),
	)
	if err != nil {
		return nil, err
	}
	a.sweeper = session.NewSweeper(engine, cfg.SweepInterval, log, metrics)

	var limiter auth.Limiter = auth.NewMemoryLimiter(nil)
	if a.rdb != nil {
		limiter = auth.NewRedisLimiter(a.rdb, cfg.RedisPrefix+"rl:")
	}
	svc, err := auth.NewService(users, engine,
		auth.WithPasswordConfig(pw),
		auth.WithLimiter(limiter, cfg.loginPolicy()),
		auth.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	apiCfg, err := cfg.apiConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	var gate api.Gate
	if a.dbm != nil {
		gate = a.dbm
	}
	a.auth, err = api.NewHandler(log, svc, gate, apiCfg)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) userStore(pw password.Config) (identity.Store, error) {
	if a.dbm == nil {
		a.log.Warn("db.disabled.inmemory_store")
		return identity.NewMemoryStore(pw), nil
	}
	return identity.NewPostgresStore(a.dbm,
		identity.WithSchema(dbSchema),
		identity.WithPasswordConfig(pw),
		identity.WithLogger(a.log),
	)
}

func (a *App) sessionStore() (session.Store, error) {
	switch a.cfg.SessionBackend {
	case BackendPostgres:
		return session.NewPostgresStore(a.dbm, dbSchema)
	case BackendRedis:
		return session.NewRedisStore(a.rdb, a.cfg.RedisPrefix)
	default:
		return session.NewMemoryStore(), nil
	}
}

// Handler returns the full HTTP handler chain.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.registry, a.checks, a.auth)
	return WithRequestLogging(WithSecurityHeaders(WithCORS(mux, a.cfg.corsOrigins())), a.log, a.httpm)
}

// Run starts the HTTP server and the sweeper and blocks until ctx is cancelled
// or the server fails.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.MigrateOnStart {
		if err := migrate.Up(a.cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		a.log.Info("db.migrate.ok")
	}
	if a.dbm != nil {
		// A down database is not fatal: requests connect lazily through the gate.
		if err := a.dbm.EnsureConnected(ctx, a.cfg.DBWait); err != nil {
			a.log.Warn("db.connect.deferred", "err", err)
		}
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"session_backend", a.cfg.SessionBackend,
		"db_enabled", a.dbm != nil,
		"redis_enabled", a.rdb != nil,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.sweeper.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "err", err)
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		return nil
	})

	err := g.Wait()
	a.Close()
	a.log.Info("server.stopped")
	return err
}

// Close releases the database pool and the Redis client.
func (a *App) Close() {
	if a.dbm != nil {
		a.dbm.Disconnect()
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Warn("redis.close.fail", "err", err)
		}
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
