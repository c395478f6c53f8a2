// Package app wires the game server runtime: config, logging, storage,
// HTTP routes and the realtime gateway.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dwbrown115/GameServer/cmd/identity"
	authapi "github.com/dwbrown115/GameServer/cmd/internal/auth/api"
	"github.com/dwbrown115/GameServer/cmd/internal/auth/session"
	"github.com/dwbrown115/GameServer/cmd/internal/metrics"
	"github.com/dwbrown115/GameServer/cmd/internal/realtime"
	"github.com/dwbrown115/GameServer/cmd/security/password"
)

// App owns the HTTP server wiring and every long-lived dependency,
// including the connection registry.
type App struct {
	cfg Config
	log Logger

	dbPool *pgxpool.Pool

	metrics  *metrics.Collectors
	registry *realtime.Registry
	ws       *realtime.WSGateway
	auth     *authapi.Handler

	handler http.Handler
}

// stores is the persistence set selected at startup.
type stores struct {
	users    identity.Store
	sessions session.Store
	logs     realtime.SessionLogStore
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}

	st, dbPool, err := newStores(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok && dbPool != nil {
			dbPool.Close()
		}
	}()

	m := metrics.New()

	users, err := identity.NewService(st.users, pwCfg, log)
	if err != nil {
		return nil, err
	}
	sessions, err := session.NewService(sessCfg, st.sessions,
		session.WithLogger(log),
		session.WithObserver(m),
	)
	if err != nil {
		return nil, err
	}

	registry := realtime.NewRegistry(log, m.Connections())
	ws := realtime.NewWSGateway(log, st.logs, registry, realtime.GatewayConfigFromEnv())
	binder := realtime.NewBinder(sessions, st.logs, log)

	auth, err := authapi.NewHandler(log, authapi.LoadConfigFromEnv(), users, sessions, authapi.WithBinder(binder))
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		log:      log,
		dbPool:   dbPool,
		metrics:  m,
		registry: registry,
		ws:       ws,
		auth:     auth,
	}

	mux := http.NewServeMux()
	registerHTTP(mux, log, cfg, dbPool, ws, auth, m)
	a.handler = WithRequestLogging(WithSecurityHeaders(m.InstrumentHandler(mux)), log)

	ok = true
	return a, nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbPool != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		a.Close(context.Background())
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
	}
	a.Close(shutdownCtx)

	a.log.Info("server.stopped")
	return err
}

// Close releases live connections, waits for their teardown and closes the
// DB pool. It is safe to call once the HTTP server stopped accepting.
func (a *App) Close(ctx context.Context) {
	if n := a.registry.CloseAll(ctx); n > 0 {
		a.log.Info("realtime.registry.closed", "count", n)
	}
	if err := a.ws.Wait(ctx); err != nil {
		a.log.Warn("realtime.drain.timeout", "err", err)
	}
	if a.dbPool != nil {
		a.dbPool.Close()
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

// newStores decides between Postgres-backed persistence and the in-memory dev stores.
func newStores(ctx context.Context, cfg Config, log Logger) (stores, *pgxpool.Pool, error) {
	wrapper, err := KeyWrapperFromConfig(cfg)
	if err != nil {
		return stores{}, nil, err
	}

	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		if wrapper.Enabled() {
			log.Info("security.key_wrap.ignored", "reason", "in-memory store")
		}
		return stores{
			users:    identity.NewMemoryStore(),
			sessions: session.NewMemoryStore(),
			logs:     realtime.NewMemorySessionLogStore(),
		}, nil, nil
	}

	if err := RunMigrations(cfg, log); err != nil {
		return stores{}, nil, err
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return stores{}, nil, err
	}
	log.Info("db.enabled.postgres_store", "key_wrap", wrapper.Enabled())

	users, err := identity.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return stores{}, nil, err
	}
	sessions, err := session.NewPostgresStore(pool, session.WithKeyWrapper(wrapper), session.WithStoreLogger(log))
	if err != nil {
		pool.Close()
		return stores{}, nil, err
	}
	logs, err := realtime.NewPostgresSessionLogStore(pool, "")
	if err != nil {
		pool.Close()
		return stores{}, nil, err
	}

	return stores{users: users, sessions: sessions, logs: logs}, pool, nil
}
