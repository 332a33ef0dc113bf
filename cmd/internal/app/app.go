// Package app wires the Parley server runtime: config, logging, persistence,
// the presence/fan-out core, and the HTTP and WebSocket surfaces.
package app

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"time"

	"parley/cmd/identity"
	"parley/cmd/internal/api"
	"parley/cmd/internal/chat"
	"parley/cmd/internal/social"
	"parley/cmd/internal/storage"
	"parley/cmd/internal/ws"

	"github.com/jackc/pgx/v5/pgxpool"
)

// stores bundles the five persistence boundaries behind one value so memory
// and Postgres modes wire identically.
type stores struct {
	users    chat.UserStore
	groups   chat.GroupStore
	messages chat.MessageStore
	friends  social.FriendStore
	invites  social.InviteStore
}

// App is the server runtime: it owns HTTP server wiring and the chat core's
// dependencies.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool

	gateway *ws.Gateway
	api     *api.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	st, dbPool, dbEnabled, err := newStores(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	secret, err := tokenSecret(cfg, log)
	if err != nil {
		return nil, err
	}
	tokens, err := identity.NewManager(secret, cfg.TokenTTL)
	if err != nil {
		return nil, err
	}
	resolver := identity.NewTokenResolver(tokens, st.users)

	registry := chat.NewRegistry()
	hub := chat.NewHub(log)
	router := chat.NewRouter(log, registry, hub)
	view := chat.NewMembershipView(st.groups, registry)
	lifecycle := chat.NewLifecycle(log, registry, hub, router, st.groups, view)
	chatSvc := chat.NewService(log, st.messages, st.users, st.groups, registry, router)

	socialSvc := social.NewService(log, st.friends, st.invites, st.users, st.groups, router, lifecycle)

	return &App{
		cfg:       cfg,
		log:       log,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		gateway:   ws.NewGateway(log, resolver, lifecycle, chatSvc),
		api:       api.NewHandler(log, st.users, tokens, chatSvc, socialSvc, registry),
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.gateway, a.api)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

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
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if a.dbPool != nil {
		a.dbPool.Close()
	}

	a.log.Info("server.stopped")
	return nil
}

// newStores decides between Postgres-backed persistence and the in-memory
// dev store. Both modes serve all five boundaries from one value.
func newStores(ctx context.Context, cfg Config, log Logger) (stores, *pgxpool.Pool, bool, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		mem := storage.NewMemoryStore()
		return stores{
			users:    mem,
			groups:   mem,
			messages: mem,
			friends:  mem,
			invites:  mem,
		}, nil, false, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return stores{}, nil, false, err
	}

	pg, err := storage.NewPostgresStore(pool, storage.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return stores{}, nil, false, err
	}

	log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)
	return stores{
		users:    pg,
		groups:   pg,
		messages: pg,
		friends:  pg,
		invites:  pg,
	}, pool, true, nil
}

// tokenSecret returns the configured signing secret, or an ephemeral random
// one for dev runs without config. Ephemeral secrets invalidate all tokens on
// restart, which is exactly what an unconfigured deployment deserves.
func tokenSecret(cfg Config, log Logger) ([]byte, error) {
	if cfg.TokenSecret != "" {
		if len(cfg.TokenSecret) < 32 {
			return nil, identity.ErrWeakSecret
		}
		return []byte(cfg.TokenSecret), nil
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	log.Warn("token.secret.ephemeral", "hint", "set PARLEY_TOKEN_SECRET for stable sessions")
	return secret, nil
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
