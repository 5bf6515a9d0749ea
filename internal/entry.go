// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/othala/internal/api"
	"github.com/starford/othala/internal/identity"
	"github.com/starford/othala/internal/inbox"
	"github.com/starford/othala/internal/mcpserver"
	"github.com/starford/othala/internal/media"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/relay"
	"github.com/starford/othala/internal/saveservice"
	"github.com/starford/othala/internal/sse"
	"github.com/starford/othala/internal/store"
	"github.com/starford/othala/internal/syncer"
)

// stack is everything both entrypoints share: the open store and the
// service graph wired over it.
type stack struct {
	store  *store.Store
	runner *syncer.Runner
	svc    *saveservice.Service
	media  *media.Store
}

func buildStack(ctx context.Context, app *application, logger *slog.Logger) (*stack, error) {
	cfg := app.config

	// Open the record store, on disk or in memory.
	st, err := store.Open(ctx, cfg.SQLite.StorePath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// Seed sync settings on first run; afterwards the API owns them.
	seeded, err := st.SeedSettings(ctx, cfg.Sync.Settings(!cfg.SQLite.DisableLocalStorage))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("seed settings: %w", err)
	}
	if seeded {
		logger.Info("Sync settings seeded from config")
	}

	// Load or create the identity keystore.
	kr := app.keyring
	if kr == nil {
		loaded, created, kerr := identity.LoadOrCreate(cfg.Identity.Keystore, cfg.Identity.Passphrase)
		if kerr != nil {
			st.Close()
			return nil, fmt.Errorf("load keystore: %w", kerr)
		}
		if created {
			logger.Info("Identity created",
				slog.String("keystore", cfg.Identity.Keystore),
				slog.String("public_key", loaded.PublicKey()))
		} else {
			logger.Info("Identity loaded", slog.String("public_key", loaded.PublicKey()))
		}
		kr = loaded
	}

	// Relay pool. An empty pool is fine: pushes defer until a relay is
	// configured.
	clients := app.relays
	if clients == nil {
		for _, u := range cfg.Relays.URLs {
			clients = append(clients, relay.NewHTTPClient(u))
		}
	}
	pool := relay.NewPool(logger, clients, relay.PoolConfig{
		PublishTimeout: time.Duration(cfg.Relays.PublishTimeout),
		QueryTimeout:   time.Duration(cfg.Relays.QueryTimeout),
	})

	// Sync engine and the runner that serializes its work.
	engine := syncer.New(logger, st, pool, kr, syncer.Config{Parallelism: cfg.Sync.Parallelism})
	runner := syncer.NewRunner(logger, engine, cfg.Sync.TickInterval())

	svc := saveservice.NewService(logger, st, kr, engine, runner)

	// Optional media store.
	var mediaStore *media.Store
	if cfg.Media.Dir != "" {
		mediaStore, err = media.NewStore(cfg.Media.Dir)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("init media store: %w", err)
		}
	}

	return &stack{store: st, runner: runner, svc: svc, media: mediaStore}, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Run starts the daemon with the given options: HTTP API, SSE stream,
// sync runner and inbox watcher under one errgroup.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := newLogger(os.Stdout, cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_path", cfg.SQLite.StorePath()),
		slog.Int("relays", len(cfg.Relays.URLs)),
		slog.Bool("inbox", cfg.Inbox.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	s, err := buildStack(ctx, app, logger)
	if err != nil {
		return err
	}
	defer s.store.Close()

	// SSE broker fed by store change notifications.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()
	s.store.Subscribe(func(ch store.Change) {
		op := sse.OpUpdated
		switch {
		case ch.Op == store.OpDelete:
			op = sse.OpDeleted
		case ch.Created:
			op = sse.OpCreated
		case ch.Status == models.StatusSynced || ch.Status == models.StatusPublished:
			// Only the engine writes these statuses on an existing record.
			op = sse.OpSynced
		case ch.Status == models.StatusConflict:
			op = sse.OpConflict
		}
		broker.PublishRecordEvent(op, string(ch.Kind), ch.Slug)
	})

	apiRouter := api.NewRouter(s.svc, s.media, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	// Save bodies reference blobs by absolute /media/ path, so serving
	// stays at the root. Names are content hashes.
	if s.media != nil {
		r.Get("/media/{name}", api.NewMediaHandler(s.media).ServeFile)
	}

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	// Signals cancel the run context so every worker unwinds.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(runCtx)

	// Sync runner owns all relay traffic.
	g.Go(func() error {
		return s.runner.Run(gCtx)
	})

	// Catch up immediately when relay sync is already on.
	if settings, serr := s.store.Settings(ctx); serr == nil && settings.RelaySyncEnabled {
		s.runner.Submit(syncer.Task{Mode: syncer.ModeFull})
	}

	// Inbox watcher turns dropped files into saves.
	if cfg.Inbox.Enabled {
		g.Go(func() error {
			return inbox.Watch(gCtx, s.svc, cfg.Inbox.Path, logger)
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
			cancel()
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Ending the event streams first keeps Shutdown from waiting on
		// open SSE connections.
		broker.Close()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools over stdio, wired to the same stack minus
// HTTP. Logs go to stderr because stdout carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := newLogger(os.Stderr, cfg.App.LogLevel)
	slog.SetDefault(logger)

	s, err := buildStack(ctx, app, logger)
	if err != nil {
		return err
	}
	defer s.store.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return s.runner.Run(gCtx)
	})

	g.Go(func() error {
		// Stdin closing ends the session; unwind the runner with it.
		defer cancel()
		logger.Info("MCP server starting on stdio")
		return mcpserver.New(s.svc, s.media).ServeStdio()
	})

	return g.Wait()
}
