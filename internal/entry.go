// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/bones/internal/api"
	"github.com/starford/bones/internal/mcpserver"
	"github.com/starford/bones/internal/metrics"
	"github.com/starford/bones/internal/queryview"
	"github.com/starford/bones/internal/sse"
	"github.com/starford/bones/internal/vibeservice"
)

// Run starts the HTTP service with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("version", app.version),
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("zone", cfg.Zone.Name),
		slog.Bool("stream_enabled", cfg.Stream.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// The notifier only fires on writes, which start after the broker exists.
	var broker *sse.Broker
	c, err := newCore(cfg, logger, vibeservice.WithNotifier(func(view queryview.Result) {
		broker.PublishVibe(view)
	}))
	if err != nil {
		return err
	}

	// SSE broker.
	broker = newBroker(c)
	defer broker.Close()

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newHTTPHandler(cfg, c, broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start stream ingestion.
	g.Go(func() error {
		return c.runIngest(gCtx, cfg, logger)
	})

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
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Close SSE subscribers first so Shutdown does not wait on open streams.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group once the server is down so the ingester stops.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr since stdout
// carries the protocol. The stream ingester runs alongside when enabled.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	c, err := newCore(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := c.runIngest(ctx, cfg, logger); err != nil {
			logger.Error("ingest stopped", slog.String("error", err.Error()))
		}
	}()

	return mcpserver.New(c.svc, app.version).ServeStdio()
}

// newBroker creates the SSE broker. New subscribers get the view as of the
// moment they connect.
func newBroker(c *core) *sse.Broker {
	return sse.NewBroker(15*time.Second, sse.WithSnapshot(func() any {
		return c.svc.GetCurrentView(context.Background())
	}))
}

// newHTTPHandler builds the root router: health probes, metrics, the JSON API
// under /api and the HTML page at /.
func newHTTPHandler(cfg *Config, c *core, broker *sse.Broker) http.Handler {
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
	// Ready stays 200 whatever the ingester is doing: the last stored reading
	// is always servable.
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "ok",
			"ingest": c.ingestState(),
		})
	})

	r.Handle("/metrics", metrics.Handler(c.registry))

	// Mount API routes under /api.
	r.Mount("/api", api.NewRouter(c.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, cfg.RateLimit.Limits(), broker))

	r.Method(http.MethodGet, "/", api.NewPageHandler(c.svc))

	return r
}
