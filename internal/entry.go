// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/tramites/internal/api"
	"github.com/starford/tramites/internal/collection"
	"github.com/starford/tramites/internal/metrics"
	"github.com/starford/tramites/internal/sse"
	"github.com/starford/tramites/internal/storage"
	"github.com/starford/tramites/internal/tramite"
)

const attentionRefresh = time.Minute

// NewLogger builds the structured JSON logger used by every command.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	if app.now == nil {
		app.now = time.Now
	}

	cfg := app.config

	logger := NewLogger(os.Stdout, cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_driver", cfg.Storage.Driver),
		slog.String("storage_path", cfg.Storage.Path),
		slog.Int("warning_days", cfg.Lifecycle.WarningDays),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initialize storage.
	adapter := app.adapter
	if adapter == nil {
		a, closeFn, err := OpenStorage(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		defer closeFn()
		adapter = a
	}

	m := metrics.New()
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	svc, err := tramite.Open(ctx, adapter,
		collection.WithLogger(logger),
		collection.WithClock(app.now),
		collection.WithObserver(m),
		collection.WithObserver(broker),
	)
	if err != nil {
		return fmt.Errorf("load collections: %w", err)
	}
	logger.Info("Collections loaded",
		slog.Int("tramites", svc.Tramites.Len()),
		slog.Int("fechas", svc.Fechas.Len()),
		slog.Int("estados", svc.Estados.Len()))

	window := cfg.Lifecycle.WarningWindow()
	refreshAttention := func(items []tramite.AttentionItem) {
		m.SetAttention(attentionCounts(items))
	}

	apiRouter := api.NewRouter(svc, api.Options{
		AuthEnabled:   cfg.Auth.AuthEnabled(),
		Token:         cfg.Auth.Token,
		Events:        broker,
		Now:           app.now,
		WarningWindow: window,
		OnAttention:   refreshAttention,
	})

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check and metrics endpoints (unauthenticated).
	api.Health(r, func(ctx context.Context) error {
		_, err := adapter.Load(ctx, tramite.KeyTramites)
		return err
	})
	r.Handle("/metrics", m.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	// Cancelling runCtx stops background work and ends open event streams.
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return runCtx },
	}

	g, gCtx := errgroup.WithContext(runCtx)

	// Reload collections edited on disk.
	if fs, ok := adapter.(*storage.FS); ok && cfg.Watch.Enabled {
		g.Go(func() error {
			return storage.Watch(gCtx, fs, logger, func(key string) {
				if err := svc.Reload(gCtx, key); err != nil {
					logger.Warn("reload failed", slog.String("key", key), slog.String("error", err.Error()))
				}
			})
		})
	}

	// Keep the attention gauge current between API calls.
	g.Go(func() error {
		ticker := time.NewTicker(attentionRefresh)
		defer ticker.Stop()
		for {
			refreshAttention(svc.Attention(app.now(), window))
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
			}
		}
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
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
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

// attentionCounts counts items per priority, reporting zero for empty ones.
func attentionCounts(items []tramite.AttentionItem) map[string]int {
	counts := map[string]int{
		string(tramite.PriorityHigh):   0,
		string(tramite.PriorityMedium): 0,
		string(tramite.PriorityLow):    0,
	}
	for _, it := range items {
		counts[string(it.Priority)]++
	}
	return counts
}
