// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/dms/internal/api"
	"github.com/starford/dms/internal/docservice"
	"github.com/starford/dms/internal/mcpserver"
	"github.com/starford/dms/internal/scanner"
	"github.com/starford/dms/internal/sse"
	"github.com/starford/dms/internal/watch"
	"github.com/starford/dms/internal/workflow"
)

// Run starts the preview server with the given options: the rendered
// document and the files under the root, the read-only API under /api and
// Prometheus metrics under /metrics. WithWatcher adds auto-rescan.
func Run(ctx context.Context, opts ...Option) error {
	app, err := New(opts...)
	if err != nil {
		return err
	}
	cfg := app.cfg
	logger := app.log
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.HTTP.Address()),
		slog.String("root", app.ws.Root()),
		slog.String("index_file", app.ws.IndexFile),
		slog.String("catalog_path", app.catalogPath()),
		slog.Bool("watch", app.watch),
		slog.String("log_level", cfg.App.LogLevel.String()))

	cat, err := app.openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	svc := docservice.New(app.ws, cat)
	if err := svc.Refresh(ctx); err != nil {
		logger.Warn("initial catalog sync failed", slog.String("error", err.Error()))
	}

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	apiRouter := api.NewRouter(svc, api.RouterConfig{
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
		Events:      broker,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(app.metrics.Middleware)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, ok := app.ws.ReadIndex(); !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"no index"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/metrics", app.metrics.Handler())
	r.Mount("/api", apiRouter)
	r.Handle("/*", previewHandler(app.ws.Root(), app.ws.IndexFile))

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if app.watch {
		g.Go(func() error {
			return watch.Watch(gCtx, app.ws, watch.Options{
				Debounce: cfg.Scan.WatchDebounce,
				Rescan:   func(ctx context.Context) (*workflow.ChangeReport, error) { return scanner.Run(ctx, app.ws) },
				Sink:     broker,
				OnScan: func(rep *workflow.ChangeReport) {
					app.metrics.ObserveScan(rep)
					broker.Publish(sse.Event{Type: sse.ScanCompleted, Data: map[string]int{
						"new":     len(rep.NewFiles),
						"changed": len(rep.ChangedFiles),
						"missing": len(rep.MissingFiles),
					}})
				},
				OnIndex: func() {
					if err := svc.Refresh(gCtx); err != nil {
						logger.Warn("catalog refresh failed", slog.String("error", err.Error()))
					}
					broker.Publish(sse.Event{Type: sse.IndexUpdated, Data: map[string]string{"file": app.ws.IndexFile}})
				},
			})
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.HTTP.Address()))
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

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// previewHandler serves the root as static files with the rendered index at
// "/". Tool-owned dot-files stay private.
func previewHandler(root, indexFile string) http.Handler {
	fs := http.FileServer(http.Dir(root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := path.Clean("/" + r.URL.Path)
		for _, seg := range strings.Split(p, "/") {
			if strings.HasPrefix(seg, ".") {
				http.NotFound(w, r)
				return
			}
		}
		if p == "/" && indexFile != "index.html" {
			r = r.Clone(r.Context())
			r.URL.Path = "/" + indexFile
		}
		fs.ServeHTTP(w, r)
	})
}

// Watch rescans the root on every change until ctx is cancelled, without
// serving anything.
func Watch(ctx context.Context, opts ...Option) error {
	app, err := New(opts...)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return watch.Watch(ctx, app.ws, watch.Options{
		Debounce: app.cfg.Scan.WatchDebounce,
		Rescan:   app.Scan,
		Sink:     logSink{log: app.log},
	})
}

type logSink struct{ log *slog.Logger }

func (s logSink) PublishFileEvent(kind, path string) {
	s.log.Info("file changed", slog.String("op", kind), slog.String("path", path))
}

// ServeMCP serves the catalog tools over stdio until the client disconnects.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := New(opts...)
	if err != nil {
		return err
	}
	cat, err := app.openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	svc := docservice.New(app.ws, cat)
	if err := svc.Refresh(ctx); err != nil {
		app.log.Warn("initial catalog sync failed", slog.String("error", err.Error()))
	}
	app.log.Info("MCP server starting on stdio", slog.String("root", app.ws.Root()))
	return mcpserver.New(svc, app.version).ServeStdio()
}
