// Package server wires the HTTP routes and runs the listener.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/overture-extract/internal/core/config"
	"github.com/mohammed-shakir/overture-extract/internal/core/health"
	middleware "github.com/mohammed-shakir/overture-extract/internal/core/middleware"
	"github.com/mohammed-shakir/overture-extract/internal/core/router"
)

// Deps are the handlers' collaborators. A nil Metrics handler falls back to
// the default registry.
type Deps struct {
	Service     router.Service
	Invalidator router.Invalidator
	Ready       health.Checks
	Metrics     http.Handler
	MetricsPath string
}

// NewHandler builds the routed handler.
func NewHandler(cfg config.Config, logger *slog.Logger, d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())
	r.Use(middleware.Metrics())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(d.Ready))
	if cfg.MetricsEnabled {
		mh := d.Metrics
		if mh == nil {
			mh = promhttp.Handler()
		}
		path := d.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, mh)
	}

	r.Get("/catalog", router.HandleCatalog(logger, d.Service))
	r.Get("/download", router.HandleDownload(logger, d.Service))
	r.Post("/manifest/invalidate", router.HandleInvalidate(logger, d.Invalidator))
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, d Deps) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(cfg, logger, d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// downloads read many partitions before the first byte
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
