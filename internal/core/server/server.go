package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/netutil"

	"github.com/mohammed-shakir/pctile-server/internal/core/config"
	"github.com/mohammed-shakir/pctile-server/internal/core/health"
	middleware "github.com/mohammed-shakir/pctile-server/internal/core/middleware"
	"github.com/mohammed-shakir/pctile-server/internal/core/router"
	"github.com/mohammed-shakir/pctile-server/internal/metrics"
)

// APIRouter serves the tile API. Every GET path belongs to the API, so no
// other endpoints are mounted here.
func APIRouter(logger *slog.Logger, cfg config.Config, sub router.Submitter) http.Handler {
	r := chi.NewRouter()
	r.Use(apiMiddleware(logger)...)

	h := router.Handler(logger, cfg, sub)
	r.Get("/", h)
	r.Get("/*", h)
	return r
}

// apiMiddleware wraps API handlers. Recover runs inside Logging so panic
// logs carry the request id.
func apiMiddleware(logger *slog.Logger) chi.Middlewares {
	return chi.Chain(
		middleware.CORS(),
		middleware.Logging(logger),
		middleware.Recover(logger),
	)
}

// OpsRouter serves metrics and health probes.
func OpsRouter(p *metrics.Provider, rr health.ReadinessReporter) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(rr))
	r.Method(http.MethodGet, "/metrics", p.Handler())
	return r
}

// Run listens on cfg.Addr and serves the API until ctx is cancelled.
// At most twice the worker count of connections are accepted at once.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, handler http.Handler) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	ln = netutil.LimitListener(ln, 2*cfg.Workers)
	return Serve(ctx, ln, cfg, logger, handler)
}

// RunOps serves the ops endpoints on cfg.OpsAddr.
func RunOps(ctx context.Context, cfg config.Config, logger *slog.Logger, handler http.Handler) error {
	ln, err := net.Listen("tcp", cfg.OpsAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.OpsAddr, err)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return serve(ctx, ln, srv, cfg.ShutdownTimeout, logger.With("listener", "ops"))
}

// Serve runs the API server on ln. Each connection carries one request.
func Serve(ctx context.Context, ln net.Listener, cfg config.Config, logger *slog.Logger, handler http.Handler) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
	}
	if cfg.RequestTimeout > 0 {
		srv.WriteTimeout = cfg.RequestTimeout + 5*time.Second
	}
	srv.SetKeepAlivesEnabled(false)
	return serve(ctx, ln, srv, cfg.ShutdownTimeout, logger.With("listener", "api"))
}

func serve(ctx context.Context, ln net.Listener, srv *http.Server, shutdownTimeout time.Duration, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", ln.Addr().String())
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		if shutdownTimeout <= 0 {
			shutdownTimeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown incomplete", "err", err)
			_ = srv.Close()
		}
		return nil
	case err := <-errCh:
		return err
	}
}
