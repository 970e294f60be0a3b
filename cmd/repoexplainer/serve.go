package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	cfhttp "github.com/BaoNguyen09/repo-explainer/internal/adapter/http"
	cfotel "github.com/BaoNguyen09/repo-explainer/internal/adapter/otel"
	"github.com/BaoNguyen09/repo-explainer/internal/adapter/ws"
	"github.com/BaoNguyen09/repo-explainer/internal/middleware"
)

const shutdownTimeout = 10 * time.Second

var serveFlags struct {
	port string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the explanation HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveFlags.port, "port", "p", "", "override server.port")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, flush, err := setup(os.Stdout)
	if err != nil {
		return err
	}
	defer flush()
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = serveFlags.port
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTEL, err := cfotel.Setup(ctx, cfg.OTEL, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTEL(sctx); err != nil {
			slog.Warn("otel shutdown failed", "error", err)
		}
	}()
	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	a, err := newApp(ctx, cfg, metrics)
	if err != nil {
		return err
	}
	defer a.Close()

	stopJanitor := a.results.StartJanitor(cfg.Cache.CleanupInterval)
	defer stopJanitor()

	limiter := middleware.NewRateLimiter(middleware.PerDay(cfg.Rate.RequestsPerDay), cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	origins := cfg.Server.CORSOriginList()
	handlers := &cfhttp.Handlers{
		Explainer:    a.svc,
		WS:           ws.NewHandler(a.svc, origins),
		CacheBackend: cfg.Cache.Backend,
		Version:      version,
		Checks:       a.checks,
	}

	r := chi.NewRouter()
	r.Use(cfhttp.SecurityHeaders)
	r.Use(cfhttp.CORS(origins))
	r.Use(middleware.RequestID)
	r.Use(cfhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cfotel.HTTPMiddleware(cfg.Logging.Service))
	cfhttp.MountRoutes(r, handlers, cfhttp.RouteOptions{
		RateLimit:      limiter.Handler,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Streams and explanations outlive any fixed write deadline; the
		// request timeout middleware bounds the non-streaming routes.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
