package cmd

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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"postraft-facade/internal/logger"
	"postraft-facade/internal/navigation"
	"postraft-facade/internal/notify"
	"postraft-facade/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local HTTP facade",
	Long: `Run the local HTTP facade on FACADE_PORT.

The session is hydrated from the token store in the background; protected
routes wait for it before answering.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// The server logs JSON to stdout like the rest of the platform's services
	level := ""
	if verbose {
		level = "debug"
	}
	appLogger := logger.Init(logger.Options{Level: level, Format: logger.FormatJSON})

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.InfoContext(ctx, "configuration loaded",
		"port", cfg.Port,
		"api_base_url", cfg.APIBaseURL,
		"token_store", cfg.TokenStore,
		"cache_stale_time", cfg.CacheStaleTime.String(),
		"version", version)

	a, err := newApp(cfg, appOptions{
		Registerer: prometheus.DefaultRegisterer,
		Notifier:   notify.Log{Logger: appLogger},
		Navigator:  navigation.ContextNavigator{Logger: appLogger},
		Logger:     appLogger,
	})
	if err != nil {
		return fmt.Errorf("wire facade: %w", err)
	}
	defer a.Close()

	go func() {
		snap := a.sessions.Hydrate(ctx)
		slog.InfoContext(ctx, "session hydrated", "state", snap.State.String())
	}()
	go collectIdle(ctx, a, cfg.CacheGCTime)

	handler := server.NewServer(server.Config{
		Sessions:      a.sessions,
		Resources:     a.resources,
		Cache:         a.cache,
		Breaker:       a.breaker,
		Notifications: a.recorder,
		Gatherer:      prometheus.DefaultGatherer,
	}, appLogger)

	address := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         address,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.UploadTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "starting postraft-facade server", "address", address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("server exited properly")
	return nil
}

// collectIdle drops expired idle cache entries between requests.
func collectIdle(ctx context.Context, a *app, gcTime time.Duration) {
	ticker := time.NewTicker(gcTime / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.cache.Collect(); n > 0 {
				slog.DebugContext(ctx, "collected idle cache entries", "count", n)
			}
		}
	}
}
