package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tinynotes/internal/config"
)

var (
	serveAddr  string
	watchFile  bool
	shutdownIn time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the TinyNotes HTTP server.

Examples:
  tinynotes serve
  tinynotes serve --addr :9090
  tinynotes serve --config tinynotes.yaml --watch`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides LISTEN_ADDR)")
	serveCmd.Flags().BoolVar(&watchFile, "watch", false, "reload rate limits when the config file changes")
	serveCmd.Flags().DurationVar(&shutdownIn, "shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if serveAddr != "" {
		cfg.ListenAddr = serveAddr
	}
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	a.limiter.StartJanitor(gctx)
	a.cache.StartJanitor(gctx)

	g.Go(func() error {
		logger.Info("tinynotes listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownIn)
		defer cancel()
		total := a.rateStats.Total()
		logger.Info("shutting down", "rate_allowed", total.Allowed, "rate_denied", total.Denied)
		return srv.Shutdown(shutdownCtx)
	})
	if watchFile {
		if path == "" {
			logger.Warn("--watch ignored: no config file")
		} else {
			g.Go(func() error {
				return config.Watch(gctx, path, logger, a.reload)
			})
		}
	}

	logger.Info("config", "rate_enabled", cfg.RateEnabled, "rps", cfg.RateRPS, "burst", cfg.RateBurst,
		"key_header", cfg.RateKeyHeader, "concurrency_max", cfg.ConcurrencyMax,
		"rate_stats_redis", cfg.RateStats.Enabled, "prometheus", cfg.PrometheusEnabled)

	return g.Wait()
}
