package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/quarrydata/quarry"
	"github.com/quarrydata/quarry/internal/cli"
	"github.com/quarrydata/quarry/internal/logging"
	httpadapter "github.com/quarrydata/quarry/pkg/adapters/http"
	"github.com/quarrydata/quarry/pkg/observability"
	"github.com/quarrydata/quarry/pkg/ports"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Starts the quarry engine behind a JSON API: POST /ask runs questions,
/events streams run transitions over SSE, /metrics exposes Prometheus
counters, and /graph renders the topology.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.HTTP.Addr, _ = cmd.Flags().GetString("addr")
		}

		level := logging.ParseLevel(cfg.LogLevel)
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			level = slog.LevelDebug
		}
		logger := logging.New(level)

		reg := prometheus.NewRegistry()
		metrics := observability.NewMetrics(reg)
		streams := httpadapter.NewStreamManager()

		eng, cleanup, err := cli.BuildEngine(cfg, logger,
			quarry.WithObserver(ports.MultiObserver{metrics, streams.Observer()}),
			quarry.WithLifecycleHooks(metrics.Hooks()),
		)
		if err != nil {
			return err
		}
		defer cleanup()

		handler := httpadapter.NewHandler(eng,
			httpadapter.WithLogger(logger),
			httpadapter.WithVersion(quarry.Version),
			httpadapter.WithStreams(streams),
			httpadapter.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		)

		srv := &http.Server{
			Addr:    cfg.HTTP.Addr,
			Handler: handler,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			logger.Info("Starting Quarry Server", "addr", srv.Addr, "version", quarry.Version)
			serverErrors <- srv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		// Blocking main and waiting for shutdown.
		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("Start shutdown", "signal", sig.String())

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("Graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("could not stop server: %w", err)
				}
			}
			logger.Info("Quarry Server stopped gracefully")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (overrides config, e.g. :8080)")
}
