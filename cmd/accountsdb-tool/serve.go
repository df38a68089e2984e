package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/magicblock-labs/go-accountsdb/pkg/log"
	"github.com/magicblock-labs/go-accountsdb/pkg/metrics"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open the database and expose metrics/health endpoints until interrupted",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	db, cfg, err := openDB(cmd)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	metrics.SetVersion(Version)
	metrics.RegisterComponent("storage", true, "opened")
	metrics.RegisterComponent("index", true, "opened")
	metrics.RegisterComponent("snapshot", true, "opened")

	collector := metrics.NewCollector(db)
	collector.Start()
	defer collector.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())

	errCh := make(chan error, 1)
	server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	logger := log.WithComponent("accountsdb-tool")
	logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics endpoint listening")
	logger.Info().Str("data_dir", cfg.DataDir).Msg("accounts database open, press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("serve failed")
	}

	return server.Close()
}
