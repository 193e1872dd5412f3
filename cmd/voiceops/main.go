package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voiceops/voiceops/internal/api"
	"github.com/voiceops/voiceops/internal/config"
	"github.com/voiceops/voiceops/internal/database"
	"github.com/voiceops/voiceops/internal/database/pgstore"
	"github.com/voiceops/voiceops/internal/gateway"
	"github.com/voiceops/voiceops/internal/metrics"
	"github.com/voiceops/voiceops/internal/siptest"
	"github.com/voiceops/voiceops/internal/telephony"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting voiceops",
		"http_port", cfg.HTTPPort,
		"gateway_url", cfg.GatewayURL,
		"sip_domain", cfg.SIPDomain(),
	)

	// Open the call ledger. PostgreSQL when a URL is configured, embedded
	// SQLite otherwise.
	repo, closer, err := openLedger(cfg)
	if err != nil {
		slog.Error("failed to open call ledger", "error", err)
		os.Exit(1)
	}
	defer closer.Close()

	// Gateway client and the services on top of it.
	gw := gateway.NewClient(cfg.GatewayURL, cfg.GatewayAPIKey, cfg.GatewayAPISecret)
	trunks := telephony.NewTrunkService(gw, cfg.SIPDomain())
	rules := telephony.NewRuleService(gw)
	calls := telephony.NewCallService(gw, repo)

	// SIP OPTIONS prober for trunk reachability checks. Non-fatal: the
	// probe endpoint reports unavailable if the local UA cannot start.
	prober, err := siptest.NewProber(logger)
	if err != nil {
		slog.Warn("sip prober unavailable", "error", err)
		prober = nil
	} else {
		defer prober.Close()
	}

	// Prometheus registry with ledger and process collectors.
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		metrics.NewCollector(repo, time.Now()),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	handler, err := api.NewServer(cfg, trunks, rules, calls, prober, metricsHandler)
	if err != nil {
		slog.Error("failed to create http server", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Graceful shutdown with timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("voiceops stopped")
}

// openLedger selects the ledger backend from configuration.
func openLedger(cfg *config.Config) (database.CallRecordRepository, io.Closer, error) {
	if cfg.DatabaseURL != "" {
		store, err := pgstore.New(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	}
	db, err := database.Open(cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}
	return database.NewCallRecordRepository(db), db, nil
}
