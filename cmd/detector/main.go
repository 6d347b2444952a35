package main

import (
	"context"
	"fmt"
	"fraud_detector/internal/api"
	"fraud_detector/internal/config"
	"fraud_detector/internal/detector"
	"fraud_detector/internal/repository/memory"
	"fraud_detector/internal/service"
	"fraud_detector/pkg/crypto"
	"fraud_detector/pkg/metrics"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const (
	appName = "fraud_detector"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg)
	logger.Info("Starting application",
		slog.String("name", appName),
		slog.String("ingest_mode", string(cfg.IngestMode)))

	metricsCollector := metrics.NewMetricsCollector(logger)
	signer := crypto.NewSigner(cfg.BatchSecret, logger)

	refRepo := memory.NewReferenceRepository()
	if err := seedReferenceData(refRepo, cfg); err != nil {
		logger.Error("Failed to seed reference data", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rules := detector.DefaultRules()
	for _, rule := range rules {
		if r, ok := rule.(*detector.CreditLimitRule); ok {
			r.DefaultLimit = cfg.DefaultCreditLimit
		}
	}
	fraudDetector := detector.NewFraudDetector(rules, logger)
	screener := detector.NewScreener(refRepo, fraudDetector, cfg.IngestMode, logger)

	alertService := service.NewAlertService(
		[]service.Sink{&service.LogSink{Logger: logger}},
		cfg.AlertMinReasons,
		cfg.AlertWorkers,
		logger,
	)

	apiHandler := api.NewAPIHandler(screener, refRepo, metricsCollector, signer, alertService, logger)
	metricsServer := metricsCollector.StartMetricsServer(cfg.MetricsAddr)
	httpServer := startHTTPServer(cfg.HTTPAddr, apiHandler, logger)
	waitForShutdown(logger, httpServer, metricsServer, alertService, metricsCollector)
	logger.Info("Application shutdown complete")
}

func setupLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func seedReferenceData(refRepo *memory.ReferenceRepository, cfg *config.Config) error {
	ctx := context.Background()

	for _, name := range config.SeedFraudMerchants {
		if err := refRepo.AddFraudMerchant(ctx, name); err != nil {
			return err
		}
	}
	for _, name := range config.SeedWhitelistMerchants {
		if err := refRepo.AddWhitelistMerchant(ctx, name); err != nil {
			return err
		}
	}
	for userID, limit := range config.SeedCreditLimits {
		if err := refRepo.SetCreditLimit(ctx, userID, limit); err != nil {
			return err
		}
	}

	return nil
}

func startHTTPServer(addr string, apiHandler *api.APIHandler, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()

	apiHandler.RegisterRoutes(mux)

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"name": "%s", "status": "ok"}`, appName)
	})

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	return server
}

func waitForShutdown(
	logger *slog.Logger,
	httpServer *http.Server,
	metricsServer *http.Server,
	alertService *service.AlertService,
	metricsCollector *metrics.MetricsCollector,
) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
	}

	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("Metrics server shutdown failed", slog.String("error", err.Error()))
	}

	if err := alertService.Shutdown(ctx); err != nil {
		logger.Error("Alert service shutdown failed", slog.String("error", err.Error()))
	}

	if err := metricsCollector.Shutdown(ctx); err != nil {
		logger.Error("Metrics collector shutdown failed", slog.String("error", err.Error()))
	}
}
