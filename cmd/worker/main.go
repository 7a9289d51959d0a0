package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"emlak-aggregator/internal/app"
	"emlak-aggregator/internal/config"
	"emlak-aggregator/internal/logging"
)

func main() {
	configPath := getEnv("CONFIG_PATH", "config.yaml")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config from %s: %v", configPath, err)
	}

	logger, closeLog, err := logging.New(cfg.Logging, os.Stdout)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	sched := a.Maintenance()
	if err := sched.Start(); err != nil {
		logger.Error("failed to start maintenance scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	// pick up leases left behind by a previous run before polling
	if _, err := sched.RunNow(ctx); err != nil {
		logger.Warn("startup maintenance pass failed", "error", err)
	}

	w := a.Worker()
	w.Start(ctx)
	logger.Info("worker running", "worker_id", w.ID())

	<-ctx.Done()
	logger.Info("shutting down", "current_task", w.Current())
	w.Stop()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
