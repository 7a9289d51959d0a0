package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"emlak-aggregator/internal/app"
	"emlak-aggregator/internal/config"
	"emlak-aggregator/internal/handlers"
	"emlak-aggregator/internal/logging"
	"emlak-aggregator/internal/ratelimit"
)

func main() {
	embedWorker := flag.Bool("worker", false, "run a worker and the maintenance cron inside the api process")
	flag.Parse()

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

	if *embedWorker {
		w := a.Worker()
		w.Start(ctx)
		defer w.Stop()

		sched := a.Maintenance()
		if err := sched.Start(); err != nil {
			logger.Error("failed to start maintenance scheduler", "error", err)
			os.Exit(1)
		}
		defer sched.Stop()
	}

	h := handlers.New(handlers.Options{
		Dispatcher: a.Dispatcher(),
		Store:      a.Store,
		Limiter:    ratelimit.NewRateLimiter(cfg.API.SubmitPerMinute, cfg.API.SubmitPerHour),
		Search:     searcher(a),
		Queue:      a.Queue,
		Logger:     logger,
	})
	if logging.ParseLevel(cfg.Logging.Level) != slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              ":" + cfg.API.Port,
		Handler:           handlers.NewRouter(h, cfg.API),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.API.Port, "embedded_worker", *embedWorker)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
}

// searcher keeps a nil client from becoming a non-nil interface
func searcher(a *app.App) handlers.Searcher {
	if a.Search == nil {
		return nil
	}
	return a.Search
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
