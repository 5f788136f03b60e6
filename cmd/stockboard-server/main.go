package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockboard/internal/config"
	"stockboard/internal/dataset"
	"stockboard/internal/httpapi"
	"stockboard/internal/notify"
	"stockboard/internal/scheduler"
	"stockboard/internal/store"
	"stockboard/internal/util"
)

func main() {
	// Load config.
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// Setup logging.
	var w io.Writer = os.Stdout
	if cfg.Logging.File != "" {
		logFile, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatalf("opening log file: %v", err)
		}
		defer logFile.Close()
		w = io.MultiWriter(os.Stdout, logFile)
	}
	logger := util.NewLoggerTo(w, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Dataset, report history and reload notifications.
	src, err := dataset.NewSource(cfg.Data)
	if err != nil {
		log.Fatalf("creating data source: %v", err)
	}
	cache := dataset.NewCache(src, logger)

	reports, err := store.OpenReportStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening report store: %v", err)
	}
	defer reports.Close()

	hub := notify.NewHub(cfg.Server.AllowOrigin, logger)
	go hub.Run(ctx)
	cache.OnReload(func(s dataset.Snapshot) {
		if err := hub.Broadcast(notify.ReloadMessage(s.PricesVersion, s.PredictionsVersion)); err != nil {
			logger.Warn("broadcasting reload", "error", err)
		}
	})

	// Warm the cache. A failure is not fatal: the producer may not have
	// written the files yet and every request retries the load.
	if _, err := cache.Refresh(ctx); err != nil {
		logger.Warn("initial dataset load failed", "error", err)
	}

	sched := scheduler.New(ctx, cache, reports, cfg.Tickers, logger)
	if err := sched.Register(cfg.Schedule.RefreshCron, cfg.Schedule.SnapshotCron); err != nil {
		log.Fatalf("registering schedule: %v", err)
	}
	sched.Start()

	// Start HTTP server.
	srv := httpapi.NewDashboardServer(cfg, cache, reports, hub, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("stockboard server listening",
			"addr", httpServer.Addr,
			"source", src.Name(),
			"tickers", cfg.Tickers,
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down stockboard server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	sched.Stop()
	slog.Info("stockboard server stopped")
}
