package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bjarke-xyz/retirement-watch/internal/announce"
	"github.com/bjarke-xyz/retirement-watch/internal/api"
	"github.com/bjarke-xyz/retirement-watch/internal/app"
	"github.com/bjarke-xyz/retirement-watch/internal/config"
	"github.com/bjarke-xyz/retirement-watch/internal/jobs"
	"github.com/bjarke-xyz/retirement-watch/internal/repository/db"
	"github.com/bjarke-xyz/retirement-watch/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	cfg, err := config.NewConfig()
	if err != nil {
		log.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appContext := app.AppContext(cfg, log)
	err = app.Initialise(ctx, appContext)
	if err != nil {
		log.Error("Failed to initialise store", "error", err)
		os.Exit(1)
	}
	defer app.Dispose(appContext)

	var backup *storage.Backup
	if cfg.BackupEnabled() && db.DriverName(cfg.ConnectionString()) == db.DriverSqlite {
		backup = storage.NewBackup(appContext, log)
	}

	jobManager := jobs.NewJobManager(log)
	err = jobManager.Cron(cfg.Schedule, announce.JobIdentifier, appContext.Deps.Service.RunJob, true)
	if err != nil {
		log.Error("Failed to schedule announcements", "error", err)
		os.Exit(1)
	}
	if backup != nil {
		err = jobManager.Cron(cfg.BackupSchedule, storage.BackupJobIdentifier, backup.BackupDbAndLogError, true)
		if err != nil {
			log.Error("Failed to schedule backup", "error", err)
			os.Exit(1)
		}
	}
	jobManager.Start()
	defer jobManager.Stop()
	if cfg.RunOnStartup {
		go jobManager.RunJob(ctx, announce.JobIdentifier)
	}

	runMetricsServer(log, cfg.MetricsPort)

	r := api.NewRouter(cfg)
	var backupRunner api.BackupRunner
	if backup != nil {
		backupRunner = backup
	}
	api.NewAPI(appContext, backupRunner, log).Route(r)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}
	go func() {
		log.Info("Listening", "url", "http://localhost:"+cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shut down server", "error", err)
	}
}

func runMetricsServer(log *slog.Logger, port string) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		err := http.ListenAndServe(":"+port, mux)
		if err != nil {
			log.Error("Metrics server failed", "error", err)
		}
	}()
}
