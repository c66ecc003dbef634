package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-co-op/gocron"

	"iptvprofit/internal/backend"
	"iptvprofit/internal/cli"
	"iptvprofit/internal/log"
	"iptvprofit/internal/metrics"
	"iptvprofit/internal/services"
	"iptvprofit/internal/sheets"
	"iptvprofit/internal/sheets/google"
	"iptvprofit/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting iptvprofit-worker")
	if !cfg.MirrorEnabled() {
		logger.Error("GOOGLE_SPREADSHEET_ID is required for the mirror worker")
		os.Exit(1)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	if backendCfg.Type == backend.MemoryBackend {
		logger.Warn("Memory backend only mirrors this process's own records")
	}
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err)
		os.Exit(1)
	}

	mirror, err := google.NewMirror(log.NewContext(context.Background(), logger), google.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}

	m := metrics.New()
	loc := cfg.Location()
	w := worker.NewMirrorWorker(services.NewReportService(res.Store, loc), mirror, loc,
		worker.WithRecorder(m),
		worker.WithLogger(logger),
		worker.WithSheetNames(sheets.Names{
			Sales:    cfg.GoogleSalesSheet,
			AdSpends: cfg.GoogleAdSpendsSheet,
			Daily:    cfg.GoogleDailySheet,
		}))

	var metricsSrv *http.Server
	if cfg.WorkerMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", m.Handler())
		metricsSrv = &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server error", log.FieldError, err)
			}
		}()
	}

	scheduler := gocron.NewScheduler(loc)
	scheduler.SingletonModeAll()

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		scheduler.Stop()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(ctx)
		}
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", log.FieldError, err)
			}
		}
	})
	ctx = log.NewContext(ctx, logger)

	// Without change notifications every tick rewrites the mirror.
	job := func() {
		if _, err := w.SyncIfDirty(ctx); err != nil {
			logger.Warn("Scheduled mirror sync failed, will retry", log.FieldError, err)
		}
	}
	if res.Publisher == nil {
		logger.Warn("AMQP disabled, mirror is rewritten on every tick", "interval", cfg.SyncInterval)
		job = func() {
			if err := w.Sync(ctx); err != nil {
				logger.Warn("Scheduled mirror sync failed, will retry", log.FieldError, err)
			}
		}
	} else {
		go func() {
			if err := res.Publisher.Consume(ctx, w.HandleChange); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err)
			}
		}()
	}

	if _, err := scheduler.Every(cfg.SyncInterval).Do(job); err != nil {
		logger.Error("Failed to schedule mirror sync", log.FieldError, err)
		os.Exit(1)
	}
	scheduler.StartAsync()
	logger.Info("Mirror worker running",
		"interval", cfg.SyncInterval,
		"spreadsheet_id", cfg.GoogleSpreadsheetID)

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
