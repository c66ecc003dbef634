package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"iptvprofit/internal/backend"
	"iptvprofit/internal/cli"
	apphttp "iptvprofit/internal/http"
	"iptvprofit/internal/log"
	"iptvprofit/internal/metrics"
	"iptvprofit/internal/presenter"
	"iptvprofit/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	m := metrics.New()
	ledgerOpts := []services.LedgerOption{services.WithRecorder(m)}
	if res.Publisher != nil {
		ledgerOpts = append(ledgerOpts, services.WithPublisher(res.Publisher))
	}
	loc := cfg.Location()

	opts := apphttp.Options{
		Ledger:  services.NewLedgerService(res.Store, ledgerOpts...),
		Reports: services.NewReportService(res.Store, loc),
		Presenter: presenter.New(presenter.Options{
			CurrencySuffix:  cfg.CurrencySuffix,
			Location:        loc,
			PhoneRegion:     cfg.PhoneRegion,
			RefreshInterval: cfg.RefreshInterval,
		}),
		Metrics:            m,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
	}
	if res.Pinger != nil {
		opts.Pinger = res.Pinger
	}

	srv, err := apphttp.NewServer(":"+cfg.Port, opts)
	if err != nil {
		logger.Error("Failed to create server", log.FieldError, err)
		os.Exit(1)
	}
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", log.FieldError, err)
			}
		}
	})

	logger.Info("Starting iptvprofit server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"timezone", loc.String(),
		"amqp_enabled", res.Publisher != nil)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
