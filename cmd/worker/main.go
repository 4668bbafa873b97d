package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/ledgercore/internal/app"
	jobmetrics "github.com/odyssey-erp/ledgercore/internal/jobs"
	"github.com/odyssey-erp/ledgercore/internal/observability"
	"github.com/odyssey-erp/ledgercore/internal/platform/cache"
	"github.com/odyssey-erp/ledgercore/internal/platform/db"
	"github.com/odyssey-erp/ledgercore/jobs"
)

func main() {
	once := flag.Bool("once", false, "run one integrity check in-process and exit")
	flag.Parse()

	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()
	ledger := app.NewLedger(app.LedgerDeps{Config: cfg, Pool: pool, Metrics: metrics, Logger: logger})
	integrity := jobs.NewIntegrityJob(ledger.Accounts, ledger.Vouchers, metrics, logger, jobmetrics.NewMetrics(metrics.Registerer()))
	integrity.Concurrency = cfg.IntegrityConcurrency

	if *once {
		report, err := integrity.Run(ctx, jobs.IntegrityPayload{})
		if err != nil {
			logger.Error("integrity check", slog.Any("error", err))
			os.Exit(1)
		}
		if report.Total() > 0 {
			os.Exit(2)
		}
		return
	}

	var cron []jobs.CronRegistration
	if cfg.IntegrityCron != "" {
		entry, err := jobs.IntegrityCron(cfg.IntegrityCron, cfg.IntegrityConcurrency)
		if err != nil {
			logger.Error("build integrity task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, entry)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: cache.QueueOpt(cfg.RedisAddr),
		Logger:    logger,
		Integrity: integrity,
		Cron:      cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:   logger,
		Config:   cfg,
		Database: pool,
		Metrics:  metrics,
	})
	server := &http.Server{Addr: cfg.WorkerOpsAddr, Handler: router, ReadHeaderTimeout: cfg.OpsReadTimeout}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker ops server", slog.Any("error", err))
		}
	}()
	defer func() { _ = server.Close() }()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
