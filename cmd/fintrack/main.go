package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/cli"
	"fintrack/internal/core"
	"fintrack/internal/export"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
	"fintrack/internal/notify"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.ConfigureLogger(cfg, log.ComponentApp)

	store := cli.InitStore(logger, cfg.SQLiteDBPath)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := storage.NewRepository(store)
	periods := services.NewPeriodService(repo, services.PeriodDefaults{
		StartDay: cfg.FinancialStartDay,
		Range:    cfg.PeriodRange,
		Locale:   cfg.Locale,
	})
	invoices := services.NewInvoiceService(repo, logger)

	projections := cache.NewLRUCache[core.ReserveHistoryResult](cfg.CacheSize, cfg.CacheTTL)
	cacheManager := cache.NewManager(logger.WithComponent(log.ComponentCache))
	cacheManager.Register(projections)
	go cacheManager.Run(ctx, cfg.CacheTTL)

	reserves := services.NewReserveService(repo, periods, projections, logger)
	go reserves.Watch(ctx, store)

	// With a broker, reminders and change events go to the worker. Without
	// one, reminders are dispatched by a scheduler inside this process.
	var (
		publisher services.NotificationPublisher
		scheduler *notify.Scheduler
	)
	if amqpClient := cli.InitAMQP(logger, cfg); amqpClient != nil {
		defer amqpClient.Close()
		store.SetPublisher(amqpClient)
		publisher = amqpClient
	} else {
		scheduler = notify.NewScheduler(notify.NewLogDispatcher(logger), logger)
		go scheduler.Run(ctx, cfg.NotifyPollInterval)
	}
	notifications := services.NewNotificationService(repo, invoices, cfg.NotifyLeadDays, publisher, scheduler, logger)

	var sheets *export.SheetsExporter
	if cfg.GoogleSpreadsheetID != "" {
		gs, err := export.NewGoogleSheets(ctx, cfg.GoogleSpreadsheetID)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		sheets = export.NewSheetsExporter(gs, cfg.GoogleExportSheet)
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Services{
		Store:         store,
		Periods:       periods,
		Invoices:      invoices,
		Reserves:      reserves,
		Dashboard:     services.NewDashboardService(repo, periods, logger),
		Notifications: notifications,
		Export:        services.NewExportService(repo, periods, sheets, logger),
	}, apphttp.Limits{WritesPerMinute: cfg.WriteRatePerMinute, MaxPeriodDays: cfg.MaxPeriodDays}, logger)

	runCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cancel()
	})

	logger.Info("Starting fintrack server", "port", cfg.Port, "db", cfg.SQLiteDBPath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(runCtx, done)
	logger.Info("Server stopped gracefully")
}
