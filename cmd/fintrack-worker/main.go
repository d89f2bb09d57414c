package main

import (
	"os"
	"time"

	"fintrack/internal/cli"
	"fintrack/internal/log"
	"fintrack/internal/notify"
	"fintrack/internal/services"
	"fintrack/internal/storage"
	"fintrack/internal/worker"
)

// planInterval is how often every user's card reminders are replanned.
const planInterval = 6 * time.Hour

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.ConfigureLogger(cfg, log.ComponentWorker)

	logger.Info("Starting fintrack-worker")

	amqpClient := cli.InitAMQP(logger, cfg)
	if amqpClient == nil {
		logger.Error("The worker needs a broker, set AMQP_URL")
		os.Exit(1)
	}
	defer amqpClient.Close()

	store := cli.InitStore(logger, cfg.SQLiteDBPath)
	defer store.Close()

	repo := storage.NewRepository(store)
	invoices := services.NewInvoiceService(repo, logger)
	scheduler := notify.NewScheduler(notify.NewLogDispatcher(logger), logger)
	// The worker owns delivery, so planned reminders go straight to its
	// scheduler instead of back onto the queue.
	planner := services.NewNotificationService(repo, invoices, cfg.NotifyLeadDays, nil, scheduler, logger)

	w := worker.NewReminderWorker(amqpClient, planner, scheduler, cfg.NotifyPollInterval, planInterval, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(ctx) }()

	select {
	case err := <-runErr:
		if err != nil {
			logger.Error("Worker stopped", log.FieldError, err)
			os.Exit(1)
		}
	case <-ctx.Done():
		if err := <-runErr; err != nil {
			logger.Error("Worker stopped with error", log.FieldError, err)
		}
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete", "pending", len(scheduler.Pending()))
}
