package worker

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/notify"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

// Consumer is the queue side the worker listens on.
type Consumer interface {
	ConsumeNotifications(ctx context.Context, handler func(context.Context, *amqp.NotificationMessage) error) error
	ConsumeChanges(ctx context.Context, handler func(context.Context, *core.ChangeEvent) error) error
}

// Planner plans card reminders.
type Planner interface {
	PlanUser(ctx context.Context, userID string) ([]notify.Notification, error)
	PlanAll(ctx context.Context) (int, error)
}

// ReminderWorker receives queued reminders, holds them in a scheduler until
// their fire time and replans a user's reminders when their cards or
// transactions change.
type ReminderWorker struct {
	consumer     Consumer
	planner      Planner
	scheduler    *notify.Scheduler
	pollInterval time.Duration
	planInterval time.Duration
	logger       *log.Logger
}

func NewReminderWorker(consumer Consumer, planner Planner, scheduler *notify.Scheduler, pollInterval, planInterval time.Duration, logger *log.Logger) *ReminderWorker {
	return &ReminderWorker{
		consumer:     consumer,
		planner:      planner,
		scheduler:    scheduler,
		pollInterval: pollInterval,
		planInterval: planInterval,
		logger:       logger.WithComponent(log.ComponentWorker),
	}
}

// HandleNotification schedules a reminder received from the queue.
func (w *ReminderWorker) HandleNotification(ctx context.Context, msg *amqp.NotificationMessage) error {
	w.logger.InfoContext(ctx, "Processing notification message",
		"id", msg.ID,
		log.FieldUserID, msg.UserID,
		"fire_at", msg.FireAt)

	err := w.scheduler.Schedule(notify.Notification{
		ID:     msg.ID,
		UserID: msg.UserID,
		Title:  msg.Title,
		Body:   msg.Body,
		FireAt: msg.FireAt,
	})
	if errors.Is(err, core.ErrInvalidArgument) {
		// requeueing will not fix a malformed reminder
		w.logger.WarnContext(ctx, "Discarding invalid notification", "id", msg.ID, log.FieldError, err)
		return nil
	}
	return err
}

// HandleChange replans the user's reminders after a write that can move an
// invoice total or closing date.
func (w *ReminderWorker) HandleChange(ctx context.Context, ev *core.ChangeEvent) error {
	if ev.Collection != storage.CollCards && ev.Collection != storage.CollTransactions {
		return nil
	}
	_, err := w.planner.PlanUser(ctx, ev.UserID)
	return err
}

// Run starts every loop of the worker and blocks until ctx is done or one
// of them fails.
func (w *ReminderWorker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		w.scheduler.Run(ctx, w.pollInterval)
		return nil
	})
	g.Go(func() error {
		return ignoreCanceled(w.consumer.ConsumeNotifications(ctx, w.HandleNotification))
	})
	g.Go(func() error {
		return ignoreCanceled(w.consumer.ConsumeChanges(ctx, w.HandleChange))
	})
	g.Go(func() error {
		w.planLoop(ctx)
		return nil
	})

	return g.Wait()
}

func (w *ReminderWorker) planLoop(ctx context.Context) {
	w.planOnce(ctx)

	ticker := time.NewTicker(w.planInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.planOnce(ctx)
		}
	}
}

func (w *ReminderWorker) planOnce(ctx context.Context) {
	n, err := w.planner.PlanAll(ctx)
	if err != nil && ctx.Err() == nil {
		w.logger.ErrorContext(ctx, "Reminder planning finished with errors", log.FieldError, err, log.FieldCount, n)
		return
	}
	w.logger.InfoContext(ctx, "Reminder planning finished", log.FieldCount, n)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

var _ Planner = (*services.NotificationService)(nil)
