package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/log"
	"fintrack/internal/notify"
	"fintrack/internal/storage"
)

// NotificationPublisher queues reminders for the worker.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, msg *amqp.NotificationMessage) error
}

// NotificationService plans card reminders and hands them to the worker
// through AMQP, or to a local scheduler when no broker is configured.
type NotificationService struct {
	repo      *storage.Repository
	invoices  *InvoiceService
	planner   notify.Planner
	publisher NotificationPublisher
	scheduler *notify.Scheduler
	logger    *log.Logger
	now       func() time.Time
}

func NewNotificationService(repo *storage.Repository, invoices *InvoiceService, leadDays int, publisher NotificationPublisher, scheduler *notify.Scheduler, logger *log.Logger) *NotificationService {
	return &NotificationService{
		repo:      repo,
		invoices:  invoices,
		planner:   notify.Planner{LeadDays: leadDays},
		publisher: publisher,
		scheduler: scheduler,
		logger:    logger.WithComponent(log.ComponentNotify),
		now:       time.Now,
	}
}

// PlanUser plans and delivers the reminders of one user.
func (s *NotificationService) PlanUser(ctx context.Context, userID string) ([]notify.Notification, error) {
	cards, err := s.repo.Cards(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	totals, err := s.invoices.OpenTotals(ctx, userID, cards, now)
	if err != nil {
		return nil, err
	}
	planned, err := s.planner.Plan(userID, cards, totals, now)
	if err != nil {
		return nil, err
	}

	for _, n := range planned {
		if err := s.deliver(ctx, n); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", n.ID, err)
		}
	}
	s.logger.InfoContext(ctx, "Planned card reminders",
		log.FieldUserID, userID,
		log.FieldOperation, log.OpSchedule,
		log.FieldCount, len(planned))
	return planned, nil
}

// PlanAll plans reminders for every user. A failing user is logged and
// skipped; the joined errors are returned at the end.
func (s *NotificationService) PlanAll(ctx context.Context) (int, error) {
	users, err := s.repo.Store().Users(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	var errs []error
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		planned, err := s.PlanUser(ctx, u)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to plan reminders", log.FieldUserID, u, log.FieldError, err)
			errs = append(errs, fmt.Errorf("user %s: %w", u, err))
			continue
		}
		total += len(planned)
	}
	return total, errors.Join(errs...)
}

// Schedule delivers one notification built from a queued message.
func (s *NotificationService) Schedule(ctx context.Context, msg *amqp.NotificationMessage) error {
	if s.scheduler == nil {
		return ErrUnavailable
	}
	return s.scheduler.Schedule(notify.Notification{
		ID:     msg.ID,
		UserID: msg.UserID,
		Title:  msg.Title,
		Body:   msg.Body,
		FireAt: msg.FireAt,
	})
}

func (s *NotificationService) deliver(ctx context.Context, n notify.Notification) error {
	if s.publisher != nil {
		return s.publisher.PublishNotification(ctx,
			amqp.NewNotificationMessage(n.ID, n.UserID, n.Title, n.Body, n.FireAt))
	}
	if s.scheduler != nil {
		return s.scheduler.Schedule(n)
	}
	s.logger.WarnContext(ctx, "No notification channel configured, skipping reminder", "id", n.ID)
	return nil
}
