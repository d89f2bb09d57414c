// Package notify schedules local reminders and plans the card reminders
// derived from invoice cycles.
package notify

import (
	"context"
	"slices"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

const (
	// maxAttempts bounds how often a failing notification is retried.
	maxAttempts = 3
	// retryBackoff is the delay before the first retry; it doubles with
	// every further failure.
	retryBackoff = 30 * time.Second
)

// Notification is a reminder to deliver at FireAt.
type Notification struct {
	ID     string    `json:"id"`
	UserID string    `json:"userId"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	FireAt time.Time `json:"fireAt"`
}

func (n Notification) Validate() error {
	if n.ID == "" {
		return core.InvalidArgument("notification id cannot be empty")
	}
	if n.Title == "" {
		return core.InvalidArgument("notification title cannot be empty")
	}
	if n.FireAt.IsZero() {
		return core.InvalidArgument("notification fire time cannot be zero")
	}
	return nil
}

// Dispatcher delivers a notification to the user.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, n Notification) error

func (f DispatcherFunc) Dispatch(ctx context.Context, n Notification) error { return f(ctx, n) }

// Scheduler holds notifications until their fire time. Scheduling an id
// that is already pending replaces it.
type Scheduler struct {
	mu         sync.Mutex
	pending    map[string]Notification
	failures   map[string]int
	dispatcher Dispatcher
	logger     *log.Logger
	now        func() time.Time
}

func NewScheduler(d Dispatcher, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &Scheduler{
		pending:    make(map[string]Notification),
		failures:   make(map[string]int),
		dispatcher: d,
		logger:     logger.WithComponent(log.ComponentNotify),
		now:        time.Now,
	}
}

func (s *Scheduler) Schedule(n Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.pending[n.ID] = n
	delete(s.failures, n.ID)
	s.mu.Unlock()

	s.logger.Debug("Notification scheduled",
		"id", n.ID, log.FieldUserID, n.UserID, "fire_at", n.FireAt)
	return nil
}

// Cancel drops a pending notification and reports whether it existed.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	delete(s.pending, id)
	delete(s.failures, id)
	return ok
}

// Pending lists the waiting notifications in fire order.
func (s *Scheduler) Pending() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, 0, len(s.pending))
	for _, n := range s.pending {
		out = append(out, n)
	}
	sortByFireTime(out)
	return out
}

// Due removes and returns every notification whose fire time is not after
// now, in fire order.
func (s *Scheduler) Due(now time.Time) []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []Notification
	for id, n := range s.pending {
		if !n.FireAt.After(now) {
			due = append(due, n)
			delete(s.pending, id)
		}
	}
	sortByFireTime(due)
	return due
}

// Run dispatches due notifications every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Notification scheduler started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Notification scheduler stopped", "pending", len(s.Pending()))
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick dispatches the notifications due now and returns how many were
// delivered.
func (s *Scheduler) Tick(ctx context.Context) int {
	delivered := 0
	for _, n := range s.Due(s.now()) {
		if err := s.dispatcher.Dispatch(ctx, n); err != nil {
			s.retry(n, err)
			continue
		}
		s.mu.Lock()
		delete(s.failures, n.ID)
		s.mu.Unlock()
		delivered++
	}
	return delivered
}

func (s *Scheduler) retry(n Notification, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempts := s.failures[n.ID] + 1
	if attempts >= maxAttempts {
		s.logger.Error("Dropping notification after repeated failures",
			log.FieldError, err, "id", n.ID, log.FieldUserID, n.UserID, "attempts", attempts)
		delete(s.failures, n.ID)
		return
	}
	// A newer schedule for the same id wins over the retry.
	if _, exists := s.pending[n.ID]; !exists {
		n.FireAt = s.now().Add(retryBackoff << (attempts - 1))
		s.pending[n.ID] = n
	}
	s.failures[n.ID] = attempts
	s.logger.Warn("Notification dispatch failed, will retry",
		log.FieldError, err, "id", n.ID, "attempts", attempts, "retry_at", n.FireAt)
}

func sortByFireTime(ns []Notification) {
	slices.SortFunc(ns, func(a, b Notification) int {
		if c := a.FireAt.Compare(b.FireAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}
