package notify

import (
	"context"

	"fintrack/internal/log"
)

// LogDispatcher delivers notifications by logging them. The worker uses it
// where no push channel is configured.
type LogDispatcher struct {
	logger *log.Logger
}

func NewLogDispatcher(logger *log.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.WithComponent(log.ComponentNotify)}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, n Notification) error {
	d.logger.InfoContext(ctx, "Notification delivered",
		"id", n.ID,
		log.FieldUserID, n.UserID,
		"title", n.Title,
		"body", n.Body,
		"fire_at", n.FireAt)
	return nil
}
