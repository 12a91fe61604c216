package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/domain"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/queue"
)

// FailureAlerter queues a system notification for the operations recipient
// when a schedule's consecutive failures exhaust its retry budget. It
// implements scheduler.Alerter.
type FailureAlerter struct {
	queue    *queue.Queue
	opsRef   string
	channels []domain.Channel
	logger   *slog.Logger
}

func NewFailureAlerter(q *queue.Queue, opsRef string, channels []domain.Channel, logger *slog.Logger) *FailureAlerter {
	return &FailureAlerter{
		queue:    q,
		opsRef:   opsRef,
		channels: channels,
		logger:   logger.With("component", "failure_alerter"),
	}
}

func (a *FailureAlerter) ScheduleFailing(ctx context.Context, s *domain.ScheduleDefinition, errMsg string) {
	n := &domain.Notification{
		UserRef: a.opsRef,
		Kind:    domain.NotifySystem,
		Subject: fmt.Sprintf("Scraper %q failing", s.Name),
		Body: fmt.Sprintf(
			"Schedule %s (%s) has failed %d consecutive times.\nLast error: %s",
			s.Name, s.ScraperKind, s.FailureCount+1, errMsg,
		),
		Channels:   a.channels,
		MaxRetries: 3,
	}

	// Zero executeAt means leasable immediately.
	if _, err := a.queue.Enqueue(ctx, n, domain.PriorityHigh, time.Time{}); err != nil {
		// Alerting is best effort; the failing schedule already carries its
		// own failure_count for the dashboard.
		a.logger.Error("enqueue failure alert", "schedule_id", s.ID, "error", err)
	}
}
