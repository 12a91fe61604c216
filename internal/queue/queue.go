// Package queue is the priority notification delivery queue: lease one entry
// per worker, recover stale locks, and settle outcomes with retry backoff.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/domain"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/metrics"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/repository"
)

const (
	// DefaultStaleAfter is how long a lock may be held before any worker is
	// allowed to force-release it.
	DefaultStaleAfter = 10 * time.Minute

	// DefaultRetryDelay is the base backoff between delivery attempts.
	DefaultRetryDelay = 5 * time.Minute
)

type Queue struct {
	repo       repository.NotificationQueueRepository
	staleAfter time.Duration
	retryDelay time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

func New(repo repository.NotificationQueueRepository, staleAfter, retryDelay time.Duration, logger *slog.Logger) *Queue {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &Queue{
		repo:       repo,
		staleAfter: staleAfter,
		retryDelay: retryDelay,
		logger:     logger.With("component", "notification_queue"),
		now:        time.Now,
	}
}

// Enqueue stores the notification and makes it leasable at executeAt.
func (q *Queue) Enqueue(ctx context.Context, n *domain.Notification, priority domain.Priority, executeAt time.Time) (*domain.QueueEntry, error) {
	if !priority.Valid() {
		priority = domain.PriorityNormal
	}
	if executeAt.IsZero() {
		executeAt = q.now()
	}
	entry, err := q.repo.Enqueue(ctx, n, priority, executeAt)
	if err != nil {
		return nil, fmt.Errorf("enqueue notification: %w", err)
	}
	q.logger.Info("notification queued",
		"notification_id", entry.NotificationID,
		"kind", n.Kind,
		"priority", priority,
		"execute_at", executeAt,
	)
	return entry, nil
}

// Lease hands the caller at most one entry. Stale locks are reclaimed first on
// every call, so recovery from crashed workers needs no separate sweeper.
func (q *Queue) Lease(ctx context.Context, workerID string) (*domain.QueueEntry, error) {
	now := q.now()

	reclaimed, err := q.repo.ReclaimStale(ctx, now.Add(-q.staleAfter))
	if err != nil {
		// Reclaim failing must not block delivery of healthy entries.
		q.logger.Error("reclaim stale locks", "error", err)
	} else if reclaimed > 0 {
		metrics.StaleLocksReclaimed.Add(float64(reclaimed))
		q.logger.Warn("reclaimed stale queue locks", "count", reclaimed)
	}

	entry, err := q.repo.Lease(ctx, workerID, now)
	if err != nil {
		metrics.QueueLeasesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("lease: %w", err)
	}
	if entry == nil {
		metrics.QueueLeasesTotal.WithLabelValues("empty").Inc()
		return nil, nil
	}

	metrics.QueueLeasesTotal.WithLabelValues("leased").Inc()
	return entry, nil
}

// Complete settles a leased entry. On failure the notification goes back to
// pending with a linearly escalating backoff while retries remain, then stays
// failed terminally. The lock is released either way.
func (q *Queue) Complete(ctx context.Context, entry *domain.QueueEntry, success bool, deliveryErr error) error {
	var errMsg *string
	if deliveryErr != nil {
		msg := deliveryErr.Error()
		errMsg = &msg
	}

	retryAt := q.now().Add(q.backoff(entry))
	if err := q.repo.Complete(ctx, entry.ID, success, errMsg, retryAt); err != nil {
		return fmt.Errorf("complete queue entry: %w", err)
	}

	switch {
	case success:
		metrics.NotificationsCompletedTotal.WithLabelValues("sent").Inc()
	case entry.Notification != nil && entry.Notification.RetryCount+1 < entry.Notification.MaxRetries:
		metrics.NotificationsCompletedTotal.WithLabelValues("retry").Inc()
	default:
		metrics.NotificationsCompletedTotal.WithLabelValues("failed").Inc()
	}
	return nil
}

func (q *Queue) Cancel(ctx context.Context, notificationID string) error {
	return q.repo.Cancel(ctx, notificationID)
}

func (q *Queue) Counts(ctx context.Context) (repository.QueueCounts, error) {
	return q.repo.Counts(ctx)
}

// backoff escalates linearly with the attempts already made.
func (q *Queue) backoff(entry *domain.QueueEntry) time.Duration {
	attempts := 0
	if entry.Notification != nil {
		attempts = entry.Notification.RetryCount
	}
	return q.retryDelay * time.Duration(attempts+1)
}
