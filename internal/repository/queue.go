package repository

import (
	"context"
	"time"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/domain"
)

// QueueCounts is the operational snapshot exposed on the queue status
// endpoint.
type QueueCounts struct {
	Pending int `json:"pending"`
	Locked  int `json:"locked"`
	Failed  int `json:"failed"`
}

// NotificationQueueRepository persists notifications and their queue entries.
// Lease must be a single atomic find-eligible-and-lock step; a select followed
// by a separate lock write is a race between concurrent dispatchers.
type NotificationQueueRepository interface {
	// Enqueue stores the notification and its queue entry in one transaction.
	Enqueue(ctx context.Context, n *domain.Notification, priority domain.Priority, executeAt time.Time) (*domain.QueueEntry, error)

	// ReclaimStale force-unlocks entries locked before staleBefore,
	// regardless of the original holder, and moves their notifications from
	// "sending" back to "pending" so the entries are leasable again. Returns
	// how many were reclaimed.
	ReclaimStale(ctx context.Context, staleBefore time.Time) (int, error)

	// Lease atomically locks and returns the highest-priority eligible entry
	// (priority rank descending, then execute_at ascending), with its
	// notification populated and flipped to "sending". Returns (nil, nil)
	// when nothing is eligible.
	Lease(ctx context.Context, workerID string, now time.Time) (*domain.QueueEntry, error)

	// Complete releases the lock and settles the notification: sent on
	// success; on failure either pending again at retryAt (retry_count under
	// max_retries) or terminally failed. retryAt is ignored on success.
	Complete(ctx context.Context, entryID string, success bool, errMsg *string, retryAt time.Time) error

	// Cancel marks a pending notification cancelled so it is never leased.
	Cancel(ctx context.Context, notificationID string) error

	Counts(ctx context.Context) (QueueCounts, error)
}
