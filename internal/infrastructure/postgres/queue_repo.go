package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/domain"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const notificationColumns = `
	id, user_ref, kind, subject, body, channels, status,
	retry_count, max_retries, scheduled_at, sent_at, error_message, created_at`

const entryColumns = `
	id, notification_id, priority, execute_at, is_locked, locked_at, worker_id, created_at`

type NotificationQueueRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewNotificationQueueRepository(pool *pgxpool.Pool, logger *slog.Logger) *NotificationQueueRepository {
	return &NotificationQueueRepository{pool: pool, logger: logger.With("component", "queue_repo")}
}

func (r *NotificationQueueRepository) Enqueue(ctx context.Context, n *domain.Notification, priority domain.Priority, executeAt time.Time) (*domain.QueueEntry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	channels := make([]string, len(n.Channels))
	for i, c := range n.Channels {
		channels[i] = string(c)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO notifications (user_ref, kind, subject, body, channels, max_retries, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING`+notificationColumns,
		n.UserRef, n.Kind, n.Subject, n.Body, channels, n.MaxRetries, n.ScheduledAt)

	stored, err := scanNotification(row)
	if err != nil {
		return nil, err
	}

	entryRow := tx.QueryRow(ctx, `
		INSERT INTO queue_entries (notification_id, priority, execute_at)
		VALUES ($1, $2, $3)
		RETURNING`+entryColumns,
		stored.ID, priority, executeAt)

	entry, err := scanEntry(entryRow)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	entry.Notification = stored
	return entry, nil
}

// ReclaimStale force-unlocks entries whose lock predates staleBefore. Any
// worker may reclaim any lock: a lock that old belongs to a crashed holder.
// The wrapped notification went to 'sending' when the lock was taken, so it
// is moved back to 'pending' in the same statement; without that the
// unlocked entry would never match the lease eligibility predicate again.
func (r *NotificationQueueRepository) ReclaimStale(ctx context.Context, staleBefore time.Time) (int, error) {
	var reclaimed int
	err := r.pool.QueryRow(ctx, `
		WITH unlocked AS (
			UPDATE queue_entries
			SET    is_locked = FALSE, locked_at = NULL, worker_id = NULL
			WHERE  is_locked AND locked_at < $1
			RETURNING notification_id
		), reset AS (
			UPDATE notifications
			SET    status = 'pending', updated_at = NOW()
			WHERE  id IN (SELECT notification_id FROM unlocked)
			  AND  status = 'sending'
		)
		SELECT COUNT(*) FROM unlocked`, staleBefore).Scan(&reclaimed)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale locks: %w", err)
	}
	return reclaimed, nil
}

// Lease picks and locks the best eligible entry in one statement. The inner
// select orders by an explicit priority rank — ordering by the priority string
// itself would sort "high" below "low" — and FOR UPDATE SKIP LOCKED keeps two
// dispatchers from fighting over the same row.
func (r *NotificationQueueRepository) Lease(ctx context.Context, workerID string, now time.Time) (*domain.QueueEntry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE queue_entries
		SET    is_locked = TRUE, locked_at = NOW(), worker_id = $1
		WHERE  id = (
			SELECT qe.id
			FROM   queue_entries qe
			JOIN   notifications n ON n.id = qe.notification_id
			WHERE  NOT qe.is_locked
			  AND  qe.execute_at <= $2
			  AND  n.status = 'pending'
			ORDER BY CASE qe.priority
				WHEN 'urgent' THEN 3
				WHEN 'high'   THEN 2
				WHEN 'normal' THEN 1
				ELSE 0
			END DESC, qe.execute_at ASC
			LIMIT 1
			FOR UPDATE OF qe SKIP LOCKED
		)
		RETURNING`+entryColumns, workerID, now)

	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, errEntryNotFound) {
			return nil, nil // nothing eligible
		}
		return nil, err
	}

	nRow := tx.QueryRow(ctx, `
		UPDATE notifications SET status = 'sending', updated_at = NOW()
		WHERE id = $1
		RETURNING`+notificationColumns, entry.NotificationID)

	n, err := scanNotification(nRow)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	entry.Notification = n
	return entry, nil
}

// Complete releases the lock unconditionally and settles the notification:
// sent on success, otherwise pending again at retryAt while retries remain,
// terminally failed after that.
func (r *NotificationQueueRepository) Complete(ctx context.Context, entryID string, success bool, errMsg *string, retryAt time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var notificationID string
	err = tx.QueryRow(ctx, `
		UPDATE queue_entries
		SET    is_locked = FALSE, locked_at = NULL, worker_id = NULL
		WHERE  id = $1
		RETURNING notification_id`, entryID).Scan(&notificationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotificationNotFound
		}
		return fmt.Errorf("release queue lock: %w", err)
	}

	if success {
		_, err = tx.Exec(ctx, `
			UPDATE notifications
			SET    status = 'sent', sent_at = NOW(), error_message = NULL, updated_at = NOW()
			WHERE  id = $1`, notificationID)
		if err != nil {
			return fmt.Errorf("mark notification sent: %w", err)
		}
	} else {
		var status domain.NotificationStatus
		err = tx.QueryRow(ctx, `
			UPDATE notifications
			SET    retry_count   = retry_count + 1,
			       status        = CASE WHEN retry_count + 1 < max_retries THEN 'pending' ELSE 'failed' END,
			       error_message = $2,
			       updated_at    = NOW()
			WHERE  id = $1
			RETURNING status`, notificationID, errMsg).Scan(&status)
		if err != nil {
			return fmt.Errorf("mark notification failed: %w", err)
		}

		if status == domain.NotificationPending {
			// Retry granted: push the entry out to its backoff slot.
			if _, err = tx.Exec(ctx,
				`UPDATE queue_entries SET execute_at = $2 WHERE id = $1`,
				entryID, retryAt); err != nil {
				return fmt.Errorf("set retry time: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *NotificationQueueRepository) Cancel(ctx context.Context, notificationID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`, notificationID)
	if err != nil {
		return fmt.Errorf("cancel notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

func (r *NotificationQueueRepository) Counts(ctx context.Context) (repository.QueueCounts, error) {
	var c repository.QueueCounts
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM queue_entries qe
			 JOIN notifications n ON n.id = qe.notification_id
			 WHERE NOT qe.is_locked AND n.status = 'pending'),
			(SELECT COUNT(*) FROM queue_entries WHERE is_locked),
			(SELECT COUNT(*) FROM notifications WHERE status = 'failed')`,
	).Scan(&c.Pending, &c.Locked, &c.Failed)
	if err != nil {
		return repository.QueueCounts{}, fmt.Errorf("queue counts: %w", err)
	}
	return c, nil
}

var errEntryNotFound = errors.New("queue entry not found")

func scanEntry(row rowScanner) (*domain.QueueEntry, error) {
	var e domain.QueueEntry
	err := row.Scan(
		&e.ID, &e.NotificationID, &e.Priority, &e.ExecuteAt,
		&e.IsLocked, &e.LockedAt, &e.WorkerID, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errEntryNotFound
		}
		return nil, fmt.Errorf("scan queue entry: %w", err)
	}
	return &e, nil
}

func scanNotification(row rowScanner) (*domain.Notification, error) {
	var (
		n        domain.Notification
		channels []string
	)
	err := row.Scan(
		&n.ID, &n.UserRef, &n.Kind, &n.Subject, &n.Body, &channels, &n.Status,
		&n.RetryCount, &n.MaxRetries, &n.ScheduledAt, &n.SentAt, &n.ErrorMessage, &n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	n.Channels = make([]domain.Channel, len(channels))
	for i, c := range channels {
		n.Channels[i] = domain.Channel(c)
	}
	return &n, nil
}
