package queue_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/domain"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/queue"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/repository"
)

// ---- fakes ----

type fakeQueueRepo struct {
	enqueue      func(ctx context.Context, n *domain.Notification, priority domain.Priority, executeAt time.Time) (*domain.QueueEntry, error)
	reclaimStale func(ctx context.Context, staleBefore time.Time) (int, error)
	lease        func(ctx context.Context, workerID string, now time.Time) (*domain.QueueEntry, error)
	complete     func(ctx context.Context, entryID string, success bool, errMsg *string, retryAt time.Time) error
	cancel       func(ctx context.Context, notificationID string) error
	counts       func(ctx context.Context) (repository.QueueCounts, error)
}

func (r *fakeQueueRepo) Enqueue(ctx context.Context, n *domain.Notification, priority domain.Priority, executeAt time.Time) (*domain.QueueEntry, error) {
	return r.enqueue(ctx, n, priority, executeAt)
}

func (r *fakeQueueRepo) ReclaimStale(ctx context.Context, staleBefore time.Time) (int, error) {
	if r.reclaimStale == nil {
		return 0, nil
	}
	return r.reclaimStale(ctx, staleBefore)
}

func (r *fakeQueueRepo) Lease(ctx context.Context, workerID string, now time.Time) (*domain.QueueEntry, error) {
	return r.lease(ctx, workerID, now)
}

func (r *fakeQueueRepo) Complete(ctx context.Context, entryID string, success bool, errMsg *string, retryAt time.Time) error {
	return r.complete(ctx, entryID, success, errMsg, retryAt)
}

func (r *fakeQueueRepo) Cancel(ctx context.Context, notificationID string) error {
	return r.cancel(ctx, notificationID)
}

func (r *fakeQueueRepo) Counts(ctx context.Context) (repository.QueueCounts, error) {
	return r.counts(ctx)
}

// ---- helpers ----

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newQueue(repo *fakeQueueRepo) *queue.Queue {
	return queue.New(repo, 10*time.Minute, 5*time.Minute, discardLogger)
}

func testNotification(retryCount, maxRetries int) *domain.Notification {
	return &domain.Notification{
		ID:         "n1",
		UserRef:    "user@example.com",
		Kind:       domain.NotifyPriceAlert,
		Channels:   []domain.Channel{domain.ChannelEmail},
		RetryCount: retryCount,
		MaxRetries: maxRetries,
	}
}

func within(t *testing.T, got, want time.Time, tolerance time.Duration) {
	t.Helper()
	diff := got.Sub(want)
	if diff < -tolerance || diff > tolerance {
		t.Errorf("time %v not within %v of %v", got, tolerance, want)
	}
}

// ---- Enqueue ----

func TestEnqueue_InvalidPriorityFallsBackToNormal(t *testing.T) {
	var captured domain.Priority
	repo := &fakeQueueRepo{
		enqueue: func(_ context.Context, _ *domain.Notification, priority domain.Priority, _ time.Time) (*domain.QueueEntry, error) {
			captured = priority
			return &domain.QueueEntry{ID: "e1", NotificationID: "n1", Priority: priority}, nil
		},
	}

	_, err := newQueue(repo).Enqueue(context.Background(), testNotification(0, 3), domain.Priority("asap"), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured != domain.PriorityNormal {
		t.Errorf("priority = %q, want normal", captured)
	}
}

func TestEnqueue_ZeroExecuteAtMeansNow(t *testing.T) {
	var captured time.Time
	repo := &fakeQueueRepo{
		enqueue: func(_ context.Context, _ *domain.Notification, _ domain.Priority, executeAt time.Time) (*domain.QueueEntry, error) {
			captured = executeAt
			return &domain.QueueEntry{ID: "e1", NotificationID: "n1"}, nil
		},
	}

	if _, err := newQueue(repo).Enqueue(context.Background(), testNotification(0, 3), domain.PriorityHigh, time.Time{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	within(t, captured, time.Now(), time.Second)
}

// ---- Lease ----

func TestLease_ReclaimsStaleLocksFirst(t *testing.T) {
	var reclaimCutoff time.Time
	leaseCalled := false
	repo := &fakeQueueRepo{
		reclaimStale: func(_ context.Context, staleBefore time.Time) (int, error) {
			reclaimCutoff = staleBefore
			return 2, nil
		},
		lease: func(_ context.Context, _ string, _ time.Time) (*domain.QueueEntry, error) {
			leaseCalled = true
			return nil, nil
		},
	}

	if _, err := newQueue(repo).Lease(context.Background(), "w1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !leaseCalled {
		t.Fatal("lease not attempted")
	}
	within(t, reclaimCutoff, time.Now().Add(-10*time.Minute), time.Second)
}

func TestLease_ReclaimErrorDoesNotBlockLease(t *testing.T) {
	entry := &domain.QueueEntry{ID: "e1", NotificationID: "n1", Notification: testNotification(0, 3)}
	repo := &fakeQueueRepo{
		reclaimStale: func(_ context.Context, _ time.Time) (int, error) {
			return 0, errors.New("reclaim query failed")
		},
		lease: func(_ context.Context, _ string, _ time.Time) (*domain.QueueEntry, error) {
			return entry, nil
		},
	}

	got, err := newQueue(repo).Lease(context.Background(), "w1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != entry {
		t.Error("healthy entry not leased despite reclaim failure")
	}
}

func TestLease_EmptyQueue(t *testing.T) {
	repo := &fakeQueueRepo{
		lease: func(_ context.Context, _ string, _ time.Time) (*domain.QueueEntry, error) {
			return nil, nil
		},
	}

	entry, err := newQueue(repo).Lease(context.Background(), "w1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry != nil {
		t.Errorf("entry = %+v, want nil on empty queue", entry)
	}
}

func TestLease_RepoErrorPropagates(t *testing.T) {
	repoErr := errors.New("db down")
	repo := &fakeQueueRepo{
		lease: func(_ context.Context, _ string, _ time.Time) (*domain.QueueEntry, error) {
			return nil, repoErr
		},
	}

	if _, err := newQueue(repo).Lease(context.Background(), "w1"); !errors.Is(err, repoErr) {
		t.Fatalf("want wrapped repo error, got %v", err)
	}
}

// ---- Complete ----

func TestComplete_FailureBackoffEscalatesLinearly(t *testing.T) {
	cases := []struct {
		retryCount int
		wantDelay  time.Duration
	}{
		{0, 5 * time.Minute},
		{1, 10 * time.Minute},
		{2, 15 * time.Minute},
	}

	for _, tc := range cases {
		var capturedRetryAt time.Time
		var capturedSuccess bool
		repo := &fakeQueueRepo{
			complete: func(_ context.Context, _ string, success bool, _ *string, retryAt time.Time) error {
				capturedSuccess = success
				capturedRetryAt = retryAt
				return nil
			},
		}
		entry := &domain.QueueEntry{ID: "e1", NotificationID: "n1", Notification: testNotification(tc.retryCount, 5)}

		err := newQueue(repo).Complete(context.Background(), entry, false, errors.New("smtp timeout"))
		if err != nil {
			t.Fatalf("retryCount=%d: unexpected error: %v", tc.retryCount, err)
		}
		if capturedSuccess {
			t.Errorf("retryCount=%d: completed as success", tc.retryCount)
		}
		within(t, capturedRetryAt, time.Now().Add(tc.wantDelay), time.Second)
	}
}

func TestComplete_SuccessCarriesNoError(t *testing.T) {
	var capturedSuccess bool
	var capturedErrMsg *string
	repo := &fakeQueueRepo{
		complete: func(_ context.Context, _ string, success bool, errMsg *string, _ time.Time) error {
			capturedSuccess = success
			capturedErrMsg = errMsg
			return nil
		},
	}
	entry := &domain.QueueEntry{ID: "e1", NotificationID: "n1", Notification: testNotification(0, 3)}

	if err := newQueue(repo).Complete(context.Background(), entry, true, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !capturedSuccess {
		t.Error("not completed as success")
	}
	if capturedErrMsg != nil {
		t.Errorf("error message = %q, want nil", *capturedErrMsg)
	}
}

func TestComplete_FailureForwardsErrorMessage(t *testing.T) {
	var capturedErrMsg *string
	repo := &fakeQueueRepo{
		complete: func(_ context.Context, _ string, _ bool, errMsg *string, _ time.Time) error {
			capturedErrMsg = errMsg
			return nil
		},
	}
	entry := &domain.QueueEntry{ID: "e1", NotificationID: "n1", Notification: testNotification(0, 3)}

	if err := newQueue(repo).Complete(context.Background(), entry, false, errors.New("550 mailbox unavailable")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if capturedErrMsg == nil || *capturedErrMsg != "550 mailbox unavailable" {
		t.Errorf("error message = %v, want the delivery error", capturedErrMsg)
	}
}
