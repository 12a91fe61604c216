package notify_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/domain"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/notify"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/queue"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/repository"
)

// ---- fakes ----

type completeCall struct {
	entryID string
	success bool
	errMsg  *string
}

type fakeQueueRepo struct {
	entries  []*domain.QueueEntry
	completz []completeCall
}

func (r *fakeQueueRepo) Enqueue(_ context.Context, _ *domain.Notification, priority domain.Priority, executeAt time.Time) (*domain.QueueEntry, error) {
	return &domain.QueueEntry{ID: "e1", Priority: priority, ExecuteAt: executeAt}, nil
}

func (r *fakeQueueRepo) ReclaimStale(_ context.Context, _ time.Time) (int, error) { return 0, nil }

func (r *fakeQueueRepo) Lease(_ context.Context, _ string, _ time.Time) (*domain.QueueEntry, error) {
	if len(r.entries) == 0 {
		return nil, nil
	}
	entry := r.entries[0]
	r.entries = r.entries[1:]
	return entry, nil
}

func (r *fakeQueueRepo) Complete(_ context.Context, entryID string, success bool, errMsg *string, _ time.Time) error {
	r.completz = append(r.completz, completeCall{entryID, success, errMsg})
	return nil
}

func (r *fakeQueueRepo) Cancel(_ context.Context, _ string) error { return nil }

func (r *fakeQueueRepo) Counts(_ context.Context) (repository.QueueCounts, error) {
	return repository.QueueCounts{}, nil
}

type fakeTransport struct {
	err       error
	delivered []*domain.Notification
}

func (t *fakeTransport) Deliver(_ context.Context, n *domain.Notification) error {
	if t.err != nil {
		return t.err
	}
	t.delivered = append(t.delivered, n)
	return nil
}

// ---- helpers ----

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func entryWith(channels ...domain.Channel) *domain.QueueEntry {
	return &domain.QueueEntry{
		ID:             "e1",
		NotificationID: "n1",
		Priority:       domain.PriorityNormal,
		Notification: &domain.Notification{
			ID:       "n1",
			UserRef:  "user@example.com",
			Kind:     domain.NotifySignalAlert,
			Subject:  "Buy signal: PKN",
			Body:     "PKN Orlen crossed its 50-day average.",
			Channels: channels,
		},
	}
}

func newDispatcher(repo *fakeQueueRepo, transports map[domain.Channel]notify.Transport, policy notify.Policy) *notify.Dispatcher {
	q := queue.New(repo, 0, 0, discardLogger)
	return notify.NewDispatcher(q, transports, policy, discardLogger)
}

// ---- RunOnce ----

func TestRunOnce_EmptyQueue(t *testing.T) {
	d := newDispatcher(&fakeQueueRepo{}, nil, notify.PolicyAnyChannel)

	processed, err := d.RunOnce(context.Background(), "w1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed {
		t.Error("processed = true on an empty queue")
	}
}

func TestRunOnce_AllChannelsSucceed(t *testing.T) {
	repo := &fakeQueueRepo{entries: []*domain.QueueEntry{entryWith(domain.ChannelEmail, domain.ChannelChat)}}
	email := &fakeTransport{}
	chat := &fakeTransport{}
	d := newDispatcher(repo, map[domain.Channel]notify.Transport{
		domain.ChannelEmail: email,
		domain.ChannelChat:  chat,
	}, notify.PolicyAnyChannel)

	processed, err := d.RunOnce(context.Background(), "w1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !processed {
		t.Fatal("entry not processed")
	}
	if len(email.delivered) != 1 || len(chat.delivered) != 1 {
		t.Errorf("deliveries email=%d chat=%d, want 1 each", len(email.delivered), len(chat.delivered))
	}

	if len(repo.completz) != 1 {
		t.Fatalf("complete called %d times, want 1", len(repo.completz))
	}
	call := repo.completz[0]
	if !call.success {
		t.Error("completed as failure")
	}
	if call.errMsg != nil {
		t.Errorf("error message = %q, want nil", *call.errMsg)
	}
}

func TestRunOnce_AnyPolicy_PartialFailureCountsAsSent(t *testing.T) {
	repo := &fakeQueueRepo{entries: []*domain.QueueEntry{entryWith(domain.ChannelEmail, domain.ChannelChat)}}
	d := newDispatcher(repo, map[domain.Channel]notify.Transport{
		domain.ChannelEmail: &fakeTransport{},
		domain.ChannelChat:  &fakeTransport{err: errors.New("chat API unreachable")},
	}, notify.PolicyAnyChannel)

	if _, err := d.RunOnce(context.Background(), "w1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	call := repo.completz[0]
	if !call.success {
		t.Error("any-channel policy: one delivered channel must count as sent")
	}
	if call.errMsg == nil || !strings.Contains(*call.errMsg, "chat API unreachable") {
		t.Errorf("error message = %v, want the chat failure recorded", call.errMsg)
	}
}

func TestRunOnce_AllPolicy_PartialFailureCountsAsFailed(t *testing.T) {
	repo := &fakeQueueRepo{entries: []*domain.QueueEntry{entryWith(domain.ChannelEmail, domain.ChannelChat)}}
	d := newDispatcher(repo, map[domain.Channel]notify.Transport{
		domain.ChannelEmail: &fakeTransport{},
		domain.ChannelChat:  &fakeTransport{err: errors.New("chat API unreachable")},
	}, notify.PolicyAllChannels)

	if _, err := d.RunOnce(context.Background(), "w1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.completz[0].success {
		t.Error("all-channels policy: a failed channel must fail the notification")
	}
}

func TestRunOnce_MissingTransportIsChannelFailure(t *testing.T) {
	repo := &fakeQueueRepo{entries: []*domain.QueueEntry{entryWith(domain.ChannelEmail, domain.ChannelChat)}}
	d := newDispatcher(repo, map[domain.Channel]notify.Transport{
		domain.ChannelEmail: &fakeTransport{},
	}, notify.PolicyAllChannels)

	if _, err := d.RunOnce(context.Background(), "w1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	call := repo.completz[0]
	if call.success {
		t.Error("unconfigured channel must fail under the all-channels policy")
	}
	if call.errMsg == nil || !strings.Contains(*call.errMsg, "no transport configured") {
		t.Errorf("error message = %v, want missing transport named", call.errMsg)
	}
}

func TestRunOnce_NoChannelsRequested(t *testing.T) {
	repo := &fakeQueueRepo{entries: []*domain.QueueEntry{entryWith()}}
	d := newDispatcher(repo, map[domain.Channel]notify.Transport{}, notify.PolicyAnyChannel)

	if _, err := d.RunOnce(context.Background(), "w1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.completz[0].success {
		t.Error("notification with no channels completed as sent")
	}
}

func TestRunOnce_LeaseWithoutNotificationIsReleasedFailed(t *testing.T) {
	repo := &fakeQueueRepo{entries: []*domain.QueueEntry{{ID: "e1", NotificationID: "n1"}}}
	d := newDispatcher(repo, map[domain.Channel]notify.Transport{}, notify.PolicyAnyChannel)

	processed, err := d.RunOnce(context.Background(), "w1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !processed {
		t.Fatal("broken entry not processed")
	}
	if len(repo.completz) != 1 || repo.completz[0].success {
		t.Errorf("complete calls = %+v, want one failure releasing the lock", repo.completz)
	}
}
