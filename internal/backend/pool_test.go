package backend_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/backend"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestSyncBackend_AlwaysRefuses(t *testing.T) {
	be := backend.NewSyncBackend()

	if be.Reachable(context.Background()) {
		t.Error("sync backend reports reachable")
	}
	_, err := be.Submit(context.Background(), backend.Task{Run: func(context.Context) {}})
	if !errors.Is(err, backend.ErrBackendUnavailable) {
		t.Fatalf("want ErrBackendUnavailable, got %v", err)
	}
}

func TestPoolBackend_RunsSubmittedTask(t *testing.T) {
	pool := backend.NewPoolBackend(1, 4, discardLogger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Start(ctx)
		close(done)
	}()

	ran := make(chan struct{})
	handle, err := pool.Submit(ctx, backend.Task{
		ScheduleID:  "s1",
		ExecutionID: "exec-1",
		Run:         func(context.Context) { close(ran) },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle == "" {
		t.Error("accepted task has no handle")
	}

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("task never ran")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not shut down")
	}
}

func TestPoolBackend_FullQueueRefuses(t *testing.T) {
	// Never started: nothing drains the intake queue.
	pool := backend.NewPoolBackend(1, 1, discardLogger)

	if _, err := pool.Submit(context.Background(), backend.Task{Run: func(context.Context) {}}); err != nil {
		t.Fatalf("first submit refused: %v", err)
	}
	if pool.Reachable(context.Background()) {
		t.Error("full pool reports reachable")
	}
	_, err := pool.Submit(context.Background(), backend.Task{Run: func(context.Context) {}})
	if !errors.Is(err, backend.ErrBackendUnavailable) {
		t.Fatalf("want ErrBackendUnavailable on a full queue, got %v", err)
	}
}

func TestPoolBackend_StoppedPoolRefuses(t *testing.T) {
	pool := backend.NewPoolBackend(1, 4, discardLogger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not shut down")
	}

	_, err := pool.Submit(context.Background(), backend.Task{Run: func(context.Context) {}})
	if !errors.Is(err, backend.ErrBackendUnavailable) {
		t.Fatalf("want ErrBackendUnavailable after shutdown, got %v", err)
	}
	if pool.Reachable(context.Background()) {
		t.Error("stopped pool reports reachable")
	}
}
