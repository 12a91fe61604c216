// Package backend abstracts where an execution physically runs: inline in the
// caller (SyncBackend) or handed to a worker pool (PoolBackend). The
// orchestrator probes nothing globally; a failed Submit is the signal to fall
// back to the synchronous path.
package backend

import (
	"context"
	"errors"
)

// ErrBackendUnavailable means the deferred backend cannot accept the task
// right now. The orchestrator recovers locally by running synchronously; this
// error never surfaces as a job failure.
var ErrBackendUnavailable = errors.New("deferred backend unavailable")

// Task is one unit of deferred work. Run carries the whole execution closure,
// including record finalization, so the pool needs no knowledge of schedules.
type Task struct {
	ScheduleID  string
	ExecutionID string
	Run         func(ctx context.Context)
}

// ExecutionBackend accepts tasks for asynchronous execution.
type ExecutionBackend interface {
	// Submit enqueues the task and returns an opaque task handle. Returns
	// ErrBackendUnavailable when the backend cannot take the task.
	Submit(ctx context.Context, task Task) (string, error)

	// Reachable reports whether the backend is currently accepting work.
	// Advisory only — Submit is the authoritative check.
	Reachable(ctx context.Context) bool
}

// SyncBackend is the null backend: nothing is deferred, every Submit refuses,
// and the orchestrator runs everything inline.
type SyncBackend struct{}

func NewSyncBackend() *SyncBackend { return &SyncBackend{} }

func (*SyncBackend) Submit(context.Context, Task) (string, error) {
	return "", ErrBackendUnavailable
}

func (*SyncBackend) Reachable(context.Context) bool { return false }
