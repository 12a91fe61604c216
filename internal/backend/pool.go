package backend

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/metrics"
	"github.com/google/uuid"
)

// PoolBackend runs submitted tasks on a fixed set of worker goroutines with a
// bounded intake queue. A full queue or a stopped pool refuses the task with
// ErrBackendUnavailable, which makes the orchestrator fall back to running it
// inline.
type PoolBackend struct {
	tasks   chan Task
	logger  *slog.Logger
	workers int

	stopped atomic.Bool
	wg      sync.WaitGroup
}

func NewPoolBackend(workers, queueDepth int, logger *slog.Logger) *PoolBackend {
	return &PoolBackend{
		tasks:   make(chan Task, queueDepth),
		logger:  logger.With("component", "pool_backend"),
		workers: workers,
	}
}

// Start launches the workers and blocks until ctx is cancelled and all
// in-flight tasks have finished.
func (p *PoolBackend) Start(ctx context.Context) {
	p.logger.Info("pool backend started", "workers", p.workers, "queue_depth", cap(p.tasks))

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}

	<-ctx.Done()
	p.stopped.Store(true)
	p.wg.Wait()
	p.logger.Info("pool backend shut down")
}

func (p *PoolBackend) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-p.tasks:
			metrics.DeferredTasksInFlight.Inc()
			// The run must finalize its record even while the pool is
			// draining, so it gets a context that survives cancellation.
			task.Run(context.WithoutCancel(ctx))
			metrics.DeferredTasksInFlight.Dec()
		}
	}
}

func (p *PoolBackend) Submit(_ context.Context, task Task) (string, error) {
	if p.stopped.Load() {
		return "", ErrBackendUnavailable
	}

	handle := uuid.NewString()
	select {
	case p.tasks <- task:
		metrics.DeferredSubmitsTotal.WithLabelValues("accepted").Inc()
		p.logger.Debug("task submitted", "schedule_id", task.ScheduleID, "handle", handle)
		return handle, nil
	default:
		metrics.DeferredSubmitsTotal.WithLabelValues("refused").Inc()
		return "", ErrBackendUnavailable
	}
}

func (p *PoolBackend) Reachable(context.Context) bool {
	return !p.stopped.Load() && len(p.tasks) < cap(p.tasks)
}
