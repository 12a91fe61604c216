package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/domain"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/metrics"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/queue"
)

// Policy decides when a multi-channel notification counts as sent.
type Policy string

const (
	// PolicyAnyChannel marks the notification sent when at least one
	// requested channel succeeded. The default.
	PolicyAnyChannel Policy = "any"

	// PolicyAllChannels requires every requested channel to succeed.
	PolicyAllChannels Policy = "all"
)

// Dispatcher drains the notification queue: lease, deliver per channel,
// aggregate, complete. Many dispatchers run in parallel; the queue's lease
// guarantees each entry is held by at most one of them.
type Dispatcher struct {
	queue      *queue.Queue
	transports map[domain.Channel]Transport
	policy     Policy
	logger     *slog.Logger
}

func NewDispatcher(q *queue.Queue, transports map[domain.Channel]Transport, policy Policy, logger *slog.Logger) *Dispatcher {
	if policy != PolicyAllChannels {
		policy = PolicyAnyChannel
	}
	return &Dispatcher{
		queue:      q,
		transports: transports,
		policy:     policy,
		logger:     logger.With("component", "delivery_dispatcher"),
	}
}

// RunOnce processes at most one entry. Returns false when the queue had
// nothing eligible.
func (d *Dispatcher) RunOnce(ctx context.Context, workerID string) (bool, error) {
	entry, err := d.queue.Lease(ctx, workerID)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, nil
	}

	n := entry.Notification
	if n == nil {
		// A lease without its notification is a repo bug; release the entry
		// as failed so it does not sit locked forever.
		err := errors.New("leased entry has no notification")
		return true, d.queue.Complete(ctx, entry, false, err)
	}

	success, deliveryErr := d.deliver(ctx, n)
	if err := d.queue.Complete(ctx, entry, success, deliveryErr); err != nil {
		return true, fmt.Errorf("complete delivery: %w", err)
	}

	if success {
		d.logger.Info("notification delivered",
			"notification_id", n.ID,
			"kind", n.Kind,
			"channels", len(n.Channels),
			"worker_id", workerID,
		)
	} else {
		d.logger.Warn("notification delivery failed",
			"notification_id", n.ID,
			"kind", n.Kind,
			"retry_count", n.RetryCount,
			"error", deliveryErr,
			"worker_id", workerID,
		)
	}
	return true, nil
}

// deliver attempts every requested channel and aggregates per the policy.
func (d *Dispatcher) deliver(ctx context.Context, n *domain.Notification) (bool, error) {
	if len(n.Channels) == 0 {
		return false, errors.New("notification requests no channels")
	}

	var (
		succeeded int
		failures  []string
	)

	for _, channel := range n.Channels {
		transport, ok := d.transports[channel]
		if !ok {
			failures = append(failures, fmt.Sprintf("%s: no transport configured", channel))
			metrics.DeliveriesTotal.WithLabelValues(string(channel), "no_transport").Inc()
			continue
		}

		if err := transport.Deliver(ctx, n); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", channel, err))
			metrics.DeliveriesTotal.WithLabelValues(string(channel), "failure").Inc()
			continue
		}

		succeeded++
		metrics.DeliveriesTotal.WithLabelValues(string(channel), "success").Inc()
	}

	var success bool
	if d.policy == PolicyAllChannels {
		success = succeeded == len(n.Channels)
	} else {
		success = succeeded > 0
	}

	if len(failures) == 0 {
		return success, nil
	}
	return success, errors.New(strings.Join(failures, "; "))
}

// Run polls the queue until ctx is cancelled. Idle polls back off to the
// configured interval; a successful pass immediately tries again, so bursts
// drain at full speed.
func (d *Dispatcher) Run(ctx context.Context, workerID string, pollInterval time.Duration) {
	d.logger.Info("delivery worker started", "worker_id", workerID, "poll_interval", pollInterval)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("delivery worker shut down", "worker_id", workerID)
			return
		case <-ticker.C:
			for {
				processed, err := d.RunOnce(ctx, workerID)
				if err != nil {
					d.logger.Error("delivery pass", "worker_id", workerID, "error", err)
					break
				}
				if !processed {
					break
				}
			}
		}
	}
}
