package domain

import (
	"errors"
	"time"
)

var (
	ErrNotificationNotFound  = errors.New("notification not found")
	ErrNotificationCancelled = errors.New("notification is cancelled")
)

type NotificationKind string

const (
	NotifySignalAlert  NotificationKind = "signal-alert"
	NotifyPriceAlert   NotificationKind = "price-alert"
	NotifyDailySummary NotificationKind = "daily-summary"
	NotifySystem       NotificationKind = "system"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelChat  Channel = "chat"
)

type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationSending   NotificationStatus = "sending"
	NotificationSent      NotificationStatus = "sent"
	NotificationFailed    NotificationStatus = "failed"
	NotificationCancelled NotificationStatus = "cancelled"
)

// Notification is one unit of outbound user communication.
type Notification struct {
	ID      string
	UserRef string
	Kind    NotificationKind

	Subject string
	Body    string

	Channels []Channel

	Status     NotificationStatus
	RetryCount int
	MaxRetries int

	ScheduledAt time.Time
	SentAt      *time.Time

	ErrorMessage *string

	CreatedAt time.Time
}

// Priority orders queue entries. Rank is an explicit mapping — ordering by the
// string value would sort "high" below "low" alphabetically.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	default:
		return 0
	}
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// QueueEntry wraps one pending Notification for leased delivery. An entry is
// leasable iff ExecuteAt <= now, IsLocked is false, and the wrapped
// Notification is pending. A lock older than the staleness threshold is
// force-released by whichever worker observes it next.
type QueueEntry struct {
	ID             string
	NotificationID string

	Priority  Priority
	ExecuteAt time.Time

	IsLocked bool
	LockedAt *time.Time
	WorkerID *string

	CreatedAt time.Time

	// Notification is populated on lease so the dispatcher does not need a
	// second read.
	Notification *Notification
}
