package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/domain"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/queue"
	"github.com/gin-gonic/gin"
)

type QueueHandler struct {
	queue  *queue.Queue
	logger *slog.Logger
}

func NewQueueHandler(q *queue.Queue, logger *slog.Logger) *QueueHandler {
	return &QueueHandler{queue: q, logger: logger.With("component", "queue_handler")}
}

// Status serves the {pending, locked, failed} counts for dashboards.
func (h *QueueHandler) Status(ctx *gin.Context) {
	counts, err := h.queue.Counts(ctx.Request.Context())
	if err != nil {
		h.logger.Error("queue counts", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	ctx.JSON(http.StatusOK, counts)
}

type enqueueRequest struct {
	UserRef  string   `json:"user_ref" binding:"required"`
	Kind     string   `json:"kind"     binding:"required,oneof=signal-alert price-alert daily-summary system"`
	Subject  string   `json:"subject"  binding:"required,max=512"`
	Body     string   `json:"body"`
	Channels []string `json:"channels" binding:"required,min=1,dive,oneof=email chat"`

	Priority   string     `json:"priority"    binding:"omitempty,oneof=low normal high urgent"`
	ExecuteAt  *time.Time `json:"execute_at"`
	MaxRetries int        `json:"max_retries" binding:"omitempty,min=0,max=20"`
}

// Enqueue accepts a notification from an upstream producer (signal engine,
// admin tooling) and queues it for delivery.
func (h *QueueHandler) Enqueue(ctx *gin.Context) {
	var req enqueueRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	channels := make([]domain.Channel, len(req.Channels))
	for i, c := range req.Channels {
		channels[i] = domain.Channel(c)
	}
	maxRetries := req.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	n := &domain.Notification{
		UserRef:    req.UserRef,
		Kind:       domain.NotificationKind(req.Kind),
		Subject:    req.Subject,
		Body:       req.Body,
		Channels:   channels,
		MaxRetries: maxRetries,
	}

	executeAt := time.Time{}
	if req.ExecuteAt != nil {
		executeAt = *req.ExecuteAt
	}

	entry, err := h.queue.Enqueue(ctx.Request.Context(), n, domain.Priority(req.Priority), executeAt)
	if err != nil {
		h.logger.Error("enqueue notification", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"entry_id":        entry.ID,
		"notification_id": entry.NotificationID,
		"priority":        entry.Priority,
		"execute_at":      entry.ExecuteAt,
	})
}

// Cancel withdraws a still-pending notification.
func (h *QueueHandler) Cancel(ctx *gin.Context) {
	err := h.queue.Cancel(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotificationNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errNotificationNotFound})
			return
		}
		h.logger.Error("cancel notification", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	ctx.Status(http.StatusNoContent)
}
