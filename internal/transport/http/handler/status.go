package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/domain"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/repository"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/scheduler"
	"github.com/gin-gonic/gin"
)

// StatusHandler serves the scheduler snapshot, the run-due trigger and the
// execution history queries.
type StatusHandler struct {
	orch       *scheduler.Orchestrator
	executions repository.ExecutionRepository
	logger     *slog.Logger
}

func NewStatusHandler(orch *scheduler.Orchestrator, executions repository.ExecutionRepository, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{orch: orch, executions: executions, logger: logger.With("component", "status_handler")}
}

func (h *StatusHandler) Status(ctx *gin.Context) {
	st, err := h.orch.Status(ctx.Request.Context())
	if err != nil {
		h.logger.Error("scheduler status", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	ctx.JSON(http.StatusOK, st)
}

// RunDue is the endpoint the external periodic trigger calls. The response is
// always a list, empty when nothing was due.
func (h *StatusHandler) RunDue(ctx *gin.Context) {
	records, err := h.orch.RunDue(ctx.Request.Context())
	if err != nil {
		h.logger.Error("run due", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	items := make([]executionResponse, len(records))
	for i, rec := range records {
		items[i] = toExecutionResponse(rec)
	}
	ctx.JSON(http.StatusOK, gin.H{"executions": items})
}

func (h *StatusHandler) RecentExecutions(ctx *gin.Context) {
	records, err := h.executions.Recent(ctx.Request.Context(), limitQuery(ctx, 50, 500))
	if err != nil {
		h.logger.Error("recent executions", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	h.writeExecutions(ctx, records)
}

func (h *StatusHandler) ScheduleExecutions(ctx *gin.Context) {
	records, err := h.executions.ForSchedule(ctx.Request.Context(), ctx.Param("id"), limitQuery(ctx, 50, 500))
	if err != nil {
		h.logger.Error("schedule executions", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	h.writeExecutions(ctx, records)
}

// Failures lists failed executions since ?since (RFC3339), defaulting to the
// last 24 hours.
func (h *StatusHandler) Failures(ctx *gin.Context) {
	since := time.Now().Add(-24 * time.Hour)
	if raw := ctx.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "bad since timestamp, want RFC3339"})
			return
		}
		since = parsed
	}

	records, err := h.executions.FailuresSince(ctx.Request.Context(), since)
	if err != nil {
		h.logger.Error("failures since", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	h.writeExecutions(ctx, records)
}

func (h *StatusHandler) writeExecutions(ctx *gin.Context, records []*domain.ExecutionRecord) {
	items := make([]executionResponse, len(records))
	for i, rec := range records {
		items[i] = toExecutionResponse(rec)
	}
	ctx.JSON(http.StatusOK, gin.H{"executions": items})
}

type executionResponse struct {
	ID         string `json:"id"`
	ScheduleID string `json:"schedule_id"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Success     *bool      `json:"success,omitempty"`

	ItemsProcessed int `json:"items_processed"`
	ItemsCreated   int `json:"items_created"`
	ItemsUpdated   int `json:"items_updated"`

	ErrorMessage     *string        `json:"error_message,omitempty"`
	ExecutionDetails map[string]any `json:"execution_details,omitempty"`
}

func toExecutionResponse(rec *domain.ExecutionRecord) executionResponse {
	resp := executionResponse{
		ID:               rec.ID,
		ScheduleID:       rec.ScheduleID,
		StartedAt:        rec.StartedAt,
		CompletedAt:      rec.CompletedAt,
		ItemsProcessed:   rec.ItemsProcessed,
		ItemsCreated:     rec.ItemsCreated,
		ItemsUpdated:     rec.ItemsUpdated,
		ErrorMessage:     rec.ErrorMessage,
		ExecutionDetails: rec.ExecutionDetails,
	}
	if rec.CompletedAt != nil {
		success := rec.Success
		resp.Success = &success
	}
	return resp
}
