package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/domain"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/scheduler"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/usecase"
	"github.com/gin-gonic/gin"
)

type ScheduleHandler struct {
	uc     *usecase.ScheduleUsecase
	orch   *scheduler.Orchestrator
	logger *slog.Logger
}

func NewScheduleHandler(uc *usecase.ScheduleUsecase, orch *scheduler.Orchestrator, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{uc: uc, orch: orch, logger: logger.With("component", "schedule_handler")}
}

type scheduleRequest struct {
	Name        string `json:"name"         binding:"required,max=256"`
	ScraperKind string `json:"scraper_kind" binding:"required,oneof=news-feed price-feed calendar-events regulatory-reports"`

	FrequencyValue int    `json:"frequency_value" binding:"required,min=1"`
	FrequencyUnit  string `json:"frequency_unit"  binding:"required,oneof=minutes hours days"`

	// "HH:MM"; end before start denotes an overnight window.
	ActiveHoursStart string `json:"active_hours_start" binding:"omitempty"`
	ActiveHoursEnd   string `json:"active_hours_end"   binding:"omitempty"`

	// Seven flags, Sunday first. Defaults to every day.
	Weekdays *[]bool `json:"weekdays" binding:"omitempty,len=7"`

	SkipNationalHolidays bool `json:"skip_national_holidays"`
	SkipMarketHolidays   bool `json:"skip_market_holidays"`

	MaxRetries        int `json:"max_retries"         binding:"omitempty,min=0,max=20"`
	RetryDelayMinutes int `json:"retry_delay_minutes" binding:"omitempty,min=1,max=1440"`
	TimeoutMinutes    int `json:"timeout_minutes"     binding:"omitempty,min=1,max=1440"`

	ScraperConfig map[string]any `json:"scraper_config"`
}

func (req *scheduleRequest) toInput() (usecase.ScheduleInput, error) {
	start := domain.TimeOfDay{}
	end := domain.TimeOfDay{Hour: 23, Minute: 59}

	var err error
	if req.ActiveHoursStart != "" {
		if start, err = parseTimeOfDay(req.ActiveHoursStart); err != nil {
			return usecase.ScheduleInput{}, err
		}
	}
	if req.ActiveHoursEnd != "" {
		if end, err = parseTimeOfDay(req.ActiveHoursEnd); err != nil {
			return usecase.ScheduleInput{}, err
		}
	}

	weekdays := domain.Weekdays{true, true, true, true, true, true, true}
	if req.Weekdays != nil {
		copy(weekdays[:], *req.Weekdays)
	}

	return usecase.ScheduleInput{
		Name:                 req.Name,
		ScraperKind:          domain.ScraperKind(req.ScraperKind),
		FrequencyValue:       req.FrequencyValue,
		FrequencyUnit:        domain.FrequencyUnit(req.FrequencyUnit),
		ActiveHoursStart:     start,
		ActiveHoursEnd:       end,
		Weekdays:             weekdays,
		SkipNationalHolidays: req.SkipNationalHolidays,
		SkipMarketHolidays:   req.SkipMarketHolidays,
		MaxRetries:           req.MaxRetries,
		RetryDelayMinutes:    req.RetryDelayMinutes,
		TimeoutMinutes:       req.TimeoutMinutes,
		ScraperConfig:        req.ScraperConfig,
	}, nil
}

func parseTimeOfDay(s string) (domain.TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return domain.TimeOfDay{}, fmt.Errorf("bad time of day %q (want HH:MM)", s)
	}
	return domain.TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

type scheduleResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ScraperKind string `json:"scraper_kind"`

	FrequencyValue int    `json:"frequency_value"`
	FrequencyUnit  string `json:"frequency_unit"`

	ActiveHoursStart string `json:"active_hours_start"`
	ActiveHoursEnd   string `json:"active_hours_end"`
	Weekdays         []bool `json:"weekdays"`

	SkipNationalHolidays bool `json:"skip_national_holidays"`
	SkipMarketHolidays   bool `json:"skip_market_holidays"`

	IsActive          bool `json:"is_active"`
	MaxRetries        int  `json:"max_retries"`
	RetryDelayMinutes int  `json:"retry_delay_minutes"`
	TimeoutMinutes    int  `json:"timeout_minutes"`

	FailureCount int        `json:"failure_count"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`

	ScraperConfig map[string]any `json:"scraper_config"`
	CreatedAt     time.Time      `json:"created_at"`
}

func toScheduleResponse(s *domain.ScheduleDefinition) scheduleResponse {
	return scheduleResponse{
		ID:                   s.ID,
		Name:                 s.Name,
		ScraperKind:          string(s.ScraperKind),
		FrequencyValue:       s.FrequencyValue,
		FrequencyUnit:        string(s.FrequencyUnit),
		ActiveHoursStart:     fmt.Sprintf("%02d:%02d", s.ActiveHoursStart.Hour, s.ActiveHoursStart.Minute),
		ActiveHoursEnd:       fmt.Sprintf("%02d:%02d", s.ActiveHoursEnd.Hour, s.ActiveHoursEnd.Minute),
		Weekdays:             s.Weekdays[:],
		SkipNationalHolidays: s.SkipNationalHolidays,
		SkipMarketHolidays:   s.SkipMarketHolidays,
		IsActive:             s.IsActive,
		MaxRetries:           s.MaxRetries,
		RetryDelayMinutes:    s.RetryDelayMinutes,
		TimeoutMinutes:       s.TimeoutMinutes,
		FailureCount:         s.FailureCount,
		LastRun:              s.LastRun,
		LastSuccess:          s.LastSuccess,
		NextRun:              s.NextRun,
		ScraperConfig:        s.ScraperConfig,
		CreatedAt:            s.CreatedAt,
	}
}

func (h *ScheduleHandler) Create(ctx *gin.Context) {
	var req scheduleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input, err := req.toInput()
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.uc.Create(ctx.Request.Context(), input)
	if err != nil {
		h.writeError(ctx, "create schedule", err)
		return
	}
	ctx.JSON(http.StatusCreated, toScheduleResponse(s))
}

func (h *ScheduleHandler) List(ctx *gin.Context) {
	activeOnly := ctx.Query("active") == "true"

	schedules, err := h.uc.List(ctx.Request.Context(), activeOnly)
	if err != nil {
		h.writeError(ctx, "list schedules", err)
		return
	}

	items := make([]scheduleResponse, len(schedules))
	for i, s := range schedules {
		items[i] = toScheduleResponse(s)
	}
	ctx.JSON(http.StatusOK, gin.H{"schedules": items})
}

func (h *ScheduleHandler) GetByID(ctx *gin.Context) {
	s, err := h.uc.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		h.writeError(ctx, "get schedule", err)
		return
	}
	ctx.JSON(http.StatusOK, toScheduleResponse(s))
}

func (h *ScheduleHandler) Update(ctx *gin.Context) {
	var req scheduleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input, err := req.toInput()
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.uc.Update(ctx.Request.Context(), ctx.Param("id"), input)
	if err != nil {
		h.writeError(ctx, "update schedule", err)
		return
	}
	ctx.JSON(http.StatusOK, toScheduleResponse(s))
}

func (h *ScheduleHandler) Activate(ctx *gin.Context) {
	h.setActive(ctx, true)
}

func (h *ScheduleHandler) Deactivate(ctx *gin.Context) {
	h.setActive(ctx, false)
}

func (h *ScheduleHandler) setActive(ctx *gin.Context, active bool) {
	if err := h.uc.SetActive(ctx.Request.Context(), ctx.Param("id"), active); err != nil {
		h.writeError(ctx, "set schedule active", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (h *ScheduleHandler) Delete(ctx *gin.Context) {
	if err := h.uc.Delete(ctx.Request.Context(), ctx.Param("id")); err != nil {
		h.writeError(ctx, "delete schedule", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// Execute is the manual/forced run: same contract as the dispatch loop, one
// attempt, one execution record.
func (h *ScheduleHandler) Execute(ctx *gin.Context) {
	rec, err := h.orch.ExecuteByID(ctx.Request.Context(), ctx.Param("id"))
	if err != nil && rec == nil {
		h.writeError(ctx, "execute schedule", err)
		return
	}
	// rec non-nil with err set means the attempt itself failed (handler or
	// configuration error); the record carries the details.
	ctx.JSON(http.StatusOK, toExecutionResponse(rec))
}

func (h *ScheduleHandler) writeError(ctx *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrScheduleNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": errScheduleNotFound})
	case errors.Is(err, domain.ErrScheduleNameConflict):
		ctx.JSON(http.StatusConflict, gin.H{"error": errScheduleNameConflict})
	case errors.Is(err, domain.ErrInvalidFrequency):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidFrequency})
	case errors.Is(err, domain.ErrUnknownScraperKind):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errUnknownScraperKind})
	case errors.Is(err, domain.ErrExecutionInFlight):
		ctx.JSON(http.StatusConflict, gin.H{"error": errExecutionInFlight})
	default:
		h.logger.Error(op, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
	}
}

func limitQuery(ctx *gin.Context, def, max int) int {
	limit, _ := strconv.Atoi(ctx.Query("limit"))
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
