package httptransport

import (
	"log/slog"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/transport/http/handler"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

func NewRouter(
	logger *slog.Logger,
	scheduleHandler *handler.ScheduleHandler,
	statusHandler *handler.StatusHandler,
	queueHandler *handler.QueueHandler,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	schedules := r.Group("/schedules")
	schedules.POST("", scheduleHandler.Create)
	schedules.GET("", scheduleHandler.List)
	schedules.GET("/:id", scheduleHandler.GetByID)
	schedules.PUT("/:id", scheduleHandler.Update)
	schedules.POST("/:id/activate", scheduleHandler.Activate)
	schedules.POST("/:id/deactivate", scheduleHandler.Deactivate)
	schedules.DELETE("/:id", scheduleHandler.Delete)
	schedules.POST("/:id/execute", scheduleHandler.Execute)
	schedules.GET("/:id/executions", statusHandler.ScheduleExecutions)

	r.GET("/status", statusHandler.Status)
	r.POST("/run-due", statusHandler.RunDue)
	r.GET("/executions", statusHandler.RecentExecutions)
	r.GET("/executions/failures", statusHandler.Failures)

	queue := r.Group("/queue")
	queue.GET("/status", queueHandler.Status)
	queue.POST("/notifications", queueHandler.Enqueue)
	queue.DELETE("/notifications/:id", queueHandler.Cancel)

	return r
}
