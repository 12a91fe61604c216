package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/config"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/backend"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/calendar"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/domain"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/health"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/infrastructure/postgres"
	ctxlog "github.com/Elviszyje/gpw-trading-advisor-sub001/internal/log"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/metrics"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/queue"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/scheduler"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/scraper"
	transporthttp "github.com/Elviszyje/gpw-trading-advisor-sub001/internal/transport/http"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/transport/http/handler"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/usecase"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	logger.Info("db connected")

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	gate, err := newGate(cfg, logger)
	if err != nil {
		stop()
		log.Fatalf("holiday calendar: %v", err)
	}

	scheduleRepo := postgres.NewScheduleRepository(pool, logger)
	executionRepo := postgres.NewExecutionRepository(pool)
	queueRepo := postgres.NewNotificationQueueRepository(pool, logger)

	q := queue.New(queueRepo,
		time.Duration(cfg.QueueStaleMinutes)*time.Minute,
		time.Duration(cfg.QueueRetryDelayMin)*time.Minute,
		logger,
	)

	registry := scraper.NewRegistry().
		Register(domain.KindNewsFeed, scraper.NewHTTPFeedHandler(cfg.NewsFeedURL)).
		Register(domain.KindPriceFeed, scraper.NewHTTPFeedHandler(cfg.PriceFeedURL)).
		Register(domain.KindCalendarEvents, scraper.NewHTTPFeedHandler(cfg.CalendarEventsURL)).
		Register(domain.KindRegulatoryReports, scraper.NewHTTPFeedHandler(cfg.RegulatoryReportsURL))

	// The API process runs triggered executions inline. Deferred execution
	// belongs to the scheduler process and its worker pool.
	orch := scheduler.NewOrchestrator(scheduleRepo, executionRepo, registry, backend.NewSyncBackend(), gate, nil, logger)

	scheduleUC := usecase.NewScheduleUsecase(scheduleRepo, gate)

	router := transporthttp.NewRouter(
		logger,
		handler.NewScheduleHandler(scheduleUC, orch, logger),
		handler.NewStatusHandler(orch, executionRepo, logger),
		handler.NewQueueHandler(q, logger),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server started", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server", "error", err)
		}
	}()

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("server shut down")
}

func newGate(cfg *config.Config, logger *slog.Logger) (*calendar.Gate, error) {
	if cfg.HolidayCalendarPath == "" {
		logger.Warn("no holiday calendar configured, all days treated as non-holidays")
		return calendar.NewGate(logger), nil
	}
	return calendar.LoadFile(cfg.HolidayCalendarPath, logger)
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
