package main

import (
	"context"
	"errors"
	"fmt"
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
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/notify"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/queue"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/scheduler"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/scraper"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
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

	var execBackend backend.ExecutionBackend
	if cfg.PoolWorkers > 0 {
		poolBackend := backend.NewPoolBackend(cfg.PoolWorkers, cfg.PoolQueueDepth, logger)
		go poolBackend.Start(ctx)
		execBackend = poolBackend
	} else {
		execBackend = backend.NewSyncBackend()
	}

	alerter := notify.NewFailureAlerter(q, cfg.OpsUserRef, []domain.Channel{domain.ChannelEmail}, logger)
	orch := scheduler.NewOrchestrator(scheduleRepo, executionRepo, registry, execBackend, gate, alerter, logger)

	// A previous process killed mid-run leaves its schedules claimed forever.
	if released, err := orch.RecoverAbandoned(ctx); err != nil {
		logger.Error("recover abandoned run claims", "error", err)
	} else if released > 0 {
		logger.Info("recovered abandoned run claims", "count", released)
	}

	dispatcher := notify.NewDispatcher(q, newTransports(cfg, logger), notify.Policy(cfg.DeliveryPolicy), logger)

	hostname, _ := os.Hostname()
	for i := 0; i < cfg.DeliveryWorkers; i++ {
		workerID := fmt.Sprintf("%s-%d-delivery-%d", hostname, os.Getpid(), i)
		go dispatcher.Run(ctx, workerID, time.Duration(cfg.DeliveryPollSec)*time.Second)
	}

	c := cron.New()
	_, err = c.AddFunc(fmt.Sprintf("@every %ds", cfg.DispatchIntervalSec), func() {
		if _, err := orch.RunDue(ctx); err != nil {
			logger.Error("run-due pass", "error", err)
		}
	})
	if err != nil {
		stop()
		log.Fatalf("schedule run-due tick: %v", err)
	}
	// Holiday tables change once a year, but reloading nightly picks up
	// mid-year corrections without a restart.
	if _, err := c.AddFunc("15 3 * * *", func() {
		if err := gate.Reload(); err != nil {
			logger.Error("reload holiday tables", "error", err)
		}
	}); err != nil {
		stop()
		log.Fatalf("schedule calendar reload: %v", err)
	}
	c.Start()
	defer c.Stop()

	logger.Info("scheduler started",
		"dispatch_interval_sec", cfg.DispatchIntervalSec,
		"delivery_workers", cfg.DeliveryWorkers,
		"pool_workers", cfg.PoolWorkers,
	)

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("scheduler shut down")
}

func newGate(cfg *config.Config, logger *slog.Logger) (*calendar.Gate, error) {
	if cfg.HolidayCalendarPath == "" {
		logger.Warn("no holiday calendar configured, all days treated as non-holidays")
		return calendar.NewGate(logger), nil
	}
	return calendar.LoadFile(cfg.HolidayCalendarPath, logger)
}

func newTransports(cfg *config.Config, logger *slog.Logger) map[domain.Channel]notify.Transport {
	transports := map[domain.Channel]notify.Transport{}

	if cfg.Env == "local" {
		transports[domain.ChannelEmail] = notify.NewLogTransport(domain.ChannelEmail, logger)
		transports[domain.ChannelChat] = notify.NewLogTransport(domain.ChannelChat, logger)
		return transports
	}

	transports[domain.ChannelEmail] = notify.NewEmailTransport(cfg.ResendAPIKey, cfg.ResendFrom)

	if cfg.TelegramToken != "" {
		chat, err := notify.NewChatTransport(cfg.TelegramToken)
		if err != nil {
			// A broken chat transport must not stop email delivery.
			logger.Error("telegram transport unavailable", "error", err)
		} else {
			transports[domain.ChannelChat] = chat
		}
	}
	return transports
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
