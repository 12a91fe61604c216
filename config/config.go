package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env      string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	Port        string `env:"PORT" envDefault:"8080" validate:"required"`
	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	// Driver loop and deferred execution pool.
	DispatchIntervalSec int `env:"DISPATCH_INTERVAL_SEC" envDefault:"30" validate:"min=1,max=3600"`
	PoolWorkers         int `env:"POOL_WORKERS" envDefault:"4" validate:"min=0,max=100"`
	PoolQueueDepth      int `env:"POOL_QUEUE_DEPTH" envDefault:"32" validate:"min=1,max=1000"`

	// Notification delivery.
	DeliveryWorkers    int    `env:"DELIVERY_WORKERS" envDefault:"2" validate:"min=1,max=50"`
	DeliveryPollSec    int    `env:"DELIVERY_POLL_SEC" envDefault:"5" validate:"min=1,max=300"`
	DeliveryPolicy     string `env:"DELIVERY_POLICY" envDefault:"any" validate:"oneof=any all"`
	QueueStaleMinutes  int    `env:"QUEUE_STALE_MINUTES" envDefault:"10" validate:"min=1,max=120"`
	QueueRetryDelayMin int    `env:"QUEUE_RETRY_DELAY_MINUTES" envDefault:"5" validate:"min=1,max=1440"`

	// Holiday tables (data file, regenerated per calendar year).
	HolidayCalendarPath string `env:"HOLIDAY_CALENDAR_PATH"`

	// Collector service endpoints, one per scraper kind. A schedule may
	// override via the "endpoint" key of its scraper_config.
	NewsFeedURL          string `env:"NEWS_FEED_URL"`
	PriceFeedURL         string `env:"PRICE_FEED_URL"`
	CalendarEventsURL    string `env:"CALENDAR_EVENTS_URL"`
	RegulatoryReportsURL string `env:"REGULATORY_REPORTS_URL"`

	// Delivery transports.
	ResendAPIKey  string `env:"RESEND_API_KEY"  validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom    string `env:"RESEND_FROM"     validate:"required_if=Env production,required_if=Env staging"`
	TelegramToken string `env:"TELEGRAM_TOKEN"`

	// Recipient for system alerts when a schedule exhausts its retry budget.
	OpsUserRef string `env:"OPS_USER_REF" envDefault:"ops@localhost"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
