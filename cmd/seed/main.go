// seed inserts a realistic set of schedules and queued notifications into
// the local dev database.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/infrastructure/postgres"
)

type scheduleSpec struct {
	name          string
	kind          string
	freqValue     int
	freqUnit      string
	start         string
	end           string
	weekdays      string
	skipNational  bool
	skipMarket    bool
	active        bool
	timeoutMin    int
	scraperConfig string
}

var schedules = []scheduleSpec{
	// Quote polling during Warsaw trading hours, weekdays only.
	{"Prices - Live", "price-feed", 5, "minutes", "09:00", "17:30",
		"{f,t,t,t,t,t,f}", true, true, true, 10, `{"markets": ["GPW", "NewConnect"]}`},

	// Hourly news sweep, every day.
	{"News RSS", "news-feed", 1, "hours", "00:00", "23:59",
		"{t,t,t,t,t,t,t}", false, false, true, 30, `{"feeds": ["stooq", "bankier", "money-pl"]}`},

	// Regulatory filings land overnight, window wraps past midnight.
	{"ESPI Reports", "regulatory-reports", 30, "minutes", "22:00", "06:00",
		"{t,t,t,t,t,t,t}", true, false, true, 30, `{"source": "espi"}`},

	// Daily corporate calendar refresh before the session opens.
	{"Calendar Events", "calendar-events", 1, "days", "07:00", "08:00",
		"{f,t,t,t,t,t,f}", true, true, true, 30, `{"horizon_days": 90}`},

	// Kept around but switched off; handy for exercising activate/deactivate.
	{"News RSS - Deep Crawl", "news-feed", 1, "days", "02:00", "04:00",
		"{t,t,t,t,t,t,t}", false, false, false, 120, `{"feeds": ["archive"], "depth": 3}`},
}

type notificationSpec struct {
	userRef  string
	kind     string
	subject  string
	body     string
	channels string
	priority string
}

var notifications = []notificationSpec{
	{"seed@test.local", "daily-summary", "Daily summary",
		"3 signals generated, 412 prices updated.", "{email}", "low"},
	{"seed@test.local", "price-alert", "CDR above 120 PLN",
		"CD Projekt crossed your 120 PLN threshold at 121.40.", "{email,chat}", "high"},
	{"ops@test.local", "system", "Scraper failing",
		"News RSS failed 3 times in a row.", "{email}", "urgent"},
}

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set — run: direnv allow")
	}

	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}

	// Insert schedules, skip any that already exist (idempotent re-runs)
	var inserted, skipped int
	for _, spec := range schedules {
		tag, err := pool.Exec(ctx, `
			INSERT INTO schedules (
				name, scraper_kind, frequency_value, frequency_unit,
				active_hours_start, active_hours_end, weekdays,
				skip_national_holidays, skip_market_holidays,
				is_active, timeout_minutes, scraper_config
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (name) DO NOTHING`,
			spec.name, spec.kind, spec.freqValue, spec.freqUnit,
			spec.start, spec.end, spec.weekdays,
			spec.skipNational, spec.skipMarket,
			spec.active, spec.timeoutMin, spec.scraperConfig,
		)
		if err != nil {
			pool.Close()
			log.Fatalf("insert schedule %q: %v", spec.name, err)
		}
		if tag.RowsAffected() == 0 {
			skipped++
		} else {
			inserted++
		}
	}

	// Queue a few notifications so the delivery workers have something to chew on
	var queued int
	for _, spec := range notifications {
		var notificationID string
		err := pool.QueryRow(ctx, `
			INSERT INTO notifications (user_ref, kind, subject, body, channels)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			spec.userRef, spec.kind, spec.subject, spec.body, spec.channels,
		).Scan(&notificationID)
		if err != nil {
			pool.Close()
			log.Fatalf("insert notification %q: %v", spec.subject, err)
		}
		if _, err := pool.Exec(ctx, `
			INSERT INTO queue_entries (notification_id, priority, execute_at)
			VALUES ($1, $2, NOW())`,
			notificationID, spec.priority,
		); err != nil {
			pool.Close()
			log.Fatalf("enqueue notification %q: %v", spec.subject, err)
		}
		queued++
	}

	pool.Close()

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Schedules created:     %d  (skipped %d already existing)\n", inserted, skipped)
	fmt.Printf("  Notifications queued:  %d\n", queued)
	fmt.Println()
	fmt.Println("How to test:")
	fmt.Println()
	fmt.Println("  Step 1 — list the schedules:")
	fmt.Println()
	fmt.Println("    curl -s http://localhost:8080/schedules | jq .")
	fmt.Println()
	fmt.Println("  Step 2 — see which ones are due right now:")
	fmt.Println()
	fmt.Println("    curl -s http://localhost:8080/status | jq .")
	fmt.Println()
	fmt.Println("  Step 3 — trigger one by hand (use an ID from step 1):")
	fmt.Println()
	fmt.Println("    curl -s -X POST http://localhost:8080/schedules/SCHEDULE_ID/execute | jq .")
	fmt.Println()
	fmt.Println("  Step 4 — start the scheduler process and watch the queue drain:")
	fmt.Println()
	fmt.Println("    go run ./cmd/scheduler")
	fmt.Println("    curl -s http://localhost:8080/queue/status | jq .")
	fmt.Println()
	fmt.Println("  What to expect:")
	fmt.Println("    Prices - Live            →  due only 09:00-17:30 on weekdays")
	fmt.Println("    ESPI Reports             →  due in the 22:00-06:00 overnight window")
	fmt.Println("    News RSS - Deep Crawl    →  never due until activated")
	fmt.Println("    urgent notification      →  delivered before high, high before low")
}
