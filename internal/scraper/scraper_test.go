package scraper_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/domain"
	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/scraper"
)

// ---- registry ----

func TestLookup_RegisteredKind(t *testing.T) {
	want := scraper.HandlerFunc(func(context.Context, map[string]any) (scraper.Stats, error) {
		return scraper.Stats{Processed: 1}, nil
	})
	registry := scraper.NewRegistry().Register(domain.KindNewsFeed, want)

	h, err := registry.Lookup(domain.KindNewsFeed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stats, err := h.Run(context.Background(), nil)
	if err != nil || stats.Processed != 1 {
		t.Errorf("handler run = %+v, %v", stats, err)
	}
}

func TestLookup_KindOutsideEnum(t *testing.T) {
	registry := scraper.NewRegistry()

	_, err := registry.Lookup(domain.ScraperKind("sentiment-feed"))
	if !errors.Is(err, domain.ErrUnknownScraperKind) {
		t.Fatalf("want ErrUnknownScraperKind, got %v", err)
	}
}

func TestLookup_ValidKindWithoutHandler(t *testing.T) {
	registry := scraper.NewRegistry().Register(domain.KindNewsFeed, scraper.HandlerFunc(nil))

	_, err := registry.Lookup(domain.KindPriceFeed)
	if !errors.Is(err, domain.ErrUnknownScraperKind) {
		t.Fatalf("want ErrUnknownScraperKind, got %v", err)
	}
}

// ---- HTTP feed handler ----

func TestHTTPFeedHandler_DecodesCounts(t *testing.T) {
	var gotConfig map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotConfig); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"processed": 120, "created": 7, "updated": 113})
	}))
	defer srv.Close()

	h := scraper.NewHTTPFeedHandler(srv.URL)
	stats, err := h.Run(context.Background(), map[string]any{"feeds": []any{"stooq"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Processed != 120 || stats.Created != 7 || stats.Updated != 113 {
		t.Errorf("stats = %+v", stats)
	}
	if _, ok := gotConfig["feeds"]; !ok {
		t.Error("scraper config not forwarded to the collector")
	}
}

func TestHTTPFeedHandler_EndpointOverrideFromConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"processed": 1})
	}))
	defer srv.Close()

	h := scraper.NewHTTPFeedHandler("")
	stats, err := h.Run(context.Background(), map[string]any{"endpoint": srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Processed != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestHTTPFeedHandler_NoEndpointAnywhere(t *testing.T) {
	h := scraper.NewHTTPFeedHandler("")

	_, err := h.Run(context.Background(), map[string]any{})
	if err == nil || !strings.Contains(err.Error(), "no endpoint") {
		t.Fatalf("want missing-endpoint error, got %v", err)
	}
}

func TestHTTPFeedHandler_Non200IsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := scraper.NewHTTPFeedHandler(srv.URL).Run(context.Background(), map[string]any{})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("want status error, got %v", err)
	}
}

func TestHTTPFeedHandler_CollectorErrorWithPartialCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"processed": 40,
			"error":     "upstream feed truncated",
		})
	}))
	defer srv.Close()

	stats, err := scraper.NewHTTPFeedHandler(srv.URL).Run(context.Background(), map[string]any{})
	if err == nil || !strings.Contains(err.Error(), "upstream feed truncated") {
		t.Fatalf("want collector error, got %v", err)
	}
	if stats.Processed != 40 {
		t.Errorf("partial counts dropped: %+v", stats)
	}
}
