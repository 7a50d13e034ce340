package loader

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"forecastflow/config"
	"forecastflow/models"
)

func minimalConfig() *config.Config {
	return &config.Config{
		Loader: config.LoaderConfig{
			Source:       "yahoo",
			LookbackDays: 5,
			Timeout:      time.Second,
			RateLimit:    config.RateLimitConfig{RequestsPerSecond: 100, BurstSize: 1},
		},
	}
}

type fakeSource struct {
	bars []models.PriceBar
	err  error
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchDaily(ctx context.Context, symbol string, lookbackDays int) ([]models.PriceBar, error) {
	return f.bars, f.err
}

func day(n int) time.Time {
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestNewLoaderRejectsUnknownSource(t *testing.T) {
	cfg := minimalConfig()
	cfg.Loader.Source = "nasdaq"
	if _, err := NewLoader(cfg); err == nil {
		t.Fatal("expected error for unknown source")
	}
}

func TestLoadSortsDedupesAndTruncates(t *testing.T) {
	bars := []models.PriceBar{
		{Timestamp: day(3), Symbol: "AAPL", Close: 103},
		{Timestamp: day(1), Symbol: "AAPL", Close: 101},
		{Timestamp: day(1), Symbol: "AAPL", Close: 111}, // duplicate day, later value wins
		{Timestamp: day(0), Symbol: "AAPL", Close: 100},
		{Timestamp: day(2), Symbol: "AAPL", Close: 102},
		{Timestamp: day(4), Symbol: "AAPL", Close: 104},
		{Timestamp: day(5), Symbol: "AAPL", Close: 105},
		{Timestamp: day(6), Symbol: "AAPL", Close: 106},
	}
	l := NewLoaderWithSource(minimalConfig(), &fakeSource{bars: bars})

	series, err := l.Load(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if series.Len() != 5 {
		t.Fatalf("expected 5 bars after lookback truncation, got %d", series.Len())
	}
	closes := series.Closes()
	want := []float64{102, 103, 104, 105, 106}
	for i, c := range want {
		if closes[i] != c {
			t.Errorf("close[%d] = %v, want %v", i, closes[i], c)
		}
	}
}

func TestLoadEmptySeriesIsNotAnError(t *testing.T) {
	l := NewLoaderWithSource(minimalConfig(), &fakeSource{})
	series, err := l.Load(context.Background(), "UNKNOWN")
	if err != nil {
		t.Fatalf("expected nil error for empty history, got %v", err)
	}
	if !series.Empty() {
		t.Fatalf("expected empty series, got %d bars", series.Len())
	}
}

func TestLoadSourceErrorIsReported(t *testing.T) {
	l := NewLoaderWithSource(minimalConfig(), &fakeSource{err: errors.New("boom")})
	series, err := l.Load(context.Background(), "AAPL")
	if err == nil {
		t.Fatal("expected error from failing source")
	}
	if !series.Empty() {
		t.Fatalf("expected empty series on error, got %d bars", series.Len())
	}
}

func TestYahooSourceDecodesChart(t *testing.T) {
	payload := map[string]interface{}{
		"chart": map[string]interface{}{
			"result": []map[string]interface{}{{
				"timestamp": []int64{day(0).Unix(), day(1).Unix(), day(2).Unix()},
				"indicators": map[string]interface{}{
					"quote": []map[string]interface{}{{
						"open":   []interface{}{100.0, 101.0, nil},
						"high":   []interface{}{101.0, 102.0, nil},
						"low":    []interface{}{99.0, 100.0, nil},
						"close":  []interface{}{100.5, 101.5, nil},
						"volume": []interface{}{1000.0, 1100.0, nil},
					}},
				},
			}},
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(payload)
	}))
	defer srv.Close()

	src := NewYahooSource(time.Second)
	src.baseURL = srv.URL

	bars, err := src.FetchDaily(context.Background(), "AAPL", 90)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected nil-close bar to be dropped, got %d bars", len(bars))
	}
	if bars[0].Close != 100.5 || bars[1].Close != 101.5 {
		t.Errorf("unexpected closes: %v, %v", bars[0].Close, bars[1].Close)
	}
}
