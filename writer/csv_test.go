package writer

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	appconfig "forecastflow/config"
	"forecastflow/models"
)

func csvConfig(t *testing.T) *appconfig.Config {
	t.Helper()
	cfg := &appconfig.Config{}
	cfg.Forecastflow.Name = "forecastflow-test"
	cfg.Forecastflow.Version = "0.0.1"
	cfg.Storage.CSV.Enabled = true
	cfg.Storage.CSV.Dir = t.TempDir()
	cfg.Storage.CSV.PerSymbol = true
	cfg.Storage.CSV.Comparison = true
	return cfg
}

func sampleResult(symbol string, method models.Method, lastClose float64, predicted []float64) models.ForecastResult {
	last := models.PriceBar{
		Timestamp: time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
		Symbol:    symbol,
		Close:     lastClose,
	}
	return models.ForecastResult{
		Symbol:      symbol,
		Method:      method,
		GeneratedAt: time.Now().UTC(),
		Points:      models.NewForecastPoints(last, predicted, nil, nil),
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return records
}

func TestWriteResultsMethodFile(t *testing.T) {
	cfg := csvConfig(t)
	w, err := NewCSVWriter(cfg)
	if err != nil {
		t.Fatalf("NewCSVWriter failed: %v", err)
	}

	results := map[models.Method][]models.ForecastResult{
		models.MethodLinear: {
			sampleResult("AAPL", models.MethodLinear, 119, []float64{120, 121}),
			sampleResult("GOOG", models.MethodLinear, 200, []float64{202}),
		},
	}
	if err := w.WriteResults(results); err != nil {
		t.Fatalf("WriteResults failed: %v", err)
	}

	records := readCSV(t, filepath.Join(cfg.Storage.CSV.Dir, "forecast_all_stocks_linear.csv"))
	if len(records) != 4 {
		t.Fatalf("expected header + 3 rows, got %d records", len(records))
	}
	if records[0][0] != "date" || records[0][2] != "predicted_close" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][1] != "AAPL" || records[1][0] != "2024-06-11" {
		t.Fatalf("unexpected first row: %v", records[1])
	}
	if records[3][1] != "GOOG" {
		t.Fatalf("unexpected last row: %v", records[3])
	}
}

func TestWriteResultsPerSymbolFiles(t *testing.T) {
	cfg := csvConfig(t)
	w, err := NewCSVWriter(cfg)
	if err != nil {
		t.Fatalf("NewCSVWriter failed: %v", err)
	}

	results := map[models.Method][]models.ForecastResult{
		models.MethodLinear: {
			sampleResult("RELIANCE.NS", models.MethodLinear, 100, []float64{101}),
		},
	}
	if err := w.WriteResults(results); err != nil {
		t.Fatalf("WriteResults failed: %v", err)
	}

	// Dots in the symbol are sanitized in the filename.
	path := filepath.Join(cfg.Storage.CSV.Dir, "forecast_RELIANCE_NS_linear.csv")
	records := readCSV(t, path)
	if len(records) != 2 {
		t.Fatalf("expected header + 1 row, got %d records", len(records))
	}
}

func TestWriteResultsOverwritesPreviousRun(t *testing.T) {
	cfg := csvConfig(t)
	w, err := NewCSVWriter(cfg)
	if err != nil {
		t.Fatalf("NewCSVWriter failed: %v", err)
	}

	first := map[models.Method][]models.ForecastResult{
		models.MethodLinear: {
			sampleResult("AAPL", models.MethodLinear, 119, []float64{120, 121, 122}),
		},
	}
	if err := w.WriteResults(first); err != nil {
		t.Fatalf("first WriteResults failed: %v", err)
	}

	second := map[models.Method][]models.ForecastResult{
		models.MethodLinear: {
			sampleResult("AAPL", models.MethodLinear, 119, []float64{125}),
		},
	}
	if err := w.WriteResults(second); err != nil {
		t.Fatalf("second WriteResults failed: %v", err)
	}

	records := readCSV(t, filepath.Join(cfg.Storage.CSV.Dir, "forecast_all_stocks_linear.csv"))
	if len(records) != 2 {
		t.Fatalf("expected file to be overwritten with 1 row, got %d records", len(records))
	}
	if records[1][2] != "125" {
		t.Fatalf("expected predicted close 125, got %v", records[1])
	}
}

func TestWriteResultsZeroCloseYieldsEmptyPctField(t *testing.T) {
	cfg := csvConfig(t)
	w, err := NewCSVWriter(cfg)
	if err != nil {
		t.Fatalf("NewCSVWriter failed: %v", err)
	}

	results := map[models.Method][]models.ForecastResult{
		models.MethodLinear: {
			sampleResult("ZERO", models.MethodLinear, 0, []float64{1}),
		},
	}
	if err := w.WriteResults(results); err != nil {
		t.Fatalf("WriteResults failed: %v", err)
	}

	records := readCSV(t, filepath.Join(cfg.Storage.CSV.Dir, "forecast_all_stocks_linear.csv"))
	if records[1][5] != "" {
		t.Fatalf("expected empty price_change_pct for zero close, got %q", records[1][5])
	}
}

func TestWriteComparison(t *testing.T) {
	cfg := csvConfig(t)
	w, err := NewCSVWriter(cfg)
	if err != nil {
		t.Fatalf("NewCSVWriter failed: %v", err)
	}

	entries := []models.ComparisonEntry{
		{Symbol: "AAPL", Method: models.MethodLinear, AvgPredicted: 121, AvgChangePct: 1.7, HorizonDays: 7, ForecastedFrom: "2024-06-10"},
		{Symbol: "AAPL", Method: models.MethodARIMA, AvgPredicted: 120, AvgChangePct: 0.8, HorizonDays: 7, ForecastedFrom: "2024-06-10"},
	}
	if err := w.WriteComparison(entries); err != nil {
		t.Fatalf("WriteComparison failed: %v", err)
	}

	records := readCSV(t, filepath.Join(cfg.Storage.CSV.Dir, "forecast_comparison.csv"))
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d records", len(records))
	}
	if records[1][1] != "linear" || records[2][1] != "arima" {
		t.Fatalf("unexpected method order: %v, %v", records[1], records[2])
	}
}
