package writer

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	appconfig "forecastflow/config"
	"forecastflow/internal/symbols"
	"forecastflow/logger"
	"forecastflow/models"
)

var forecastHeader = []string{
	"date", "symbol", "predicted_close", "forecast_day",
	"price_change", "price_change_pct", "lower_bound", "upper_bound",
}

var comparisonHeader = []string{
	"symbol", "method", "avg_predicted_close", "avg_change_pct",
	"horizon_days", "forecasted_from",
}

// CSVWriter renders run results into the output directory. Each method
// gets one combined file, optionally one file per symbol, and the run's
// comparison summary lands in forecast_comparison.csv. Files from a
// previous run are overwritten, never appended to.
type CSVWriter struct {
	config *appconfig.Config
	log    *logger.Log
}

func NewCSVWriter(cfg *appconfig.Config) (*CSVWriter, error) {
	if err := os.MkdirAll(cfg.Storage.CSV.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", cfg.Storage.CSV.Dir, err)
	}
	return &CSVWriter{config: cfg, log: logger.GetLogger()}, nil
}

// WriteResults writes the combined per-method files and, when enabled,
// the per-symbol files.
func (w *CSVWriter) WriteResults(results map[models.Method][]models.ForecastResult) error {
	log := w.log.WithComponent("csv_writer")

	for _, method := range models.AllMethods() {
		rs := results[method]
		if len(rs) == 0 {
			continue
		}

		path := filepath.Join(w.config.Storage.CSV.Dir, fmt.Sprintf("forecast_all_stocks_%s.csv", method))
		rows := 0
		for _, r := range rs {
			rows += len(r.Points)
		}
		if err := w.writeForecastFile(path, rs); err != nil {
			return err
		}
		log.WithFields(logger.Fields{
			"method": method,
			"file":   path,
			"rows":   rows,
		}).Info("method forecast file written")
		logger.LogDataFlowEntry(log, "orchestrator", "csv", rows, "forecast_points")

		if w.config.Storage.CSV.PerSymbol {
			for _, r := range rs {
				sp := filepath.Join(w.config.Storage.CSV.Dir,
					fmt.Sprintf("forecast_%s_%s.csv", symbols.Filename(r.Symbol), method))
				if err := w.writeForecastFile(sp, []models.ForecastResult{r}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// WriteComparison writes the cross-method summary table.
func (w *CSVWriter) WriteComparison(entries []models.ComparisonEntry) error {
	if !w.config.Storage.CSV.Comparison || len(entries) == 0 {
		return nil
	}

	path := filepath.Join(w.config.Storage.CSV.Dir, "forecast_comparison.csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(comparisonHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, e := range entries {
		record := []string{
			e.Symbol,
			e.Method.String(),
			formatFloat(e.AvgPredicted),
			formatFloat(e.AvgChangePct),
			strconv.Itoa(e.HorizonDays),
			e.ForecastedFrom,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write comparison row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}

	w.log.WithComponent("csv_writer").WithFields(logger.Fields{
		"file": path,
		"rows": len(entries),
	}).Info("comparison file written")
	return nil
}

func (w *CSVWriter) writeForecastFile(path string, results []models.ForecastResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(forecastHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range results {
		for _, p := range r.Points {
			record := []string{
				p.Timestamp.Format("2006-01-02"),
				p.Symbol,
				formatFloat(p.PredictedClose),
				strconv.Itoa(p.ForecastDay),
				formatFloat(p.PriceChange),
				formatFloat(p.PriceChangePct),
				formatBound(p.LowerBound),
				formatBound(p.UpperBound),
			}
			if err := cw.Write(record); err != nil {
				return fmt.Errorf("failed to write forecast row: %w", err)
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return nil
}

// formatFloat renders a value for CSV. NaN becomes an empty field, the
// marker for "not computable" such as a percent change off a zero close.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatBound(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
