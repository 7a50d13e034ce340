package writer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	appconfig "forecastflow/config"
	"forecastflow/logger"
	"forecastflow/models"
)

// forecastRow is the wire shape of one table row. Nullable columns use
// pointers so a missing value serializes as SQL NULL rather than zero.
type forecastRow struct {
	ForecastDate   string   `json:"forecast_date"`
	Symbol         string   `json:"symbol"`
	Method         string   `json:"method"`
	PredictedClose float64  `json:"predicted_close"`
	ForecastDay    int      `json:"forecast_day"`
	PriceChange    float64  `json:"price_change"`
	PriceChangePct *float64 `json:"price_change_pct"`
	LowerBound     *float64 `json:"lower_bound"`
	UpperBound     *float64 `json:"upper_bound"`
}

// TableWriter persists forecast rows to a PostgREST style HTTP row
// store. Inserts are batched and idempotent: the conflict target is
// (forecast_date, symbol, method) and duplicate rows are ignored by the
// server, so re-running a day's forecast never fails or double-writes.
type TableWriter struct {
	config  *appconfig.Config
	client  *http.Client
	baseURL string
	log     *logger.Log
}

func NewTableWriter(cfg *appconfig.Config) (*TableWriter, error) {
	if cfg.Storage.Table.URL == "" || cfg.Storage.Table.APIKey == "" {
		return nil, fmt.Errorf("table storage requires url and api key")
	}

	timeout := cfg.Storage.Table.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &TableWriter{
		config:  cfg,
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.Storage.Table.URL, "/"),
		log:     logger.GetLogger(),
	}, nil
}

// Store flattens the run results into rows and upserts them in batches.
// It returns the number of rows handed to the store; rows already
// present from an earlier run count as stored since the server accepts
// and discards them.
func (w *TableWriter) Store(ctx context.Context, results map[models.Method][]models.ForecastResult) (int, error) {
	rows := flattenRows(results)
	if len(rows) == 0 {
		return 0, nil
	}

	log := w.log.WithComponent("table_writer").WithFields(logger.Fields{
		"table":      w.config.Storage.Table.Name,
		"total_rows": len(rows),
	})
	log.Info("storing forecast rows")

	batchSize := w.config.Storage.Table.BatchSize
	if batchSize < 1 {
		batchSize = 50
	}

	stored := 0
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		startTime := time.Now()
		if err := w.insertBatch(ctx, batch); err != nil {
			return stored, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		stored += len(batch)
		logger.IncrementRowsWritten(len(batch))

		logger.LogPerformanceEntry(log, "table_writer", "insert_batch",
			time.Since(startTime), logger.Fields{
				"batch_rows": len(batch),
				"offset":     start,
			})
	}

	log.WithFields(logger.Fields{"rows_stored": stored}).Info("forecast rows stored")
	logger.LogDataFlowEntry(log, "orchestrator", "row_store", stored, "forecast_rows")
	w.log.LogMetric("table_writer", "rows_stored", stored, "counter", logger.Fields{})
	return stored, nil
}

func (w *TableWriter) insertBatch(ctx context.Context, batch []forecastRow) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	endpoint := fmt.Sprintf("%s/rest/v1/%s?on_conflict=%s",
		w.baseURL, w.config.Storage.Table.Name,
		url.QueryEscape("forecast_date,symbol,method"))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	w.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution=ignore-duplicates,return=minimal")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("insert request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("row store returned %d: %s", resp.StatusCode, string(snippet))
	}
	return nil
}

// Fetch reads back the stored rows for one symbol and method, newest
// forecast date first.
func (w *TableWriter) Fetch(ctx context.Context, symbol string, method models.Method) ([]forecastRow, error) {
	endpoint := fmt.Sprintf("%s/rest/v1/%s?symbol=eq.%s&method=eq.%s&order=forecast_date.desc",
		w.baseURL, w.config.Storage.Table.Name,
		url.QueryEscape(symbol), url.QueryEscape(method.String()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	w.setHeaders(req)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("row store returned %d: %s", resp.StatusCode, string(snippet))
	}

	var rows []forecastRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode rows: %w", err)
	}
	return rows, nil
}

// DeleteSymbol removes every stored row for a symbol, used to clear out
// delisted tickers.
func (w *TableWriter) DeleteSymbol(ctx context.Context, symbol string) error {
	endpoint := fmt.Sprintf("%s/rest/v1/%s?symbol=eq.%s",
		w.baseURL, w.config.Storage.Table.Name, url.QueryEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	w.setHeaders(req)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("row store returned %d: %s", resp.StatusCode, string(snippet))
	}
	return nil
}

func (w *TableWriter) setHeaders(req *http.Request) {
	req.Header.Set("apikey", w.config.Storage.Table.APIKey)
	req.Header.Set("Authorization", "Bearer "+w.config.Storage.Table.APIKey)
}

// flattenRows turns the per-method results into table rows in canonical
// method order.
func flattenRows(results map[models.Method][]models.ForecastResult) []forecastRow {
	var rows []forecastRow
	for _, method := range models.AllMethods() {
		for _, r := range results[method] {
			for _, p := range r.Points {
				row := forecastRow{
					ForecastDate:   p.Timestamp.Format("2006-01-02"),
					Symbol:         p.Symbol,
					Method:         method.String(),
					PredictedClose: p.PredictedClose,
					ForecastDay:    p.ForecastDay,
					PriceChange:    p.PriceChange,
					LowerBound:     p.LowerBound,
					UpperBound:     p.UpperBound,
				}
				if !math.IsNaN(p.PriceChangePct) {
					pct := p.PriceChangePct
					row.PriceChangePct = &pct
				}
				rows = append(rows, row)
			}
		}
	}
	return rows
}
