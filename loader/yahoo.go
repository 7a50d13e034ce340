package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"forecastflow/internal/symbols"
	"forecastflow/models"
)

const yahooChartURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// YahooSource fetches daily bars from the Yahoo Finance chart API.
type YahooSource struct {
	client  *http.Client
	baseURL string
}

// NewYahooSource creates a Yahoo Finance source with the given request
// timeout.
func NewYahooSource(timeout time.Duration) *YahooSource {
	return &YahooSource{
		client:  &http.Client{Timeout: timeout},
		baseURL: yahooChartURL,
	}
}

func (s *YahooSource) Name() string { return "yahoo" }

// yahooChart is the response structure from the Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// FetchDaily requests daily bars covering the lookback window. The time
// range is padded so weekends and holidays still leave enough trading
// days to fill the window.
func (s *YahooSource) FetchDaily(ctx context.Context, symbol string, lookbackDays int) ([]models.PriceBar, error) {
	now := time.Now()
	// Calendar days to trading days is roughly 7:5; double the window to be safe.
	from := now.AddDate(0, 0, -2*lookbackDays)

	u := fmt.Sprintf("%s/%s?interval=1d&period1=%d&period2=%d",
		s.baseURL, url.PathEscape(symbols.ToYahoo(symbol)), from.Unix(), now.Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo fetch: unexpected status %d", resp.StatusCode)
	}

	var chart yahooChart
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return nil, fmt.Errorf("decode chart: %w", err)
	}

	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo chart error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	bars := make([]models.PriceBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}
		bars = append(bars, models.PriceBar{
			Timestamp: time.Unix(ts, 0).UTC().Truncate(24 * time.Hour),
			Symbol:    symbol,
			Open:      deref(at(quote.Open, i)),
			High:      deref(at(quote.High, i)),
			Low:       deref(at(quote.Low, i)),
			Close:     deref(quote.Close[i]),
			Volume:    deref(at(quote.Volume, i)),
		})
	}
	return bars, nil
}

func at(vs []*float64, i int) *float64 {
	if i < len(vs) {
		return vs[i]
	}
	return nil
}
