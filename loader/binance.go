package loader

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"

	"forecastflow/internal/symbols"
	"forecastflow/models"
)

// BinanceSource fetches daily spot klines through the Binance SDK. Kline
// endpoints are public, so the client is created without credentials.
type BinanceSource struct {
	client *binance.Client
}

// NewBinanceSource creates a Binance spot source with the given request
// timeout.
func NewBinanceSource(timeout time.Duration) *BinanceSource {
	client := binance.NewClient("", "")
	client.HTTPClient = &http.Client{Timeout: timeout}
	return &BinanceSource{client: client}
}

func (s *BinanceSource) Name() string { return "binance" }

// FetchDaily requests up to lookbackDays daily klines for the symbol.
// Unknown symbols surface as an API error from the exchange and are
// reported to the caller; the loader treats that as a skip.
func (s *BinanceSource) FetchDaily(ctx context.Context, symbol string, lookbackDays int) ([]models.PriceBar, error) {
	limit := lookbackDays
	if limit > 1000 {
		limit = 1000
	}

	klines, err := s.client.NewKlinesService().
		Symbol(symbols.ToBinance(symbol)).
		Interval("1d").
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines: %w", err)
	}

	bars := make([]models.PriceBar, 0, len(klines))
	for _, k := range klines {
		open, err1 := strconv.ParseFloat(k.Open, 64)
		high, err2 := strconv.ParseFloat(k.High, 64)
		low, err3 := strconv.ParseFloat(k.Low, 64)
		closePx, err4 := strconv.ParseFloat(k.Close, 64)
		volume, err5 := strconv.ParseFloat(k.Volume, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			continue
		}
		bars = append(bars, models.PriceBar{
			Timestamp: time.UnixMilli(k.OpenTime).UTC().Truncate(24 * time.Hour),
			Symbol:    symbol,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePx,
			Volume:    volume,
		})
	}
	return bars, nil
}
