package loader

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"forecastflow/config"
	"forecastflow/logger"
	"forecastflow/models"
)

// Source fetches raw daily bars for a symbol from an external provider.
// Returning zero bars is a normal outcome, not an error.
type Source interface {
	Name() string
	FetchDaily(ctx context.Context, symbol string, lookbackDays int) ([]models.PriceBar, error)
}

// Loader wraps a Source with rate limiting, request timeouts and the
// sort/dedupe/lookback-window policy shared by every provider.
type Loader struct {
	cfg     *config.Config
	source  Source
	limiter *rate.Limiter
	log     *logger.Log
}

// NewLoader selects the configured source backend and prepares the
// client-side rate limiter.
func NewLoader(cfg *config.Config) (*Loader, error) {
	log := logger.GetLogger()

	var source Source
	switch strings.ToLower(cfg.Loader.Source) {
	case "yahoo":
		source = NewYahooSource(cfg.Loader.Timeout)
	case "binance":
		source = NewBinanceSource(cfg.Loader.Timeout)
	default:
		return nil, fmt.Errorf("unknown loader source %q", cfg.Loader.Source)
	}

	rps := cfg.Loader.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 4
	}
	burst := cfg.Loader.RateLimit.BurstSize
	if burst < 1 {
		burst = 1
	}

	log.WithComponent("loader").WithFields(logger.Fields{
		"source":        source.Name(),
		"lookback_days": cfg.Loader.LookbackDays,
		"timeout":       cfg.Loader.Timeout,
	}).Info("loader initialized")

	return &Loader{
		cfg:     cfg,
		source:  source,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     log,
	}, nil
}

// NewLoaderWithSource builds a loader around an explicit source. Used by
// tests and by callers that manage their own provider selection.
func NewLoaderWithSource(cfg *config.Config, source Source) *Loader {
	return &Loader{
		cfg:     cfg,
		source:  source,
		limiter: rate.NewLimiter(rate.Inf, 1),
		log:     logger.GetLogger(),
	}
}

// Load fetches the close-price history for one symbol, sorted ascending
// with duplicate days dropped, truncated to the configured lookback
// window. An empty series with a nil error means the provider simply has
// no data for the symbol.
func (l *Loader) Load(ctx context.Context, symbol string) (models.PriceSeries, error) {
	log := l.log.WithComponent("loader").WithFields(logger.Fields{
		"symbol": symbol,
		"source": l.source.Name(),
	})

	if err := l.limiter.Wait(ctx); err != nil {
		return models.PriceSeries{Symbol: symbol}, fmt.Errorf("rate limit wait: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, l.cfg.Loader.Timeout)
	defer cancel()

	bars, err := l.source.FetchDaily(fetchCtx, symbol, l.cfg.Loader.LookbackDays)
	if err != nil {
		log.WithError(err).Warn("failed to fetch history")
		return models.PriceSeries{Symbol: symbol}, fmt.Errorf("fetch %s: %w", symbol, err)
	}

	series := models.NewPriceSeries(symbol, bars).Tail(l.cfg.Loader.LookbackDays)
	if series.Empty() {
		log.Warn("no data found for symbol")
		return series, nil
	}

	logger.IncrementSeriesLoaded(series.Len())
	log.WithFields(logger.Fields{"bars": series.Len()}).Info("history loaded")
	return series, nil
}
