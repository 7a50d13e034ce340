package forecast

import (
	"fmt"
	"time"

	"forecastflow/logger"
	"forecastflow/models"
)

// Strategy maps a historical close-price series to a fixed-horizon
// forecast. Implementations are stateless: every Forecast call is pure
// given its input series, so strategies may be shared across goroutines.
//
// A series shorter than MinPoints yields an empty result with a nil
// error. A non-nil error signals an internal numerical failure, which
// callers convert into a skip for that symbol/method cell.
type Strategy interface {
	Method() models.Method
	MinPoints() int
	Forecast(series models.PriceSeries, horizon int) (models.ForecastResult, error)
}

// Factory constructs a strategy, failing when the method's numerical
// machinery cannot be set up. Availability is decided from the factories
// once at startup rather than per call.
type Factory func() (Strategy, error)

func factories() map[models.Method]Factory {
	return map[models.Method]Factory{
		models.MethodLinear:        func() (Strategy, error) { return &Linear{}, nil },
		models.MethodMovingAverage: func() (Strategy, error) { return &MovingAverage{}, nil },
		models.MethodARIMA:         NewARIMA,
		models.MethodProphet:       NewProphet,
	}
}

// Build constructs the requested strategies. Methods whose factory fails
// are excluded from the returned set and logged so a run proceeds with
// whatever is available.
func Build(methods []models.Method) map[models.Method]Strategy {
	log := logger.GetLogger().WithComponent("forecast")

	built := make(map[models.Method]Strategy, len(methods))
	all := factories()
	for _, m := range methods {
		factory, ok := all[m]
		if !ok {
			log.WithFields(logger.Fields{"method": m}).Warn("unknown forecast method requested")
			continue
		}
		s, err := factory()
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"method": m}).Warn("forecast method unavailable")
			continue
		}
		built[m] = s
	}
	return built
}

// AvailableMethods reports which of the baseline methods can be
// constructed in this process.
func AvailableMethods() []models.Method {
	available := make([]models.Method, 0, 4)
	all := factories()
	for _, m := range models.AllMethods() {
		if factory, ok := all[m]; ok {
			if _, err := factory(); err == nil {
				available = append(available, m)
			}
		}
	}
	return available
}

// emptyResult is the shared "could not forecast" value.
func emptyResult(series models.PriceSeries, method models.Method) models.ForecastResult {
	return models.ForecastResult{
		Symbol:      series.Symbol,
		Method:      method,
		GeneratedAt: time.Now().UTC(),
	}
}

// buildResult assembles a result from predicted closes and optional
// bounds, validating the horizon contract.
func buildResult(series models.PriceSeries, method models.Method, predicted, lower, upper []float64) (models.ForecastResult, error) {
	last, ok := series.LastBar()
	if !ok {
		return emptyResult(series, method), nil
	}
	if lower != nil && (len(lower) != len(predicted) || len(upper) != len(predicted)) {
		return emptyResult(series, method), fmt.Errorf("bounds length %d does not match horizon %d", len(lower), len(predicted))
	}
	return models.ForecastResult{
		Symbol:      series.Symbol,
		Method:      method,
		GeneratedAt: time.Now().UTC(),
		Points:      models.NewForecastPoints(last, predicted, lower, upper),
	}, nil
}
