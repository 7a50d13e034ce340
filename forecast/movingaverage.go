package forecast

import (
	"forecastflow/logger"
	"forecastflow/models"
)

// MovingAverage forecasts by extrapolating the recent trend: the average
// daily delta over the last min(10, n) points, applied linearly from the
// last close. An EWMA baseline with span min(20, n) is computed alongside
// and surfaced for inspection, but the forecast path does not consume it.
type MovingAverage struct{}

func (MovingAverage) Method() models.Method { return models.MethodMovingAverage }

func (MovingAverage) MinPoints() int { return 5 }

func (m MovingAverage) Forecast(series models.PriceSeries, horizon int) (models.ForecastResult, error) {
	if series.Len() < m.MinPoints() {
		return emptyResult(series, m.Method()), nil
	}

	closes := series.Closes()
	n := len(closes)

	span := 20
	if n < span {
		span = n
	}
	baseline := ewma(closes, span)

	window := 10
	if n < window {
		window = n
	}
	recent := closes[n-window:]
	trend := (recent[len(recent)-1] - recent[0]) / float64(len(recent))

	logger.GetLogger().WithComponent("moving_average").WithFields(logger.Fields{
		"symbol":        series.Symbol,
		"ewma_baseline": baseline[len(baseline)-1],
		"trend":         trend,
		"window":        window,
	}).Debug("trend estimated")

	last := closes[n-1]
	predicted := make([]float64, horizon)
	for i := 0; i < horizon; i++ {
		predicted[i] = last + trend*float64(i+1)
	}

	return buildResult(series, m.Method(), predicted, nil, nil)
}

// ewma computes an exponentially weighted moving average with
// alpha = 2/(span+1), seeded from the first value.
func ewma(values []float64, span int) []float64 {
	alpha := 2.0 / (float64(span) + 1.0)
	out := make([]float64, len(values))
	for i, v := range values {
		if i == 0 {
			out[i] = v
			continue
		}
		out[i] = alpha*v + (1-alpha)*out[i-1]
	}
	return out
}
