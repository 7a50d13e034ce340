package forecast

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"forecastflow/models"
)

// Linear forecasts by ordinary least squares: close price is regressed
// against a zero-based day index over the whole series and the fitted
// line is evaluated at the next horizon indices.
type Linear struct{}

func (Linear) Method() models.Method { return models.MethodLinear }

func (Linear) MinPoints() int { return 5 }

func (l Linear) Forecast(series models.PriceSeries, horizon int) (models.ForecastResult, error) {
	if series.Len() < l.MinPoints() {
		return emptyResult(series, l.Method()), nil
	}

	closes := series.Closes()
	n := len(closes)
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}

	alpha, beta := stat.LinearRegression(xs, closes, nil, false)
	if math.IsNaN(alpha) || math.IsNaN(beta) {
		return emptyResult(series, l.Method()), fmt.Errorf("degenerate regression for %s", series.Symbol)
	}

	predicted := make([]float64, horizon)
	for i := 0; i < horizon; i++ {
		predicted[i] = alpha + beta*float64(n+i)
	}

	return buildResult(series, l.Method(), predicted, nil, nil)
}
