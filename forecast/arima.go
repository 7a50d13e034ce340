package forecast

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"forecastflow/models"
)

// ARIMA fits an ARIMA(1,1,1) model to the close series: the series is
// differenced once and an ARMA(1,1) without constant is estimated by
// conditional sum of squares. Forecasts are produced recursively and a
// 95% interval is derived from the psi-weight forecast variance of the
// integrated process.
type ARIMA struct{}

// NewARIMA is the factory for the ARIMA strategy.
func NewARIMA() (Strategy, error) {
	return &ARIMA{}, nil
}

func (*ARIMA) Method() models.Method { return models.MethodARIMA }

func (*ARIMA) MinPoints() int { return 15 }

const arimaZ95 = 1.959963984540054

func (a *ARIMA) Forecast(series models.PriceSeries, horizon int) (models.ForecastResult, error) {
	if series.Len() < a.MinPoints() {
		return emptyResult(series, a.Method()), nil
	}

	closes := series.Closes()
	n := len(closes)

	// First difference removes the unit root; the ARMA part is fit on it.
	diffs := make([]float64, n-1)
	for i := 1; i < n; i++ {
		diffs[i-1] = closes[i] - closes[i-1]
	}

	phi, theta, sigma2, epsLast, err := fitARMA11(diffs)
	if err != nil {
		return emptyResult(series, a.Method()), err
	}

	// Recursive mean forecast of the differenced series.
	yLast := diffs[len(diffs)-1]
	diffForecast := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		if h == 0 {
			diffForecast[h] = phi*yLast + theta*epsLast
		} else {
			diffForecast[h] = phi * diffForecast[h-1]
		}
	}

	// Integrate back to the price level.
	last := closes[n-1]
	predicted := make([]float64, horizon)
	level := last
	for h := 0; h < horizon; h++ {
		level += diffForecast[h]
		predicted[h] = level
	}

	// Psi weights of the ARMA part; the integrated process accumulates them.
	psiSum := 1.0
	psi := 1.0
	varAccum := 0.0
	lower := make([]float64, horizon)
	upper := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		varAccum += psiSum * psiSum
		se := math.Sqrt(sigma2 * varAccum)
		lower[h] = predicted[h] - arimaZ95*se
		upper[h] = predicted[h] + arimaZ95*se

		if h == 0 {
			psi = phi + theta
		} else {
			psi *= phi
		}
		psiSum += psi
	}

	return buildResult(series, a.Method(), predicted, lower, upper)
}

// fitARMA11 estimates y_t = phi*y_{t-1} + theta*eps_{t-1} + eps_t by
// minimising the conditional sum of squares with Nelder-Mead, keeping
// both coefficients inside the stationarity/invertibility region.
func fitARMA11(y []float64) (phi, theta, sigma2, epsLast float64, err error) {
	m := len(y)
	if m < 3 {
		return 0, 0, 0, 0, fmt.Errorf("differenced series too short: %d", m)
	}

	css := func(x []float64) float64 {
		p, q := x[0], x[1]
		if math.Abs(p) >= 1 || math.Abs(q) >= 1 {
			return 1e12 * (1 + math.Abs(p) + math.Abs(q))
		}
		var sse, eps float64
		for t := 1; t < m; t++ {
			e := y[t] - p*y[t-1] - q*eps
			sse += e * e
			eps = e
		}
		return sse
	}

	problem := optimize.Problem{Func: css}
	result, optErr := optimize.Minimize(problem, []float64{0.1, 0.1}, nil, &optimize.NelderMead{})
	if optErr != nil && result == nil {
		return 0, 0, 0, 0, fmt.Errorf("arma fit: %w", optErr)
	}

	phi, theta = result.X[0], result.X[1]
	if math.Abs(phi) >= 1 || math.Abs(theta) >= 1 || math.IsNaN(phi) || math.IsNaN(theta) {
		return 0, 0, 0, 0, fmt.Errorf("arma fit did not converge (phi=%v theta=%v)", phi, theta)
	}

	// Rebuild residuals at the optimum for sigma^2 and the last innovation.
	var sse, eps float64
	for t := 1; t < m; t++ {
		e := y[t] - phi*y[t-1] - theta*eps
		sse += e * e
		eps = e
	}
	dof := float64(m - 3) // m-1 residuals, two parameters
	if dof < 1 {
		dof = 1
	}
	return phi, theta, sse / dof, eps, nil
}
