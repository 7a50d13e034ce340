package forecast

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"forecastflow/models"
)

// Prophet fits an additive decomposition in the style of the Prophet
// library: a piecewise-linear trend with evenly spaced changepoints over
// the first 80% of history plus weekly Fourier seasonality. Yearly and
// daily terms are omitted and the interval width is 95%. Changepoint
// deltas carry a ridge penalty so the trend stays moderately flexible.
type Prophet struct {
	changepoints          int
	fourierOrder          int
	changepointPriorScale float64
	seasonalityPriorScale float64
}

// NewProphet is the factory for the additive decomposition strategy.
func NewProphet() (Strategy, error) {
	return &Prophet{
		changepoints:          25,
		fourierOrder:          3,
		changepointPriorScale: 0.05,
		seasonalityPriorScale: 10,
	}, nil
}

func (*Prophet) Method() models.Method { return models.MethodProphet }

func (*Prophet) MinPoints() int { return 10 }

func (p *Prophet) Forecast(series models.PriceSeries, horizon int) (models.ForecastResult, error) {
	if series.Len() < p.MinPoints() {
		return emptyResult(series, p.Method()), nil
	}

	n := series.Len()
	first := series.Bars[0].Timestamp
	lastT := series.Bars[n-1].Timestamp.Sub(first).Hours() / 24
	if lastT <= 0 {
		return emptyResult(series, p.Method()), fmt.Errorf("series for %s spans zero days", series.Symbol)
	}

	// Observation times in days since the first bar.
	ts := make([]float64, n)
	for i, b := range series.Bars {
		ts[i] = b.Timestamp.Sub(first).Hours() / 24
	}

	nCP := p.changepoints
	if max := n - 2; nCP > max {
		nCP = max
	}
	if nCP < 0 {
		nCP = 0
	}
	// Changepoints sit in the first 80% of observed history.
	cps := make([]float64, nCP)
	for j := range cps {
		cps[j] = 0.8 * lastT * float64(j+1) / float64(nCP+1)
	}

	cols := 2 + nCP + 2*p.fourierOrder
	x := mat.NewDense(n, cols, nil)
	y := mat.NewVecDense(n, series.Closes())
	for i := 0; i < n; i++ {
		p.fillRow(x.RawRowView(i), ts[i], series.Bars[i].Timestamp, cps)
	}

	beta, err := ridgeSolve(x, y, p.penalties(cols, nCP))
	if err != nil {
		return emptyResult(series, p.Method()), fmt.Errorf("trend fit for %s: %w", series.Symbol, err)
	}

	// In-sample residual spread drives the interval width.
	var fitted mat.VecDense
	fitted.MulVec(x, beta)
	var sse float64
	for i := 0; i < n; i++ {
		r := y.AtVec(i) - fitted.AtVec(i)
		sse += r * r
	}
	dofDen := float64(n - cols)
	if dofDen < 1 {
		dofDen = 1
	}
	se := math.Sqrt(sse / dofDen)

	last, _ := series.LastBar()
	predicted := make([]float64, horizon)
	lower := make([]float64, horizon)
	upper := make([]float64, horizon)
	row := make([]float64, cols)
	for h := 0; h < horizon; h++ {
		future := last.Timestamp.AddDate(0, 0, h+1)
		p.fillRow(row, future.Sub(first).Hours()/24, future, cps)
		var yhat float64
		for j, v := range row {
			yhat += v * beta.AtVec(j)
		}
		predicted[h] = yhat
		lower[h] = yhat - arimaZ95*se
		upper[h] = yhat + arimaZ95*se
	}

	return buildResult(series, p.Method(), predicted, lower, upper)
}

// fillRow writes the design-matrix row for one observation: intercept,
// linear trend, changepoint hinges, then weekly Fourier terms keyed on
// absolute day-of-week phase.
func (p *Prophet) fillRow(row []float64, t float64, date time.Time, cps []float64) {
	row[0] = 1
	row[1] = t
	for j, cp := range cps {
		if t > cp {
			row[2+j] = t - cp
		} else {
			row[2+j] = 0
		}
	}
	dayPhase := float64(date.Unix()) / 86400.0
	base := 2 + len(cps)
	for k := 1; k <= p.fourierOrder; k++ {
		angle := 2 * math.Pi * float64(k) * dayPhase / 7
		row[base+2*(k-1)] = math.Sin(angle)
		row[base+2*(k-1)+1] = math.Cos(angle)
	}
}

// penalties builds the per-coefficient ridge weights: none on intercept
// and base slope, stiff on changepoint deltas, mild on seasonality.
func (p *Prophet) penalties(cols, nCP int) []float64 {
	lambda := make([]float64, cols)
	for j := 2; j < 2+nCP; j++ {
		lambda[j] = 1 / p.changepointPriorScale
	}
	for j := 2 + nCP; j < cols; j++ {
		lambda[j] = 1 / p.seasonalityPriorScale
	}
	return lambda
}

// ridgeSolve solves (X'X + diag(lambda)) beta = X'y.
func ridgeSolve(x *mat.Dense, y *mat.VecDense, lambda []float64) (*mat.VecDense, error) {
	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	for j, l := range lambda {
		xtx.Set(j, j, xtx.At(j, j)+l)
	}

	var xty mat.VecDense
	xty.MulVec(x.T(), y)

	var beta mat.VecDense
	if err := beta.SolveVec(&xtx, &xty); err != nil {
		return nil, err
	}
	return &beta, nil
}
