package forecast

import (
	"math"
	"testing"
	"time"

	"forecastflow/models"
)

func dailySeries(t *testing.T, symbol string, closes []float64) models.PriceSeries {
	t.Helper()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = models.PriceBar{
			Timestamp: start.AddDate(0, 0, i),
			Symbol:    symbol,
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1000,
		}
	}
	return models.NewPriceSeries(symbol, bars)
}

func ramp(from float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = from + float64(i)
	}
	return out
}

func constant(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestLinearExactOnStraightLine(t *testing.T) {
	series := dailySeries(t, "AAPL", ramp(100, 20))

	result, err := Linear{}.Forecast(series, 5)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}
	if len(result.Points) != 5 {
		t.Fatalf("expected 5 points, got %d", len(result.Points))
	}

	lastClose := 119.0
	for i, p := range result.Points {
		want := 120.0 + float64(i)
		if math.Abs(p.PredictedClose-want) > 1e-6 {
			t.Fatalf("point %d: predicted %v, want %v", i, p.PredictedClose, want)
		}
		if p.ForecastDay != i+1 {
			t.Fatalf("point %d: forecast day %d, want %d", i, p.ForecastDay, i+1)
		}
		wantPct := (want - lastClose) / lastClose * 100
		if math.Abs(p.PriceChangePct-wantPct) > 1e-6 {
			t.Fatalf("point %d: pct %v, want %v", i, p.PriceChangePct, wantPct)
		}
		if p.LowerBound != nil || p.UpperBound != nil {
			t.Fatalf("linear should not emit bounds")
		}
	}
}

func TestLinearForecastDatesAreConsecutive(t *testing.T) {
	series := dailySeries(t, "TCS.NS", ramp(50, 10))
	last, _ := series.LastBar()

	result, err := Linear{}.Forecast(series, 3)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}
	for i, p := range result.Points {
		want := last.Timestamp.AddDate(0, 0, i+1)
		if !p.Timestamp.Equal(want) {
			t.Fatalf("point %d: date %v, want %v", i, p.Timestamp, want)
		}
	}
}

func TestMovingAverageConstantSeriesStaysFlat(t *testing.T) {
	series := dailySeries(t, "INFY.NS", constant(250, 30))

	result, err := MovingAverage{}.Forecast(series, 7)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}
	if len(result.Points) != 7 {
		t.Fatalf("expected 7 points, got %d", len(result.Points))
	}
	for i, p := range result.Points {
		if math.Abs(p.PredictedClose-250) > 1e-9 {
			t.Fatalf("point %d: predicted %v, want 250", i, p.PredictedClose)
		}
		if math.Abs(p.PriceChangePct) > 1e-9 {
			t.Fatalf("point %d: pct %v, want 0", i, p.PriceChangePct)
		}
	}
}

func TestMovingAverageExtrapolatesRecentTrend(t *testing.T) {
	// Last 10 closes rise by 2 per day, so the trend per point is
	// (recent[9]-recent[0])/10 = 18/10.
	closes := constant(100, 10)
	for i := 0; i < 10; i++ {
		closes = append(closes, 100+2*float64(i+1))
	}
	series := dailySeries(t, "GOOG", closes)

	result, err := MovingAverage{}.Forecast(series, 3)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}
	last := closes[len(closes)-1]
	for i, p := range result.Points {
		want := last + 1.8*float64(i+1)
		if math.Abs(p.PredictedClose-want) > 1e-9 {
			t.Fatalf("point %d: predicted %v, want %v", i, p.PredictedClose, want)
		}
	}
}

func TestARIMAConstantSeriesPredictsLastClose(t *testing.T) {
	series := dailySeries(t, "RELIANCE.NS", constant(80, 40))

	s, err := NewARIMA()
	if err != nil {
		t.Fatalf("NewARIMA failed: %v", err)
	}
	result, err := s.Forecast(series, 5)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}
	if len(result.Points) != 5 {
		t.Fatalf("expected 5 points, got %d", len(result.Points))
	}
	for i, p := range result.Points {
		if math.Abs(p.PredictedClose-80) > 1e-6 {
			t.Fatalf("point %d: predicted %v, want 80", i, p.PredictedClose)
		}
		if p.LowerBound == nil || p.UpperBound == nil {
			t.Fatalf("point %d: arima must emit bounds", i)
		}
		if *p.LowerBound > p.PredictedClose || *p.UpperBound < p.PredictedClose {
			t.Fatalf("point %d: bounds [%v, %v] do not straddle %v",
				i, *p.LowerBound, *p.UpperBound, p.PredictedClose)
		}
	}
}

func TestARIMABoundsWidenWithHorizon(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		// Noisy upward drift, deterministic so the test is stable.
		closes[i] = 100 + 0.5*float64(i) + 3*math.Sin(float64(i)*1.7)
	}
	series := dailySeries(t, "AAPL", closes)

	s, err := NewARIMA()
	if err != nil {
		t.Fatalf("NewARIMA failed: %v", err)
	}
	result, err := s.Forecast(series, 7)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}

	prevWidth := -1.0
	for i, p := range result.Points {
		if p.LowerBound == nil || p.UpperBound == nil {
			t.Fatalf("point %d: missing bounds", i)
		}
		width := *p.UpperBound - *p.LowerBound
		if width < 0 || math.IsNaN(width) || math.IsInf(width, 0) {
			t.Fatalf("point %d: bad interval width %v", i, width)
		}
		if width < prevWidth-1e-9 {
			t.Fatalf("point %d: interval narrowed from %v to %v", i, prevWidth, width)
		}
		prevWidth = width
	}
}

func TestARIMAShortSeriesYieldsEmptyResult(t *testing.T) {
	series := dailySeries(t, "HDFCBANK.NS", ramp(10, 14))

	s, err := NewARIMA()
	if err != nil {
		t.Fatalf("NewARIMA failed: %v", err)
	}
	result, err := s.Forecast(series, 5)
	if err != nil {
		t.Fatalf("short series must not be an error, got %v", err)
	}
	if !result.Empty() {
		t.Fatalf("expected empty result for 14 points, got %d points", len(result.Points))
	}
}

func TestProphetEmitsOrderedBounds(t *testing.T) {
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 200 + 0.8*float64(i) + 5*math.Sin(2*math.Pi*float64(i)/7)
	}
	series := dailySeries(t, "TCS.NS", closes)

	s, err := NewProphet()
	if err != nil {
		t.Fatalf("NewProphet failed: %v", err)
	}
	result, err := s.Forecast(series, 7)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}
	if len(result.Points) != 7 {
		t.Fatalf("expected 7 points, got %d", len(result.Points))
	}
	for i, p := range result.Points {
		if math.IsNaN(p.PredictedClose) || math.IsInf(p.PredictedClose, 0) {
			t.Fatalf("point %d: predicted close %v", i, p.PredictedClose)
		}
		if p.LowerBound == nil || p.UpperBound == nil {
			t.Fatalf("point %d: prophet must emit bounds", i)
		}
		if *p.LowerBound > p.PredictedClose || *p.UpperBound < p.PredictedClose {
			t.Fatalf("point %d: bounds [%v, %v] do not straddle %v",
				i, *p.LowerBound, *p.UpperBound, p.PredictedClose)
		}
	}
}

func TestProphetTracksLinearTrend(t *testing.T) {
	series := dailySeries(t, "GOOG", ramp(300, 40))

	s, err := NewProphet()
	if err != nil {
		t.Fatalf("NewProphet failed: %v", err)
	}
	result, err := s.Forecast(series, 5)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}
	for i, p := range result.Points {
		want := 340.0 + float64(i)
		if math.Abs(p.PredictedClose-want) > 2.0 {
			t.Fatalf("point %d: predicted %v too far from %v", i, p.PredictedClose, want)
		}
	}
}

func TestAllStrategiesReturnEmptyBelowMinPoints(t *testing.T) {
	for _, method := range models.AllMethods() {
		s := Build([]models.Method{method})[method]
		if s == nil {
			t.Fatalf("method %s not buildable", method)
		}
		series := dailySeries(t, "AAPL", ramp(1, s.MinPoints()-1))
		result, err := s.Forecast(series, 5)
		if err != nil {
			t.Fatalf("method %s: short series must not error, got %v", method, err)
		}
		if !result.Empty() {
			t.Fatalf("method %s: expected empty result below min points", method)
		}
		if result.Symbol != "AAPL" || result.Method != method {
			t.Fatalf("method %s: empty result must keep identity, got %s/%s",
				method, result.Symbol, result.Method)
		}
	}
}

func TestBuildSkipsUnknownMethods(t *testing.T) {
	built := Build([]models.Method{models.MethodLinear, models.Method("quantum")})
	if len(built) != 1 {
		t.Fatalf("expected 1 strategy, got %d", len(built))
	}
	if _, ok := built[models.MethodLinear]; !ok {
		t.Fatalf("linear strategy missing from build")
	}
}

func TestAvailableMethodsCoversBaseline(t *testing.T) {
	available := AvailableMethods()
	if len(available) != len(models.AllMethods()) {
		t.Fatalf("expected %d available methods, got %v", len(models.AllMethods()), available)
	}
}
