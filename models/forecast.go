package models

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Method identifies a forecasting strategy. The set is open: storage and
// comparison logic treat the value as an opaque tag so additional methods
// can be added without touching the sinks.
type Method string

const (
	MethodLinear        Method = "linear"
	MethodMovingAverage Method = "moving_average"
	MethodARIMA         Method = "arima"
	MethodProphet       Method = "prophet"
)

// AllMethods returns the baseline methods in their canonical order.
func AllMethods() []Method {
	return []Method{MethodLinear, MethodMovingAverage, MethodARIMA, MethodProphet}
}

// ParseMethod normalizes a method name from config or flags.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case MethodLinear, MethodMovingAverage, MethodARIMA, MethodProphet:
		return m, nil
	}
	return "", fmt.Errorf("unknown forecast method %q", s)
}

func (m Method) String() string { return string(m) }

// PriceBar is one daily OHLCV observation for a symbol. Only Close is
// consumed by the strategies; the remaining fields are carried through.
type PriceBar struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// PriceSeries is an ordered run of bars for a single symbol, ascending by
// timestamp with no duplicate days.
type PriceSeries struct {
	Symbol string     `json:"symbol"`
	Bars   []PriceBar `json:"bars"`
}

// NewPriceSeries sorts the bars ascending and drops duplicate days,
// keeping the last bar seen for each day.
func NewPriceSeries(symbol string, bars []PriceBar) PriceSeries {
	sorted := make([]PriceBar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	deduped := sorted[:0]
	for _, b := range sorted {
		if n := len(deduped); n > 0 && sameDay(deduped[n-1].Timestamp, b.Timestamp) {
			deduped[n-1] = b
			continue
		}
		deduped = append(deduped, b)
	}
	return PriceSeries{Symbol: symbol, Bars: deduped}
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

func (s PriceSeries) Len() int { return len(s.Bars) }

func (s PriceSeries) Empty() bool { return len(s.Bars) == 0 }

// Tail returns a series holding at most the last n bars.
func (s PriceSeries) Tail(n int) PriceSeries {
	if n < 0 || n >= len(s.Bars) {
		return s
	}
	return PriceSeries{Symbol: s.Symbol, Bars: s.Bars[len(s.Bars)-n:]}
}

// Closes extracts the close prices in series order.
func (s PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		closes[i] = b.Close
	}
	return closes
}

// LastBar returns the most recent bar; ok is false for an empty series.
func (s PriceSeries) LastBar() (PriceBar, bool) {
	if len(s.Bars) == 0 {
		return PriceBar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// ForecastPoint is one predicted future observation. LowerBound and
// UpperBound are set only by methods that produce an interval.
type ForecastPoint struct {
	Timestamp      time.Time `json:"timestamp"`
	Symbol         string    `json:"symbol"`
	PredictedClose float64   `json:"predicted_close"`
	ForecastDay    int       `json:"forecast_day"`
	PriceChange    float64   `json:"price_change"`
	PriceChangePct float64   `json:"price_change_pct"`
	LowerBound     *float64  `json:"lower_bound,omitempty"`
	UpperBound     *float64  `json:"upper_bound,omitempty"`
}

// ForecastResult is the ordered horizon forecast for one (symbol, method)
// pair. An empty Points slice signals "could not forecast".
type ForecastResult struct {
	Symbol      string          `json:"symbol"`
	Method      Method          `json:"method"`
	GeneratedAt time.Time       `json:"generated_at"`
	Points      []ForecastPoint `json:"points"`
}

func (r ForecastResult) Empty() bool { return len(r.Points) == 0 }

// NewForecastPoints assembles horizon points from predicted closes and
// optional bounds. Dates advance one whole day per point from the last
// known bar. PriceChangePct is NaN when the last close is zero.
func NewForecastPoints(last PriceBar, predicted []float64, lower, upper []float64) []ForecastPoint {
	points := make([]ForecastPoint, len(predicted))
	for i, p := range predicted {
		pct := math.NaN()
		if last.Close != 0 {
			pct = (p - last.Close) / last.Close * 100
		}
		points[i] = ForecastPoint{
			Timestamp:      last.Timestamp.AddDate(0, 0, i+1),
			Symbol:         last.Symbol,
			PredictedClose: p,
			ForecastDay:    i + 1,
			PriceChange:    p - last.Close,
			PriceChangePct: pct,
		}
		if lower != nil && upper != nil {
			lo, hi := lower[i], upper[i]
			points[i].LowerBound = &lo
			points[i].UpperBound = &hi
		}
	}
	return points
}

// ComparisonEntry is one row of the cross-method summary: the mean
// predicted close and mean percentage change across a result's horizon.
type ComparisonEntry struct {
	Symbol         string  `json:"symbol"`
	Method         Method  `json:"method"`
	AvgPredicted   float64 `json:"avg_predicted_close"`
	AvgChangePct   float64 `json:"avg_change_pct"`
	HorizonDays    int     `json:"horizon_days"`
	ForecastedFrom string  `json:"forecasted_from"`
}

// Summarize reduces a non-empty result to its comparison entry.
func Summarize(r ForecastResult) ComparisonEntry {
	var sumClose, sumPct float64
	for _, p := range r.Points {
		sumClose += p.PredictedClose
		sumPct += p.PriceChangePct
	}
	n := float64(len(r.Points))
	from := ""
	if len(r.Points) > 0 {
		from = r.Points[0].Timestamp.AddDate(0, 0, -1).Format("2006-01-02")
	}
	return ComparisonEntry{
		Symbol:         r.Symbol,
		Method:         r.Method,
		AvgPredicted:   sumClose / n,
		AvgChangePct:   sumPct / n,
		HorizonDays:    len(r.Points),
		ForecastedFrom: from,
	}
}
