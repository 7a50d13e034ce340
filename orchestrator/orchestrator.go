package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	appconfig "forecastflow/config"
	"forecastflow/forecast"
	"forecastflow/logger"
	"forecastflow/models"
)

// SeriesLoader is the slice of the loader the orchestrator needs. It is
// satisfied by *loader.Loader and by fakes in tests.
type SeriesLoader interface {
	Load(ctx context.Context, symbol string) (models.PriceSeries, error)
}

// RunReport is the outcome of one forecast run over every symbol/method
// cell. Results hold only cells that produced points; skipped cells are
// counted but carry no rows.
type RunReport struct {
	RunID          string
	StartedAt      time.Time
	Duration       time.Duration
	Results        map[models.Method][]models.ForecastResult
	Comparison     []models.ComparisonEntry
	CellsSucceeded int
	CellsSkipped   int
}

// Orchestrator drives one run: it loads each symbol's history once,
// fans the symbol/method cells out over a bounded worker pool and
// collects the per-method result sets.
type Orchestrator struct {
	config     *appconfig.Config
	loader     SeriesLoader
	strategies map[models.Method]forecast.Strategy
	log        *logger.Log

	mu      sync.Mutex
	results map[models.Method][]models.ForecastResult
	skipped int
}

func New(cfg *appconfig.Config, l SeriesLoader, strategies map[models.Method]forecast.Strategy) (*Orchestrator, error) {
	if len(strategies) == 0 {
		return nil, fmt.Errorf("no forecast strategies available")
	}
	return &Orchestrator{
		config:     cfg,
		loader:     l,
		strategies: strategies,
		log:        logger.GetLogger(),
	}, nil
}

type cell struct {
	series models.PriceSeries
	method models.Method
}

// Run executes the full pipeline for the given symbols and returns the
// collected report. Failures in individual cells are logged and counted
// as skips; Run itself fails only on context cancellation.
func (o *Orchestrator) Run(ctx context.Context, symbolList []string) (*RunReport, error) {
	runID := uuid.New().String()
	started := time.Now()

	log := o.log.WithComponent("orchestrator").WithFields(logger.Fields{
		"run_id":  runID,
		"symbols": len(symbolList),
		"methods": len(o.strategies),
		"horizon": o.config.Forecast.Horizon,
	})
	log.Info("starting forecast run")

	o.mu.Lock()
	o.results = make(map[models.Method][]models.ForecastResult, len(o.strategies))
	o.skipped = 0
	o.mu.Unlock()

	methods := o.orderedMethods()
	cells := make(chan cell, len(symbolList)*len(methods))

	numWorkers := o.config.Forecast.MaxWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go o.worker(ctx, i, runID, cells, &wg)
	}

	// Each symbol's history is loaded once and shared across methods.
	for _, symbol := range symbolList {
		if ctx.Err() != nil {
			break
		}
		series, err := o.loader.Load(ctx, symbol)
		if err != nil {
			o.skipSymbol(symbol, len(methods), err)
			continue
		}
		for _, m := range methods {
			cells <- cell{series: series, method: m}
		}
	}
	close(cells)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("forecast run cancelled: %w", err)
	}

	report := o.buildReport(runID, started, symbolList, methods)

	log.WithFields(logger.Fields{
		"cells_succeeded": report.CellsSucceeded,
		"cells_skipped":   report.CellsSkipped,
		"duration_ms":     report.Duration.Milliseconds(),
	}).Info("forecast run finished")

	o.log.LogMetric("orchestrator", "cells_succeeded", report.CellsSucceeded, "counter", logger.Fields{"run_id": runID})
	o.log.LogMetric("orchestrator", "cells_skipped", report.CellsSkipped, "counter", logger.Fields{"run_id": runID})

	return report, nil
}

func (o *Orchestrator) worker(ctx context.Context, workerID int, runID string, cells <-chan cell, wg *sync.WaitGroup) {
	defer wg.Done()

	log := o.log.WithComponent("orchestrator").WithFields(logger.Fields{
		"worker_id": workerID,
		"run_id":    runID,
	})

	for c := range cells {
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		o.runCell(log, c)
		duration := time.Since(start)

		logger.LogPerformanceEntry(log, "orchestrator", "forecast_cell", duration, logger.Fields{
			"worker_id": workerID,
			"symbol":    c.series.Symbol,
			"method":    c.method,
		})
	}
}

func (o *Orchestrator) runCell(log *logger.Entry, c cell) {
	logger.IncrementCellsRun()

	strategy := o.strategies[c.method]
	cellLog := log.WithFields(logger.Fields{
		"symbol": c.series.Symbol,
		"method": c.method,
	})

	if c.series.Len() < strategy.MinPoints() {
		cellLog.WithFields(logger.Fields{
			"points":     c.series.Len(),
			"min_points": strategy.MinPoints(),
		}).Warn("insufficient history, cell skipped")
		o.recordSkip(1)
		return
	}

	result, err := strategy.Forecast(c.series, o.config.Forecast.Horizon)
	if err != nil {
		cellLog.WithError(err).Warn("forecast failed, cell skipped")
		o.recordSkip(1)
		return
	}
	if result.Empty() {
		cellLog.Warn("forecast produced no points, cell skipped")
		o.recordSkip(1)
		return
	}

	o.mu.Lock()
	o.results[c.method] = append(o.results[c.method], result)
	o.mu.Unlock()

	cellLog.WithFields(logger.Fields{"points": len(result.Points)}).Info("cell forecast complete")
}

func (o *Orchestrator) skipSymbol(symbol string, methodCount int, err error) {
	o.log.WithComponent("orchestrator").WithError(err).WithFields(logger.Fields{
		"symbol": symbol,
	}).Warn("symbol load failed, all cells skipped")
	o.recordSkip(methodCount)
}

func (o *Orchestrator) recordSkip(n int) {
	o.mu.Lock()
	o.skipped += n
	o.mu.Unlock()
}

// buildReport orders the collected results deterministically: methods
// in their canonical order, symbols in run order within each method.
func (o *Orchestrator) buildReport(runID string, started time.Time, symbolList []string, methods []models.Method) *RunReport {
	o.mu.Lock()
	defer o.mu.Unlock()

	symbolOrder := make(map[string]int, len(symbolList))
	for i, s := range symbolList {
		symbolOrder[s] = i
	}

	report := &RunReport{
		RunID:        runID,
		StartedAt:    started,
		Duration:     time.Since(started),
		Results:      make(map[models.Method][]models.ForecastResult, len(o.results)),
		CellsSkipped: o.skipped,
	}

	for _, m := range methods {
		rs := o.results[m]
		if len(rs) == 0 {
			continue
		}
		sorted := make([]models.ForecastResult, len(rs))
		copy(sorted, rs)
		sortResults(sorted, symbolOrder)
		report.Results[m] = sorted
		report.CellsSucceeded += len(sorted)

		for _, r := range sorted {
			report.Comparison = append(report.Comparison, models.Summarize(r))
		}
	}

	return report
}

func sortResults(rs []models.ForecastResult, order map[string]int) {
	for i := 1; i < len(rs); i++ {
		for j := i; j > 0 && order[rs[j].Symbol] < order[rs[j-1].Symbol]; j-- {
			rs[j], rs[j-1] = rs[j-1], rs[j]
		}
	}
}

// orderedMethods lists the configured strategies in canonical method
// order so runs and reports are reproducible.
func (o *Orchestrator) orderedMethods() []models.Method {
	methods := make([]models.Method, 0, len(o.strategies))
	for _, m := range models.AllMethods() {
		if _, ok := o.strategies[m]; ok {
			methods = append(methods, m)
		}
	}
	return methods
}
