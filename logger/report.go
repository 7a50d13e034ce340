package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

var (
	seriesLoaded int64
	barsFetched  int64
	cellsRun     int64
	rowsWritten  int64

	warnCounts  sync.Map // map[string]*int64 per component
	errorCounts sync.Map // map[string]*int64 per component
)

func recordWarn(component string) {
	v, _ := warnCounts.LoadOrStore(component, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

func recordError(component string) {
	v, _ := errorCounts.LoadOrStore(component, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

// IncrementSeriesLoaded records one completed history fetch of barCount bars.
func IncrementSeriesLoaded(barCount int) {
	atomic.AddInt64(&seriesLoaded, 1)
	atomic.AddInt64(&barsFetched, int64(barCount))
}

// IncrementCellsRun records one evaluated symbol/method cell.
func IncrementCellsRun() {
	atomic.AddInt64(&cellsRun, 1)
}

// IncrementRowsWritten records rows accepted by a sink.
func IncrementRowsWritten(n int) {
	atomic.AddInt64(&rowsWritten, int64(n))
}

// StartReport begins periodic logging of runtime and pipeline statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func sumCounts(m *sync.Map) int64 {
	var total int64
	m.Range(func(_, v any) bool {
		total += atomic.LoadInt64(v.(*int64))
		return true
	})
	return total
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()

	cpuPct := float64(0)
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}
	memUsedMB := float64(0)
	if memStats != nil {
		memUsedMB = float64(memStats.Used) / 1024 / 1024
	}

	fields := Fields{
		"cpu_percent":   cpuPct,
		"memory_mb":     memUsedMB,
		"goroutines":    runtime.NumGoroutine(),
		"series_loaded": atomic.LoadInt64(&seriesLoaded),
		"bars_fetched":  atomic.LoadInt64(&barsFetched),
		"cells_run":     atomic.LoadInt64(&cellsRun),
		"rows_written":  atomic.LoadInt64(&rowsWritten),
		"warns_total":   sumCounts(&warnCounts),
		"errors_total":  sumCounts(&errorCounts),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(memUsedMB)},
		{MetricName: aws.String("SeriesLoaded"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&seriesLoaded)))},
		{MetricName: aws.String("BarsFetched"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&barsFetched)))},
		{MetricName: aws.String("CellsRun"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&cellsRun)))},
		{MetricName: aws.String("RowsWritten"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&rowsWritten)))},
	}

	publishMetrics(ctx, data)
}
