package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"forecastflow/config"
	"forecastflow/forecast"
	"forecastflow/loader"
	"forecastflow/logger"
	"forecastflow/models"
	"forecastflow/orchestrator"
	"forecastflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	symbolsFlag := flag.String("symbols", "", "Comma separated symbol list, overrides configuration")
	horizonFlag := flag.Int("horizon", 0, "Forecast horizon in days, overrides configuration")
	methodsFlag := flag.String("methods", "", "Comma separated forecast methods, overrides configuration")

	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	applyOverrides(cfg, *symbolsFlag, *horizonFlag, *methodsFlag)

	log.WithFields(logger.Fields{
		"service": cfg.Forecastflow.Name,
		"version": cfg.Forecastflow.Version,
		"symbols": len(cfg.Symbols),
		"horizon": cfg.Forecast.Horizon,
	}).Info("starting forecastflow")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Storage.S3.Enabled {
		logger.InitCloudWatch(cfg.Storage.S3.Region, "Forecastflow", cfg.Logging.DashboardName)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	methods, err := parseMethods(cfg.Forecast.Methods)
	if err != nil {
		log.WithError(err).Error("Invalid forecast method configuration")
		os.Exit(1)
	}

	l, err := loader.NewLoader(cfg)
	if err != nil {
		log.WithError(err).Error("Failed to create series loader")
		os.Exit(1)
	}

	strategies := forecast.Build(methods)
	o, err := orchestrator.New(cfg, l, strategies)
	if err != nil {
		log.WithError(err).Error("Failed to create orchestrator")
		os.Exit(1)
	}

	report, err := o.Run(ctx, cfg.Symbols)
	if err != nil {
		log.WithError(err).Error("Forecast run aborted")
		os.Exit(1)
	}

	dispatch(ctx, cfg, log, report)

	log.WithFields(logger.Fields{
		"run_id":          report.RunID,
		"cells_succeeded": report.CellsSucceeded,
		"cells_skipped":   report.CellsSkipped,
		"duration_ms":     report.Duration.Milliseconds(),
	}).Info("forecastflow finished")
}

// dispatch hands the run results to every enabled sink. Sink failures
// are logged rather than fatal: a rejected table insert must not
// discard the CSV output of an otherwise good run.
func dispatch(ctx context.Context, cfg *config.Config, log *logger.Log, report *orchestrator.RunReport) {
	if cfg.Storage.CSV.Enabled {
		cw, err := writer.NewCSVWriter(cfg)
		if err != nil {
			log.WithError(err).Error("failed to create csv writer")
		} else {
			if err := cw.WriteResults(report.Results); err != nil {
				log.WithError(err).Error("failed to write forecast files")
			}
			if err := cw.WriteComparison(report.Comparison); err != nil {
				log.WithError(err).Error("failed to write comparison file")
			}
		}
	}

	if cfg.Storage.Table.Enabled {
		tw, err := writer.NewTableWriter(cfg)
		if err != nil {
			log.WithError(err).Error("failed to create table writer")
		} else if stored, err := tw.Store(ctx, report.Results); err != nil {
			log.WithError(err).WithFields(logger.Fields{"rows_stored": stored}).Error("failed to store forecast rows")
		} else {
			log.WithFields(logger.Fields{"rows_stored": stored}).Info("forecast rows stored")
		}
	}

	if cfg.Storage.S3.Enabled {
		aw, err := writer.NewArchiveWriter(cfg)
		if err != nil {
			log.WithError(err).Error("failed to create archive writer")
		} else if err := aw.Archive(ctx, report.RunID, report.Results); err != nil {
			log.WithError(err).Error("failed to archive forecasts")
		}
	}
}

func applyOverrides(cfg *config.Config, symbolList string, horizon int, methodList string) {
	if symbolList != "" {
		cfg.Symbols = splitList(symbolList)
	}
	if horizon > 0 {
		cfg.Forecast.Horizon = horizon
	}
	if methodList != "" {
		cfg.Forecast.Methods = splitList(methodList)
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseMethods(names []string) ([]models.Method, error) {
	if len(names) == 0 {
		return models.AllMethods(), nil
	}
	methods := make([]models.Method, 0, len(names))
	for _, name := range names {
		m, err := models.ParseMethod(name)
		if err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	return methods, nil
}
