package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Forecastflow ForecastflowConfig `yaml:"forecastflow"`
	Logging      LoggingConfig      `yaml:"logging"`
	Loader       LoaderConfig       `yaml:"loader"`
	Forecast     ForecastConfig     `yaml:"forecast"`
	Symbols      []string           `yaml:"symbols"`
	Storage      StorageConfig      `yaml:"storage"`
}

type ForecastflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	DashboardName string `yaml:"dashboard_name"`
}

type LoaderConfig struct {
	Source       string          `yaml:"source"`
	LookbackDays int             `yaml:"lookback_days"`
	Timeout      time.Duration   `yaml:"timeout"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

type ForecastConfig struct {
	Horizon    int      `yaml:"horizon"`
	Methods    []string `yaml:"methods"`
	MaxWorkers int      `yaml:"max_workers"`
}

type StorageConfig struct {
	CSV   CSVConfig   `yaml:"csv"`
	Table TableConfig `yaml:"table"`
	S3    S3Config    `yaml:"s3"`
}

type CSVConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Dir        string `yaml:"dir"`
	PerSymbol  bool   `yaml:"per_symbol"`
	Comparison bool   `yaml:"comparison"`
}

type TableConfig struct {
	Enabled   bool          `yaml:"enabled"`
	URL       string        `yaml:"url"`
	APIKey    string        `yaml:"api_key"`
	Name      string        `yaml:"name"`
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// DefaultSymbols is the default watch list used when neither the config
// file nor the command line names any symbols.
var DefaultSymbols = []string{
	"RELIANCE.NS",
	"TCS.NS",
	"HDFCBANK.NS",
	"INFY.NS",
	"AAPL",
	"GOOG",
}

// LoadConfig reads and validates the YAML configuration. Secrets are
// overridden from the environment so they never have to live in the file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Loader: LoaderConfig{
			Source:       "yahoo",
			LookbackDays: 90,
			Timeout:      30 * time.Second,
			RateLimit:    RateLimitConfig{RequestsPerSecond: 4, BurstSize: 2},
		},
		Forecast: ForecastConfig{
			Horizon:    7,
			MaxWorkers: 4,
		},
		Storage: StorageConfig{
			CSV:   CSVConfig{Enabled: true, Dir: "forecasts", Comparison: true},
			Table: TableConfig{Name: "forecast_stocks", BatchSize: 50, Timeout: 10 * time.Second},
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override table store credentials from environment variables if available
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		config.Storage.Table.URL = strings.TrimSpace(v)
	}
	if v := os.Getenv("SUPABASE_API_KEY"); v != "" {
		config.Storage.Table.APIKey = strings.TrimSpace(v)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	if len(config.Symbols) == 0 {
		config.Symbols = append([]string(nil), DefaultSymbols...)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Forecastflow.Name == "" {
		return fmt.Errorf("forecastflow.name is required")
	}

	if cfg.Forecastflow.Version == "" {
		return fmt.Errorf("forecastflow.version is required")
	}

	switch strings.ToLower(cfg.Loader.Source) {
	case "yahoo", "binance":
	default:
		return fmt.Errorf("loader.source must be yahoo or binance, got %q", cfg.Loader.Source)
	}

	if cfg.Loader.LookbackDays <= 0 {
		return fmt.Errorf("loader.lookback_days must be greater than 0")
	}
	if cfg.Loader.Timeout <= 0 {
		return fmt.Errorf("loader.timeout must be greater than 0")
	}

	if cfg.Forecast.Horizon <= 0 {
		return fmt.Errorf("forecast.horizon must be greater than 0")
	}
	if cfg.Forecast.MaxWorkers <= 0 {
		return fmt.Errorf("forecast.max_workers must be greater than 0")
	}

	if cfg.Storage.Table.Enabled {
		if cfg.Storage.Table.URL == "" || cfg.Storage.Table.APIKey == "" {
			return fmt.Errorf("storage.table.url and storage.table.api_key are required when the table sink is enabled")
		}
		if cfg.Storage.Table.Name == "" {
			return fmt.Errorf("storage.table.name is required when the table sink is enabled")
		}
		if cfg.Storage.Table.BatchSize <= 0 {
			return fmt.Errorf("storage.table.batch_size must be greater than 0")
		}
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
	}

	return nil
}
