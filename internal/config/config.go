package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"stockboard/internal/domain"
)

// DefaultPath is the configuration file read when STOCKBOARD_CONFIG is unset.
const DefaultPath = "config/stockboard.yaml"

// Data sources.
const (
	SourceCSV     = "csv"
	SourceParquet = "parquet"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the stockboard server and CLI.
type Config struct {
	Data     Data     `yaml:"data"`
	Tickers  []string `yaml:"tickers"`
	Defaults Defaults `yaml:"defaults"`
	Server   Server   `yaml:"server"`
	Storage  Storage  `yaml:"storage"`
	Schedule Schedule `yaml:"schedule"`
	Logging  Logging  `yaml:"logging"`
}

// Data locates the input tables.
type Data struct {
	Source         string `yaml:"source"`
	PricesCSV      string `yaml:"prices_csv"`
	PredictionsCSV string `yaml:"predictions_csv"`
	ParquetDir     string `yaml:"parquet_dir"`
}

// Defaults holds values applied when a request leaves them unset.
type Defaults struct {
	StartDate string `yaml:"start_date"`
}

// Server holds network listener configuration.
type Server struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	AllowOrigin     string `yaml:"allow_origin"`
}

// Storage holds paths for derived data. An empty SQLitePath disables report
// history.
type Storage struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// Schedule holds seconds-enabled cron expressions. An empty expression
// disables the job.
type Schedule struct {
	RefreshCron  string `yaml:"refresh_cron"`
	SnapshotCron string `yaml:"snapshot_cron"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Addr returns the listen address host:port.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns the configuration path from STOCKBOARD_CONFIG, or DefaultPath.
func Path() string {
	if p := os.Getenv("STOCKBOARD_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads an optional .env file, the YAML configuration file at path (a
// missing file yields defaults), then applies environment variable overrides
// and defaults. The result is validated.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DATA_SOURCE"); v != "" {
		cfg.Data.Source = v
	}
	if v := os.Getenv("PRICES_CSV"); v != "" {
		cfg.Data.PricesCSV = v
	}
	if v := os.Getenv("PREDICTIONS_CSV"); v != "" {
		cfg.Data.PredictionsCSV = v
	}
	if v := os.Getenv("PARQUET_DIR"); v != "" {
		cfg.Data.ParquetDir = v
	}
	if v := os.Getenv("STOCKBOARD_TICKERS"); v != "" {
		cfg.Tickers = strings.Split(v, ",")
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SERVER_PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("REFRESH_CRON"); v != "" {
		cfg.Schedule.RefreshCron = v
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Data.Source == "" {
		cfg.Data.Source = SourceCSV
	}
	cfg.Data.Source = strings.ToLower(cfg.Data.Source)
	if cfg.Data.PricesCSV == "" {
		cfg.Data.PricesCSV = "data/merged_data.csv"
	}
	if cfg.Data.PredictionsCSV == "" {
		cfg.Data.PredictionsCSV = "data/ml_predictions_2.csv"
	}
	if cfg.Data.ParquetDir == "" {
		cfg.Data.ParquetDir = "data/parquet"
	}

	if len(cfg.Tickers) == 0 {
		cfg.Tickers = append([]string(nil), domain.DefaultTickers...)
	}
	tickers := cfg.Tickers[:0]
	for _, t := range cfg.Tickers {
		if t = domain.NormalizeTicker(t); t != "" {
			tickers = append(tickers, t)
		}
	}
	cfg.Tickers = tickers

	if cfg.Defaults.StartDate == "" {
		cfg.Defaults.StartDate = "2020-01-01"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.AllowOrigin == "" {
		cfg.Server.AllowOrigin = "*"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Data.Source != SourceCSV && c.Data.Source != SourceParquet {
		return fmt.Errorf("data.source must be %q or %q, got %q", SourceCSV, SourceParquet, c.Data.Source)
	}
	if len(c.Tickers) == 0 {
		return fmt.Errorf("tickers must not be empty")
	}
	seen := make(map[string]bool, len(c.Tickers))
	for _, t := range c.Tickers {
		for _, r := range t {
			if (r < 'A' || r > 'Z') && r != '.' && r != '-' {
				return fmt.Errorf("ticker %q contains invalid character %q", t, r)
			}
		}
		if seen[t] {
			return fmt.Errorf("ticker %q listed twice", t)
		}
		seen[t] = true
	}
	if _, err := domain.ParseDate(c.Defaults.StartDate); err != nil {
		return fmt.Errorf("defaults.start_date %q: %w", c.Defaults.StartDate, err)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.RateLimitPerMin < 0 {
		return fmt.Errorf("server.rate_limit_per_min must not be negative")
	}
	return nil
}

// HasTicker reports whether ticker (case-insensitive) is in the universe.
func (c *Config) HasTicker(ticker string) bool {
	ticker = domain.NormalizeTicker(ticker)
	for _, t := range c.Tickers {
		if t == ticker {
			return true
		}
	}
	return false
}
