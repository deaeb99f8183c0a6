// Package config
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

/*
YAML config example:
mode: "full"
data:
  symbol: "SPY"
  file: "data/spy_vix.csv"
  in_sample_years: 5
  final_oos_years: 3
params:
  long_risk: 0.05
  max_open_positions: 30
  adx_threshold: 25
  max_position_duration: 15
monte_carlo:
  num_simulations: 1500
  block_size: 30
  workers: 8
walk_forward:
  oos_window: 42
  optimization_frequency: 126
optimizer:
  trials: 35
  timeout: 20m
log:
  level: "info"
  console: true
...
*/

// ErrInvalidConfig is returned by Validate for out-of-range settings.
var ErrInvalidConfig = errors.New("invalid config")

// Modes understood by the command line driver.
const (
	ModeTest        = "test"
	ModeOptimize    = "optimize"
	ModeMonteCarlo  = "montecarlo"
	ModeWalkForward = "walkforward"
	ModeFull        = "full"
)

type Config struct {
	Mode        string      `yaml:"mode"`
	Strategy    Strategy    `yaml:"strategy"`
	Params      Params      `yaml:"params"`
	MonteCarlo  MonteCarlo  `yaml:"monte_carlo"`
	WalkForward WalkForward `yaml:"walk_forward"`
	Optimizer   Optimizer   `yaml:"optimizer"`
	Data        Data        `yaml:"data"`
	Database    Database    `yaml:"database"`
	Log         Log         `yaml:"log"`
	Metrics     Metrics     `yaml:"metrics"`
	Report      Report      `yaml:"report"`
}

// Params are the strategy knobs searched by the optimizer and
// replaced during walk-forward re-optimization.
type Params struct {
	LongRisk            float64 `yaml:"long_risk"`
	MaxOpenPositions    int     `yaml:"max_open_positions"`
	ADXThreshold        float64 `yaml:"adx_threshold"`
	MaxPositionDuration int     `yaml:"max_position_duration"`
}

func (p Params) String() string {
	return fmt.Sprintf("long_risk=%.2f max_open_positions=%d adx_threshold=%.0f max_position_duration=%d",
		p.LongRisk, p.MaxOpenPositions, p.ADXThreshold, p.MaxPositionDuration)
}

type MonteCarlo struct {
	NumSimulations int     `yaml:"num_simulations"`
	BlockSize      int     `yaml:"block_size"`
	AutoBlockSize  bool    `yaml:"auto_block_size"`
	MaxLag         int     `yaml:"max_lag"`
	Alpha          float64 `yaml:"alpha"`
	SampleLength   int     `yaml:"sample_length"` // 0 means the source length
	Seed           uint64  `yaml:"seed"`
	Workers        int     `yaml:"workers"`
	TopCandidates  int     `yaml:"top_candidates"`
}

type WalkForward struct {
	OOSWindow             int           `yaml:"oos_window"`
	OptimizationFrequency int           `yaml:"optimization_frequency"`
	MinTrainSharpe        float64       `yaml:"min_train_sharpe"`
	RollingWindow         int           `yaml:"rolling_window"`
	RetryAttempts         uint64        `yaml:"retry_attempts"`
	RetryMaxElapsed       time.Duration `yaml:"retry_max_elapsed"`
}

type Optimizer struct {
	Enabled bool          `yaml:"enabled"`
	Trials  int           `yaml:"trials"`
	Timeout time.Duration `yaml:"timeout"`
	TopK    int           `yaml:"top_k"`
	Seed    uint64        `yaml:"seed"`
	Workers int           `yaml:"workers"`
}

type Data struct {
	Symbol        string `yaml:"symbol"`
	Source        string `yaml:"source"` // csv or postgres
	File          string `yaml:"file"`
	From          string `yaml:"from"`
	To            string `yaml:"to"`
	InSampleYears int    `yaml:"in_sample_years"`
	WarmupBars    int    `yaml:"warmup_bars"`
	FinalOOSYears int    `yaml:"final_oos_years"`
	TradingDays   int    `yaml:"trading_days"`

	// Import is a CSV file upserted into the postgres source before the
	// run.
	Import string `yaml:"import"`
}

type Database struct {
	ConnStr string `yaml:"conn_str"`
	MaxOpen int    `yaml:"max_open"`
	MaxIdle int    `yaml:"max_idle"`
	Migrate bool   `yaml:"migrate"`
}

type Log struct {
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

type Metrics struct {
	Addr string `yaml:"addr"`
}

// Report controls where CSV exports go; an empty Dir disables them.
type Report struct {
	Dir string `yaml:"dir"`
}

// DefaultParams returns the parameter set used when no optimization ran.
func DefaultParams() Params {
	return Params{
		LongRisk:            0.05,
		MaxOpenPositions:    30,
		ADXThreshold:        25,
		MaxPositionDuration: 15,
	}
}

// Default returns a fully populated configuration.
func Default() Config {
	return Config{
		Mode:     ModeFull,
		Strategy: DefaultStrategy(),
		Params:   DefaultParams(),
		MonteCarlo: MonteCarlo{
			NumSimulations: 1500,
			BlockSize:      30,
			MaxLag:         50,
			Alpha:          0.05,
			Seed:           42,
			Workers:        4,
			TopCandidates:  3,
		},
		WalkForward: WalkForward{
			OOSWindow:             42,
			OptimizationFrequency: 126,
			MinTrainSharpe:        0.1,
			RollingWindow:         3,
			RetryAttempts:         2,
			RetryMaxElapsed:       time.Minute,
		},
		Optimizer: Optimizer{
			Enabled: true,
			Trials:  35,
			Timeout: 1200 * time.Second,
			TopK:    10,
			Seed:    7,
			Workers: 4,
		},
		Data: Data{
			Symbol:        "SPY",
			Source:        "csv",
			File:          "data/spy.csv",
			InSampleYears: 5,
			WarmupBars:    75,
			FinalOOSYears: 3,
			TradingDays:   252,
		},
		Database: Database{
			MaxOpen: 10,
			MaxIdle: 5,
		},
		Log: Log{
			Level:   "info",
			Console: true,
		},
	}
}

// Validate checks the settings every run depends on.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeTest, ModeOptimize, ModeMonteCarlo, ModeWalkForward, ModeFull:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	}
	if err := c.Params.Validate(); err != nil {
		return err
	}
	if err := c.Strategy.Validate(); err != nil {
		return err
	}
	if c.MonteCarlo.NumSimulations < 1 {
		return fmt.Errorf("%w: monte_carlo.num_simulations must be positive", ErrInvalidConfig)
	}
	if c.MonteCarlo.BlockSize < 1 {
		return fmt.Errorf("%w: monte_carlo.block_size must be positive", ErrInvalidConfig)
	}
	if c.MonteCarlo.Alpha <= 0 || c.MonteCarlo.Alpha >= 1 {
		return fmt.Errorf("%w: monte_carlo.alpha must be in (0,1)", ErrInvalidConfig)
	}
	if c.WalkForward.OOSWindow < 1 || c.WalkForward.OptimizationFrequency < 1 {
		return fmt.Errorf("%w: walk_forward windows must be positive", ErrInvalidConfig)
	}
	if c.Optimizer.Enabled && c.Optimizer.Trials < 1 {
		return fmt.Errorf("%w: optimizer.trials must be positive", ErrInvalidConfig)
	}
	if c.Data.Source != "csv" && c.Data.Source != "postgres" {
		return fmt.Errorf("%w: data.source must be csv or postgres", ErrInvalidConfig)
	}
	if c.Data.Source != "postgres" && (c.Data.Import != "" || c.Database.Migrate) {
		return fmt.Errorf("%w: data.import and database.migrate need the postgres source", ErrInvalidConfig)
	}
	return nil
}

func (p Params) Validate() error {
	if p.LongRisk <= 0 || p.LongRisk >= 1 {
		return fmt.Errorf("%w: long_risk %.4f out of (0,1)", ErrInvalidConfig, p.LongRisk)
	}
	if p.MaxOpenPositions < 1 {
		return fmt.Errorf("%w: max_open_positions must be at least 1", ErrInvalidConfig)
	}
	if p.ADXThreshold <= 0 {
		return fmt.Errorf("%w: adx_threshold must be positive", ErrInvalidConfig)
	}
	if p.MaxPositionDuration < 1 {
		return fmt.Errorf("%w: max_position_duration must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// Load builds the configuration from defaults, an optional YAML file, the
// environment (.env is honoured) and finally explicitly set flags.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("momentum-validator", flag.ContinueOnError)
	configFile := fs.String("config", "", "Path to YAML config file")
	mode := fs.String("mode", ModeFull, "Mode: test, optimize, montecarlo, walkforward or full")
	symbol := fs.String("symbol", "SPY", "Instrument symbol")
	source := fs.String("source", "csv", "Market data source: csv or postgres")
	dataFile := fs.String("data", "data/spy.csv", "CSV file with Date,Open,High,Low,Close,Volume,VIX columns")
	from := fs.String("from", "", "First date to load (YYYY-MM-DD)")
	to := fs.String("to", "", "Last date to load (YYYY-MM-DD)")
	mcSims := fs.Int("mc-sims", 1500, "Number of bootstrap samples per parameter set")
	blockSize := fs.Int("block-size", 30, "Stationary bootstrap mean block length")
	workers := fs.Int("workers", 4, "Concurrent simulation workers")
	trials := fs.Int("trials", 35, "Optimizer trials")
	optimize := fs.Bool("optimize", true, "Run the optimizer before validation")
	seed := fs.Uint64("seed", 42, "Random seed for bootstrap sampling")
	logLevel := fs.String("log-level", "info", "Log level: debug, info, warn, error")
	metricsAddr := fs.String("metrics-addr", "", "Address for the Prometheus /metrics endpoint (empty disables)")
	migrate := fs.Bool("migrate", false, "Create the database and apply scripts/schema.sql before the run")
	importFile := fs.String("import", "", "CSV file to upsert into the postgres source before the run")
	outDir := fs.String("out", "", "Directory for trade and equity CSV exports (empty disables)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// .env is optional
	_ = godotenv.Load()
	applyEnv(&cfg)

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			cfg.Mode = *mode
		case "symbol":
			cfg.Data.Symbol = *symbol
		case "source":
			cfg.Data.Source = *source
		case "data":
			cfg.Data.File = *dataFile
		case "from":
			cfg.Data.From = *from
		case "to":
			cfg.Data.To = *to
		case "mc-sims":
			cfg.MonteCarlo.NumSimulations = *mcSims
		case "block-size":
			cfg.MonteCarlo.BlockSize = *blockSize
		case "workers":
			cfg.MonteCarlo.Workers = *workers
			cfg.Optimizer.Workers = *workers
		case "trials":
			cfg.Optimizer.Trials = *trials
		case "optimize":
			cfg.Optimizer.Enabled = *optimize
		case "seed":
			cfg.MonteCarlo.Seed = *seed
		case "log-level":
			cfg.Log.Level = *logLevel
		case "metrics-addr":
			cfg.Metrics.Addr = *metricsAddr
		case "migrate":
			cfg.Database.Migrate = *migrate
		case "import":
			cfg.Data.Import = *importFile
		case "out":
			cfg.Report.Dir = *outDir
		}
	})

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MV_DB_CONN_STR"); v != "" {
		cfg.Database.ConnStr = v
	}
	if v := os.Getenv("MV_DATA_FILE"); v != "" {
		cfg.Data.File = v
	}
	if v := os.Getenv("MV_DATA_SOURCE"); v != "" {
		cfg.Data.Source = v
	}
	if v := os.Getenv("MV_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("MV_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	if v := os.Getenv("MV_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("MV_SEED"); v != "" {
		if seed, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.MonteCarlo.Seed = seed
		}
	}
	if v := os.Getenv("MV_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MonteCarlo.Workers = n
			cfg.Optimizer.Workers = n
		}
	}
}
