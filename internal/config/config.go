// Package config defines the top-level configuration for perpbot and
// provides validation helpers.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PERPBOT_* environment variables.
type Config struct {
	OKX       OKXConfig       `toml:"okx"`
	Execution ExecutionConfig `toml:"execution"`
	Risk      RiskConfig      `toml:"risk"`
	Retry     RetryConfig     `toml:"retry"`
	Store     StoreConfig     `toml:"store"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Mongo     MongoConfig     `toml:"mongo"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Metrics   MetricsConfig   `toml:"metrics"`
	History   HistoryConfig   `toml:"history"`
	LogLevel  string          `toml:"log_level"`
}

// OKXConfig holds venue endpoints, credentials and client-side limits.
type OKXConfig struct {
	BaseURL    string `toml:"base_url"`
	APIKey     string `toml:"api_key"`
	SecretKey  string `toml:"secret_key"`
	Passphrase string `toml:"passphrase"`

	// CredentialsFile is written by crypto.SealCredentials. Plaintext
	// fields above override the parts it holds.
	CredentialsFile     string `toml:"credentials_file"`
	CredentialsPassword string `toml:"credentials_password"`

	// TradingMode is "real" or "demo"; demo sends x-simulated-trading.
	TradingMode string   `toml:"trading_mode"`
	Timeout     duration `toml:"timeout"`

	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
	SharedLimit       int      `toml:"shared_limit"`
	SharedWindow      duration `toml:"shared_window"`

	BreakerFailures uint32   `toml:"breaker_failures"`
	BreakerCooldown duration `toml:"breaker_cooldown"`
}

// ExecutionConfig selects the engine and its order-shaping parameters.
type ExecutionConfig struct {
	Mode               string   `toml:"mode"` // live or simulated
	FeeBps             float64  `toml:"fee_bps"`
	InitialEquity      float64  `toml:"initial_equity"`
	Majors             []string `toml:"majors"`
	SlippageMajor      float64  `toml:"slippage_major"`
	SlippageOther      float64  `toml:"slippage_other"`
	RoundUpMinNotional float64  `toml:"round_up_min_notional"`
	RoundUpEquityPct   float64  `toml:"round_up_equity_pct"`
	QuoteCurrency      string   `toml:"quote_currency"`
	MarginMode         string   `toml:"margin_mode"`

	// PartialCloses lets a sized close reduce a position instead of
	// closing it.
	PartialCloses bool `toml:"partial_closes"`
}

// CapsConfig is the long and short exposure cap as a fraction of equity.
type CapsConfig struct {
	Long  float64 `toml:"long"`
	Short float64 `toml:"short"`
}

// RiskConfig holds the governor limits.
type RiskConfig struct {
	Bull    CapsConfig `toml:"bull"`
	Bear    CapsConfig `toml:"bear"`
	Neutral CapsConfig `toml:"neutral"`

	MaxLeverage        float64 `toml:"max_leverage"`
	ExtremeMaxLeverage float64 `toml:"extreme_max_leverage"`
	FearLow            float64 `toml:"fear_low"`
	FearHigh           float64 `toml:"fear_high"`

	MinOrderUSD        float64 `toml:"min_order_usd"`
	Tolerance          float64 `toml:"tolerance"`
	MaxPositions       int     `toml:"max_positions"`
	DefaultStopLossPct float64 `toml:"default_stop_loss_pct"`
}

// RetryConfig is the capped exponential backoff for venue calls.
type RetryConfig struct {
	InitialBackoff duration `toml:"initial_backoff"`
	MaxBackoff     duration `toml:"max_backoff"`
	Multiplier     float64  `toml:"multiplier"`
	MaxTries       uint     `toml:"max_tries"`
}

// StoreConfig selects where the ledger, history and decision log live.
type StoreConfig struct {
	Backend string `toml:"backend"` // file, memory, postgres or mongo
	Dir     string `toml:"dir"`     // data directory of the file backend
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// MongoConfig holds MongoDB connection parameters.
type MongoConfig struct {
	URI            string   `toml:"uri"`
	Database       string   `toml:"database"`
	ConnectTimeout duration `toml:"connect_timeout"`
	MaxPoolSize    uint64   `toml:"max_pool_size"`
}

// RedisConfig holds Redis connection parameters. An empty Addr disables the
// distributed lock, instrument cache, shared rate limit and settlement
// stream.
type RedisConfig struct {
	Addr          string   `toml:"addr"`
	Password      string   `toml:"password"`
	DB            int      `toml:"db"`
	PoolSize      int      `toml:"pool_size"`
	MaxRetries    int      `toml:"max_retries"`
	TLSEnabled    bool     `toml:"tls_enabled"`
	KeyPrefix     string   `toml:"key_prefix"`
	LockTTL       duration `toml:"lock_ttl"`
	LockWait      duration `toml:"lock_wait"`
	InstrumentTTL duration `toml:"instrument_ttl"`
}

// S3Config holds S3-compatible object storage parameters. An empty Bucket
// disables the trade-history archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// MetricsConfig points at a Prometheus Pushgateway. An empty PushURL
// disables the push.
type MetricsConfig struct {
	PushURL string `toml:"push_url"`
	Job     string `toml:"job"`
}

// HistoryConfig bounds the trade history and decision log.
type HistoryConfig struct {
	Retention       int `toml:"retention"`
	DecisionLogKeep int `toml:"decision_log_keep"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		OKX: OKXConfig{
			BaseURL:           "https://www.okx.com",
			TradingMode:       "demo",
			Timeout:           duration{10 * time.Second},
			RequestsPerSecond: 10,
			Burst:             5,
			SharedLimit:       60,
			SharedWindow:      duration{2 * time.Second},
			BreakerFailures:   5,
			BreakerCooldown:   duration{30 * time.Second},
		},
		Execution: ExecutionConfig{
			Mode:               "simulated",
			FeeBps:             5,
			InitialEquity:      10_000,
			Majors:             []string{"BTC", "ETH"},
			SlippageMajor:      0.002,
			SlippageOther:      0.005,
			RoundUpMinNotional: 50,
			RoundUpEquityPct:   0.10,
			QuoteCurrency:      "USDT",
			MarginMode:         "isolated",
		},
		Risk: RiskConfig{
			Bull:               CapsConfig{Long: 0.98, Short: 0.30},
			Bear:               CapsConfig{Long: 0.40, Short: 0.78},
			Neutral:            CapsConfig{Long: 0.48, Short: 0.48},
			MaxLeverage:        5,
			ExtremeMaxLeverage: 2,
			FearLow:            20,
			FearHigh:           80,
			MinOrderUSD:        50,
			Tolerance:          5,
			MaxPositions:       3,
			DefaultStopLossPct: 0.05,
		},
		Retry: RetryConfig{
			InitialBackoff: duration{200 * time.Millisecond},
			MaxBackoff:     duration{2 * time.Second},
			Multiplier:     2,
			MaxTries:       4,
		},
		Store: StoreConfig{Backend: "file", Dir: "data"},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "perpbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Mongo: MongoConfig{
			URI:            "mongodb://localhost:27017",
			Database:       "perpbot",
			ConnectTimeout: duration{10 * time.Second},
			MaxPoolSize:    10,
		},
		Redis: RedisConfig{
			PoolSize:      10,
			MaxRetries:    3,
			KeyPrefix:     "perpbot:",
			LockTTL:       duration{30 * time.Second},
			LockWait:      duration{5 * time.Second},
			InstrumentTTL: duration{6 * time.Hour},
		},
		S3: S3Config{
			Region:         "us-east-1",
			ForcePathStyle: true,
			Prefix:         "archive",
		},
		Metrics: MetricsConfig{Job: "perpbot"},
		History: HistoryConfig{
			Retention:       500,
			DecisionLogKeep: 50,
		},
		LogLevel: "info",
	}
}

var (
	validModes        = map[string]bool{"live": true, "simulated": true}
	validTradingModes = map[string]bool{"real": true, "demo": true}
	validBackends     = map[string]bool{"file": true, "memory": true, "postgres": true, "mongo": true}
	validMarginModes  = map[string]bool{"isolated": true, "cross": true}
	validLogLevels    = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
)

// Simulated reports whether trades settle on the local ledger.
func (c *Config) Simulated() bool {
	return strings.EqualFold(c.Execution.Mode, "simulated")
}

// Validate checks Config for obviously invalid or missing values and returns
// every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	// OKX
	if c.OKX.BaseURL == "" {
		add("okx: base_url must not be empty")
	}
	if !validTradingModes[strings.ToLower(c.OKX.TradingMode)] {
		add("okx: unknown trading_mode %q (valid: real, demo)", c.OKX.TradingMode)
	}
	if c.OKX.Timeout.Duration <= 0 {
		add("okx: timeout must be > 0")
	}
	if !c.Simulated() {
		plain := c.OKX.APIKey != "" && c.OKX.SecretKey != "" && c.OKX.Passphrase != ""
		if !plain && c.OKX.CredentialsFile == "" {
			add("okx: api_key, secret_key and passphrase (or credentials_file) are required for live execution")
		}
	}
	if c.OKX.CredentialsFile != "" && c.OKX.CredentialsPassword == "" {
		add("okx: credentials_password is required when credentials_file is set")
	}

	// Execution
	if !validModes[strings.ToLower(c.Execution.Mode)] {
		add("execution: unknown mode %q (valid: live, simulated)", c.Execution.Mode)
	}
	if !validMarginModes[strings.ToLower(c.Execution.MarginMode)] {
		add("execution: unknown margin_mode %q (valid: isolated, cross)", c.Execution.MarginMode)
	}
	if c.Execution.FeeBps < 0 {
		add("execution: fee_bps must be >= 0")
	}
	if c.Simulated() && c.Execution.InitialEquity <= 0 {
		add("execution: initial_equity must be > 0 in simulated mode")
	}
	if c.Execution.SlippageMajor <= 0 || c.Execution.SlippageOther <= 0 {
		add("execution: slippage_major and slippage_other must be > 0")
	}
	if c.Execution.RoundUpEquityPct < 0 || c.Execution.RoundUpEquityPct > 1 {
		add("execution: round_up_equity_pct must be within [0, 1]")
	}

	// Risk
	for name, caps := range map[string]CapsConfig{"bull": c.Risk.Bull, "bear": c.Risk.Bear, "neutral": c.Risk.Neutral} {
		if caps.Long < 0 || caps.Short < 0 {
			add("risk: %s caps must be >= 0", name)
		}
	}
	if c.Risk.MaxLeverage < 1 || c.Risk.ExtremeMaxLeverage < 1 {
		add("risk: max_leverage and extreme_max_leverage must be >= 1")
	}
	if c.Risk.FearLow >= c.Risk.FearHigh {
		add("risk: fear_low must be below fear_high")
	}
	if c.Risk.MaxPositions < 1 {
		add("risk: max_positions must be >= 1")
	}
	if c.Risk.MinOrderUSD < 0 || c.Risk.Tolerance < 0 {
		add("risk: min_order_usd and tolerance must be >= 0")
	}
	if c.Risk.DefaultStopLossPct <= 0 || c.Risk.DefaultStopLossPct >= 1 {
		add("risk: default_stop_loss_pct must be within (0, 1)")
	}

	// Retry
	if c.Retry.MaxTries < 1 {
		add("retry: max_tries must be >= 1")
	}
	if c.Retry.Multiplier < 1 {
		add("retry: multiplier must be >= 1")
	}

	// Store
	switch backend := strings.ToLower(c.Store.Backend); {
	case !validBackends[backend]:
		add("store: unknown backend %q (valid: file, memory, postgres, mongo)", c.Store.Backend)
	case backend == "file":
		if strings.TrimSpace(c.Store.Dir) == "" {
			add("store: dir must not be empty for the file backend")
		}
	case backend == "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" && c.Postgres.Host == "" {
			add("postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			add("postgres: pool_min_conns must not exceed pool_max_conns")
		}
	case backend == "mongo":
		if c.Mongo.URI == "" {
			add("mongo: uri must not be empty")
		}
	}

	// Redis
	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		add("redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Bucket != "" && c.S3.Region == "" {
		add("s3: region must not be empty when bucket is set")
	}

	// History
	if c.History.Retention < 0 {
		add("history: retention must be >= 0")
	}
	if c.History.DecisionLogKeep < 1 {
		add("history: decision_log_keep must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %w", errors.Join(errs...))
	}
	return nil
}
