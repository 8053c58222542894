package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PERPBOT_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned
// Config has NOT been validated; the caller should invoke Config.Validate()
// after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present; a missing file is fine.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PERPBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── OKX ──
	setStr(&cfg.OKX.BaseURL, "PERPBOT_OKX_BASE_URL")
	setStr(&cfg.OKX.APIKey, "PERPBOT_OKX_API_KEY")
	setStr(&cfg.OKX.SecretKey, "PERPBOT_OKX_SECRET_KEY")
	setStr(&cfg.OKX.Passphrase, "PERPBOT_OKX_PASSPHRASE")
	setStr(&cfg.OKX.CredentialsFile, "PERPBOT_OKX_CREDENTIALS_FILE")
	setStr(&cfg.OKX.CredentialsPassword, "PERPBOT_OKX_CREDENTIALS_PASSWORD")
	setStr(&cfg.OKX.TradingMode, "PERPBOT_OKX_TRADING_MODE")
	setDuration(&cfg.OKX.Timeout, "PERPBOT_OKX_TIMEOUT")
	setFloat64(&cfg.OKX.RequestsPerSecond, "PERPBOT_OKX_REQUESTS_PER_SECOND")
	setInt(&cfg.OKX.Burst, "PERPBOT_OKX_BURST")

	// ── Execution ──
	setStr(&cfg.Execution.Mode, "PERPBOT_EXECUTION_MODE")
	setFloat64(&cfg.Execution.FeeBps, "PERPBOT_EXECUTION_FEE_BPS")
	setFloat64(&cfg.Execution.InitialEquity, "PERPBOT_EXECUTION_INITIAL_EQUITY")
	setStringSlice(&cfg.Execution.Majors, "PERPBOT_EXECUTION_MAJORS")
	setFloat64(&cfg.Execution.SlippageMajor, "PERPBOT_EXECUTION_SLIPPAGE_MAJOR")
	setFloat64(&cfg.Execution.SlippageOther, "PERPBOT_EXECUTION_SLIPPAGE_OTHER")
	setFloat64(&cfg.Execution.RoundUpMinNotional, "PERPBOT_EXECUTION_ROUND_UP_MIN_NOTIONAL")
	setFloat64(&cfg.Execution.RoundUpEquityPct, "PERPBOT_EXECUTION_ROUND_UP_EQUITY_PCT")
	setStr(&cfg.Execution.MarginMode, "PERPBOT_EXECUTION_MARGIN_MODE")
	setBool(&cfg.Execution.PartialCloses, "PERPBOT_EXECUTION_PARTIAL_CLOSES")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxLeverage, "PERPBOT_RISK_MAX_LEVERAGE")
	setFloat64(&cfg.Risk.ExtremeMaxLeverage, "PERPBOT_RISK_EXTREME_MAX_LEVERAGE")
	setFloat64(&cfg.Risk.MinOrderUSD, "PERPBOT_RISK_MIN_ORDER_USD")
	setFloat64(&cfg.Risk.Tolerance, "PERPBOT_RISK_TOLERANCE")
	setInt(&cfg.Risk.MaxPositions, "PERPBOT_RISK_MAX_POSITIONS")
	setFloat64(&cfg.Risk.DefaultStopLossPct, "PERPBOT_RISK_DEFAULT_STOP_LOSS_PCT")

	// ── Store ──
	setStr(&cfg.Store.Backend, "PERPBOT_STORE_BACKEND")
	setStr(&cfg.Store.Dir, "PERPBOT_STORE_DIR")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PERPBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "PERPBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PERPBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PERPBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PERPBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PERPBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PERPBOT_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "PERPBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Mongo ──
	setStr(&cfg.Mongo.URI, "PERPBOT_MONGO_URI")
	setStr(&cfg.Mongo.URI, "MONGODB_URI") // compatibility alias
	setStr(&cfg.Mongo.Database, "PERPBOT_MONGO_DATABASE")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PERPBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PERPBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PERPBOT_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "PERPBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "PERPBOT_REDIS_KEY_PREFIX")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PERPBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PERPBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "PERPBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PERPBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PERPBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PERPBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PERPBOT_S3_FORCE_PATH_STYLE")

	// ── Metrics ──
	setStr(&cfg.Metrics.PushURL, "PERPBOT_METRICS_PUSH_URL")
	setStr(&cfg.Metrics.Job, "PERPBOT_METRICS_JOB")

	// ── History ──
	setInt(&cfg.History.Retention, "PERPBOT_HISTORY_RETENTION")
	setInt(&cfg.History.DecisionLogKeep, "PERPBOT_HISTORY_DECISION_LOG_KEEP")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "PERPBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
