package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYREP_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
//
// A missing config file is not an error: defaults plus environment overrides
// are enough to run every mode.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYREP_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets and block ranges at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "POLYREP_CHAIN_RPC_URL")
	setStr(&cfg.Chain.RPCURL, "POLYGON_RPC_URL") // compatibility alias
	setStringSlice(&cfg.Chain.ExchangeAddresses, "POLYREP_CHAIN_EXCHANGE_ADDRESSES")
	setInt64(&cfg.Chain.StartBlock, "POLYREP_CHAIN_START_BLOCK")
	setInt64(&cfg.Chain.EndBlock, "POLYREP_CHAIN_END_BLOCK")
	setInt64(&cfg.Chain.ChunkSize, "POLYREP_CHAIN_CHUNK_SIZE")
	setInt(&cfg.Chain.RequestTimeoutSec, "POLYREP_CHAIN_REQUEST_TIMEOUT_SEC")

	// ── Gamma ──
	setStr(&cfg.Gamma.BaseURL, "POLYREP_GAMMA_BASE_URL")
	setInt(&cfg.Gamma.PageLimit, "POLYREP_GAMMA_PAGE_LIMIT")
	setInt(&cfg.Gamma.Pages, "POLYREP_GAMMA_PAGES")
	setBool(&cfg.Gamma.ClosedOnly, "POLYREP_GAMMA_CLOSED_ONLY")
	setInt(&cfg.Gamma.TokenBatch, "POLYREP_GAMMA_TOKEN_BATCH")
	setInt(&cfg.Gamma.MaxTokenIDs, "POLYREP_GAMMA_MAX_TOKEN_IDS")

	// ── Database ──
	setStr(&cfg.Database.DSN, "POLYREP_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "POLYREP_DATABASE_HOST")
	setInt(&cfg.Database.Port, "POLYREP_DATABASE_PORT")
	setStr(&cfg.Database.Database, "POLYREP_DATABASE_NAME")
	setStr(&cfg.Database.User, "POLYREP_DATABASE_USER")
	setStr(&cfg.Database.Password, "POLYREP_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "POLYREP_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "POLYREP_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "POLYREP_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "POLYREP_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "POLYREP_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "POLYREP_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYREP_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYREP_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYREP_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYREP_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYREP_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "POLYREP_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "POLYREP_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYREP_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYREP_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYREP_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYREP_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "POLYREP_S3_FORCE_PATH_STYLE")

	// ── Pipeline ──
	setInt64(&cfg.Pipeline.StopAfter, "POLYREP_PIPELINE_STOP_AFTER")
	setInt(&cfg.Pipeline.SleepMs, "POLYREP_PIPELINE_SLEEP_MS")
	setInt(&cfg.Pipeline.AddressParallel, "POLYREP_PIPELINE_ADDRESS_PARALLEL")
	setInt(&cfg.Pipeline.SyncIntervalMin, "POLYREP_PIPELINE_SYNC_INTERVAL_MIN")

	// ── Server ──
	setInt(&cfg.Server.Port, "POLYREP_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "POLYREP_SERVER_CORS_ORIGINS")

	// ── Top level ──
	setStr(&cfg.Mode, "POLYREP_MODE")
	setStr(&cfg.LogLevel, "POLYREP_LOG_LEVEL")
}

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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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
