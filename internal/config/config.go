// Package config defines the top-level configuration for the reputation
// indexer and provides validation helpers.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by POLYREP_* environment
// variables.
type Config struct {
	Chain    ChainConfig    `toml:"chain"`
	Gamma    GammaConfig    `toml:"gamma"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Server   ServerConfig   `toml:"server"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ChainConfig holds Polygon RPC parameters and the backfill block range.
type ChainConfig struct {
	RPCURL            string   `toml:"rpc_url"`
	ExchangeAddresses []string `toml:"exchange_addresses"`
	StartBlock        int64    `toml:"start_block"`
	EndBlock          int64    `toml:"end_block"`
	ChunkSize         int64    `toml:"chunk_size"`
	RequestTimeoutSec int      `toml:"request_timeout_sec"`
}

// GammaConfig holds the market-metadata service endpoint and sync tuning.
type GammaConfig struct {
	BaseURL     string `toml:"base_url"`
	PageLimit   int    `toml:"page_limit"`
	Pages       int    `toml:"pages"`
	ClosedOnly  bool   `toml:"closed_only"`
	TokenBatch  int    `toml:"token_batch"`
	MaxTokenIDs int    `toml:"max_token_ids"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
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

// RedisConfig holds Redis connection parameters for the read-API cache.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the raw-chunk
// archive. When disabled, fetched chunks are kept only in the database.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// PipelineConfig holds backfill and sync tuning.
type PipelineConfig struct {
	StopAfter       int64 `toml:"stop_after"`        // stop backfill after N inserted trades (0 = unlimited)
	SleepMs         int   `toml:"sleep_ms"`          // pause between chunks, eases rate limits
	AddressParallel int   `toml:"address_parallel"`  // concurrent exchange addresses
	SyncIntervalMin int   `toml:"sync_interval_min"` // traded-market sync cadence in full mode
}

// ServerConfig holds the read-API HTTP server configuration.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// Defaults returns a Config populated with sane defaults; Load layers the
// TOML file and environment on top.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL: "https://polygon-rpc.com",
			// Polymarket CTF Exchange (current + legacy).
			ExchangeAddresses: []string{
				"0xC5d563A36AE78145C45a50134d48A1215220f80a",
				"0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E",
			},
			ChunkSize:         500,
			RequestTimeoutSec: 60,
		},
		Gamma: GammaConfig{
			BaseURL:     "https://gamma-api.polymarket.com",
			PageLimit:   5000,
			Pages:       1,
			TokenBatch:  10,
			MaxTokenIDs: 2000,
		},
		Database: DatabaseConfig{
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Pipeline: PipelineConfig{
			AddressParallel: 1,
			SyncIntervalMin: 30,
		},
		Server: ServerConfig{
			Port: 8000,
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes lists the supported run modes.
var validModes = map[string]bool{
	"backfill":            true,
	"sync-markets":        true,
	"sync-traded-markets": true,
	"compute":             true,
	"serve":               true,
	"full":                true,
}

// Validate checks that the configuration is usable for the selected mode.
// Connectivity is verified later at wire time; this catches missing
// endpoints and nonsense ranges before anything dials out.
func (c *Config) Validate() error {
	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}

	if c.Database.DSN == "" && (c.Database.Host == "" || c.Database.Database == "" || c.Database.User == "") {
		return fmt.Errorf("config: database requires dsn or host/database/user")
	}

	if mode == "backfill" {
		if strings.TrimSpace(c.Chain.RPCURL) == "" {
			return fmt.Errorf("config: chain.rpc_url is required for backfill")
		}
		if len(c.Chain.ExchangeAddresses) == 0 {
			return fmt.Errorf("config: chain.exchange_addresses must not be empty")
		}
		if c.Chain.EndBlock <= 0 || c.Chain.StartBlock <= 0 {
			return fmt.Errorf("config: chain.start_block and chain.end_block are required for backfill")
		}
		if c.Chain.EndBlock < c.Chain.StartBlock {
			return fmt.Errorf("config: chain.end_block %d is before start_block %d",
				c.Chain.EndBlock, c.Chain.StartBlock)
		}
		if c.Chain.ChunkSize < 1 {
			return fmt.Errorf("config: chain.chunk_size must be at least 1")
		}
	}

	if mode == "sync-markets" || mode == "sync-traded-markets" || mode == "full" {
		if strings.TrimSpace(c.Gamma.BaseURL) == "" {
			return fmt.Errorf("config: gamma.base_url is required")
		}
	}

	if c.S3.Enabled && c.S3.Bucket == "" {
		return fmt.Errorf("config: s3.bucket is required when s3 is enabled")
	}

	if c.Pipeline.AddressParallel < 1 {
		c.Pipeline.AddressParallel = 1
	}

	return nil
}
