package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/alanyoungcy/polyreputation/internal/blob/s3"
	"github.com/alanyoungcy/polyreputation/internal/cache/redis"
	"github.com/alanyoungcy/polyreputation/internal/config"
	"github.com/alanyoungcy/polyreputation/internal/domain"
	"github.com/alanyoungcy/polyreputation/internal/platform/chain"
	"github.com/alanyoungcy/polyreputation/internal/platform/gamma"
	"github.com/alanyoungcy/polyreputation/internal/store/postgres"
)

// Dependencies bundles every concrete dependency the application modes need.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	TradeStore  domain.TradeStore
	MarketStore domain.MarketStore
	PnLStore    domain.PnLStore
	RunStore    domain.RunStore

	// External services
	ChainClient *chain.Client
	Gamma       *gamma.Client

	// Optional infrastructure
	Cache    domain.ReputationCache // nil when Redis is disabled
	Archiver domain.ChunkArchiver   // nil when S3 is disabled
}

// needsChain returns true for modes that talk to the Polygon RPC endpoint.
// Only backfill reads logs; full mode serves and recomputes over already
// ingested trades, so it never dials the chain.
func needsChain(mode string) bool {
	return mode == "backfill"
}

// needsGamma returns true for modes that query the market-metadata API.
func needsGamma(mode string) bool {
	switch mode {
	case "sync-markets", "sync-traded-markets", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (every mode persists or reads indexed state) ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.TradeStore = postgres.NewTradeStore(pool)
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.PnLStore = postgres.NewPnLStore(pool)
	deps.RunStore = postgres.NewRunStore(pool)

	// --- Polygon RPC ---
	if needsChain(mode) {
		timeout := time.Duration(cfg.Chain.RequestTimeoutSec) * time.Second
		chainClient, err := chain.Dial(ctx, cfg.Chain.RPCURL, timeout)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain: %w", err)
		}
		closers = append(closers, chainClient.Close)
		deps.ChainClient = chainClient
	}

	// --- Gamma API ---
	if needsGamma(mode) {
		deps.Gamma = gamma.NewClient(cfg.Gamma.BaseURL)
	}

	// --- Redis (optional read-API cache) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Cache = redis.NewReputationCache(redisClient)
	}

	// --- S3 (optional raw-chunk archive) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         true,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.Archiver = s3blob.NewChunkArchiver(s3Client)
	}

	logger.InfoContext(ctx, "dependencies wired",
		slog.Bool("chain", deps.ChainClient != nil),
		slog.Bool("gamma", deps.Gamma != nil),
		slog.Bool("redis", deps.Cache != nil),
		slog.Bool("s3", deps.Archiver != nil),
	)
	return deps, cleanup, nil
}
