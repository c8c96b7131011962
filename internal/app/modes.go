package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyreputation/internal/ledger"
	"github.com/alanyoungcy/polyreputation/internal/pipeline"
	"github.com/alanyoungcy/polyreputation/internal/server"
	"github.com/alanyoungcy/polyreputation/internal/server/handler"
	"github.com/alanyoungcy/polyreputation/internal/service"
)

// backfillConfig translates the pipeline settings into a BackfillConfig.
func (a *App) backfillConfig() pipeline.BackfillConfig {
	return pipeline.BackfillConfig{
		StartBlock:      a.cfg.Chain.StartBlock,
		EndBlock:        a.cfg.Chain.EndBlock,
		ChunkSize:       a.cfg.Chain.ChunkSize,
		StopAfter:       a.cfg.Pipeline.StopAfter,
		Sleep:           time.Duration(a.cfg.Pipeline.SleepMs) * time.Millisecond,
		AddressParallel: a.cfg.Pipeline.AddressParallel,
	}
}

func (a *App) syncConfig() pipeline.SyncConfig {
	return pipeline.SyncConfig{
		PageLimit:   a.cfg.Gamma.PageLimit,
		Pages:       a.cfg.Gamma.Pages,
		ClosedOnly:  a.cfg.Gamma.ClosedOnly,
		TokenBatch:  a.cfg.Gamma.TokenBatch,
		MaxTokenIDs: a.cfg.Gamma.MaxTokenIDs,
	}
}

// BackfillMode walks the configured block range for every exchange address
// and ingests OrderFilled trades.
func (a *App) BackfillMode(ctx context.Context, deps *Dependencies) error {
	backfiller := pipeline.NewBackfiller(
		deps.ChainClient.Eth(),
		deps.TradeStore,
		deps.RunStore,
		deps.Archiver,
		a.logger,
	)
	return backfiller.Run(ctx, a.cfg.Chain.ExchangeAddresses, a.backfillConfig())
}

// SyncMarketsMode pulls market metadata pages from the Gamma API.
func (a *App) SyncMarketsMode(ctx context.Context, deps *Dependencies) error {
	syncer := pipeline.NewMarketSyncer(deps.Gamma, deps.MarketStore, deps.TradeStore, a.logger)
	return syncer.SyncAll(ctx, a.syncConfig())
}

// SyncTradedMarketsMode resolves metadata only for tokens seen in trades.
func (a *App) SyncTradedMarketsMode(ctx context.Context, deps *Dependencies) error {
	syncer := pipeline.NewMarketSyncer(deps.Gamma, deps.MarketStore, deps.TradeStore, a.logger)
	return syncer.SyncTraded(ctx, a.syncConfig())
}

// ComputeMode rebuilds the derived PnL, stats, and tag tables and flushes
// the read cache.
func (a *App) ComputeMode(ctx context.Context, deps *Dependencies) error {
	aggregator := ledger.NewAggregator(deps.TradeStore, deps.PnLStore, a.logger)
	if err := aggregator.Run(ctx); err != nil {
		return err
	}
	a.reputationService(deps).InvalidateCache(ctx)
	return nil
}

// ServeMode runs the read API until the context is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	srv := a.buildServer(deps)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// FullMode serves the read API while periodically syncing traded-market
// metadata and recomputing the derived tables.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.ServeMode(ctx, deps)
	})

	g.Go(func() error {
		interval := time.Duration(a.cfg.Pipeline.SyncIntervalMin) * time.Minute
		if interval <= 0 {
			interval = 30 * time.Minute
		}

		// First refresh runs immediately so a fresh deployment serves data
		// without waiting a full interval.
		for {
			if err := a.refresh(ctx, deps); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// refresh runs one traded-market sync followed by a PnL rebuild.
func (a *App) refresh(ctx context.Context, deps *Dependencies) error {
	started := time.Now()

	if err := a.SyncTradedMarketsMode(ctx, deps); err != nil {
		return fmt.Errorf("app: refresh sync: %w", err)
	}
	if err := a.ComputeMode(ctx, deps); err != nil {
		return fmt.Errorf("app: refresh compute: %w", err)
	}

	a.logger.InfoContext(ctx, "refresh cycle finished",
		slog.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func (a *App) reputationService(deps *Dependencies) *service.ReputationService {
	return service.NewReputationService(deps.PnLStore, deps.MarketStore, deps.Cache, a.logger)
}

func (a *App) buildServer(deps *Dependencies) *server.Server {
	reputation := a.reputationService(deps)
	return server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
		},
		server.Handlers{
			Health:      handler.NewHealthHandler(a.logger),
			Leaderboard: handler.NewLeaderboardHandler(reputation, a.logger),
			Profile:     handler.NewProfileHandler(reputation, a.logger),
			Market:      handler.NewMarketHandler(reputation, a.logger),
		},
		a.logger,
	)
}
