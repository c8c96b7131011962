package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyreputation/internal/domain"
	"github.com/alanyoungcy/polyreputation/internal/platform/chain"
)

// errStopAfter aborts a per-address loop once the insert cap is hit. It is a
// control signal, not a failure.
var errStopAfter = errors.New("pipeline: stop-after limit reached")

// BackfillConfig tunes one backfill invocation.
type BackfillConfig struct {
	StartBlock int64
	EndBlock   int64
	ChunkSize  int64

	// StopAfter stops an address loop once at least this many new rows have
	// been inserted. Zero means no cap.
	StopAfter int64

	// Sleep is an optional pause between chunks to stay under provider
	// rate limits.
	Sleep time.Duration

	// AddressParallel bounds how many exchange addresses are backfilled
	// concurrently. Values below 1 mean sequential.
	AddressParallel int
}

// Backfiller walks OrderFilled logs for one or more exchange contracts,
// decodes them into canonical trades, and upserts them chunk by chunk. Each
// chunk is one transaction, so a crash loses at most the chunk in flight and
// a re-run over the same range is a no-op for rows already present.
type Backfiller struct {
	client   chain.LogClient
	trades   domain.TradeStore
	runs     domain.RunStore
	archiver domain.ChunkArchiver // optional
	logger   *slog.Logger
}

// NewBackfiller creates a Backfiller. archiver may be nil to skip raw chunk
// archival.
func NewBackfiller(client chain.LogClient, trades domain.TradeStore, runs domain.RunStore, archiver domain.ChunkArchiver, logger *slog.Logger) *Backfiller {
	return &Backfiller{
		client:   client,
		trades:   trades,
		runs:     runs,
		archiver: archiver,
		logger:   logger.With(slog.String("component", "backfiller")),
	}
}

// Run backfills every address over [cfg.StartBlock, cfg.EndBlock]. Addresses
// run concurrently up to cfg.AddressParallel; the first failure cancels the
// rest.
func (b *Backfiller) Run(ctx context.Context, addresses []string, cfg BackfillConfig) error {
	if len(addresses) == 0 {
		return errors.New("pipeline: no exchange addresses configured")
	}
	if cfg.EndBlock < cfg.StartBlock {
		return fmt.Errorf("pipeline: end block %d before start block %d", cfg.EndBlock, cfg.StartBlock)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, cfg.AddressParallel))

	for _, addr := range addresses {
		g.Go(func() error {
			return b.runAddress(ctx, addr, cfg)
		})
	}
	return g.Wait()
}

// runAddress backfills a single exchange contract and records an audit row
// for the run.
func (b *Backfiller) runAddress(ctx context.Context, address string, cfg BackfillConfig) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("pipeline: invalid exchange address %q", address)
	}

	run := domain.BackfillRun{
		ID:              uuid.NewString(),
		ExchangeAddress: address,
		StartBlock:      cfg.StartBlock,
		EndBlock:        cfg.EndBlock,
		Status:          domain.RunStatusRunning,
		StartedAt:       time.Now().UTC(),
	}
	if err := b.runs.Create(ctx, run); err != nil {
		return fmt.Errorf("pipeline: record run for %s: %w", address, err)
	}

	logger := b.logger.With(
		slog.String("address", address),
		slog.String("run_id", run.ID),
	)
	logger.Info("backfill started",
		slog.Int64("start_block", cfg.StartBlock),
		slog.Int64("end_block", cfg.EndBlock),
		slog.Int64("chunk_size", cfg.ChunkSize),
	)

	inserted, err := b.walkWindows(ctx, address, cfg, logger)

	status := domain.RunStatusCompleted
	switch {
	case errors.Is(err, errStopAfter):
		status = domain.RunStatusStopped
		err = nil
	case err != nil:
		status = domain.RunStatusFailed
	}

	// Finish with a background-capable context so a cancelled backfill still
	// leaves an accurate audit row.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if ferr := b.runs.Finish(finishCtx, run.ID, inserted, status); ferr != nil {
		logger.Error("finish run record", slog.String("error", ferr.Error()))
		if err == nil {
			err = ferr
		}
	}

	if err != nil {
		logger.Error("backfill failed",
			slog.Int64("inserted", inserted),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("pipeline: backfill %s: %w", address, err)
	}
	logger.Info("backfill finished",
		slog.Int64("inserted", inserted),
		slog.String("status", status),
	)
	return nil
}

func (b *Backfiller) walkWindows(ctx context.Context, address string, cfg BackfillConfig, logger *slog.Logger) (int64, error) {
	fetcher := chain.NewFetcher(b.client, logger)
	resolver := chain.NewTimestampResolver(b.client, logger)
	iter := fetcher.Windows(common.HexToAddress(address), cfg.StartBlock, cfg.EndBlock, cfg.ChunkSize)

	var inserted int64
	for {
		window, ok, err := iter.Next(ctx)
		if err != nil {
			return inserted, err
		}
		if !ok {
			return inserted, nil
		}

		// A log that fails to decode means the event shape no longer matches
		// what this pipeline understands; ingesting around it would leave a
		// silent hole in the ledger, so the run fails instead.
		trades := make([]domain.Trade, 0, len(window.Logs))
		for _, lg := range window.Logs {
			ev, err := chain.DecodeOrderFilled(lg)
			if err != nil {
				return inserted, fmt.Errorf("pipeline: decode log %s[%d]: %w", lg.TxHash.Hex(), lg.Index, err)
			}
			trade, err := BuildTrade(ev, lg, resolver.Resolve(ctx, int64(lg.BlockNumber)))
			if err != nil {
				return inserted, fmt.Errorf("pipeline: build trade %s[%d]: %w", lg.TxHash.Hex(), lg.Index, err)
			}
			trades = append(trades, trade)
		}

		var newRows int64
		if len(trades) > 0 {
			newRows, err = b.trades.UpsertBatch(ctx, trades)
			if err != nil {
				return inserted, err
			}
			inserted += newRows
		}

		if b.archiver != nil && len(window.Logs) > 0 {
			if err := b.archiveWindow(ctx, address, window); err != nil {
				// Archival is enrichment; the canonical rows are already
				// committed.
				logger.Warn("chunk archive failed",
					slog.Int64("from_block", window.FromBlock),
					slog.Int64("to_block", window.ToBlock),
					slog.String("error", err.Error()),
				)
			}
		}

		logger.Info("chunk processed",
			slog.Int64("from_block", window.FromBlock),
			slog.Int64("to_block", window.ToBlock),
			slog.Int("logs", len(window.Logs)),
			slog.Int64("new_rows", newRows),
			slog.Int64("inserted_total", inserted),
		)

		if cfg.StopAfter > 0 && inserted >= cfg.StopAfter {
			logger.Info("insert cap reached, stopping",
				slog.Int64("inserted", inserted),
				slog.Int64("stop_after", cfg.StopAfter),
			)
			return inserted, errStopAfter
		}
		if cfg.Sleep > 0 && window.ToBlock < cfg.EndBlock {
			timer := time.NewTimer(cfg.Sleep)
			select {
			case <-ctx.Done():
				timer.Stop()
				return inserted, ctx.Err()
			case <-timer.C:
			}
		}
	}
}

func (b *Backfiller) archiveWindow(ctx context.Context, address string, window chain.Window) error {
	raw := make([]json.RawMessage, 0, len(window.Logs))
	for _, lg := range window.Logs {
		blob, err := json.Marshal(newRawLog(lg))
		if err != nil {
			return fmt.Errorf("pipeline: marshal chunk log: %w", err)
		}
		raw = append(raw, blob)
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("pipeline: marshal chunk payload: %w", err)
	}
	return b.archiver.ArchiveChunk(ctx, address, window.FromBlock, window.ToBlock, payload)
}
