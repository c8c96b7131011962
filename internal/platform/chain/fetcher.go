package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	// softLogLimit is the response size above which the chunk ceiling is
	// permanently lowered to keep future payloads manageable.
	softLogLimit = 10_000

	// maxBackoffAttempts bounds rate-limit retries for a single window.
	maxBackoffAttempts = 8

	// backoffCap bounds a single rate-limit sleep.
	backoffCap = 30 * time.Second
)

// Window is one fetched block subrange and its raw logs.
type Window struct {
	FromBlock int64
	ToBlock   int64
	Logs      []types.Log
}

// Fetcher retrieves OrderFilled logs for a contract over a closed block
// interval, adapting the request window to provider limits: the window is
// halved when the provider rejects it as too large, grown back (bounded)
// after successes, and retried with exponential backoff on rate limiting.
type Fetcher struct {
	client LogClient
	logger *slog.Logger
}

// NewFetcher creates a Fetcher over the given RPC client.
func NewFetcher(client LogClient, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		client: client,
		logger: logger.With(slog.String("component", "log_fetcher")),
	}
}

// Windows returns an iterator over [startBlock, endBlock] for the given
// exchange address, starting with chunkSize-block windows. Each emitted
// Window covers its subrange exactly once, in increasing block order.
func (f *Fetcher) Windows(address common.Address, startBlock, endBlock, chunkSize int64) *WindowIter {
	if chunkSize < 1 {
		chunkSize = 1
	}
	return &WindowIter{
		fetcher: f,
		address: address,
		from:    startBlock,
		end:     endBlock,
		cur:     chunkSize,
		max:     chunkSize,
	}
}

// WindowIter walks a block interval window by window. It is not safe for
// concurrent use; windowing state assumes sequential advancement.
type WindowIter struct {
	fetcher *Fetcher
	address common.Address
	from    int64
	end     int64
	cur     int64 // current window size
	max     int64 // window-size ceiling, lowered after oversized responses
}

// Next fetches the next window. It returns ok=false when the interval is
// exhausted. Errors are fatal: transient provider limits have already been
// absorbed by shrinking and backoff.
func (it *WindowIter) Next(ctx context.Context) (Window, bool, error) {
	if it.from > it.end {
		return Window{}, false, nil
	}

	logs, toBlock, err := it.fetchAdaptive(ctx)
	if err != nil {
		return Window{}, false, err
	}

	w := Window{FromBlock: it.from, ToBlock: toBlock, Logs: logs}

	// Advance, then adjust window sizing for the next round.
	it.from = toBlock + 1
	if len(logs) > softLogLimit && it.max > 1 {
		it.max = max(1, it.max/2)
		it.fetcher.logger.Debug("oversized response, lowering window ceiling",
			slog.Int("logs", len(logs)),
			slog.Int64("max_window", it.max),
		)
	}
	if it.cur < it.max {
		it.cur = min(it.max, max(1, it.cur*2))
	} else if it.cur > it.max {
		it.cur = it.max
	}

	return w, true, nil
}

// fetchAdaptive requests logs for the current window, shrinking it on
// range/result-limit errors and backing off on rate limits, until the
// request succeeds or the error is unrecoverable.
func (it *WindowIter) fetchAdaptive(ctx context.Context) ([]types.Log, int64, error) {
	attempt := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		toBlock := min(it.from+it.cur-1, it.end)
		query := ethereum.FilterQuery{
			FromBlock: big.NewInt(it.from),
			ToBlock:   big.NewInt(toBlock),
			Addresses: []common.Address{it.address},
			Topics:    [][]common.Hash{{OrderFilledTopic}},
		}

		logs, err := it.fetcher.client.FilterLogs(ctx, query)
		if err == nil {
			return logs, toBlock, nil
		}

		switch classify(err) {
		case classShrink:
			if it.cur <= 1 {
				return nil, 0, fmt.Errorf("chain: range limit at single-block window [%d,%d]: %w",
					it.from, toBlock, err)
			}
			it.cur = max(1, it.cur/2)
			attempt = 0
			it.fetcher.logger.Debug("provider range limit, shrinking window",
				slog.Int64("from", it.from),
				slog.Int64("window", it.cur),
			)

		case classBackoff:
			attempt++
			if attempt > maxBackoffAttempts {
				return nil, 0, fmt.Errorf("chain: rate limited after %d attempts for [%d,%d]: %w",
					maxBackoffAttempts, it.from, toBlock, err)
			}
			wait, ok := retryHint(err)
			if !ok {
				wait = min(backoffCap, time.Duration(1<<uint(attempt))*time.Second)
			}
			it.fetcher.logger.Warn("provider rate limited, backing off",
				slog.Int64("from", it.from),
				slog.Duration("wait", wait),
				slog.Int("attempt", attempt),
			)
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, 0, err
			}

		default:
			return nil, 0, fmt.Errorf("chain: get logs [%d,%d]: %w", it.from, toBlock, err)
		}
	}
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
