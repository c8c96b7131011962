package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyreputation/internal/domain"
	"github.com/alanyoungcy/polyreputation/internal/platform/chain"
)

const exchangeAddr = "0xC5d563A36AE78145C45a50134d48A1215220f80a"

// packWords builds the non-indexed event data: five left-padded uint256
// words (makerAssetId, takerAssetId, makerAmountFilled, takerAmountFilled,
// fee).
func packWords(vals ...*big.Int) []byte {
	out := make([]byte, 0, len(vals)*32)
	for _, v := range vals {
		word := make([]byte, 32)
		v.FillBytes(word)
		out = append(out, word...)
	}
	return out
}

func fillLog(block int64, index uint, takerAmount int64) types.Log {
	tokenID, _ := new(big.Int).SetString(testTokenID, 10)
	return types.Log{
		Address:     common.HexToAddress(exchangeAddr),
		BlockNumber: uint64(block),
		TxHash:      common.HexToHash("0xabc123"),
		Index:       index,
		Topics: []common.Hash{
			chain.OrderFilledTopic,
			common.HexToHash("0x11"),
			common.HexToHash("0x000000000000000000000000aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
			common.HexToHash("0x000000000000000000000000bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		},
		Data: packWords(
			big.NewInt(0), tokenID,
			big.NewInt(40_000_000), big.NewInt(takerAmount), big.NewInt(0),
		),
	}
}

// scriptedClient serves logs per requested block range.
type scriptedClient struct {
	logs []types.Log
}

func (c *scriptedClient) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	var out []types.Log
	for _, lg := range c.logs {
		n := int64(lg.BlockNumber)
		if n >= q.FromBlock.Int64() && n <= q.ToBlock.Int64() {
			out = append(out, lg)
		}
	}
	return out, nil
}

func (c *scriptedClient) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: number, Time: 1_700_000_000}, nil
}

// fakeTradeStore mirrors the store's upsert contract: rows are keyed by
// (tx_hash, log_index), a conflicting row only ever gains a previously
// missing timestamp, and the return value counts new rows only.
type fakeTradeStore struct {
	mu      sync.Mutex
	rows    map[string]domain.Trade
	batches [][]domain.Trade
}

func tradeKey(t domain.Trade) string {
	return fmt.Sprintf("%s:%d", t.TxHash, t.LogIndex)
}

func (s *fakeTradeStore) UpsertBatch(_ context.Context, trades []domain.Trade) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rows == nil {
		s.rows = make(map[string]domain.Trade)
	}
	s.batches = append(s.batches, trades)

	var inserted int64
	for _, t := range trades {
		key := tradeKey(t)
		existing, ok := s.rows[key]
		if !ok {
			s.rows[key] = t
			inserted++
			continue
		}
		if existing.Timestamp == nil {
			existing.Timestamp = t.Timestamp
			s.rows[key] = existing
		}
	}
	return inserted, nil
}

func (s *fakeTradeStore) ListUnmappedTokenIDs(context.Context, int) ([]string, error) {
	return nil, nil
}
func (s *fakeTradeStore) ListResolvedFills(context.Context) ([]domain.ResolvedFill, error) {
	return nil, nil
}
func (s *fakeTradeStore) ListActivity(context.Context) ([]domain.TradeActivity, error) {
	return nil, nil
}
func (s *fakeTradeStore) Count(context.Context) (int64, error) { return 0, nil }

func (s *fakeTradeStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *fakeTradeStore) get(t *testing.T, key string) domain.Trade {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[key]
	require.True(t, ok, "no row for %s", key)
	return row
}

type fakeRunStore struct {
	mu       sync.Mutex
	created  []domain.BackfillRun
	finished map[string]string // run id -> status
	inserted map[string]int64
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{
		finished: make(map[string]string),
		inserted: make(map[string]int64),
	}
}

func (s *fakeRunStore) Create(_ context.Context, run domain.BackfillRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, run)
	return nil
}

func (s *fakeRunStore) Finish(_ context.Context, id string, inserted int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished[id] = status
	s.inserted[id] = inserted
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestBackfillerIngestsRange(t *testing.T) {
	client := &scriptedClient{logs: []types.Log{
		fillLog(100, 0, 100_000_000),
		fillLog(150, 1, 50_000_000),
		fillLog(199, 2, 10_000_000),
	}}
	trades := &fakeTradeStore{}
	runs := newFakeRunStore()

	b := NewBackfiller(client, trades, runs, nil, testLogger())
	err := b.Run(context.Background(), []string{exchangeAddr}, BackfillConfig{
		StartBlock: 100,
		EndBlock:   200,
		ChunkSize:  1000,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, trades.total())
	require.Len(t, runs.created, 1)
	id := runs.created[0].ID
	assert.Equal(t, domain.RunStatusCompleted, runs.finished[id])
	assert.Equal(t, int64(3), runs.inserted[id])

	// Decoded rows carry the resolved block timestamp.
	first := trades.batches[0][0]
	require.NotNil(t, first.Timestamp)
	assert.Equal(t, int64(1_700_000_000), *first.Timestamp)
	assert.Equal(t, domain.SideBuy, first.Side)
}

func TestBackfillerStopAfter(t *testing.T) {
	client := &scriptedClient{logs: []types.Log{
		fillLog(10, 0, 1_000_000),
		fillLog(25, 1, 1_000_000),
		fillLog(35, 2, 1_000_000),
	}}
	trades := &fakeTradeStore{}
	runs := newFakeRunStore()

	b := NewBackfiller(client, trades, runs, nil, testLogger())
	err := b.Run(context.Background(), []string{exchangeAddr}, BackfillConfig{
		StartBlock: 1,
		EndBlock:   40,
		ChunkSize:  10,
		StopAfter:  2,
	})
	require.NoError(t, err)

	// Chunks are [1,10] [11,20] [21,30] [31,40]; the cap lands mid-range so
	// the last chunk is never fetched.
	assert.Equal(t, 2, trades.total())
	id := runs.created[0].ID
	assert.Equal(t, domain.RunStatusStopped, runs.finished[id])
	assert.Equal(t, int64(2), runs.inserted[id])
}

func TestBackfillerFailsOnUndecodableLog(t *testing.T) {
	// Truncated topics mean the event shape no longer matches the ABI. That
	// must abort the run, not leave a hole in the ledger.
	bad := fillLog(10, 0, 1_000_000)
	bad.Topics = bad.Topics[:1]

	client := &scriptedClient{logs: []types.Log{bad, fillLog(11, 1, 1_000_000)}}
	trades := &fakeTradeStore{}
	runs := newFakeRunStore()

	b := NewBackfiller(client, trades, runs, nil, testLogger())
	err := b.Run(context.Background(), []string{exchangeAddr}, BackfillConfig{
		StartBlock: 1,
		EndBlock:   20,
		ChunkSize:  100,
	})
	require.Error(t, err)
	assert.Equal(t, 0, trades.total())
	id := runs.created[0].ID
	assert.Equal(t, domain.RunStatusFailed, runs.finished[id])
}

func TestBackfillerReingestIsIdempotent(t *testing.T) {
	client := &scriptedClient{logs: []types.Log{
		fillLog(100, 0, 100_000_000),
		fillLog(150, 1, 50_000_000),
	}}
	trades := &fakeTradeStore{}
	cfg := BackfillConfig{StartBlock: 100, EndBlock: 200, ChunkSize: 1000}

	b := NewBackfiller(client, trades, newFakeRunStore(), nil, testLogger())
	require.NoError(t, b.Run(context.Background(), []string{exchangeAddr}, cfg))
	require.Equal(t, 2, trades.total())

	// Same range again: every log hits the conflict path, nothing is new.
	runs := newFakeRunStore()
	b = NewBackfiller(client, trades, runs, nil, testLogger())
	require.NoError(t, b.Run(context.Background(), []string{exchangeAddr}, cfg))

	assert.Equal(t, 2, trades.total())
	id := runs.created[0].ID
	assert.Equal(t, domain.RunStatusCompleted, runs.finished[id])
	assert.Equal(t, int64(0), runs.inserted[id])
}

func TestTradeUpsertOnlyFillsMissingTimestamp(t *testing.T) {
	store := &fakeTradeStore{}
	base := domain.Trade{TxHash: "0xabc", LogIndex: 7, BlockNumber: 100}

	n, err := store.UpsertBatch(context.Background(), []domain.Trade{base})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Re-delivery with a resolved timestamp fills the gap, inserts nothing.
	ts := int64(1_700_000_000)
	withTS := base
	withTS.Timestamp = &ts
	n, err = store.UpsertBatch(context.Background(), []domain.Trade{withTS})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	row := store.get(t, tradeKey(base))
	require.NotNil(t, row.Timestamp)
	assert.Equal(t, ts, *row.Timestamp)

	// A later conflicting timestamp never overwrites the stored one.
	otherTS := int64(1_800_000_000)
	withTS.Timestamp = &otherTS
	_, err = store.UpsertBatch(context.Background(), []domain.Trade{withTS})
	require.NoError(t, err)
	assert.Equal(t, ts, *store.get(t, tradeKey(base)).Timestamp)
}

func TestBackfillerRejectsInvalidAddress(t *testing.T) {
	b := NewBackfiller(&scriptedClient{}, &fakeTradeStore{}, newFakeRunStore(), nil, testLogger())
	err := b.Run(context.Background(), []string{"not-an-address"}, BackfillConfig{
		StartBlock: 1,
		EndBlock:   2,
		ChunkSize:  10,
	})
	require.Error(t, err)
}

func TestBackfillerMarksFailedRun(t *testing.T) {
	client := &scriptedClient{logs: []types.Log{fillLog(5, 0, 1_000_000)}}
	trades := &failingTradeStore{}
	runs := newFakeRunStore()

	b := NewBackfiller(client, trades, runs, nil, testLogger())
	err := b.Run(context.Background(), []string{exchangeAddr}, BackfillConfig{
		StartBlock: 1,
		EndBlock:   10,
		ChunkSize:  100,
	})
	require.Error(t, err)
	id := runs.created[0].ID
	assert.Equal(t, domain.RunStatusFailed, runs.finished[id])
}

type failingTradeStore struct{ fakeTradeStore }

func (s *failingTradeStore) UpsertBatch(context.Context, []domain.Trade) (int64, error) {
	return 0, errors.New("db down")
}
