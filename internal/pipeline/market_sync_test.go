package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyreputation/internal/domain"
	"github.com/alanyoungcy/polyreputation/internal/platform/gamma"
)

type recordingMarketStore struct {
	upserts []domain.Market
}

func (s *recordingMarketStore) Upsert(_ context.Context, m domain.Market) error {
	s.upserts = append(s.upserts, m)
	return nil
}

func (s *recordingMarketStore) GetByID(context.Context, string) (domain.Market, error) {
	return domain.Market{}, domain.ErrNotFound
}

func (s *recordingMarketStore) GetByTokenID(context.Context, string) (domain.Market, error) {
	return domain.Market{}, domain.ErrNotFound
}

func (s *recordingMarketStore) Count(context.Context) (int64, error) { return 0, nil }

type unmappedTradeStore struct {
	fakeTradeStore
	tokenIDs []string
}

func (s *unmappedTradeStore) ListUnmappedTokenIDs(_ context.Context, limit int) ([]string, error) {
	if len(s.tokenIDs) > limit {
		return s.tokenIDs[:limit], nil
	}
	return s.tokenIDs, nil
}

func gammaMarket(id, question string) map[string]any {
	return map[string]any{
		"id":            id,
		"question":      question,
		"closed":        true,
		"outcomes":      `["Yes","No"]`,
		"outcomePrices": `["0.995","0.005"]`,
		"clobTokenIds":  `["111","222"]`,
	}
}

func TestSyncAllWalksPages(t *testing.T) {
	var offsets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offsets = append(offsets, r.URL.Query().Get("offset"))
		var page []map[string]any
		if r.URL.Query().Get("offset") == "0" {
			page = []map[string]any{gammaMarket("1", "a"), gammaMarket("2", "b")}
		} else {
			page = []map[string]any{gammaMarket("3", "c")} // short page ends the walk
		}
		json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	store := &recordingMarketStore{}
	s := NewMarketSyncer(gamma.NewClient(srv.URL), store, &fakeTradeStore{}, testLogger())

	err := s.SyncAll(context.Background(), SyncConfig{PageLimit: 2})
	require.NoError(t, err)

	assert.Equal(t, []string{"0", "2"}, offsets)
	require.Len(t, store.upserts, 3)
	assert.True(t, store.upserts[0].Resolved)
	require.NotNil(t, store.upserts[0].WinningTokenID)
	assert.Equal(t, "111", *store.upserts[0].WinningTokenID)
}

func TestSyncTradedBatchesTokenIDs(t *testing.T) {
	var requests [][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids := r.URL.Query()["clob_token_ids"]
		requests = append(requests, ids)
		json.NewEncoder(w).Encode([]map[string]any{gammaMarket("1", "a")})
	}))
	defer srv.Close()

	store := &recordingMarketStore{}
	trades := &unmappedTradeStore{tokenIDs: []string{"t1", "t2", "t3"}}
	s := NewMarketSyncer(gamma.NewClient(srv.URL), store, trades, testLogger())

	err := s.SyncTraded(context.Background(), SyncConfig{TokenBatch: 2, MaxTokenIDs: 10})
	require.NoError(t, err)

	require.Len(t, requests, 2)
	assert.Equal(t, []string{"t1", "t2"}, requests[0])
	assert.Equal(t, []string{"t3"}, requests[1])
	assert.Len(t, store.upserts, 2)
}

func TestSyncTradedNoUnmappedTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}))
	defer srv.Close()

	s := NewMarketSyncer(gamma.NewClient(srv.URL), &recordingMarketStore{}, &fakeTradeStore{}, testLogger())
	require.NoError(t, s.SyncTraded(context.Background(), SyncConfig{}))
}

func TestSyncSkipsMarketsWithEmptyID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			gammaMarket("", "broken"),
			gammaMarket("7", "fine"),
		})
	}))
	defer srv.Close()

	store := &recordingMarketStore{}
	s := NewMarketSyncer(gamma.NewClient(srv.URL), store, &fakeTradeStore{}, testLogger())

	require.NoError(t, s.SyncAll(context.Background(), SyncConfig{PageLimit: 10}))
	require.Len(t, store.upserts, 1)
	assert.Equal(t, "7", store.upserts[0].ID)
}
