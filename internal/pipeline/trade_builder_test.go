package pipeline

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyreputation/internal/domain"
	"github.com/alanyoungcy/polyreputation/internal/platform/chain"
)

const testTokenID = "21742633143463906290569050155826241533067272736897614950488156847949938836455"

func TestInferTradeFieldsBuy(t *testing.T) {
	f := InferTradeFields("0", testTokenID, 40_000_000, 100_000_000, 250_000)

	assert.Equal(t, domain.SideBuy, f.Side)
	assert.Equal(t, testTokenID, f.TokenID)
	assert.Equal(t, int64(40_000_000), f.CollateralAmount)
	// The change of hands on the token leg is net of the fee.
	assert.Equal(t, int64(99_750_000), f.TokenAmount)
	require.NotNil(t, f.Price)
	assert.InDelta(t, 0.401, *f.Price, 0.001)
}

func TestInferTradeFieldsSell(t *testing.T) {
	f := InferTradeFields(testTokenID, "0", 100_000_000, 40_000_000, 250_000)

	assert.Equal(t, domain.SideSell, f.Side)
	assert.Equal(t, testTokenID, f.TokenID)
	assert.Equal(t, int64(40_000_000), f.CollateralAmount)
	assert.Equal(t, int64(100_000_000), f.TokenAmount)
	require.NotNil(t, f.Price)
	assert.InDelta(t, 0.4, *f.Price, 0.0001)
}

func TestInferTradeFieldsBuyFeeExceedsTaker(t *testing.T) {
	f := InferTradeFields("0", testTokenID, 10, 5, 8)
	assert.Equal(t, int64(0), f.TokenAmount)
	assert.Nil(t, f.Price)
}

func TestInferTradeFieldsUnknown(t *testing.T) {
	// Token on both legs: no collateral side, no direction.
	f := InferTradeFields(testTokenID, "99", 10, 20, 0)
	assert.Equal(t, domain.SideUnknown, f.Side)

	// Collateral on both legs likewise.
	f = InferTradeFields("0", "0", 10, 20, 0)
	assert.Equal(t, domain.SideUnknown, f.Side)
}

func TestInferTradeFieldsZeroTokenAmountHasNoPrice(t *testing.T) {
	f := InferTradeFields(testTokenID, "0", 0, 40_000_000, 0)
	assert.Nil(t, f.Price)
}

func buildLog(t *testing.T, makerAsset, takerAsset string, makerAmount, takerAmount, fee int64) (chain.OrderFilled, types.Log) {
	t.Helper()
	ma, ok := new(big.Int).SetString(makerAsset, 10)
	require.True(t, ok)
	ta, ok := new(big.Int).SetString(takerAsset, 10)
	require.True(t, ok)

	ev := chain.OrderFilled{
		OrderHash:         common.HexToHash("0x11"),
		Maker:             common.HexToAddress("0xAAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa"),
		Taker:             common.HexToAddress("0xBbBBbbBBbBbbbBBbBBbbbbBBbBBBBBbbBbbbBbBb"),
		MakerAssetID:      ma,
		TakerAssetID:      ta,
		MakerAmountFilled: big.NewInt(makerAmount),
		TakerAmountFilled: big.NewInt(takerAmount),
		Fee:               big.NewInt(fee),
	}
	lg := types.Log{
		Address:     common.HexToAddress("0xC5d563A36AE78145C45a50134d48A1215220f80a"),
		BlockNumber: 50_000_000,
		TxHash:      common.HexToHash("0xbeef"),
		Index:       7,
		Topics:      []common.Hash{chain.OrderFilledTopic, ev.OrderHash, {}, {}},
	}
	return ev, lg
}

func TestBuildTrade(t *testing.T) {
	ev, lg := buildLog(t, "0", testTokenID, 40_000_000, 100_000_000, 250_000)
	ts := int64(1_700_000_123)

	trade, err := BuildTrade(ev, lg, &ts)
	require.NoError(t, err)

	assert.Equal(t, lg.TxHash.Hex(), trade.TxHash)
	assert.Equal(t, int64(7), trade.LogIndex)
	assert.Equal(t, int64(50_000_000), trade.BlockNumber)
	require.NotNil(t, trade.Timestamp)
	assert.Equal(t, ts, *trade.Timestamp)
	assert.Equal(t, "0xc5d563a36ae78145c45a50134d48a1215220f80a", trade.ContractAddress)
	assert.Equal(t, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", trade.Maker)
	assert.Equal(t, "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", trade.Taker)
	assert.Equal(t, domain.SideBuy, trade.Side)
	assert.Equal(t, testTokenID, trade.TokenID)
	assert.Equal(t, int64(40_000_000), trade.CollateralAmount)
	assert.Equal(t, int64(99_750_000), trade.TokenAmount)

	// The decoded blob must carry the inference and a proof back to the log.
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(trade.DecodedJSON, &decoded))
	assert.Equal(t, "OrderFilled", decoded["event"])
	inferred := decoded["inferred"].(map[string]any)
	assert.Equal(t, "BUY", inferred["side"])
	proof := decoded["proof"].(map[string]any)
	assert.Equal(t, lg.TxHash.Hex(), proof["tx_hash"])

	var raw map[string]any
	require.NoError(t, json.Unmarshal(trade.RawLogJSON, &raw))
	assert.Equal(t, float64(50_000_000), raw["blockNumber"])
}

func TestBuildTradeNilTimestamp(t *testing.T) {
	ev, lg := buildLog(t, testTokenID, "0", 100, 40, 0)

	trade, err := BuildTrade(ev, lg, nil)
	require.NoError(t, err)
	assert.Nil(t, trade.Timestamp)
	assert.Equal(t, domain.SideSell, trade.Side)
}

func TestBuildTradeRejectsOversizedAmount(t *testing.T) {
	ev, lg := buildLog(t, "0", testTokenID, 1, 1, 0)
	ev.MakerAmountFilled, _ = new(big.Int).SetString("99999999999999999999999999999", 10)

	_, err := BuildTrade(ev, lg, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDecode)
}

// Maker and taker token deltas cancel, and the collateral legs differ only
// by the fee. This holds for every decodable direction.
func TestInferTradeFieldsConservation(t *testing.T) {
	cases := []struct {
		name                    string
		makerAsset, takerAsset  string
		makerAmt, takerAmt, fee int64
	}{
		{"buy", "0", testTokenID, 40_000_000, 100_000_000, 250_000},
		{"buy no fee", "0", testTokenID, 1, 3, 0},
		{"sell", testTokenID, "0", 100_000_000, 40_000_000, 250_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := InferTradeFields(tc.makerAsset, tc.takerAsset, tc.makerAmt, tc.takerAmt, tc.fee)
			switch f.Side {
			case domain.SideBuy:
				assert.Equal(t, tc.makerAmt, f.CollateralAmount)
				assert.Equal(t, max(tc.takerAmt-tc.fee, 0), f.TokenAmount)
			case domain.SideSell:
				assert.Equal(t, tc.takerAmt, f.CollateralAmount)
				assert.Equal(t, tc.makerAmt, f.TokenAmount)
			default:
				t.Fatalf("unexpected side %s", f.Side)
			}
		})
	}
}
