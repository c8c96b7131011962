package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func packedData(t *testing.T, makerAsset, takerAsset, makerAmount, takerAmount, fee *big.Int) []byte {
	t.Helper()
	data, err := orderFilledData.Pack(makerAsset, takerAsset, makerAmount, takerAmount, fee)
	require.NoError(t, err)
	return data
}

func orderFilledLog(t *testing.T, makerAsset, takerAsset, makerAmount, takerAmount, fee *big.Int) types.Log {
	t.Helper()
	return types.Log{
		Address: testAddress,
		Topics: []common.Hash{
			OrderFilledTopic,
			common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111"),
			common.HexToHash("0x000000000000000000000000aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
			common.HexToHash("0x000000000000000000000000bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		},
		Data:        packedData(t, makerAsset, takerAsset, makerAmount, takerAmount, fee),
		BlockNumber: 42,
		TxHash:      common.HexToHash("0xdead"),
		Index:       3,
	}
}

func TestDecodeOrderFilled(t *testing.T) {
	tokenID, ok := new(big.Int).SetString("21742633143463906290569050155826241533067272736897614950488156847949938836455", 10)
	require.True(t, ok)

	lg := orderFilledLog(t,
		big.NewInt(0), tokenID,
		big.NewInt(40_000_000), big.NewInt(100_000_000), big.NewInt(250_000),
	)

	ev, err := DecodeOrderFilled(lg)
	require.NoError(t, err)

	assert.Equal(t, lg.Topics[1], ev.OrderHash)
	assert.Equal(t, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", ev.MakerAddress())
	assert.Equal(t, "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", ev.TakerAddress())
	assert.Equal(t, "0", ev.MakerAssetID.String())
	assert.Equal(t, tokenID.String(), ev.TakerAssetID.String())
	assert.Equal(t, int64(40_000_000), ev.MakerAmountFilled.Int64())
	assert.Equal(t, int64(100_000_000), ev.TakerAmountFilled.Int64())
	assert.Equal(t, int64(250_000), ev.Fee.Int64())
}

func TestDecodeOrderFilledRejectsWrongTopicCount(t *testing.T) {
	lg := orderFilledLog(t, big.NewInt(0), big.NewInt(1), big.NewInt(1), big.NewInt(1), big.NewInt(0))
	lg.Topics = lg.Topics[:2]

	_, err := DecodeOrderFilled(lg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 4 topics")
}

func TestDecodeOrderFilledRejectsWrongSignature(t *testing.T) {
	lg := orderFilledLog(t, big.NewInt(0), big.NewInt(1), big.NewInt(1), big.NewInt(1), big.NewInt(0))
	lg.Topics[0] = common.HexToHash("0x01")

	_, err := DecodeOrderFilled(lg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected topic0")
}

func TestDecodeOrderFilledRejectsShortData(t *testing.T) {
	lg := orderFilledLog(t, big.NewInt(0), big.NewInt(1), big.NewInt(1), big.NewInt(1), big.NewInt(0))
	lg.Data = lg.Data[:64]

	_, err := DecodeOrderFilled(lg)
	require.Error(t, err)
}
