package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// orderFilledSignature is the canonical event signature on the CTF Exchange.
const orderFilledSignature = "OrderFilled(bytes32,address,address,uint256,uint256,uint256,uint256,uint256)"

// OrderFilledTopic is the topic0 filter value for OrderFilled logs.
var OrderFilledTopic = crypto.Keccak256Hash([]byte(orderFilledSignature))

// orderFilledData describes the non-indexed portion of the event:
// makerAssetId, takerAssetId, makerAmountFilled, takerAmountFilled, fee.
var orderFilledData = abi.Arguments{
	{Name: "makerAssetId", Type: mustType("uint256")},
	{Name: "takerAssetId", Type: mustType("uint256")},
	{Name: "makerAmountFilled", Type: mustType("uint256")},
	{Name: "takerAmountFilled", Type: mustType("uint256")},
	{Name: "fee", Type: mustType("uint256")},
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("chain: bad abi type %s: %v", t, err))
	}
	return typ
}

// OrderFilled is a decoded OrderFilled event. Asset IDs stay as big.Int:
// they are 256-bit hash-derived identifiers, not quantities.
type OrderFilled struct {
	OrderHash common.Hash
	Maker     common.Address
	Taker     common.Address

	MakerAssetID      *big.Int
	TakerAssetID      *big.Int
	MakerAmountFilled *big.Int
	TakerAmountFilled *big.Int
	Fee               *big.Int
}

// DecodeOrderFilled unpacks an OrderFilled log. A log with the wrong topic,
// a missing indexed parameter, or a malformed data segment is a schema
// mismatch and is returned as an error rather than skipped.
func DecodeOrderFilled(lg types.Log) (OrderFilled, error) {
	if len(lg.Topics) != 4 {
		return OrderFilled{}, fmt.Errorf("chain: order filled log %s[%d]: expected 4 topics, got %d",
			lg.TxHash.Hex(), lg.Index, len(lg.Topics))
	}
	if lg.Topics[0] != OrderFilledTopic {
		return OrderFilled{}, fmt.Errorf("chain: order filled log %s[%d]: unexpected topic0 %s",
			lg.TxHash.Hex(), lg.Index, lg.Topics[0].Hex())
	}

	values, err := orderFilledData.Unpack(lg.Data)
	if err != nil {
		return OrderFilled{}, fmt.Errorf("chain: unpack order filled data %s[%d]: %w",
			lg.TxHash.Hex(), lg.Index, err)
	}
	if len(values) != 5 {
		return OrderFilled{}, fmt.Errorf("chain: order filled data %s[%d]: expected 5 words, got %d",
			lg.TxHash.Hex(), lg.Index, len(values))
	}

	out := OrderFilled{
		OrderHash: lg.Topics[1],
		Maker:     common.BytesToAddress(lg.Topics[2].Bytes()),
		Taker:     common.BytesToAddress(lg.Topics[3].Bytes()),
	}

	words := make([]*big.Int, 5)
	for i, v := range values {
		n, ok := v.(*big.Int)
		if !ok {
			return OrderFilled{}, fmt.Errorf("chain: order filled data %s[%d]: word %d is %T, not uint256",
				lg.TxHash.Hex(), lg.Index, i, v)
		}
		words[i] = n
	}
	out.MakerAssetID = words[0]
	out.TakerAssetID = words[1]
	out.MakerAmountFilled = words[2]
	out.TakerAmountFilled = words[3]
	out.Fee = words[4]

	return out, nil
}

// MakerAddress returns the lowercased hex maker address.
func (e OrderFilled) MakerAddress() string {
	return strings.ToLower(e.Maker.Hex())
}

// TakerAddress returns the lowercased hex taker address.
func (e OrderFilled) TakerAddress() string {
	return strings.ToLower(e.Taker.Hex())
}
