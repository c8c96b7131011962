// Package pipeline contains the ingestion pipelines: the OrderFilled
// backfill loop and the Gamma market synchronizer.
package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/polyreputation/internal/domain"
	"github.com/alanyoungcy/polyreputation/internal/platform/chain"
)

// InferredFields is the economic reading of an OrderFilled event: which leg
// paid collateral, which received outcome tokens, and at what price.
type InferredFields struct {
	Side             domain.Side
	TokenID          string
	CollateralAmount int64
	TokenAmount      int64
	Price            *float64
}

// InferTradeFields derives side, token id, amounts, and price from the raw
// event legs. Asset ID "0" is the collateral asset; a nonzero ID is an
// outcome token. Side is from the maker order's perspective. On a BUY the
// token amount transferred to the buyer is net of the fee. This function is
// pure: same inputs, same output, no I/O.
func InferTradeFields(makerAssetID, takerAssetID string, makerAmount, takerAmount, fee int64) InferredFields {
	makerIsCollateral := makerAssetID == domain.CollateralAssetID
	takerIsCollateral := takerAssetID == domain.CollateralAssetID

	var f InferredFields
	switch {
	case makerIsCollateral && !takerIsCollateral:
		f.Side = domain.SideBuy
		f.TokenID = takerAssetID
		f.CollateralAmount = makerAmount
		f.TokenAmount = max(takerAmount-fee, 0)

	case takerIsCollateral && !makerIsCollateral:
		f.Side = domain.SideSell
		f.TokenID = makerAssetID
		f.CollateralAmount = takerAmount
		f.TokenAmount = makerAmount

	default:
		// Neither or both legs are collateral. Best effort: prefer the
		// nonzero asset as the token and the zero one as collateral.
		f.Side = domain.SideUnknown
		if takerAssetID != domain.CollateralAssetID {
			f.TokenID = takerAssetID
		} else {
			f.TokenID = makerAssetID
		}
		if takerIsCollateral {
			f.CollateralAmount = takerAmount
		} else {
			f.CollateralAmount = makerAmount
		}
		if !makerIsCollateral {
			f.TokenAmount = makerAmount
		} else {
			f.TokenAmount = takerAmount
		}
	}

	if f.TokenAmount > 0 {
		p := float64(f.CollateralAmount) / float64(f.TokenAmount)
		if !math.IsInf(p, 0) && !math.IsNaN(p) {
			f.Price = &p
		}
	}
	return f
}

// rawLog is the JSON audit form of a fetched log, normalized to lowercase
// hex the way downstream consumers expect.
type rawLog struct {
	Address          string   `json:"address"`
	BlockNumber      int64    `json:"blockNumber"`
	TransactionHash  string   `json:"transactionHash"`
	TransactionIndex uint     `json:"transactionIndex"`
	BlockHash        string   `json:"blockHash"`
	LogIndex         uint     `json:"logIndex"`
	Data             string   `json:"data"`
	Topics           []string `json:"topics"`
}

func newRawLog(lg types.Log) rawLog {
	topics := make([]string, len(lg.Topics))
	for i, t := range lg.Topics {
		topics[i] = t.Hex()
	}
	return rawLog{
		Address:          strings.ToLower(lg.Address.Hex()),
		BlockNumber:      int64(lg.BlockNumber),
		TransactionHash:  lg.TxHash.Hex(),
		TransactionIndex: lg.TxIndex,
		BlockHash:        lg.BlockHash.Hex(),
		LogIndex:         lg.Index,
		Data:             "0x" + common.Bytes2Hex(lg.Data),
		Topics:           topics,
	}
}

// decodedTrade is the JSON audit form of the decoded event plus the
// inference applied to it, with a proof section pointing back at the log.
type decodedTrade struct {
	Event             string `json:"event"`
	OrderHash         string `json:"orderHash"`
	Maker             string `json:"maker"`
	Taker             string `json:"taker"`
	MakerAssetID      string `json:"makerAssetId"`
	TakerAssetID      string `json:"takerAssetId"`
	MakerAmountFilled int64  `json:"makerAmountFilled"`
	TakerAmountFilled int64  `json:"takerAmountFilled"`
	Fee               int64  `json:"fee"`

	Inferred struct {
		Side             string   `json:"side"`
		TokenID          string   `json:"tokenId"`
		CollateralAmount int64    `json:"collateralAmount"`
		TokenAmount      int64    `json:"tokenAmount"`
		Price            *float64 `json:"price"`
	} `json:"inferred"`

	Proof struct {
		TxHash      string   `json:"tx_hash"`
		LogIndex    uint     `json:"log_index"`
		BlockNumber int64    `json:"block_number"`
		Contract    string   `json:"contract"`
		Topics      []string `json:"topics"`
		Data        string   `json:"data"`
	} `json:"proof"`
}

// BuildTrade assembles a canonical domain.Trade from a decoded event, its
// source log, and an optional block timestamp. Amounts that do not fit in
// int64 base units indicate a schema mismatch and are surfaced as errors
// rather than truncated.
func BuildTrade(ev chain.OrderFilled, lg types.Log, ts *int64) (domain.Trade, error) {
	makerAmount, err := int64Amount("makerAmountFilled", ev.MakerAmountFilled, lg)
	if err != nil {
		return domain.Trade{}, err
	}
	takerAmount, err := int64Amount("takerAmountFilled", ev.TakerAmountFilled, lg)
	if err != nil {
		return domain.Trade{}, err
	}
	fee, err := int64Amount("fee", ev.Fee, lg)
	if err != nil {
		return domain.Trade{}, err
	}

	makerAssetID := ev.MakerAssetID.String()
	takerAssetID := ev.TakerAssetID.String()
	inferred := InferTradeFields(makerAssetID, takerAssetID, makerAmount, takerAmount, fee)

	raw := newRawLog(lg)

	var dec decodedTrade
	dec.Event = "OrderFilled"
	dec.OrderHash = ev.OrderHash.Hex()
	dec.Maker = ev.MakerAddress()
	dec.Taker = ev.TakerAddress()
	dec.MakerAssetID = makerAssetID
	dec.TakerAssetID = takerAssetID
	dec.MakerAmountFilled = makerAmount
	dec.TakerAmountFilled = takerAmount
	dec.Fee = fee
	dec.Inferred.Side = string(inferred.Side)
	dec.Inferred.TokenID = inferred.TokenID
	dec.Inferred.CollateralAmount = inferred.CollateralAmount
	dec.Inferred.TokenAmount = inferred.TokenAmount
	dec.Inferred.Price = inferred.Price
	dec.Proof.TxHash = raw.TransactionHash
	dec.Proof.LogIndex = raw.LogIndex
	dec.Proof.BlockNumber = raw.BlockNumber
	dec.Proof.Contract = raw.Address
	dec.Proof.Topics = raw.Topics
	dec.Proof.Data = raw.Data

	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("pipeline: marshal raw log %s[%d]: %w",
			raw.TransactionHash, raw.LogIndex, err)
	}
	decJSON, err := json.Marshal(dec)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("pipeline: marshal decoded trade %s[%d]: %w",
			raw.TransactionHash, raw.LogIndex, err)
	}

	return domain.Trade{
		TxHash:           raw.TransactionHash,
		LogIndex:         int64(lg.Index),
		BlockNumber:      raw.BlockNumber,
		Timestamp:        ts,
		ContractAddress:  raw.Address,
		OrderHash:        dec.OrderHash,
		Maker:            dec.Maker,
		Taker:            dec.Taker,
		MakerAssetID:     makerAssetID,
		TakerAssetID:     takerAssetID,
		TokenID:          inferred.TokenID,
		MakerAmount:      makerAmount,
		TakerAmount:      takerAmount,
		Fee:              fee,
		CollateralAmount: inferred.CollateralAmount,
		TokenAmount:      inferred.TokenAmount,
		Side:             inferred.Side,
		Price:            inferred.Price,
		DecodedJSON:      decJSON,
		RawLogJSON:       rawJSON,
	}, nil
}

// int64Amount converts a uint256 amount to int64 base units, rejecting
// values that do not fit.
func int64Amount(field string, v *big.Int, lg types.Log) (int64, error) {
	if v == nil || !v.IsInt64() {
		return 0, fmt.Errorf("pipeline: %s in %s[%d] exceeds int64 base units: %w",
			field, lg.TxHash.Hex(), lg.Index, domain.ErrDecode)
	}
	n := v.Int64()
	if n < 0 {
		return 0, fmt.Errorf("pipeline: %s in %s[%d] is negative: %w",
			field, lg.TxHash.Hex(), lg.Index, domain.ErrDecode)
	}
	return n, nil
}
