package domain

// Side is the direction of a fill from the maker order's perspective.
type Side string

const (
	SideBuy     Side = "BUY"
	SideSell    Side = "SELL"
	SideUnknown Side = "UNKNOWN"
)

// CollateralAssetID is the asset ID of the collateral currency (USDC) in
// OrderFilled events. Any other asset ID is an outcome token.
const CollateralAssetID = "0"

// USDCDecimals is the number of decimal places of the collateral currency.
// All monetary columns store integer base units at this scale.
const USDCDecimals = 6

// Trade is a decoded OrderFilled log. It is keyed by (TxHash, LogIndex);
// every other field is an immutable fact about the log, except Timestamp,
// which may be backfilled after insertion.
type Trade struct {
	TxHash          string
	LogIndex        int64
	BlockNumber     int64
	Timestamp       *int64 // unix seconds, nil until resolved
	ContractAddress string

	OrderHash string
	Maker     string
	Taker     string

	// Asset IDs are uint256 values carried as decimal strings; they routinely
	// exceed int64 range.
	MakerAssetID string
	TakerAssetID string
	TokenID      string

	// Amounts in base units (6-decimal USDC / CTF share units).
	MakerAmount int64
	TakerAmount int64
	Fee         int64

	CollateralAmount int64
	TokenAmount      int64
	Side             Side
	Price            *float64 // collateral/token, nil when token amount is zero

	DecodedJSON []byte
	RawLogJSON  []byte
}

// TradeActivity is the per-fill view of a trade used for the
// resolution-independent user statistics (trade counts and max notional).
type TradeActivity struct {
	Maker            string
	Taker            string
	CollateralAmount int64
}

// ResolvedFill is a trade joined against its resolved market, the input row
// of the PnL aggregation.
type ResolvedFill struct {
	Maker            string
	Taker            string
	Side             Side
	TokenID          string
	MarketID         string
	WinningTokenID   string
	CollateralAmount int64
	TokenAmount      int64
	Fee              int64
}
