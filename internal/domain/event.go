package domain

// EventKind identifies the type of a raw Morpho Blue market event.
type EventKind string

// Event kind constants, matching the upstream event table names.
const (
	EventSupply             EventKind = "Supply"
	EventBorrow             EventKind = "Borrow"
	EventRepay              EventKind = "Repay"
	EventSupplyCollateral   EventKind = "SupplyCollateral"
	EventWithdrawCollateral EventKind = "WithdrawCollateral"
	EventLiquidate          EventKind = "Liquidate"
)

// RawEvent is one row of the append-only market event log.
// Events are immutable and ordered by (BlockTime, BlockNumber, LogIndex)
// ascending within a market.
type RawEvent struct {
	Kind         EventKind
	MarketID     string // Morpho Blue market id (0x-prefixed hex)
	Borrower     string // borrower address (lowercase 0x hex)
	Assets       float64
	Shares       float64
	RepaidAssets float64 // Liquidate only: debt repaid by the liquidator
	SeizedAssets float64 // Liquidate only: collateral seized
	BlockTime    int64   // Unix timestamp in seconds
	BlockNumber  int64
	LogIndex     int64 // position within the block, preserves table order
}

// BorrowerBalance is the aggregator output: net balances for one
// (market, borrower) pair after folding the event log.
// All balances are clamped to >= 0.
type BorrowerBalance struct {
	MarketID         string
	Borrower         string
	BorrowAssets     float64
	BorrowShares     float64 // share-based view, kept for debugging only
	CollateralAssets float64
	LastActivity     int64 // max BlockTime across the pair's events
}

// PriceQuote is one row of the token price table.
type PriceQuote struct {
	Token      string // token contract address (lowercase 0x hex)
	PriceUSD   float64
	Decimals   int
	ObservedAt int64 // Unix timestamp in seconds
}

// MarketTotals is the authoritative pool-level snapshot from the
// market-state table, in raw loan token units.
type MarketTotals struct {
	MarketID          string
	TotalSupplyAssets float64
	TotalBorrowAssets float64
	BlockTime         int64
}
