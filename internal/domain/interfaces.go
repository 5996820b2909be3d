package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// AssetLedger is the token system the fund settles in. The fund's idle
// balance is BalanceOf(token, fund address).
type AssetLedger interface {
	BalanceOf(asset string, holder common.Address) int64
	Transfer(asset string, from, to common.Address, amount int64) error
}

// AllowList decides whether a caller may deposit given its proof.
type AllowList interface {
	Allow(caller common.Address, proof []byte) bool
}

// WithdrawQuote tells the fund which redemption path the venue will take.
type WithdrawQuote struct {
	Async     bool  // settlement arrives in a later, independent transfer
	NativeFee int64 // native-currency fee the async path requires
}

// WithdrawRequest asks the yield venue to redeem the whole position.
type WithdrawRequest struct {
	SettlementParam uint64 // destination chain id for async settlement
	NativeFee       int64
}

// WithdrawResult reports what a withdrawal did.
type WithdrawResult struct {
	Settled bool  // funds are already back in the fund's idle balance
	Amount  int64 // amount returned (Settled) or requested (async)
}

// YieldAdapter is the passive yield venue.
type YieldAdapter interface {
	Name() string
	Configured() bool
	// PositionAsset is the token representing the fund's venue position.
	PositionAsset() string
	PositionValue(ctx context.Context) (int64, error)
	// Deposit moves amount from the fund's idle balance into the venue.
	Deposit(ctx context.Context, amount int64) error
	// Harvest collects rewards as accounting asset, redeploying them when autocompound is set.
	Harvest(ctx context.Context, autocompound bool) (int64, error)
	QuoteWithdraw(ctx context.Context, settlementParam uint64) (WithdrawQuote, error)
	Withdraw(ctx context.Context, req WithdrawRequest) (WithdrawResult, error)
	// ConfirmRedemption reports whether the pending async redemption has
	// landed in the fund's idle balance and, if so, closes it.
	ConfirmRedemption(ctx context.Context) (bool, error)
}

// PositionRequest opens or closes a position at the trading venue.
type PositionRequest struct {
	Market    string
	Amount    int64 // collateral, ignored on close
	IsLong    bool
	NativeFee int64
}

// TradingAdapter is the discretionary trading venue.
type TradingAdapter interface {
	Name() string
	Configured() bool
	KeeperFee() int64
	MinPositionAmount() int64
	// Allocate moves amount from the fund's idle balance to the venue.
	Allocate(ctx context.Context, amount int64) error
	OpenPosition(ctx context.Context, req PositionRequest) error
	ClosePosition(ctx context.Context, req PositionRequest) error
	OpenPositions(ctx context.Context) (int, error)
	// ReturnFunds sends all venue capital back to the fund and reports the amount.
	ReturnFunds(ctx context.Context) (int64, error)
}

// Checkpointer is implemented by collaborators whose state can be rolled
// back when a fund call fails part way. The returned function restores the
// state captured at the time of the call.
type Checkpointer interface {
	Checkpoint() (revert func())
}
