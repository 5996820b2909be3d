// Package venue holds the adapter variants shared by both venue kinds.
package venue

import (
	"context"

	"epoch_vault/internal/domain"
)

// NoOp is the unconfigured adapter. It satisfies both venue interfaces and
// reports Configured() == false, so the fund treats the venue as absent.
type NoOp struct{}

var (
	_ domain.YieldAdapter   = NoOp{}
	_ domain.TradingAdapter = NoOp{}
)

func (NoOp) Name() string          { return "noop" }
func (NoOp) Configured() bool      { return false }
func (NoOp) PositionAsset() string { return "" }
func (NoOp) KeeperFee() int64      { return 0 }

func (NoOp) MinPositionAmount() int64 { return 0 }

func (NoOp) PositionValue(context.Context) (int64, error) { return 0, nil }

func (NoOp) Deposit(context.Context, int64) error { return domain.ErrNoYieldManager }

func (NoOp) Harvest(context.Context, bool) (int64, error) { return 0, domain.ErrNoYieldManager }

func (NoOp) QuoteWithdraw(context.Context, uint64) (domain.WithdrawQuote, error) {
	return domain.WithdrawQuote{}, nil
}

func (NoOp) Withdraw(context.Context, domain.WithdrawRequest) (domain.WithdrawResult, error) {
	return domain.WithdrawResult{Settled: true}, nil
}

func (NoOp) ConfirmRedemption(context.Context) (bool, error) { return true, nil }

func (NoOp) Allocate(context.Context, int64) error { return domain.ErrNoPositionManager }

func (NoOp) OpenPosition(context.Context, domain.PositionRequest) error {
	return domain.ErrNoPositionManager
}

func (NoOp) ClosePosition(context.Context, domain.PositionRequest) error {
	return domain.ErrNoPositionManager
}

func (NoOp) OpenPositions(context.Context) (int, error) { return 0, nil }

func (NoOp) ReturnFunds(context.Context) (int64, error) { return 0, nil }

// IsConfigured reports whether an adapter is present and usable.
func IsConfigured(a interface{ Configured() bool }) bool {
	return a != nil && a.Configured()
}
