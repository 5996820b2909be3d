package fund

import (
	"context"
	"fmt"

	"epoch_vault/internal/domain"
	"epoch_vault/pkg/quant"
	"epoch_vault/pkg/safe"
)

// LiveNAV values everything the fund controls right now.
func (f *Fund) LiveNAV(ctx context.Context) (domain.NAV, error) {
	pos, err := f.yield.PositionValue(ctx)
	if err != nil {
		return domain.NAV{}, fmt.Errorf("yield position: %w", err)
	}
	nav := domain.NAV{
		Idle:              f.idle(),
		YieldPosition:     pos,
		TradingAllocation: f.tradingAllocation,
	}
	nav.TotalBalance = safe.SafeAdd(safe.SafeAdd(nav.Idle, nav.YieldPosition), nav.TradingAllocation)
	return nav, nil
}

// TotalBalance is the cached NAV during an epoch and the live NAV otherwise.
func (f *Fund) TotalBalance(ctx context.Context) (int64, error) {
	if f.state.IsRunning() {
		return f.cached.TotalBalance, nil
	}
	nav, err := f.LiveNAV(ctx)
	if err != nil {
		return 0, err
	}
	return nav.TotalBalance, nil
}

// PricePerShare follows the same cached/live split as TotalBalance.
// It is scaled by quant.PriceScale.
func (f *Fund) PricePerShare(ctx context.Context) (int64, error) {
	if f.state.IsRunning() {
		return f.cached.PricePerShare, nil
	}
	total, err := f.TotalBalance(ctx)
	if err != nil {
		return 0, err
	}
	return pricePerShare(total, f.shares.TotalSupply()), nil
}

// Cached returns the NAV frozen at the last epoch boundary.
func (f *Fund) Cached() domain.CachedNAV {
	return f.cached
}

func pricePerShare(total, supply int64) int64 {
	if supply == 0 {
		return quant.PriceScale
	}
	return safe.MulDiv(total, quant.PriceScale, supply)
}
