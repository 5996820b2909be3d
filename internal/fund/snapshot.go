package fund

import (
	"context"
	"fmt"
	"log/slog"

	"epoch_vault/internal/domain"
	"epoch_vault/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
)

// Snapshot captures the persisted state of the fund.
func (f *Fund) Snapshot(ctx context.Context) (domain.FundSnapshot, error) {
	total, err := f.TotalBalance(ctx)
	if err != nil {
		return domain.FundSnapshot{}, err
	}
	pps, err := f.PricePerShare(ctx)
	if err != nil {
		return domain.FundSnapshot{}, err
	}

	holders := make(map[string]int64, len(f.shares.Holders()))
	for h, bal := range f.shares.Holders() {
		holders[h.Hex()] = bal
	}
	snap := domain.FundSnapshot{
		SchemaVersion:     domain.SnapshotSchemaVersion,
		Config:            f.cfg,
		State:             f.state,
		Cached:            f.cached,
		Holders:           holders,
		TotalSupply:       f.shares.TotalSupply(),
		TradingAllocation: f.tradingAllocation,
		PendingRedemption: f.pendingRedemption,
		EpochCount:        f.epochCount,
		YieldAdapter:      f.yield.Name(),
		TradingAdapter:    f.trading.Name(),
		TotalBalance:      total,
		PricePerShare:     pps,
		UpdatedAt:         f.now(),
	}
	if f.current != nil {
		cur := *f.current
		snap.CurrentEpoch = &cur
	}
	return snap, nil
}

// Restore rebuilds a fund from a snapshot. Adapters are not part of the
// snapshot and must be supplied as options; a name mismatch is logged.
func Restore(snap domain.FundSnapshot, assets domain.AssetLedger, opts ...Option) (*Fund, error) {
	if snap.SchemaVersion != domain.SnapshotSchemaVersion {
		return nil, fmt.Errorf("restore: schema version %d, want %d", snap.SchemaVersion, domain.SnapshotSchemaVersion)
	}
	// Epoch transitions write to the open report.
	if snap.State.IsRunning() && snap.CurrentEpoch == nil {
		return nil, fmt.Errorf("restore: state %s without an open epoch report", snap.State)
	}
	f, err := New(snap.Config, assets, opts...)
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}

	holders := make(map[common.Address]int64, len(snap.Holders))
	for h, bal := range snap.Holders {
		if !common.IsHexAddress(h) {
			return nil, fmt.Errorf("restore: bad holder address %q", h)
		}
		holders[common.HexToAddress(h)] = bal
	}
	shares, err := ledger.Restore(holders, snap.TotalSupply)
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}

	f.shares = shares
	f.state = snap.State
	f.cached = snap.Cached
	f.tradingAllocation = snap.TradingAllocation
	f.pendingRedemption = snap.PendingRedemption
	f.epochCount = snap.EpochCount
	if snap.CurrentEpoch != nil {
		cur := *snap.CurrentEpoch
		f.current = &cur
	}

	if snap.YieldAdapter != f.yield.Name() || snap.TradingAdapter != f.trading.Name() {
		f.logger.Warn("Restored with different adapters",
			slog.String("yield_was", snap.YieldAdapter),
			slog.String("yield_now", f.yield.Name()),
			slog.String("trading_was", snap.TradingAdapter),
			slog.String("trading_now", f.trading.Name()),
		)
	}
	return f, nil
}
