package fund

import (
	"fmt"
	"log/slog"

	"epoch_vault/internal/domain"
	"epoch_vault/pkg/quant"
	"epoch_vault/pkg/safe"
)

// Fees is the fee settlement of one epoch.
type Fees struct {
	GrossDelta  int64
	Management  int64
	Performance int64
	Total       int64
}

// computeFees charges the management fee on the NAV frozen at start and the
// performance fee on profit only. The total never exceeds the live NAV.
func computeFees(cfg domain.FundConfig, cachedTotal, liveTotal int64) Fees {
	fees := Fees{GrossDelta: safe.SafeSub(liveTotal, cachedTotal)}
	fees.Management = quant.BpsOf(cachedTotal, cfg.ManagementFeeBps)
	if fees.GrossDelta > 0 {
		fees.Performance = quant.BpsOf(fees.GrossDelta, cfg.PerformanceFeeBps)
	}
	fees.Total = min(safe.SafeAdd(fees.Management, fees.Performance), liveTotal)
	if fees.Total < 0 {
		fees.Total = 0
	}
	return fees
}

// settleFees pays fees to the fee recipient and returns the shares minted.
//
// In share mode the recipient gets m new shares such that
// m / (S + m) == fee / total, i.e. after dilution the recipient's claim is
// worth exactly the fee at the pre-fee NAV.
func (f *Fund) settleFees(fees Fees, total int64) (int64, error) {
	if fees.Total == 0 {
		return 0, nil
	}
	switch f.cfg.FeeMode {
	case domain.FeeModeAsset:
		if err := f.assets.Transfer(f.cfg.Token, f.cfg.Address, f.cfg.FeeRecipient, fees.Total); err != nil {
			return 0, fmt.Errorf("fee transfer: %w", err)
		}
		return 0, nil
	default:
		supply := f.shares.TotalSupply()
		rest := total - fees.Total
		if supply == 0 || rest <= 0 {
			f.logger.Warn("Fee shares skipped",
				slog.Int64("fee", fees.Total),
				slog.Int64("supply", supply),
				slog.Int64("total_balance", total),
			)
			return 0, nil
		}
		minted := safe.MulDiv(fees.Total, supply, rest)
		f.shares.Mint(f.cfg.FeeRecipient, minted)
		return minted, nil
	}
}
