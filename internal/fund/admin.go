package fund

import (
	"context"
	"fmt"
	"log/slog"

	"epoch_vault/internal/domain"
	"epoch_vault/internal/venue"
	"epoch_vault/pkg/quant"

	"github.com/ethereum/go-ethereum/common"
)

// SetCap sets the maximum aggregate NAV deposits may reach.
func (f *Fund) SetCap(caller common.Address, limit int64) error {
	return f.set(caller, "cap", func() error {
		if limit < 0 {
			return domain.ErrInvalidLimits
		}
		f.cfg.Cap = limit
		return nil
	})
}

// SetFees sets the management and performance fee rates.
func (f *Fund) SetFees(caller common.Address, managementBps, performanceBps int64) error {
	return f.set(caller, "fees", func() error {
		if err := domain.ValidateFees(managementBps, performanceBps); err != nil {
			return err
		}
		f.cfg.ManagementFeeBps = managementBps
		f.cfg.PerformanceFeeBps = performanceBps
		return nil
	})
}

// SetDepositLimits sets the per-call deposit bounds.
func (f *Fund) SetDepositLimits(caller common.Address, minAmount, maxAmount int64) error {
	return f.set(caller, "deposit_limits", func() error {
		if minAmount < 0 || minAmount > maxAmount {
			return domain.ErrInvalidLimits
		}
		f.cfg.MinDeposit = minAmount
		f.cfg.MaxDeposit = maxAmount
		return nil
	})
}

// SetTradingSkim sets the share of idle capital allocated to trading at the
// next start.
func (f *Fund) SetTradingSkim(caller common.Address, bps int64) error {
	return f.set(caller, "trading_skim", func() error {
		if bps < 0 || bps > quant.BpsDenominator {
			return domain.ErrInvalidSkim
		}
		f.cfg.TradingSkimBps = bps
		return nil
	})
}

// SetManager hands operational epoch control to manager. The owner keeps
// operator rights.
func (f *Fund) SetManager(caller, manager common.Address) error {
	return f.set(caller, "manager", func() error {
		if manager == (common.Address{}) {
			return domain.ErrAddressZero
		}
		f.cfg.Manager = manager
		return nil
	})
}

// SetFeeRecipient sets who receives fee shares (or fee asset in asset mode).
func (f *Fund) SetFeeRecipient(caller, recipient common.Address) error {
	return f.set(caller, "fee_recipient", func() error {
		if recipient == (common.Address{}) {
			return domain.ErrAddressZero
		}
		f.cfg.FeeRecipient = recipient
		return nil
	})
}

// SetSigner sets the allow-list authority. The zero address opens deposits
// to everyone.
func (f *Fund) SetSigner(caller, signer common.Address) error {
	return f.set(caller, "signer", func() error {
		f.cfg.Signer = signer
		f.allow = f.allowFor(signer)
		return nil
	})
}

// SetYieldAdapter swaps the yield venue. nil installs the no-op venue.
func (f *Fund) SetYieldAdapter(caller common.Address, a domain.YieldAdapter) error {
	return f.set(caller, "yield_adapter", func() error {
		if f.state.IsRunning() {
			return domain.ErrDisabledDuringEpoch
		}
		if a == nil {
			a = venue.NoOp{}
		}
		f.yield = a
		return nil
	})
}

// SetTradingAdapter swaps the trading venue. nil installs the no-op venue.
func (f *Fund) SetTradingAdapter(caller common.Address, a domain.TradingAdapter) error {
	return f.set(caller, "trading_adapter", func() error {
		if f.state.IsRunning() {
			return domain.ErrDisabledDuringEpoch
		}
		if a == nil {
			a = venue.NoOp{}
		}
		f.trading = a
		return nil
	})
}

func (f *Fund) set(caller common.Address, field string, apply func() error) error {
	err := f.call(func() error {
		if err := f.requireOwner(caller); err != nil {
			return err
		}
		return apply()
	})
	if err != nil {
		return err
	}
	f.logger.Info("Config updated", slog.String("field", field))
	return nil
}

// Rescue sweeps the fund's whole balance of a stray asset to the owner.
// The accounting asset and the yield venue position token cannot be swept.
func (f *Fund) Rescue(_ context.Context, caller common.Address, assetID string) (int64, error) {
	var amount int64
	err := f.call(func() error {
		if err := f.requireOwner(caller); err != nil {
			return err
		}
		if assetID == f.cfg.Token {
			return domain.ErrNoRug
		}
		if pa := f.yield.PositionAsset(); pa != "" && assetID == pa {
			return domain.ErrNoRug
		}
		amount = f.assets.BalanceOf(assetID, f.cfg.Address)
		if err := f.assets.Transfer(assetID, f.cfg.Address, caller, amount); err != nil {
			return fmt.Errorf("rescue %s: %w", assetID, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	f.logger.Info("Rescued", slog.String("asset", assetID), slog.Int64("amount", amount))
	return amount, nil
}
