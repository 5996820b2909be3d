package fund

import (
	"context"
	"fmt"
	"log/slog"

	"epoch_vault/internal/domain"
	"epoch_vault/pkg/safe"

	"github.com/ethereum/go-ethereum/common"
)

// Deposit pulls amount of the accounting asset from caller and mints shares
// at the live price. proof is the allow-list signature, ignored when no
// signer is configured.
func (f *Fund) Deposit(ctx context.Context, caller common.Address, amount int64, proof []byte) (int64, error) {
	var minted int64
	err := f.call(func() error {
		if f.state != domain.EpochIdle {
			return domain.ErrDisabledDuringEpoch
		}
		if amount < f.cfg.MinDeposit || amount > f.cfg.MaxDeposit {
			return domain.ErrOutOfLimits
		}
		if !f.allow.Allow(caller, proof) {
			return domain.ErrNotAllowed
		}

		nav, err := f.LiveNAV(ctx)
		if err != nil {
			return err
		}
		if safe.SafeAdd(nav.TotalBalance, amount) > f.cfg.Cap {
			return domain.ErrCapReached
		}

		supply := f.shares.TotalSupply()
		minted = amount
		if supply > 0 {
			if nav.TotalBalance == 0 {
				return domain.ErrNavDepleted
			}
			minted = safe.MulDiv(amount, supply, nav.TotalBalance)
		}
		if minted == 0 {
			return domain.ErrZeroShares
		}

		if err := f.assets.Transfer(f.cfg.Token, caller, f.cfg.Address, amount); err != nil {
			return fmt.Errorf("deposit transfer: %w", err)
		}
		f.shares.Mint(caller, minted)
		return nil
	})
	if err != nil {
		return 0, err
	}

	f.logger.Info("Deposit",
		slog.String("holder", caller.Hex()),
		slog.Int64("amount", amount),
		slog.Int64("shares", minted),
	)
	return minted, nil
}

// Withdraw burns shares and pays out their pro-rata value of the live NAV.
func (f *Fund) Withdraw(ctx context.Context, caller common.Address, shares int64) (int64, error) {
	var payout int64
	err := f.call(func() error {
		var err error
		payout, err = f.withdraw(ctx, caller, shares)
		return err
	})
	if err != nil {
		return 0, err
	}

	f.logger.Info("Withdraw",
		slog.String("holder", caller.Hex()),
		slog.Int64("shares", shares),
		slog.Int64("payout", payout),
	)
	return payout, nil
}

// WithdrawAll withdraws the caller's whole share balance.
func (f *Fund) WithdrawAll(ctx context.Context, caller common.Address) (int64, error) {
	return f.Withdraw(ctx, caller, f.shares.BalanceOf(caller))
}

func (f *Fund) withdraw(ctx context.Context, caller common.Address, shares int64) (int64, error) {
	if f.state != domain.EpochIdle {
		return 0, domain.ErrDisabledDuringEpoch
	}
	if shares <= 0 {
		return 0, domain.ErrWithdrawIsZero
	}
	if shares > f.shares.BalanceOf(caller) {
		return 0, domain.ErrNotEnoughShares
	}

	nav, err := f.LiveNAV(ctx)
	if err != nil {
		return 0, err
	}
	payout := safe.MulDiv(shares, nav.TotalBalance, f.shares.TotalSupply())
	if payout > nav.Idle {
		return 0, domain.ErrInsufficientLiquidity
	}

	if err := f.shares.Burn(caller, shares); err != nil {
		return 0, err
	}
	if err := f.assets.Transfer(f.cfg.Token, f.cfg.Address, caller, payout); err != nil {
		return 0, fmt.Errorf("withdraw transfer: %w", err)
	}
	return payout, nil
}
