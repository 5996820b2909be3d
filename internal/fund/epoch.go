package fund

import (
	"context"
	"fmt"
	"log/slog"

	"epoch_vault/internal/domain"
	"epoch_vault/internal/venue"
	"epoch_vault/pkg/quant"
	"epoch_vault/pkg/safe"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Start freezes the live NAV, skims the trading allocation and deploys the
// rest of the idle balance to the yield venue.
func (f *Fund) Start(ctx context.Context, caller common.Address) error {
	err := f.call(func() error {
		if err := f.requireOperator(caller); err != nil {
			return err
		}
		if f.state != domain.EpochIdle {
			return domain.ErrAlreadyStarted
		}
		if !venue.IsConfigured(f.yield) {
			return domain.ErrNoYieldManager
		}

		nav, err := f.LiveNAV(ctx)
		if err != nil {
			return err
		}
		now := f.now()
		f.cached = domain.CachedNAV{
			TotalBalance:  nav.TotalBalance,
			PricePerShare: pricePerShare(nav.TotalBalance, f.shares.TotalSupply()),
			AsOf:          now,
		}

		var skim int64
		if venue.IsConfigured(f.trading) {
			skim = quant.BpsOf(nav.Idle, f.cfg.TradingSkimBps)
		}
		if skim > 0 {
			if err := f.trading.Allocate(ctx, skim); err != nil {
				return fmt.Errorf("trading allocate: %w", err)
			}
			f.tradingAllocation = skim
		}

		deployed := safe.SafeSub(nav.Idle, skim)
		if deployed > 0 {
			if err := f.yield.Deposit(ctx, deployed); err != nil {
				return fmt.Errorf("yield deposit: %w", err)
			}
		}

		f.epochCount++
		f.current = &domain.EpochReport{
			ID:                 uuid.NewString(),
			Number:             f.epochCount,
			StartedAt:          now,
			StartTotalBalance:  f.cached.TotalBalance,
			StartPricePerShare: f.cached.PricePerShare,
			TradingAllocated:   skim,
			YieldDeposited:     deployed,
		}
		if skim > 0 {
			f.state = domain.EpochTrading
		} else {
			f.state = domain.EpochReadyToStop
		}
		return nil
	})
	if err != nil {
		return err
	}

	f.logger.Info("Epoch started",
		slog.Uint64("epoch", f.current.Number),
		slog.String("state", f.state.String()),
		slog.Int64("total_balance", f.cached.TotalBalance),
		slog.Int64("trading_allocation", f.current.TradingAllocated),
		slog.Int64("yield_deposit", f.current.YieldDeposited),
	)
	return nil
}

// OpenPosition opens or adds to a trading venue position. nativeFee must
// equal the venue's keeper fee; it is paid by caller.
func (f *Fund) OpenPosition(ctx context.Context, caller common.Address, market string, amount int64, isLong bool, nativeFee int64) error {
	return f.call(func() error {
		if err := f.checkPositionCall(caller, nativeFee); err != nil {
			return err
		}
		if amount < f.trading.MinPositionAmount() {
			return domain.ErrMinAmountNotMet
		}
		if err := f.payNative(caller, nativeFee); err != nil {
			return err
		}
		return f.trading.OpenPosition(ctx, domain.PositionRequest{
			Market:    market,
			Amount:    amount,
			IsLong:    isLong,
			NativeFee: nativeFee,
		})
	})
}

// ClosePosition closes a trading venue position.
func (f *Fund) ClosePosition(ctx context.Context, caller common.Address, market string, isLong bool, nativeFee int64) error {
	return f.call(func() error {
		if err := f.checkPositionCall(caller, nativeFee); err != nil {
			return err
		}
		if err := f.payNative(caller, nativeFee); err != nil {
			return err
		}
		return f.trading.ClosePosition(ctx, domain.PositionRequest{
			Market:    market,
			IsLong:    isLong,
			NativeFee: nativeFee,
		})
	})
}

func (f *Fund) checkPositionCall(caller common.Address, nativeFee int64) error {
	if err := f.requireOperator(caller); err != nil {
		return err
	}
	if f.state != domain.EpochTrading {
		return domain.ErrNotTradingPeriod
	}
	if !venue.IsConfigured(f.trading) {
		return domain.ErrNoPositionManager
	}
	if nativeFee != f.trading.KeeperFee() {
		return domain.ErrWrongValue
	}
	return nil
}

// ConfirmTradesClosed takes the trading capital back and ends the trading
// period. The venue, not the fund balance, decides whether positions remain.
func (f *Fund) ConfirmTradesClosed(ctx context.Context, caller common.Address) error {
	var returned int64
	err := f.call(func() error {
		if err := f.requireOperator(caller); err != nil {
			return err
		}
		if f.state != domain.EpochTrading {
			return domain.ErrNotTradingPeriod
		}
		open, err := f.trading.OpenPositions(ctx)
		if err != nil {
			return fmt.Errorf("open positions: %w", err)
		}
		if open > 0 {
			return domain.ErrCloseAllPositionsFirst
		}
		returned, err = f.trading.ReturnFunds(ctx)
		if err != nil {
			return fmt.Errorf("return funds: %w", err)
		}
		f.tradingAllocation = 0
		f.current.TradingReturned = returned
		f.state = domain.EpochReadyToStop
		return nil
	})
	if err != nil {
		return err
	}

	f.logger.Info("Trades closed",
		slog.Uint64("epoch", f.current.Number),
		slog.Int64("allocated", f.current.TradingAllocated),
		slog.Int64("returned", returned),
	)
	return nil
}

// Harvest collects yield venue rewards, redeploying them when autocompound
// is set.
func (f *Fund) Harvest(ctx context.Context, caller common.Address, autocompound bool) (int64, error) {
	var proceeds int64
	err := f.call(func() error {
		if err := f.requireOperator(caller); err != nil {
			return err
		}
		var err error
		proceeds, err = f.harvest(ctx, autocompound)
		return err
	})
	if err != nil {
		return 0, err
	}

	f.logger.Info("Harvested",
		slog.Int64("proceeds", proceeds),
		slog.Bool("autocompound", autocompound),
	)
	return proceeds, nil
}

func (f *Fund) harvest(ctx context.Context, autocompound bool) (int64, error) {
	if !venue.IsConfigured(f.yield) {
		return 0, domain.ErrNoYieldManager
	}
	pos, err := f.yield.PositionValue(ctx)
	if err != nil {
		return 0, fmt.Errorf("yield position: %w", err)
	}
	if pos == 0 {
		return 0, domain.ErrNoFundsInLending
	}
	proceeds, err := f.yield.Harvest(ctx, autocompound)
	if err != nil {
		return 0, fmt.Errorf("harvest: %w", err)
	}
	if f.current != nil {
		f.current.Harvested = safe.SafeAdd(f.current.Harvested, proceeds)
	}
	return proceeds, nil
}

// Stop redeems the whole yield position. A synchronous redemption settles
// the epoch at once; an asynchronous one leaves the fund awaiting
// ConfirmAsyncRedeem with the cached NAV still authoritative.
//
// nativeFee is validated against the venue quote before anything moves:
// a synchronous redemption takes no fee, an asynchronous one exactly the
// quoted fee.
func (f *Fund) Stop(ctx context.Context, caller common.Address, settlementParam uint64, nativeFee int64) error {
	var async bool
	err := f.call(func() error {
		if err := f.requireOperator(caller); err != nil {
			return err
		}
		switch f.state {
		case domain.EpochIdle:
			return domain.ErrAlreadyStopped
		case domain.EpochTrading:
			return domain.ErrConfirmTradingStoppedFirst
		case domain.EpochAwaitingAsyncRedemption:
			return domain.ErrAsyncRedeemPending
		}
		if f.tradingAllocation != 0 {
			return domain.ErrConfirmTradingStoppedFirst
		}

		quote, err := f.yield.QuoteWithdraw(ctx, settlementParam)
		if err != nil {
			return fmt.Errorf("quote withdraw: %w", err)
		}
		if !quote.Async && nativeFee != 0 {
			return domain.ErrRedeemRequiresNoFunds
		}
		if quote.Async && nativeFee != quote.NativeFee {
			return domain.ErrRedeemLocalRequiresFunds
		}

		pos, err := f.yield.PositionValue(ctx)
		if err != nil {
			return fmt.Errorf("yield position: %w", err)
		}
		if pos > 0 {
			if _, err := f.harvest(ctx, false); err != nil {
				return err
			}
		}

		if err := f.payNative(caller, nativeFee); err != nil {
			return err
		}
		res, err := f.yield.Withdraw(ctx, domain.WithdrawRequest{
			SettlementParam: settlementParam,
			NativeFee:       nativeFee,
		})
		if err != nil {
			return fmt.Errorf("yield withdraw: %w", err)
		}
		f.current.StoppedAt = f.now()

		if res.Settled {
			return f.finalize(ctx)
		}
		async = true
		f.pendingRedemption = res.Amount
		f.current.AsyncRedemption = true
		f.state = domain.EpochAwaitingAsyncRedemption
		return nil
	})
	if err != nil {
		return err
	}

	if async {
		f.logger.Info("Epoch stop pending async redemption",
			slog.Int64("pending", f.pendingRedemption),
			slog.Uint64("settlement_param", settlementParam),
		)
	}
	return nil
}

// ConfirmAsyncRedeem settles the epoch once the redemption requested by
// Stop has reached the fund's idle balance.
func (f *Fund) ConfirmAsyncRedeem(ctx context.Context, caller common.Address) error {
	return f.call(func() error {
		if err := f.requireOperator(caller); err != nil {
			return err
		}
		if f.state != domain.EpochAwaitingAsyncRedemption {
			return domain.ErrNoAsyncRedeem
		}
		arrived, err := f.yield.ConfirmRedemption(ctx)
		if err != nil {
			return fmt.Errorf("confirm redemption: %w", err)
		}
		if !arrived {
			return domain.ErrRedemptionInFlight
		}
		f.pendingRedemption = 0
		return f.finalize(ctx)
	})
}

// finalize values the returned capital, settles fees, caches the post-fee
// NAV and closes the epoch.
func (f *Fund) finalize(ctx context.Context) error {
	nav, err := f.LiveNAV(ctx)
	if err != nil {
		return err
	}
	fees := computeFees(f.cfg, f.cached.TotalBalance, nav.TotalBalance)
	feeShares, err := f.settleFees(fees, nav.TotalBalance)
	if err != nil {
		return err
	}

	total := nav.TotalBalance
	if f.cfg.FeeMode == domain.FeeModeAsset {
		total = safe.SafeSub(total, fees.Total)
	}
	now := f.now()
	f.cached = domain.CachedNAV{
		TotalBalance:  total,
		PricePerShare: pricePerShare(total, f.shares.TotalSupply()),
		AsOf:          now,
	}

	r := f.current
	r.SettledAt = now
	r.EndTotalBalance = f.cached.TotalBalance
	r.EndPricePerShare = f.cached.PricePerShare
	r.GrossDelta = fees.GrossDelta
	r.ManagementFee = fees.Management
	r.PerformanceFee = fees.Performance
	r.FeeShares = feeShares
	f.epochs = append(f.epochs, *r)
	f.current = nil
	f.state = domain.EpochIdle

	f.logger.Info("Epoch settled",
		slog.Uint64("epoch", r.Number),
		slog.Int64("gross_delta", r.GrossDelta),
		slog.Int64("management_fee", r.ManagementFee),
		slog.Int64("performance_fee", r.PerformanceFee),
		slog.Int64("fee_shares", r.FeeShares),
		slog.String("price_per_share", quant.FormatPrice(r.EndPricePerShare)),
	)
	return nil
}
