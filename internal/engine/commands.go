package engine

import (
	"context"
	"fmt"

	"epoch_vault/internal/domain"
	"epoch_vault/internal/event"
)

// applyCommand maps a command onto the fund call it names.
func (s *Sequencer) applyCommand(ctx context.Context, c *event.Command) (int64, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	f := s.fund

	switch c.Kind {
	case event.TypeDeposit:
		return f.Deposit(ctx, c.Caller, c.Amount, c.Proof)
	case event.TypeWithdraw:
		return f.Withdraw(ctx, c.Caller, c.Shares)
	case event.TypeWithdrawAll:
		return f.WithdrawAll(ctx, c.Caller)
	case event.TypeStart:
		return 0, f.Start(ctx, c.Caller)
	case event.TypeOpenPosition:
		return 0, f.OpenPosition(ctx, c.Caller, c.Market, c.Amount, c.IsLong, c.NativeFee)
	case event.TypeClosePosition:
		return 0, f.ClosePosition(ctx, c.Caller, c.Market, c.IsLong, c.NativeFee)
	case event.TypeConfirmTradesClosed:
		return 0, f.ConfirmTradesClosed(ctx, c.Caller)
	case event.TypeHarvest:
		return f.Harvest(ctx, c.Caller, c.Autocompound)
	case event.TypeStop:
		return 0, f.Stop(ctx, c.Caller, c.SettlementParam, c.NativeFee)
	case event.TypeConfirmAsyncRedeem:
		return 0, f.ConfirmAsyncRedeem(ctx, c.Caller)
	case event.TypeSetCap:
		return 0, f.SetCap(c.Caller, c.Amount)
	case event.TypeSetFees:
		return 0, f.SetFees(c.Caller, c.ManagementBps, c.PerformanceBps)
	case event.TypeSetDepositLimits:
		return 0, f.SetDepositLimits(c.Caller, c.MinDeposit, c.MaxDeposit)
	case event.TypeSetManager:
		return 0, f.SetManager(c.Caller, c.Target)
	case event.TypeSetFeeRecipient:
		return 0, f.SetFeeRecipient(c.Caller, c.Target)
	case event.TypeSetSigner:
		return 0, f.SetSigner(c.Caller, c.Target)
	case event.TypeSetTradingSkim:
		return 0, f.SetTradingSkim(c.Caller, c.Bps)
	case event.TypeSetYieldAdapter:
		a, ok := s.venues.Yield[c.Adapter]
		if !ok && c.Adapter != "noop" {
			return 0, fmt.Errorf("yield adapter %q: %w", c.Adapter, domain.ErrUnknownVenue)
		}
		return 0, f.SetYieldAdapter(c.Caller, a)
	case event.TypeSetTradingAdapter:
		a, ok := s.venues.Trading[c.Adapter]
		if !ok && c.Adapter != "noop" {
			return 0, fmt.Errorf("trading adapter %q: %w", c.Adapter, domain.ErrUnknownVenue)
		}
		return 0, f.SetTradingAdapter(c.Caller, a)
	case event.TypeRescue:
		return f.Rescue(ctx, c.Caller, c.Asset)
	}
	return 0, domain.ErrUnknownCommand
}
