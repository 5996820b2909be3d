package fund

import (
	"epoch_vault/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

// State returns the current epoch state.
func (f *Fund) State() domain.EpochState { return f.state }

// IsTrading reports whether positions may be opened.
func (f *Fund) IsTrading() bool { return f.state == domain.EpochTrading }

// IsEpochRunning reports whether deposits and withdrawals are closed.
func (f *Fund) IsEpochRunning() bool { return f.state.IsRunning() }

func (f *Fund) BalanceOf(holder common.Address) int64 { return f.shares.BalanceOf(holder) }
func (f *Fund) TotalSupply() int64                     { return f.shares.TotalSupply() }
func (f *Fund) Cap() int64                             { return f.cfg.Cap }
func (f *Fund) ManagementFee() int64                   { return f.cfg.ManagementFeeBps }
func (f *Fund) PerformanceFee() int64                  { return f.cfg.PerformanceFeeBps }
func (f *Fund) Manager() common.Address                { return f.cfg.Manager }
func (f *Fund) Owner() common.Address                  { return f.cfg.Owner }
func (f *Fund) FeeRecipient() common.Address           { return f.cfg.FeeRecipient }
func (f *Fund) Token() string                          { return f.cfg.Token }
func (f *Fund) Address() common.Address                { return f.cfg.Address }
func (f *Fund) Config() domain.FundConfig              { return f.cfg }
func (f *Fund) TradingAllocation() int64               { return f.tradingAllocation }
func (f *Fund) PendingRedemption() int64               { return f.pendingRedemption }
func (f *Fund) YieldAdapter() domain.YieldAdapter      { return f.yield }
func (f *Fund) TradingAdapter() domain.TradingAdapter  { return f.trading }

// Epochs returns the settled epochs, oldest first.
func (f *Fund) Epochs() []domain.EpochReport {
	return append([]domain.EpochReport(nil), f.epochs...)
}

// CurrentEpoch returns the open epoch, if any.
func (f *Fund) CurrentEpoch() (domain.EpochReport, bool) {
	if f.current == nil {
		return domain.EpochReport{}, false
	}
	return *f.current, true
}

// Holders returns a copy of every non-zero share balance.
func (f *Fund) Holders() map[common.Address]int64 { return f.shares.Holders() }

// VerifyInvariants panics if the share ledger is inconsistent.
func (f *Fund) VerifyInvariants() { f.shares.VerifyInvariant() }
