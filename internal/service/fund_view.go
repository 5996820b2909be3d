package service

import (
	"sort"
	"sync"

	"epoch_vault/internal/domain"
	"epoch_vault/pkg/quant"
	"epoch_vault/pkg/safe"

	"github.com/shopspring/decimal"
)

// Status is the rendered fund state served to readers.
type Status struct {
	Seq               uint64              `json:"seq"`
	State             string              `json:"state"`
	IsTrading         bool                `json:"is_trading"`
	IsEpochRunning    bool                `json:"is_epoch_running"`
	Token             string              `json:"token"`
	TotalBalance      decimal.Decimal     `json:"total_balance"`
	TotalSupply       decimal.Decimal     `json:"total_supply"`
	PricePerShare     decimal.Decimal     `json:"price_per_share"`
	CachedBalance     decimal.Decimal     `json:"cached_total_balance"`
	Cap               decimal.Decimal     `json:"cap"`
	MinDeposit        decimal.Decimal     `json:"min_deposit"`
	MaxDeposit        decimal.Decimal     `json:"max_deposit"`
	ManagementFee     string              `json:"management_fee"`
	PerformanceFee    string              `json:"performance_fee"`
	TradingSkim       string              `json:"trading_skim"`
	FeeMode           domain.FeeMode      `json:"fee_mode"`
	Manager           string              `json:"manager"`
	Owner             string              `json:"owner"`
	FeeRecipient      string              `json:"fee_recipient"`
	YieldAdapter      string              `json:"yield_adapter"`
	TradingAdapter    string              `json:"trading_adapter"`
	TradingAllocation decimal.Decimal     `json:"trading_allocation"`
	PendingRedemption decimal.Decimal     `json:"pending_redemption"`
	EpochCount        uint64              `json:"epoch_count"`
	CurrentEpoch      *domain.EpochReport `json:"current_epoch,omitempty"`
}

// Holder is one share position valued at the current price per share.
type Holder struct {
	Address string          `json:"address"`
	Shares  decimal.Decimal `json:"shares"`
	Value   decimal.Decimal `json:"value"`
}

// FundView is the read model of the fund. The sequencer publishes every
// applied snapshot into it; HTTP handlers and the keeper read from it.
type FundView struct {
	mu   sync.RWMutex
	snap *domain.FundSnapshot
}

// NewFundView creates an empty view.
func NewFundView() *FundView {
	return &FundView{}
}

// Update replaces the view with snap. Older sequence numbers are ignored.
func (v *FundView) Update(snap domain.FundSnapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.snap != nil && snap.Seq < v.snap.Seq {
		return
	}
	v.snap = &snap
}

// Ready reports whether a snapshot has been published.
func (v *FundView) Ready() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snap != nil
}

// State returns the epoch state (Idle before the first update).
func (v *FundView) State() domain.EpochState {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.snap == nil {
		return domain.EpochIdle
	}
	return v.snap.State
}

// Snapshot returns a copy of the latest snapshot.
func (v *FundView) Snapshot() (domain.FundSnapshot, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.snap == nil {
		return domain.FundSnapshot{}, false
	}
	return *v.snap, true
}

// Status renders the latest snapshot in whole asset units.
func (v *FundView) Status() (Status, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.snap == nil {
		return Status{}, false
	}
	s := v.snap
	c := s.Config
	units := func(n int64) decimal.Decimal { return decimal.New(n, -c.Decimals) }

	st := Status{
		Seq:               s.Seq,
		State:             s.State.String(),
		IsTrading:         s.State == domain.EpochTrading,
		IsEpochRunning:    s.State.IsRunning(),
		Token:             c.Token,
		TotalBalance:      units(s.TotalBalance),
		TotalSupply:       units(s.TotalSupply),
		PricePerShare:     decimal.NewFromInt(s.PricePerShare).Div(decimal.NewFromInt(quant.PriceScale)),
		CachedBalance:     units(s.Cached.TotalBalance),
		Cap:               units(c.Cap),
		MinDeposit:        units(c.MinDeposit),
		MaxDeposit:        units(c.MaxDeposit),
		ManagementFee:     quant.FormatBps(c.ManagementFeeBps),
		PerformanceFee:    quant.FormatBps(c.PerformanceFeeBps),
		TradingSkim:       quant.FormatBps(c.TradingSkimBps),
		FeeMode:           c.FeeMode,
		Manager:           c.Manager.Hex(),
		Owner:             c.Owner.Hex(),
		FeeRecipient:      c.FeeRecipient.Hex(),
		YieldAdapter:      s.YieldAdapter,
		TradingAdapter:    s.TradingAdapter,
		TradingAllocation: units(s.TradingAllocation),
		PendingRedemption: units(s.PendingRedemption),
		EpochCount:        s.EpochCount,
	}
	if s.CurrentEpoch != nil {
		cur := *s.CurrentEpoch
		st.CurrentEpoch = &cur
	}
	return st, true
}

// Holders returns every share holder sorted by descending balance.
func (v *FundView) Holders() []Holder {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.snap == nil {
		return nil
	}
	s := v.snap
	dec := s.Config.Decimals

	result := make([]Holder, 0, len(s.Holders))
	for addr, shares := range s.Holders {
		value := safe.MulDiv(shares, s.PricePerShare, quant.PriceScale)
		result = append(result, Holder{
			Address: addr,
			Shares:  decimal.New(shares, -dec),
			Value:   decimal.New(value, -dec),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if c := result[i].Shares.Cmp(result[j].Shares); c != 0 {
			return c > 0
		}
		return result[i].Address < result[j].Address
	})
	return result
}
