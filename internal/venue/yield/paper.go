// Package yield provides the paper yield venue: a passive pool that issues
// LP tokens for deposits, accrues yield and reward tokens, and redeems either
// instantly or through a two-phase bridge redemption.
package yield

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"epoch_vault/internal/asset"
	"epoch_vault/internal/domain"
	"epoch_vault/pkg/quant"
	"epoch_vault/pkg/safe"

	"github.com/ethereum/go-ethereum/common"
)

// Mode selects the redemption path.
type Mode string

const (
	// ModeSync always redeems within the withdraw call.
	ModeSync Mode = "sync"
	// ModeAsync always redeems through the bridge.
	ModeAsync Mode = "async"
	// ModeAuto redeems instantly while the pool has liquidity, otherwise through the bridge.
	ModeAuto Mode = "auto"
)

// Config describes a paper yield venue.
type Config struct {
	Name             string
	Address          common.Address // pool custody address
	BridgeAddress    common.Address // escrow for in-flight redemptions
	Token            string         // accounting asset
	LPAsset          string         // position token minted to the fund
	RewardAsset      string         // reward token accrued by the pool
	RewardPrice      int64          // accounting units per reward unit, scaled by quant.PriceScale
	Mode             Mode
	InstantLiquidity int64            // ModeAuto: largest instant redemption
	RedeemFee        int64            // native fee of an async redemption
	RedeemFeeByChain map[uint64]int64 // per-destination override of RedeemFee
}

type pendingRedemption struct {
	amount   int64
	dstChain uint64
	arrived  bool
}

// PaperVault is an in-process yield venue settling against an asset.Ledger.
// It serves a single fund.
type PaperVault struct {
	mu      sync.Mutex
	cfg     Config
	ledger  *asset.Ledger
	fund    common.Address
	pending *pendingRedemption
	rewards int64 // unharvested reward tokens owed to the fund
	logger  *slog.Logger
}

// NewPaperVault creates a venue serving fund.
func NewPaperVault(cfg Config, ledger *asset.Ledger, fund common.Address) *PaperVault {
	if cfg.Name == "" {
		cfg.Name = "paper-yield"
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeSync
	}
	return &PaperVault{
		cfg:    cfg,
		ledger: ledger,
		fund:   fund,
		logger: slog.Default().With("module", "paper_yield"),
	}
}

var _ domain.YieldAdapter = (*PaperVault)(nil)

func (v *PaperVault) Name() string          { return v.cfg.Name }
func (v *PaperVault) Configured() bool      { return true }
func (v *PaperVault) PositionAsset() string { return v.cfg.LPAsset }

// PositionValue is the fund's pro-rata claim on the pool.
func (v *PaperVault) PositionValue(_ context.Context) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.positionValue(), nil
}

// Must be called with lock held.
func (v *PaperVault) positionValue() int64 {
	lp := v.ledger.BalanceOf(v.cfg.LPAsset, v.fund)
	totalLP := v.ledger.Supply(v.cfg.LPAsset)
	if lp == 0 || totalLP == 0 {
		return 0
	}
	return safe.MulDiv(v.ledger.BalanceOf(v.cfg.Token, v.cfg.Address), lp, totalLP)
}

// Deposit pulls amount from the fund and mints LP tokens at the pool rate.
func (v *PaperVault) Deposit(_ context.Context, amount int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.deposit(amount)
}

// Must be called with lock held.
func (v *PaperVault) deposit(amount int64) error {
	if amount <= 0 {
		return nil
	}
	poolBalance := v.ledger.BalanceOf(v.cfg.Token, v.cfg.Address)
	totalLP := v.ledger.Supply(v.cfg.LPAsset)

	minted := amount
	if totalLP > 0 && poolBalance > 0 {
		minted = safe.MulDiv(amount, totalLP, poolBalance)
	}

	if err := v.ledger.Transfer(v.cfg.Token, v.fund, v.cfg.Address, amount); err != nil {
		return fmt.Errorf("yield deposit: %w", err)
	}
	v.ledger.Mint(v.cfg.LPAsset, v.fund, minted)
	return nil
}

// Harvest swaps accrued reward tokens into the accounting asset.
func (v *PaperVault) Harvest(_ context.Context, autocompound bool) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.rewards == 0 {
		return 0, nil
	}
	proceeds := safe.MulDiv(v.rewards, v.cfg.RewardPrice, quant.PriceScale)
	if err := v.ledger.Burn(v.cfg.RewardAsset, v.cfg.Address, v.rewards); err != nil {
		return 0, fmt.Errorf("harvest: %w", err)
	}
	v.rewards = 0
	v.ledger.Mint(v.cfg.Token, v.fund, proceeds)

	if autocompound {
		if err := v.deposit(proceeds); err != nil {
			return 0, err
		}
	}
	v.logger.Debug("Rewards harvested", slog.Int64("proceeds", proceeds), slog.Bool("autocompound", autocompound))
	return proceeds, nil
}

// QuoteWithdraw decides the redemption path for the whole position.
func (v *PaperVault) QuoteWithdraw(_ context.Context, settlementParam uint64) (domain.WithdrawQuote, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.quote(settlementParam)
}

// quote rejects an async redemption toward a destination the bridge has no
// path to: zero, or missing from RedeemFeeByChain when that table is set.
// Must be called with lock held.
func (v *PaperVault) quote(settlementParam uint64) (domain.WithdrawQuote, error) {
	async := false
	switch v.cfg.Mode {
	case ModeAsync:
		async = true
	case ModeAuto:
		async = v.positionValue() > v.cfg.InstantLiquidity
	}
	if !async {
		return domain.WithdrawQuote{}, nil
	}
	if settlementParam == 0 {
		return domain.WithdrawQuote{}, fmt.Errorf("yield quote: destination required: %w", domain.ErrUnknownDestination)
	}
	fee := v.cfg.RedeemFee
	if len(v.cfg.RedeemFeeByChain) > 0 {
		f, ok := v.cfg.RedeemFeeByChain[settlementParam]
		if !ok {
			return domain.WithdrawQuote{}, fmt.Errorf("yield quote: chain %d: %w", settlementParam, domain.ErrUnknownDestination)
		}
		fee = f
	}
	return domain.WithdrawQuote{Async: true, NativeFee: fee}, nil
}

// Withdraw redeems the fund's whole position. The async path moves the
// funds to the bridge escrow; they reach the fund when Settle is called.
func (v *PaperVault) Withdraw(_ context.Context, req domain.WithdrawRequest) (domain.WithdrawResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pending != nil {
		return domain.WithdrawResult{}, fmt.Errorf("yield withdraw: redemption already in flight")
	}
	q, err := v.quote(req.SettlementParam)
	if err != nil {
		return domain.WithdrawResult{}, err
	}
	if req.NativeFee != q.NativeFee {
		return domain.WithdrawResult{}, fmt.Errorf("yield withdraw: native fee %d, want %d: %w", req.NativeFee, q.NativeFee, domain.ErrWrongValue)
	}

	amount := v.positionValue()
	lp := v.ledger.BalanceOf(v.cfg.LPAsset, v.fund)
	if lp == 0 {
		return domain.WithdrawResult{Settled: true}, nil
	}

	if q.Async && req.NativeFee > 0 {
		if err := v.ledger.Transfer(asset.Native, v.fund, v.cfg.BridgeAddress, req.NativeFee); err != nil {
			return domain.WithdrawResult{}, fmt.Errorf("yield withdraw: bridge fee: %w", err)
		}
	}
	if err := v.ledger.Burn(v.cfg.LPAsset, v.fund, lp); err != nil {
		return domain.WithdrawResult{}, fmt.Errorf("yield withdraw: %w", err)
	}

	if !q.Async {
		if err := v.ledger.Transfer(v.cfg.Token, v.cfg.Address, v.fund, amount); err != nil {
			return domain.WithdrawResult{}, fmt.Errorf("yield withdraw: %w", err)
		}
		return domain.WithdrawResult{Settled: true, Amount: amount}, nil
	}

	if err := v.ledger.Transfer(v.cfg.Token, v.cfg.Address, v.cfg.BridgeAddress, amount); err != nil {
		return domain.WithdrawResult{}, fmt.Errorf("yield withdraw: %w", err)
	}
	v.pending = &pendingRedemption{amount: amount, dstChain: req.SettlementParam}
	v.logger.Info("Async redemption requested",
		slog.Int64("amount", amount),
		slog.Uint64("dst_chain", req.SettlementParam),
	)
	return domain.WithdrawResult{Settled: false, Amount: amount}, nil
}

// Settle delivers the in-flight redemption to the fund. It is driven by the
// bridge, independently of any fund call.
func (v *PaperVault) Settle(_ context.Context) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pending == nil || v.pending.arrived {
		return 0, fmt.Errorf("settle: no redemption in flight")
	}
	if err := v.ledger.Transfer(v.cfg.Token, v.cfg.BridgeAddress, v.fund, v.pending.amount); err != nil {
		return 0, fmt.Errorf("settle: %w", err)
	}
	v.pending.arrived = true
	v.logger.Info("Async redemption delivered",
		slog.Int64("amount", v.pending.amount),
		slog.Uint64("dst_chain", v.pending.dstChain),
	)
	return v.pending.amount, nil
}

// ConfirmRedemption closes an arrived redemption.
func (v *PaperVault) ConfirmRedemption(_ context.Context) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pending == nil {
		return true, nil
	}
	if !v.pending.arrived {
		return false, nil
	}
	v.pending = nil
	return true, nil
}

// Pending returns the in-flight redemption amount, zero if none.
func (v *PaperVault) Pending() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.pending == nil || v.pending.arrived {
		return 0
	}
	return v.pending.amount
}

// Accrue simulates pool yield: amount of accounting asset enters the pool.
func (v *PaperVault) Accrue(amount int64) {
	v.ledger.Mint(v.cfg.Token, v.cfg.Address, amount)
}

// AccrueRewards simulates reward emission to the fund's position.
func (v *PaperVault) AccrueRewards(amount int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ledger.Mint(v.cfg.RewardAsset, v.cfg.Address, amount)
	v.rewards = safe.SafeAdd(v.rewards, amount)
}

var _ domain.Checkpointer = (*PaperVault)(nil)

// Checkpoint captures the venue's own bookkeeping. Token balances live in
// the ledger and are checkpointed there.
func (v *PaperVault) Checkpoint() func() {
	v.mu.Lock()
	rewards := v.rewards
	var pending *pendingRedemption
	if v.pending != nil {
		p := *v.pending
		pending = &p
	}
	v.mu.Unlock()

	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.rewards = rewards
		v.pending = pending
	}
}

// State is the venue bookkeeping kept outside the ledger.
type State struct {
	Rewards         int64  `json:"rewards"`
	PendingAmount   int64  `json:"pending_amount,omitempty"`
	PendingDstChain uint64 `json:"pending_dst_chain,omitempty"`
	PendingArrived  bool   `json:"pending_arrived,omitempty"`
	HasPending      bool   `json:"has_pending,omitempty"`
}

// Export returns the venue bookkeeping for persistence.
func (v *PaperVault) Export() State {
	v.mu.Lock()
	defer v.mu.Unlock()

	s := State{Rewards: v.rewards}
	if v.pending != nil {
		s.HasPending = true
		s.PendingAmount = v.pending.amount
		s.PendingDstChain = v.pending.dstChain
		s.PendingArrived = v.pending.arrived
	}
	return s
}

// Import restores bookkeeping produced by Export.
func (v *PaperVault) Import(s State) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.rewards = s.Rewards
	v.pending = nil
	if s.HasPending {
		v.pending = &pendingRedemption{
			amount:   s.PendingAmount,
			dstChain: s.PendingDstChain,
			arrived:  s.PendingArrived,
		}
	}
}
