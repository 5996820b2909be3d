// Package fund implements the pooled-capital fund: the deposit gate, the
// epoch state machine, NAV valuation and fee settlement.
//
// A Fund is not safe for concurrent use. It is driven by a single goroutine
// (the engine's sequencer); concurrent readers go through service.FundView.
package fund

import (
	"fmt"
	"log/slog"
	"time"

	"epoch_vault/internal/allowlist"
	"epoch_vault/internal/asset"
	"epoch_vault/internal/domain"
	"epoch_vault/internal/ledger"
	"epoch_vault/internal/venue"

	"github.com/ethereum/go-ethereum/common"
)

// Fund is a single deployed fund instance.
type Fund struct {
	cfg     domain.FundConfig
	assets  domain.AssetLedger
	shares  *ledger.ShareLedger
	allow   domain.AllowList
	yield   domain.YieldAdapter
	trading domain.TradingAdapter

	state             domain.EpochState
	cached            domain.CachedNAV
	tradingAllocation int64
	pendingRedemption int64
	epochCount        uint64
	current           *domain.EpochReport
	epochs            []domain.EpochReport

	allowFor func(signer common.Address) domain.AllowList
	now      func() time.Time
	logger   *slog.Logger

	entered bool
}

// Option configures a Fund.
type Option func(*Fund)

// WithYieldAdapter sets the initial yield venue.
func WithYieldAdapter(a domain.YieldAdapter) Option {
	return func(f *Fund) { f.yield = a }
}

// WithTradingAdapter sets the initial trading venue.
func WithTradingAdapter(a domain.TradingAdapter) Option {
	return func(f *Fund) { f.trading = a }
}

// WithAllowListFactory replaces the signer-to-predicate mapping used by
// construction and SetSigner.
func WithAllowListFactory(fn func(signer common.Address) domain.AllowList) Option {
	return func(f *Fund) { f.allowFor = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *Fund) { f.now = now }
}

// WithEpochHistory seeds the completed-epoch history.
func WithEpochHistory(reports []domain.EpochReport) Option {
	return func(f *Fund) { f.epochs = append([]domain.EpochReport(nil), reports...) }
}

// New creates an idle fund with no holders.
func New(cfg domain.FundConfig, assets domain.AssetLedger, opts ...Option) (*Fund, error) {
	if cfg.FeeMode == "" {
		cfg.FeeMode = domain.FeeModeShares
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f := &Fund{
		cfg:      cfg,
		assets:   assets,
		shares:   ledger.NewShareLedger(),
		yield:    venue.NoOp{},
		trading:  venue.NoOp{},
		allowFor: allowlist.ForSigner,
		now:      time.Now,
		logger:   slog.Default().With("module", "fund"),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.yield == nil {
		f.yield = venue.NoOp{}
	}
	if f.trading == nil {
		f.trading = venue.NoOp{}
	}
	f.allow = f.allowFor(cfg.Signer)
	f.cached = domain.CachedNAV{PricePerShare: pricePerShare(0, 0), AsOf: f.now()}
	return f, nil
}

// call runs fn as one atomic fund call. On error every piece of fund state,
// and the state of any collaborator implementing domain.Checkpointer, is put
// back as it was before the call.
//
// Checkpoints are full copies: each call costs O(holders + ledger balances)
// whether it fails or not. That is fine for the in-process paper world; a
// venue backed by real storage should implement Checkpointer with an undo
// log instead.
func (f *Fund) call(fn func() error) error {
	if f.entered {
		return domain.ErrReentrantCall
	}
	f.entered = true
	defer func() { f.entered = false }()

	saved := f.save()
	var reverts []func()
	for _, c := range []any{f.assets, f.yield, f.trading} {
		if cp, ok := c.(domain.Checkpointer); ok {
			reverts = append(reverts, cp.Checkpoint())
		}
	}

	if err := fn(); err != nil {
		for i := len(reverts) - 1; i >= 0; i-- {
			reverts[i]()
		}
		f.load(saved)
		return err
	}
	return nil
}

type savedState struct {
	cfg               domain.FundConfig
	shares            *ledger.ShareLedger
	allow             domain.AllowList
	yield             domain.YieldAdapter
	trading           domain.TradingAdapter
	state             domain.EpochState
	cached            domain.CachedNAV
	tradingAllocation int64
	pendingRedemption int64
	epochCount        uint64
	current           *domain.EpochReport
	epochs            int
}

func (f *Fund) save() savedState {
	s := savedState{
		cfg:               f.cfg,
		shares:            f.shares.Clone(),
		allow:             f.allow,
		yield:             f.yield,
		trading:           f.trading,
		state:             f.state,
		cached:            f.cached,
		tradingAllocation: f.tradingAllocation,
		pendingRedemption: f.pendingRedemption,
		epochCount:        f.epochCount,
		epochs:            len(f.epochs),
	}
	if f.current != nil {
		cur := *f.current
		s.current = &cur
	}
	return s
}

func (f *Fund) load(s savedState) {
	f.cfg = s.cfg
	f.shares = s.shares
	f.allow = s.allow
	f.yield = s.yield
	f.trading = s.trading
	f.state = s.state
	f.cached = s.cached
	f.tradingAllocation = s.tradingAllocation
	f.pendingRedemption = s.pendingRedemption
	f.epochCount = s.epochCount
	f.current = s.current
	f.epochs = f.epochs[:s.epochs]
}

// requireOperator admits the manager and the owner.
func (f *Fund) requireOperator(caller common.Address) error {
	if caller != f.cfg.Manager && caller != f.cfg.Owner {
		return domain.ErrUnauthorized
	}
	return nil
}

func (f *Fund) requireOwner(caller common.Address) error {
	if caller != f.cfg.Owner {
		return domain.ErrNotOwner
	}
	return nil
}

// payNative moves the native fee attached to a call into the fund.
func (f *Fund) payNative(caller common.Address, amount int64) error {
	if amount == 0 {
		return nil
	}
	if err := f.assets.Transfer(asset.Native, caller, f.cfg.Address, amount); err != nil {
		return fmt.Errorf("native fee: %w", err)
	}
	return nil
}

func (f *Fund) idle() int64 {
	return f.assets.BalanceOf(f.cfg.Token, f.cfg.Address)
}
