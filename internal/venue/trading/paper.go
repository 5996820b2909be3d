// Package trading provides the paper trading desk: the venue the fund skims
// capital to during an epoch. Positions carry collateral only; profit and
// loss are injected with SetPnL and realized on close.
package trading

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"epoch_vault/internal/asset"
	"epoch_vault/internal/domain"
	"epoch_vault/pkg/safe"

	"github.com/ethereum/go-ethereum/common"
)

// Config describes a paper trading desk.
type Config struct {
	Name              string
	Address           common.Address // desk custody address
	Keeper            common.Address // receives keeper fees
	Token             string
	KeeperFee         int64 // native fee per position action
	MinPositionAmount int64
}

// Position is an open position on the desk.
type Position struct {
	Market     string `json:"market"`
	IsLong     bool   `json:"is_long"`
	Collateral int64  `json:"collateral"`
	PnL        int64  `json:"pnl"`
}

type positionKey struct {
	market string
	isLong bool
}

// PaperDesk is an in-process trading venue settling against an asset.Ledger.
type PaperDesk struct {
	mu        sync.Mutex
	cfg       Config
	ledger    *asset.Ledger
	fund      common.Address
	positions map[positionKey]*Position
	logger    *slog.Logger
}

// NewPaperDesk creates a desk serving fund.
func NewPaperDesk(cfg Config, ledger *asset.Ledger, fund common.Address) *PaperDesk {
	if cfg.Name == "" {
		cfg.Name = "paper-desk"
	}
	return &PaperDesk{
		cfg:       cfg,
		ledger:    ledger,
		fund:      fund,
		positions: make(map[positionKey]*Position),
		logger:    slog.Default().With("module", "paper_desk"),
	}
}

var _ domain.TradingAdapter = (*PaperDesk)(nil)

func (d *PaperDesk) Name() string             { return d.cfg.Name }
func (d *PaperDesk) Configured() bool         { return true }
func (d *PaperDesk) KeeperFee() int64         { return d.cfg.KeeperFee }
func (d *PaperDesk) MinPositionAmount() int64 { return d.cfg.MinPositionAmount }

// Allocate pulls amount of capital from the fund.
func (d *PaperDesk) Allocate(_ context.Context, amount int64) error {
	if err := d.ledger.Transfer(d.cfg.Token, d.fund, d.cfg.Address, amount); err != nil {
		return fmt.Errorf("allocate: %w", err)
	}
	return nil
}

func (d *PaperDesk) payKeeper(fee int64) error {
	if fee != d.cfg.KeeperFee {
		return fmt.Errorf("keeper fee %d, want %d: %w", fee, d.cfg.KeeperFee, domain.ErrWrongValue)
	}
	if err := d.ledger.Transfer(asset.Native, d.fund, d.cfg.Keeper, fee); err != nil {
		return fmt.Errorf("keeper fee: %w", err)
	}
	return nil
}

// OpenPosition adds collateral to the position for (market, direction).
func (d *PaperDesk) OpenPosition(_ context.Context, req domain.PositionRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if req.Amount < d.cfg.MinPositionAmount {
		return domain.ErrMinAmountNotMet
	}
	k := positionKey{market: req.Market, isLong: req.IsLong}
	committed := d.committed()
	free := d.ledger.BalanceOf(d.cfg.Token, d.cfg.Address) - committed
	if req.Amount > free {
		return fmt.Errorf("open %s: collateral %d, free %d: %w", req.Market, req.Amount, free, domain.ErrInsufficientFunds)
	}
	if err := d.payKeeper(req.NativeFee); err != nil {
		return err
	}

	p, ok := d.positions[k]
	if !ok {
		p = &Position{Market: req.Market, IsLong: req.IsLong}
		d.positions[k] = p
	}
	p.Collateral = safe.SafeAdd(p.Collateral, req.Amount)
	d.logger.Info("Position opened",
		slog.String("market", req.Market),
		slog.Bool("is_long", req.IsLong),
		slog.Int64("collateral", p.Collateral),
	)
	return nil
}

// ClosePosition realizes the position's PnL and frees its collateral.
func (d *PaperDesk) ClosePosition(_ context.Context, req domain.PositionRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := positionKey{market: req.Market, isLong: req.IsLong}
	p, ok := d.positions[k]
	if !ok {
		return fmt.Errorf("close %s: no open position", req.Market)
	}
	if err := d.payKeeper(req.NativeFee); err != nil {
		return err
	}

	switch {
	case p.PnL > 0:
		d.ledger.Mint(d.cfg.Token, d.cfg.Address, p.PnL)
	case p.PnL < 0:
		loss := min(-p.PnL, p.Collateral)
		if err := d.ledger.Burn(d.cfg.Token, d.cfg.Address, loss); err != nil {
			return fmt.Errorf("close %s: %w", req.Market, err)
		}
	}
	delete(d.positions, k)
	d.logger.Info("Position closed",
		slog.String("market", req.Market),
		slog.Bool("is_long", req.IsLong),
		slog.Int64("pnl", p.PnL),
	)
	return nil
}

// Must be called with lock held.
func (d *PaperDesk) committed() int64 {
	var total int64
	for _, p := range d.positions {
		total = safe.SafeAdd(total, p.Collateral)
	}
	return total
}

// OpenPositions counts positions not yet closed.
func (d *PaperDesk) OpenPositions(_ context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.positions), nil
}

// ReturnFunds sends the desk's whole balance back to the fund.
func (d *PaperDesk) ReturnFunds(_ context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.positions) > 0 {
		return 0, domain.ErrCloseAllPositionsFirst
	}
	amount := d.ledger.BalanceOf(d.cfg.Token, d.cfg.Address)
	if err := d.ledger.Transfer(d.cfg.Token, d.cfg.Address, d.fund, amount); err != nil {
		return 0, fmt.Errorf("return funds: %w", err)
	}
	return amount, nil
}

// SetPnL sets the unrealized PnL of an open position.
func (d *PaperDesk) SetPnL(market string, isLong bool, pnl int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.positions[positionKey{market: market, isLong: isLong}]
	if !ok {
		return fmt.Errorf("set pnl %s: no open position", market)
	}
	p.PnL = pnl
	return nil
}

// Positions lists open positions ordered by market then direction.
func (d *PaperDesk) Positions() []Position {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Position, 0, len(d.positions))
	for _, p := range d.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Market != out[j].Market {
			return out[i].Market < out[j].Market
		}
		return out[i].IsLong && !out[j].IsLong
	})
	return out
}

var _ domain.Checkpointer = (*PaperDesk)(nil)

// Checkpoint captures open positions.
func (d *PaperDesk) Checkpoint() func() {
	d.mu.Lock()
	saved := make(map[positionKey]Position, len(d.positions))
	for k, p := range d.positions {
		saved[k] = *p
	}
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.positions = make(map[positionKey]*Position, len(saved))
		for k, p := range saved {
			p := p
			d.positions[k] = &p
		}
	}
}

// RestorePositions replaces the open positions with positions.
func (d *PaperDesk) RestorePositions(positions []Position) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.positions = make(map[positionKey]*Position, len(positions))
	for _, p := range positions {
		p := p
		d.positions[positionKey{market: p.Market, isLong: p.IsLong}] = &p
	}
}
