package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"epoch_vault/internal/asset"
	"epoch_vault/internal/engine"
	"epoch_vault/internal/event"
	"epoch_vault/internal/infra"
	"epoch_vault/internal/venue/trading"
	"epoch_vault/internal/venue/yield"
)

// World is the paper environment the fund runs against: the token ledger
// and the paper venues. Either venue may be nil.
type World struct {
	Ledger  *asset.Ledger
	Vault   *yield.PaperVault
	Desk    *trading.PaperDesk
	metrics *infra.Metrics
	logger  *slog.Logger
}

var _ engine.World = (*World)(nil)

// NewWorld wires the paper environment.
func NewWorld(ledger *asset.Ledger, vault *yield.PaperVault, desk *trading.PaperDesk, metrics *infra.Metrics) *World {
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &World{
		Ledger:  ledger,
		Vault:   vault,
		Desk:    desk,
		metrics: metrics,
		logger:  slog.Default().With(slog.String("module", "world")),
	}
}

// Settle delivers the in-flight yield redemption to the fund.
func (w *World) Settle(ctx context.Context, ev *event.RedeemSettledEvent) (int64, error) {
	if w.Vault == nil {
		return 0, fmt.Errorf("redeem settled: no yield venue")
	}
	amount, err := w.Vault.Settle(ctx)
	if err != nil {
		return 0, err
	}
	if ev.Amount != 0 && ev.Amount != amount {
		w.logger.Warn("Bridge reported a different amount",
			slog.String("tx_id", ev.TxID),
			slog.Int64("reported", ev.Amount),
			slog.Int64("delivered", amount),
		)
	}
	w.metrics.RecordSettlement()
	return amount, nil
}

// Simulate applies a paper-market event.
func (w *World) Simulate(_ context.Context, ev *event.SimulationEvent) error {
	switch ev.Kind {
	case event.TypeSimMint:
		if ev.Asset == "" || ev.Amount <= 0 {
			return fmt.Errorf("sim mint: asset and positive amount required")
		}
		w.Ledger.Mint(ev.Asset, ev.Holder, ev.Amount)
	case event.TypeSimAccrue:
		if w.Vault == nil {
			return fmt.Errorf("sim accrue: no yield venue")
		}
		if ev.Amount <= 0 {
			return fmt.Errorf("sim accrue: positive amount required")
		}
		w.Vault.Accrue(ev.Amount)
	case event.TypeSimAccrueRewards:
		if w.Vault == nil {
			return fmt.Errorf("sim rewards: no yield venue")
		}
		if ev.Amount <= 0 {
			return fmt.Errorf("sim rewards: positive amount required")
		}
		w.Vault.AccrueRewards(ev.Amount)
	case event.TypeSimSetPnL:
		if w.Desk == nil {
			return fmt.Errorf("sim pnl: no trading venue")
		}
		return w.Desk.SetPnL(ev.Market, ev.IsLong, ev.Amount)
	default:
		return fmt.Errorf("unknown simulation event %q", ev.Kind)
	}
	return nil
}

type worldState struct {
	Balances  []asset.Balance    `json:"balances"`
	Yield     *yield.State       `json:"yield,omitempty"`
	Positions []trading.Position `json:"positions,omitempty"`
}

// Export serializes the ledger and venue bookkeeping.
func (w *World) Export() ([]byte, error) {
	st := worldState{Balances: w.Ledger.Snapshot()}
	if w.Vault != nil {
		y := w.Vault.Export()
		st.Yield = &y
	}
	if w.Desk != nil {
		st.Positions = w.Desk.Positions()
	}
	return json.Marshal(st)
}

// Import restores state produced by Export.
func (w *World) Import(data []byte) error {
	var st worldState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("import world: %w", err)
	}
	if err := w.Ledger.Restore(st.Balances); err != nil {
		return err
	}
	if w.Vault != nil && st.Yield != nil {
		w.Vault.Import(*st.Yield)
	}
	if w.Desk != nil {
		w.Desk.RestorePositions(st.Positions)
	}
	return nil
}
