package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"epoch_vault/internal/api"
	"epoch_vault/internal/asset"
	"epoch_vault/internal/domain"
	"epoch_vault/internal/engine"
	"epoch_vault/internal/event"
	"epoch_vault/internal/fund"
	"epoch_vault/internal/infra"
	"epoch_vault/internal/infra/bridge"
	"epoch_vault/internal/infra/storage"
	"epoch_vault/internal/keeper"
	"epoch_vault/internal/service"
	"epoch_vault/internal/venue/trading"
	"epoch_vault/internal/venue/yield"
	"epoch_vault/pkg/quant"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

const pruneInterval = 10 * time.Minute

// Bootstrap orchestrates the daemon startup sequence:
// config -> logger -> storage -> world -> fund -> sequencer -> read model.
type Bootstrap struct {
	ConfigPath string

	Config    *infra.Config
	Storage   *storage.Storage
	World     *World
	Fund      *fund.Fund
	Sequencer *engine.Sequencer
	View      *service.FundView
	Metrics   *infra.Metrics
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap(configPath string) *Bootstrap {
	if configPath == "" {
		configPath = infra.DefaultConfigPath
	}
	return &Bootstrap{ConfigPath: configPath, Metrics: infra.GlobalMetrics}
}

// Initialize loads configuration, opens storage and rebuilds the fund from
// the latest snapshot plus the journal written after it.
func (b *Bootstrap) Initialize(ctx context.Context) error {
	cfg, err := infra.LoadConfig(b.ConfigPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	slog.SetDefault(infra.NewLogger(cfg))
	slog.Info("Bootstrapping epoch vault", slog.String("version", cfg.App.Version))

	store, err := storage.NewStorage(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	b.Storage = store
	if n, err := store.MigrateSnapshots(ctx); err != nil {
		return fmt.Errorf("migrate snapshots: %w", err)
	} else if n > 0 {
		slog.Info("Snapshots upgraded", slog.Int("count", n))
	}
	slog.Info("Database initialized")

	if err := b.buildWorld(); err != nil {
		return err
	}
	venues := b.venues()

	history, err := store.Epochs(ctx)
	if err != nil {
		return fmt.Errorf("load epochs: %w", err)
	}

	var startSeq uint64
	snap, world, err := store.LatestSnapshot(ctx)
	switch {
	case errors.Is(err, domain.ErrSnapshotNotFound):
		if err := b.newFund(venues, history); err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("load snapshot: %w", err)
	default:
		if err := b.restoreFund(snap, world, venues, history); err != nil {
			return err
		}
		startSeq = snap.Seq
	}

	b.View = service.NewFundView()
	b.Sequencer = engine.NewSequencer(cfg.Engine.InboxSize, b.Fund, store, b.View.Update,
		engine.WithWorld(b.World),
		engine.WithVenues(venues),
		engine.WithMetrics(b.Metrics),
		engine.WithDumpPath(cfg.Engine.DumpPath),
		engine.WithStartSeq(startSeq),
	)

	if err := b.replay(ctx, startSeq); err != nil {
		return err
	}
	if !b.View.Ready() {
		initial, err := b.Fund.Snapshot(ctx)
		if err != nil {
			return err
		}
		initial.Seq = b.Sequencer.NextSeq() - 1
		b.View.Update(initial)
	}

	event.Warmup()
	slog.Info("Fund ready",
		slog.String("state", b.Fund.State().String()),
		slog.Uint64("next_seq", b.Sequencer.NextSeq()),
		slog.Int("epochs", len(history)),
	)
	return nil
}

// buildWorld creates the paper ledger and venues.
func (b *Bootstrap) buildWorld() error {
	cfg := b.Config
	fc, err := cfg.ToFundConfig()
	if err != nil {
		return err
	}
	ledger := asset.NewLedger()

	var vault *yield.PaperVault
	if cfg.Venues.Yield.Name != "" {
		y, err := cfg.YieldVenue()
		if err != nil {
			return err
		}
		vault = yield.NewPaperVault(yield.Config{
			Name:             y.Name,
			Address:          y.Address,
			BridgeAddress:    y.BridgeAddress,
			Token:            fc.Token,
			LPAsset:          y.LPAsset,
			RewardAsset:      y.RewardAsset,
			RewardPrice:      y.RewardPrice,
			Mode:             yield.Mode(y.Mode),
			InstantLiquidity: y.InstantLiquidity,
			RedeemFee:        y.RedeemFee,
			RedeemFeeByChain: y.RedeemFeeByChain,
		}, ledger, fc.Address)
	}

	var desk *trading.PaperDesk
	if cfg.Venues.Trading.Name != "" {
		t, err := cfg.TradingVenue()
		if err != nil {
			return err
		}
		desk = trading.NewPaperDesk(trading.Config{
			Name:              t.Name,
			Address:           t.Address,
			Keeper:            t.Keeper,
			Token:             fc.Token,
			KeeperFee:         t.KeeperFee,
			MinPositionAmount: t.MinPositionAmount,
		}, ledger, fc.Address)
	}

	b.World = NewWorld(ledger, vault, desk, b.Metrics)
	return nil
}

func (b *Bootstrap) venues() engine.Venues {
	v := engine.Venues{
		Yield:   make(map[string]domain.YieldAdapter),
		Trading: make(map[string]domain.TradingAdapter),
	}
	if b.World.Vault != nil {
		v.Yield[b.World.Vault.Name()] = b.World.Vault
	}
	if b.World.Desk != nil {
		v.Trading[b.World.Desk.Name()] = b.World.Desk
	}
	return v
}

// newFund creates a fresh fund and seeds the paper ledger from genesis.
func (b *Bootstrap) newFund(venues engine.Venues, history []domain.EpochReport) error {
	fc, err := b.Config.ToFundConfig()
	if err != nil {
		return err
	}
	for _, g := range b.Config.Simulation.Genesis {
		assetID := g.Asset
		if assetID == "" {
			assetID = fc.Token
		}
		decimals := fc.Decimals
		if assetID == asset.Native {
			decimals = 0
		}
		amount, err := quant.ParseUnits(g.Amount, decimals)
		if err != nil {
			return fmt.Errorf("genesis %s: %w", g.Holder, err)
		}
		b.World.Ledger.Mint(assetID, common.HexToAddress(g.Holder), amount)
	}

	f, err := fund.New(fc, b.World.Ledger, b.adapterOptions(venues, history, "", "")...)
	if err != nil {
		return err
	}
	b.Fund = f
	slog.Info("Fund created", slog.String("address", fc.Address.Hex()), slog.Int("genesis", len(b.Config.Simulation.Genesis)))
	return nil
}

// restoreFund rebuilds the fund and its world from a snapshot.
func (b *Bootstrap) restoreFund(snap domain.FundSnapshot, world []byte, venues engine.Venues, history []domain.EpochReport) error {
	if len(world) > 0 {
		if err := b.World.Import(world); err != nil {
			return err
		}
	}
	f, err := fund.Restore(snap, b.World.Ledger, b.adapterOptions(venues, history, snap.YieldAdapter, snap.TradingAdapter)...)
	if err != nil {
		return err
	}
	b.Fund = f
	slog.Info("Fund restored",
		slog.Uint64("seq", snap.Seq),
		slog.String("state", snap.State.String()),
	)
	return nil
}

// adapterOptions selects the named adapters, falling back to the
// configured venues when no name was persisted.
func (b *Bootstrap) adapterOptions(venues engine.Venues, history []domain.EpochReport, yieldName, tradingName string) []fund.Option {
	opts := []fund.Option{fund.WithEpochHistory(history)}

	if yieldName == "" && b.World.Vault != nil {
		yieldName = b.World.Vault.Name()
	}
	if a, ok := venues.Yield[yieldName]; ok {
		opts = append(opts, fund.WithYieldAdapter(a))
	}
	if tradingName == "" && b.World.Desk != nil {
		tradingName = b.World.Desk.Name()
	}
	if a, ok := venues.Trading[tradingName]; ok {
		opts = append(opts, fund.WithTradingAdapter(a))
	}
	return opts
}

// replay re-applies journal entries written after the snapshot.
func (b *Bootstrap) replay(ctx context.Context, afterSeq uint64) error {
	recs, err := b.Storage.LoadEvents(ctx, afterSeq)
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}
	for _, rec := range recs {
		ev, err := storage.DecodeEvent(rec)
		if err != nil {
			return err
		}
		ev.SetSeq(rec.Seq)
		res := b.Sequencer.ReplayEvent(ctx, ev)
		code := domain.Code(res.Err)
		if rec.Status != code {
			if err := b.Storage.MarkResult(ctx, rec.Seq, code); err != nil {
				return err
			}
		}
	}
	if len(recs) > 0 {
		slog.Info("Journal replayed", slog.Int("events", len(recs)), slog.Uint64("after_seq", afterSeq))
	}
	return nil
}

// Run starts the sequencer and every configured outer component and blocks
// until ctx is done or one of them fails.
func (b *Bootstrap) Run(ctx context.Context) error {
	cfg := b.Config
	// Outer components act as the owner: it is an operator and never changes.
	operator := b.Fund.Owner()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.Sequencer.Run(ctx)
		return nil
	})

	if cfg.API.Addr != "" {
		srv := api.NewServer(b.Sequencer, b.View, b.Storage,
			api.WithSimulation(cfg.Simulation.Enabled),
			api.WithMetrics(b.Metrics),
		)
		g.Go(func() error { return srv.ListenAndServe(ctx, cfg.API.Addr) })
	}

	if cfg.Bridge.URL != "" {
		w := bridge.NewWatcher(bridge.Config{
			URL:         cfg.Bridge.URL,
			AutoConfirm: cfg.Bridge.AutoConfirm,
			Manager:     operator,
		}, b.Sequencer, b.Metrics)
		g.Go(func() error { return w.Run(ctx) })
	}

	if cfg.Keeper.HarvestSchedule != "" {
		k, err := keeper.New(keeper.Config{
			HarvestSchedule: cfg.Keeper.HarvestSchedule,
			Autocompound:    cfg.Keeper.Autocompound,
			Caller:          operator,
		}, b.Sequencer, b.View)
		if err != nil {
			return err
		}
		g.Go(func() error {
			k.Start()
			<-ctx.Done()
			k.Stop()
			return nil
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			b.prune(ctx)
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	return g.Wait()
}

func (b *Bootstrap) prune(ctx context.Context) {
	n, err := b.Storage.PruneSnapshots(ctx, b.Config.Engine.SnapshotsKept)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("Snapshot pruning failed", slog.Any("error", err))
		}
		return
	}
	if n > 0 {
		slog.Debug("Snapshots pruned", slog.Int64("count", n))
	}
}

// Close releases storage.
func (b *Bootstrap) Close() {
	if b.Storage != nil {
		if err := b.Storage.Close(); err != nil {
			slog.Error("Failed to close storage", slog.Any("error", err))
		}
	}
}
