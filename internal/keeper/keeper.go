// Package keeper runs scheduled maintenance commands against the fund.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"epoch_vault/internal/domain"
	"epoch_vault/internal/event"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Submitter sequences commands.
type Submitter interface {
	Submit(ctx context.Context, ev event.Event) (event.Result, error)
}

// StateReader reports the current epoch state.
type StateReader interface {
	State() domain.EpochState
}

// Config configures the keeper jobs.
type Config struct {
	HarvestSchedule string // standard 5-field cron spec
	Autocompound    bool
	Caller          common.Address // manager address the keeper acts as
	Timeout         time.Duration
}

// Keeper schedules harvests while an epoch holds a yield position.
type Keeper struct {
	cron      *cron.Cron
	cfg       Config
	submitter Submitter
	state     StateReader
	logger    *slog.Logger

	mu   sync.Mutex
	runs int
}

// New creates a keeper and registers its jobs.
func New(cfg Config, submitter Submitter, state StateReader) (*Keeper, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	k := &Keeper{
		cron:      cron.New(),
		cfg:       cfg,
		submitter: submitter,
		state:     state,
		logger:    slog.Default().With(slog.String("module", "keeper")),
	}
	if _, err := k.cron.AddFunc(cfg.HarvestSchedule, k.harvestJob); err != nil {
		return nil, fmt.Errorf("register harvest job: %w", err)
	}
	return k, nil
}

// Start starts the cron scheduler.
func (k *Keeper) Start() {
	k.cron.Start()
	k.logger.Info("Keeper started", slog.String("harvest_schedule", k.cfg.HarvestSchedule))
}

// Stop stops the scheduler and waits for a running job to finish.
func (k *Keeper) Stop() {
	<-k.cron.Stop().Done()
	k.logger.Info("Keeper stopped")
}

// Runs returns the number of harvest commands submitted.
func (k *Keeper) Runs() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.runs
}

func (k *Keeper) harvestJob() {
	ctx, cancel := context.WithTimeout(context.Background(), k.cfg.Timeout)
	defer cancel()
	k.Harvest(ctx)
}

// Harvest submits a harvest command when the fund is mid-epoch.
// It returns the harvested amount.
func (k *Keeper) Harvest(ctx context.Context) int64 {
	switch k.state.State() {
	case domain.EpochTrading, domain.EpochReadyToStop:
	default:
		return 0
	}

	k.mu.Lock()
	k.runs++
	k.mu.Unlock()

	cmd := &event.Command{
		ID:           uuid.NewString(),
		Kind:         event.TypeHarvest,
		Caller:       k.cfg.Caller,
		Autocompound: k.cfg.Autocompound,
	}
	res, err := k.submitter.Submit(ctx, cmd)
	if err != nil {
		k.logger.Warn("Harvest submit failed", slog.Any("error", err))
		return 0
	}

	switch {
	case res.Err == nil:
		k.logger.Info("Harvested", slog.Uint64("seq", res.Seq), slog.Int64("amount", res.Value))
		return res.Value
	case errors.Is(res.Err, domain.ErrNoFundsInLending):
		k.logger.Debug("Nothing to harvest", slog.Uint64("seq", res.Seq))
	default:
		k.logger.Warn("Harvest rejected",
			slog.Uint64("seq", res.Seq),
			slog.String("code", domain.Code(res.Err)),
		)
	}
	return 0
}
