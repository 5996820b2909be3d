package keeper

import (
	"context"
	"errors"
	"testing"

	"epoch_vault/internal/domain"
	"epoch_vault/internal/event"

	"github.com/ethereum/go-ethereum/common"
)

type fakeSubmitter struct {
	cmds []*event.Command
	res  event.Result
	err  error
}

func (f *fakeSubmitter) Submit(_ context.Context, ev event.Event) (event.Result, error) {
	f.cmds = append(f.cmds, ev.(*event.Command))
	return f.res, f.err
}

type fixedState domain.EpochState

func (s fixedState) State() domain.EpochState { return domain.EpochState(s) }

func TestKeeper_Harvest(t *testing.T) {
	manager := common.HexToAddress("0x02")

	tests := []struct {
		name      string
		state     domain.EpochState
		res       event.Result
		err       error
		submitted int
		want      int64
	}{
		{"idle skips", domain.EpochIdle, event.Result{}, nil, 0, 0},
		{"awaiting redemption skips", domain.EpochAwaitingAsyncRedemption, event.Result{}, nil, 0, 0},
		{"trading harvests", domain.EpochTrading, event.Result{Seq: 7, Value: 42}, nil, 1, 42},
		{"ready to stop harvests", domain.EpochReadyToStop, event.Result{Seq: 8, Value: 5}, nil, 1, 5},
		{"nothing in lending", domain.EpochTrading, event.Result{Err: domain.ErrNoFundsInLending}, nil, 1, 0},
		{"submit error", domain.EpochTrading, event.Result{}, errors.New("closed"), 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &fakeSubmitter{res: tt.res, err: tt.err}
			k, err := New(Config{HarvestSchedule: "*/5 * * * *", Autocompound: true, Caller: manager}, sub, fixedState(tt.state))
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}

			got := k.Harvest(context.Background())
			if got != tt.want {
				t.Errorf("Expected harvested %d, got %d", tt.want, got)
			}
			if len(sub.cmds) != tt.submitted {
				t.Fatalf("Expected %d submissions, got %d", tt.submitted, len(sub.cmds))
			}
			if tt.submitted > 0 {
				cmd := sub.cmds[0]
				if cmd.Kind != event.TypeHarvest || cmd.Caller != manager || !cmd.Autocompound {
					t.Errorf("Unexpected command: %+v", cmd)
				}
				if k.Runs() != 1 {
					t.Errorf("Expected 1 run, got %d", k.Runs())
				}
			}
		})
	}
}

func TestKeeper_InvalidSchedule(t *testing.T) {
	if _, err := New(Config{HarvestSchedule: "often"}, &fakeSubmitter{}, fixedState(domain.EpochIdle)); err == nil {
		t.Error("Expected invalid schedule to be rejected")
	}
}

func TestKeeper_StartStop(t *testing.T) {
	k, err := New(Config{HarvestSchedule: "0 0 1 1 *"}, &fakeSubmitter{}, fixedState(domain.EpochIdle))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	k.Start()
	k.Stop()
}
