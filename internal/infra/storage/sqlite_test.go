package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"epoch_vault/internal/domain"
	"epoch_vault/internal/event"

	"github.com/ethereum/go-ethereum/common"
)

func setupTestDB(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSnapshot(seq uint64) domain.FundSnapshot {
	return domain.FundSnapshot{
		SchemaVersion: domain.SnapshotSchemaVersion,
		Seq:           seq,
		Config: domain.FundConfig{
			Address:           common.HexToAddress("0xf0"),
			Token:             "USDC",
			ManagementFeeBps:  200,
			PerformanceFeeBps: 2000,
			FeeMode:           domain.FeeModeShares,
		},
		State:       domain.EpochTrading,
		Holders:     map[string]int64{common.HexToAddress("0xa1").Hex(): 1000},
		TotalSupply: 1000,
		UpdatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestJournal_SaveAndLoad(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	dep := &event.Command{
		BaseEvent: event.BaseEvent{Seq: 1, Ts: 1000},
		ID:        "cmd-1",
		Kind:      event.TypeDeposit,
		Caller:    common.HexToAddress("0xa1"),
		Amount:    500,
		Proof:     []byte{1, 2, 3},
	}
	settled := &event.RedeemSettledEvent{
		BaseEvent: event.BaseEvent{Seq: 2, Ts: 2000},
		TxID:      "0xabc",
		Amount:    800,
	}
	for _, ev := range []event.Event{dep, settled} {
		if err := s.SaveEvent(ctx, ev); err != nil {
			t.Fatalf("SaveEvent failed: %v", err)
		}
	}
	if err := s.SaveEvent(ctx, dep); err == nil {
		t.Error("Expected duplicate sequence to be rejected")
	}
	if err := s.MarkResult(ctx, 1, "CAP_REACHED"); err != nil {
		t.Fatalf("MarkResult failed: %v", err)
	}
	if err := s.MarkResult(ctx, 99, StatusApplied); err == nil {
		t.Error("Expected error marking a missing entry")
	}

	last, err := s.LastSeq(ctx)
	if err != nil || last != 2 {
		t.Errorf("Expected last seq 2, got %d (%v)", last, err)
	}

	recs, err := s.LoadEvents(ctx, 0)
	if err != nil {
		t.Fatalf("LoadEvents failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(recs))
	}
	if recs[0].Status != "CAP_REACHED" || recs[1].Status != StatusPending {
		t.Errorf("Unexpected statuses %q, %q", recs[0].Status, recs[1].Status)
	}

	ev, err := DecodeEvent(recs[0])
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	cmd, ok := ev.(*event.Command)
	if !ok || cmd.Amount != 500 || cmd.ID != "cmd-1" || len(cmd.Proof) != 3 {
		t.Errorf("Unexpected decoded command: %+v", ev)
	}

	ev, err = DecodeEvent(recs[1])
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	if se, ok := ev.(*event.RedeemSettledEvent); !ok || se.Amount != 800 || se.GetSeq() != 2 {
		t.Errorf("Unexpected decoded settlement: %+v", ev)
	}

	recs, _ = s.LoadEvents(ctx, 1)
	if len(recs) != 1 {
		t.Errorf("Expected 1 record after seq 1, got %d", len(recs))
	}
}

func TestSnapshots(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	if _, _, err := s.LatestSnapshot(ctx); !errors.Is(err, domain.ErrSnapshotNotFound) {
		t.Fatalf("Expected ErrSnapshotNotFound, got %v", err)
	}

	for seq := uint64(1); seq <= 5; seq++ {
		if err := s.SaveSnapshot(ctx, testSnapshot(seq), []byte(`{"seq":`+fmt.Sprint(seq)+`}`)); err != nil {
			t.Fatalf("SaveSnapshot failed: %v", err)
		}
	}

	snap, world, err := s.LatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("LatestSnapshot failed: %v", err)
	}
	if string(world) != `{"seq":5}` {
		t.Errorf("Expected world of seq 5, got %s", world)
	}
	if snap.Seq != 5 || snap.State != domain.EpochTrading || snap.TotalSupply != 1000 {
		t.Errorf("Unexpected snapshot: %+v", snap)
	}

	pruned, err := s.PruneSnapshots(ctx, 2)
	if err != nil {
		t.Fatalf("PruneSnapshots failed: %v", err)
	}
	if pruned != 3 {
		t.Errorf("Expected 3 pruned, got %d", pruned)
	}
}

func TestEpochs(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	open := domain.EpochReport{ID: "e-1", Number: 1, StartTotalBalance: 1000}
	if err := s.SaveEpoch(ctx, open); err != nil {
		t.Fatalf("SaveEpoch failed: %v", err)
	}
	got, _ := s.Epochs(ctx)
	if len(got) != 0 {
		t.Errorf("Expected open epoch to be hidden, got %d", len(got))
	}

	open.SettledAt = time.Now()
	open.PerformanceFee = 20
	if err := s.SaveEpoch(ctx, open); err != nil {
		t.Fatalf("SaveEpoch failed: %v", err)
	}
	got, err := s.Epochs(ctx)
	if err != nil {
		t.Fatalf("Epochs failed: %v", err)
	}
	if len(got) != 1 || got[0].PerformanceFee != 20 {
		t.Errorf("Unexpected epochs: %+v", got)
	}
}

func TestConfigMap(t *testing.T) {
	s := setupTestDB(t)

	if err := s.SaveConfig("fund", "0xf0"); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	_ = s.SaveConfig("fund", "0xf1")

	m, err := s.LoadConfigMap()
	if err != nil {
		t.Fatalf("LoadConfigMap failed: %v", err)
	}
	if m["fund"] != "0xf1" {
		t.Errorf("expected 0xf1, got %q", m["fund"])
	}
}
