package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"epoch_vault/internal/asset"
	"epoch_vault/internal/domain"
	"epoch_vault/internal/event"
	"epoch_vault/internal/fund"
	"epoch_vault/internal/infra"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	fundAddr = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	owner    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	manager  = common.HexToAddress("0x0000000000000000000000000000000000000002")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

type memStore struct {
	mu        sync.Mutex
	events    []event.Event
	statuses  map[uint64]string
	snapshots []domain.FundSnapshot
	epochs    map[string]domain.EpochReport
}

func newMemStore() *memStore {
	return &memStore{statuses: make(map[uint64]string), epochs: make(map[string]domain.EpochReport)}
}

func (m *memStore) SaveEvent(_ context.Context, ev event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	m.statuses[ev.GetSeq()] = "PENDING"
	return nil
}

func (m *memStore) MarkResult(_ context.Context, seq uint64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[seq] = status
	return nil
}

func (m *memStore) SaveSnapshot(_ context.Context, snap domain.FundSnapshot, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, snap)
	return nil
}

func (m *memStore) SaveEpoch(_ context.Context, r domain.EpochReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epochs[r.ID] = r
	return nil
}

type fakeWorld struct {
	settled  int64
	simPanic bool
}

func (w *fakeWorld) Settle(_ context.Context, ev *event.RedeemSettledEvent) (int64, error) {
	w.settled += ev.Amount
	return ev.Amount, nil
}

func (w *fakeWorld) Simulate(_ context.Context, ev *event.SimulationEvent) error {
	if w.simPanic {
		panic("simulated invariant violation")
	}
	return nil
}

func (w *fakeWorld) Export() ([]byte, error) { return []byte(`{}`), nil }

func newTestFund(t testing.TB) (*fund.Fund, *asset.Ledger) {
	t.Helper()
	l := asset.NewLedger()
	f, err := fund.New(domain.FundConfig{
		Address:           fundAddr,
		Token:             "USDC",
		Cap:               1_000_000,
		MinDeposit:        10,
		MaxDeposit:        10_000,
		Owner:             owner,
		Manager:           manager,
		FeeRecipient:      owner,
		PerformanceFeeBps: 2000,
	}, l)
	if err != nil {
		t.Fatalf("fund.New failed: %v", err)
	}
	l.Mint("USDC", alice, 100_000)
	return f, l
}

func runSequencer(t *testing.T, seq *Sequencer) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		seq.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func deposit(amount int64) *event.Command {
	return &event.Command{ID: "dep", Kind: event.TypeDeposit, Caller: alice, Amount: amount}
}

func TestSequencer_Deposit(t *testing.T) {
	f, _ := newTestFund(t)
	store := newMemStore()
	var updates []domain.FundSnapshot
	metrics := &infra.Metrics{}
	seq := NewSequencer(10, f, store, func(s domain.FundSnapshot) { updates = append(updates, s) },
		WithMetrics(metrics))
	stop := runSequencer(t, seq)
	defer stop()

	res, err := seq.Submit(context.Background(), deposit(500))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.Err != nil || res.Value != 500 || res.Seq != 1 {
		t.Errorf("Unexpected result: %+v", res)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.statuses[1] != "OK" {
		t.Errorf("Expected journal status OK, got %q", store.statuses[1])
	}
	if len(store.snapshots) != 1 || store.snapshots[0].Seq != 1 || store.snapshots[0].TotalSupply != 500 {
		t.Errorf("Unexpected snapshots: %+v", store.snapshots)
	}
	if len(updates) != 1 || updates[0].TotalBalance != 500 {
		t.Errorf("Expected one read-model update, got %+v", updates)
	}
	if store.events[0].GetTs() == 0 {
		t.Error("Expected submission timestamp")
	}
	if snap := metrics.Snapshot(); snap.LastSeq != 1 || snap.FundState != "IDLE" || snap.TotalBalance != 500 || snap.Holders != 1 {
		t.Errorf("Unexpected fund gauges: %+v", snap)
	}
}

func TestSequencer_RejectionIsJournaled(t *testing.T) {
	f, _ := newTestFund(t)
	store := newMemStore()
	metrics := &infra.Metrics{}
	seq := NewSequencer(10, f, store, nil, WithMetrics(metrics))
	stop := runSequencer(t, seq)
	defer stop()

	res, err := seq.Submit(context.Background(), deposit(5))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !errors.Is(res.Err, domain.ErrOutOfLimits) {
		t.Errorf("Expected ErrOutOfLimits, got %v", res.Err)
	}

	res, _ = seq.Submit(context.Background(), &event.Command{Kind: "BURN_IT_ALL", Caller: alice})
	if !errors.Is(res.Err, domain.ErrUnknownCommand) {
		t.Errorf("Expected ErrUnknownCommand, got %v", res.Err)
	}

	res, _ = seq.Submit(context.Background(), &event.Command{Kind: event.TypeSetYieldAdapter, Caller: owner, Adapter: "aave"})
	if !errors.Is(res.Err, domain.ErrUnknownVenue) {
		t.Errorf("Expected ErrUnknownVenue, got %v", res.Err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.statuses[1] != "OUT_OF_LIMITS" || store.statuses[2] != "UNKNOWN_COMMAND" {
		t.Errorf("Unexpected statuses: %v", store.statuses)
	}
	if len(store.snapshots) != 0 {
		t.Errorf("Rejected commands must not snapshot, got %d", len(store.snapshots))
	}
	if got := metrics.Snapshot().Rejections; got != 3 {
		t.Errorf("Expected 3 rejections, got %d", got)
	}
}

func TestSequencer_ConcurrentSubmitters(t *testing.T) {
	f, _ := newTestFund(t)
	store := newMemStore()
	seq := NewSequencer(4, f, store, nil, WithMetrics(&infra.Metrics{}))
	stop := runSequencer(t, seq)
	defer stop()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res, err := seq.Submit(context.Background(), deposit(100)); err != nil || res.Err != nil {
				t.Errorf("Submit failed: %v %v", err, res.Err)
			}
		}()
	}
	wg.Wait()

	if got := seq.NextSeq(); got != n+1 {
		t.Errorf("Expected next seq %d, got %d", n+1, got)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	for i, ev := range store.events {
		if ev.GetSeq() != uint64(i+1) {
			t.Fatalf("Expected journal in sequence order, entry %d has seq %d", i, ev.GetSeq())
		}
	}
}

func TestSequencer_GapDetection(t *testing.T) {
	f, _ := newTestFund(t)
	seq := NewSequencer(10, f, nil, nil)

	// Should panic when receiving out-of-order event
	defer func() {
		if r := recover(); r == nil {
			t.Error("Sequencer should have panicked on sequence gap")
		}
	}()

	ev := deposit(100)
	ev.SetSeq(2) // Start with 2 instead of 1
	seq.processEvent(context.Background(), ev)
}

func TestSequencer_Replay(t *testing.T) {
	f, _ := newTestFund(t)
	store := newMemStore()
	seq := NewSequencer(10, f, store, nil, WithStartSeq(4), WithMetrics(&infra.Metrics{}))

	ev := deposit(300)
	ev.SetSeq(5)
	res := seq.ReplayEvent(context.Background(), ev)
	if res.Err != nil || f.TotalSupply() != 300 {
		t.Fatalf("Replay failed: %+v", res)
	}
	if len(store.events) != 0 {
		t.Error("Replay must not write the journal")
	}
	if len(store.snapshots) != 1 {
		t.Errorf("Expected replay to snapshot, got %d", len(store.snapshots))
	}

	stop := runSequencer(t, seq)
	defer stop()
	res, err := seq.Submit(context.Background(), deposit(100))
	if err != nil || res.Seq != 6 {
		t.Errorf("Expected next submission to get seq 6, got %+v (%v)", res, err)
	}
}

func TestSequencer_EpochReportsPersisted(t *testing.T) {
	f, _ := newTestFund(t)
	store := newMemStore()
	seq := NewSequencer(10, f, store, nil, WithMetrics(&infra.Metrics{}))
	stop := runSequencer(t, seq)
	defer stop()

	ctx := context.Background()
	seq.Submit(ctx, deposit(1000))
	res, _ := seq.Submit(ctx, &event.Command{Kind: event.TypeStart, Caller: manager})
	if !errors.Is(res.Err, domain.ErrNoYieldManager) {
		t.Fatalf("Expected ErrNoYieldManager without venues, got %v", res.Err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.epochs) != 0 {
		t.Errorf("Expected no epoch reports, got %d", len(store.epochs))
	}
}

func TestSequencer_WorldEvents(t *testing.T) {
	f, _ := newTestFund(t)
	world := &fakeWorld{}
	seq := NewSequencer(10, f, nil, nil, WithWorld(world), WithMetrics(&infra.Metrics{}))
	stop := runSequencer(t, seq)
	defer stop()

	res, err := seq.Submit(context.Background(), &event.RedeemSettledEvent{TxID: "0x1", Amount: 800})
	if err != nil || res.Err != nil || res.Value != 800 {
		t.Fatalf("Unexpected settlement result: %+v (%v)", res, err)
	}
	if world.settled != 800 {
		t.Errorf("Expected world to settle 800, got %d", world.settled)
	}

	res, _ = seq.Submit(context.Background(), &event.SimulationEvent{Kind: event.TypeSimAccrue, Amount: 1})
	if res.Err != nil {
		t.Errorf("Unexpected simulation error: %v", res.Err)
	}
}

func TestSequencer_SubmitCancelled(t *testing.T) {
	f, _ := newTestFund(t)
	seq := NewSequencer(0, f, nil, nil, WithMetrics(&infra.Metrics{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := seq.Submit(ctx, deposit(100)); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}

	// The cancelled submission must not leave a sequence gap.
	stop := runSequencer(t, seq)
	defer stop()
	res, err := seq.Submit(context.Background(), deposit(100))
	if err != nil || res.Seq != 1 {
		t.Errorf("Expected seq 1, got %+v (%v)", res, err)
	}
}

func TestSequencer_PanicDumpsState(t *testing.T) {
	f, _ := newTestFund(t)
	dump := filepath.Join(t.TempDir(), "dump.json")
	seq := NewSequencer(10, f, nil, nil,
		WithWorld(&fakeWorld{simPanic: true}),
		WithDumpPath(dump),
		WithMetrics(&infra.Metrics{}),
	)

	halted := make(chan any, 1)
	go func() {
		defer func() { halted <- recover() }()
		seq.Run(context.Background())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	seq.Submit(ctx, &event.SimulationEvent{Kind: event.TypeSimMint, Amount: 1})

	if r := <-halted; r == nil {
		t.Fatal("Expected sequencer to halt")
	}
	if _, err := os.Stat(dump); err != nil {
		t.Errorf("Expected state dump at %s: %v", dump, err)
	}
}
