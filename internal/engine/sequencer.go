package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"epoch_vault/internal/domain"
	"epoch_vault/internal/event"
	"epoch_vault/internal/fund"
	"epoch_vault/internal/infra"
	"epoch_vault/pkg/quant"
)

// Store is the persistence the sequencer writes through.
type Store interface {
	SaveEvent(ctx context.Context, ev event.Event) error
	MarkResult(ctx context.Context, seq uint64, status string) error
	SaveSnapshot(ctx context.Context, snap domain.FundSnapshot, world []byte) error
	SaveEpoch(ctx context.Context, r domain.EpochReport) error
}

// World is the venue-side state that lives next to the fund: the paper
// ledger and venues. It applies bridge and simulation events and is
// persisted with every fund snapshot.
type World interface {
	Settle(ctx context.Context, ev *event.RedeemSettledEvent) (int64, error)
	Simulate(ctx context.Context, ev *event.SimulationEvent) error
	Export() ([]byte, error)
}

// Venues resolves adapter names used by SET_*_ADAPTER commands.
type Venues struct {
	Yield   map[string]domain.YieldAdapter
	Trading map[string]domain.TradingAdapter
}

type envelope struct {
	ev    event.Event
	reply chan event.Result
}

// Sequencer is the core single-threaded event processor. Every mutation of
// the fund and its world goes through Run.
type Sequencer struct {
	inbox   chan envelope
	fund    *fund.Fund
	nextSeq uint64
	store   Store
	world   World
	venues  Venues
	metrics *infra.Metrics

	dumpPath string
	now      func() time.Time

	submitMu sync.Mutex
	lastSeq  uint64 // last sequence handed out by Submit

	epochsSaved int

	// Boundary: used to notify the read model of state changes
	onStateUpdate func(domain.FundSnapshot)

	mu sync.RWMutex // Used only for external reads
}

// Option configures a Sequencer.
type Option func(*Sequencer)

func WithWorld(w World) Option            { return func(s *Sequencer) { s.world = w } }
func WithVenues(v Venues) Option          { return func(s *Sequencer) { s.venues = v } }
func WithMetrics(m *infra.Metrics) Option { return func(s *Sequencer) { s.metrics = m } }
func WithDumpPath(p string) Option        { return func(s *Sequencer) { s.dumpPath = p } }

// WithStartSeq resumes numbering after lastApplied.
func WithStartSeq(lastApplied uint64) Option {
	return func(s *Sequencer) {
		s.nextSeq = lastApplied + 1
		s.lastSeq = lastApplied
	}
}

// NewSequencer creates a new sequencer instance.
func NewSequencer(inboxSize int, f *fund.Fund, store Store, onUpdate func(domain.FundSnapshot), opts ...Option) *Sequencer {
	s := &Sequencer{
		inbox:         make(chan envelope, inboxSize),
		fund:          f,
		nextSeq:       1,
		store:         store,
		metrics:       infra.GlobalMetrics,
		dumpPath:      "panic_dump.json",
		now:           time.Now,
		onStateUpdate: onUpdate,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.epochsSaved = len(f.Epochs())
	return s
}

// Submit sequences ev, hands it to the run loop and waits for the result.
// The event is applied even if ctx ends after it was enqueued.
func (s *Sequencer) Submit(ctx context.Context, ev event.Event) (event.Result, error) {
	env := envelope{ev: ev, reply: make(chan event.Result, 1)}
	if err := s.enqueue(ctx, env); err != nil {
		return event.Result{}, err
	}

	select {
	case res := <-env.reply:
		return res, nil
	case <-ctx.Done():
		return event.Result{}, ctx.Err()
	}
}

// enqueue assigns the next sequence number and sends env to the inbox.
// Holding submitMu across the send keeps inbox order equal to sequence order.
func (s *Sequencer) enqueue(ctx context.Context, env envelope) error {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	seq := quant.NextSeq(&s.lastSeq)
	env.ev.SetSeq(seq)
	if env.ev.GetTs() == 0 {
		env.ev.SetTs(s.now().UnixMilli())
	}

	select {
	case s.inbox <- env:
		return nil
	case <-ctx.Done():
		s.lastSeq--
		return ctx.Err()
	}
}

// Run starts the main event loop. This MUST be run in a single goroutine.
func (s *Sequencer) Run(ctx context.Context) {
	slog.Info("Sequencer started", slog.Uint64("next_seq", s.nextSeq))

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState(s.dumpPath)
			// Halt after dump; restart recovers from the last snapshot.
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sequencer stopping...")
			return
		case env := <-s.inbox:
			res := s.processEvent(ctx, env.ev)
			env.reply <- res
		}
	}
}

func (s *Sequencer) processEvent(ctx context.Context, ev event.Event) event.Result {
	// 1. Sequence Gap Check (Halt Policy)
	if ev.GetSeq() != s.nextSeq {
		panic(fmt.Sprintf("SEQUENCE_GAP_DETECTED: expected %d, got %d", s.nextSeq, ev.GetSeq()))
	}

	// 2. WAL-first: Persistence
	persist := context.WithoutCancel(ctx)
	if s.store != nil {
		if err := s.store.SaveEvent(persist, ev); err != nil {
			panic(fmt.Sprintf("PERSISTENCE_FAILURE: %v", err))
		}
	}

	// 3. Logic Dispatch
	start := time.Now()
	value, err := s.dispatch(persist, ev)
	code := domain.Code(err)

	if err != nil {
		slog.Warn("Event rejected",
			slog.Uint64("seq", ev.GetSeq()),
			slog.String("type", string(ev.GetType())),
			slog.String("code", code),
			slog.Any("error", err),
		)
		s.metrics.RecordRejection()
	} else {
		s.publish(persist, ev.GetSeq())
	}
	s.metrics.RecordEvent(time.Since(start).Nanoseconds())

	if s.store != nil {
		if err := s.store.MarkResult(persist, ev.GetSeq(), code); err != nil {
			panic(fmt.Sprintf("PERSISTENCE_FAILURE: %v", err))
		}
	}

	// 4. Increment Sequence
	s.mu.Lock()
	s.nextSeq++
	s.mu.Unlock()

	return event.Result{Seq: ev.GetSeq(), Value: value, Err: err}
}

// ReplayEvent applies a journaled event without writing the journal.
// It is used on startup for events newer than the last snapshot.
func (s *Sequencer) ReplayEvent(ctx context.Context, ev event.Event) event.Result {
	// Replay must still respect sequence order
	if ev.GetSeq() != s.nextSeq {
		panic(fmt.Sprintf("REPLAY_GAP_DETECTED: expected %d, got %d", s.nextSeq, ev.GetSeq()))
	}

	value, err := s.dispatch(ctx, ev)
	if err == nil {
		s.publish(ctx, ev.GetSeq())
	}

	s.mu.Lock()
	s.nextSeq++
	s.mu.Unlock()

	s.submitMu.Lock()
	s.lastSeq = ev.GetSeq()
	s.submitMu.Unlock()

	return event.Result{Seq: ev.GetSeq(), Value: value, Err: err}
}

func (s *Sequencer) dispatch(ctx context.Context, ev event.Event) (int64, error) {
	switch e := ev.(type) {
	case *event.Command:
		return s.applyCommand(ctx, e)
	case *event.RedeemSettledEvent:
		if s.world == nil {
			return 0, fmt.Errorf("redeem settled: no world attached")
		}
		return s.world.Settle(ctx, e)
	case *event.SimulationEvent:
		if s.world == nil {
			return 0, fmt.Errorf("simulation: no world attached")
		}
		return 0, s.world.Simulate(ctx, e)
	default:
		slog.Warn("Unknown event type", slog.Any("type", ev.GetType()))
		return 0, domain.ErrUnknownCommand
	}
}

// publish persists the post-event state and notifies the read model.
func (s *Sequencer) publish(ctx context.Context, seq uint64) {
	snap, err := s.fund.Snapshot(ctx)
	if err != nil {
		panic(fmt.Sprintf("SNAPSHOT_FAILURE: %v", err))
	}
	snap.Seq = seq

	if s.store != nil {
		var world []byte
		if s.world != nil {
			if world, err = s.world.Export(); err != nil {
				panic(fmt.Sprintf("SNAPSHOT_FAILURE: %v", err))
			}
		}
		if err := s.store.SaveSnapshot(ctx, snap, world); err != nil {
			panic(fmt.Sprintf("PERSISTENCE_FAILURE: %v", err))
		}
		if snap.CurrentEpoch != nil {
			if err := s.store.SaveEpoch(ctx, *snap.CurrentEpoch); err != nil {
				panic(fmt.Sprintf("PERSISTENCE_FAILURE: %v", err))
			}
		}
	}

	epochs := s.fund.Epochs()
	for _, r := range epochs[s.epochsSaved:] {
		if s.store != nil {
			if err := s.store.SaveEpoch(ctx, r); err != nil {
				panic(fmt.Sprintf("PERSISTENCE_FAILURE: %v", err))
			}
		}
		s.metrics.RecordEpochSettled()
	}
	s.epochsSaved = len(epochs)
	s.metrics.ObserveFund(seq, snap.State.String(), snap.TotalBalance, snap.PricePerShare, len(snap.Holders))

	if s.onStateUpdate != nil {
		s.onStateUpdate(snap)
	}
}

// NextSeq returns the sequence the loop expects next (external read).
func (s *Sequencer) NextSeq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextSeq
}

// DumpState writes the entire internal state to a file (for post-mortem).
func (s *Sequencer) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	data := struct {
		NextSeq uint64               `json:"next_seq"`
		Fund    *domain.FundSnapshot `json:"fund,omitempty"`
		World   json.RawMessage      `json:"world,omitempty"`
		Epochs  []domain.EpochReport `json:"epochs,omitempty"`
	}{
		NextSeq: s.nextSeq,
		Epochs:  s.fund.Epochs(),
	}

	// The fund may be the thing that panicked; dump what can still be read.
	func() {
		defer func() { _ = recover() }()
		if snap, err := s.fund.Snapshot(context.Background()); err == nil {
			data.Fund = &snap
		}
	}()
	if s.world != nil {
		func() {
			defer func() { _ = recover() }()
			if w, err := s.world.Export(); err == nil {
				data.World = w
			}
		}()
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	err = os.WriteFile(filename, b, 0644)
	if err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
