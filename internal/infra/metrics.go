package infra

import (
	"sync/atomic"
	"time"
)

// Metrics holds sequencer, fund and bridge counters.
// All fields are updated atomically and safe to read from any goroutine.
type Metrics struct {
	// Sequencer
	commandsApplied atomic.Uint64
	rejections      atomic.Uint64
	latencySumNs    atomic.Int64
	latencyCount    atomic.Uint64

	// Fund (last published snapshot)
	lastSeq       atomic.Uint64
	fundState     atomic.Value // string
	totalBalance  atomic.Int64
	pricePerShare atomic.Int64
	holders       atomic.Int64
	epochsSettled atomic.Uint64

	// Bridge
	settlements       atomic.Uint64
	bridgeErrors      atomic.Uint64
	activeConnections atomic.Int32
	circuitOpen       atomic.Bool
}

// GlobalMetrics is the process-wide instance used by the daemon.
var GlobalMetrics = &Metrics{}

// RecordEvent records one sequenced command and its apply latency.
func (m *Metrics) RecordEvent(latencyNs int64) {
	m.commandsApplied.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordRejection records a command the fund rejected.
func (m *Metrics) RecordRejection() {
	m.rejections.Add(1)
}

// ObserveFund stores the gauges of the latest published fund snapshot.
func (m *Metrics) ObserveFund(seq uint64, state string, totalBalance, pricePerShare int64, holders int) {
	m.lastSeq.Store(seq)
	m.fundState.Store(state)
	m.totalBalance.Store(totalBalance)
	m.pricePerShare.Store(pricePerShare)
	m.holders.Store(int64(holders))
}

// RecordEpochSettled records a settled epoch.
func (m *Metrics) RecordEpochSettled() {
	m.epochsSettled.Add(1)
}

// RecordSettlement records an async redemption credited to the fund.
func (m *Metrics) RecordSettlement() {
	m.settlements.Add(1)
}

// RecordBridgeError records a failed dial, subscribe or read on the bridge feed.
func (m *Metrics) RecordBridgeError() {
	m.bridgeErrors.Add(1)
}

func (m *Metrics) IncrementConnections() { m.activeConnections.Add(1) }
func (m *Metrics) DecrementConnections() { m.activeConnections.Add(-1) }

// SetCircuitState marks the bridge feed as given up on (true) or healthy.
func (m *Metrics) SetCircuitState(open bool) {
	m.circuitOpen.Store(open)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	CommandsApplied   uint64    `json:"commands_applied"`
	Rejections        uint64    `json:"rejections"`
	AvgLatencyNs      int64     `json:"avg_latency_ns"`
	LastSeq           uint64    `json:"last_seq"`
	FundState         string    `json:"fund_state"`
	TotalBalance      int64     `json:"total_balance"`
	PricePerShare     int64     `json:"price_per_share"`
	Holders           int64     `json:"holders"`
	EpochsSettled     uint64    `json:"epochs_settled"`
	Settlements       uint64    `json:"settlements"`
	BridgeErrors      uint64    `json:"bridge_errors"`
	ActiveConnections int32     `json:"active_connections"`
	CircuitOpen       bool      `json:"circuit_open"`
	Timestamp         time.Time `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	if count := m.latencyCount.Load(); count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}
	state, _ := m.fundState.Load().(string)

	return MetricsSnapshot{
		CommandsApplied:   m.commandsApplied.Load(),
		Rejections:        m.rejections.Load(),
		AvgLatencyNs:      avgLatency,
		LastSeq:           m.lastSeq.Load(),
		FundState:         state,
		TotalBalance:      m.totalBalance.Load(),
		PricePerShare:     m.pricePerShare.Load(),
		Holders:           m.holders.Load(),
		EpochsSettled:     m.epochsSettled.Load(),
		Settlements:       m.settlements.Load(),
		BridgeErrors:      m.bridgeErrors.Load(),
		ActiveConnections: m.activeConnections.Load(),
		CircuitOpen:       m.circuitOpen.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.commandsApplied.Store(0)
	m.rejections.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.lastSeq.Store(0)
	m.fundState.Store("")
	m.totalBalance.Store(0)
	m.pricePerShare.Store(0)
	m.holders.Store(0)
	m.epochsSettled.Store(0)
	m.settlements.Store(0)
	m.bridgeErrors.Store(0)
	m.activeConnections.Store(0)
	m.circuitOpen.Store(false)
}
