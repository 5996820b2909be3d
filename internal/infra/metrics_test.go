package infra

import (
	"testing"
)

func TestMetrics_RecordEvent(t *testing.T) {
	m := &Metrics{}

	m.RecordEvent(1000)
	m.RecordEvent(2000)
	m.RecordEvent(3000)

	snap := m.Snapshot()

	if snap.CommandsApplied != 3 {
		t.Errorf("Expected 3 commands, got %d", snap.CommandsApplied)
	}

	// Average latency: (1000 + 2000 + 3000) / 3 = 2000
	if snap.AvgLatencyNs != 2000 {
		t.Errorf("Expected avg latency 2000, got %d", snap.AvgLatencyNs)
	}
}

func TestMetrics_FundCounters(t *testing.T) {
	m := &Metrics{}

	m.RecordRejection()
	m.RecordRejection()
	m.RecordEpochSettled()
	m.RecordSettlement()

	snap := m.Snapshot()
	if snap.Rejections != 2 {
		t.Errorf("Expected 2 rejections, got %d", snap.Rejections)
	}
	if snap.EpochsSettled != 1 || snap.Settlements != 1 {
		t.Errorf("Expected 1 epoch and 1 settlement, got %d and %d", snap.EpochsSettled, snap.Settlements)
	}
}

func TestMetrics_Connections(t *testing.T) {
	m := &Metrics{}

	m.IncrementConnections()
	m.IncrementConnections()
	m.IncrementConnections()

	snap := m.Snapshot()
	if snap.ActiveConnections != 3 {
		t.Errorf("Expected 3 connections, got %d", snap.ActiveConnections)
	}

	m.DecrementConnections()
	snap = m.Snapshot()
	if snap.ActiveConnections != 2 {
		t.Errorf("Expected 2 connections, got %d", snap.ActiveConnections)
	}
}

func TestMetrics_CircuitState(t *testing.T) {
	m := &Metrics{}

	snap := m.Snapshot()
	if snap.CircuitOpen {
		t.Error("Expected circuit closed initially")
	}

	m.SetCircuitState(true)
	snap = m.Snapshot()
	if !snap.CircuitOpen {
		t.Error("Expected circuit open")
	}

	m.SetCircuitState(false)
	snap = m.Snapshot()
	if snap.CircuitOpen {
		t.Error("Expected circuit closed")
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := &Metrics{}

	m.RecordEvent(1000)
	m.RecordBridgeError()
	m.ObserveFund(7, "TRADING", 1000, 1, 2)
	m.RecordRejection()
	m.IncrementConnections()

	m.Reset()
	snap := m.Snapshot()

	if snap.CommandsApplied != 0 {
		t.Error("Expected 0 commands after reset")
	}
	if snap.BridgeErrors != 0 {
		t.Error("Expected 0 bridge errors after reset")
	}
	if snap.FundState != "" || snap.LastSeq != 0 {
		t.Errorf("Expected empty fund gauges after reset, got %q at %d", snap.FundState, snap.LastSeq)
	}
	if snap.Rejections != 0 {
		t.Error("Expected 0 rejections after reset")
	}
	if snap.ActiveConnections != 0 {
		t.Error("Expected 0 connections after reset")
	}
}

func TestMetrics_ObserveFund(t *testing.T) {
	m := &Metrics{}

	if got := m.Snapshot().FundState; got != "" {
		t.Errorf("Expected no state before first snapshot, got %q", got)
	}

	m.ObserveFund(12, "IDLE", 5_000, 1_000_000_000_000, 3)
	m.ObserveFund(13, "TRADING", 5_100, 1_020_000_000_000, 3)

	snap := m.Snapshot()
	if snap.LastSeq != 13 || snap.FundState != "TRADING" {
		t.Errorf("Expected seq 13 in TRADING, got %d in %s", snap.LastSeq, snap.FundState)
	}
	if snap.TotalBalance != 5_100 {
		t.Errorf("Expected total balance 5100, got %d", snap.TotalBalance)
	}
	if snap.PricePerShare != 1_020_000_000_000 {
		t.Errorf("Expected price 1.02e12, got %d", snap.PricePerShare)
	}
	if snap.Holders != 3 {
		t.Errorf("Expected 3 holders, got %d", snap.Holders)
	}
}
