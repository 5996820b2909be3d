package domain

import (
	"fmt"
	"time"
)

// EpochState is the lifecycle position of the fund.
type EpochState int

const (
	// EpochIdle: capital is idle, deposits and withdrawals are open.
	EpochIdle EpochState = iota
	// EpochTrading: capital is deployed, positions may be opened and closed.
	EpochTrading
	// EpochReadyToStop: trading capital has returned, waiting for stop().
	EpochReadyToStop
	// EpochAwaitingAsyncRedemption: the yield venue redemption is in flight.
	EpochAwaitingAsyncRedemption
)

// String returns the string representation of EpochState
func (s EpochState) String() string {
	switch s {
	case EpochIdle:
		return "IDLE"
	case EpochTrading:
		return "TRADING"
	case EpochReadyToStop:
		return "READY_TO_STOP"
	case EpochAwaitingAsyncRedemption:
		return "AWAITING_ASYNC_REDEMPTION"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// IsRunning reports whether an epoch is open.
func (s EpochState) IsRunning() bool {
	return s != EpochIdle
}

// CachedNAV is the NAV frozen at an epoch boundary.
type CachedNAV struct {
	TotalBalance  int64     `json:"total_balance"`
	PricePerShare int64     `json:"price_per_share"`
	AsOf          time.Time `json:"as_of"`
}

// NAV is a live valuation of fund-controlled assets.
type NAV struct {
	Idle              int64 `json:"idle"`
	YieldPosition     int64 `json:"yield_position"`
	TradingAllocation int64 `json:"trading_allocation"`
	TotalBalance      int64 `json:"total_balance"`
}

// EpochReport records one start -> stop cycle.
type EpochReport struct {
	ID                 string    `json:"id"`
	Number             uint64    `json:"number"`
	StartedAt          time.Time `json:"started_at"`
	StoppedAt          time.Time `json:"stopped_at"`
	SettledAt          time.Time `json:"settled_at"`
	StartTotalBalance  int64     `json:"start_total_balance"`
	StartPricePerShare int64     `json:"start_price_per_share"`
	EndTotalBalance    int64     `json:"end_total_balance"`
	EndPricePerShare   int64     `json:"end_price_per_share"`
	TradingAllocated   int64     `json:"trading_allocated"`
	TradingReturned    int64     `json:"trading_returned"`
	YieldDeposited     int64     `json:"yield_deposited"`
	Harvested          int64     `json:"harvested"`
	GrossDelta         int64     `json:"gross_delta"`
	ManagementFee      int64     `json:"management_fee"`
	PerformanceFee     int64     `json:"performance_fee"`
	FeeShares          int64     `json:"fee_shares"`
	AsyncRedemption    bool      `json:"async_redemption"`
}

// Settled reports whether the epoch NAV has been finalized.
func (r *EpochReport) Settled() bool {
	return !r.SettledAt.IsZero()
}
