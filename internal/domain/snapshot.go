package domain

import "time"

// SnapshotSchemaVersion is the current persisted schema version.
// v1 stored fees as whole percents; v2 stores basis points.
const SnapshotSchemaVersion = 2

// FundSnapshot is the persisted state of one fund instance.
type FundSnapshot struct {
	SchemaVersion     int              `json:"schema_version"`
	Seq               uint64           `json:"seq"`
	Config            FundConfig       `json:"config"`
	State             EpochState       `json:"state"`
	Cached            CachedNAV        `json:"cached"`
	Holders           map[string]int64 `json:"holders"`
	TotalSupply       int64            `json:"total_supply"`
	TradingAllocation int64            `json:"trading_allocation"`
	PendingRedemption int64            `json:"pending_redemption"`
	EpochCount        uint64           `json:"epoch_count"`
	CurrentEpoch      *EpochReport     `json:"current_epoch,omitempty"`
	YieldAdapter      string           `json:"yield_adapter"`
	TradingAdapter    string           `json:"trading_adapter"`
	TotalBalance      int64            `json:"total_balance"`
	PricePerShare     int64            `json:"price_per_share"`
	UpdatedAt         time.Time        `json:"updated_at"`
}
