package storage

import (
	"encoding/json"
	"fmt"

	"epoch_vault/internal/domain"
)

// fundConfigV1 is the v1 config layout: fees and the trading skim were whole
// percents.
type fundConfigV1 struct {
	domain.FundConfig
	ManagementFee     int64 `json:"management_fee"`
	PerformanceFee    int64 `json:"performance_fee"`
	TradingPercentage int64 `json:"trading_percentage"`
}

type snapshotV1 struct {
	domain.FundSnapshot
	Config fundConfigV1 `json:"config"`
}

// MigrateSnapshot decodes a stored snapshot of any known schema version and
// upgrades it to domain.SnapshotSchemaVersion.
func MigrateSnapshot(payload []byte) (domain.FundSnapshot, error) {
	var header struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(payload, &header); err != nil {
		return domain.FundSnapshot{}, fmt.Errorf("decode snapshot header: %w", err)
	}

	switch header.SchemaVersion {
	case domain.SnapshotSchemaVersion:
		var snap domain.FundSnapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return domain.FundSnapshot{}, fmt.Errorf("decode snapshot: %w", err)
		}
		return snap, nil
	case 0, 1:
		return migrateV1(payload)
	default:
		return domain.FundSnapshot{}, fmt.Errorf("unknown snapshot schema version %d", header.SchemaVersion)
	}
}

func migrateV1(payload []byte) (domain.FundSnapshot, error) {
	var old snapshotV1
	if err := json.Unmarshal(payload, &old); err != nil {
		return domain.FundSnapshot{}, fmt.Errorf("decode v1 snapshot: %w", err)
	}

	cfg := old.Config.FundConfig
	cfg.ManagementFeeBps = old.Config.ManagementFee * 100
	cfg.PerformanceFeeBps = old.Config.PerformanceFee * 100
	cfg.TradingSkimBps = old.Config.TradingPercentage * 100
	if cfg.FeeMode == "" {
		cfg.FeeMode = domain.FeeModeShares
	}
	if err := domain.ValidateFees(cfg.ManagementFeeBps, cfg.PerformanceFeeBps); err != nil {
		return domain.FundSnapshot{}, fmt.Errorf("v1 snapshot fees: %w", err)
	}

	snap := old.FundSnapshot
	snap.Config = cfg
	snap.SchemaVersion = domain.SnapshotSchemaVersion

	// v1 kept no epoch reports; an open epoch gets one rebuilt from the
	// NAV cached at its start.
	if snap.State.IsRunning() && snap.CurrentEpoch == nil {
		if snap.EpochCount == 0 {
			snap.EpochCount = 1
		}
		snap.CurrentEpoch = &domain.EpochReport{
			ID:                 fmt.Sprintf("v1-epoch-%d", snap.EpochCount),
			Number:             snap.EpochCount,
			StartedAt:          snap.Cached.AsOf,
			StartTotalBalance:  snap.Cached.TotalBalance,
			StartPricePerShare: snap.Cached.PricePerShare,
			TradingAllocated:   snap.TradingAllocation,
			AsyncRedemption:    snap.State == domain.EpochAwaitingAsyncRedemption,
		}
	}
	return snap, nil
}
