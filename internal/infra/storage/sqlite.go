package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"epoch_vault/internal/domain"
	"epoch_vault/internal/event"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Journal statuses that are not error codes.
const (
	StatusPending = "PENDING"
	StatusApplied = "OK"
)

// CommandRecord is one journaled event. It is written before the event is
// applied and marked with its outcome afterwards.
type CommandRecord struct {
	Seq       uint64 `gorm:"primaryKey;autoIncrement:false"`
	ID        string `gorm:"index"`
	Type      string `gorm:"index"`
	Payload   string
	Status    string `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SnapshotRecord is the fund state after applying event Seq.
type SnapshotRecord struct {
	Seq           uint64 `gorm:"primaryKey;autoIncrement:false"`
	SchemaVersion int
	State         string
	Payload       string
	World         string // venue-side state the fund snapshot depends on
	CreatedAt     time.Time
}

// EpochRecord is one epoch report, upserted as the epoch progresses.
type EpochRecord struct {
	ID        string `gorm:"primaryKey"`
	Number    uint64 `gorm:"uniqueIndex"`
	Settled   bool
	Payload   string
	UpdatedAt time.Time
}

// AppConfig is a key/value setting persisted next to the journal.
type AppConfig struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

// Storage persists the command journal, fund snapshots and epoch reports.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the SQLite database at dbPath. An empty path
// resolves to the per-user data directory.
func NewStorage(dbPath string) (*Storage, error) {
	if dbPath == "" {
		p, err := getDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
		dbPath = p
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return newStorage(db)
}

func newStorage(db *gorm.DB) (*Storage, error) {
	if err := db.AutoMigrate(&CommandRecord{}, &SnapshotRecord{}, &EpochRecord{}, &AppConfig{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Storage{db: db}, nil
}

// getDBPath resolves the database file path based on OS
func getDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "EpochVault", "data", "vault.db"), nil
}

// Close releases the database handle.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Journal Operations
// ======================================================================================

// SaveEvent journals ev as pending. It must succeed before ev is applied.
func (s *Storage) SaveEvent(ctx context.Context, ev event.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %d: %w", ev.GetSeq(), err)
	}
	rec := CommandRecord{
		Seq:     ev.GetSeq(),
		Type:    string(ev.GetType()),
		Payload: string(payload),
		Status:  StatusPending,
	}
	if c, ok := ev.(*event.Command); ok {
		rec.ID = c.ID
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

// MarkResult records the outcome code of a journaled event.
func (s *Storage) MarkResult(ctx context.Context, seq uint64, status string) error {
	res := s.db.WithContext(ctx).Model(&CommandRecord{}).Where("seq = ?", seq).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("mark result: no journal entry %d", seq)
	}
	return nil
}

// LoadEvents returns journal entries after seq, oldest first.
func (s *Storage) LoadEvents(ctx context.Context, afterSeq uint64) ([]CommandRecord, error) {
	var recs []CommandRecord
	err := s.db.WithContext(ctx).Where("seq > ?", afterSeq).Order("seq asc").Find(&recs).Error
	return recs, err
}

// LastSeq returns the highest journaled sequence, 0 for an empty journal.
func (s *Storage) LastSeq(ctx context.Context) (uint64, error) {
	var rec CommandRecord
	err := s.db.WithContext(ctx).Order("seq desc").Limit(1).Find(&rec).Error
	return rec.Seq, err
}

// DecodeEvent rebuilds the event stored in rec.
func DecodeEvent(rec CommandRecord) (event.Event, error) {
	var ev event.Event
	switch t := event.Type(rec.Type); {
	case t == event.TypeRedeemSettled:
		ev = &event.RedeemSettledEvent{}
	case event.IsSimulation(t):
		ev = &event.SimulationEvent{}
	default:
		ev = &event.Command{}
	}
	if err := json.Unmarshal([]byte(rec.Payload), ev); err != nil {
		return nil, fmt.Errorf("decode event %d: %w", rec.Seq, err)
	}
	return ev, nil
}

// ======================================================================================
// Snapshot Operations
// ======================================================================================

// SaveSnapshot stores the fund state reached after snap.Seq together with
// the opaque world state of the venues.
func (s *Storage) SaveSnapshot(ctx context.Context, snap domain.FundSnapshot, world []byte) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	rec := SnapshotRecord{
		Seq:           snap.Seq,
		SchemaVersion: snap.SchemaVersion,
		State:         snap.State.String(),
		Payload:       string(payload),
		World:         string(world),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
}

// LatestSnapshot returns the newest snapshot upgraded to the current schema
// and its world state.
func (s *Storage) LatestSnapshot(ctx context.Context) (domain.FundSnapshot, []byte, error) {
	var rec SnapshotRecord
	err := s.db.WithContext(ctx).Order("seq desc").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.FundSnapshot{}, nil, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return domain.FundSnapshot{}, nil, err
	}
	snap, err := MigrateSnapshot([]byte(rec.Payload))
	if err != nil {
		return domain.FundSnapshot{}, nil, err
	}
	return snap, []byte(rec.World), nil
}

// PruneSnapshots deletes all but the newest keep snapshots.
func (s *Storage) PruneSnapshots(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}
	var cutoff SnapshotRecord
	err := s.db.WithContext(ctx).Order("seq desc").Offset(keep - 1).Limit(1).Find(&cutoff).Error
	if err != nil || cutoff.Seq == 0 {
		return 0, err
	}
	res := s.db.WithContext(ctx).Where("seq < ?", cutoff.Seq).Delete(&SnapshotRecord{})
	return res.RowsAffected, res.Error
}

// MigrateSnapshots rewrites every stored snapshot older than the current
// schema version and returns how many were upgraded.
func (s *Storage) MigrateSnapshots(ctx context.Context) (int, error) {
	var recs []SnapshotRecord
	if err := s.db.WithContext(ctx).Where("schema_version < ?", domain.SnapshotSchemaVersion).Find(&recs).Error; err != nil {
		return 0, err
	}
	for _, rec := range recs {
		snap, err := MigrateSnapshot([]byte(rec.Payload))
		if err != nil {
			return 0, fmt.Errorf("snapshot %d: %w", rec.Seq, err)
		}
		snap.Seq = rec.Seq
		if err := s.SaveSnapshot(ctx, snap, []byte(rec.World)); err != nil {
			return 0, err
		}
	}
	if len(recs) > 0 {
		if err := s.SaveConfig("snapshot_schema", fmt.Sprint(domain.SnapshotSchemaVersion)); err != nil {
			return 0, err
		}
	}
	return len(recs), nil
}

// ======================================================================================
// Epoch Operations
// ======================================================================================

// SaveEpoch upserts an epoch report.
func (s *Storage) SaveEpoch(ctx context.Context, r domain.EpochReport) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal epoch: %w", err)
	}
	rec := EpochRecord{
		ID:      r.ID,
		Number:  r.Number,
		Settled: r.Settled(),
		Payload: string(payload),
	}
	return s.db.WithContext(ctx).Save(&rec).Error
}

// Epochs returns settled epoch reports, oldest first.
func (s *Storage) Epochs(ctx context.Context) ([]domain.EpochReport, error) {
	var recs []EpochRecord
	if err := s.db.WithContext(ctx).Where("settled = ?", true).Order("number asc").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]domain.EpochReport, 0, len(recs))
	for _, rec := range recs {
		var r domain.EpochReport
		if err := json.Unmarshal([]byte(rec.Payload), &r); err != nil {
			return nil, fmt.Errorf("decode epoch %d: %w", rec.Number, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// ======================================================================================
// Config Operations
// ======================================================================================

// SaveConfig saves a setting
func (s *Storage) SaveConfig(key, value string) error {
	config := AppConfig{
		Key:   key,
		Value: value,
	}
	return s.db.Save(&config).Error
}

// LoadConfigMap loads all settings as a map
func (s *Storage) LoadConfigMap() (map[string]string, error) {
	var configs []AppConfig
	if err := s.db.Find(&configs).Error; err != nil {
		return nil, err
	}

	result := make(map[string]string)
	for _, cfg := range configs {
		result[cfg.Key] = cfg.Value
	}
	return result, nil
}
