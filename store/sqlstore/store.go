// Package sqlstore persists monitoring records in a SQLite database through
// gorm.
//
// Forwarding entries are upserted on (device, mac, vlan) so a table always
// holds the last known location of every address. Bandwidth samples and
// uplink statuses are appended and trimmed by PurgeBefore. Identities are
// upserted per device. Counter-derived values are stored as decimal text
// so the whole uint64 range survives. Times are stored in UTC so that the text comparisons
// SQLite performs on them order correctly.
package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vpbank/snmp_monitor/models"
)

const batchSize = 500

// ─────────────────────────────────────────────────────────────────────────────
// Rows
// ─────────────────────────────────────────────────────────────────────────────

type forwardingRow struct {
	ID        uint      `gorm:"primaryKey"`
	Device    string    `gorm:"uniqueIndex:idx_fdb_key;not null"`
	MAC       string    `gorm:"uniqueIndex:idx_fdb_key;not null"`
	VLAN      int       `gorm:"uniqueIndex:idx_fdb_key"`
	IfIndex   int       `gorm:"not null"`
	IfName    string
	PVID      int
	FirstSeen time.Time
	LastSeen  time.Time `gorm:"index"`
}

func (forwardingRow) TableName() string { return "forwarding_entries" }

type sampleRow struct {
	ID              uint      `gorm:"primaryKey"`
	Device          string    `gorm:"index:idx_sample_dev;not null"`
	IfIndex         int       `gorm:"index:idx_sample_dev"`
	IfName          string
	Timestamp       time.Time `gorm:"index"`
	InBps           decimal.Decimal `gorm:"type:text"`
	OutBps          decimal.Decimal `gorm:"type:text"`
	IntervalSeconds float64
	InDelta         decimal.Decimal `gorm:"type:text"`
	OutDelta        decimal.Decimal `gorm:"type:text"`
	Width           int
}

func (sampleRow) TableName() string { return "bandwidth_samples" }

type identityRow struct {
	Device       string `gorm:"primaryKey"`
	IP           string
	Vendor       string `gorm:"index"`
	Model        string
	DeviceType   string
	Fingerprint  string
	IdentifiedAt time.Time
	Body         string // JSON encoded models.DeviceIdentity
}

func (identityRow) TableName() string { return "device_identities" }

type uplinkRow struct {
	ID        uint   `gorm:"primaryKey"`
	Device    string `gorm:"index:idx_uplink_dev;not null"`
	IfIndex   int    `gorm:"index:idx_uplink_dev"`
	IfName    string
	Oper      string
	RxDBm     *float64
	TxDBm     *float64
	Severity  string    `gorm:"index"`
	Alerts    string
	CheckedAt time.Time `gorm:"index"`
}

func (uplinkRow) TableName() string { return "uplink_statuses" }

// ─────────────────────────────────────────────────────────────────────────────
// Store
// ─────────────────────────────────────────────────────────────────────────────

// Store is a gorm-backed record store. It is safe for concurrent use.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open opens (creating when needed) the database at path and migrates the
// schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlstore: path is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", path, err)
	}
	// SQLite allows a single writer; serialise through one connection.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&forwardingRow{}, &sampleRow{}, &identityRow{}, &uplinkRow{}); err != nil {
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	logger.Info("sqlstore: opened", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("sqlstore: close: %w", err)
	}
	return sqlDB.Close()
}

// SaveForwarding upserts entries keyed by (device, mac, vlan). The interface
// and last-seen time follow the newest observation; the first-seen time is
// kept.
func (s *Store) SaveForwarding(ctx context.Context, entries []models.ForwardingEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]forwardingRow, 0, len(entries))
	idx := make(map[[3]string]int, len(entries))
	for _, e := range entries {
		r := forwardingRow{
			Device:    e.Device,
			MAC:       e.MAC,
			VLAN:      e.VLAN,
			IfIndex:   e.IfIndex,
			IfName:    e.IfName,
			PVID:      e.PVID,
			FirstSeen: e.ObservedAt.UTC(),
			LastSeen:  e.ObservedAt.UTC(),
		}
		// One statement may not touch the same conflict key twice.
		key := [3]string{e.Device, e.MAC, strconv.Itoa(e.VLAN)}
		if i, ok := idx[key]; ok {
			r.FirstSeen = rows[i].FirstSeen
			rows[i] = r
			continue
		}
		idx[key] = len(rows)
		rows = append(rows, r)
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device"}, {Name: "mac"}, {Name: "vlan"}},
		DoUpdates: clause.AssignmentColumns([]string{"if_index", "if_name", "pvid", "last_seen"}),
	}).CreateInBatches(rows, batchSize).Error
	if err != nil {
		return fmt.Errorf("sqlstore: save forwarding: %w", err)
	}
	s.logger.Debug("sqlstore: forwarding saved", "rows", len(rows))
	return nil
}

// Forwarding returns the stored entries of device ordered by VLAN and MAC.
func (s *Store) Forwarding(ctx context.Context, device string) ([]models.ForwardingEntry, error) {
	var rows []forwardingRow
	err := s.db.WithContext(ctx).
		Where("device = ?", device).
		Order("vlan, mac").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sqlstore: forwarding %s: %w", device, err)
	}
	out := make([]models.ForwardingEntry, len(rows))
	for i, r := range rows {
		out[i] = models.ForwardingEntry{
			Device:     r.Device,
			VLAN:       r.VLAN,
			IfIndex:    r.IfIndex,
			IfName:     r.IfName,
			MAC:        r.MAC,
			PVID:       r.PVID,
			ObservedAt: r.LastSeen,
		}
	}
	return out, nil
}

// AppendSamples inserts bandwidth samples.
func (s *Store) AppendSamples(ctx context.Context, samples []models.BandwidthSample) error {
	if len(samples) == 0 {
		return nil
	}
	rows := make([]sampleRow, len(samples))
	for i, b := range samples {
		rows[i] = sampleRow{
			Device:          b.Device,
			IfIndex:         b.IfIndex,
			IfName:          b.IfName,
			Timestamp:       b.Timestamp.UTC(),
			InBps:           fromUint64(b.InBps),
			OutBps:          fromUint64(b.OutBps),
			IntervalSeconds: b.IntervalSeconds,
			InDelta:         fromUint64(b.InDelta),
			OutDelta:        fromUint64(b.OutDelta),
			Width:           b.Width,
		}
	}
	if err := s.db.WithContext(ctx).CreateInBatches(rows, batchSize).Error; err != nil {
		return fmt.Errorf("sqlstore: append samples: %w", err)
	}
	return nil
}

// Samples returns the samples of one interface in time order.
func (s *Store) Samples(ctx context.Context, device string, ifIndex int) ([]models.BandwidthSample, error) {
	var rows []sampleRow
	err := s.db.WithContext(ctx).
		Where("device = ? AND if_index = ?", device, ifIndex).
		Order("timestamp").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sqlstore: samples %s/%d: %w", device, ifIndex, err)
	}
	out := make([]models.BandwidthSample, len(rows))
	for i, r := range rows {
		out[i] = models.BandwidthSample{
			Device:          r.Device,
			IfIndex:         r.IfIndex,
			IfName:          r.IfName,
			Timestamp:       r.Timestamp,
			InBps:           toUint64(r.InBps),
			OutBps:          toUint64(r.OutBps),
			IntervalSeconds: r.IntervalSeconds,
			InDelta:         toUint64(r.InDelta),
			OutDelta:        toUint64(r.OutDelta),
			Width:           r.Width,
		}
	}
	return out, nil
}

// SaveIdentity upserts the identity of one device.
func (s *Store) SaveIdentity(ctx context.Context, id models.DeviceIdentity) error {
	body, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("sqlstore: encode identity %s: %w", id.Device, err)
	}
	row := identityRow{
		Device:       id.Device,
		IP:           id.IP,
		Vendor:       id.Vendor,
		Model:        id.Model,
		DeviceType:   id.DeviceType,
		Fingerprint:  strconv.FormatUint(id.Fingerprint, 16),
		IdentifiedAt: id.IdentifiedAt.UTC(),
		Body:         string(body),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("sqlstore: save identity %s: %w", id.Device, err)
	}
	return nil
}

// Identity loads the stored identity of device. ok is false when none is
// stored.
func (s *Store) Identity(ctx context.Context, device string) (id models.DeviceIdentity, ok bool, err error) {
	var rows []identityRow
	if err := s.db.WithContext(ctx).Where("device = ?", device).Limit(1).Find(&rows).Error; err != nil {
		return id, false, fmt.Errorf("sqlstore: identity %s: %w", device, err)
	}
	if len(rows) == 0 {
		return id, false, nil
	}
	if err := json.Unmarshal([]byte(rows[0].Body), &id); err != nil {
		return id, false, fmt.Errorf("sqlstore: decode identity %s: %w", device, err)
	}
	return id, true, nil
}

// SaveUplinks appends the uplink statuses of one cycle.
func (s *Store) SaveUplinks(ctx context.Context, statuses []models.UplinkStatus) error {
	if len(statuses) == 0 {
		return nil
	}
	rows := make([]uplinkRow, len(statuses))
	for i, st := range statuses {
		alerts, _ := json.Marshal(st.Alerts)
		rows[i] = uplinkRow{
			Device:    st.Device,
			IfIndex:   st.IfIndex,
			IfName:    st.IfName,
			Oper:      st.Oper.String(),
			RxDBm:     st.RxDBm,
			TxDBm:     st.TxDBm,
			Severity:  st.Severity.String(),
			Alerts:    string(alerts),
			CheckedAt: st.CheckedAt.UTC(),
		}
	}
	if err := s.db.WithContext(ctx).CreateInBatches(rows, batchSize).Error; err != nil {
		return fmt.Errorf("sqlstore: save uplinks: %w", err)
	}
	return nil
}

// CountUplinks returns the number of stored statuses at or above severity.
func (s *Store) CountUplinks(ctx context.Context, atLeast models.Severity) (int64, error) {
	var names []string
	for sev := atLeast; sev <= models.Critical; sev++ {
		names = append(names, sev.String())
	}
	var n int64
	err := s.db.WithContext(ctx).Model(&uplinkRow{}).Where("severity IN ?", names).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("sqlstore: count uplinks: %w", err)
	}
	return n, nil
}

// PurgeBefore deletes samples and uplink statuses recorded before t, and
// forwarding entries last seen before t. It returns the number of rows
// removed.
func (s *Store) PurgeBefore(ctx context.Context, t time.Time) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, q := range []struct {
			model  any
			column string
		}{
			{&sampleRow{}, "timestamp"},
			{&uplinkRow{}, "checked_at"},
			{&forwardingRow{}, "last_seen"},
		} {
			res := tx.Where(q.column+" < ?", t.UTC()).Delete(q.model)
			if res.Error != nil {
				return res.Error
			}
			total += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sqlstore: purge: %w", err)
	}
	if total > 0 {
		s.logger.Info("sqlstore: purged", "rows", total, "before", t.Format(time.RFC3339))
	}
	return total, nil
}

// Rates and deltas span the full uint64 range, beyond SQLite's signed
// INTEGER, so they are stored as decimal text.
func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// toUint64 reads back a value written by fromUint64; anything outside the
// uint64 range reads as 0.
func toUint64(d decimal.Decimal) uint64 {
	b := d.BigInt()
	if !b.IsUint64() {
		return 0
	}
	return b.Uint64()
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
