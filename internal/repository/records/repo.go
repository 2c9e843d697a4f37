package records

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kailas-cloud/aiorch/internal/domain"
)

// DefaultListLimit caps ListRecent when no limit is given.
const DefaultListLimit = 50

type recordRow struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Fingerprint  string    `gorm:"index;size:64"`
	UsageType    string    `gorm:"index:idx_usage_created;size:64;not null"`
	ConfigID     string    `gorm:"size:128"`
	Provider     string    `gorm:"size:64"`
	Model        string    `gorm:"size:128"`
	Attempt      int
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	Outcome      string `gorm:"size:16;not null"`
	Error        string `gorm:"type:text"`
	CacheHit     bool
	CacheTier    string    `gorm:"size:4"`
	CreatedAt    time.Time `gorm:"index:idx_usage_created"`
}

func (recordRow) TableName() string { return "execution_records" }

// Repo appends execution records to a SQL table. It satisfies domain.RecordWriter.
type Repo struct {
	db *gorm.DB
}

// New creates a record repository.
func New(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Migrate creates or updates the records table.
func (r *Repo) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&recordRow{}); err != nil {
		return fmt.Errorf("migrate execution_records: %w", err)
	}
	return nil
}

// Append inserts rec. Records are never updated.
func (r *Repo) Append(ctx context.Context, rec domain.ExecutionRecord) error {
	row := toRow(rec)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert execution record %s: %w", rec.ID, err)
	}
	return nil
}

// ListRecent returns the newest records first. An empty usageType lists all.
func (r *Repo) ListRecent(ctx context.Context, usageType string, limit int) ([]domain.ExecutionRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	q := r.db.WithContext(ctx).Order("created_at DESC").Order("attempt DESC").Limit(limit)
	if usageType != "" {
		q = q.Where("usage_type = ?", usageType)
	}

	var rows []recordRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list execution records: %w", err)
	}

	out := make([]domain.ExecutionRecord, 0, len(rows))
	for i := range rows {
		out = append(out, fromRow(&rows[i]))
	}
	return out, nil
}

// ByFingerprint returns every attempt recorded for one request, oldest first.
func (r *Repo) ByFingerprint(ctx context.Context, fingerprint string) ([]domain.ExecutionRecord, error) {
	var rows []recordRow
	err := r.db.WithContext(ctx).
		Where("fingerprint = ?", fingerprint).
		Order("created_at ASC").Order("attempt ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("records by fingerprint: %w", err)
	}

	out := make([]domain.ExecutionRecord, 0, len(rows))
	for i := range rows {
		out = append(out, fromRow(&rows[i]))
	}
	return out, nil
}

func toRow(rec domain.ExecutionRecord) recordRow {
	return recordRow{
		ID:           rec.ID,
		Fingerprint:  rec.Fingerprint,
		UsageType:    rec.UsageType,
		ConfigID:     rec.ConfigID,
		Provider:     rec.Provider,
		Model:        rec.Model,
		Attempt:      rec.Attempt,
		InputTokens:  rec.InputTokens,
		OutputTokens: rec.OutputTokens,
		LatencyMs:    rec.Latency.Milliseconds(),
		Success:      rec.Success,
		Outcome:      string(rec.Outcome),
		Error:        rec.Error,
		CacheHit:     rec.CacheHit,
		CacheTier:    string(rec.CacheTier),
		CreatedAt:    rec.CreatedAt,
	}
}

func fromRow(row *recordRow) domain.ExecutionRecord {
	return domain.ExecutionRecord{
		ID:           row.ID,
		Fingerprint:  row.Fingerprint,
		UsageType:    row.UsageType,
		ConfigID:     row.ConfigID,
		Provider:     row.Provider,
		Model:        row.Model,
		Attempt:      row.Attempt,
		InputTokens:  row.InputTokens,
		OutputTokens: row.OutputTokens,
		Latency:      time.Duration(row.LatencyMs) * time.Millisecond,
		Success:      row.Success,
		Outcome:      domain.Outcome(row.Outcome),
		Error:        row.Error,
		CacheHit:     row.CacheHit,
		CacheTier:    domain.Tier(row.CacheTier),
		CreatedAt:    row.CreatedAt,
	}
}
