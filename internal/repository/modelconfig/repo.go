package modelconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kailas-cloud/aiorch/internal/domain"
)

type configRow struct {
	ID          string `gorm:"primaryKey;size:128"`
	Provider    string `gorm:"size:64;not null"`
	Model       string `gorm:"size:128;not null"`
	APIKey      string `gorm:"size:512"`
	BaseURL     string `gorm:"size:512"`
	Temperature *float64
	TopP        *float64
	MaxTokens   int
	Stop        string `gorm:"type:text"` // JSON array
	UsageType   string `gorm:"index:idx_usage_active;size:64;not null"`
	Priority    int
	IsPrimary   bool
	IsActive    bool `gorm:"index:idx_usage_active"`
	TimeoutMs   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (configRow) TableName() string { return "model_configs" }

// Repo reads model configs from a SQL table. It satisfies router.ConfigSource.
type Repo struct {
	db *gorm.DB
}

// New creates a model config repository.
func New(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Migrate creates or updates the model_configs table.
func (r *Repo) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&configRow{}); err != nil {
		return fmt.Errorf("migrate model_configs: %w", err)
	}
	return nil
}

// ActiveConfigs returns active configs for usageType, primary first then by priority.
func (r *Repo) ActiveConfigs(ctx context.Context, usageType string) ([]domain.ModelConfig, error) {
	var rows []configRow
	err := r.db.WithContext(ctx).
		Where("usage_type = ? AND is_active = ?", usageType, true).
		Order("is_primary DESC").Order("priority ASC").Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load model configs for %s: %w", usageType, err)
	}

	out := make([]domain.ModelConfig, 0, len(rows))
	for i := range rows {
		cfg, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

// Upsert inserts cfg or replaces the row with the same id. Used by operator tooling.
func (r *Repo) Upsert(ctx context.Context, cfg domain.ModelConfig) error {
	row, err := toRow(cfg)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert model config %s: %w", cfg.ID, err)
	}
	return nil
}

func toRow(cfg domain.ModelConfig) (configRow, error) {
	var stop string
	if len(cfg.Defaults.Stop) > 0 {
		data, err := json.Marshal(cfg.Defaults.Stop)
		if err != nil {
			return configRow{}, fmt.Errorf("encode stop sequences: %w", err)
		}
		stop = string(data)
	}
	return configRow{
		ID:          cfg.ID,
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Temperature: cfg.Defaults.Temperature,
		TopP:        cfg.Defaults.TopP,
		MaxTokens:   cfg.Defaults.MaxTokens,
		Stop:        stop,
		UsageType:   cfg.UsageType,
		Priority:    cfg.Priority,
		IsPrimary:   cfg.Primary,
		IsActive:    cfg.Active,
		TimeoutMs:   cfg.Timeout.Milliseconds(),
	}, nil
}

func fromRow(row *configRow) (domain.ModelConfig, error) {
	var stop []string
	if row.Stop != "" {
		if err := json.Unmarshal([]byte(row.Stop), &stop); err != nil {
			return domain.ModelConfig{}, fmt.Errorf("decode stop sequences of %s: %w", row.ID, err)
		}
	}
	return domain.ModelConfig{
		ID:       row.ID,
		Provider: row.Provider,
		Model:    row.Model,
		APIKey:   row.APIKey,
		BaseURL:  row.BaseURL,
		Defaults: domain.Sampling{
			Temperature: row.Temperature,
			TopP:        row.TopP,
			MaxTokens:   row.MaxTokens,
			Stop:        stop,
		},
		UsageType: row.UsageType,
		Priority:  row.Priority,
		Primary:   row.IsPrimary,
		Active:    row.IsActive,
		Timeout:   time.Duration(row.TimeoutMs) * time.Millisecond,
	}, nil
}
