package store

import (
	"context"
	"time"

	"main/internal/model"
	"main/internal/model/enum"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"
)

// DriftLog is the append-only schema drift record.
type DriftLog struct {
	db *gorm.DB
}

// Append records detected drift events.
func (d *DriftLog) Append(ctx context.Context, drifts []model.SchemaDrift) error {
	if len(drifts) == 0 {
		return nil
	}
	if err := d.db.WithContext(ctx).Create(&drifts).Error; err != nil {
		return errors.Wrap(err, "append drift events")
	}
	return nil
}

// Unresolved lists open drifts, newest first, optionally per source type.
func (d *DriftLog) Unresolved(ctx context.Context, sourceType enum.SourceType) ([]model.SchemaDrift, error) {
	query := d.db.WithContext(ctx).Where("resolved = ?", false)
	if sourceType.IsAvailable() {
		query = query.Where("source_type = ?", sourceType)
	}
	var drifts []model.SchemaDrift
	if err := query.Order("detected_at DESC").Find(&drifts).Error; err != nil {
		return nil, errors.Wrap(err, "list unresolved drifts")
	}
	return drifts, nil
}

// Resolve closes one drift record.
func (d *DriftLog) Resolve(ctx context.Context, id uint) error {
	now := time.Now().UTC()
	res := d.db.WithContext(ctx).Model(&model.SchemaDrift{}).
		Where("id = ?", id).
		Updates(map[string]any{"resolved": true, "resolved_at": now})
	if res.Error != nil {
		return errors.Wrap(res.Error, "resolve drift")
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountBetween counts drift events detected inside the window.
func (d *DriftLog) CountBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&model.SchemaDrift{}).
		Where("detected_at >= ? AND detected_at < ?", from, to).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "count drift events")
	}
	return count, nil
}
