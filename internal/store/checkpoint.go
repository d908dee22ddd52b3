package store

import (
	"context"
	"time"

	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CheckpointStore persists one resume cursor per source.
type CheckpointStore struct {
	db *gorm.DB
}

// Get returns the source's cursor; a zero cursor on first run.
func (c *CheckpointStore) Get(ctx context.Context, sourceID string) (model.Cursor, error) {
	var cp model.Checkpoint
	err := c.db.WithContext(ctx).Where("source_id = ?", sourceID).First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Cursor{}, nil
	}
	if err != nil {
		return model.Cursor{}, errors.Wrap(err, "get checkpoint "+sourceID)
	}
	return cp.Cursor(), nil
}

// Status returns the source's recorded run state.
func (c *CheckpointStore) Status(ctx context.Context, sourceID string) (enum.CheckpointStatus, error) {
	var cp model.Checkpoint
	err := c.db.WithContext(ctx).Where("source_id = ?", sourceID).First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return enum.CheckpointStatusIdle, nil
	}
	if err != nil {
		return "", errors.Wrap(err, "get checkpoint status "+sourceID)
	}
	return cp.Status, nil
}

// Advance moves the cursor forward. Called strictly after the batch's loader
// transaction commits. Advancing to the current cursor is a no-op; moving
// backwards is rejected.
func (c *CheckpointStore) Advance(ctx context.Context, sourceID string, sourceType enum.SourceType, cursor model.Cursor) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cp model.Checkpoint
		err := tx.Where("source_id = ?", sourceID).First(&cp).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			now := time.Now().UTC()
			cp = model.Checkpoint{
				SourceID:        sourceID,
				SourceType:      sourceType,
				LastID:          cursor.LastID,
				Offset:          cursor.Offset,
				Status:          enum.CheckpointStatusRunning,
				LastProcessedAt: &now,
			}
			return tx.Create(&cp).Error
		case err != nil:
			return errors.Wrap(err, "load checkpoint "+sourceID)
		}

		current := cp.Cursor()
		if cursor.Equal(current) {
			return nil
		}
		if cursor.Before(current) {
			return errors.Wrap(exception.ErrCursorRegression, sourceID)
		}

		now := time.Now().UTC()
		return tx.Model(&cp).Updates(map[string]any{
			"last_id":           cursor.LastID,
			"offset":            cursor.Offset,
			"last_processed_at": now,
		}).Error
	})
}

// MarkRunning flags the source as mid-run.
func (c *CheckpointStore) MarkRunning(ctx context.Context, sourceID string, sourceType enum.SourceType) error {
	return c.setStatus(ctx, sourceID, sourceType, enum.CheckpointStatusRunning, "")
}

// MarkIdle flags the source as done.
func (c *CheckpointStore) MarkIdle(ctx context.Context, sourceID string, sourceType enum.SourceType) error {
	return c.setStatus(ctx, sourceID, sourceType, enum.CheckpointStatusIdle, "")
}

// MarkFailed records the source failure for the next run to see.
func (c *CheckpointStore) MarkFailed(ctx context.Context, sourceID string, sourceType enum.SourceType, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return c.setStatus(ctx, sourceID, sourceType, enum.CheckpointStatusFailed, msg)
}

func (c *CheckpointStore) setStatus(ctx context.Context, sourceID string, sourceType enum.SourceType, status enum.CheckpointStatus, lastError string) error {
	cp := model.Checkpoint{
		SourceID:   sourceID,
		SourceType: sourceType,
		Status:     status,
		LastError:  lastError,
	}
	return c.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "last_error", "updated_at"}),
		}).
		Create(&cp).Error
}

// Reset clears the cursor so the source is reprocessed from scratch.
func (c *CheckpointStore) Reset(ctx context.Context, sourceID string) error {
	res := c.db.WithContext(ctx).Model(&model.Checkpoint{}).
		Where("source_id = ?", sourceID).
		Updates(map[string]any{
			"last_id":           "",
			"offset":            0,
			"status":            enum.CheckpointStatusIdle,
			"last_error":        "",
			"last_processed_at": nil,
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "reset checkpoint "+sourceID)
	}
	if res.RowsAffected > 0 {
		logs.Infof("checkpoint reset for %s", sourceID)
	}
	return nil
}
