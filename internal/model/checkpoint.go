package model

import (
	"time"

	"main/internal/model/enum"
)

// Checkpoint is the durable resume cursor for one source. Advanced strictly
// after the corresponding batch commits, so a crash mid-batch resumes from
// the prior cursor.
type Checkpoint struct {
	ID              uint                  `gorm:"primaryKey"`
	SourceID        string                `gorm:"size:64;uniqueIndex"`
	SourceType      enum.SourceType       `gorm:"size:16"`
	LastID          string                `gorm:"size:255"`
	Offset          int64
	Status          enum.CheckpointStatus `gorm:"size:16"`
	LastError       string                `gorm:"type:text"`
	LastProcessedAt *time.Time
	UpdatedAt       time.Time
}

func (Checkpoint) TableName() string { return "etl_checkpoints" }

// Cursor returns the checkpoint position as a cursor value.
func (c Checkpoint) Cursor() Cursor {
	return Cursor{LastID: c.LastID, Offset: c.Offset}
}
