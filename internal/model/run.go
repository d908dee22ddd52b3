package model

import (
	"time"

	"main/internal/model/enum"
)

// Counts aggregates per-source record outcomes within one run.
type Counts struct {
	Extracted  int64
	Normalized int64
	Loaded     int64
	Skipped    int64
	Failed     int64
	Drifts     int64
}

// Add accumulates another batch's counts.
func (c *Counts) Add(other Counts) {
	c.Extracted += other.Extracted
	c.Normalized += other.Normalized
	c.Loaded += other.Loaded
	c.Skipped += other.Skipped
	c.Failed += other.Failed
	c.Drifts += other.Drifts
}

// Run is one execution of the full multi-source orchestration.
// Finalized exactly once; never mutated afterwards.
type Run struct {
	ID           uint           `gorm:"primaryKey"`
	RunID        string         `gorm:"size:36;uniqueIndex"`
	Status       enum.RunStatus `gorm:"size:16;index"`
	StartedAt    time.Time      `gorm:"index"`
	CompletedAt  *time.Time
	Duration     time.Duration
	ErrorSummary string `gorm:"type:text"`
}

func (Run) TableName() string { return "etl_runs" }

// RunSource is the outcome of one source within a run. Append-only, keyed
// by (run_id, source_id).
type RunSource struct {
	ID         uint            `gorm:"primaryKey"`
	RunID      string          `gorm:"size:36;uniqueIndex:uq_run_source,priority:1"`
	SourceID   string          `gorm:"size:64;uniqueIndex:uq_run_source,priority:2"`
	SourceType enum.SourceType `gorm:"size:16"`
	Status     enum.RunStatus  `gorm:"size:16"`
	Counts     Counts          `gorm:"embedded;embeddedPrefix:records_"`
	Error      string          `gorm:"type:text"`
	RecordedAt time.Time
}

func (RunSource) TableName() string { return "etl_run_sources" }
