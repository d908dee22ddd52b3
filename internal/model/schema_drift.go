package model

import (
	"time"

	"main/internal/model/enum"
)

// SchemaDrift is one detected mismatch between the expected and observed
// field shape of a source. Append-only.
type SchemaDrift struct {
	ID          uint               `gorm:"primaryKey"`
	SourceID    string             `gorm:"size:64;index"`
	SourceType  enum.SourceType    `gorm:"size:16;index"`
	FieldName   string             `gorm:"size:255"`
	TargetField string             `gorm:"size:255"`
	Kind        enum.DriftKind     `gorm:"size:32"`
	Severity    enum.DriftSeverity `gorm:"size:16"`
	Confidence  float64
	ActualType  string             `gorm:"size:100"`
	SampleValue string             `gorm:"size:200"`
	DetectedAt  time.Time          `gorm:"index"`
	Resolved    bool
	ResolvedAt  *time.Time
}

func (SchemaDrift) TableName() string { return "schema_drift" }
