package model

import (
	"time"

	"main/internal/model/enum"

	"github.com/yanun0323/decimal"
)

// UnifiedRecord is the normalized row shared by every source. The natural key
// is (source_type, source_record_id); re-ingestion updates fields in place.
type UnifiedRecord struct {
	ID             uint            `gorm:"primaryKey"`
	SourceType     enum.SourceType `gorm:"size:16;uniqueIndex:uq_unified_source,priority:1"`
	SourceRecordID string          `gorm:"size:255;uniqueIndex:uq_unified_source,priority:2"`

	Title       string   `gorm:"size:500"`
	Description string   `gorm:"type:text"`
	Author      string   `gorm:"size:255"`
	Category    string   `gorm:"size:255;index"`
	Tags        []string `gorm:"serializer:json"`
	URL         string   `gorm:"size:1024"`

	PriceUSD  decimal.Decimal `gorm:"column:price_usd;type:numeric"`
	MarketCap decimal.Decimal `gorm:"column:market_cap;type:numeric"`
	Volume24h decimal.Decimal `gorm:"column:volume_24h;type:numeric"`

	PublishedAt *time.Time `gorm:"index"`

	RawID     uint
	Extra     map[string]any `gorm:"serializer:json"`
	Problems  []string       `gorm:"serializer:json"`
	CreatedAt time.Time      `gorm:"index"`
	UpdatedAt time.Time
}

func (UnifiedRecord) TableName() string { return "unified_records" }
