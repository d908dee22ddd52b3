package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"main/internal/model/enum"
)

// RawRecord is a source-native record archived verbatim for audit and replay.
// Immutable once stored.
type RawRecord struct {
	ID             uint            `gorm:"primaryKey"`
	SourceID       string          `gorm:"size:64;index"`
	SourceType     enum.SourceType `gorm:"size:16;uniqueIndex:uq_raw_source,priority:1"`
	SourceRecordID string          `gorm:"size:255;uniqueIndex:uq_raw_source,priority:2"`
	Payload        map[string]any  `gorm:"serializer:json"`
	Offset         int64
	Checksum       string    `gorm:"size:64"`
	IngestedAt     time.Time `gorm:"index"`
}

func (RawRecord) TableName() string { return "raw_records" }

// ComputeChecksum hashes a payload with sorted keys so identical content
// always produces the same digest.
func ComputeChecksum(payload map[string]any) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		if v, err := json.Marshal(payload[k]); err == nil {
			h.Write(v)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
