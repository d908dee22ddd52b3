package store

import (
	"testing"

	"main/internal/model"
	"main/internal/model/enum"

	"github.com/stretchr/testify/assert"
)

func TestAssignRawIDsLinksByNaturalKey(t *testing.T) {
	records := []model.UnifiedRecord{
		{SourceType: enum.SourceTypeAPI, SourceRecordID: "btc"},
		{SourceType: enum.SourceTypeCSV, SourceRecordID: "history.csv:3"},
		{SourceType: enum.SourceTypeRSS, SourceRecordID: "guid-1"},
	}
	ids := map[string]uint{
		recordKey(enum.SourceTypeAPI, "btc"):           11,
		recordKey(enum.SourceTypeCSV, "history.csv:3"): 42,
	}

	assignRawIDs(records, ids)

	assert.Equal(t, uint(11), records[0].RawID)
	assert.Equal(t, uint(42), records[1].RawID)
	assert.Zero(t, records[2].RawID, "record without an archived raw row stays unlinked")
}

func TestRecordKeyDisambiguatesSourceType(t *testing.T) {
	assert.NotEqual(t,
		recordKey(enum.SourceTypeAPI, "btc"),
		recordKey(enum.SourceTypeCSV, "btc"))
	assert.Equal(t,
		recordKey(enum.SourceTypeAPI, "btc"),
		recordKey(enum.SourceTypeAPI, "btc"))
}
