package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"main/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const threeRowCSV = `name,description,category,value,date
Bitcoin,store of value,layer1,64250.5,2026-08-01
Ethereum,smart contracts,layer1,3120.25,2026-08-01
Solana,null,layer1,152.4,2026-08-02
`

func TestCSVExtractAllRows(t *testing.T) {
	ctx := context.Background()
	c := NewCSV(CSVConfig{SourceID: "history", Path: writeCSV(t, threeRowCSV)})

	batch, err := c.Extract(ctx, model.Cursor{})
	require.NoError(t, err)
	assert.True(t, batch.Done)
	assert.Equal(t, model.Cursor{Offset: 3}, batch.Next)
	require.Len(t, batch.Records, 3)

	first := batch.Records[0]
	assert.Equal(t, "history.csv:1", first.SourceRecordID)
	assert.Equal(t, "Bitcoin", first.Payload["name"])
	assert.Equal(t, float64(64250.5), first.Payload["value"])
	assert.NotEmpty(t, first.Checksum)

	// null token becomes a typed nil
	assert.Nil(t, batch.Records[2].Payload["description"])
}

func TestCSVResumeSkipsCoveredRows(t *testing.T) {
	ctx := context.Background()
	c := NewCSV(CSVConfig{SourceID: "history", Path: writeCSV(t, threeRowCSV)})

	batch, err := c.Extract(ctx, model.Cursor{Offset: 2})
	require.NoError(t, err)
	assert.True(t, batch.Done)
	require.Len(t, batch.Records, 1)
	assert.Equal(t, "history.csv:3", batch.Records[0].SourceRecordID)
	assert.Equal(t, model.Cursor{Offset: 3}, batch.Next)
}

func TestCSVBatchesAdvanceCursorPerBatch(t *testing.T) {
	ctx := context.Background()
	c := NewCSV(CSVConfig{SourceID: "history", Path: writeCSV(t, threeRowCSV), BatchSize: 2})

	batch, err := c.Extract(ctx, model.Cursor{})
	require.NoError(t, err)
	assert.False(t, batch.Done)
	assert.Len(t, batch.Records, 2)
	assert.Equal(t, model.Cursor{Offset: 2}, batch.Next)

	batch, err = c.Extract(ctx, batch.Next)
	require.NoError(t, err)
	assert.True(t, batch.Done)
	assert.Len(t, batch.Records, 1)
	assert.Equal(t, model.Cursor{Offset: 3}, batch.Next)
}

func TestCSVCheckpointCurrentYieldsNothing(t *testing.T) {
	ctx := context.Background()
	c := NewCSV(CSVConfig{SourceID: "history", Path: writeCSV(t, threeRowCSV)})

	batch, err := c.Extract(ctx, model.Cursor{Offset: 3})
	require.NoError(t, err)
	assert.True(t, batch.Done)
	assert.Empty(t, batch.Records)
	assert.Equal(t, model.Cursor{Offset: 3}, batch.Next)
}

func TestCSVMissingFile(t *testing.T) {
	c := NewCSV(CSVConfig{SourceID: "history", Path: "/nonexistent/history.csv"})
	_, err := c.Extract(context.Background(), model.Cursor{})
	assert.Error(t, err)
}

func TestCleanValue(t *testing.T) {
	testcases := []struct {
		in     string
		expect any
	}{
		{"Bitcoin", "Bitcoin"},
		{"  spaced  ", "spaced"},
		{"", nil},
		{"null", nil},
		{"N/A", nil},
		{"-", nil},
		{"true", true},
		{"No", false},
		{"42", int64(42)},
		{"-7", int64(-7)},
		{"3.14", float64(3.14)},
		{"1e3", float64(1000)},
		{"42abc", "42abc"},
	}

	for _, tc := range testcases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.expect, cleanValue(tc.in))
		})
	}
}
