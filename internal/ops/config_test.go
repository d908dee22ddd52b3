package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"main/internal/inject"
	"main/internal/model/enum"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadResolvesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"database": {"host": "db", "port": 5433, "user": "etl", "database": "marketdata"},
		"rateLimit": {"requestsPerMinute": 30, "backoffMinSeconds": 0.5},
		"run": {"parallel": true, "timeoutSeconds": 600},
		"drift": {"confidenceThreshold": 0.75},
		"inject": [{"sourceID": "coins", "stage": "load", "afterBatches": 1}],
		"sources": [
			{"id": "coins", "type": "api", "endpoint": "https://api.example.com/coins/markets", "rateLimit": 30},
			{"id": "history", "type": "csv", "path": "/data/history.csv", "batchSize": 200,
			 "fieldMapping": {"title": "coin_name"}},
			{"id": "news", "type": "rss", "feedURL": "https://news.example.com/feed", "enabled": false}
		]
	}`)

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "db", loaded.Database.Host)
	assert.Equal(t, 5433, loaded.Database.Port)
	assert.Equal(t, 30, loaded.RateLimit.RequestsPerMinute)
	assert.Equal(t, 5, loaded.RateLimit.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, loaded.RateLimit.Backoff.Min)
	assert.True(t, loaded.Run.Parallel)
	assert.Equal(t, 10*time.Minute, loaded.Run.RunTimeout)
	assert.InDelta(t, 0.75, loaded.Drift.ConfidenceThreshold, 1e-9)
	assert.Equal(t, map[string]int{"coins": 30}, loaded.Limits)
	assert.Equal(t, "coin_name", loaded.Mappings[enum.SourceTypeCSV]["title"])
	require.Len(t, loaded.Inject, 1)
	assert.Equal(t, inject.StageLoad, loaded.Inject[0].Stage)

	require.Len(t, loaded.Sources, 2)
	assert.Equal(t, "coins", loaded.Sources[0].ID)
	assert.Equal(t, "history", loaded.Sources[1].ID)
}

func TestLoadRejectsInvalidConfigs(t *testing.T) {
	testcases := []struct {
		desc string
		body string
	}{
		{"malformed json", `{`},
		{"no sources", `{"sources": []}`},
		{"all disabled", `{"sources": [{"id": "a", "type": "csv", "path": "/x.csv", "enabled": false}]}`},
		{"missing id", `{"sources": [{"type": "csv", "path": "/x.csv"}]}`},
		{"unknown type", `{"sources": [{"id": "a", "type": "ftp"}]}`},
		{"api without endpoint", `{"sources": [{"id": "a", "type": "api"}]}`},
		{"csv without path", `{"sources": [{"id": "a", "type": "csv"}]}`},
		{"rss without feed", `{"sources": [{"id": "a", "type": "rss"}]}`},
		{"duplicate ids", `{"sources": [
			{"id": "a", "type": "csv", "path": "/x.csv"},
			{"id": "a", "type": "csv", "path": "/y.csv"}]}`},
		{"bad inject stage", `{
			"inject": [{"sourceID": "a", "stage": "parse"}],
			"sources": [{"id": "a", "type": "csv", "path": "/x.csv"}]}`},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestBuildExtractors(t *testing.T) {
	path := writeConfig(t, `{
		"sources": [
			{"id": "coins", "type": "api", "endpoint": "https://api.example.com/coins"},
			{"id": "history", "type": "csv", "path": "/data/history.csv"},
			{"id": "news", "type": "rss", "feedURL": "https://news.example.com/feed"}
		]
	}`)

	loaded, err := Load(path)
	require.NoError(t, err)

	extractors := loaded.BuildExtractors(nil)
	require.Len(t, extractors, 3)
	assert.Equal(t, "coins", extractors[0].SourceID())
	assert.Equal(t, enum.SourceTypeAPI, extractors[0].Type())
	assert.Equal(t, enum.SourceTypeCSV, extractors[1].Type())
	assert.Equal(t, enum.SourceTypeRSS, extractors[2].Type())
}
