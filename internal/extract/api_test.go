package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"main/internal/model"
	"main/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
)

// recordingGuard admits every request and tracks limiter callbacks.
type recordingGuard struct {
	mu        sync.Mutex
	acquired  int
	successes int
	failures  int
	budget    int
}

func (g *recordingGuard) Acquire(_ context.Context, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.acquired++
	return nil
}

func (g *recordingGuard) OnSuccess(string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.successes++
}

func (g *recordingGuard) OnFailure(string, bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures++
	if g.failures > g.budget {
		return exception.ErrSourceUnavailable
	}
	return nil
}

func coin(id, updated string, price float64) map[string]any {
	return map[string]any{
		"id":            id,
		"name":          id,
		"current_price": price,
		"last_updated":  updated,
	}
}

func pagedServer(t *testing.T, pages map[int][]map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		require.NoError(t, json.NewEncoder(w).Encode(pages[page]))
	}))
}

func TestAPIExtractPagesUntilShortPage(t *testing.T) {
	ctx := context.Background()
	server := pagedServer(t, map[int][]map[string]any{
		1: {coin("bitcoin", "2026-08-01T10:00:00Z", 64000), coin("ethereum", "2026-08-01T11:00:00Z", 3100)},
		2: {coin("solana", "2026-08-01T12:00:00Z", 150)},
	})
	defer server.Close()

	guard := &recordingGuard{}
	api := NewAPI(APIConfig{SourceID: "coins", Endpoint: server.URL, PerPage: 2, PageCap: 5}, guard)

	cursor := model.Cursor{}
	batch, err := api.Extract(ctx, cursor)
	require.NoError(t, err)
	assert.False(t, batch.Done)
	assert.Len(t, batch.Records, 2)
	// cursor does not move until the snapshot is complete
	assert.Equal(t, cursor, batch.Next)

	batch, err = api.Extract(ctx, cursor)
	require.NoError(t, err)
	assert.True(t, batch.Done)
	require.Len(t, batch.Records, 1)
	assert.Equal(t, "solana", batch.Records[0].SourceRecordID)
	assert.Equal(t, model.Cursor{LastID: "2026-08-01T12:00:00Z"}, batch.Next)
	assert.Equal(t, 2, guard.successes)
}

func TestAPIExtractHonorsPageCap(t *testing.T) {
	ctx := context.Background()
	full := []map[string]any{coin("a", "2026-08-01T10:00:00Z", 1), coin("b", "2026-08-01T10:00:00Z", 2)}
	server := pagedServer(t, map[int][]map[string]any{1: full, 2: full, 3: full, 4: full})
	defer server.Close()

	api := NewAPI(APIConfig{SourceID: "coins", Endpoint: server.URL, PerPage: 2, PageCap: 3}, &recordingGuard{})

	var done bool
	for i := 0; i < 3; i++ {
		batch, err := api.Extract(ctx, model.Cursor{})
		require.NoError(t, err)
		done = batch.Done
	}
	assert.True(t, done)
}

func TestAPIExtractSkipsRecordsCoveredByCursor(t *testing.T) {
	ctx := context.Background()
	server := pagedServer(t, map[int][]map[string]any{
		1: {coin("bitcoin", "2026-08-01T10:00:00Z", 64000), coin("solana", "2026-08-02T09:00:00Z", 150)},
	})
	defer server.Close()

	api := NewAPI(APIConfig{SourceID: "coins", Endpoint: server.URL, PerPage: 10, PageCap: 3}, &recordingGuard{})

	cursor := model.Cursor{LastID: "2026-08-01T10:00:00Z"}
	batch, err := api.Extract(ctx, cursor)
	require.NoError(t, err)
	assert.True(t, batch.Done)
	require.Len(t, batch.Records, 1)
	assert.Equal(t, "solana", batch.Records[0].SourceRecordID)
	assert.Equal(t, model.Cursor{LastID: "2026-08-02T09:00:00Z"}, batch.Next)
}

func TestAPIExtractSendsBearerToken(t *testing.T) {
	ctx := context.Background()
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	api := NewAPI(APIConfig{SourceID: "coins", Endpoint: server.URL, APIKey: "secret"}, &recordingGuard{})
	_, err := api.Extract(ctx, model.Cursor{})
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestAPIExtractAuthenticationFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	api := NewAPI(APIConfig{SourceID: "coins", Endpoint: server.URL}, &recordingGuard{})
	_, err := api.Extract(context.Background(), model.Cursor{})
	assert.True(t, errors.Is(err, exception.ErrAuthentication))
}

func TestAPIExtractRetriesServerErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	guard := &recordingGuard{budget: 5}
	api := NewAPI(APIConfig{SourceID: "coins", Endpoint: server.URL}, guard)

	batch, err := api.Extract(context.Background(), model.Cursor{})
	require.NoError(t, err)
	assert.True(t, batch.Done)
	assert.Equal(t, 2, guard.failures)
	assert.Equal(t, 3, guard.acquired)
}

func TestAPIExtractRetriesExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	guard := &recordingGuard{budget: 2}
	api := NewAPI(APIConfig{SourceID: "coins", Endpoint: server.URL}, guard)

	_, err := api.Extract(context.Background(), model.Cursor{})
	assert.True(t, errors.Is(err, exception.ErrSourceUnavailable))
}

func TestAPIExtractClientErrorIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	guard := &recordingGuard{budget: 5}
	api := NewAPI(APIConfig{SourceID: "coins", Endpoint: server.URL}, guard)

	_, err := api.Extract(context.Background(), model.Cursor{})
	assert.True(t, errors.Is(err, exception.ErrSourceUnavailable))
	assert.Zero(t, guard.failures)
}
