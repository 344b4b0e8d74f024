package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mnemosyne/core"
	"github.com/hrygo/mnemosyne/internal/profile"
	"github.com/hrygo/mnemosyne/store"
	"github.com/hrygo/mnemosyne/store/db/sqlite"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	p := &profile.Profile{DSN: "sqlite::memory:", UserID: "user-1", SessionID: "session-1"}
	require.NoError(t, p.Validate())

	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })
	require.NoError(t, driver.Migrate(context.Background()))

	m := core.NewMemory(p, store.New(driver, p), nil)
	require.NoError(t, m.Enable(context.Background()))
	t.Cleanup(func() { _ = m.Disable() })

	return NewServer(p, m)
}

func doRequest(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echoHeaderContentType, "application/json")
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

const echoHeaderContentType = "Content-Type"

func TestHealthz(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["enabled"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	// Generate some traffic first so counters exist.
	doRequest(s, http.MethodGet, "/healthz", "")

	rec := doRequest(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mnemosyne_http_requests_total")
}

func TestAddAndSearchMemory(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/v1/memories", `{"text":"user prefers postgres for production"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created["memory_id"])

	rec = doRequest(s, http.MethodGet, "/api/v1/memories/search?q=postgres", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Results []memoryRow `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotEmpty(t, result.Results)
	assert.Equal(t, created["memory_id"], result.Results[0].MemoryID)
}

func TestAddMemoryRejectsEmptyText(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/v1/memories", `{"text":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordConversationAndStats(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/v1/conversations",
		`{"user_input":"hi","ai_output":"hello","model":"gpt-4o"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/v1/memories/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, float64(1), stats["chat_count"])
}

func TestClearMemoriesRejectsUnknownTier(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodDelete, "/api/v1/memories?tier=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListMemories(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/v1/memories", `{"text":"fact one"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doRequest(s, http.MethodPost, "/api/v1/memories", `{"text":"fact two"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/v1/memories?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Memories   []memoryRow `json:"memories"`
		TotalCount int64       `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Memories, 1)
	assert.Equal(t, int64(2), body.TotalCount)
}

func TestSystemStatus(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/api/v1/system/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	pool, ok := body["pool"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "sqlite", pool["backend"])
}
