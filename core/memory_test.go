package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mnemosyne/core/memerr"
	"github.com/hrygo/mnemosyne/internal/profile"
	"github.com/hrygo/mnemosyne/store"
	"github.com/hrygo/mnemosyne/store/db/sqlite"
)

func newTestMemory(t *testing.T) *Memory {
	t.Helper()
	p := &profile.Profile{DSN: "sqlite::memory:", UserID: "user-1", SessionID: "session-1"}
	require.NoError(t, p.Validate())

	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })
	require.NoError(t, driver.Migrate(context.Background()))

	m := NewMemory(p, store.New(driver, p), nil)
	t.Cleanup(func() { _ = m.Disable() })
	return m
}

func TestRecordConversationRequiresEnable(t *testing.T) {
	m := newTestMemory(t)

	_, err := m.RecordConversation(context.Background(), "hi", "hello", "gpt-4o", nil)
	assert.ErrorContains(t, err, "not enabled")
}

func TestRecordConversationStoresChat(t *testing.T) {
	m := newTestMemory(t)
	require.NoError(t, m.Enable(context.Background()))

	chatID, err := m.RecordConversation(context.Background(), "hi", "hello", "gpt-4o", map[string]any{"source": "test"})
	require.NoError(t, err)
	require.NotEmpty(t, chatID)

	rows, err := m.Store().GetChatHistory(context.Background(), &store.FindChatHistory{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, chatID, rows[0].ChatID)
	assert.Equal(t, "hi", rows[0].UserInput)
	assert.Equal(t, "session-1", rows[0].SessionID)
}

func TestRecordConversationSuppressesDuplicate(t *testing.T) {
	m := newTestMemory(t)
	require.NoError(t, m.Enable(context.Background()))

	first, err := m.RecordConversation(context.Background(), "hi", "hello", "gpt-4o", nil)
	require.NoError(t, err)
	second, err := m.RecordConversation(context.Background(), "hi", "hello", "gpt-4o", nil)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasPrefix(second, "dup_"))

	rows, err := m.Store().GetChatHistory(context.Background(), &store.FindChatHistory{UserID: "user-1"})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRecordConversationMasksSensitiveContent(t *testing.T) {
	m := newTestMemory(t)
	require.NoError(t, m.Enable(context.Background()))

	_, err := m.RecordConversation(context.Background(),
		"my key is sk-abcdefghij1234567890", "noted", "gpt-4o", nil)
	require.NoError(t, err)

	rows, err := m.Store().GetChatHistory(context.Background(), &store.FindChatHistory{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.NotContains(t, rows[0].UserInput, "sk-abcdefghij1234567890")
	assert.Contains(t, rows[0].UserInput, "sk-")
}

func TestRecordConversationEnforcesStorageQuota(t *testing.T) {
	p := &profile.Profile{
		DSN:             "sqlite::memory:",
		UserID:          "user-1",
		SessionID:       "session-1",
		MaxStorageBytes: 1,
	}
	require.NoError(t, p.Validate())

	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })
	require.NoError(t, driver.Migrate(context.Background()))

	m := NewMemory(p, store.New(driver, p), nil)
	t.Cleanup(func() { _ = m.Disable() })
	require.NoError(t, m.Enable(context.Background()))

	// First write lands while usage is still below the cap.
	_, err = m.RecordConversation(context.Background(), "hi", "hello", "gpt-4o", nil)
	require.NoError(t, err)

	_, err = m.RecordConversation(context.Background(), "more", "text", "gpt-4o", nil)
	var quotaErr *memerr.QuotaError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, "storage_bytes", quotaErr.Kind)

	_, err = m.Add(context.Background(), "a fact to keep", nil)
	assert.ErrorAs(t, err, &quotaErr)
}

func TestSearchEmptyQueryReturnsEmpty(t *testing.T) {
	m := newTestMemory(t)
	require.NoError(t, m.Enable(context.Background()))

	results, err := m.Search(context.Background(), "", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAddAndRetrieveContext(t *testing.T) {
	m := newTestMemory(t)
	require.NoError(t, m.Enable(context.Background()))

	memoryID, err := m.Add(context.Background(), "user deploys with github actions", map[string]any{"topic": "ci"})
	require.NoError(t, err)
	require.NotEmpty(t, memoryID)

	results, err := m.RetrieveContext(context.Background(), "github actions", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, memoryID, results[0].MemoryID)

	// Empty query on the retrieval path returns recent memories.
	recent, err := m.RetrieveContext(context.Background(), "", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, recent)
}

func TestGetStatsAndClear(t *testing.T) {
	m := newTestMemory(t)
	require.NoError(t, m.Enable(context.Background()))

	_, err := m.Add(context.Background(), "some fact", nil)
	require.NoError(t, err)
	_, err = m.RecordConversation(context.Background(), "a", "b", "gpt-4o", nil)
	require.NoError(t, err)

	// Classification is disabled (nil LLM) so only direct rows exist.
	time.Sleep(50 * time.Millisecond)
	stats, err := m.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ChatCount)
	assert.Equal(t, int64(1), stats.LongTermCount)

	deleted, err := m.ClearMemory(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}

func TestStartNewConversationRotatesSession(t *testing.T) {
	m := newTestMemory(t)

	next := m.StartNewConversation()
	assert.NotEmpty(t, next)
	assert.NotEqual(t, "session-1", next)
}

func TestActiveContextLifecycle(t *testing.T) {
	m := newTestMemory(t)

	_, err := m.GetActiveContext(true)
	assert.Error(t, err)

	tctx := m.SetActiveContext("req-1")
	assert.Equal(t, "req-1", tctx.RequestID)

	got, err := m.GetActiveContext(true)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)

	m.ClearActiveContext()
	_, err = m.GetActiveContext(true)
	assert.Error(t, err)
}
