package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mnemosyne/core/memerr"
	"github.com/hrygo/mnemosyne/internal/profile"
	"github.com/hrygo/mnemosyne/store"
	"github.com/hrygo/mnemosyne/store/db/sqlite"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	p := &profile.Profile{DSN: "sqlite::memory:", UserID: "user-1"}
	require.NoError(t, p.Validate())

	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })
	require.NoError(t, driver.Migrate(context.Background()))

	return store.New(driver, p)
}

func strPtr(s string) *string { return &s }

func TestStoreChatRequiresUser(t *testing.T) {
	s := newTestStore(t)

	_, err := s.StoreChat(context.Background(), &store.ChatHistory{ChatID: "c1"})
	var tenantErr *memerr.InvalidTenantError
	assert.ErrorAs(t, err, &tenantErr)
}

func TestChatHistoryRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.StoreChat(ctx, &store.ChatHistory{
		ChatID:    "c1",
		UserID:    "user-1",
		SessionID: "s1",
		UserInput: "hi",
		AIOutput:  "hello",
		Model:     "gpt-4o",
		Metadata:  map[string]any{"source": "test"},
	})
	require.NoError(t, err)

	rows, err := s.GetChatHistory(ctx, &store.FindChatHistory{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "hi", rows[0].UserInput)
	assert.Equal(t, "test", rows[0].Metadata["source"])
	assert.NotZero(t, rows[0].CreatedTs)

	// Other tenants see nothing.
	rows, err = s.GetChatHistory(ctx, &store.FindChatHistory{UserID: "user-2"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestShortTermExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	expired := time.Now().Add(-time.Hour).Unix()
	_, err := s.StoreShortTerm(ctx, &store.ShortTermMemory{
		MemoryID:          "m-expired",
		UserID:            "user-1",
		SessionID:         "s1",
		SearchableContent: "stale",
		ExpiresTs:         &expired,
	})
	require.NoError(t, err)
	_, err = s.StoreShortTerm(ctx, &store.ShortTermMemory{
		MemoryID:          "m-live",
		UserID:            "user-1",
		SessionID:         "s1",
		SearchableContent: "fresh",
	})
	require.NoError(t, err)

	rows, err := s.GetShortTerm(ctx, &store.FindShortTermMemory{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "m-live", rows[0].MemoryID)

	rows, err = s.GetShortTerm(ctx, &store.FindShortTermMemory{UserID: "user-1", IncludeExpired: true})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestLongTermSharedAssistantRule(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, row := range []*store.LongTermMemory{
		{MemoryID: "m-shared", UserID: "user-1", Classification: store.ClassificationContextual, SearchableContent: "shared row"},
		{MemoryID: "m-a1", UserID: "user-1", AssistantID: "a1", Classification: store.ClassificationContextual, SearchableContent: "a1 row"},
		{MemoryID: "m-a2", UserID: "user-1", AssistantID: "a2", Classification: store.ClassificationContextual, SearchableContent: "a2 row"},
	} {
		_, err := s.StoreLongTerm(ctx, row)
		require.NoError(t, err)
	}

	rows, err := s.ListLongTerm(ctx, &store.FindLongTermMemory{UserID: "user-1", AssistantID: strPtr("a1")})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	ids := []string{rows[0].MemoryID, rows[1].MemoryID}
	assert.Contains(t, ids, "m-shared")
	assert.Contains(t, ids, "m-a1")
}

func TestFullTextSearchScoresInRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.StoreLongTerm(ctx, &store.LongTermMemory{
		MemoryID:          "m1",
		UserID:            "user-1",
		Classification:    store.ClassificationContextual,
		SearchableContent: "user deploys services with kubernetes",
		Summary:           "kubernetes deployment habits",
		ImportanceScore:   0.8,
	})
	require.NoError(t, err)

	results, err := s.FullTextSearch(ctx, &store.SearchQuery{
		UserID: "user-1",
		Query:  "kubernetes",
		Limit:  10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "m1", results[0].MemoryID)
	assert.Greater(t, results[0].SearchScore, 0.0)
	assert.LessOrEqual(t, results[0].SearchScore, 1.0)
}

func TestGetMemoryStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.StoreChat(ctx, &store.ChatHistory{ChatID: "c1", UserID: "user-1", UserInput: "a", AIOutput: "b"})
	require.NoError(t, err)
	_, err = s.StoreShortTerm(ctx, &store.ShortTermMemory{MemoryID: "st1", UserID: "user-1", SearchableContent: "x"})
	require.NoError(t, err)
	_, err = s.StoreLongTerm(ctx, &store.LongTermMemory{
		MemoryID: "lt1", UserID: "user-1",
		Classification: store.ClassificationPersonal, SearchableContent: "y", ImportanceScore: 0.5,
	})
	require.NoError(t, err)

	stats, err := s.GetMemoryStats(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ChatCount)
	assert.Equal(t, int64(1), stats.ShortTermCount)
	assert.Equal(t, int64(1), stats.LongTermCount)
	assert.Equal(t, int64(1), stats.CountsByCategory[store.ClassificationPersonal])
	// "a"+"b" chat bytes plus the short- and long-term text columns.
	assert.Equal(t, int64(4), stats.StorageBytes)
}

func TestSemanticSearchDegradesWithoutVectorBackend(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.False(t, s.SupportsSemanticSearch())

	_, err := s.StoreLongTerm(ctx, &store.LongTermMemory{
		MemoryID: "lt1", UserID: "user-1",
		Classification: store.ClassificationPersonal, SearchableContent: "likes postgres", ImportanceScore: 0.5,
	})
	require.NoError(t, err)

	results, err := s.SemanticSearch(ctx, &store.SearchQuery{Query: "postgres", UserID: "user-1", Limit: 5}, []float32{0.1, 0.2})
	require.NoError(t, err)
	assert.Empty(t, results)

	assert.NoError(t, s.AttachEmbedding(ctx, "user-1", "lt1", []float32{0.1, 0.2}))

	var tenantErr *memerr.InvalidTenantError
	_, err = s.SemanticSearch(ctx, &store.SearchQuery{Query: "postgres"}, []float32{0.1})
	assert.ErrorAs(t, err, &tenantErr)
	assert.ErrorAs(t, s.AttachEmbedding(ctx, "", "lt1", []float32{0.1}), &tenantErr)
}

func TestClearMemoryByTier(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.StoreChat(ctx, &store.ChatHistory{ChatID: "c1", UserID: "user-1", UserInput: "a", AIOutput: "b"})
	require.NoError(t, err)
	_, err = s.StoreShortTerm(ctx, &store.ShortTermMemory{MemoryID: "st1", UserID: "user-1", SearchableContent: "x"})
	require.NoError(t, err)

	deleted, err := s.ClearMemory(ctx, "user-1", store.TierShortTerm)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = s.ClearMemory(ctx, "user-1", "bogus")
	var validationErr *memerr.ValidationError
	assert.ErrorAs(t, err, &validationErr)

	deleted, err = s.ClearMemory(ctx, "user-1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestListMemoriesMergesTiers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.StoreShortTerm(ctx, &store.ShortTermMemory{
		MemoryID: "st1", UserID: "user-1", SearchableContent: "short", CreatedTs: 100,
	})
	require.NoError(t, err)
	_, err = s.StoreLongTerm(ctx, &store.LongTermMemory{
		MemoryID: "lt1", UserID: "user-1",
		Classification: store.ClassificationContextual, SearchableContent: "long", CreatedTs: 200,
	})
	require.NoError(t, err)

	listing, err := s.ListMemories(ctx, "user-1", true, 10)
	require.NoError(t, err)
	require.Len(t, listing.Rows, 2)
	assert.Equal(t, "lt1", listing.Rows[0].MemoryID)
	assert.Equal(t, store.TierLongTerm, listing.Rows[0].Tier)
	assert.Equal(t, store.TierShortTerm, listing.Rows[1].Tier)
	assert.Equal(t, int64(2), listing.TotalCount)
}
