package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/mnemosyne/internal/profile"
	"github.com/hrygo/mnemosyne/store"
	"github.com/hrygo/mnemosyne/store/db/sqlite"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	p := &profile.Profile{DSN: "sqlite::memory:", UserID: "user-1"}
	require.NoError(t, p.Validate())

	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })

	ctx := context.Background()
	require.NoError(t, driver.Migrate(ctx))

	s := store.New(driver, p)
	return NewEngine(s, NewPlanner(nil)), s
}

func seedLongTerm(t *testing.T, s *store.Store, memoryID, content string, importance float64) {
	t.Helper()
	_, err := s.StoreLongTerm(context.Background(), &store.LongTermMemory{
		MemoryID:          memoryID,
		UserID:            "user-1",
		SessionID:         "session-1",
		Content:           content,
		Summary:           content,
		SearchableContent: content,
		Classification:    store.ClassificationEssential,
		MemoryImportance:  store.ImportanceHigh,
		ImportanceScore:   importance,
		CreatedTs:         time.Now().Unix(),
	})
	require.NoError(t, err)
}

func TestSearchEmptyQueryReturnsEmpty(t *testing.T) {
	engine, _ := newTestEngine(t)

	results, err := engine.Search(context.Background(), &Request{
		Query:  "   ",
		UserID: "user-1",
		Limit:  5,
	})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestSearchEmptyQueryRecentFallback(t *testing.T) {
	engine, s := newTestEngine(t)
	seedLongTerm(t, s, "mem-1", "user prefers postgres for analytics", 0.8)

	results, err := engine.Search(context.Background(), &Request{
		Query:         "",
		UserID:        "user-1",
		Limit:         5,
		RecentOnEmpty: true,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, store.StrategyRecentFallback, results[0].SearchStrategy)
}

func TestSearchFullText(t *testing.T) {
	engine, s := newTestEngine(t)
	seedLongTerm(t, s, "mem-1", "user prefers postgres for analytics workloads", 0.8)
	seedLongTerm(t, s, "mem-2", "user lives in berlin", 0.5)

	results, err := engine.Search(context.Background(), &Request{
		Query:  "postgres",
		UserID: "user-1",
		Limit:  5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "mem-1", results[0].MemoryID)
}

func TestSearchDeduplicatesAcrossStages(t *testing.T) {
	engine, s := newTestEngine(t)
	seedLongTerm(t, s, "mem-1", "deploy pipeline uses github actions", 0.9)

	// Both the full-text stage and the entity stage will match mem-1.
	results, err := engine.Search(context.Background(), &Request{
		Query:  "github actions deploy",
		UserID: "user-1",
		Limit:  10,
	})
	require.NoError(t, err)

	seen := map[string]int{}
	for _, r := range results {
		seen[r.MemoryID]++
	}
	require.Equal(t, 1, seen["mem-1"])
}

func TestSearchTenantIsolation(t *testing.T) {
	engine, s := newTestEngine(t)
	seedLongTerm(t, s, "mem-1", "user prefers postgres", 0.8)

	_, err := s.StoreLongTerm(context.Background(), &store.LongTermMemory{
		MemoryID:          "other-1",
		UserID:            "user-2",
		SessionID:         "session-9",
		Content:           "postgres secrets of another user",
		Summary:           "postgres secrets of another user",
		SearchableContent: "postgres secrets of another user",
		Classification:    store.ClassificationEssential,
		MemoryImportance:  store.ImportanceHigh,
		ImportanceScore:   0.9,
	})
	require.NoError(t, err)

	results, err := engine.Search(context.Background(), &Request{
		Query:  "postgres",
		UserID: "user-1",
		Limit:  10,
	})
	require.NoError(t, err)
	for _, r := range results {
		require.Equal(t, "user-1", r.UserID)
	}
}
