package conscious

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func seedConscious(t *testing.T, s *store.Store, id, content string, importance float64) {
	t.Helper()
	_, err := s.StoreLongTerm(context.Background(), &store.LongTermMemory{
		MemoryID:          id,
		UserID:            "user-1",
		SessionID:         "session-1",
		Content:           content,
		Summary:           content,
		SearchableContent: content,
		Classification:    store.ClassificationConsciousInfo,
		MemoryImportance:  store.ImportanceHigh,
		ImportanceScore:   importance,
	})
	require.NoError(t, err)
}

func TestRunConsciousIngest(t *testing.T) {
	s := newTestStore(t)
	c := NewCurator(s)
	seedConscious(t, s, "src-1", "user name is Jane", 0.9)
	seedConscious(t, s, "src-2", "always reply in english", 0.8)

	promoted, err := c.RunConsciousIngest(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, promoted)

	category := store.CategoryConsciousContext
	rows, err := s.GetShortTerm(context.Background(), &store.FindShortTermMemory{
		UserID:          "user-1",
		CategoryPrimary: &category,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.True(t, row.IsPermanentContext)
		assert.Equal(t, store.RetentionPermanent, row.RetentionType)
		assert.Contains(t, row.MemoryID, "conscious_")
	}

	// Sources are marked processed.
	sources, err := s.GetConsciousMemories(context.Background(), "user-1", nil)
	require.NoError(t, err)
	for _, source := range sources {
		assert.True(t, source.ConsciousProcessed)
	}
}

func TestIngestIdempotent(t *testing.T) {
	s := newTestStore(t)
	c := NewCurator(s)
	seedConscious(t, s, "src-1", "user name is Jane", 0.9)

	first, err := c.RunConsciousIngest(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, first)

	// Re-running promotes nothing: same content is suppressed.
	second, err := c.RunConsciousIngest(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, second)
}

func TestInitializeRespectsLimitAndFastPath(t *testing.T) {
	s := newTestStore(t)
	c := NewCurator(s)
	for i := 0; i < 5; i++ {
		seedConscious(t, s, fmt.Sprintf("src-%d", i), fmt.Sprintf("standing instruction %d", i), float64(i)/10)
	}

	promoted, err := c.InitializeExistingConsciousMemories(context.Background(), "user-1", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, promoted)

	// Fast path: an existing working set skips initialization entirely.
	promoted, err = c.InitializeExistingConsciousMemories(context.Background(), "user-1", 3)
	require.NoError(t, err)
	assert.Equal(t, 0, promoted)
}

func TestCheckForContextUpdates(t *testing.T) {
	s := newTestStore(t)
	c := NewCurator(s)
	seedConscious(t, s, "src-1", "user name is Jane", 0.9)

	_, err := c.RunConsciousIngest(context.Background(), "user-1")
	require.NoError(t, err)

	// A new unprocessed row arrives after the initial ingest.
	seedConscious(t, s, "src-2", "works at acme corp", 0.7)

	promoted, err := c.CheckForContextUpdates(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)
}
