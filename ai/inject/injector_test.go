package inject

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mnemosyne/ai/search"
	"github.com/hrygo/mnemosyne/core/tenant"
	"github.com/hrygo/mnemosyne/internal/profile"
	"github.com/hrygo/mnemosyne/store"
	"github.com/hrygo/mnemosyne/store/db/sqlite"
)

func newTestInjector(t *testing.T, conscious, auto bool) (*Injector, *store.Store) {
	t.Helper()
	p := &profile.Profile{
		DSN:             "sqlite::memory:",
		UserID:          "user-1",
		ConsciousIngest: conscious,
		AutoIngest:      auto,
	}
	require.NoError(t, p.Validate())

	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })
	require.NoError(t, driver.Migrate(context.Background()))

	s := store.New(driver, p)
	engine := search.NewEngine(s, search.NewPlanner(nil))
	return NewInjector(p, s, engine), s
}

func seedShortTerm(t *testing.T, s *store.Store, id, content, category string) {
	t.Helper()
	_, err := s.StoreShortTerm(context.Background(), &store.ShortTermMemory{
		MemoryID:           id,
		UserID:             "user-1",
		SessionID:          "session-1",
		SearchableContent:  content,
		Summary:            content,
		CategoryPrimary:    category,
		RetentionType:      store.RetentionPermanent,
		ImportanceScore:    0.8,
		IsPermanentContext: true,
	})
	require.NoError(t, err)
}

func TestShouldInjectSkipsSentinel(t *testing.T) {
	inj, _ := newTestInjector(t, true, false)

	assert.True(t, inj.ShouldInject("what is my name"))
	assert.False(t, inj.ShouldInject(InternalSearchSentinel+" find memories about postgres"))
}

func TestConsciousContextOneShotPerSession(t *testing.T) {
	inj, s := newTestInjector(t, true, false)
	seedShortTerm(t, s, "mem-1", "user name is Jane", store.CategoryConsciousContext)

	tctx := tenant.NewContext("user-1", "", "session-1")

	first, err := inj.ContextFor(context.Background(), tctx, "hello")
	require.NoError(t, err)
	assert.Contains(t, first, "authorized user context data")
	assert.Contains(t, first, "[CONSCIOUS_CONTEXT] user name is Jane")

	// Second call in the same session injects nothing.
	second, err := inj.ContextFor(context.Background(), tctx, "hello again")
	require.NoError(t, err)
	assert.Empty(t, second)

	// A new session gets the context again.
	inj.ResetSession("session-1")
	third, err := inj.ContextFor(context.Background(), tctx, "hello")
	require.NoError(t, err)
	assert.Contains(t, third, "user name is Jane")
}

func TestConsciousContextDedupsCaseInsensitive(t *testing.T) {
	inj, s := newTestInjector(t, true, false)
	seedShortTerm(t, s, "mem-1", "User Name Is Jane", store.CategoryConsciousContext)
	seedShortTerm(t, s, "mem-2", "user name is jane", store.CategoryConsciousContext)

	text, err := inj.BuildConsciousContext(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(strings.ToLower(text), "user name is jane"))
}

func TestAutoContext(t *testing.T) {
	inj, s := newTestInjector(t, false, true)
	_, err := s.StoreLongTerm(context.Background(), &store.LongTermMemory{
		MemoryID:          "lt-1",
		UserID:            "user-1",
		SessionID:         "session-1",
		Content:           "user prefers postgres for analytics",
		Summary:           "user prefers postgres for analytics",
		SearchableContent: "user prefers postgres for analytics",
		Classification:    store.ClassificationEssential,
		MemoryImportance:  store.ImportanceHigh,
		ImportanceScore:   0.8,
	})
	require.NoError(t, err)

	tctx := tenant.NewContext("user-1", "", "session-1")
	text, err := inj.ContextFor(context.Background(), tctx, "which database should I use for postgres analytics")
	require.NoError(t, err)
	assert.Contains(t, text, "--- Auto Memory Context ---")
	assert.Contains(t, text, "postgres")
}

func TestAutoContextEmptyStore(t *testing.T) {
	inj, _ := newTestInjector(t, false, true)

	tctx := tenant.NewContext("user-1", "", "session-1")
	text, err := inj.ContextFor(context.Background(), tctx, "anything at all")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestMergeSystemText(t *testing.T) {
	assert.Equal(t, "existing", MergeSystemText("existing", ""))
	assert.Equal(t, "memory", MergeSystemText("", "memory"))
	assert.Equal(t, "memory\n\nexisting", MergeSystemText("existing", "memory"))
}

func TestNoModesInjectsNothing(t *testing.T) {
	inj, s := newTestInjector(t, false, false)
	seedShortTerm(t, s, "mem-1", "user name is Jane", store.CategoryConsciousContext)

	tctx := tenant.NewContext("user-1", "", "session-1")
	text, err := inj.ContextFor(context.Background(), tctx, "hello")
	require.NoError(t, err)
	assert.Empty(t, text)
}
