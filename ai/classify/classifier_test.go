package classify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mnemosyne/ai/core/llm"
	"github.com/hrygo/mnemosyne/core/memerr"
	"github.com/hrygo/mnemosyne/core/tenant"
	"github.com/hrygo/mnemosyne/internal/profile"
	"github.com/hrygo/mnemosyne/store"
	"github.com/hrygo/mnemosyne/store/db/sqlite"
)

// stubLLM returns canned structured output, or an error for the first
// failCount calls.
type stubLLM struct {
	response  json.RawMessage
	failCount int
	calls     int
}

func (s *stubLLM) Chat(ctx context.Context, messages []llm.Message) (string, *llm.CallStats, error) {
	return string(s.response), &llm.CallStats{}, nil
}

func (s *stubLLM) ChatStructured(ctx context.Context, messages []llm.Message, schema *llm.ResponseSchema, out any) (*llm.CallStats, error) {
	s.calls++
	if s.calls <= s.failCount {
		return nil, errors.New("model overloaded")
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = s.response
	}
	return &llm.CallStats{TotalTokens: 42}, nil
}

func (s *stubLLM) Model() string { return "stub" }

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

func classifierOutput(t *testing.T) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(validOutput())
	require.NoError(t, err)
	return raw
}

func TestProcessConversationStoresRow(t *testing.T) {
	s := newTestStore(t)
	svc := &stubLLM{response: classifierOutput(t)}
	c := NewClassifier(svc, s, tenant.NewManager())

	tctx := tenant.NewContext("user-1", "agent-1", "session-1")
	row, err := c.ProcessConversation(context.Background(), tctx, "chat-1", "I prefer postgres", "Noted")
	require.NoError(t, err)
	require.NotNil(t, row)

	assert.Equal(t, "user-1", row.UserID)
	assert.Equal(t, store.ClassificationEssential, row.Classification)
	assert.Equal(t, 0.8, row.ImportanceScore)
	assert.Equal(t, "chat-1", row.ChatID)
	assert.NotEmpty(t, row.MemoryID)

	stored, err := s.ListLongTerm(context.Background(), &store.FindLongTermMemory{UserID: "user-1"})
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestProcessConversationRetries(t *testing.T) {
	s := newTestStore(t)
	svc := &stubLLM{response: classifierOutput(t), failCount: 2}
	c := NewClassifier(svc, s, tenant.NewManager())

	tctx := tenant.NewContext("user-1", "", "session-1")
	row, err := c.ProcessConversation(context.Background(), tctx, "chat-1", "input", "output")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, 3, svc.calls)
}

func TestProcessConversationExhaustsRetries(t *testing.T) {
	s := newTestStore(t)
	svc := &stubLLM{response: classifierOutput(t), failCount: 10}
	c := NewClassifier(svc, s, tenant.NewManager())

	tctx := tenant.NewContext("user-1", "", "session-1")
	_, err := c.ProcessConversation(context.Background(), tctx, "chat-1", "input", "output")

	var classifierErr *memerr.ClassifierError
	require.ErrorAs(t, err, &classifierErr)
	assert.Equal(t, 3, classifierErr.Attempt)
}

func TestProcessConversationFilterDiscards(t *testing.T) {
	s := newTestStore(t)
	svc := &stubLLM{response: classifierOutput(t)}
	c := NewClassifier(svc, s, tenant.NewManager(), func(m *ProcessedMemory) (bool, string) {
		return m.Classification != store.ClassificationEssential, "essential filtered for test"
	})

	tctx := tenant.NewContext("user-1", "", "session-1")
	row, err := c.ProcessConversation(context.Background(), tctx, "chat-1", "input", "output")
	require.NoError(t, err)
	assert.Nil(t, row)

	stored, err := s.ListLongTerm(context.Background(), &store.FindLongTermMemory{UserID: "user-1"})
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestProcessConversationDetectsDuplicate(t *testing.T) {
	s := newTestStore(t)

	_, err := s.StoreLongTerm(context.Background(), &store.LongTermMemory{
		MemoryID:          "existing-1",
		UserID:            "user-1",
		SessionID:         "session-0",
		Content:           "Prefers PostgreSQL for analytics",
		Summary:           "Prefers PostgreSQL for analytics",
		SearchableContent: "Prefers PostgreSQL for analytics",
		Classification:    store.ClassificationEssential,
		MemoryImportance:  store.ImportanceHigh,
		ImportanceScore:   0.8,
	})
	require.NoError(t, err)

	svc := &stubLLM{response: classifierOutput(t)}
	c := NewClassifier(svc, s, tenant.NewManager())

	tctx := tenant.NewContext("user-1", "", "session-1")
	row, err := c.ProcessConversation(context.Background(), tctx, "chat-2", "I prefer postgres", "Noted")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "existing-1", row.DuplicateOf)
	assert.True(t, row.ProcessedForDuplicates)
}

func TestSummarySimilarity(t *testing.T) {
	assert.Equal(t, 1.0, summarySimilarity("prefers postgres", "Prefers Postgres"))
	assert.Less(t, summarySimilarity("prefers postgres", "lives in berlin"), 0.2)
	assert.Equal(t, 0.0, summarySimilarity("", "anything"))
}
