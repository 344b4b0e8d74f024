package intercept

import (
	"context"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mnemosyne/core"
	"github.com/hrygo/mnemosyne/internal/profile"
	"github.com/hrygo/mnemosyne/store"
	"github.com/hrygo/mnemosyne/store/db/sqlite"
)

// fakeClient records the last request and returns a canned response.
type fakeClient struct {
	lastRequest openai.ChatCompletionRequest
	response    openai.ChatCompletionResponse
}

func (f *fakeClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastRequest = req
	return f.response, nil
}

func (f *fakeClient) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error) {
	f.lastRequest = req
	return nil, nil
}

func newTestSetup(t *testing.T, conscious bool) (*Interceptor, *fakeClient, *core.Memory) {
	t.Helper()
	p := &profile.Profile{
		DSN:                        "sqlite::memory:",
		UserID:                     "user-1",
		SessionID:                  "session-1",
		ConsciousIngest:            conscious,
		AutoActivateSingleInstance: true,
	}
	require.NoError(t, p.Validate())

	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })
	require.NoError(t, driver.Migrate(context.Background()))

	m := core.NewMemory(p, store.New(driver, p), nil)
	t.Cleanup(func() { _ = m.Disable() })

	client := &fakeClient{
		response: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "hello there"}},
			},
			Usage: openai.Usage{TotalTokens: 12},
		},
	}
	return Wrap(client, m), client, m
}

func TestInterceptorRecordsExchange(t *testing.T) {
	wrapped, _, m := newTestSetup(t, false)
	require.NoError(t, m.Enable(context.Background()))

	_, err := wrapped.CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{
		Model: "gpt-4o",
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "hi"},
		},
	})
	require.NoError(t, err)

	rows, err := m.Store().GetChatHistory(context.Background(), &store.FindChatHistory{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "hi", rows[0].UserInput)
	assert.Equal(t, "hello there", rows[0].AIOutput)
	assert.Equal(t, 12, rows[0].TokensUsed)
	assert.Equal(t, "gpt-4o", rows[0].Model)
}

func TestInterceptorInjectsConsciousContext(t *testing.T) {
	wrapped, client, m := newTestSetup(t, true)
	_, err := m.Store().StoreShortTerm(context.Background(), &store.ShortTermMemory{
		MemoryID:           "mem-1",
		UserID:             "user-1",
		SessionID:          "session-1",
		SearchableContent:  "user name is Jane",
		Summary:            "user name is Jane",
		CategoryPrimary:    store.CategoryConsciousContext,
		RetentionType:      store.RetentionPermanent,
		IsPermanentContext: true,
		ImportanceScore:    0.9,
	})
	require.NoError(t, err)
	require.NoError(t, m.Enable(context.Background()))

	_, err = wrapped.CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{
		Model: "gpt-4o",
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "be helpful"},
			{Role: openai.ChatMessageRoleUser, Content: "what is my name"},
		},
	})
	require.NoError(t, err)

	system := client.lastRequest.Messages[0]
	assert.Equal(t, openai.ChatMessageRoleSystem, system.Role)
	assert.Contains(t, system.Content, "user name is Jane")
	assert.Contains(t, system.Content, "be helpful")
}

func TestInterceptorSkipsSentinel(t *testing.T) {
	wrapped, client, m := newTestSetup(t, true)
	require.NoError(t, m.Enable(context.Background()))

	req := openai.ChatCompletionRequest{
		Model: "gpt-4o",
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "[INTERNAL_MEMORI_SEARCH] find postgres memories"},
		},
	}
	_, err := wrapped.CreateChatCompletion(context.Background(), req)
	require.NoError(t, err)

	assert.Len(t, client.lastRequest.Messages, 1)
}

func TestInterceptorRequiresActivationWhenAutoActivateOff(t *testing.T) {
	p := &profile.Profile{
		DSN:             "sqlite::memory:",
		UserID:          "user-1",
		SessionID:       "session-1",
		ConsciousIngest: true,
	}
	require.NoError(t, p.Validate())

	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })
	require.NoError(t, driver.Migrate(context.Background()))

	m := core.NewMemory(p, store.New(driver, p), nil)
	t.Cleanup(func() { _ = m.Disable() })

	client := &fakeClient{response: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "ok"}},
		},
	}}
	wrapped := Wrap(client, m)

	_, err = m.Store().StoreShortTerm(context.Background(), &store.ShortTermMemory{
		MemoryID:           "mem-1",
		UserID:             "user-1",
		SessionID:          "session-1",
		SearchableContent:  "user name is Jane",
		Summary:            "user name is Jane",
		CategoryPrimary:    store.CategoryConsciousContext,
		RetentionType:      store.RetentionPermanent,
		IsPermanentContext: true,
		ImportanceScore:    0.9,
	})
	require.NoError(t, err)
	require.NoError(t, m.Enable(context.Background()))

	// No active context and no auto-activation: the request passes through
	// without an injected system message.
	_, err = wrapped.CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{
		Model: "gpt-4o",
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "what is my name"},
		},
	})
	require.NoError(t, err)

	require.Len(t, client.lastRequest.Messages, 1)
	assert.Equal(t, openai.ChatMessageRoleUser, client.lastRequest.Messages[0].Role)

	// Explicit activation turns injection back on.
	m.SetActiveContext("req-1")
	_, err = wrapped.CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{
		Model: "gpt-4o",
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "what is my name"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, openai.ChatMessageRoleSystem, client.lastRequest.Messages[0].Role)
	assert.Contains(t, client.lastRequest.Messages[0].Content, "user name is Jane")
}

func TestInterceptorDisabledPassthrough(t *testing.T) {
	wrapped, client, _ := newTestSetup(t, false)

	req := openai.ChatCompletionRequest{
		Model: "gpt-4o",
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "hi"},
		},
	}
	_, err := wrapped.CreateChatCompletion(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, client.lastRequest.Messages, 1)
}
