// Package intercept wraps an OpenAI-compatible client so every chat
// completion is augmented with memory context and recorded afterwards. It is
// an explicit middleware: the host hands its client in and uses the wrapper.
package intercept

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/hrygo/mnemosyne/ai/inject"
	"github.com/hrygo/mnemosyne/core"
)

// ChatClient is the client surface the interceptor wraps. *openai.Client
// satisfies it.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}

// Interceptor is the wrapped client.
type Interceptor struct {
	client ChatClient
	memory *core.Memory
}

// Wrap builds the memory-augmenting wrapper around a client.
func Wrap(client ChatClient, memory *core.Memory) *Interceptor {
	return &Interceptor{client: client, memory: memory}
}

// CreateChatCompletion injects memory context, forwards the request, and
// records the exchange.
func (i *Interceptor) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	req = i.augment(ctx, req)

	resp, err := i.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return resp, err
	}

	i.record(ctx, req, &resp)
	return resp, nil
}

// CreateChatCompletionStream injects context but does not record: streaming
// responses are not captured at the interception point.
func (i *Interceptor) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error) {
	req = i.augment(ctx, req)
	return i.client.CreateChatCompletionStream(ctx, req)
}

func (i *Interceptor) augment(ctx context.Context, req openai.ChatCompletionRequest) openai.ChatCompletionRequest {
	if !i.memory.Enabled() {
		return req
	}

	injector := i.memory.Injector()
	if !injector.ShouldInject(requestText(req.Messages)) {
		return req
	}

	tctx, err := i.memory.GetActiveContext(true)
	if err != nil {
		// Context activation is an explicit step unless the host opted
		// into single-instance auto-activation.
		if !i.memory.Profile().AutoActivateSingleInstance {
			return req
		}
		tctx = i.memory.SetActiveContext("")
	}

	memoryContext, err := injector.ContextFor(ctx, tctx, core.ExtractUserInput(req.Messages))
	if err != nil {
		slog.Warn("memory context retrieval failed, forwarding request unmodified", "error", err)
		return req
	}
	if memoryContext == "" {
		return req
	}

	return withSystemContext(req, memoryContext)
}

func (i *Interceptor) record(ctx context.Context, req openai.ChatCompletionRequest, resp *openai.ChatCompletionResponse) {
	if !i.memory.Enabled() || len(resp.Choices) == 0 {
		return
	}

	userInput := core.ExtractUserInput(req.Messages)
	aiOutput := core.ExtractAIOutput(resp.Choices[0].Message)
	if userInput == "" && aiOutput == "" {
		return
	}

	metadata := map[string]any{"tokens_used": core.ResponseTokens(resp)}
	if _, err := i.memory.RecordConversation(ctx, userInput, aiOutput, req.Model, metadata); err != nil {
		slog.Warn("failed to record conversation", "error", err)
	}
}

// withSystemContext merges the memory preamble into the request's system
// message, or prepends a new one.
func withSystemContext(req openai.ChatCompletionRequest, memoryContext string) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	copy(messages, req.Messages)

	for idx, msg := range messages {
		if msg.Role == openai.ChatMessageRoleSystem {
			messages[idx].Content = inject.MergeSystemText(msg.Content, memoryContext)
			req.Messages = messages
			return req
		}
	}

	req.Messages = append([]openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: memoryContext},
	}, messages...)
	return req
}

func requestText(messages []openai.ChatCompletionMessage) string {
	var b strings.Builder
	for _, msg := range messages {
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return b.String()
}
