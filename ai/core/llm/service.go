package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/hrygo/mnemosyne/internal/profile"
)

// Message represents a chat message.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// CallStats carries token usage and timing for a single LLM call.
type CallStats struct {
	PromptTokens     int   `json:"prompt_tokens"`
	CompletionTokens int   `json:"completion_tokens"`
	TotalTokens      int   `json:"total_tokens"`
	CacheReadTokens  int   `json:"cache_read_tokens,omitempty"`
	TotalDurationMs  int64 `json:"total_duration_ms"`
}

// Service is the LLM service interface. Structured calls return validated
// JSON decoded into out; plain Chat returns raw text.
type Service interface {
	Chat(ctx context.Context, messages []Message) (string, *CallStats, error)
	ChatStructured(ctx context.Context, messages []Message, schema *ResponseSchema, out any) (*CallStats, error)
	Model() string
}

type service struct {
	client         *openai.Client
	model          string
	provider       string
	timeout        int // seconds
	customEndpoint bool
}

// NewService creates a go-openai backed LLM service from the profile. Every
// supported provider speaks the OpenAI-compatible chat protocol.
func NewService(p *profile.Profile) (Service, error) {
	if p.LLMAPIKey == "" && p.LLMProvider != "ollama" {
		return nil, errors.New("llm api key required")
	}

	clientConfig := openai.DefaultConfig(p.LLMAPIKey)
	if p.LLMBaseURL != "" {
		clientConfig.BaseURL = p.LLMBaseURL
	}
	clientConfig.HTTPClient = newHTTPClient(p.LLMTimeout)

	return &service{
		client:         openai.NewClientWithConfig(clientConfig),
		model:          p.LLMModel,
		provider:       p.LLMProvider,
		timeout:        p.LLMTimeout,
		customEndpoint: p.UsesCustomEndpoint(),
	}, nil
}

func (s *service) Model() string {
	return s.model
}

func (s *service) Chat(ctx context.Context, messages []Message) (string, *CallStats, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.timeout)*time.Second)
	defer cancel()

	slog.Debug("llm chat request", "model", s.model, "messages", len(messages))
	startTime := time.Now()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: convertMessages(messages),
	})
	if err != nil {
		return "", nil, errors.Wrap(err, "llm chat failed")
	}
	if len(resp.Choices) == 0 {
		return "", nil, errors.New("empty response from llm")
	}

	stats := statsFromUsage(resp.Usage, time.Since(startTime))
	slog.Debug("llm chat response",
		"content_length", len(resp.Choices[0].Message.Content),
		"total_tokens", stats.TotalTokens,
		"duration_ms", stats.TotalDurationMs,
	)
	return resp.Choices[0].Message.Content, stats, nil
}

// ChatStructured requests JSON conforming to schema and decodes it into out.
// OpenAI endpoints get native structured output; custom endpoints get the
// schema embedded in the prompt. Malformed JSON goes through jsonrepair
// before the call is declared failed.
func (s *service) ChatStructured(ctx context.Context, messages []Message, schema *ResponseSchema, out any) (*CallStats, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.timeout)*time.Second)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: 0.1,
	}

	if s.customEndpoint {
		req.Messages = convertMessages(withSchemaPrompt(messages, schema))
	} else {
		req.Messages = convertMessages(messages)
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   schema.Name,
				Schema: schema.Schema,
				Strict: true,
			},
		}
	}

	startTime := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "llm structured chat failed")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("empty response from llm")
	}

	stats := statsFromUsage(resp.Usage, time.Since(startTime))
	content := extractJSON(resp.Choices[0].Message.Content)

	if err := json.Unmarshal([]byte(content), out); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(content)
		if repairErr != nil {
			return stats, errors.Wrap(err, "failed to decode structured response")
		}
		if err := json.Unmarshal([]byte(repaired), out); err != nil {
			return stats, errors.Wrap(err, "failed to decode repaired structured response")
		}
		slog.Warn("llm returned malformed json, repaired", "model", s.model, "schema", schema.Name)
	}
	return stats, nil
}

// withSchemaPrompt appends JSON instructions for endpoints without native
// structured output.
func withSchemaPrompt(messages []Message, schema *ResponseSchema) []Message {
	schemaJSON, _ := json.Marshal(schema.Schema)
	instruction := "Respond with a single JSON object matching this JSON Schema, with no markdown fences and no commentary:\n" + string(schemaJSON)

	out := make([]Message, 0, len(messages)+1)
	out = append(out, messages...)
	out = append(out, Message{Role: "system", Content: instruction})
	return out
}

// extractJSON strips markdown fences and surrounding prose some models wrap
// around JSON output.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx != -1 {
			content = content[:idx]
		}
		return strings.TrimSpace(content)
	}
	start := strings.IndexAny(content, "{[")
	if start > 0 {
		content = content[start:]
	}
	return content
}

func statsFromUsage(usage openai.Usage, duration time.Duration) *CallStats {
	stats := &CallStats{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		TotalDurationMs:  duration.Milliseconds(),
	}
	if usage.PromptTokensDetails != nil && usage.PromptTokensDetails.CachedTokens > 0 {
		stats.CacheReadTokens = usage.PromptTokensDetails.CachedTokens
	}
	return stats
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	llmMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case "system":
			role = openai.ChatMessageRoleSystem
		case "assistant":
			role = openai.ChatMessageRoleAssistant
		}
		llmMessages[i] = openai.ChatCompletionMessage{Role: role, Content: m.Content}
	}
	return llmMessages
}

func newHTTPClient(timeoutSeconds int) *http.Client {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 60
	}
	return &http.Client{
		Timeout: time.Duration(timeoutSeconds) * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// SystemPrompt creates a system message.
func SystemPrompt(content string) Message {
	return Message{Role: "system", Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}
