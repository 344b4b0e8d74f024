package core

import (
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func TestExtractUserInputLastUserMessage(t *testing.T) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: "be helpful"},
		{Role: openai.ChatMessageRoleUser, Content: "first question"},
		{Role: openai.ChatMessageRoleAssistant, Content: "first answer"},
		{Role: openai.ChatMessageRoleUser, Content: "second question"},
	}
	assert.Equal(t, "second question", ExtractUserInput(messages))
}

func TestExtractUserInputMultiPart(t *testing.T) {
	messages := []openai.ChatCompletionMessage{
		{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: "what is"},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: "data:image/png;base64,xxx"}},
				{Type: openai.ChatMessagePartTypeText, Text: "in this picture"},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: "data:image/png;base64,yyy"}},
			},
		},
	}
	assert.Equal(t, "what is in this picture [Contains 2 image(s)]", ExtractUserInput(messages))
}

func TestExtractUserInputNoUserMessage(t *testing.T) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: "be helpful"},
	}
	assert.Equal(t, "", ExtractUserInput(messages))
}

func TestExtractAIOutputPlain(t *testing.T) {
	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "the answer"}
	assert.Equal(t, "the answer", ExtractAIOutput(msg))
}

func TestExtractAIOutputToolCalls(t *testing.T) {
	msg := openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleAssistant,
		ToolCalls: []openai.ToolCall{
			{Function: openai.FunctionCall{Name: "get_weather", Arguments: `{"city":"Berlin"}`}},
		},
	}
	assert.Equal(t, `[Tool calls: get_weather({"city":"Berlin"})]`, ExtractAIOutput(msg))
}

func TestResponseTokens(t *testing.T) {
	resp := &openai.ChatCompletionResponse{Usage: openai.Usage{TotalTokens: 123}}
	assert.Equal(t, 123, ResponseTokens(resp))
	assert.Equal(t, 0, ResponseTokens(nil))
}
