package core

import (
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ExtractUserInput returns the text of the last user message. Multi-part
// content concatenates the text segments; images are counted into a suffix.
func ExtractUserInput(messages []openai.ChatCompletionMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != openai.ChatMessageRoleUser {
			continue
		}
		return messageText(messages[i])
	}
	return ""
}

func messageText(message openai.ChatCompletionMessage) string {
	if len(message.MultiContent) == 0 {
		return message.Content
	}

	var parts []string
	images := 0
	for _, part := range message.MultiContent {
		switch part.Type {
		case openai.ChatMessagePartTypeText:
			if part.Text != "" {
				parts = append(parts, part.Text)
			}
		case openai.ChatMessagePartTypeImageURL:
			images++
		}
	}
	text := strings.Join(parts, " ")
	if images > 0 {
		suffix := fmt.Sprintf("[Contains %d image(s)]", images)
		if text == "" {
			return suffix
		}
		return text + " " + suffix
	}
	return text
}

// ExtractAIOutput returns the assistant text of a completion choice. Tool
// call responses are summarized as "[Tool calls: name(args), ...]".
func ExtractAIOutput(message openai.ChatCompletionMessage) string {
	if len(message.ToolCalls) == 0 {
		return message.Content
	}

	calls := make([]string, 0, len(message.ToolCalls))
	for _, tc := range message.ToolCalls {
		calls = append(calls, fmt.Sprintf("%s(%s)", tc.Function.Name, tc.Function.Arguments))
	}
	summary := "[Tool calls: " + strings.Join(calls, ", ") + "]"
	if message.Content != "" {
		return message.Content + " " + summary
	}
	return summary
}

// ResponseTokens extracts total token usage from a completion response.
func ResponseTokens(resp *openai.ChatCompletionResponse) int {
	if resp == nil {
		return 0
	}
	return resp.Usage.TotalTokens
}
