package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAppliesDefaults(t *testing.T) {
	p := &Profile{DSN: "sqlite::memory:", UserID: "user-1"}
	require.NoError(t, p.Validate())

	assert.Equal(t, "dev", p.Mode)
	assert.Equal(t, "openai", p.LLMProvider)
	assert.Equal(t, "https://api.openai.com/v1", p.LLMBaseURL)
	assert.Equal(t, 60, p.LLMTimeout)
	assert.Equal(t, 10, p.PoolSize)
}

func TestValidateRequiresDSNAndUser(t *testing.T) {
	assert.Error(t, (&Profile{UserID: "user-1"}).Validate())
	assert.Error(t, (&Profile{DSN: "sqlite::memory:"}).Validate())
}

func TestIsAIEnabled(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		want    bool
	}{
		{"no llm configured", Profile{}, false},
		{"api key set", Profile{LLMAPIKey: "sk-test"}, true},
		{"ollama without key", Profile{LLMProvider: "ollama"}, true},
		{"deepseek without key", Profile{LLMProvider: "deepseek"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.profile.IsAIEnabled())
		})
	}
}

func TestUsesCustomEndpoint(t *testing.T) {
	assert.False(t, (&Profile{LLMProvider: "openai"}).UsesCustomEndpoint())
	assert.True(t, (&Profile{LLMProvider: "ollama"}).UsesCustomEndpoint())
	assert.True(t, (&Profile{LLMBaseURL: "http://localhost:11434/v1"}).UsesCustomEndpoint())
	assert.False(t, (&Profile{LLMBaseURL: "https://api.openai.com/v1"}).UsesCustomEndpoint())
}
