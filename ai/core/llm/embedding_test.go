package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/mnemosyne/internal/profile"
)

func TestNewEmbedderGating(t *testing.T) {
	tests := []struct {
		name    string
		profile profile.Profile
		want    bool
	}{
		{"no embedding config", profile.Profile{}, false},
		{"model without key or url", profile.Profile{EmbeddingModel: "text-embedding-3-small"}, false},
		{"model with key", profile.Profile{EmbeddingModel: "text-embedding-3-small", EmbeddingAPIKey: "sk-test"}, true},
		{"model with local url", profile.Profile{EmbeddingModel: "nomic-embed-text", EmbeddingURL: "http://localhost:11434/v1"}, true},
		{"key without model", profile.Profile{EmbeddingAPIKey: "sk-test"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEmbedder(&tt.profile)
			if tt.want {
				assert.NotNil(t, e)
			} else {
				assert.Nil(t, e)
			}
		})
	}
}
