package llm

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/hrygo/mnemosyne/internal/profile"
)

// Embedder produces vector embeddings for semantic search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type embedder struct {
	client *openai.Client
	model  string
}

// NewEmbedder creates an embedding client from the profile. Returns nil when
// no embedding model or endpoint is configured; callers treat nil as
// semantic search disabled.
func NewEmbedder(p *profile.Profile) Embedder {
	if p.EmbeddingModel == "" {
		return nil
	}
	if p.EmbeddingAPIKey == "" && p.EmbeddingURL == "" {
		return nil
	}

	clientConfig := openai.DefaultConfig(p.EmbeddingAPIKey)
	if p.EmbeddingURL != "" {
		clientConfig.BaseURL = p.EmbeddingURL
	}
	clientConfig.HTTPClient = newHTTPClient(p.LLMTimeout)

	return &embedder{
		client: openai.NewClientWithConfig(clientConfig),
		model:  p.EmbeddingModel,
	}
}

func (e *embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, errors.Wrap(err, "embedding request failed")
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("empty embedding response")
	}
	return resp.Data[0].Embedding, nil
}
