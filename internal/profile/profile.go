package profile

import (
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start the memory service.
type Profile struct {
	// LLM configuration (OpenAI-compatible protocol).
	// All providers (openai, deepseek, ollama, azure) use the same config.
	LLMProvider string // Provider identifier: openai, azure, deepseek, ollama, custom
	LLMAPIKey   string // LLM API key
	LLMBaseURL  string // LLM base URL (optional, has default per provider)
	LLMModel    string // Model name: gpt-4o, deepseek-chat, etc.
	LLMTimeout  int    // LLM request timeout in seconds (default: 60)

	// Optional embedding configuration (postgres backend only).
	EmbeddingModel  string
	EmbeddingAPIKey string
	EmbeddingURL    string

	// Database configuration.
	DSN string // connection string; backend selected by prefix

	// Connection pool settings for relational backends.
	PoolSize        int // max open connections (default: 10)
	PoolMaxOverflow int // extra connections above PoolSize (default: 5)
	PoolTimeout     int // connection acquire timeout in seconds (default: 30)
	PoolRecycle     int // connection max lifetime in seconds (default: 3600)
	PoolPrePing     bool

	// Ingest modes.
	ConsciousIngest bool // one-shot working-set injection per session
	AutoIngest      bool // per-turn retrieval injection

	// Per-user quota limits. Zero values take the quota package defaults.
	MaxStorageBytes   int64
	MaxMemoryRows     int64
	MaxAPICallsPerDay int64

	// Default tenant.
	UserID      string
	AssistantID string
	SessionID   string

	// AutoActivateSingleInstance auto-sets the sole enabled instance as the
	// active tenant context. Convenient for single-tenant deployments but
	// masks bugs in multi-tenant ones, so it is opt-in.
	AutoActivateSingleInstance bool

	// HTTP ops surface.
	Addr string
	Port int

	Mode    string // dev, prod, demo
	Version string
}

// Provider default configurations for LLM.
// Used when LLMBaseURL is not explicitly set.
var llmProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o",
	},
	"deepseek": {
		BaseURL: "https://api.deepseek.com",
		Model:   "deepseek-chat",
	},
	"ollama": {
		BaseURL: "http://localhost:11434/v1",
		Model:   "llama3.1",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled reports whether an LLM backend is reachable. Ollama runs
// without an API key, mirroring the key requirement in the llm service.
func (p *Profile) IsAIEnabled() bool {
	return p.LLMAPIKey != "" || p.LLMProvider == "ollama"
}

// UsesCustomEndpoint reports whether the LLM endpoint is not the standard
// OpenAI API. Custom endpoints often lack structured-output support, so
// callers fall back to JSON-schema-in-prompt parsing.
func (p *Profile) UsesCustomEndpoint() bool {
	if p.LLMProvider != "" && p.LLMProvider != "openai" {
		return true
	}
	if p.LLMBaseURL == "" {
		return false
	}
	if strings.Contains(p.LLMBaseURL, "localhost") || strings.Contains(p.LLMBaseURL, "127.0.0.1") {
		return true
	}
	return !strings.HasPrefix(p.LLMBaseURL, "https://api.openai.com")
}

// Validate checks the profile and applies defaults.
func (p *Profile) Validate() error {
	if p.DSN == "" {
		return errors.New("dsn required")
	}
	if p.UserID == "" {
		return errors.New("user-id required")
	}

	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}
	if p.LLMTimeout <= 0 {
		p.LLMTimeout = 60
	}
	if p.PoolSize <= 0 {
		p.PoolSize = 10
	}
	if p.PoolMaxOverflow < 0 {
		p.PoolMaxOverflow = 5
	}
	if p.PoolTimeout <= 0 {
		p.PoolTimeout = 30
	}
	if p.PoolRecycle <= 0 {
		p.PoolRecycle = 3600
	}

	if p.LLMProvider == "" {
		p.LLMProvider = "openai"
	}
	if defaults, ok := llmProviderDefaults[p.LLMProvider]; ok {
		if p.LLMBaseURL == "" {
			p.LLMBaseURL = defaults.BaseURL
		}
		if p.LLMModel == "" {
			p.LLMModel = defaults.Model
		}
	}
	return nil
}
