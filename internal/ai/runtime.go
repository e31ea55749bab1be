package ai

import (
	"context"
	"fmt"
	"time"
)

// Runtime generates chat completions.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Embedder turns texts into vectors, one per input.
type Embedder interface {
	Embed(ctx context.Context, model string, inputs []string) ([][]float32, error)
}

// Provider identifiers accepted in configuration.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Config carries the knobs shared by runtimes.
type Config struct {
	HTTPTimeout time.Duration
	RetryMax    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// OpenAI-compatible
	APIKey  string
	BaseURL string
	// Ollama
	Host string
}

// NewRuntime builds the generation runtime for provider. Callers own the
// returned handle and pass it to whatever needs it.
func NewRuntime(provider string, c Config) (Runtime, error) {
	switch provider {
	case ProviderOllama, "":
		return NewOllamaClient(c.Host, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay), nil
	case ProviderOpenAI:
		return NewOpenAIClient(c.APIKey, c.BaseURL, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay), nil
	}
	return nil, fmt.Errorf("unknown generation provider %q (use %s or %s)", provider, ProviderOllama, ProviderOpenAI)
}

// NewEmbedder builds the embedding client for provider.
func NewEmbedder(provider string, c Config) (Embedder, error) {
	switch provider {
	case ProviderOllama, "":
		return NewOllamaClient(c.Host, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay), nil
	case ProviderOpenAI:
		return NewOpenAIClient(c.APIKey, c.BaseURL, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay), nil
	}
	return nil, fmt.Errorf("unknown embedding provider %q (use %s or %s)", provider, ProviderOllama, ProviderOpenAI)
}
