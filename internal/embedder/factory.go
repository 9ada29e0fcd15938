package embedder

import (
	"fmt"
	"os"
	"strings"
)

// Config holds provider configuration
type Config struct {
	Provider string // jina, openai, local, or empty/auto to detect
	Model    string
	APIKey   string
	BaseURL  string
}

// New creates a provider from explicit configuration.
// An empty or "auto" provider is resolved with DetectProvider.
func New(cfg Config) (Provider, error) {
	provider := strings.ToLower(cfg.Provider)
	if provider == "" || provider == "auto" {
		provider = DetectProvider()
	}

	switch provider {
	case ProviderJina:
		return NewJinaProvider(cfg.APIKey, cfg.Model, cfg.BaseURL)
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.BaseURL)
	case ProviderLocal:
		return NewLocalProvider(), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider returns the provider implied by the available API keys:
// Jina first, then OpenAI, falling back to local.
func DetectProvider() string {
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	return ProviderLocal
}
