package embedder

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	APIKey    string
	Model     string
	CacheSize int
	Timeout   time.Duration

	// Endpoint overrides the provider's default URL
	Endpoint string
}

// NewFromConfig creates the configured embedder. An empty provider selects
// the offline local provider. Remote providers fall back to JINA_API_KEY or
// OPENAI_API_KEY when no key is configured.
func NewFromConfig(cfg Config) (Embedder, error) {
	cache := NewCache(cfg.CacheSize)

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderLocal:
		return NewLocalProvider(cache), nil
	case ProviderJina:
		return NewHTTPProvider(HTTPConfig{
			Provider:  ProviderJina,
			Endpoint:  orDefault(cfg.Endpoint, JinaEndpoint),
			APIKey:    orDefault(cfg.APIKey, os.Getenv(EnvJinaAPIKey)),
			Model:     orDefault(cfg.Model, DefaultJinaModel),
			Dimension: JinaDimension,
			Timeout:   cfg.Timeout,
		}, cache)
	case ProviderOpenAI:
		return NewHTTPProvider(HTTPConfig{
			Provider:  ProviderOpenAI,
			Endpoint:  orDefault(cfg.Endpoint, OpenAIEndpoint),
			APIKey:    orDefault(cfg.APIKey, os.Getenv(EnvOpenAIAPIKey)),
			Model:     orDefault(cfg.Model, DefaultOpenAIModel),
			Dimension: OpenAIDimension,
			Timeout:   cfg.Timeout,
		}, cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
