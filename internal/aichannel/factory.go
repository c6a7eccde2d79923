package aichannel

import (
	"fmt"
	"strings"
)

// Config selects and configures a provider.
type Config struct {
	// Provider names an entry of the provider registry. Empty picks the
	// first provider with a key in the environment.
	Provider string
	ProviderConfig
}

// New builds the provider described by cfg. Anthropic goes through the
// native SDK; every other provider goes through langchaingo.
func New(cfg Config) (Provider, error) {
	name := LLMProvider(strings.ToLower(strings.TrimSpace(cfg.Provider)))
	if name == "" {
		if cfg.APIKey != "" {
			return nil, fmt.Errorf("an API key was configured without a provider")
		}
		name = DetectProvider()
		if name == "" {
			return nil, fmt.Errorf("%w: set one of the provider API key variables", ErrNoAPIKey)
		}
	}

	if _, ok := providerRegistry[name]; !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}

	if name == ProviderAnthropic {
		p := NewAnthropicProvider(cfg.ProviderConfig)
		if !p.IsConfigured() {
			return nil, fmt.Errorf("%w: no API key found for %s (tried: %v)", ErrNoAPIKey, name, anthropicEnvKeys)
		}
		return p, nil
	}

	p, err := NewLangChainProvider(LangChainConfig{
		Provider:    name,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		BaseURL:     cfg.BaseURL,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
