// Package aichannel provides LLM completion providers: the native Anthropic
// client and langchaingo-backed OpenAI, Google, Mistral and OpenAI-compatible
// endpoints.
package aichannel

import (
	"context"
	"errors"
)

// Common errors for providers
var (
	ErrNoAPIKey      = errors.New("API key not configured")
	ErrProviderError = errors.New("provider error")
)

// Provider represents an LLM provider that can generate completions.
type Provider interface {
	// Name returns the provider name (e.g., "anthropic", "openai")
	Name() string

	// Complete sends a prompt and returns the completion.
	// The systemPrompt provides context/instructions, userPrompt is the actual query.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (*Response, error)

	// CompleteWithContext is like Complete but attaches inputContext (logs,
	// source files) ahead of the user prompt.
	CompleteWithContext(ctx context.Context, systemPrompt, userPrompt, inputContext string) (*Response, error)

	// IsConfigured returns true if the provider has necessary credentials.
	IsConfigured() bool

	// Model returns the model completions are requested from.
	Model() string
}

// ProviderConfig holds common configuration for API-based providers.
type ProviderConfig struct {
	// APIKey is the authentication key for the provider
	APIKey string `json:"api_key,omitempty"`

	// Model is the model to use (e.g., "claude-sonnet-4-5-20250929")
	Model string `json:"model,omitempty"`

	// MaxTokens limits the response length. Fix responses carry whole
	// files, so the default is generous.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0-1.0)
	Temperature float64 `json:"temperature,omitempty"`

	// BaseURL overrides the default API endpoint (for proxies/self-hosted)
	BaseURL string `json:"base_url,omitempty"`
}

// DefaultMaxTokens is used when ProviderConfig.MaxTokens is zero.
const DefaultMaxTokens = 8192

// withContext prepends inputContext to the user prompt.
func withContext(userPrompt, inputContext string) string {
	if inputContext == "" {
		return userPrompt
	}
	return "<context>\n" + inputContext + "\n</context>\n\n" + userPrompt
}
