package aichannel

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements the Provider interface using the Anthropic API.
type AnthropicProvider struct {
	client anthropic.Client
	config ProviderConfig
	apiKey string
}

// AnthropicModelSonnet is the default Anthropic model.
const AnthropicModelSonnet = "claude-sonnet-4-5-20250929"

// anthropicEnvKeys are checked in order when no key is configured.
var anthropicEnvKeys = []string{"ANTHROPIC_API_KEY", "CLAUDE_KEY"}

// NewAnthropicProvider creates a new Anthropic API provider.
// If config.APIKey is empty, ANTHROPIC_API_KEY and then CLAUDE_KEY are used.
func NewAnthropicProvider(config ProviderConfig) *AnthropicProvider {
	apiKey := config.APIKey
	for _, env := range anthropicEnvKeys {
		if apiKey != "" {
			break
		}
		apiKey = os.Getenv(env)
	}

	if config.Model == "" {
		config.Model = AnthropicModelSonnet
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = DefaultMaxTokens
	}

	opts := []option.RequestOption{
		// Retries are left to the caller; a fix request is never retried.
		option.WithMaxRetries(0),
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		config: config,
		apiKey: apiKey,
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return string(ProviderAnthropic)
}

// IsConfigured returns true if the provider has an API key.
func (p *AnthropicProvider) IsConfigured() bool {
	return p.apiKey != ""
}

// Complete sends a prompt and returns the completion.
func (p *AnthropicProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (*Response, error) {
	return p.CompleteWithContext(ctx, systemPrompt, userPrompt, "")
}

// CompleteWithContext sends a prompt with additional context and returns the completion.
func (p *AnthropicProvider) CompleteWithContext(ctx context.Context, systemPrompt, userPrompt, inputContext string) (*Response, error) {
	if !p.IsConfigured() {
		return nil, ErrNoAPIKey
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		MaxTokens: int64(p.config.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(withContext(userPrompt, inputContext))),
		},
	}
	if p.config.Temperature > 0 {
		params.Temperature = anthropic.Float(p.config.Temperature)
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}

	start := time.Now()
	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderError, err)
	}

	var resultText strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			resultText.WriteString(block.Text)
		}
	}

	return &Response{
		Result:       strings.TrimSpace(resultText.String()),
		SessionID:    message.ID,
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
		DurationMS:   time.Since(start).Milliseconds(),
	}, nil
}

// Model returns the configured model name.
func (p *AnthropicProvider) Model() string {
	return p.config.Model
}
