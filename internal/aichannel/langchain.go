package aichannel

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/mistral"
	"github.com/tmc/langchaingo/llms/openai"
)

// LLMProvider names a completion backend accepted by New.
type LLMProvider string

const (
	ProviderOpenAI     LLMProvider = "openai"
	ProviderAnthropic  LLMProvider = "anthropic"
	ProviderGoogle     LLMProvider = "google"
	ProviderMistral    LLMProvider = "mistral"
	ProviderDeepSeek   LLMProvider = "deepseek"
	ProviderOpenRouter LLMProvider = "openrouter"
	ProviderTogether   LLMProvider = "together"
	ProviderHyperbolic LLMProvider = "hyperbolic"
	ProviderSambaNova  LLMProvider = "sambanova"
	ProviderGLM        LLMProvider = "glm"
)

// backend is the client library that talks to a provider.
type backend int

const (
	backendAnthropicSDK backend = iota
	backendOpenAI
	backendGoogle
	backendMistral
)

type providerSpec struct {
	envKeys []string
	baseURL string
	model   string
	backend backend
}

var providerRegistry = map[LLMProvider]providerSpec{
	ProviderAnthropic:  {envKeys: anthropicEnvKeys, model: AnthropicModelSonnet, backend: backendAnthropicSDK},
	ProviderOpenAI:     {envKeys: []string{"OPENAI_KEY", "OPENAI_API_KEY"}, model: "gpt-4o-mini", backend: backendOpenAI},
	ProviderGoogle:     {envKeys: []string{"GOOGLE_KEY", "GOOGLE_API_KEY"}, model: "gemini-1.5-flash", backend: backendGoogle},
	ProviderMistral:    {envKeys: []string{"MISTRAL_KEY", "MISTRAL_API_KEY"}, model: "mistral-small-latest", backend: backendMistral},
	ProviderDeepSeek:   {envKeys: []string{"DEEP_SEEK_KEY", "DEEPSEEK_API_KEY"}, baseURL: "https://api.deepseek.com/v1", model: "deepseek-chat", backend: backendOpenAI},
	ProviderOpenRouter: {envKeys: []string{"OPEN_ROUTER_KEY", "OPENROUTER_API_KEY"}, baseURL: "https://openrouter.ai/api/v1", model: "anthropic/claude-3.5-sonnet", backend: backendOpenAI},
	ProviderTogether:   {envKeys: []string{"TOGETHER_KEY", "TOGETHER_API_KEY"}, baseURL: "https://api.together.xyz/v1", model: "meta-llama/Llama-3-70b-chat-hf", backend: backendOpenAI},
	ProviderHyperbolic: {envKeys: []string{"HYPERBOLIC_KEY", "HYPERBOLIC_API_KEY"}, baseURL: "https://api.hyperbolic.xyz/v1", model: "meta-llama/Llama-3.3-70B-Instruct", backend: backendOpenAI},
	ProviderSambaNova:  {envKeys: []string{"SAMBA_NOVA_KEY", "SAMBANOVA_API_KEY"}, baseURL: "https://api.sambanova.ai/v1", model: "Meta-Llama-3.1-8B-Instruct", backend: backendOpenAI},
	ProviderGLM:        {envKeys: []string{"GLM_KEY", "GLM_API_KEY"}, baseURL: "https://open.bigmodel.cn/api/paas/v4", model: "glm-4-flash", backend: backendOpenAI},
}

// detectOrder is the order DetectProvider tries environment keys in.
var detectOrder = []LLMProvider{
	ProviderAnthropic,
	ProviderOpenAI,
	ProviderGoogle,
	ProviderDeepSeek,
	ProviderOpenRouter,
	ProviderMistral,
	ProviderTogether,
	ProviderHyperbolic,
	ProviderSambaNova,
	ProviderGLM,
}

// envKey returns the first non-empty environment key of provider.
func envKey(provider LLMProvider) string {
	for _, name := range providerRegistry[provider].envKeys {
		if key := os.Getenv(name); key != "" {
			return key
		}
	}
	return ""
}

// DetectProvider returns the first provider with a key in the environment,
// or "" when there is none.
func DetectProvider() LLMProvider {
	for _, provider := range detectOrder {
		if envKey(provider) != "" {
			return provider
		}
	}
	return ""
}

// LangChainConfig configures a LangChainProvider. APIKey wins over the
// provider's environment keys; BaseURL replaces the registry endpoint and is
// only used by OpenAI-style backends.
type LangChainConfig struct {
	Provider    LLMProvider
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	BaseURL     string
}

// LangChainProvider serves every provider except Anthropic through
// langchaingo.
type LangChainProvider struct {
	llm         llms.Model
	provider    LLMProvider
	model       string
	apiKey      string
	maxTokens   int
	temperature float64
}

// NewLangChainProvider creates a provider for config.Provider. Anthropic is
// rejected; New routes it to the native client.
func NewLangChainProvider(config LangChainConfig) (*LangChainProvider, error) {
	spec, ok := providerRegistry[config.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", config.Provider)
	}
	if spec.backend == backendAnthropicSDK {
		return nil, fmt.Errorf("%s has no langchain backend; use NewAnthropicProvider", config.Provider)
	}

	apiKey := cmp.Or(config.APIKey, envKey(config.Provider))
	if apiKey == "" {
		return nil, fmt.Errorf("%w: no API key found for %s (tried: %v)", ErrNoAPIKey, config.Provider, spec.envKeys)
	}
	model := cmp.Or(config.Model, spec.model)

	llm, err := newLangChainModel(spec, apiKey, model, cmp.Or(config.BaseURL, spec.baseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s LLM: %w", config.Provider, err)
	}

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &LangChainProvider{
		llm:         llm,
		provider:    config.Provider,
		model:       model,
		apiKey:      apiKey,
		maxTokens:   maxTokens,
		temperature: config.Temperature,
	}, nil
}

func newLangChainModel(spec providerSpec, apiKey, model, baseURL string) (llms.Model, error) {
	switch spec.backend {
	case backendOpenAI:
		opts := []openai.Option{openai.WithToken(apiKey), openai.WithModel(model)}
		if baseURL != "" {
			opts = append(opts, openai.WithBaseURL(baseURL))
		}
		return openai.New(opts...)
	case backendGoogle:
		return googleai.New(context.Background(), googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(model))
	case backendMistral:
		return mistral.New(mistral.WithAPIKey(apiKey), mistral.WithModel(model))
	default:
		return nil, fmt.Errorf("unsupported backend %d", spec.backend)
	}
}

func (p *LangChainProvider) Name() string { return string(p.provider) }

func (p *LangChainProvider) Model() string { return p.model }

func (p *LangChainProvider) IsConfigured() bool { return p.apiKey != "" }

func (p *LangChainProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (*Response, error) {
	return p.CompleteWithContext(ctx, systemPrompt, userPrompt, "")
}

// CompleteWithContext sends the system prompt and the context-prefixed user
// prompt as one chat exchange.
func (p *LangChainProvider) CompleteWithContext(ctx context.Context, systemPrompt, userPrompt, inputContext string) (*Response, error) {
	messages := make([]llms.MessageContent, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, withContext(userPrompt, inputContext)))

	opts := []llms.CallOption{llms.WithMaxTokens(p.maxTokens)}
	if p.temperature > 0 {
		opts = append(opts, llms.WithTemperature(p.temperature))
	}

	start := time.Now()
	resp, err := p.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderError, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: %s returned no choices", ErrProviderError, p.provider)
	}

	return &Response{
		Result:     resp.Choices[0].Content,
		DurationMS: time.Since(start).Milliseconds(),
	}, nil
}
