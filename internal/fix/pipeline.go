// Package fix turns a failed build into a failure summary and proposed file
// replacements using an LLM provider, and writes accepted fixes to disk.
package fix

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/standardbeagle/runbridge/internal/aichannel"
	"github.com/standardbeagle/runbridge/internal/session"
)

// DefaultTimeout bounds a single LLM call.
const DefaultTimeout = 90 * time.Second

var (
	// ErrNoProvider is returned when no LLM provider is configured.
	ErrNoProvider = errors.New("no LLM provider configured")
	// ErrNoBuildMessage is returned for an empty build log.
	ErrNoBuildMessage = errors.New("no build message available")
)

// Response formats for fix requests.
const (
	FormatBlocks = "blocks"
	FormatJSON   = "json"
)

// Config configures a Pipeline.
type Config struct {
	// Timeout bounds each LLM call (default 90s). Calls are never retried.
	Timeout time.Duration
	Sources SourceOptions

	// Prompts overrides the built-in prompts.
	Prompts *PromptRegistry

	// Format selects START/END OF FILE blocks (default) or a JSON object.
	Format string
}

// Stats counts LLM calls made by the pipeline.
type Stats struct {
	Requests     int64 `json:"requests"`
	Failures     int64 `json:"failures"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Pipeline runs the summarize and fix tasks against one provider.
type Pipeline struct {
	provider aichannel.Provider
	prompts  *PromptRegistry
	config   Config
	log      zerolog.Logger

	requests     atomic.Int64
	failures     atomic.Int64
	inputTokens  atomic.Int64
	outputTokens atomic.Int64
}

// NewPipeline creates a pipeline. provider may be nil, in which case every
// call fails with ErrNoProvider.
func NewPipeline(provider aichannel.Provider, cfg Config, log zerolog.Logger) *Pipeline {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	prompts := cfg.Prompts
	if prompts == nil {
		prompts = DefaultPromptRegistry()
	}
	return &Pipeline{
		provider: provider,
		prompts:  prompts,
		config:   cfg,
		log:      log.With().Str("component", "fix").Logger(),
	}
}

// Available reports whether a configured provider is present.
func (p *Pipeline) Available() bool {
	return p.provider != nil && p.provider.IsConfigured()
}

// SummarizeFailure asks the provider where the build failed.
func (p *Pipeline) SummarizeFailure(ctx context.Context, logs string) (session.FailureSummary, error) {
	if strings.TrimSpace(logs) == "" {
		return session.FailureSummary{}, ErrNoBuildMessage
	}

	text, err := p.run(ctx, TaskSummarizeFailure, logs, "")
	if err != nil {
		return session.FailureSummary{}, err
	}
	return ParseSummary(text), nil
}

// RequestFix collects the sources under root and asks the provider for
// whole-file replacements. An unparseable completion yields an empty set.
func (p *Pipeline) RequestFix(ctx context.Context, root, buildMessage string) ([]session.FileFix, error) {
	if strings.TrimSpace(buildMessage) == "" {
		return nil, ErrNoBuildMessage
	}

	files, err := CollectSources(root, p.config.Sources)
	if err != nil {
		return nil, fmt.Errorf("collect sources: %w", err)
	}
	p.log.Debug().Int("files", len(files)).Str("root", root).Msg("collected sources")

	task := TaskGenerateFixes
	if p.config.Format == FormatJSON {
		task = TaskGenerateFixesJSON
	}
	text, err := p.run(ctx, task, buildMessage, renderSources(files))
	if err != nil {
		return nil, err
	}

	fixes := ParseFixes(text)
	p.log.Info().Int("files", len(fixes)).Msg("fix proposal parsed")
	return fixes, nil
}

// Stats returns the call counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Requests:     p.requests.Load(),
		Failures:     p.failures.Load(),
		InputTokens:  p.inputTokens.Load(),
		OutputTokens: p.outputTokens.Load(),
	}
}

func (p *Pipeline) run(ctx context.Context, task TaskType, buildLog, inputContext string) (string, error) {
	if !p.Available() {
		return "", ErrNoProvider
	}
	prompt, ok := p.prompts.Get(task)
	if !ok {
		return "", fmt.Errorf("unknown task type: %s", task)
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	p.requests.Add(1)
	resp, err := p.provider.CompleteWithContext(ctx, prompt.System, fmt.Sprintf(prompt.User, buildLog), inputContext)
	if err != nil {
		p.failures.Add(1)
		p.log.Warn().Err(err).Str("task", string(task)).Msg("completion failed")
		if errors.Is(err, aichannel.ErrProviderError) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", aichannel.ErrProviderError, err)
	}

	p.inputTokens.Add(resp.InputTokens)
	p.outputTokens.Add(resp.OutputTokens)
	p.log.Debug().
		Str("task", string(task)).
		Int64("duration_ms", resp.DurationMS).
		Int64("input_tokens", resp.InputTokens).
		Int64("output_tokens", resp.OutputTokens).
		Msg("completion done")
	return resp.Result, nil
}
