// Package bridge assembles a runnable bridge from configuration: project
// detection, the control server, the tunnel, the build monitor, the fix
// pipeline and push notifications.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/runbridge/internal/aichannel"
	"github.com/standardbeagle/runbridge/internal/config"
	"github.com/standardbeagle/runbridge/internal/fix"
	"github.com/standardbeagle/runbridge/internal/monitor"
	"github.com/standardbeagle/runbridge/internal/notify"
	"github.com/standardbeagle/runbridge/internal/process"
	"github.com/standardbeagle/runbridge/internal/project"
	"github.com/standardbeagle/runbridge/internal/server"
	"github.com/standardbeagle/runbridge/internal/session"
	"github.com/standardbeagle/runbridge/internal/tunnel"
)

const shutdownTimeout = 10 * time.Second

// Options configures New. Provider and Sender replace the ones built from
// the configuration when set.
type Options struct {
	Dir      string
	Config   *config.Config
	Logger   zerolog.Logger
	Provider aichannel.Provider
	Sender   notify.Sender
}

// Bridge is a fully wired bridge.
type Bridge struct {
	cfg *config.Config
	log zerolog.Logger

	session  *session.Session
	active   *project.Active
	pipeline *fix.Pipeline
	runner   *process.Runner
	monitor  *monitor.Monitor
	server   *server.Server

	mu     sync.Mutex
	tunnel *tunnel.Launcher
	addr   string
	ready  chan struct{}
}

// New builds a bridge for the project in opts.Dir. A missing or
// unrecognized project, provider or push credentials are logged and
// degrade the matching feature; they are not errors.
func New(ctx context.Context, opts Options) (*Bridge, error) {
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load(opts.Dir)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	log := opts.Logger

	b := &Bridge{
		cfg:     cfg,
		log:     log.With().Str("component", "bridge").Logger(),
		session: session.New(log),
		ready:   make(chan struct{}),
	}

	b.active = project.NewActive(nil, nil)
	if p, rc := detectProject(opts.Dir, cfg, b.log); p != nil {
		b.active.Set(p, rc)
	}

	provider := opts.Provider
	if provider == nil {
		provider = buildProvider(cfg.LLM, b.log)
	}
	prompts, err := buildPrompts(cfg.LLM)
	if err != nil {
		return nil, err
	}
	b.pipeline = fix.NewPipeline(provider, fix.Config{
		Timeout: cfg.LLM.Timeout,
		Prompts: prompts,
		Format:  cfg.LLM.Format,
		Sources: fix.SourceOptions{
			Extensions:  cfg.Sources.Extensions,
			SkipDirs:    cfg.Sources.SkipDirs,
			MaxFileSize: cfg.Sources.MaxFileSize,
		},
	}, log)

	sender := opts.Sender
	if sender == nil {
		sender = buildSender(ctx, cfg.Push, log)
	}

	b.runner = process.NewRunner(process.DefaultRunnerConfig())
	b.monitor = monitor.New(b.session, b.active, monitor.RunnerLauncher{Runner: b.runner}, sender, log)
	b.server = server.New(server.Config{
		Session:    b.session,
		Project:    b.active,
		Dispatcher: b.monitor,
		Fixer:      b.pipeline,
		Logger:     log,
		BodyLimit:  cfg.Server.BodyLimit,
	})

	return b, nil
}

// buildPrompts applies the configured prompt overrides to the defaults.
func buildPrompts(cfg config.LLMConfig) (*fix.PromptRegistry, error) {
	prompts := fix.DefaultPromptRegistry()
	for name, p := range cfg.Prompts {
		if err := prompts.Override(fix.TaskType(name), p.System, p.User); err != nil {
			return nil, fmt.Errorf("llm prompts: %w", err)
		}
	}
	return prompts, nil
}

func detectProject(dir string, cfg *config.Config, log zerolog.Logger) (*project.Project, *project.RunConfig) {
	if dir == "" {
		return nil, nil
	}
	p, err := project.Detect(dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("no project available")
		return nil, nil
	}

	rc := cfg.Run
	if rc == nil {
		rc = project.DefaultRunConfig(p)
	}
	ev := log.Info().Str("project", p.Name).Str("type", string(p.Type)).Str("path", p.Path)
	if rc != nil {
		ev = ev.Str("run", rc.CommandLine())
	}
	ev.Msg("project detected")
	return p, rc
}

func buildProvider(cfg config.LLMConfig, log zerolog.Logger) aichannel.Provider {
	p, err := aichannel.New(aichannel.Config{
		Provider: cfg.Provider,
		ProviderConfig: aichannel.ProviderConfig{
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			BaseURL:     cfg.BaseURL,
		},
	})
	if err != nil {
		log.Warn().Err(err).Msg("LLM provider unavailable; fixes disabled")
		return nil
	}
	log.Info().Str("provider", p.Name()).Str("model", p.Model()).Msg("LLM provider ready")
	return p
}

func buildSender(ctx context.Context, cfg config.PushConfig, log zerolog.Logger) notify.Sender {
	if cfg.CredentialsFile == "" {
		log.Info().Msg("no push credentials; notifications disabled")
		return notify.Noop{}
	}
	s, err := notify.NewFCMSenderFromFile(ctx, cfg.CredentialsFile, cfg.ProjectID, notify.WithLogger(log))
	if err != nil {
		log.Warn().Err(err).Str("credentials", cfg.CredentialsFile).Msg("push notifications disabled")
		return notify.Noop{}
	}
	return s
}

// Session returns the shared session.
func (b *Bridge) Session() *session.Session { return b.session }

// Project returns the active project holder.
func (b *Bridge) Project() *project.Active { return b.active }

// Monitor returns the build monitor.
func (b *Bridge) Monitor() *monitor.Monitor { return b.monitor }

// Ready is closed once the control server listens and the first endpoint
// has been published.
func (b *Bridge) Ready() <-chan struct{} { return b.ready }

// Addr returns the control server address after Ready.
func (b *Bridge) Addr() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addr
}

// Run serves until ctx is cancelled. Every value received on restart
// restarts the tunnel and republishes the endpoint.
func (b *Bridge) Run(ctx context.Context, restart <-chan os.Signal) error {
	addr := net.JoinHostPort(b.cfg.Server.Host, strconv.Itoa(b.cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	launcher := tunnel.NewLauncher(tunnel.Config{
		BinaryPath: b.cfg.Tunnel.Binary,
		LocalPort:  port,
		APIURL:     b.cfg.Tunnel.APIURL,
		Timeout:    b.cfg.Tunnel.Timeout,
		Disabled:   b.cfg.Tunnel.Disabled,
	}, b.log)
	launcher.OnURL = func(url string) {
		b.session.SetEndpoint(url)
	}

	b.mu.Lock()
	b.tunnel = launcher
	b.addr = ln.Addr().String()
	b.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return b.server.Serve(gctx, ln)
	})

	g.Go(func() error {
		url := launcher.Start(gctx)
		b.log.Info().Str("url", url).Msg("bridge ready")
		close(b.ready)

		for {
			select {
			case <-gctx.Done():
				return b.shutdown()
			case <-restart:
				b.log.Info().Msg("restarting tunnel")
				b.session.ClearEndpoint()
				launcher.Restart(gctx)
			}
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (b *Bridge) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := b.monitor.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("monitor: %w", err))
	}
	if err := b.runner.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("runner: %w", err))
	}
	if err := b.tunnel.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tunnel: %w", err))
	}
	b.session.ClearEndpoint()

	stats := b.pipeline.Stats()
	b.log.Info().
		Int64("llm_requests", stats.Requests).
		Int64("llm_failures", stats.Failures).
		Msg("bridge stopped")
	return errors.Join(errs...)
}
