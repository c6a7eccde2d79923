package tunnel

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Launcher owns the current tunnel and publishes every URL it resolves.
// All failures degrade to the loopback URL; nothing here is fatal.
type Launcher struct {
	config Config
	log    zerolog.Logger
	client *http.Client

	mu     sync.Mutex
	tunnel *Tunnel
	url    string

	// OnURL is invoked with every resolved URL, including restarts.
	OnURL func(url string)
}

// NewLauncher creates a launcher for the given configuration.
func NewLauncher(config Config, log zerolog.Logger) *Launcher {
	return &Launcher{
		config: config.withDefaults(),
		log:    log.With().Str("component", "tunnel").Logger(),
		client: &http.Client{Timeout: apiBudget - time.Second},
	}
}

// Start spawns the tunnel (unless disabled) and resolves its public URL
// through output scan, local API and loopback, in that order.
func (l *Launcher) Start(ctx context.Context) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.startLocked(ctx)
}

func (l *Launcher) startLocked(ctx context.Context) string {
	var resolvers []Resolver

	if !l.config.Disabled {
		t := New(l.config, l.log)
		if err := t.Start(ctx); err != nil {
			l.log.Warn().Err(err).Msg("tunnel unavailable, serving on loopback")
		} else {
			l.tunnel = t
			resolvers = append(resolvers,
				OutputResolver{Tunnel: t, Timeout: l.config.Timeout},
				APIResolver{URL: l.config.APIURL, Client: l.client},
			)
		}
	}
	resolvers = append(resolvers, LoopbackResolver{Port: l.config.LocalPort})

	// The output scan and the API poll share one deadline.
	budget := l.config.Timeout + apiBudget
	resolveCtx, cancel := context.WithTimeout(ctx, budget)
	url := ResolveURL(resolveCtx, l.log, resolvers...)
	cancel()
	if url == "" {
		url = LoopbackURL(l.config.LocalPort)
	}
	l.url = url

	if l.OnURL != nil {
		l.OnURL(url)
	}
	return url
}

// Stop kills the tunnel process, if any.
func (l *Launcher) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopLocked(ctx)
}

func (l *Launcher) stopLocked(ctx context.Context) error {
	if l.tunnel == nil {
		return nil
	}
	err := l.tunnel.Stop(ctx)
	l.tunnel = nil
	l.url = ""
	return err
}

// Restart stops the current tunnel and starts a new one.
func (l *Launcher) Restart(ctx context.Context) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := l.stopLocked(stopCtx); err != nil {
		l.log.Warn().Err(err).Msg("stopping tunnel for restart")
	}
	cancel()
	return l.startLocked(ctx)
}

// URL returns the last resolved public URL.
func (l *Launcher) URL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.url
}

// Info describes the current tunnel. A launcher without a process reports
// idle.
func (l *Launcher) Info() Info {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tunnel == nil {
		return Info{State: StateIdle.String(), PublicURL: l.url, LocalPort: l.config.LocalPort}
	}
	info := l.tunnel.Info()
	info.PublicURL = l.url
	return info
}
