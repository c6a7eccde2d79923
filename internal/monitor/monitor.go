// Package monitor runs the active run configuration on request and turns its
// process events into session status, logs and push notifications.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/standardbeagle/runbridge/internal/config"
	"github.com/standardbeagle/runbridge/internal/notify"
	"github.com/standardbeagle/runbridge/internal/process"
	"github.com/standardbeagle/runbridge/internal/project"
	"github.com/standardbeagle/runbridge/internal/session"
)

// DefaultNotifyTimeout bounds a single push notification.
const DefaultNotifyTimeout = 10 * time.Second

// ErrNotRunning is returned by Stop when no run is active.
var ErrNotRunning = errors.New("no application is running")

// Run is a started process as seen by the monitor.
type Run interface {
	Events() <-chan process.Event
	Stop(ctx context.Context) error
	StopRequested() bool
	Runtime() time.Duration
}

// Launcher starts a process for a run request.
type Launcher interface {
	Launch(ctx context.Context, spec process.Spec) (Run, error)
}

// RunnerLauncher launches through a process.Runner.
type RunnerLauncher struct {
	Runner *process.Runner
}

// Launch implements Launcher.
func (l RunnerLauncher) Launch(ctx context.Context, spec process.Spec) (Run, error) {
	e, err := l.Runner.Start(ctx, spec)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithNotifyTimeout overrides DefaultNotifyTimeout.
func WithNotifyTimeout(d time.Duration) Option {
	return func(m *Monitor) { m.notifyTimeout = d }
}

// Monitor owns the current run. A new dispatch stops the previous run;
// events of a superseded run never change the status of the current one.
type Monitor struct {
	session  *session.Session
	active   *project.Active
	launcher Launcher
	sender   notify.Sender
	ports    *config.PortDetector
	log      zerolog.Logger

	notifyTimeout time.Duration

	mu      sync.Mutex
	current Run
	gen     uint64

	wg sync.WaitGroup
}

// New creates a monitor. sender may be nil, which disables notifications.
func New(sess *session.Session, active *project.Active, launcher Launcher, sender notify.Sender, log zerolog.Logger, opts ...Option) *Monitor {
	if sender == nil {
		sender = notify.Noop{}
	}
	m := &Monitor{
		session:       sess,
		active:        active,
		launcher:      launcher,
		sender:        sender,
		ports:         config.NewPortDetector(),
		log:           log.With().Str("component", "monitor").Logger(),
		notifyTimeout: DefaultNotifyTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dispatch starts the active run configuration. The session is Running when
// Dispatch returns; the process itself is launched asynchronously. It fails
// with project.ErrNoProject or project.ErrNoRunConfig without touching the
// session.
func (m *Monitor) Dispatch() (uint64, error) {
	p, rc, err := m.active.RunConfig()
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	gen := m.session.BeginRun()
	prev := m.current
	m.current = nil
	m.gen = gen
	m.mu.Unlock()

	spec := process.Spec{
		ID:      fmt.Sprintf("run-%d", gen),
		Dir:     rc.WorkDir(p.Path),
		Command: rc.Command,
		Args:    rc.Args,
		Env:     rc.Env,
		PTY:     rc.PTY,
	}
	markers := rc.ReadyMarkers
	if markers == nil {
		markers = project.DefaultReadyMarkers
	}
	m.session.Logf("Executing run configuration %s: %s", rc.Name, rc.CommandLine())

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if prev != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := prev.Stop(ctx); err != nil {
				m.log.Warn().Err(err).Msg("failed to stop previous run")
			}
			cancel()
		}
		m.launch(gen, spec, markers)
	}()

	return gen, nil
}

func (m *Monitor) launch(gen uint64, spec process.Spec, markers []string) {
	run, err := m.launcher.Launch(context.Background(), spec)
	if err != nil {
		m.log.Error().Err(err).Str("command", spec.Command).Msg("launch failed")
		m.session.Logf("[APP] Failed to obtain process handler: %v", err)
		if m.session.Finish(gen, session.StatusFailure) {
			m.notify(notify.BuildError)
		}
		return
	}

	m.mu.Lock()
	superseded := m.gen != gen
	if !superseded {
		m.current = run
	}
	m.mu.Unlock()
	if superseded {
		_ = run.Stop(context.Background())
	}

	m.consume(gen, run, markers)

	m.mu.Lock()
	if m.current == run {
		m.current = nil
	}
	m.mu.Unlock()
}

func (m *Monitor) consume(gen uint64, run Run, markers []string) {
	ready := false
	for ev := range run.Events() {
		switch ev.Kind {
		case process.EventOutput:
			m.session.Log("[APP] " + ev.Line)
			if !ready && matchesMarker(ev.Line, markers) {
				ready = true
				if port := m.ports.DetectFromOutput(ev.Line); port > 0 {
					m.log.Info().Int("port", port).Msg("application ready")
				}
				if m.session.Finish(gen, session.StatusSuccess) {
					m.notify(notify.BuildSuccess)
				}
			}

		case process.EventTerminated:
			m.session.Logf("[APP] Process terminated with exit code: %d", ev.ExitCode)
			if ev.Err != nil {
				m.log.Warn().Err(ev.Err).Msg("process wait failed")
			}
			m.log.Info().
				Uint64("generation", gen).
				Int("exit_code", ev.ExitCode).
				Dur("runtime", run.Runtime()).
				Bool("stop_requested", run.StopRequested()).
				Msg("run terminated")

			status := session.StatusSuccess
			n := notify.BuildSuccess
			if ev.ExitCode != 0 || ev.Err != nil {
				status = session.StatusFailure
				n = notify.BuildFailure
				if m.session.Generation() == gen {
					m.session.SetBuildMessage(m.session.LogText())
				}
			}
			// A requested stop still settles the status but is not announced.
			if m.session.Finish(gen, status) && !run.StopRequested() {
				m.notify(n)
			}
		}
	}
}

func matchesMarker(line string, markers []string) bool {
	lower := strings.ToLower(line)
	for _, marker := range markers {
		if marker != "" && strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

// notify sends n to the registered device, if any, without blocking.
func (m *Monitor) notify(n notify.Notification) {
	token := m.session.PushToken()
	if token == "" {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.notifyTimeout)
		defer cancel()
		if err := m.sender.Send(ctx, token, n); err != nil {
			m.log.Warn().Err(err).Str("title", n.Title).Msg("notification failed")
			return
		}
		m.log.Debug().Str("title", n.Title).Msg("notification sent")
	}()
}

// Stop stops the current run. Its termination is logged but leaves the
// status unchanged.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	run := m.current
	m.mu.Unlock()
	if run == nil {
		return ErrNotRunning
	}

	m.session.Log("Stop requested")
	return run.Stop(ctx)
}

// Running reports whether a process is currently attached.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// Wait blocks until every launch and notification goroutine has finished.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// Shutdown stops the current run and waits for background work or ctx.
func (m *Monitor) Shutdown(ctx context.Context) error {
	if err := m.Stop(ctx); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
