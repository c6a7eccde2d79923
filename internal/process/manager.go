// Package process spawns the project's run configuration and reports its
// output and termination as a stream of events.
package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrInvalidState is returned when an operation is invalid for the current state.
	ErrInvalidState = errors.New("invalid process state for operation")
	// ErrShuttingDown is returned when the runner is shutting down.
	ErrShuttingDown = errors.New("process runner is shutting down")
	// ErrNoCommand is returned for a Spec without a command.
	ErrNoCommand = errors.New("no command to run")
)

// RunnerConfig holds configuration for the Runner.
type RunnerConfig struct {
	// GracefulTimeout is how long to wait after the terminate signal before
	// killing the process group.
	GracefulTimeout time.Duration
	// EventBuffer is the capacity of each execution's event channel.
	EventBuffer int
}

// DefaultRunnerConfig returns a RunnerConfig with sensible defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		GracefulTimeout: 5 * time.Second,
		EventBuffer:     256,
	}
}

// Runner starts executions and tracks the live ones so they can all be
// stopped on shutdown.
type Runner struct {
	config RunnerConfig

	mu    sync.Mutex
	live  map[*Execution]struct{}
	count atomic.Int64

	shuttingDown atomic.Bool
}

// NewRunner creates a Runner.
func NewRunner(config RunnerConfig) *Runner {
	def := DefaultRunnerConfig()
	if config.GracefulTimeout <= 0 {
		config.GracefulTimeout = def.GracefulTimeout
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = def.EventBuffer
	}
	return &Runner{
		config: config,
		live:   make(map[*Execution]struct{}),
	}
}

// Start spawns spec and returns its execution. The returned execution is
// already Running; its events channel is closed after the Terminated event.
func (r *Runner) Start(ctx context.Context, spec Spec) (*Execution, error) {
	if r.shuttingDown.Load() {
		return nil, ErrShuttingDown
	}
	if spec.Command == "" {
		return nil, ErrNoCommand
	}
	if spec.Dir != "" {
		if _, err := os.Stat(spec.Dir); err != nil {
			return nil, fmt.Errorf("working directory %s: %w", spec.Dir, err)
		}
	}

	e := newExecution(spec, r.config)
	if err := e.start(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.live[e] = struct{}{}
	r.mu.Unlock()
	r.count.Add(1)

	go func() {
		<-e.Done()
		r.mu.Lock()
		delete(r.live, e)
		r.mu.Unlock()
	}()

	return e, nil
}

// Started returns how many executions this runner has launched.
func (r *Runner) Started() int64 {
	return r.count.Load()
}

// Shutdown stops every live execution.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.shuttingDown.Store(true)

	r.mu.Lock()
	live := make([]*Execution, 0, len(r.live))
	for e := range r.live {
		live = append(live, e)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	var firstErr error
	var errMu sync.Mutex
	for _, e := range live {
		wg.Add(1)
		go func(e *Execution) {
			defer wg.Done()
			if err := e.Stop(ctx); err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
			}
		}(e)
	}
	wg.Wait()
	return firstErr
}
