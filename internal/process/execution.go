package process

import (
	"os/exec"
	"sync/atomic"
	"time"
)

// State represents the lifecycle state of an execution.
type State uint32

const (
	StatePending State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Spec describes the command to run.
type Spec struct {
	ID      string
	Dir     string
	Command string
	Args    []string
	// Env entries (KEY=VALUE) are appended to the inherited environment.
	Env []string
	// PTY runs the command on a pseudo-terminal, which keeps tools that
	// buffer output when piped line-buffered.
	PTY bool
}

// EventKind discriminates process events.
type EventKind int

const (
	EventOutput EventKind = iota
	EventTerminated
)

func (k EventKind) String() string {
	switch k {
	case EventOutput:
		return "output"
	case EventTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Event is one observation of a running process. Output events carry Line;
// the single Terminated event carries ExitCode and is always last.
type Event struct {
	Kind     EventKind
	Line     string
	ExitCode int
	// Err is set on Terminated when the exit was not a plain exit status.
	Err error
}

// Execution is one run of a Spec.
type Execution struct {
	Spec Spec

	config RunnerConfig
	state  atomic.Uint32
	cmd    *exec.Cmd
	cancel func()

	events chan Event
	done   chan struct{}

	pid           atomic.Int32
	exitCode      atomic.Int32
	stopRequested atomic.Bool
	startTime     atomic.Pointer[time.Time]
	endTime       atomic.Pointer[time.Time]
}

func newExecution(spec Spec, config RunnerConfig) *Execution {
	return &Execution{
		Spec:   spec,
		config: config,
		events: make(chan Event, config.EventBuffer),
		done:   make(chan struct{}),
	}
}

// Events returns the event stream. It is closed after Terminated.
func (e *Execution) Events() <-chan Event {
	return e.events
}

// Done is closed once the process has exited and all events were sent.
func (e *Execution) Done() <-chan struct{} {
	return e.done
}

// State returns the current state.
func (e *Execution) State() State {
	return State(e.state.Load())
}

func (e *Execution) setState(s State) {
	e.state.Store(uint32(s))
}

func (e *Execution) compareAndSwapState(old, new State) bool {
	return e.state.CompareAndSwap(uint32(old), uint32(new))
}

// PID returns the process id, or 0 before start.
func (e *Execution) PID() int {
	return int(e.pid.Load())
}

// ExitCode returns the exit code; only meaningful after Done.
func (e *Execution) ExitCode() int {
	return int(e.exitCode.Load())
}

// StopRequested reports whether Stop was called on this execution.
func (e *Execution) StopRequested() bool {
	return e.stopRequested.Load()
}

// Runtime returns how long the process ran, or has been running.
func (e *Execution) Runtime() time.Duration {
	start := e.startTime.Load()
	if start == nil {
		return 0
	}
	if end := e.endTime.Load(); end != nil {
		return end.Sub(*start)
	}
	return time.Since(*start)
}
