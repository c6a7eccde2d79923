//go:build unix

package process

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collect drains an execution's events with a deadline.
func collect(t *testing.T, e *Execution, timeout time.Duration) []Event {
	t.Helper()
	var events []Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-e.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("execution did not finish within %s", timeout)
		}
	}
}

func outputLines(events []Event) []string {
	var lines []string
	for _, ev := range events {
		if ev.Kind == EventOutput {
			lines = append(lines, ev.Line)
		}
	}
	return lines
}

func TestRunner_StartEcho(t *testing.T) {
	r := NewRunner(DefaultRunnerConfig())

	e, err := r.Start(context.Background(), Spec{
		ID:      "echo",
		Dir:     t.TempDir(),
		Command: "sh",
		Args:    []string{"-c", "echo hello; echo oops >&2; echo world"},
	})
	require.NoError(t, err)
	assert.Greater(t, e.PID(), 0)

	events := collect(t, e, 5*time.Second)
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, EventTerminated, last.Kind)
	assert.Equal(t, 0, last.ExitCode)
	assert.NoError(t, last.Err)

	assert.ElementsMatch(t, []string{"hello", "oops", "world"}, outputLines(events))
	assert.Equal(t, StateStopped, e.State())
	assert.Equal(t, 0, e.ExitCode())
	assert.False(t, e.StopRequested())
	assert.Greater(t, e.Runtime(), time.Duration(0))
	assert.Equal(t, int64(1), r.Started())
}

func TestRunner_NonZeroExit(t *testing.T) {
	r := NewRunner(DefaultRunnerConfig())

	e, err := r.Start(context.Background(), Spec{
		ID:      "fail",
		Command: "sh",
		Args:    []string{"-c", "echo compiling; exit 3"},
	})
	require.NoError(t, err)

	events := collect(t, e, 5*time.Second)
	last := events[len(events)-1]
	assert.Equal(t, EventTerminated, last.Kind)
	assert.Equal(t, 3, last.ExitCode)
	assert.Equal(t, StateFailed, e.State())
	assert.Equal(t, []string{"compiling"}, outputLines(events))
}

func TestRunner_EnvIsAppended(t *testing.T) {
	r := NewRunner(DefaultRunnerConfig())

	e, err := r.Start(context.Background(), Spec{
		ID:      "env",
		Command: "sh",
		Args:    []string{"-c", "echo $RUNBRIDGE_TEST_VALUE"},
		Env:     []string{"RUNBRIDGE_TEST_VALUE=from-env"},
	})
	require.NoError(t, err)

	events := collect(t, e, 5*time.Second)
	assert.Equal(t, []string{"from-env"}, outputLines(events))
}

func TestRunner_StartErrors(t *testing.T) {
	r := NewRunner(DefaultRunnerConfig())

	_, err := r.Start(context.Background(), Spec{ID: "empty"})
	assert.True(t, errors.Is(err, ErrNoCommand))

	_, err = r.Start(context.Background(), Spec{ID: "missing", Command: "runbridge-definitely-not-a-command"})
	assert.Error(t, err)

	_, err = r.Start(context.Background(), Spec{ID: "baddir", Command: "true", Dir: "/nonexistent/runbridge"})
	assert.Error(t, err)
}

func TestExecution_Stop(t *testing.T) {
	r := NewRunner(RunnerConfig{GracefulTimeout: time.Second})

	e, err := r.Start(context.Background(), Spec{
		ID:      "sleep",
		Command: "sleep",
		Args:    []string{"60"},
	})
	require.NoError(t, err)
	assert.Equal(t, StateRunning, e.State())

	done := make(chan []Event)
	go func() {
		done <- collect(t, e, 10*time.Second)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Stop(ctx))
	assert.True(t, e.StopRequested())

	events := <-done
	last := events[len(events)-1]
	assert.Equal(t, EventTerminated, last.Kind)
	assert.NotEqual(t, 0, last.ExitCode)

	// Stopping again is a no-op.
	assert.NoError(t, e.Stop(ctx))
}

func TestExecution_ContextCancelKills(t *testing.T) {
	r := NewRunner(DefaultRunnerConfig())
	ctx, cancel := context.WithCancel(context.Background())

	e, err := r.Start(ctx, Spec{ID: "sleep", Command: "sleep", Args: []string{"60"}})
	require.NoError(t, err)

	cancel()
	events := collect(t, e, 10*time.Second)
	assert.Equal(t, EventTerminated, events[len(events)-1].Kind)
}

func TestRunner_Shutdown(t *testing.T) {
	r := NewRunner(RunnerConfig{GracefulTimeout: time.Second})

	e, err := r.Start(context.Background(), Spec{ID: "sleep", Command: "sleep", Args: []string{"60"}})
	require.NoError(t, err)
	go func() {
		for range e.Events() {
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))

	select {
	case <-e.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("execution still running after shutdown")
	}

	_, err = r.Start(context.Background(), Spec{ID: "late", Command: "true"})
	assert.True(t, errors.Is(err, ErrShuttingDown))
}

func TestRunner_PTY(t *testing.T) {
	r := NewRunner(DefaultRunnerConfig())

	e, err := r.Start(context.Background(), Spec{
		ID:      "pty",
		Command: "sh",
		Args:    []string{"-c", "echo on-a-tty"},
		PTY:     true,
	})
	require.NoError(t, err)

	events := collect(t, e, 5*time.Second)
	lines := outputLines(events)
	require.NotEmpty(t, lines)
	assert.Contains(t, lines[0], "on-a-tty")
	assert.Equal(t, 0, events[len(events)-1].ExitCode)
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StatePending, "pending"},
		{StateStarting, "starting"},
		{StateRunning, "running"},
		{StateStopping, "stopping"},
		{StateStopped, "stopped"},
		{StateFailed, "failed"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.state.String())
	}
}
