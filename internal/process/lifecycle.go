package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// maxLineLength bounds a single output line; longer lines are split.
const maxLineLength = 1024 * 1024

// start spawns the process and the goroutines that feed its event stream.
func (e *Execution) start(ctx context.Context) error {
	if !e.compareAndSwapState(StatePending, StateStarting) {
		return fmt.Errorf("%w: cannot start %s (state: %s)", ErrInvalidState, e.Spec.ID, e.State())
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.cmd = exec.CommandContext(ctx, e.Spec.Command, e.Spec.Args...)
	e.cmd.Dir = e.Spec.Dir
	e.cmd.Env = append(os.Environ(), e.Spec.Env...)
	e.cmd.WaitDelay = e.config.GracefulTimeout
	e.cmd.Cancel = func() error {
		return signalKill(e.cmd.Process.Pid)
	}

	var (
		output io.Reader
		closer func()
	)
	if e.Spec.PTY {
		// pty.Start puts the child in its own session, so no process group
		// attributes are set here.
		f, err := startPTY(e.cmd)
		if err != nil {
			cancel()
			e.setState(StateFailed)
			return fmt.Errorf("failed to start %s on a pty: %w", e.Spec.Command, err)
		}
		output = f
		closer = func() { f.Close() }
	} else {
		setProcAttr(e.cmd)
		pr, pw := io.Pipe()
		e.cmd.Stdout = pw
		e.cmd.Stderr = pw
		if err := e.cmd.Start(); err != nil {
			cancel()
			pw.Close()
			e.setState(StateFailed)
			return fmt.Errorf("failed to start %s: %w", e.Spec.Command, err)
		}
		output = pr
		closer = func() { pw.Close() }
	}

	// Non-fatal: without a job object only the direct child is tracked.
	_ = setupJobObject(e.cmd)

	now := time.Now()
	e.startTime.Store(&now)
	e.pid.Store(int32(e.cmd.Process.Pid))
	e.setState(StateRunning)

	waitErr := make(chan error, 1)
	go func() {
		err := e.cmd.Wait()
		if !e.Spec.PTY {
			closer()
		}
		waitErr <- err
	}()

	go e.pump(output, waitErr, closer)
	return nil
}

// pump forwards output lines and then the Terminated event. Terminated is
// sent only after the output reader hit EOF so it is always the last event.
func (e *Execution) pump(r io.Reader, waitErr <-chan error, closer func()) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)
	for scanner.Scan() {
		e.events <- Event{Kind: EventOutput, Line: scanner.Text()}
	}

	err := <-waitErr
	if e.Spec.PTY {
		closer()
	}
	cleanupJobObject(e.PID())

	now := time.Now()
	e.endTime.Store(&now)

	code := 0
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		code = exitErr.ExitCode()
		err = nil
	default:
		code = -1
	}
	e.exitCode.Store(int32(code))

	if code == 0 && err == nil {
		e.setState(StateStopped)
	} else {
		e.setState(StateFailed)
	}

	e.events <- Event{Kind: EventTerminated, ExitCode: code, Err: err}
	close(e.events)
	if e.cancel != nil {
		e.cancel()
	}
	close(e.done)
}

// Stop terminates the process group gracefully, falling back to a kill
// after the graceful timeout or when ctx ends.
func (e *Execution) Stop(ctx context.Context) error {
	state := e.State()
	if state == StateStopped || state == StateFailed {
		return nil
	}

	if !e.compareAndSwapState(StateRunning, StateStopping) {
		if e.State() == StateStopping {
			select {
			case <-e.done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return fmt.Errorf("%w: cannot stop %s (state: %s)", ErrInvalidState, e.Spec.ID, e.State())
	}
	e.stopRequested.Store(true)

	select {
	case <-ctx.Done():
		return e.forceKill()
	default:
	}

	if pid := e.PID(); pid > 0 {
		// The process might already be gone; the wait below settles it.
		_ = signalTerm(pid)
	}

	timer := time.NewTimer(e.config.GracefulTimeout)
	defer timer.Stop()

	select {
	case <-e.done:
		return nil
	case <-timer.C:
		return e.forceKill()
	case <-ctx.Done():
		return e.forceKill()
	}
}

func (e *Execution) forceKill() error {
	pid := e.PID()
	if pid == 0 {
		return nil
	}
	if err := signalKill(pid); err != nil && !isNoSuchProcess(err) {
		return fmt.Errorf("failed to kill %s: %w", e.Spec.ID, err)
	}

	select {
	case <-e.done:
	case <-time.After(500 * time.Millisecond):
	}
	return nil
}
