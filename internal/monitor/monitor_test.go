package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/runbridge/internal/notify"
	"github.com/standardbeagle/runbridge/internal/process"
	"github.com/standardbeagle/runbridge/internal/project"
	"github.com/standardbeagle/runbridge/internal/session"
)

type fakeRun struct {
	events  chan process.Event
	stopped atomic.Bool
	once    sync.Once
}

func newFakeRun() *fakeRun {
	return &fakeRun{events: make(chan process.Event, 16)}
}

func (r *fakeRun) Events() <-chan process.Event { return r.events }
func (r *fakeRun) StopRequested() bool          { return r.stopped.Load() }
func (r *fakeRun) Runtime() time.Duration       { return time.Second }

func (r *fakeRun) Stop(context.Context) error {
	r.stopped.Store(true)
	r.terminate(143)
	return nil
}

func (r *fakeRun) output(line string) {
	r.events <- process.Event{Kind: process.EventOutput, Line: line}
}

func (r *fakeRun) terminate(code int) {
	r.once.Do(func() {
		r.events <- process.Event{Kind: process.EventTerminated, ExitCode: code}
		close(r.events)
	})
}

type fakeLauncher struct {
	mu    sync.Mutex
	runs  chan *fakeRun
	specs []process.Spec
	err   error
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{runs: make(chan *fakeRun, 4)}
}

func (l *fakeLauncher) Launch(_ context.Context, spec process.Spec) (Run, error) {
	l.mu.Lock()
	l.specs = append(l.specs, spec)
	l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	r := newFakeRun()
	l.runs <- r
	return r, nil
}

func (l *fakeLauncher) next(t *testing.T) *fakeRun {
	t.Helper()
	select {
	case r := <-l.runs:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no run launched")
		return nil
	}
}

type recordingSender struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (s *recordingSender) Send(_ context.Context, _ string, n notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return s.err
}

func (s *recordingSender) titles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var titles []string
	for _, n := range s.sent {
		titles = append(titles, n.Title)
	}
	return titles
}

func setup(t *testing.T) (*Monitor, *session.Session, *fakeLauncher, *recordingSender) {
	t.Helper()
	sess := session.New(zerolog.Nop())
	sess.SetPushToken("device")
	active := project.NewActive(
		&project.Project{Path: t.TempDir(), Type: project.ProjectGradle},
		&project.RunConfig{Name: "bootRun", Command: "./gradlew", Args: []string{"bootRun"}, ReadyMarkers: project.DefaultReadyMarkers},
	)
	launcher := newFakeLauncher()
	sender := &recordingSender{}
	return New(sess, active, launcher, sender, zerolog.Nop()), sess, launcher, sender
}

func TestDispatch_NoProject(t *testing.T) {
	sess := session.New(zerolog.Nop())
	m := New(sess, project.NewActive(nil, nil), newFakeLauncher(), nil, zerolog.Nop())

	_, err := m.Dispatch()
	assert.ErrorIs(t, err, project.ErrNoProject)
	assert.Equal(t, session.StatusIdle, sess.Status())

	m = New(sess, project.NewActive(&project.Project{Path: t.TempDir()}, nil), newFakeLauncher(), nil, zerolog.Nop())
	_, err = m.Dispatch()
	assert.ErrorIs(t, err, project.ErrNoRunConfig)
	assert.Equal(t, session.StatusIdle, sess.Status())
}

func TestDispatch_RunningImmediately(t *testing.T) {
	m, sess, launcher, _ := setup(t)

	gen, err := m.Dispatch()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)
	assert.Equal(t, session.StatusRunning, sess.Status())

	run := launcher.next(t)
	run.terminate(0)
	m.Wait()

	launcher.mu.Lock()
	spec := launcher.specs[0]
	launcher.mu.Unlock()
	assert.Equal(t, "./gradlew", spec.Command)
	assert.Equal(t, []string{"bootRun"}, spec.Args)
	assert.Equal(t, "run-1", spec.ID)
}

func TestMonitor_SuccessfulExit(t *testing.T) {
	m, sess, launcher, sender := setup(t)

	_, err := m.Dispatch()
	require.NoError(t, err)
	run := launcher.next(t)
	run.output("BUILD SUCCESSFUL")
	run.terminate(0)
	m.Wait()

	assert.Equal(t, session.StatusSuccess, sess.Status())
	logs := sess.LogText()
	assert.Contains(t, logs, "[APP] BUILD SUCCESSFUL")
	assert.Contains(t, logs, "[APP] Process terminated with exit code: 0")
	assert.Equal(t, []string{"✅ Build Success"}, sender.titles())
	assert.False(t, m.Running())
}

func TestMonitor_FailedExit(t *testing.T) {
	m, sess, launcher, sender := setup(t)

	_, err := m.Dispatch()
	require.NoError(t, err)
	run := launcher.next(t)
	run.output("error: ';' expected")
	run.terminate(1)
	m.Wait()

	assert.Equal(t, session.StatusFailure, sess.Status())
	assert.Contains(t, sess.BuildMessage(), "[APP] error: ';' expected")
	assert.Equal(t, []string{"❌ Build Failure"}, sender.titles())
}

func TestMonitor_ReadyMarker(t *testing.T) {
	m, sess, launcher, sender := setup(t)

	_, err := m.Dispatch()
	require.NoError(t, err)
	run := launcher.next(t)
	run.output("Tomcat started on port 8080 (http)")

	require.Eventually(t, func() bool {
		return sess.Status() == session.StatusSuccess
	}, 2*time.Second, 10*time.Millisecond)

	run.output("tomcat STARTED ON PORT 8080 again")
	require.NoError(t, m.Stop(context.Background()))
	m.Wait()

	assert.Equal(t, session.StatusSuccess, sess.Status(), "stop leaves the status alone")
	assert.Equal(t, []string{"✅ Build Success"}, sender.titles(), "one notification per run")
}

func TestMonitor_LaunchError(t *testing.T) {
	m, sess, launcher, sender := setup(t)
	launcher.err = errors.New("exec: \"./gradlew\": not found")

	_, err := m.Dispatch()
	require.NoError(t, err)
	m.Wait()

	assert.Equal(t, session.StatusFailure, sess.Status())
	assert.Contains(t, sess.LogText(), "Failed to obtain process handler")
	assert.Equal(t, []string{"❌ Build Error"}, sender.titles())
}

func TestMonitor_StopRequested(t *testing.T) {
	m, sess, launcher, sender := setup(t)

	assert.ErrorIs(t, m.Stop(context.Background()), ErrNotRunning)

	_, err := m.Dispatch()
	require.NoError(t, err)
	launcher.next(t)
	require.Eventually(t, m.Running, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Stop(context.Background()))
	m.Wait()

	assert.False(t, m.Running())
	assert.Equal(t, session.StatusFailure, sess.Status(), "a stopped run still settles")
	assert.Contains(t, sess.LogText(), "Process terminated with exit code: 143")
	assert.Empty(t, sender.titles())
}

func TestMonitor_StaleRunIgnored(t *testing.T) {
	m, sess, launcher, _ := setup(t)

	_, err := m.Dispatch()
	require.NoError(t, err)
	first := launcher.next(t)
	require.Eventually(t, m.Running, 2*time.Second, 10*time.Millisecond)

	gen, err := m.Dispatch()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gen)

	second := launcher.next(t)
	assert.True(t, first.StopRequested(), "previous run is stopped")

	second.output("compiling")
	second.terminate(2)
	m.Wait()

	assert.Equal(t, session.StatusFailure, sess.Status())
	assert.Equal(t, uint64(2), sess.Generation())
}

func TestMonitor_NoTokenNoNotification(t *testing.T) {
	m, sess, launcher, sender := setup(t)
	sess.SetPushToken("")

	_, err := m.Dispatch()
	require.NoError(t, err)
	launcher.next(t).terminate(0)
	m.Wait()

	assert.Equal(t, session.StatusSuccess, sess.Status())
	assert.Empty(t, sender.titles())
}

func TestMonitor_SenderErrorIsLogged(t *testing.T) {
	m, sess, launcher, sender := setup(t)
	sender.err = errors.New("unavailable")

	_, err := m.Dispatch()
	require.NoError(t, err)
	launcher.next(t).terminate(0)
	m.Wait()

	assert.Equal(t, session.StatusSuccess, sess.Status())
	assert.Len(t, sender.titles(), 1)
}

func TestMonitor_ConcurrentDispatchSettles(t *testing.T) {
	const n = 8
	m, sess, launcher, _ := setup(t)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Dispatch()
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		launcher.next(t).terminate(0)
	}
	m.Wait()

	assert.Equal(t, uint64(n), sess.Generation())
	assert.Equal(t, session.StatusSuccess, sess.Status(), "the newest run decides the status")
	assert.False(t, m.Running())
}

func TestMonitor_Shutdown(t *testing.T) {
	m, _, launcher, _ := setup(t)

	_, err := m.Dispatch()
	require.NoError(t, err)
	run := launcher.next(t)
	require.Eventually(t, m.Running, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	assert.True(t, run.StopRequested())
}

func TestRunnerLauncher(t *testing.T) {
	l := RunnerLauncher{Runner: process.NewRunner(process.DefaultRunnerConfig())}
	_, err := l.Launch(context.Background(), process.Spec{})
	assert.ErrorIs(t, err, process.ErrNoCommand)
}
