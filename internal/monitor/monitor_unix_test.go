//go:build unix

package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/runbridge/internal/process"
	"github.com/standardbeagle/runbridge/internal/project"
	"github.com/standardbeagle/runbridge/internal/session"
)

func TestMonitor_StopRealProcessSettlesStatus(t *testing.T) {
	sess := session.New(zerolog.Nop())
	sess.SetPushToken("device")
	active := project.NewActive(
		&project.Project{Path: t.TempDir(), Type: project.ProjectGo},
		&project.RunConfig{Name: "sleep", Command: "sh", Args: []string{"-c", "sleep 30"}},
	)
	sender := &recordingSender{}
	m := New(sess, active, RunnerLauncher{Runner: process.NewRunner(process.DefaultRunnerConfig())}, sender, zerolog.Nop())

	_, err := m.Dispatch()
	require.NoError(t, err)
	require.Eventually(t, m.Running, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, m.Stop(ctx))
	m.Wait()

	assert.False(t, m.Running())
	assert.Equal(t, session.StatusFailure, sess.Status())
	assert.Contains(t, sess.LogText(), "Process terminated with exit code:")
	assert.Empty(t, sender.titles())
}
