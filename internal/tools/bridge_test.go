package tools

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/runbridge/internal/client"
	"github.com/standardbeagle/runbridge/internal/project"
	"github.com/standardbeagle/runbridge/internal/server"
	"github.com/standardbeagle/runbridge/internal/session"
)

type stubDispatcher struct {
	sess *session.Session
}

func (d *stubDispatcher) Dispatch() (uint64, error)      { return d.sess.BeginRun(), nil }
func (d *stubDispatcher) Stop(ctx context.Context) error { return nil }
func (d *stubDispatcher) Running() bool                  { return true }

type stubFixer struct{}

func (stubFixer) SummarizeFailure(ctx context.Context, logs string) (session.FailureSummary, error) {
	return session.FailureSummary{Message: "cannot find symbol", File: "Main.java", Line: 2}, nil
}

func (stubFixer) RequestFix(ctx context.Context, root, buildMessage string) ([]session.FileFix, error) {
	return []session.FileFix{
		{Path: "Main.java", Code: "class Main {}"},
		{Path: "Main.java/child", Code: "x"},
	}, nil
}

func newTools(t *testing.T) (*BridgeTools, *session.Session, string) {
	t.Helper()

	root := t.TempDir()
	sess := session.New(zerolog.Nop())
	sess.SetEndpoint("https://t0k3n.tunnel.example.com")
	active := project.NewActive(
		&project.Project{Path: root, Type: project.ProjectMaven, Name: "demo"},
		&project.RunConfig{Name: "run", Command: "mvn"},
	)
	srv := server.New(server.Config{
		Session:    sess,
		Project:    active,
		Dispatcher: &stubDispatcher{sess: sess},
		Fixer:      stubFixer{},
		Logger:     zerolog.Nop(),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	c, err := client.New(ts.URL)
	require.NoError(t, err)
	return NewBridgeTools(c), sess, root
}

func call(t *testing.T, bt *BridgeTools, in BridgeInput) (*mcp.CallToolResult, BridgeOutput) {
	t.Helper()
	res, out, err := bt.makeBridgeHandler()(context.Background(), nil, in)
	require.NoError(t, err)
	return res, out
}

func resultText(res *mcp.CallToolResult) string {
	if res == nil || len(res.Content) == 0 {
		return ""
	}
	if tc, ok := res.Content[0].(*mcp.TextContent); ok {
		return tc.Text
	}
	return ""
}

func TestBridgeTool_UnknownAction(t *testing.T) {
	bt, _, _ := newTools(t)

	res, _ := call(t, bt, BridgeInput{Action: "explode"})
	require.NotNil(t, res)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "unknown action: explode")
}

func TestBridgeTool_RunAndStatus(t *testing.T) {
	bt, sess, _ := newTools(t)

	res, out := call(t, bt, BridgeInput{Action: "run"})
	assert.Nil(t, res)
	assert.True(t, out.Success)
	assert.Equal(t, "Run configuration executed.", out.Message)

	res, out = call(t, bt, BridgeInput{Action: " STATUS "})
	assert.Nil(t, res)
	assert.True(t, out.Running)
	assert.Equal(t, "running", out.Status)
	assert.Equal(t, session.StatusRunning, sess.Status())
}

func TestBridgeTool_QR(t *testing.T) {
	bt, _, _ := newTools(t)

	_, out := call(t, bt, BridgeInput{Action: "qr"})
	assert.Equal(t, "t0k3n", out.ConnectionID)
	assert.NotEmpty(t, out.QRCode)
}

func TestBridgeTool_StatusAfterFailure(t *testing.T) {
	bt, sess, root := newTools(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "Main.java"), []byte("class Main {\n  int x = y;\n}\n"), 0o644))

	gen := sess.BeginRun()
	sess.Finish(gen, session.StatusFailure)

	_, out := call(t, bt, BridgeInput{Action: "status"})
	assert.Equal(t, "failure", out.Status)
	assert.Equal(t, "cannot find symbol", out.ErrorMessage)
	require.NotNil(t, out.ErrorCode)
	assert.Equal(t, "  int x = y;", out.ErrorCode.Error)
	assert.Equal(t, filepath.Join(root, "Main.java"), out.FilePath)
}

func TestBridgeTool_FixAndPartialApply(t *testing.T) {
	bt, _, root := newTools(t)

	_, out := call(t, bt, BridgeInput{Action: "fix", BuildMessage: "BUILD FAILED"})
	require.True(t, out.Success)
	assert.Len(t, out.Files, 2)

	res, out := call(t, bt, BridgeInput{Action: "apply"})
	require.NotNil(t, res)
	assert.True(t, res.IsError)
	assert.Equal(t, []string{filepath.Join(root, "Main.java")}, out.Updated)
	assert.True(t, strings.Contains(out.Error, "Main.java/child"), out.Error)
}

func TestBridgeTool_Token(t *testing.T) {
	bt, sess, _ := newTools(t)

	res, _ := call(t, bt, BridgeInput{Action: "token"})
	require.NotNil(t, res)
	assert.Equal(t, "token required", resultText(res))

	res, out := call(t, bt, BridgeInput{Action: "token", Token: "dev-1"})
	assert.Nil(t, res)
	assert.True(t, out.Success)
	assert.Equal(t, "dev-1", sess.PushToken())
}

func TestBridgeTool_Unreachable(t *testing.T) {
	c, err := client.New("http://127.0.0.1:1")
	require.NoError(t, err)
	bt := NewBridgeTools(c)

	res, _ := call(t, bt, BridgeInput{Action: "status"})
	require.NotNil(t, res)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "is 'runbridge serve' running?")
}

func TestBridgeTool_NotPaired(t *testing.T) {
	bt, sess, _ := newTools(t)
	sess.ClearEndpoint()

	res, _ := call(t, bt, BridgeInput{Action: "run"})
	require.NotNil(t, res)
	assert.Contains(t, resultText(res), "no public URL yet")
}

func TestRegisterBridgeTool(t *testing.T) {
	bt, _, _ := newTools(t)
	srv := mcp.NewServer(&mcp.Implementation{Name: "runbridge-test", Version: "test"}, nil)
	assert.NotPanics(t, func() { RegisterBridgeTool(srv, bt) })
}
