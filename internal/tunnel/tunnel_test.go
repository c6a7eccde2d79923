package tunnel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchForwarding(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{
			input:    "Forwarding https://abcd.tunnel.io -> http://localhost:4567",
			expected: "https://abcd.tunnel.io",
		},
		{
			input:    "Forwarding                    https://abc123def.ngrok-free.app -> http://localhost:8080",
			expected: "https://abc123def.ngrok-free.app",
		},
		{
			input:    "Forwarding http://plain.example.com -> localhost:4567",
			expected: "http://plain.example.com",
		},
		{
			input:    "Session Status                online",
			expected: "",
		},
		{
			input:    "https://abcd.tunnel.io without the banner",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := MatchForwarding(tt.input)
			assert.Equal(t, tt.expected != "", ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestCommand(t *testing.T) {
	name, args := Command("linux", "ngrok", 4567)
	assert.Equal(t, "ngrok", name)
	assert.Equal(t, []string{"http", "localhost:4567"}, args)

	name, args = Command("windows", `C:\tools\ngrok.exe`, 8080)
	assert.Equal(t, "cmd", name)
	assert.Equal(t, []string{"/c", `C:\tools\ngrok.exe`, "http", "localhost:8080"}, args)
}

func TestTunnelState(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateIdle, "idle"},
		{StateStarting, "starting"},
		{StateConnected, "connected"},
		{StateFailed, "failed"},
		{StateStopped, "stopped"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}

func TestConsumeKeepsFirstMatchAndDrains(t *testing.T) {
	tun := New(Config{}, zerolog.Nop())
	out := strings.Join([]string{
		"ngrok",
		"Forwarding https://abcd.tunnel.io -> http://localhost:4567",
		"Forwarding https://other.tunnel.io -> http://localhost:4567",
		"Connections ttl opn",
	}, "\n")

	tun.consume(strings.NewReader(out))

	select {
	case <-tun.Found():
	default:
		t.Fatal("found channel not closed")
	}
	assert.Equal(t, "https://abcd.tunnel.io", tun.PublicURL())
	assert.Equal(t, StateConnected, tun.State())
}

func TestNewTunnelDefaults(t *testing.T) {
	tun := New(Config{}, zerolog.Nop())

	assert.Equal(t, StateIdle, tun.State())
	assert.Empty(t, tun.PublicURL())

	info := tun.Info()
	assert.Equal(t, DefaultPort, info.LocalPort)
	assert.Equal(t, "idle", info.State)
}

func TestStartMissingBinary(t *testing.T) {
	tun := New(Config{BinaryPath: "runbridge-no-such-tunnel-binary"}, zerolog.Nop())
	err := tun.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, tun.State())

	select {
	case <-tun.Done():
	default:
		t.Fatal("done should be closed after a failed start")
	}
	assert.NoError(t, tun.Stop(context.Background()))
}

func TestAPIResolverPrefersHTTPS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tunnels", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tunnels":[
			{"public_url":"http://plain.tunnel.io","proto":"http"},
			{"public_url":"https://secure.tunnel.io","proto":"https"}
		]}`))
	}))
	defer srv.Close()

	url, ok := APIResolver{URL: srv.URL + "/api/tunnels"}.Resolve(context.Background())
	require.True(t, ok)
	assert.Equal(t, "https://secure.tunnel.io", url)
}

func TestAPIResolverFallsBackToAnyTunnel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tunnels":[{"public_url":"tcp://0.tcp.tunnel.io:1234","proto":"tcp"}]}`))
	}))
	defer srv.Close()

	url, ok := APIResolver{URL: srv.URL}.Resolve(context.Background())
	require.True(t, ok)
	assert.Equal(t, "tcp://0.tcp.tunnel.io:1234", url)
}

func TestAPIResolverFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"empty", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"tunnels":[]}`)) }},
		{"status", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) }},
		{"garbage", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`not json`)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, ok := APIResolver{URL: srv.URL}.Resolve(context.Background())
			assert.False(t, ok)
		})
	}
}

type staticResolver struct {
	name string
	url  string
	ok   bool
	hits *int
}

func (r staticResolver) Name() string { return r.name }

func (r staticResolver) Resolve(context.Context) (string, bool) {
	if r.hits != nil {
		*r.hits++
	}
	return r.url, r.ok
}

func TestResolveURLOrder(t *testing.T) {
	var laterHits int
	url := ResolveURL(context.Background(), zerolog.Nop(),
		staticResolver{name: "a"},
		staticResolver{name: "b", url: "https://b.tunnel.io", ok: true},
		staticResolver{name: "c", url: "https://c.tunnel.io", ok: true, hits: &laterHits},
	)
	assert.Equal(t, "https://b.tunnel.io", url)
	assert.Zero(t, laterHits, "resolvers after the first hit are not consulted")

	assert.Empty(t, ResolveURL(context.Background(), zerolog.Nop(), staticResolver{name: "none"}))
}

func TestLauncherDisabledUsesLoopback(t *testing.T) {
	l := NewLauncher(Config{Disabled: true, LocalPort: 9876}, zerolog.Nop())

	var published string
	l.OnURL = func(url string) { published = url }

	url := l.Start(context.Background())
	assert.Equal(t, "http://localhost:9876", url)
	assert.Equal(t, url, published)
	assert.Equal(t, url, l.URL())
	assert.NoError(t, l.Stop(context.Background()))
}

func TestLauncherMissingBinaryUsesLoopback(t *testing.T) {
	l := NewLauncher(Config{BinaryPath: "runbridge-no-such-tunnel-binary"}, zerolog.Nop())
	assert.Equal(t, "http://localhost:4567", l.Start(context.Background()))
	assert.Equal(t, "idle", l.Info().State)
}

func writeFakeTunnel(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tunnel script requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-tunnel")
	script := "#!/bin/sh\n" + body
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestLauncherResolvesFromOutput(t *testing.T) {
	bin := writeFakeTunnel(t, `echo "starting tunnel"
echo "Forwarding https://abcd.tunnel.io -> http://localhost:4567" >&2
exec sleep 30
`)

	l := NewLauncher(Config{BinaryPath: bin, Timeout: 5 * time.Second}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	url := l.Start(ctx)
	assert.Equal(t, "https://abcd.tunnel.io", url)
	assert.Equal(t, "connected", l.Info().State)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, l.Stop(stopCtx))
}

func TestLauncherFallsBackToAPI(t *testing.T) {
	bin := writeFakeTunnel(t, "exec sleep 30\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tunnels":[{"public_url":"https://api.tunnel.io","proto":"https"}]}`))
	}))
	defer srv.Close()

	l := NewLauncher(Config{BinaryPath: bin, APIURL: srv.URL, Timeout: 200 * time.Millisecond}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.Equal(t, "https://api.tunnel.io", l.Start(ctx))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, l.Stop(stopCtx))
}
