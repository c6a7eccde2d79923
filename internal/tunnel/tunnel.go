// Package tunnel launches the tunnel binary (ngrok by default) that exposes
// the control server and discovers the public URL it was assigned.
package tunnel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultBinary  = "ngrok"
	DefaultPort    = 4567
	DefaultAPIURL  = "http://localhost:4040/api/tunnels"
	DefaultTimeout = 10 * time.Second

	// apiBudget is added to Timeout for the diagnostic API poll.
	apiBudget = 3 * time.Second
)

// State represents the tunnel process state.
type State uint32

const (
	StateIdle State = iota
	StateStarting
	StateConnected
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config holds tunnel configuration.
type Config struct {
	// BinaryPath is the tunnel executable, resolved through PATH.
	BinaryPath string
	// LocalPort is the control server port to expose.
	LocalPort int
	// APIURL is the tunnel's local diagnostic endpoint.
	APIURL string
	// Timeout bounds the output scan for the forwarding line.
	Timeout time.Duration
	// Disabled skips spawning; the loopback URL is used.
	Disabled bool
}

func (c Config) withDefaults() Config {
	if c.BinaryPath == "" {
		c.BinaryPath = DefaultBinary
	}
	if c.LocalPort <= 0 {
		c.LocalPort = DefaultPort
	}
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// forwardingPattern matches the banner line, e.g.
// "Forwarding https://abcd.tunnel.io -> http://localhost:4567".
var forwardingPattern = regexp.MustCompile(`Forwarding\s+(https?://\S+)`)

// MatchForwarding extracts the public URL from one line of tunnel output.
func MatchForwarding(line string) (string, bool) {
	m := forwardingPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Command returns the platform command line that exposes localhost:port.
func Command(goos, binary string, port int) (string, []string) {
	target := "localhost:" + strconv.Itoa(port)
	if goos == "windows" {
		return "cmd", []string{"/c", binary, "http", target}
	}
	return binary, []string{"http", target}
}

// Tunnel is one spawned tunnel process.
type Tunnel struct {
	config    Config
	log       zerolog.Logger
	state     atomic.Uint32
	publicURL atomic.Pointer[string]
	cmd       *exec.Cmd
	cancel    context.CancelFunc

	// found is closed once the forwarding line has been seen.
	found     chan struct{}
	foundOnce sync.Once
	done      chan struct{}
	err       error
	errMu     sync.RWMutex
}

// Info describes a tunnel for status output.
type Info struct {
	State     string `json:"state"`
	PublicURL string `json:"public_url,omitempty"`
	LocalPort int    `json:"local_port"`
	Error     string `json:"error,omitempty"`
}

// New creates an idle tunnel.
func New(config Config, log zerolog.Logger) *Tunnel {
	return &Tunnel{
		config: config.withDefaults(),
		log:    log.With().Str("component", "tunnel").Logger(),
		found:  make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start spawns the tunnel binary and returns once it is running. Output is
// scanned in the background for the forwarding line.
func (t *Tunnel) Start(ctx context.Context) error {
	if !t.compareAndSwapState(StateIdle, StateStarting) {
		return fmt.Errorf("tunnel already started")
	}

	if _, err := exec.LookPath(t.config.BinaryPath); err != nil {
		return t.fail(fmt.Errorf("%s not found: %w", t.config.BinaryPath, err))
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	name, args := Command(runtime.GOOS, t.config.BinaryPath, t.config.LocalPort)
	t.cmd = exec.CommandContext(ctx, name, args...)
	t.cmd.WaitDelay = 2 * time.Second

	// stdout and stderr share one pipe so the banner is found wherever the
	// binary prints it.
	pr, pw := io.Pipe()
	t.cmd.Stdout = pw
	t.cmd.Stderr = pw

	if err := t.cmd.Start(); err != nil {
		cancel()
		pw.Close()
		return t.fail(fmt.Errorf("failed to start %s: %w", t.config.BinaryPath, err))
	}
	t.log.Info().Str("cmd", name).Strs("args", args).Msg("tunnel process started")

	go t.consume(pr)

	go func() {
		defer close(t.done)
		err := t.cmd.Wait()
		pw.Close()
		if err != nil && ctx.Err() == nil {
			t.setError(fmt.Errorf("%s exited: %w", t.config.BinaryPath, err))
			t.setState(StateFailed)
		}
	}()

	return nil
}

// consume reads the tunnel output until EOF. After the forwarding line is
// found the remaining output is still drained so the process never blocks
// on a full pipe.
func (t *Tunnel) consume(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		t.log.Debug().Str("line", line).Msg("tunnel output")
		if t.PublicURL() != "" {
			continue
		}
		if url, ok := MatchForwarding(line); ok {
			t.setPublicURL(url)
			t.setState(StateConnected)
		}
	}
}

// Found is closed when the forwarding line has been seen.
func (t *Tunnel) Found() <-chan struct{} {
	return t.found
}

// Done is closed when the tunnel process exits.
func (t *Tunnel) Done() <-chan struct{} {
	return t.done
}

// Stop kills the tunnel process and waits for it to exit.
func (t *Tunnel) Stop(ctx context.Context) error {
	if t.State() == StateIdle || t.cmd == nil {
		t.setState(StateStopped)
		return nil
	}
	if t.cancel != nil {
		t.cancel()
	}
	if t.cmd.Process != nil {
		// Already exited is fine; Wait reports the real outcome.
		_ = t.cmd.Process.Kill()
	}

	select {
	case <-t.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	t.setState(StateStopped)
	return nil
}

// State returns the current tunnel state.
func (t *Tunnel) State() State {
	return State(t.state.Load())
}

// PublicURL returns the URL from the forwarding line, if seen.
func (t *Tunnel) PublicURL() string {
	if ptr := t.publicURL.Load(); ptr != nil {
		return *ptr
	}
	return ""
}

// Err returns the launch or exit error, if any.
func (t *Tunnel) Err() error {
	t.errMu.RLock()
	defer t.errMu.RUnlock()
	return t.err
}

// Info returns information about the tunnel.
func (t *Tunnel) Info() Info {
	info := Info{
		State:     t.State().String(),
		PublicURL: t.PublicURL(),
		LocalPort: t.config.LocalPort,
	}
	if err := t.Err(); err != nil {
		info.Error = err.Error()
	}
	return info
}

func (t *Tunnel) fail(err error) error {
	t.setState(StateFailed)
	t.setError(err)
	close(t.done)
	return err
}

func (t *Tunnel) setState(s State) {
	t.state.Store(uint32(s))
}

func (t *Tunnel) compareAndSwapState(old, new State) bool {
	return t.state.CompareAndSwap(uint32(old), uint32(new))
}

func (t *Tunnel) setError(err error) {
	t.errMu.Lock()
	t.err = err
	t.errMu.Unlock()
}

func (t *Tunnel) setPublicURL(url string) {
	t.publicURL.Store(&url)
	t.foundOnce.Do(func() { close(t.found) })
}
