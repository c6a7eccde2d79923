// Package client talks to a running bridge over its control API. The CLI
// subcommands and the MCP tool use it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/standardbeagle/runbridge/internal/fix"
	"github.com/standardbeagle/runbridge/internal/session"
)

// EnvURL overrides the bridge address.
const EnvURL = "RUNBRIDGE_URL"

// DefaultTimeout bounds every non-streaming request. Fix requests wait on the
// LLM and use FixTimeout instead.
const (
	DefaultTimeout = 15 * time.Second
	FixTimeout     = 3 * time.Minute
)

const maxErrorBody = 64 << 10

// ErrNotPaired is returned when no connection id is known and the bridge has
// no public URL to derive one from.
var ErrNotPaired = errors.New("bridge has no connection id yet")

// APIError is a non-2xx answer from the bridge.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("bridge returned %d", e.Status)
	}
	return fmt.Sprintf("bridge returned %d: %s", e.Status, e.Message)
}

// Probe is the /status answer.
type Probe struct {
	Running   bool   `json:"running"`
	PublicURL string `json:"publicUrl"`
}

// Pairing is the /generateQR answer.
type Pairing struct {
	ConnectionID string `json:"connectionId"`
	PublicURL    string `json:"publicUrl"`
	QRCode       string `json:"qrCode"`
}

// BuildStatus is the /getStatus answer. ErrorCode is nil when the bridge
// could not extract context.
type BuildStatus struct {
	Status           session.BuildStatus `json:"status"`
	Logs             string              `json:"logs"`
	ErrorMessage     string              `json:"errorMessage,omitempty"`
	ErrorCode        *fix.ErrorCode      `json:"-"`
	AbsoluteFilePath string              `json:"absoluteFilePath,omitempty"`
}

// Result is the generic {success, message, error} answer.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// FixResult is the /getFix answer.
type FixResult struct {
	Success bool              `json:"success"`
	Files   []session.FileFix `json:"files"`
	Error   string            `json:"error,omitempty"`
}

// ApplyResult is the /doFix answer.
type ApplyResult struct {
	Success bool     `json:"success"`
	Updated []string `json:"updated"`
	Error   string   `json:"error,omitempty"`
}

// Client is a bridge API client.
type Client struct {
	base         *url.URL
	http         *http.Client
	connectionID string
	dialer       *websocket.Dialer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithConnectionID sets the pairing id. Without it the client asks the
// bridge for the current one.
func WithConnectionID(id string) Option {
	return func(c *Client) { c.connectionID = id }
}

// New creates a client for baseURL ("http://127.0.0.1:4567").
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid bridge url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid bridge url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{},
		dialer: websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ResolveURL picks the bridge address: explicit value, then RUNBRIDGE_URL,
// then the local default port.
func ResolveURL(explicit string, port int) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(EnvURL); env != "" {
		return env
	}
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

// BaseURL returns the bridge address.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Status probes the bridge. A 503 is not an error; it means no public URL.
func (c *Client) Status(ctx context.Context) (Probe, error) {
	var p Probe
	status, err := c.do(ctx, http.MethodGet, "/status", nil, &p, DefaultTimeout)
	if status == http.StatusServiceUnavailable {
		return Probe{}, nil
	}
	if err != nil {
		return Probe{}, err
	}
	return p, nil
}

// Pairing returns the connection id, public URL and QR payload.
func (c *Client) Pairing(ctx context.Context) (Pairing, error) {
	var p Pairing
	if _, err := c.do(ctx, http.MethodGet, "/generateQR", nil, &p, DefaultTimeout); err != nil {
		return Pairing{}, err
	}
	return p, nil
}

// BuildStatus returns the current build status and logs.
func (c *Client) BuildStatus(ctx context.Context) (BuildStatus, error) {
	var raw struct {
		BuildStatus
		ErrorCode json.RawMessage `json:"errorCode"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/getStatus", nil, &raw, FixTimeout); err != nil {
		return BuildStatus{}, err
	}
	out := raw.BuildStatus
	if len(raw.ErrorCode) > 0 && raw.ErrorCode[0] == '{' {
		var code fix.ErrorCode
		if err := json.Unmarshal(raw.ErrorCode, &code); err == nil {
			out.ErrorCode = &code
		}
	}
	return out, nil
}

// Run dispatches the run configuration.
func (c *Client) Run(ctx context.Context) (Result, error) {
	return c.paired(ctx, "/runApplication")
}

// Stop stops the current run.
func (c *Client) Stop(ctx context.Context) (Result, error) {
	return c.paired(ctx, "/stopApplication")
}

func (c *Client) paired(ctx context.Context, path string) (Result, error) {
	id, err := c.resolveConnectionID(ctx)
	if err != nil {
		return Result{}, err
	}
	var r Result
	body := map[string]string{"connectionId": id}
	if _, err := c.do(ctx, http.MethodPost, path, body, &r, DefaultTimeout); err != nil {
		return Result{}, err
	}
	return r, nil
}

func (c *Client) resolveConnectionID(ctx context.Context) (string, error) {
	if c.connectionID != "" {
		return c.connectionID, nil
	}
	p, err := c.Pairing(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotPaired, err)
	}
	if p.ConnectionID == "" {
		return "", ErrNotPaired
	}
	return p.ConnectionID, nil
}

// Fix requests a FixSet. An empty buildMessage uses the bridge's last
// captured build log.
func (c *Client) Fix(ctx context.Context, buildMessage string) (FixResult, error) {
	var body any
	if buildMessage != "" {
		body = map[string]string{"buildMessage": buildMessage}
	}
	var r FixResult
	if _, err := c.do(ctx, http.MethodPost, "/getFix", body, &r, FixTimeout); err != nil {
		return FixResult{}, err
	}
	return r, nil
}

// Apply writes the last FixSet. A partial failure returns both the result and
// an *APIError.
func (c *Client) Apply(ctx context.Context) (ApplyResult, error) {
	var r ApplyResult
	_, err := c.do(ctx, http.MethodPost, "/doFix", nil, &r, DefaultTimeout)
	return r, err
}

// UpdateToken registers the push target.
func (c *Client) UpdateToken(ctx context.Context, token string) (Result, error) {
	var r Result
	if _, err := c.do(ctx, http.MethodPost, "/updateFcmToken", map[string]string{"token": token}, &r, DefaultTimeout); err != nil {
		return Result{}, err
	}
	return r, nil
}

// do sends a JSON request and decodes the answer into out. The body is
// decoded for error statuses too so callers see partial results.
func (c *Client) do(ctx context.Context, method, path string, in, out any, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return resp.StatusCode, err
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil && resp.StatusCode < 300 {
			return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	if resp.StatusCode >= 300 {
		return resp.StatusCode, &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
	}
	return resp.StatusCode, nil
}

func errorMessage(data []byte) string {
	var env struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &env); err == nil {
		if env.Error != "" {
			return env.Error
		}
		if env.Message != "" {
			return env.Message
		}
	}
	if len(data) > maxErrorBody {
		data = data[:maxErrorBody]
	}
	return strings.TrimSpace(string(data))
}

// Events streams session events to fn until ctx is cancelled or the bridge
// closes the connection.
func (c *Client) Events(ctx context.Context, fn func(session.Event)) error {
	id, err := c.resolveConnectionID(ctx)
	if err != nil {
		return err
	}

	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/events"
	u.RawQuery = url.Values{"connectionId": {id}}.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return &APIError{Status: resp.StatusCode, Message: "websocket upgrade refused"}
		}
		return fmt.Errorf("dial events: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-done:
			return
		case <-ctx.Done():
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for {
		var ev session.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		fn(ev)
	}
}
