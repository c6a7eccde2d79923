package tunnel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Resolver is one step of the public URL discovery chain.
type Resolver interface {
	Name() string
	Resolve(ctx context.Context) (string, bool)
}

// ResolveURL evaluates resolvers in order and returns the first URL found.
// An empty string means every resolver came up empty.
func ResolveURL(ctx context.Context, log zerolog.Logger, resolvers ...Resolver) string {
	for _, r := range resolvers {
		if ctx.Err() != nil {
			break
		}
		url, ok := r.Resolve(ctx)
		if ok && url != "" {
			log.Info().Str("resolver", r.Name()).Str("url", url).Msg("public url resolved")
			return url
		}
		log.Debug().Str("resolver", r.Name()).Msg("resolver found nothing")
	}
	return ""
}

// OutputResolver waits for the tunnel's forwarding line.
type OutputResolver struct {
	Tunnel  *Tunnel
	Timeout time.Duration
}

func (r OutputResolver) Name() string { return "output" }

func (r OutputResolver) Resolve(ctx context.Context) (string, bool) {
	if r.Tunnel == nil {
		return "", false
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-r.Tunnel.Found():
		return r.Tunnel.PublicURL(), true
	case <-r.Tunnel.Done():
		// The process may have printed the line right before exiting.
		if url := r.Tunnel.PublicURL(); url != "" {
			return url, true
		}
		return "", false
	case <-timer.C:
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

// apiTunnels is the body of GET /api/tunnels.
type apiTunnels struct {
	Tunnels []struct {
		PublicURL string `json:"public_url"`
		Proto     string `json:"proto"`
	} `json:"tunnels"`
}

// APIResolver queries the tunnel's local diagnostic API.
type APIResolver struct {
	URL    string
	Client *http.Client
}

func (r APIResolver) Name() string { return "api" }

func (r APIResolver) Resolve(ctx context.Context) (string, bool) {
	url, err := r.fetch(ctx)
	if err != nil {
		return "", false
	}
	return url, url != ""
}

func (r APIResolver) fetch(ctx context.Context) (string, error) {
	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}
	endpoint := r.URL
	if endpoint == "" {
		endpoint = DefaultAPIURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tunnel API returned status %d", resp.StatusCode)
	}

	var body apiTunnels
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}

	for _, t := range body.Tunnels {
		if t.Proto == "https" || strings.HasPrefix(t.PublicURL, "https://") {
			return t.PublicURL, nil
		}
	}
	if len(body.Tunnels) > 0 {
		return body.Tunnels[0].PublicURL, nil
	}
	return "", fmt.Errorf("no tunnels found")
}

// LoopbackResolver always answers with the local control server URL.
type LoopbackResolver struct {
	Port int
}

func (r LoopbackResolver) Name() string { return "loopback" }

func (r LoopbackResolver) Resolve(context.Context) (string, bool) {
	return LoopbackURL(r.Port), true
}

// LoopbackURL returns http://localhost:<port>.
func LoopbackURL(port int) string {
	if port <= 0 {
		port = DefaultPort
	}
	return "http://localhost:" + strconv.Itoa(port)
}
