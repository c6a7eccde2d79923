// Package config contains the runbridge configuration: defaults, the
// .runbridge.kdl project file and environment overrides.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/standardbeagle/runbridge/internal/project"
)

// Environment variables read by ApplyEnv.
const (
	EnvNgrokPath          = "NGROK_PATH"
	EnvNgrokPort          = "NGROK_PORT"
	EnvLogLevel           = "RUNBRIDGE_LOG_LEVEL"
	EnvGoogleCredentials  = "GOOGLE_APPLICATION_CREDENTIALS"
	DefaultPort           = 4567
	DefaultBodyLimit      = 1 << 20
	DefaultLLMTimeout     = 90 * time.Second
	DefaultTunnelTimeout  = 10 * time.Second
	DefaultMaxSourceBytes = 256 * 1024
)

// DefaultSourceExtensions are the file extensions sent to the LLM with a
// fix request.
var DefaultSourceExtensions = []string{"java", "kt", "kts", "go", "js", "ts", "tsx", "jsx", "py", "gradle", "xml"}

// DefaultSkipDirs are never walked when collecting sources.
var DefaultSkipDirs = []string{".git", "build", "target", "node_modules", "vendor", ".gradle", ".idea"}

// Config holds the complete bridge configuration.
type Config struct {
	// Path is the file the configuration was loaded from, if any.
	Path string

	Server  ServerConfig
	Tunnel  TunnelConfig
	Run     *project.RunConfig
	LLM     LLMConfig
	Push    PushConfig
	Sources SourcesConfig
	Log     LogConfig
}

// ServerConfig configures the control server.
type ServerConfig struct {
	Host string
	Port int
	// BodyLimit caps request bodies in bytes.
	BodyLimit int64
}

// TunnelConfig configures the tunnel process.
type TunnelConfig struct {
	Binary   string
	APIURL   string
	Timeout  time.Duration
	Disabled bool
}

// LLMConfig selects the completion provider used by the fix pipeline.
type LLMConfig struct {
	// Provider is an aichannel provider name; empty auto-selects.
	Provider    string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration

	// Format is the fix response format, "blocks" or "json".
	Format string

	// Prompts overrides built-in prompts by task name.
	Prompts map[string]PromptOverride
}

// PromptOverride replaces the system and/or user text of one prompt.
type PromptOverride struct {
	System string
	User   string
}

// PushConfig configures push notifications. Without credentials no
// notifications are sent.
type PushConfig struct {
	CredentialsFile string
	// ProjectID overrides the project id from the credentials file.
	ProjectID string
}

// SourcesConfig controls which files accompany a fix request.
type SourcesConfig struct {
	Extensions  []string
	SkipDirs    []string
	MaxFileSize int64
}

// LogConfig configures the logger.
type LogConfig struct {
	Level string
	JSON  bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:      "127.0.0.1",
			Port:      DefaultPort,
			BodyLimit: DefaultBodyLimit,
		},
		Tunnel: TunnelConfig{
			Binary:  "ngrok",
			APIURL:  "http://localhost:4040/api/tunnels",
			Timeout: DefaultTunnelTimeout,
		},
		LLM: LLMConfig{
			Timeout: DefaultLLMTimeout,
			Format:  "blocks",
		},
		Sources: SourcesConfig{
			Extensions:  append([]string(nil), DefaultSourceExtensions...),
			SkipDirs:    append([]string(nil), DefaultSkipDirs...),
			MaxFileSize: DefaultMaxSourceBytes,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ApplyEnv overlays environment variables on c. Invalid numbers are
// ignored.
func (c *Config) ApplyEnv() {
	c.applyEnv(os.Getenv)
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvNgrokPath)); v != "" {
		c.Tunnel.Binary = v
	}
	if v := strings.TrimSpace(getenv(EnvNgrokPort)); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 && port < 65536 {
			c.Server.Port = port
		}
	}
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		c.Log.Level = v
	}
	if c.Push.CredentialsFile == "" {
		c.Push.CredentialsFile = strings.TrimSpace(getenv(EnvGoogleCredentials))
	}
}
