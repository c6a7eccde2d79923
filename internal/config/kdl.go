package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	kdl "github.com/sblinch/kdl-go"

	"github.com/standardbeagle/runbridge/internal/project"
)

// FileName is the project configuration file searched for by Load.
const FileName = ".runbridge.kdl"

// kdlFile mirrors the .runbridge.kdl layout. Durations are whole seconds.
type kdlFile struct {
	Server  *kdlServer  `kdl:"server"`
	Tunnel  *kdlTunnel  `kdl:"tunnel"`
	Run     *kdlRun     `kdl:"run"`
	LLM     *kdlLLM     `kdl:"llm"`
	Push    *kdlPush    `kdl:"push"`
	Sources *kdlSources `kdl:"sources"`
	Log     *kdlLog     `kdl:"log"`
}

type kdlServer struct {
	Host      string `kdl:"host"`
	Port      int    `kdl:"port"`
	BodyLimit int64  `kdl:"body-limit"`
}

type kdlTunnel struct {
	Binary   string `kdl:"binary"`
	APIURL   string `kdl:"api-url"`
	Timeout  int    `kdl:"timeout"`
	Disabled bool   `kdl:"disabled"`
}

type kdlRun struct {
	Name         string            `kdl:"name"`
	Command      string            `kdl:"command"`
	Args         []string          `kdl:"args"`
	Cwd          string            `kdl:"cwd"`
	PTY          bool              `kdl:"pty"`
	ReadyMarkers []string          `kdl:"ready-markers"`
	Env          map[string]string `kdl:"env"`
}

type kdlLLM struct {
	Provider    string                `kdl:"provider"`
	Model       string                `kdl:"model"`
	BaseURL     string                `kdl:"base-url"`
	MaxTokens   int                   `kdl:"max-tokens"`
	Temperature float64               `kdl:"temperature"`
	Timeout     int                   `kdl:"timeout"`
	Format      string                `kdl:"format"`
	Prompts     map[string]*kdlPrompt `kdl:"prompts"`
}

type kdlPrompt struct {
	System string `kdl:"system"`
	User   string `kdl:"user"`
}

type kdlPush struct {
	Credentials string `kdl:"credentials"`
	ProjectID   string `kdl:"project-id"`
}

type kdlSources struct {
	Extensions  []string `kdl:"extensions"`
	Skip        []string `kdl:"skip"`
	MaxFileSize int64    `kdl:"max-file-size"`
}

type kdlLog struct {
	Level string `kdl:"level"`
	JSON  bool   `kdl:"json"`
}

// Load finds .runbridge.kdl from dir upwards, merges it over the defaults
// and applies the environment. A missing file is not an error.
func Load(dir string) (*Config, error) {
	var cfg *Config
	if path := FindConfigFile(dir); path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = DefaultConfig()
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// FindConfigFile searches for .runbridge.kdl starting from dir and walking up.
func FindConfigFile(dir string) string {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(absDir, FileName)
		if info, err := os.Stat(configPath); err == nil && !info.IsDir() {
			return configPath
		}

		parent := filepath.Dir(absDir)
		if parent == absDir {
			break
		}
		absDir = parent
	}

	return ""
}

// LoadFile parses a specific configuration file. Relative paths inside it
// resolve against the file's directory.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = path

	base := filepath.Dir(path)
	if cfg.Push.CredentialsFile != "" && !filepath.IsAbs(cfg.Push.CredentialsFile) {
		cfg.Push.CredentialsFile = filepath.Join(base, cfg.Push.CredentialsFile)
	}
	return cfg, nil
}

// Parse parses KDL configuration data over the defaults.
func Parse(data string) (*Config, error) {
	var file kdlFile
	if err := kdl.Unmarshal([]byte(data), &file); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := DefaultConfig()
	file.merge(cfg)
	return cfg, nil
}

func (f *kdlFile) merge(cfg *Config) {
	if s := f.Server; s != nil {
		if s.Host != "" {
			cfg.Server.Host = s.Host
		}
		if s.Port > 0 {
			cfg.Server.Port = s.Port
		}
		if s.BodyLimit > 0 {
			cfg.Server.BodyLimit = s.BodyLimit
		}
	}

	if t := f.Tunnel; t != nil {
		if t.Binary != "" {
			cfg.Tunnel.Binary = t.Binary
		}
		if t.APIURL != "" {
			cfg.Tunnel.APIURL = t.APIURL
		}
		if t.Timeout > 0 {
			cfg.Tunnel.Timeout = time.Duration(t.Timeout) * time.Second
		}
		cfg.Tunnel.Disabled = t.Disabled
	}

	if r := f.Run; r != nil && r.Command != "" {
		cfg.Run = r.toRunConfig()
	}

	if l := f.LLM; l != nil {
		cfg.LLM.Provider = l.Provider
		cfg.LLM.Model = l.Model
		cfg.LLM.BaseURL = l.BaseURL
		cfg.LLM.MaxTokens = l.MaxTokens
		cfg.LLM.Temperature = l.Temperature
		if l.Timeout > 0 {
			cfg.LLM.Timeout = time.Duration(l.Timeout) * time.Second
		}
		if f := strings.ToLower(strings.TrimSpace(l.Format)); f != "" {
			cfg.LLM.Format = f
		}
		for name, p := range l.Prompts {
			if p == nil {
				continue
			}
			if cfg.LLM.Prompts == nil {
				cfg.LLM.Prompts = make(map[string]PromptOverride)
			}
			cfg.LLM.Prompts[name] = PromptOverride{System: p.System, User: p.User}
		}
	}

	if p := f.Push; p != nil {
		cfg.Push.CredentialsFile = p.Credentials
		cfg.Push.ProjectID = p.ProjectID
	}

	if s := f.Sources; s != nil {
		if len(s.Extensions) > 0 {
			cfg.Sources.Extensions = normalizeExtensions(s.Extensions)
		}
		if len(s.Skip) > 0 {
			cfg.Sources.SkipDirs = s.Skip
		}
		if s.MaxFileSize > 0 {
			cfg.Sources.MaxFileSize = s.MaxFileSize
		}
	}

	if l := f.Log; l != nil {
		if l.Level != "" {
			cfg.Log.Level = l.Level
		}
		cfg.Log.JSON = l.JSON
	}
}

func (r *kdlRun) toRunConfig() *project.RunConfig {
	rc := &project.RunConfig{
		Name:         r.Name,
		Command:      r.Command,
		Args:         r.Args,
		Dir:          r.Cwd,
		PTY:          r.PTY,
		ReadyMarkers: r.ReadyMarkers,
	}
	if rc.Name == "" {
		rc.Name = "configured"
	}
	if len(rc.ReadyMarkers) == 0 {
		rc.ReadyMarkers = append([]string(nil), project.DefaultReadyMarkers...)
	}

	keys := make([]string, 0, len(r.Env))
	for k := range r.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rc.Env = append(rc.Env, k+"="+r.Env[k])
	}
	return rc
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.TrimPrefix(strings.TrimSpace(e), ".")
		if e != "" {
			out = append(out, strings.ToLower(e))
		}
	}
	return out
}

// WriteDefaultConfig writes a documented configuration file.
func WriteDefaultConfig(path string) error {
	defaultKDL := `// runbridge configuration

server {
    // Control server port; NGROK_PORT overrides it
    port 4567
}

tunnel {
    // NGROK_PATH overrides the binary
    binary "ngrok"
    // Seconds to wait for the forwarding line
    timeout 10
}

// Uncomment to override the detected run configuration
// run {
//     command "./gradlew"
//     args "bootRun"
//     ready-markers "Tomcat started on port"
//     env { SPRING_PROFILES_ACTIVE "dev" }
// }

llm {
    // anthropic, openai, google, mistral, deepseek, ...; empty picks the first key found
    provider ""
    timeout 90
    // "blocks" (-- START OF FILE) or "json"
    format "blocks"
    // prompts {
    //     summarize_failure {
    //         user "Find the failing file and line.\nMESSAGE:/FILE:/LINE: lines only.\n%s"
    //     }
    // }
}

// push {
//     credentials "service-account.json"
// }

log {
    level "info"
}
`
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strings.TrimSpace(defaultKDL)+"\n"), 0644)
}
