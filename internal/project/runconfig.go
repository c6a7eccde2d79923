package project

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultReadyMarkers are output fragments that mean a long-running
// application finished starting.
var DefaultReadyMarkers = []string{
	"Tomcat started on port",
	"Netty started on port",
	"Jetty started on port",
	"Undertow started on port",
}

// RunConfig is the command the bridge launches for a run request.
type RunConfig struct {
	// Name labels the configuration in logs.
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	// Env entries are KEY=VALUE.
	Env []string `json:"env,omitempty"`
	// Dir is the working directory; relative paths resolve against the
	// project root.
	Dir string `json:"dir,omitempty"`
	PTY bool   `json:"pty,omitempty"`
	// ReadyMarkers mark success before the process exits.
	ReadyMarkers []string `json:"ready_markers,omitempty"`
}

// CommandLine renders the command for display.
func (rc *RunConfig) CommandLine() string {
	return strings.TrimSpace(rc.Command + " " + strings.Join(rc.Args, " "))
}

// WorkDir resolves Dir against the project root.
func (rc *RunConfig) WorkDir(root string) string {
	switch {
	case rc.Dir == "":
		return root
	case filepath.IsAbs(rc.Dir):
		return rc.Dir
	default:
		return filepath.Join(root, rc.Dir)
	}
}

// DefaultRunConfig derives a run configuration from the project type.
// It returns nil when nothing sensible can be inferred.
func DefaultRunConfig(p *Project) *RunConfig {
	if p == nil {
		return nil
	}
	return defaultRunConfig(p, runtime.GOOS)
}

func defaultRunConfig(p *Project, goos string) *RunConfig {
	rc := &RunConfig{ReadyMarkers: append([]string(nil), DefaultReadyMarkers...)}
	spring := p.Metadata["framework"] == "spring-boot"

	switch p.Type {
	case ProjectGradle:
		rc.Command = wrapperOr(p, goos, "gradlew", "gradle")
		rc.Args = []string{"run"}
		if spring {
			rc.Args = []string{"bootRun"}
		}
	case ProjectMaven:
		rc.Command = wrapperOr(p, goos, "mvnw", "mvn")
		rc.Args = []string{"compile", "exec:java"}
		if spring {
			rc.Args = []string{"spring-boot:run"}
		}
	case ProjectGo:
		rc.Command = "go"
		rc.Args = []string{"run", "."}
	case ProjectNode:
		pm := p.PackageManager
		if pm == "" {
			pm = "npm"
		}
		script := ""
		scripts := strings.Split(p.Metadata["scripts"], ",")
		for _, candidate := range []string{"dev", "start"} {
			if containsItem(scripts, candidate) {
				script = candidate
				break
			}
		}
		if script == "" {
			return nil
		}
		rc.Command = pm
		rc.Args = []string{"run", script}
	case ProjectPython:
		python := "python3"
		if goos == "windows" {
			python = "python"
		}
		switch {
		case p.Metadata["framework"] == "django":
			rc.Command = python
			rc.Args = []string{"manage.py", "runserver"}
		case fileExists(filepath.Join(p.Path, "main.py")):
			rc.Command = python
			rc.Args = []string{"main.py"}
		case fileExists(filepath.Join(p.Path, "app.py")):
			rc.Command = python
			rc.Args = []string{"app.py"}
		default:
			return nil
		}
	default:
		return nil
	}

	rc.Name = string(p.Type) + ": " + rc.CommandLine()
	return rc
}

// wrapperOr prefers the build wrapper script checked into the project.
func wrapperOr(p *Project, goos, wrapper, fallback string) string {
	if p.Metadata["wrapper"] != "true" {
		return fallback
	}
	if goos == "windows" {
		for _, ext := range []string{".bat", ".cmd"} {
			candidate := filepath.Join(p.Path, wrapper+ext)
			if fileExists(candidate) {
				return candidate
			}
		}
		return fallback
	}
	candidate := filepath.Join(p.Path, wrapper)
	if info, err := os.Stat(candidate); err == nil && info.Mode()&0o111 != 0 {
		return candidate
	}
	return fallback
}

func containsItem(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
