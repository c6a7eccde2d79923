package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/standardbeagle/runbridge/internal/client"
	"github.com/standardbeagle/runbridge/internal/config"
	"github.com/standardbeagle/runbridge/internal/fix"
	"github.com/standardbeagle/runbridge/internal/project"
	"github.com/standardbeagle/runbridge/internal/session"
)

func TestApplyServeFlags(t *testing.T) {
	defer func() {
		serveHost, servePort, serveNoTunnel, serveTunnel = "", 0, false, ""
	}()

	cfg := config.DefaultConfig()
	applyServeFlags(cfg)
	if cfg.Server.Port != config.DefaultPort || cfg.Tunnel.Disabled {
		t.Fatalf("flags without values changed the config: %+v", cfg.Server)
	}

	serveHost, servePort, serveNoTunnel, serveTunnel = "0.0.0.0", 9000, true, "/opt/ngrok"
	applyServeFlags(cfg)
	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 9000 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if !cfg.Tunnel.Disabled || cfg.Tunnel.Binary != "/opt/ngrok" {
		t.Errorf("tunnel = %+v", cfg.Tunnel)
	}
}

func TestPrintStatus(t *testing.T) {
	tests := []struct {
		name     string
		probe    client.Probe
		status   client.BuildStatus
		contains []string
		excludes []string
	}{
		{
			name:     "idle without url",
			status:   client.BuildStatus{Status: session.StatusIdle},
			contains: []string{"Public URL: (none)", "Build:      idle"},
			excludes: []string{"Error:"},
		},
		{
			name:     "failure with context",
			probe:    client.Probe{Running: true, PublicURL: "https://x.example.com"},
			status: client.BuildStatus{
				Status:           session.StatusFailure,
				ErrorMessage:     "cannot find symbol",
				AbsoluteFilePath: "/src/App.java",
				ErrorCode: &fix.ErrorCode{
					Line:   3,
					Before: []string{"a", "b"},
					Error:  "broken",
					After:  []string{"c"},
				},
			},
			contains: []string{
				"Public URL: https://x.example.com",
				"Error:      cannot find symbol",
				"File:       /src/App.java",
				"      1  a",
				">     3  broken",
				"      4  c",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printStatus(&buf, tt.probe, tt.status)
			out := buf.String()
			for _, want := range tt.contains {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
			for _, bad := range tt.excludes {
				if strings.Contains(out, bad) {
					t.Errorf("output has %q:\n%s", bad, out)
				}
			}
		})
	}
}

func TestPrintProject(t *testing.T) {
	var buf bytes.Buffer
	printProject(&buf, projectReport{
		Project: &project.Project{Name: "demo", Type: project.ProjectGradle, Path: "/work/demo"},
	})
	if !strings.Contains(buf.String(), "Run:     (none; add a run block to "+config.FileName+")") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}

	buf.Reset()
	printProject(&buf, projectReport{
		Project:   &project.Project{Name: "demo", Type: project.ProjectGradle, Path: "/work/demo"},
		RunConfig: &project.RunConfig{Command: "./gradlew", Args: []string{"bootRun"}, ReadyMarkers: []string{"Tomcat started on port"}},
	})
	out := buf.String()
	if !strings.Contains(out, "Ready:   Tomcat started on port") {
		t.Errorf("ready markers missing:\n%s", out)
	}
}

func TestRunInit(t *testing.T) {
	dir := t.TempDir()
	flagDir = dir
	defer func() { flagDir, initForce = "", false }()

	var out bytes.Buffer
	initCmd.SetOut(&out)
	defer initCmd.SetOut(nil)

	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("runInit() error = %v", err)
	}
	path := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if _, err := config.LoadFile(path); err != nil {
		t.Errorf("written config does not load: %v", err)
	}

	if err := runInit(initCmd, nil); err == nil {
		t.Error("expected error when the file exists")
	}
	initForce = true
	if err := runInit(initCmd, nil); err != nil {
		t.Errorf("runInit(--force) error = %v", err)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"serve", "status", "qr", "logs", "mcp", "init", "project", "completion"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestProjectDir(t *testing.T) {
	flagDir = "."
	defer func() { flagDir = "" }()

	dir, err := projectDir()
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("projectDir() = %q, want absolute", dir)
	}
}
