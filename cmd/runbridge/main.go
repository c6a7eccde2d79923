package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/standardbeagle/runbridge/internal/client"
	"github.com/standardbeagle/runbridge/internal/config"
	"github.com/standardbeagle/runbridge/internal/logging"
)

const (
	appName    = "runbridge"
	appVersion = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Run, watch and fix a project's build from a paired phone or agent",
	Long: `Runbridge exposes a project's run configuration over a small HTTP API:
  - Control server the companion app pairs with through a QR code
  - Tunnel publishing the server on a public URL
  - Build monitor with push notifications on success and failure
  - LLM-backed failure summaries and file fixes
  - MCP server so coding agents can drive the same bridge`,
	Version:       appVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	// Default behavior: if stdin is not a terminal, run as MCP server
	RunE: func(cmd *cobra.Command, args []string) error {
		if !isTerminal(os.Stdin) {
			return runMCP(cmd, args)
		}
		return cmd.Help()
	},
}

var (
	flagDir      string
	flagURL      string
	flagLogLevel string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagDir, "dir", "C", "", "Project directory (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&flagURL, "url", "", "Bridge address for client commands (default: $"+client.EnvURL+" or the configured port)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.SetVersionTemplate(fmt.Sprintf("%s v%s\n", appName, appVersion))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// projectDir resolves --dir to an absolute path.
func projectDir() (string, error) {
	dir := flagDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		dir = wd
	}
	return filepath.Abs(dir)
}

// loadConfig loads the project configuration and applies --log-level.
func loadConfig() (string, *config.Config, error) {
	dir, err := projectDir()
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return "", nil, err
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	return dir, cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(logging.Config{Level: cfg.Log.Level, JSON: cfg.Log.JSON}, os.Stderr).
		With().Str("app", appName).Logger()
}

// newClient builds a control API client from --url, RUNBRIDGE_URL or the
// configured port.
func newClient() (*client.Client, error) {
	port := config.DefaultPort
	if _, cfg, err := loadConfig(); err == nil {
		port = cfg.Server.Port
	}
	return client.New(client.ResolveURL(flagURL, port))
}
