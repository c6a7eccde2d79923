package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/standardbeagle/runbridge/internal/tools"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run as MCP server",
	Long: `Run as an MCP (Model Context Protocol) server for AI coding assistants.

The server exposes one tool, 'bridge', that drives a running 'runbridge serve'
through its control API: run and stop the project, read the build status and
request or apply fixes.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func newMCPServer(bt *tools.BridgeTools) *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    appName,
			Version: appVersion,
		},
		&mcp.ServerOptions{
			HasTools: true,
			Instructions: `Bridge to a project's run configuration.

Requires 'runbridge serve' running in the project (RUNBRIDGE_URL overrides the address).

Typical loop:
1. bridge {action: "run"} starts the project
2. bridge {action: "status"} until the status is success or failure
3. on failure, bridge {action: "fix"} proposes file changes
4. bridge {action: "apply"} writes them; then run again`,
		},
	)
	tools.RegisterBridgeTool(server, bt)
	return server
}

func runMCP(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// stdout carries the protocol; logs go to stderr.
	log := newLogger(cfg)

	c, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	server := newMCPServer(tools.NewBridgeTools(c))
	log.Info().Str("bridge", c.BaseURL()).Msgf("Starting %s v%s (mcp)", appName, appVersion)

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info().Msg("MCP client shutdown complete")
	return nil
}
