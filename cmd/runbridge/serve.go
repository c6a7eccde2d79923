package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/standardbeagle/runbridge/internal/bridge"
	"github.com/standardbeagle/runbridge/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve [dir]",
	Short: "Run the bridge for the project",
	Long: `Start the control server, publish it through the tunnel and wait for
run requests from the paired app.

The project is detected from dir (or --dir, or the current directory) and
.runbridge.kdl is read from there or any parent directory.
Send SIGHUP to restart the tunnel and republish the endpoint.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

var (
	serveHost     string
	servePort     int
	serveNoTunnel bool
	serveTunnel   string
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen address (default from config, 127.0.0.1)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (default from config or $"+config.EnvNgrokPort+", 4567)")
	serveCmd.Flags().BoolVar(&serveNoTunnel, "no-tunnel", false, "Serve on loopback only")
	serveCmd.Flags().StringVar(&serveTunnel, "tunnel-binary", "", "Tunnel executable (default from config or $"+config.EnvNgrokPath+", ngrok)")
	rootCmd.AddCommand(serveCmd)
}

// applyServeFlags lets flags override the file and environment.
func applyServeFlags(cfg *config.Config) {
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	if serveNoTunnel {
		cfg.Tunnel.Disabled = true
	}
	if serveTunnel != "" {
		cfg.Tunnel.Binary = serveTunnel
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		flagDir = args[0]
	}
	dir, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyServeFlags(cfg)

	log := newLogger(cfg)
	if cfg.Path != "" {
		log.Info().Str("config", cfg.Path).Msg("configuration loaded")
	}

	ctx, cancel := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	b, err := bridge.New(ctx, bridge.Options{Dir: dir, Config: cfg, Logger: log})
	if err != nil {
		return err
	}

	log.Info().Str("version", appVersion).Msgf("Starting %s", appName)
	if err := b.Run(ctx, hup); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// Context for commands executed without one, e.g. in tests.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
