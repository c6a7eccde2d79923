package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/standardbeagle/runbridge/internal/client"
	"github.com/standardbeagle/runbridge/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the bridge endpoint and build status",
	RunE:  runStatus,
}

var qrCmd = &cobra.Command{
	Use:   "qr",
	Short: "Print the pairing QR code",
	Long: `Print the public URL and connection id of a running bridge together with a
QR code the companion app can scan. On a terminal the code is drawn with
block characters; otherwise the base64 PNG is printed.`,
	RunE: runQR,
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print the bridge log",
	RunE:  runLogs,
}

var (
	statusJSON bool
	logsFollow bool
)

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the raw status as JSON")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Stream new log lines until interrupted")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(qrCmd)
	rootCmd.AddCommand(logsCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	probe, err := c.Status(ctx)
	if err != nil {
		return fmt.Errorf("bridge at %s is not reachable: %w", c.BaseURL(), err)
	}
	st, err := c.BuildStatus(ctx)
	if err != nil {
		return err
	}

	if statusJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"running":          probe.Running,
			"publicUrl":        probe.PublicURL,
			"status":           st.Status,
			"errorMessage":     st.ErrorMessage,
			"errorCode":        st.ErrorCode,
			"absoluteFilePath": st.AbsoluteFilePath,
		})
	}
	printStatus(cmd.OutOrStdout(), probe, st)
	return nil
}

func printStatus(w io.Writer, probe client.Probe, st client.BuildStatus) {
	if probe.Running {
		fmt.Fprintf(w, "Public URL: %s\n", probe.PublicURL)
	} else {
		fmt.Fprintln(w, "Public URL: (none)")
	}
	fmt.Fprintf(w, "Build:      %s\n", st.Status)

	if st.Status != session.StatusFailure {
		return
	}
	if st.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:      %s\n", st.ErrorMessage)
	}
	if st.AbsoluteFilePath != "" {
		fmt.Fprintf(w, "File:       %s\n", st.AbsoluteFilePath)
	}
	if code := st.ErrorCode; code != nil {
		first := code.Line - len(code.Before)
		for i, line := range code.Before {
			fmt.Fprintf(w, "  %5d  %s\n", first+i, line)
		}
		fmt.Fprintf(w, "> %5d  %s\n", code.Line, code.Error)
		for i, line := range code.After {
			fmt.Fprintf(w, "  %5d  %s\n", code.Line+1+i, line)
		}
	}
}

func runQR(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	p, err := c.Pairing(commandContext(cmd))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Public URL:    %s\n", p.PublicURL)
	fmt.Fprintf(out, "Connection ID: %s\n", p.ConnectionID)

	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		code, err := qrcode.New(p.PublicURL, qrcode.Medium)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, code.ToSmallString(false))
		return nil
	}
	fmt.Fprintf(out, "QR (base64 PNG): %s\n", p.QRCode)
	return nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	st, err := c.BuildStatus(ctx)
	if err != nil {
		return err
	}
	if st.Logs != "" {
		fmt.Fprintln(out, strings.TrimRight(st.Logs, "\n"))
	}
	if !logsFollow {
		return nil
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return c.Events(ctx, func(ev session.Event) {
		switch ev.Type {
		case session.EventLog:
			fmt.Fprintln(out, ev.Message)
		case session.EventStatus:
			fmt.Fprintf(out, "%s [bridge] status: %s\n", ev.Time.Format(time.TimeOnly), ev.Status)
		}
	})
}
