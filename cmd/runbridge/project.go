package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/standardbeagle/runbridge/internal/config"
	"github.com/standardbeagle/runbridge/internal/project"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default " + config.FileName,
	Long: `Write a commented default configuration into the project directory.

Every setting is optional; the defaults apply when the file is absent.`,
	RunE: runInit,
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Show the detected project and run configuration",
	RunE:  runProject,
}

var (
	initForce   bool
	projectJSON bool
)

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing file")
	projectCmd.Flags().BoolVar(&projectJSON, "json", false, "Print as JSON")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(projectCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := projectDir()
	if err != nil {
		return err
	}
	path := filepath.Join(dir, config.FileName)

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := config.WriteDefaultConfig(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

type projectReport struct {
	Project   *project.Project   `json:"project"`
	RunConfig *project.RunConfig `json:"run_config,omitempty"`
	Config    string             `json:"config,omitempty"`
}

func runProject(cmd *cobra.Command, args []string) error {
	dir, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p, err := project.Detect(dir)
	if err != nil {
		return fmt.Errorf("%w: %v", project.ErrNoProject, err)
	}

	report := projectReport{Project: p, RunConfig: cfg.Run, Config: cfg.Path}
	if report.RunConfig == nil {
		report.RunConfig = project.DefaultRunConfig(p)
	}

	if projectJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printProject(cmd.OutOrStdout(), report)
	return nil
}

func printProject(w io.Writer, r projectReport) {
	fmt.Fprintf(w, "Project: %s (%s)\n", r.Project.Name, r.Project.Type)
	fmt.Fprintf(w, "Path:    %s\n", r.Project.Path)
	if r.Config != "" {
		fmt.Fprintf(w, "Config:  %s\n", r.Config)
	}
	if r.RunConfig == nil {
		fmt.Fprintf(w, "Run:     (none; add a run block to %s)\n", config.FileName)
		return
	}
	fmt.Fprintf(w, "Run:     %s\n", r.RunConfig.CommandLine())
	if len(r.RunConfig.ReadyMarkers) > 0 {
		fmt.Fprintf(w, "Ready:   %s\n", strings.Join(r.RunConfig.ReadyMarkers, " | "))
	}
}
