package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codeface/bugcrawl/internal/config"
	"github.com/codeface/bugcrawl/internal/debug"
	"github.com/codeface/bugcrawl/internal/dispatch"
)

var discardProject string

var errNoProject = errors.New("--project is required")

var discardCmd = &cobra.Command{
	Use:   "discard",
	Short: "Delete a project's issue-tracker rows from the sink",
	Long: `Deletes every issue, history, comment, CC and relation row stored for
the project. The cache is left untouched, so a later --parse-only run can
ingest it again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return discard(rootCtx, cmd.OutOrStdout(), discardProject)
	},
}

func discard(ctx context.Context, w io.Writer, projectFile string) error {
	if projectFile == "" {
		return errNoProject
	}
	project, err := config.LoadProject(projectFile)
	if err != nil {
		return err
	}
	sink, err := openSink(ctx)
	if err != nil {
		return fmt.Errorf("open sink: %w", err)
	}
	defer func() { _ = sink.Close() }()

	id, err := dispatch.Discard(ctx, sink, project.Name)
	if err != nil {
		return err
	}
	logger.Info("discarded tracker data", "project", project.Name, "project_id", id)
	if debug.IsQuiet() {
		return nil
	}
	fmt.Fprintf(w, "%s Discarded issue data for %s\n", color.New(color.FgGreen).Sprint("✓"), project.Name)
	return nil
}

func init() {
	discardCmd.Flags().StringVarP(&discardProject, "project", "p", "", "Project file (YAML or TOML)")
	rootCmd.AddCommand(discardCmd)
}
