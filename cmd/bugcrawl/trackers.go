package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/codeface/bugcrawl/internal/tracker"
	"github.com/codeface/bugcrawl/internal/tracker/bugzilla"
	"github.com/codeface/bugcrawl/internal/tracker/jira"
)

// newRegistry returns the registry of every supported tracker type.
func newRegistry() *tracker.Registry {
	r := tracker.NewRegistry()
	bugzilla.Register(r)
	jira.Register(r)
	return r
}

var trackersCmd = &cobra.Command{
	Use:   "trackers",
	Short: "List supported tracker types",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listTrackers(cmd.OutOrStdout(), newRegistry())
	},
}

func listTrackers(w io.Writer, r *tracker.Registry) error {
	for _, name := range r.List() {
		t, err := r.NewTracker(name)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%-10s %s\n", name, t.DisplayName()); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(trackersCmd)
}
