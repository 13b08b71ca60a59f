package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeface/bugcrawl/internal/config"
	"github.com/codeface/bugcrawl/internal/debug"
	"github.com/codeface/bugcrawl/internal/telemetry"
)

var (
	configFile  string
	verboseFlag bool
	quietFlag   bool
	jsonLogs    bool

	rootCtx    context.Context
	rootCancel context.CancelFunc
	logger     = slog.New(slog.DiscardHandler)
)

var rootCmd = &cobra.Command{
	Use:   "bugcrawl",
	Short: "bugcrawl - crawl bug trackers into an analysis database",
	Long: `Crawls every issue of one project on a remote bug tracker, caches the
raw responses on disk and loads issues, history, comments, CC lists and
issue relations into the analysis database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupSignalContext()
		debug.SetVerbose(verboseFlag)
		debug.SetQuiet(quietFlag)

		if err := config.Initialize(configFile); err != nil {
			return err
		}
		if cmd.Flags().Changed("json-logs") {
			config.Set("json-logs", jsonLogs)
		}
		logger = debug.NewLogger(os.Stderr, debug.Options{
			Verbose: verboseFlag,
			JSON:    config.GetBool("json-logs"),
		})
		if f := config.ConfigFileUsed(); f != "" {
			logger.Debug("loaded config", "file", f)
		}

		telemetry.SetEnabled(config.GetBool("telemetry.enabled"))
		if err := telemetry.Init(rootCtx, "bugcrawl", Version); err != nil {
			logger.Warn("telemetry disabled", "error", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(ctx)
		if rootCancel != nil {
			rootCancel()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: .bugcrawl/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Only log warnings and errors")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Log in JSON even on a terminal")
}

func setupSignalContext() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
