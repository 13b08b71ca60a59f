package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codeface/bugcrawl/internal/cache"
	"github.com/codeface/bugcrawl/internal/config"
	"github.com/codeface/bugcrawl/internal/debug"
	"github.com/codeface/bugcrawl/internal/dispatch"
	"github.com/codeface/bugcrawl/internal/identity"
	"github.com/codeface/bugcrawl/internal/scrape"
	"github.com/codeface/bugcrawl/internal/storage"
	"github.com/codeface/bugcrawl/internal/storage/factory"
	"github.com/codeface/bugcrawl/internal/telemetry"
)

type runFlags struct {
	project        string
	scrapeOnly     bool
	parseOnly      bool
	resume         bool
	rediscover     bool
	globalCooldown bool
}

var runOpts runFlags

// runConfigFlags maps config keys to the run flags that override them.
var runConfigFlags = map[string]string{
	"jobs":               "jobs",
	"cache-dir":          "cache-dir",
	"sink":               "sink",
	"cooldown":           "cooldown",
	"max-attempts":       "max-attempts",
	"product-as-project": "product-as-project",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Crawl a project and load it into the analysis database",
	Long: `Discovers every issue of the project, fetches each one with its history
and comments through a pool of workers, caches the responses and ingests
them into the configured sink.

  bugcrawl run --project firefox.yaml -j 8
  bugcrawl run --project firefox.yaml --resume
  bugcrawl run --project firefox.yaml --parse-only --sink mysql`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		for key, name := range runConfigFlags {
			if err := config.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
				return err
			}
		}
		if runOpts.globalCooldown {
			config.Set("cooldown-scope", config.CooldownScopeGlobal)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCrawl(rootCtx, cmd.OutOrStdout(), runOpts)
	},
}

func runCrawl(ctx context.Context, w io.Writer, f runFlags) error {
	if err := config.Validate(); err != nil {
		return err
	}
	project, err := config.LoadProject(f.project)
	if err != nil {
		return err
	}
	c, err := cache.New(config.GetString("cache-dir"))
	if err != nil {
		return err
	}

	var sink storage.Sink
	if !f.scrapeOnly {
		sink, err = openSink(ctx)
		if err != nil {
			return fmt.Errorf("open sink: %w", err)
		}
		defer func() {
			if err := sink.Close(); err != nil {
				logger.Warn("failed to close sink", "error", err)
			}
		}()
	}

	opts := dispatch.Options{
		Tracker:          project.Tracker,
		Project:          project.Name,
		Config:           project.TrackerConfig(),
		ScrapeOnly:       f.scrapeOnly,
		ParseOnly:        f.parseOnly,
		Resume:           f.resume,
		Rediscover:       f.rediscover,
		ProductAsProject: config.GetBool("product-as-project"),
		Scrape: scrape.Options{
			Workers:        config.GetInt("jobs"),
			Cooldown:       config.GetDuration("cooldown"),
			GlobalCooldown: config.GetString("cooldown-scope") == config.CooldownScopeGlobal,
			MaxAttempts:    config.GetInt("max-attempts"),
			Logger:         logger,
			Metrics:        telemetry.NewScrapeMetrics(),
		},
		NewResolver: newResolverFactory(),
		Logger:      logger,
	}
	logger.Debug("starting run", "project", project.Name, "tracker", project.Tracker,
		"sink", config.GetString("sink"), "sink_source", config.GetValueSource("sink"),
		"jobs", opts.Scrape.Workers, "cache", c.Dir())

	res, err := dispatch.New(newRegistry(), c, sink).Run(ctx, opts)
	if res != nil && !debug.IsQuiet() {
		printSummary(w, res)
	}
	return err
}

func openSink(ctx context.Context) (storage.Sink, error) {
	sink, err := factory.Open(ctx, factory.Options{
		Kind:           config.GetString("sink"),
		SQLitePath:     config.GetString("sqlite.path"),
		MySQLDSN:       config.GetString("mysql.dsn"),
		ConnectTimeout: config.GetDuration("mysql.connect-timeout"),
	})
	if err != nil {
		return nil, err
	}
	return telemetry.WrapSink(sink), nil
}

// newResolverFactory returns nil for the default store-backed resolver.
func newResolverFactory() func(int64) identity.Resolver {
	if config.GetString("identity.mode") != config.IdentityHTTP {
		return nil
	}
	url := config.GetString("identity.url")
	client := &http.Client{Timeout: config.GetDuration("http-timeout")}
	return func(projectID int64) identity.Resolver {
		return identity.NewCached(identity.NewHTTPResolver(url, projectID, client))
	}
}

func printSummary(w io.Writer, res *dispatch.RunResult) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	done := len(res.Phases) > 0 && res.Phases[len(res.Phases)-1] == dispatch.PhaseDone
	mark := green("✓")
	if !done {
		mark = yellow("!")
	}
	fmt.Fprintf(w, "%s %s %s (%s)\n", mark, bold("Crawl of"), res.Project, res.Tracker)

	source := "tracker"
	if res.FromCache {
		source = "cache"
	}
	fmt.Fprintf(w, "  Discovered:   %d (from %s)\n", res.Discovered, source)
	if res.Cached > 0 {
		fmt.Fprintf(w, "  Already cached: %d\n", res.Cached)
	}
	if res.Loaded > 0 || res.CacheMissing > 0 || res.CacheCorrupt > 0 {
		fmt.Fprintf(w, "  From cache:   %d loaded, %d missing, %d corrupt\n", res.Loaded, res.CacheMissing, res.CacheCorrupt)
	}
	if s := res.Scrape; s != nil {
		fmt.Fprintf(w, "  Scraped:      %d (%d requeued, %d cool-downs)\n", s.Scraped, s.Requeued, s.Cooldowns)
		if s.CacheErrors > 0 {
			fmt.Fprintf(w, "  %s %d issues could not be cached\n", yellow("Warning:"), s.CacheErrors)
		}
		if len(s.Dropped) > 0 {
			fmt.Fprintf(w, "  %s %d issues dropped:\n", yellow("Dropped:"), len(s.Dropped))
			for _, d := range s.Dropped {
				fmt.Fprintf(w, "    %s: %s\n", d.ID, d.Reason)
			}
		}
	}
	if p := res.Parse; p != nil {
		fmt.Fprintf(w, "  Ingested:     %d issues (%d skipped), %d history, %d comments, %d cc\n",
			p.Issues, p.SkippedIssues, p.HistoryRows, p.CommentRows, p.CCRows)
		fmt.Fprintf(w, "  Relations:    %d dependencies, %d duplicates, %d out of scope\n",
			p.DependencyEdges, p.DuplicateEdges, p.SkippedEdges)
		if p.RowFailures > 0 {
			fmt.Fprintf(w, "  %s %d row batches failed to insert\n", yellow("Warning:"), p.RowFailures)
		}
	}
	fmt.Fprintf(w, "  Duration:     %s\n", res.Duration.Round(time.Millisecond))
}

func init() {
	runCmd.Flags().StringVarP(&runOpts.project, "project", "p", "", "Project file (YAML or TOML)")
	runCmd.Flags().IntP("jobs", "j", 4, "Number of concurrent scrape workers")
	runCmd.Flags().String("cache-dir", "./cache", "Cache directory")
	runCmd.Flags().String("sink", "sqlite", "Sink to ingest into (sqlite, mysql, memory)")
	runCmd.Flags().Duration("cooldown", scrape.DefaultCooldown, "Rest after a rate-limited request (negative disables)")
	runCmd.Flags().Int("max-attempts", 0, "Drop an issue after this many failed fetches (0 = unbounded)")
	runCmd.Flags().Bool("product-as-project", false, "Record the component as the issue scope")
	runCmd.Flags().BoolVar(&runOpts.scrapeOnly, "scrape-only", false, "Fetch into the cache without ingesting")
	runCmd.Flags().BoolVar(&runOpts.parseOnly, "parse-only", false, "Ingest a previous run's cache without fetching")
	runCmd.Flags().BoolVar(&runOpts.resume, "resume", false, "Skip issues that are already cached")
	runCmd.Flags().BoolVar(&runOpts.rediscover, "rediscover", false, "Query the tracker for the issue list even when it is cached")
	runCmd.Flags().BoolVar(&runOpts.globalCooldown, "global-cooldown", false, "Pause every worker when any of them is rate limited")
	runCmd.MarkFlagsMutuallyExclusive("scrape-only", "parse-only")
	_ = runCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(runCmd)
}
