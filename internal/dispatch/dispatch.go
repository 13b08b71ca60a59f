// Package dispatch runs one crawl: it selects the tracker, discovers issue
// IDs, scrapes them through the worker pool and ingests the results.
//
// A run moves through a fixed sequence of phases:
//
//	Init -> Discover -> Filter -> Scrape -> LoadCache -> Pass1 -> Pass2 -> Done
//
// Filter runs only when resuming, Scrape is skipped for parse-only runs,
// LoadCache only runs for parse-only runs, and both parse passes are
// skipped for scrape-only runs.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/codeface/bugcrawl/internal/cache"
	"github.com/codeface/bugcrawl/internal/identity"
	"github.com/codeface/bugcrawl/internal/ingest"
	"github.com/codeface/bugcrawl/internal/scrape"
	"github.com/codeface/bugcrawl/internal/storage"
	"github.com/codeface/bugcrawl/internal/telemetry"
	"github.com/codeface/bugcrawl/internal/tracker"
	"github.com/codeface/bugcrawl/internal/types"
)

const tracerName = "github.com/codeface/bugcrawl/dispatch"

// Phase is a state of a run.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseDiscover
	PhaseFilter
	PhaseScrape
	PhaseLoadCache
	PhasePass1
	PhasePass2
	PhaseDone
)

var phaseNames = [...]string{"init", "discover", "filter", "scrape", "load-cache", "pass1", "pass2", "done"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Options selects what a run does.
type Options struct {
	// Tracker is the registered tracker type (e.g. "bugzilla").
	Tracker string

	// Project is the analysis project name issues are filed under.
	// Defaults to Config.Project.
	Project string

	Config tracker.Config

	ScrapeOnly bool
	ParseOnly  bool

	// Resume skips IDs already present in the cache.
	Resume bool

	// Rediscover forces network discovery even when a cached ID list
	// exists.
	Rediscover bool

	ProductAsProject bool

	Scrape scrape.Options

	// NewResolver builds the identity resolver for a project. The default
	// resolves against the sink's person table.
	NewResolver func(projectID int64) identity.Resolver

	Logger *slog.Logger
}

// Validate checks for conflicting modes.
func (o Options) Validate() error {
	var errs []error
	if o.Tracker == "" {
		errs = append(errs, errors.New("tracker type is required"))
	}
	if o.ScrapeOnly && o.ParseOnly {
		errs = append(errs, errors.New("scrape-only and parse-only are mutually exclusive"))
	}
	return errors.Join(errs...)
}

func (o Options) parses() bool { return !o.ScrapeOnly }

func (o Options) project() string {
	if o.Project != "" {
		return o.Project
	}
	return o.Config.Project
}

// RunResult summarizes a run.
type RunResult struct {
	Tracker   string
	Project   string
	ProjectID int64

	// Phases lists the phases the run entered, in order.
	Phases []Phase

	Discovered   int
	FromCache    bool // the ID list was read from the cache
	Cached       int  // already cached, not scraped again
	Loaded       int  // restored from the cache into the result set
	CacheMissing int
	CacheCorrupt int

	Scrape *scrape.Stats
	Parse  *ingest.Stats

	Duration time.Duration
}

// Dispatcher owns the collaborators of a run. The sink may be nil for
// scrape-only runs.
type Dispatcher struct {
	registry *tracker.Registry
	cache    *cache.Cache
	sink     storage.Sink
	tracer   trace.Tracer
}

// New returns a dispatcher.
func New(registry *tracker.Registry, c *cache.Cache, sink storage.Sink) *Dispatcher {
	return &Dispatcher{registry: registry, cache: c, sink: sink, tracer: telemetry.Tracer(tracerName)}
}

// run is the state of one Run call.
type run struct {
	opts    Options
	log     *slog.Logger
	tracker tracker.IssueTracker
	result  *RunResult

	candidates []types.IssueID
	queue      *scrape.Queue
	results    *scrape.ResultStore
	parser     *ingest.Parser
}

// Run executes one crawl. It fails before any network traffic when the
// tracker type is not registered. Per-issue failures are logged and
// counted in the result; only setup, discovery, sink and cancellation
// errors are returned.
func (d *Dispatcher) Run(ctx context.Context, opts Options) (*RunResult, error) {
	start := time.Now()
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	r := &run{
		opts:    opts,
		log:     log.With("tracker", opts.Tracker),
		result:  &RunResult{Tracker: opts.Tracker, Project: opts.project()},
		results: scrape.NewResultStore(),
	}

	ctx, span := d.tracer.Start(ctx, "crawl.run", trace.WithAttributes(
		attribute.String("crawl.tracker", opts.Tracker),
		attribute.String("crawl.project", r.result.Project),
	))
	defer span.End()

	if err := opts.Validate(); err != nil {
		return r.result, fmt.Errorf("invalid run options: %w", err)
	}
	if r.opts.Scrape.Logger == nil {
		r.opts.Scrape.Logger = r.log
	}

	phase := PhaseInit
	for phase != PhaseDone {
		r.result.Phases = append(r.result.Phases, phase)
		r.log.Debug("entering phase", "phase", phase)
		next, err := d.step(ctx, r, phase)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.result.Duration = time.Since(start)
			return r.result, fmt.Errorf("%s: %w", phase, err)
		}
		phase = next
	}
	r.result.Phases = append(r.result.Phases, PhaseDone)
	r.result.Duration = time.Since(start)
	r.log.Info("run complete", "duration", r.result.Duration.Round(time.Millisecond))
	return r.result, nil
}

// step runs phase and returns the next one.
func (d *Dispatcher) step(ctx context.Context, r *run, phase Phase) (Phase, error) {
	ctx, span := d.tracer.Start(ctx, "crawl."+phase.String())
	defer span.End()

	switch phase {
	case PhaseInit:
		return PhaseDiscover, d.init(ctx, r)
	case PhaseDiscover:
		if err := d.discover(ctx, r); err != nil {
			return PhaseDone, err
		}
		switch {
		case r.opts.Resume && !r.opts.ParseOnly:
			return PhaseFilter, nil
		case r.opts.ParseOnly:
			return PhaseLoadCache, nil
		default:
			r.queue = scrape.NewQueue(r.candidates...)
			return PhaseScrape, nil
		}
	case PhaseFilter:
		return PhaseScrape, d.filter(r)
	case PhaseScrape:
		if err := d.scrape(ctx, r); err != nil {
			return PhaseDone, err
		}
		if !r.opts.parses() {
			return PhaseDone, nil
		}
		return PhasePass1, nil
	case PhaseLoadCache:
		d.loadFromCache(r, r.candidates)
		return PhasePass1, nil
	case PhasePass1:
		err := r.parser.Pass1(ctx, r.results.Issues())
		r.result.Parse = r.parser.Stats()
		return PhasePass2, err
	case PhasePass2:
		err := r.parser.Pass2(ctx, r.results.Issues())
		r.result.Parse = r.parser.Stats()
		return PhaseDone, err
	default:
		return PhaseDone, fmt.Errorf("unknown phase %d", int(phase))
	}
}

func (d *Dispatcher) init(ctx context.Context, r *run) error {
	t, err := d.registry.NewTracker(r.opts.Tracker)
	if err != nil {
		return err
	}
	if err := t.Init(ctx, r.opts.Config); err != nil {
		return fmt.Errorf("init %s: %w", t.DisplayName(), err)
	}
	r.tracker = t

	if !r.opts.parses() {
		return nil
	}
	if d.sink == nil {
		return errors.New("no sink configured")
	}
	if r.result.Project == "" {
		return errors.New("project name is required to ingest")
	}
	projectID, err := d.sink.GetOrCreateProjectID(ctx, r.result.Project, storage.AnalysisMethod)
	if err != nil {
		return fmt.Errorf("register project %q: %w", r.result.Project, err)
	}
	r.result.ProjectID = projectID

	newResolver := r.opts.NewResolver
	if newResolver == nil {
		newResolver = func(id int64) identity.Resolver {
			return identity.NewCached(identity.NewStoreResolver(d.sink, id))
		}
	}
	r.parser = ingest.NewParser(d.sink, newResolver(projectID), ingest.Options{
		ProjectID:        projectID,
		ProductAsProject: r.opts.ProductAsProject,
		Logger:           r.log,
	})
	return nil
}

// discover fills r.candidates, reusing the cached ID list for resume and
// parse-only runs unless rediscovery is requested.
func (d *Dispatcher) discover(ctx context.Context, r *run) error {
	if (r.opts.Resume || r.opts.ParseOnly) && !r.opts.Rediscover {
		var ids []types.IssueID
		err := d.cache.Get(cache.DiscoveredIDsKey, &ids)
		switch {
		case err == nil:
			r.candidates = scrape.Dedupe(ids)
			r.result.Discovered = len(r.candidates)
			r.result.FromCache = true
			r.log.Info("using cached issue list", "issues", len(r.candidates))
			return nil
		case errors.Is(err, cache.ErrNotFound):
			r.log.Info("no cached issue list, discovering")
		default:
			r.log.Warn("cached issue list unreadable, discovering", "error", err)
		}
	}

	r.log.Info("discovering issues", "tracker", r.tracker.DisplayName(), "project", r.opts.Config.Project)
	var ids []types.IssueID
	for id, err := range r.tracker.DiscoverIDs(ctx) {
		if err != nil {
			return fmt.Errorf("discover issues: %w", err)
		}
		ids = append(ids, id)
	}
	r.candidates = scrape.Dedupe(ids)
	r.result.Discovered = len(r.candidates)
	if err := d.cache.Put(cache.DiscoveredIDsKey, r.candidates); err != nil {
		return fmt.Errorf("persist issue list: %w", err)
	}
	r.log.Info("discovery finished", "issues", len(r.candidates))
	return nil
}

// filter enqueues only uncached IDs. When the run also parses, cached
// issues are restored so the ingested set stays complete.
func (d *Dispatcher) filter(r *run) error {
	pending, cached := scrape.FilterCached(r.candidates, d.cache)
	r.result.Cached = len(cached)
	r.queue = scrape.NewQueue(pending...)
	r.log.Info("resuming", "pending", len(pending), "cached", len(cached))
	if r.opts.parses() {
		d.loadFromCache(r, cached)
	}
	return nil
}

func (d *Dispatcher) scrape(ctx context.Context, r *run) error {
	unlock, err := d.cache.Lock()
	if err != nil {
		return err
	}
	defer func() {
		if err := unlock(); err != nil {
			r.log.Warn("failed to release cache lock", "error", err)
		}
	}()

	pool := scrape.NewPool(r.tracker, d.cache, r.opts.Scrape)
	stats, err := pool.Run(ctx, r.queue, r.results)
	r.result.Scrape = stats
	return err
}

// loadFromCache restores ids into the result set. Missing entries were
// never scraped and are skipped silently; corrupt ones are logged.
func (d *Dispatcher) loadFromCache(r *run, ids []types.IssueID) {
	for _, id := range ids {
		var issue types.RawIssue
		err := d.cache.Get(id.String(), &issue)
		switch {
		case err == nil:
			if issue.ID == "" {
				issue.ID = id
			}
			r.results.Put(&issue)
			r.result.Loaded++
		case errors.Is(err, cache.ErrNotFound):
			r.result.CacheMissing++
		default:
			r.result.CacheCorrupt++
			r.log.Error("skipping unreadable cache entry", "issue", id, "error", err)
		}
	}
	r.log.Info("loaded issues from cache", "loaded", r.result.Loaded,
		"missing", r.result.CacheMissing, "corrupt", r.result.CacheCorrupt)
}

// Discard deletes every issue-tracker row stored for project. The cache is
// not touched.
func Discard(ctx context.Context, sink storage.Sink, project string) (int64, error) {
	if project == "" {
		return 0, errors.New("project name is required")
	}
	projectID, err := sink.GetOrCreateProjectID(ctx, project, storage.AnalysisMethod)
	if err != nil {
		return 0, fmt.Errorf("look up project %q: %w", project, err)
	}
	if err := sink.ResetTrackerData(ctx, projectID); err != nil {
		return projectID, fmt.Errorf("discard tracker data: %w", err)
	}
	return projectID, nil
}
