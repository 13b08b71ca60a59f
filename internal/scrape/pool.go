// Package scrape runs the crawl phase: a fixed pool of workers drains a
// shared queue of issue IDs, fetching each issue, writing it through to
// the cache and collecting it in a ResultStore.
//
// A failed fetch is classified with tracker.Classify. Retryable failures
// go back to the tail of the queue; rate limits additionally suspend the
// worker for the cool-down interval; undecodable responses drop the issue
// for the run. Workers exit as soon as they observe an empty queue.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codeface/bugcrawl/internal/tracker"
	"github.com/codeface/bugcrawl/internal/types"
)

// DefaultCooldown is how long a worker rests after a 429.
const DefaultCooldown = 180 * time.Second

// Fetcher retrieves one complete issue.
type Fetcher interface {
	FetchIssue(ctx context.Context, id types.IssueID) (*types.RawIssue, error)
}

// Store persists fetched issues.
type Store interface {
	Put(key string, value interface{}) error
}

// Metrics receives scrape events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	Fetched(ctx context.Context, elapsed time.Duration)
	Retried(ctx context.Context, action tracker.Action)
	Dropped(ctx context.Context, reason string)
}

type nopMetrics struct{}

func (nopMetrics) Fetched(context.Context, time.Duration)  {}
func (nopMetrics) Retried(context.Context, tracker.Action) {}
func (nopMetrics) Dropped(context.Context, string)         {}

// Options configures a Pool.
type Options struct {
	// Workers is the number of concurrent fetchers. Values below 1 mean 1.
	Workers int

	// Cooldown is the rest after a rate-limited fetch. Zero means
	// DefaultCooldown; use a negative value to disable.
	Cooldown time.Duration

	// GlobalCooldown makes every worker wait out a cool-down triggered by
	// any of them, instead of only the worker that was rate limited.
	GlobalCooldown bool

	// MaxAttempts drops an issue after this many failed fetches.
	// Zero retries without bound.
	MaxAttempts int

	Logger  *slog.Logger
	Metrics Metrics
}

// Drop records an issue abandoned for the run.
type Drop struct {
	ID     types.IssueID
	Reason string
	Err    error
}

// Stats summarizes one Run.
type Stats struct {
	Scraped     int
	Requeued    int
	Cooldowns   int
	CacheErrors int
	Dropped     []Drop
}

// Pool is a bounded set of scrape workers.
type Pool struct {
	fetcher Fetcher
	store   Store
	opts    Options
	log     *slog.Logger
	metrics Metrics
}

// NewPool creates a pool fetching with f and writing through to store.
func NewPool(f Fetcher, store Store, opts Options) *Pool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Cooldown == 0 {
		opts.Cooldown = DefaultCooldown
	}
	p := &Pool{fetcher: f, store: store, opts: opts, log: opts.Logger, metrics: opts.Metrics}
	if p.log == nil {
		p.log = slog.New(slog.DiscardHandler)
	}
	if p.metrics == nil {
		p.metrics = nopMetrics{}
	}
	return p
}

// run holds the state shared by the workers of one Run.
type run struct {
	q       *Queue
	results *ResultStore
	gate    cooldownGate

	mu       sync.Mutex
	attempts map[types.IssueID]int
	stats    Stats
}

// Run starts the workers and blocks until all of them have exited. It
// returns early with the context's error once ctx is done; IDs not yet
// fetched stay in q.
func (p *Pool) Run(ctx context.Context, q *Queue, results *ResultStore) (*Stats, error) {
	r := &run{q: q, results: results, attempts: make(map[types.IssueID]int)}

	p.log.Info("scraping issues", "pending", q.Len(), "workers", p.opts.Workers)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < p.opts.Workers; w++ {
		worker := w
		g.Go(func() error {
			return p.work(gctx, worker, r)
		})
	}
	err := g.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	stats := r.stats
	p.log.Info("scrape finished", "scraped", stats.Scraped, "dropped", len(stats.Dropped), "requeued", stats.Requeued)
	return &stats, err
}

func (p *Pool) work(ctx context.Context, worker int, r *run) error {
	log := p.log.With("worker", worker)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, ok := r.q.TryPop()
		if !ok {
			log.Debug("queue empty, worker exiting")
			return nil
		}
		if p.opts.GlobalCooldown {
			if err := r.gate.wait(ctx); err != nil {
				r.q.Push(id)
				return err
			}
		}

		start := time.Now()
		issue, err := p.fetcher.FetchIssue(ctx, id)
		if err == nil {
			p.complete(ctx, log, r, id, issue, time.Since(start))
			continue
		}
		if ctx.Err() != nil {
			r.q.Push(id)
			return ctx.Err()
		}
		if err := p.fail(ctx, log, r, id, err); err != nil {
			return err
		}
	}
}

func (p *Pool) complete(ctx context.Context, log *slog.Logger, r *run, id types.IssueID, issue *types.RawIssue, elapsed time.Duration) {
	if issue.ID == "" {
		issue.ID = id
	}
	cacheErr := p.store.Put(id.String(), issue)
	if cacheErr != nil {
		log.Warn("failed to cache issue", "issue", id, "error", cacheErr)
	}
	r.results.Put(issue)
	p.metrics.Fetched(ctx, elapsed)

	r.mu.Lock()
	r.stats.Scraped++
	if cacheErr != nil {
		r.stats.CacheErrors++
	}
	r.mu.Unlock()
	log.Debug("scraped issue", "issue", id, "elapsed", elapsed)
}

// fail applies the retry policy to a failed fetch. It only returns an
// error when ctx ends during a cool-down.
func (p *Pool) fail(ctx context.Context, log *slog.Logger, r *run, id types.IssueID, fetchErr error) error {
	action := tracker.Classify(fetchErr)

	r.mu.Lock()
	r.attempts[id]++
	attempts := r.attempts[id]
	r.mu.Unlock()

	if action != tracker.ActionDrop && p.opts.MaxAttempts > 0 && attempts >= p.opts.MaxAttempts {
		p.drop(ctx, log, r, id, fmt.Sprintf("gave up after %d attempts", attempts), fetchErr)
		return nil
	}

	switch action {
	case tracker.ActionDrop:
		p.drop(ctx, log, r, id, dropReason(fetchErr), fetchErr)
		return nil
	case tracker.ActionCooldown:
		p.metrics.Retried(ctx, action)
		r.mu.Lock()
		r.stats.Requeued++
		r.stats.Cooldowns++
		r.mu.Unlock()
		if p.opts.Cooldown < 0 {
			r.q.Push(id)
			return nil
		}
		log.Info("rate limited, backing off", "issue", id, "cooldown", p.opts.Cooldown)
		if p.opts.GlobalCooldown {
			// The gate closes before the ID becomes visible again.
			r.gate.extend(p.opts.Cooldown)
			r.q.Push(id)
			return nil
		}
		r.q.Push(id)
		return sleep(ctx, p.opts.Cooldown)
	default:
		r.q.Push(id)
		p.metrics.Retried(ctx, action)
		r.mu.Lock()
		r.stats.Requeued++
		r.mu.Unlock()
		log.Debug("requeued issue", "issue", id, "attempt", attempts, "error", fetchErr)
		return nil
	}
}

func (p *Pool) drop(ctx context.Context, log *slog.Logger, r *run, id types.IssueID, reason string, err error) {
	log.Error("dropping issue for this run", "issue", id, "reason", reason, "error", err)
	p.metrics.Dropped(ctx, reason)
	r.mu.Lock()
	r.stats.Dropped = append(r.stats.Dropped, Drop{ID: id, Reason: reason, Err: err})
	r.mu.Unlock()
}

func dropReason(err error) string {
	var m *tracker.MalformedError
	if errors.As(err, &m) {
		return fmt.Sprintf("malformed %s response", m.Part)
	}
	return "unrecoverable fetch error"
}

// cooldownGate is the shared rest period used with Options.GlobalCooldown.
type cooldownGate struct {
	mu    sync.Mutex
	until time.Time
}

func (g *cooldownGate) extend(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t := time.Now().Add(d); t.After(g.until) {
		g.until = t
	}
}

func (g *cooldownGate) wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		remaining := time.Until(g.until)
		g.mu.Unlock()
		if remaining <= 0 {
			return nil
		}
		if err := sleep(ctx, remaining); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
