// Package ingest loads fetched issues into a sink in two passes.
//
// Pass 1 inserts every issue with its history, comments and CC list and
// records the internal ID the sink assigned to it. Pass 2 then resolves
// dependency and duplicate references through that map, dropping
// references to issues that were not ingested. Pass 2 must only run once
// Pass 1 has seen every issue.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/codeface/bugcrawl/internal/identity"
	"github.com/codeface/bugcrawl/internal/types"
)

// Sink is the part of storage.Sink the parser writes to.
type Sink interface {
	InsertIssue(ctx context.Context, row types.IssueRow) (types.InternalID, error)
	InsertHistoryEvents(ctx context.Context, rows []types.HistoryRow) error
	InsertComments(ctx context.Context, rows []types.CommentRow) error
	InsertCCList(ctx context.Context, rows []types.CCRow) error
	InsertEdges(ctx context.Context, kind types.EdgeKind, edges []types.Edge) error
}

// IDMap maps tracker IDs to the internal IDs of ingested issues.
type IDMap map[types.IssueID]types.InternalID

// Options configures a Parser.
type Options struct {
	// ProjectID is stamped on every issue row.
	ProjectID int64

	// ProductAsProject records the component as the issue's scope and
	// leaves the second scope field empty. Otherwise the scope is
	// (product, component).
	ProductAsProject bool

	Logger *slog.Logger
}

// Stats counts what the parser wrote and skipped.
type Stats struct {
	Issues        int
	SkippedIssues int
	HistoryRows   int
	CommentRows   int
	CCRows        int
	SkippedPeople int
	RowFailures   int

	DependencyEdges int
	DuplicateEdges  int
	SkippedEdges    int
}

// Parser ingests issues for one project. It is not safe for concurrent use.
type Parser struct {
	sink     Sink
	resolver identity.Resolver
	opts     Options
	log      *slog.Logger

	ids   IDMap
	stats Stats
}

// NewParser returns a parser writing to sink and resolving persons through
// resolver.
func NewParser(sink Sink, resolver identity.Resolver, opts Options) *Parser {
	p := &Parser{sink: sink, resolver: resolver, opts: opts, log: opts.Logger, ids: make(IDMap)}
	if p.log == nil {
		p.log = slog.New(slog.DiscardHandler)
	}
	return p
}

// Run executes Pass1 then Pass2 over issues.
func (p *Parser) Run(ctx context.Context, issues []*types.RawIssue) (*Stats, error) {
	if err := p.Pass1(ctx, issues); err != nil {
		return p.Stats(), err
	}
	if err := p.Pass2(ctx, issues); err != nil {
		return p.Stats(), err
	}
	return p.Stats(), nil
}

// IDMap returns a copy of the tracker-to-internal ID map built by Pass1.
func (p *Parser) IDMap() IDMap {
	out := make(IDMap, len(p.ids))
	for k, v := range p.ids {
		out[k] = v
	}
	return out
}

// Stats returns a snapshot of the counters.
func (p *Parser) Stats() *Stats {
	s := p.stats
	return &s
}

// Pass1 inserts issues and their per-issue rows. A failure confined to one
// issue is logged and skipped; only context cancellation is returned.
func (p *Parser) Pass1(ctx context.Context, issues []*types.RawIssue) error {
	p.log.Info("parsing issues", "issues", len(issues))
	for _, issue := range issues {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.ingestIssue(ctx, issue); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.stats.SkippedIssues++
			p.log.Error("skipping issue", "issue", issue.ID, "error", err)
		}
	}
	p.log.Info("issues parsed", "inserted", p.stats.Issues, "skipped", p.stats.SkippedIssues)
	return nil
}

func (p *Parser) ingestIssue(ctx context.Context, issue *types.RawIssue) error {
	if _, dup := p.ids[issue.ID]; dup {
		return fmt.Errorf("issue already ingested")
	}
	creator, err := p.person(ctx, identity.Descriptor(issue.Creator), issue.Creator.Email)
	if err != nil {
		return fmt.Errorf("resolve creator: %w", err)
	}
	assignee, err := p.person(ctx, identity.Descriptor(issue.AssignedTo), issue.AssignedTo.Email)
	if err != nil {
		return fmt.Errorf("resolve assignee: %w", err)
	}

	row := types.IssueRow{
		BugID:        issue.ID,
		ProjectID:    p.opts.ProjectID,
		CreationDate: issue.CreationTime,
		ModifiedDate: issue.LastChangeTime,
		URL:          issue.URL,
		Resolution:   issue.Resolution,
		Severity:     issue.Severity,
		Priority:     issue.Priority,
		Status:       issue.Status,
		CreatedBy:    creator,
		AssignedTo:   assignee,
	}
	if p.opts.ProductAsProject {
		row.SubComponent = issue.Component
	} else {
		component := issue.Component
		row.SubComponent = issue.Product
		row.SubSubComponent = &component
	}

	internal, err := p.sink.InsertIssue(ctx, row)
	if err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}
	p.ids[issue.ID] = internal
	p.stats.Issues++

	// Past this point the issue row stands; row failures are logged only.
	log := p.log.With("issue", issue.ID)
	if history := p.historyRows(ctx, log, internal, issue.History); len(history) > 0 {
		if err := p.sink.InsertHistoryEvents(ctx, history); err != nil {
			p.rowFailure(log, "history", len(history), err)
		} else {
			p.stats.HistoryRows += len(history)
		}
	}
	if comments := p.commentRows(ctx, log, internal, issue.Comments); len(comments) > 0 {
		if err := p.sink.InsertComments(ctx, comments); err != nil {
			p.rowFailure(log, "comments", len(comments), err)
		} else {
			p.stats.CommentRows += len(comments)
		}
	}
	if cc := p.ccRows(ctx, log, internal, issue.CC); len(cc) > 0 {
		if err := p.sink.InsertCCList(ctx, cc); err != nil {
			p.rowFailure(log, "cc list", len(cc), err)
		} else {
			p.stats.CCRows += len(cc)
		}
	}
	return ctx.Err()
}

// person resolves a descriptor. An empty email is an unknown or absent
// person and maps to the zero ID without consulting the resolver.
func (p *Parser) person(ctx context.Context, descriptor, email string) (types.PersonID, error) {
	if email == "" {
		return 0, nil
	}
	return p.resolver.ResolvePerson(ctx, descriptor)
}

func (p *Parser) historyRows(ctx context.Context, log *slog.Logger, issue types.InternalID, events []types.HistoryEvent) []types.HistoryRow {
	var rows []types.HistoryRow
	for _, ev := range events {
		who, err := p.person(ctx, identity.EmailDescriptor(ev.Who), ev.Who)
		if err != nil {
			p.stats.SkippedPeople++
			log.Warn("skipping history event", "who", ev.Who, "error", err)
			continue
		}
		for _, ch := range ev.Changes {
			rows = append(rows, types.HistoryRow{
				IssueID:    issue,
				ChangeDate: ev.When,
				Field:      ch.FieldName,
				OldValue:   ch.Removed,
				NewValue:   ch.Added,
				Who:        who,
			})
		}
	}
	return rows
}

func (p *Parser) commentRows(ctx context.Context, log *slog.Logger, issue types.InternalID, comments []types.Comment) []types.CommentRow {
	rows := make([]types.CommentRow, 0, len(comments))
	for _, c := range comments {
		who, err := p.person(ctx, identity.EmailDescriptor(c.Author), c.Author)
		if err != nil {
			p.stats.SkippedPeople++
			log.Warn("skipping comment", "author", c.Author, "error", err)
			continue
		}
		rows = append(rows, types.CommentRow{IssueID: issue, Who: who, CommentDate: c.CreationTime})
	}
	return rows
}

func (p *Parser) ccRows(ctx context.Context, log *slog.Logger, issue types.InternalID, cc []types.Person) []types.CCRow {
	rows := make([]types.CCRow, 0, len(cc))
	for _, person := range cc {
		if person.Email == "" {
			continue
		}
		who, err := p.resolver.ResolvePerson(ctx, identity.Descriptor(person))
		if err != nil {
			p.stats.SkippedPeople++
			log.Warn("skipping cc entry", "email", person.Email, "error", err)
			continue
		}
		rows = append(rows, types.CCRow{IssueID: issue, Who: who})
	}
	return rows
}

func (p *Parser) rowFailure(log *slog.Logger, what string, n int, err error) {
	p.stats.RowFailures++
	log.Warn("failed to insert rows", "rows", what, "count", n, "error", err)
}

// Pass2 emits dependency and duplicate edges between ingested issues. An
// edge whose endpoint was not ingested is skipped. Each edge kind is
// written as one batch.
func (p *Parser) Pass2(ctx context.Context, issues []*types.RawIssue) error {
	var deps, dupes []types.Edge
	for _, issue := range issues {
		self, ok := p.ids[issue.ID]
		if !ok {
			p.stats.SkippedEdges += len(issue.DependsOn)
			if issue.DupeOf != nil {
				p.stats.SkippedEdges++
			}
			continue
		}
		for _, ref := range issue.DependsOn {
			if other, ok := p.ids[ref]; ok {
				deps = append(deps, types.Edge{From: self, To: other})
			} else {
				p.stats.SkippedEdges++
			}
		}
		if issue.DupeOf != nil {
			if other, ok := p.ids[*issue.DupeOf]; ok {
				dupes = append(dupes, types.Edge{From: self, To: other})
			} else {
				p.stats.SkippedEdges++
			}
		}
	}

	var errs []error
	if len(deps) > 0 {
		if err := p.sink.InsertEdges(ctx, types.EdgeDependency, deps); err != nil {
			errs = append(errs, fmt.Errorf("insert dependency edges: %w", err))
		} else {
			p.stats.DependencyEdges += len(deps)
		}
	}
	if len(dupes) > 0 {
		if err := p.sink.InsertEdges(ctx, types.EdgeDuplicate, dupes); err != nil {
			errs = append(errs, fmt.Errorf("insert duplicate edges: %w", err))
		} else {
			p.stats.DuplicateEdges += len(dupes)
		}
	}
	p.log.Info("relations resolved", "dependencies", p.stats.DependencyEdges,
		"duplicates", p.stats.DuplicateEdges, "skipped", p.stats.SkippedEdges)
	return errors.Join(errs...)
}
