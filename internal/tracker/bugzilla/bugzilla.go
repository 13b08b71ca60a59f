package bugzilla

import (
	"context"
	"fmt"
	"iter"
	"strconv"

	"github.com/codeface/bugcrawl/internal/tracker"
	"github.com/codeface/bugcrawl/internal/types"
)

// Name is the configuration value selecting this tracker.
const Name = "bugzilla"

// Register adds the Bugzilla tracker to r.
func Register(r *tracker.Registry) {
	r.Register(Name, func() tracker.IssueTracker {
		return &Tracker{}
	})
}

// Tracker implements tracker.IssueTracker for Bugzilla 5.x REST.
type Tracker struct {
	client *Client
	config tracker.Config
}

// Name returns the tracker identifier.
func (t *Tracker) Name() string {
	return Name
}

// DisplayName returns the human-readable tracker name.
func (t *Tracker) DisplayName() string {
	return "Bugzilla"
}

// Init validates cfg and creates the REST client.
func (t *Tracker) Init(ctx context.Context, cfg tracker.Config) error {
	cfg.ApplyEnv(Name)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("bugzilla: %w", err)
	}
	t.config = cfg.WithDefaults()
	t.client = NewClient(t.config)
	return nil
}

// DiscoverIDs pages through rest/bug for the configured product.
func (t *Tracker) DiscoverIDs(ctx context.Context) iter.Seq2[types.IssueID, error] {
	if t.client == nil {
		return func(yield func(types.IssueID, error) bool) {
			yield("", &tracker.ErrNotInitialized{Tracker: Name})
		}
	}
	return tracker.Paginate(ctx, t.config.PageSize, t.config.DiscoveryBackOff,
		func(ctx context.Context, offset, limit int) ([]types.IssueID, error) {
			return t.client.ListIDs(ctx, t.config.Project, offset, limit)
		})
}

// FetchIssue fetches the bug body, its history and its comments in that
// order. The first failing sub-request aborts the fetch.
func (t *Tracker) FetchIssue(ctx context.Context, id types.IssueID) (*types.RawIssue, error) {
	if t.client == nil {
		return nil, &tracker.ErrNotInitialized{Tracker: Name}
	}
	n, err := strconv.Atoi(id.String())
	if err != nil {
		return nil, fmt.Errorf("bugzilla: invalid bug id %q: %w", id, err)
	}

	bug, err := t.client.GetBug(ctx, n)
	if err != nil {
		return nil, err
	}
	history, err := t.client.GetHistory(ctx, n)
	if err != nil {
		return nil, err
	}
	comments, err := t.client.GetComments(ctx, n)
	if err != nil {
		return nil, err
	}
	return toRawIssue(bug, history, comments), nil
}

func toRawIssue(bug *Bug, history []HistoryEntry, comments []Comment) *types.RawIssue {
	raw := &types.RawIssue{
		ID:             types.IssueIDFromInt(bug.ID),
		Summary:        bug.Summary,
		CreationTime:   bug.CreationTime,
		LastChangeTime: bug.LastChangeTime,
		URL:            bug.URL,
		Resolution:     bug.Resolution,
		Severity:       bug.Severity,
		Priority:       bug.Priority,
		Status:         bug.Status,
		Product:        bug.Product,
		Component:      bug.Component,
		Creator:        toPerson(bug.CreatorDetail),
		AssignedTo:     toPerson(bug.AssignedToDetail),
	}
	for _, u := range bug.CCDetail {
		raw.CC = append(raw.CC, toPerson(u))
	}
	for _, d := range bug.DependsOn {
		raw.DependsOn = append(raw.DependsOn, types.IssueIDFromInt(d))
	}
	if bug.DupeOf != nil {
		dupe := types.IssueIDFromInt(*bug.DupeOf)
		raw.DupeOf = &dupe
	}
	for _, h := range history {
		ev := types.HistoryEvent{When: h.When, Who: h.Who}
		for _, c := range h.Changes {
			ev.Changes = append(ev.Changes, types.FieldChange(c))
		}
		raw.History = append(raw.History, ev)
	}
	for _, c := range comments {
		raw.Comments = append(raw.Comments, types.Comment{
			Author:       c.Author,
			CreationTime: c.CreationTime,
			Text:         c.Text,
		})
	}
	return raw
}

func toPerson(u User) types.Person {
	return types.Person{Email: u.Email, RealName: u.RealName, Name: u.Name}
}
