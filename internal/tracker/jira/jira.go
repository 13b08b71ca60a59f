package jira

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"

	"github.com/codeface/bugcrawl/internal/tracker"
	"github.com/codeface/bugcrawl/internal/types"
)

// Name is the configuration value selecting this tracker.
const Name = "jira"

// Register adds the Jira tracker to r.
func Register(r *tracker.Registry) {
	r.Register(Name, func() tracker.IssueTracker {
		return &JiraTracker{}
	})
}

// JiraTracker implements the tracker.IssueTracker interface for Jira.
type JiraTracker struct {
	client *Client
	config tracker.Config
}

// Name returns the tracker identifier.
func (t *JiraTracker) Name() string {
	return Name
}

// DisplayName returns the human-readable tracker name.
func (t *JiraTracker) DisplayName() string {
	return "Jira"
}

// Init initializes the tracker with configuration. Project is the Jira
// project key.
func (t *JiraTracker) Init(ctx context.Context, cfg tracker.Config) error {
	cfg.ApplyEnv(Name)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("jira: %w", err)
	}
	cfg = cfg.WithDefaults()
	if cfg.PageSize > MaxPageSize {
		cfg.PageSize = MaxPageSize
	}
	t.config = cfg
	t.client = NewClient(cfg)
	return nil
}

// DiscoverIDs pages through a JQL search over the project.
func (t *JiraTracker) DiscoverIDs(ctx context.Context) iter.Seq2[types.IssueID, error] {
	if t.client == nil {
		return func(yield func(types.IssueID, error) bool) {
			yield("", &tracker.ErrNotInitialized{Tracker: Name})
		}
	}
	return tracker.Paginate(ctx, t.config.PageSize, t.config.DiscoveryBackOff, t.client.SearchKeys)
}

// FetchIssue retrieves the issue, its changelog and its comments.
func (t *JiraTracker) FetchIssue(ctx context.Context, key types.IssueID) (*types.RawIssue, error) {
	if t.client == nil {
		return nil, &tracker.ErrNotInitialized{Tracker: Name}
	}
	issue, err := t.client.FetchIssue(ctx, key)
	if err != nil {
		return nil, err
	}
	changelog, err := t.client.FetchChangelog(ctx, key)
	if err != nil {
		return nil, err
	}
	comments, err := t.client.FetchComments(ctx, key)
	if err != nil {
		return nil, err
	}
	watchers, err := t.fetchWatchers(ctx, issue)
	if err != nil {
		return nil, err
	}
	return t.toRawIssue(issue, changelog, comments, watchers), nil
}

// fetchWatchers returns the CC list of issue. Listing watchers needs the
// "view voters and watchers" permission; without it the list is empty.
func (t *JiraTracker) fetchWatchers(ctx context.Context, issue *Issue) ([]User, error) {
	if w := issue.Fields.Watchers; w != nil && w.WatchCount == 0 {
		return nil, nil
	}
	watchers, err := t.client.FetchWatchers(ctx, types.IssueID(issue.Key))
	var se *tracker.StatusError
	if errors.As(err, &se) && (se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden) {
		return nil, nil
	}
	return watchers, err
}

// BuildIssueURL returns the browse URL of an issue.
func (t *JiraTracker) BuildIssueURL(key string) string {
	return strings.TrimSuffix(t.config.BaseURL, "/") + "/browse/" + key
}

func (t *JiraTracker) toRawIssue(issue *Issue, changelog []ChangeGroup, comments []Comment, watchers []User) *types.RawIssue {
	f := issue.Fields
	raw := &types.RawIssue{
		ID:             types.IssueID(issue.Key),
		Summary:        f.Summary,
		CreationTime:   ParseTime(f.Created),
		LastChangeTime: ParseTime(f.Updated),
		URL:            t.BuildIssueURL(issue.Key),
		Resolution:     nameOf(f.Resolution),
		Severity:       nameOf(f.IssueType),
		Priority:       nameOf(f.Priority),
		Status:         nameOf(f.Status),
		Creator:        toPerson(firstUser(f.Creator, f.Reporter)),
		AssignedTo:     toPerson(f.Assignee),
	}
	if f.Project != nil {
		raw.Product = f.Project.Key
	}
	if len(f.Components) > 0 {
		raw.Component = f.Components[0].Name
	}
	for i := range watchers {
		raw.CC = append(raw.CC, toPerson(&watchers[i]))
	}

	for _, link := range f.IssueLinks {
		switch {
		case link.Type.Name == LinkBlocks && link.InwardIssue != nil:
			raw.DependsOn = append(raw.DependsOn, types.IssueID(link.InwardIssue.Key))
		case link.Type.Name == LinkDuplicate && link.OutwardIssue != nil && raw.DupeOf == nil:
			dupe := types.IssueID(link.OutwardIssue.Key)
			raw.DupeOf = &dupe
		}
	}

	for _, g := range changelog {
		ev := types.HistoryEvent{When: ParseTime(g.Created), Who: login(g.Author)}
		for _, it := range g.Items {
			ev.Changes = append(ev.Changes, types.FieldChange{FieldName: it.Field, Removed: it.FromString, Added: it.ToString})
		}
		raw.History = append(raw.History, ev)
	}
	for _, c := range comments {
		raw.Comments = append(raw.Comments, types.Comment{
			Author:       login(c.Author),
			CreationTime: ParseTime(c.Created),
			Text:         c.Body,
		})
	}
	return raw
}

func nameOf(n *Named) string {
	if n == nil {
		return ""
	}
	return n.Name
}

func firstUser(users ...*User) *User {
	for _, u := range users {
		if u != nil {
			return u
		}
	}
	return nil
}

// login is the identifier used for history actors and comment authors:
// the email when Jira exposes it, otherwise the user name or account id.
func login(u *User) string {
	if u == nil {
		return ""
	}
	switch {
	case u.EmailAddress != "":
		return u.EmailAddress
	case u.Name != "":
		return u.Name
	default:
		return u.AccountID
	}
}

func toPerson(u *User) types.Person {
	if u == nil {
		return types.Person{}
	}
	return types.Person{Email: login(u), RealName: u.DisplayName, Name: u.Name}
}
