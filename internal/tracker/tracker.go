// Package tracker defines the capability interface every supported issue
// tracker implements, the registry used to select one at startup, and the
// error taxonomy the scraper uses to decide whether a failed fetch is
// retried, cooled down or dropped.
//
// Each remote system (Bugzilla, Jira) lives in its own sub-package and
// registers a factory with a Registry. Adding a tracker type means adding
// a package, never a branch in the dispatcher.
package tracker

import (
	"context"
	"iter"

	"github.com/codeface/bugcrawl/internal/types"
)

// IssueTracker is the interface all tracker integrations implement.
type IssueTracker interface {
	// Name returns the lowercase identifier used in configuration (e.g. "bugzilla").
	Name() string

	// DisplayName returns the human-readable name (e.g. "Bugzilla").
	DisplayName() string

	// Init configures the tracker. Called once before discovery or fetches.
	Init(ctx context.Context, cfg Config) error

	// DiscoverIDs lazily pages through the remote listing and yields every
	// issue ID in scope for the configured project. Iteration stops at the
	// first error, which is yielded with an empty ID.
	DiscoverIDs(ctx context.Context) iter.Seq2[types.IssueID, error]

	// FetchIssue retrieves the issue body, its history and its comments
	// and assembles them into one RawIssue. Failures are reported with the
	// typed errors in this package so Classify can pick a retry action.
	FetchIssue(ctx context.Context, id types.IssueID) (*types.RawIssue, error)
}
