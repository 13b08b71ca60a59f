// Package factory opens the storage.Sink selected by configuration.
package factory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/codeface/bugcrawl/internal/storage"
	"github.com/codeface/bugcrawl/internal/storage/memory"
	"github.com/codeface/bugcrawl/internal/storage/mysql"
	"github.com/codeface/bugcrawl/internal/storage/sqlite"
)

// Sink kinds accepted by Open.
const (
	KindSQLite = "sqlite"
	KindMySQL  = "mysql"
	KindMemory = "memory"
)

// DefaultSQLitePath is used when Options.SQLitePath is empty.
const DefaultSQLitePath = "bugcrawl.db"

// BackendFactory creates a sink from options.
type BackendFactory func(ctx context.Context, opts Options) (storage.Sink, error)

var backendRegistry = map[string]BackendFactory{
	KindSQLite: openSQLite,
	KindMySQL:  openMySQL,
	KindMemory: func(context.Context, Options) (storage.Sink, error) { return memory.New(), nil },
}

// Options configures how the sink is opened
type Options struct {
	Kind       string // default: sqlite
	SQLitePath string
	MySQLDSN   string

	// ConnectTimeout bounds the MySQL connect retry loop (0 = package default)
	ConnectTimeout time.Duration
}

// Open creates the sink named by opts.Kind.
func Open(ctx context.Context, opts Options) (storage.Sink, error) {
	kind := strings.ToLower(strings.TrimSpace(opts.Kind))
	if kind == "" {
		kind = KindSQLite
	}
	f, ok := backendRegistry[kind]
	if !ok {
		return nil, fmt.Errorf("unknown sink %q (supported: %s)", opts.Kind, strings.Join(Kinds(), ", "))
	}
	return f(ctx, opts)
}

// Kinds lists the supported sink kinds.
func Kinds() []string {
	kinds := make([]string, 0, len(backendRegistry))
	for k := range backendRegistry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func openSQLite(ctx context.Context, opts Options) (storage.Sink, error) {
	path := opts.SQLitePath
	if path == "" {
		path = DefaultSQLitePath
	}
	return sqlite.Open(ctx, path)
}

func openMySQL(ctx context.Context, opts Options) (storage.Sink, error) {
	if opts.MySQLDSN == "" {
		return nil, fmt.Errorf("mysql sink requires a DSN (set mysql.dsn)")
	}
	var mo mysql.Options
	if opts.ConnectTimeout > 0 {
		timeout := opts.ConnectTimeout
		mo.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = timeout
			return b
		}
	}
	return mysql.Open(ctx, opts.MySQLDSN, mo)
}
