// Package mysql opens a storage.Sink on a MySQL-compatible server (MySQL,
// MariaDB or a Dolt sql-server) using go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	mysqldrv "github.com/go-sql-driver/mysql"

	"github.com/codeface/bugcrawl/internal/storage/sqldb"
)

// connectMaxElapsed bounds how long Open waits for the server to accept
// connections.
const connectMaxElapsed = 30 * time.Second

func newConnectBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = connectMaxElapsed
	return bo
}

// Options tunes Open.
type Options struct {
	// NewBackOff overrides the connect retry policy.
	NewBackOff func() backoff.BackOff
}

// ParseDSN parses dsn and forces the settings the sink relies on:
// parseTime for DATETIME columns, UTC and utf8mb4.
func ParseDSN(dsn string) (*mysqldrv.Config, error) {
	cfg, err := mysqldrv.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	if _, ok := cfg.Params["charset"]; !ok {
		cfg.Params["charset"] = "utf8mb4"
	}
	if cfg.DBName == "" {
		return nil, fmt.Errorf("invalid mysql dsn: no database name")
	}
	return cfg, nil
}

// Open connects to the server described by dsn, waiting for it to come up,
// and applies the schema.
func Open(ctx context.Context, dsn string, opts Options) (*sqldb.Store, error) {
	cfg, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	connector, err := mysqldrv.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	newBackOff := opts.NewBackOff
	if newBackOff == nil {
		newBackOff = newConnectBackoff
	}
	err = backoff.Retry(func() error {
		err := db.PingContext(ctx)
		if err != nil && !isRetryableError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(newBackOff(), ctx))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Addr, err)
	}

	store, err := sqldb.New(ctx, db, schema)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// isRetryableError returns true if the error is a transient connection error.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, s := range []string{
		"driver: bad connection",
		"invalid connection",
		"broken pipe",
		"connection reset",
		"connection refused",
		"lost connection",
		"gone away",
		"i/o timeout",
	} {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}
