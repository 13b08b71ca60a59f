package tracker

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultPageSize is the listing page size used when Config.PageSize is unset.
const DefaultPageSize = 1000

// DefaultTimeout bounds each HTTP request when no client is supplied.
const DefaultTimeout = 30 * time.Second

// Config holds the settings for one crawl target.
type Config struct {
	// BaseURL is the tracker root, e.g. "https://bugzilla.mozilla.org/".
	BaseURL string

	// Project selects the issues in scope: the Bugzilla product or the
	// Jira project key.
	Project string

	// APIKey and Username are optional credentials.
	APIKey   string
	Username string

	// PageSize is the discovery page size (limit). Defaults to DefaultPageSize.
	PageSize int

	// HTTPClient is used for all requests. Defaults to a client with
	// DefaultTimeout.
	HTTPClient *http.Client

	// DiscoveryBackOff returns a fresh policy for retrying a failed listing
	// page. Defaults to DefaultDiscoveryBackOff.
	DiscoveryBackOff func() backoff.BackOff
}

// Validate checks the fields every tracker needs.
func (c *Config) Validate() error {
	var errs []error
	if c.BaseURL == "" {
		errs = append(errs, errors.New("tracker url not configured"))
	}
	if c.Project == "" {
		errs = append(errs, errors.New("tracker project not configured"))
	}
	if c.PageSize < 0 {
		errs = append(errs, errors.New("page size must not be negative"))
	}
	return errors.Join(errs...)
}

// WithDefaults returns a copy of c with unset optional fields filled in.
func (c Config) WithDefaults() Config {
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if c.DiscoveryBackOff == nil {
		c.DiscoveryBackOff = DefaultDiscoveryBackOff
	}
	return c
}

// ApplyEnv fills empty credentials from the environment.
// For tracker "bugzilla" it reads BUGCRAWL_BUGZILLA_API_KEY and
// BUGCRAWL_BUGZILLA_USERNAME.
func (c *Config) ApplyEnv(trackerName string) {
	if c.APIKey == "" {
		c.APIKey = os.Getenv(envVarName(trackerName, "api_key"))
	}
	if c.Username == "" {
		c.Username = os.Getenv(envVarName(trackerName, "username"))
	}
}

// envVarName converts a tracker config key to its environment variable name.
func envVarName(trackerName, key string) string {
	envKey := strings.ToUpper("bugcrawl_" + trackerName + "_" + key)
	return strings.NewReplacer(".", "_", "-", "_").Replace(envKey)
}

// DefaultDiscoveryBackOff retries a listing page for up to two minutes.
func DefaultDiscoveryBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 2 * time.Minute
	return bo
}
