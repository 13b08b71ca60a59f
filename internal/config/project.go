package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/codeface/bugcrawl/internal/tracker"
)

// Project describes one crawl target. It is read from a YAML or TOML
// project file:
//
//	project: firefox
//	tracker: bugzilla
//	url: https://bugzilla.mozilla.org/
//	product: Firefox
type Project struct {
	Name     string `yaml:"project" toml:"project"`
	Tracker  string `yaml:"tracker" toml:"tracker"`
	URL      string `yaml:"url" toml:"url"`
	Product  string `yaml:"product" toml:"product"`
	APIKey   string `yaml:"api_key" toml:"api_key"`
	Username string `yaml:"username" toml:"username"`
}

// LoadProject reads a project file. The format follows the extension:
// .toml is TOML, anything else YAML.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is an operator-supplied flag
	if err != nil {
		return nil, fmt.Errorf("read project file: %w", err)
	}

	var p Project
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &p); err != nil {
			return nil, fmt.Errorf("parse project file %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse project file %s: %w", path, err)
		}
	}

	p.Tracker = strings.ToLower(strings.TrimSpace(p.Tracker))
	if p.Name == "" {
		p.Name = p.Product
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("project file %s: %w", path, err)
	}
	return &p, nil
}

// Validate reports missing required fields.
func (p *Project) Validate() error {
	var errs []error
	if p.Tracker == "" {
		errs = append(errs, errors.New("tracker is required"))
	}
	if p.URL == "" {
		errs = append(errs, errors.New("url is required"))
	}
	if p.Product == "" {
		errs = append(errs, errors.New("product is required"))
	}
	return errors.Join(errs...)
}

// TrackerConfig converts p into the tracker configuration, taking page
// size and HTTP timeout from the loaded settings.
func (p *Project) TrackerConfig() tracker.Config {
	cfg := tracker.Config{
		BaseURL:  p.URL,
		Project:  p.Product,
		APIKey:   p.APIKey,
		Username: p.Username,
		PageSize: GetInt("page-size"),
	}
	if timeout := GetDuration("http-timeout"); timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	return cfg
}
