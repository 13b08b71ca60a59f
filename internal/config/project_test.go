package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadProject(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"yaml", "firefox.yaml", "project: firefox\ntracker: Bugzilla\nurl: https://bugzilla.mozilla.org/\nproduct: Firefox\napi_key: k\n"},
		{"yml", "firefox.yml", "project: firefox\ntracker: bugzilla\nurl: https://bugzilla.mozilla.org/\nproduct: Firefox\napi_key: k\n"},
		{"toml", "firefox.toml", "project = \"firefox\"\ntracker = \"bugzilla\"\nurl = \"https://bugzilla.mozilla.org/\"\nproduct = \"Firefox\"\napi_key = \"k\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := LoadProject(writeFile(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("LoadProject: %v", err)
			}
			want := Project{Name: "firefox", Tracker: "bugzilla", URL: "https://bugzilla.mozilla.org/", Product: "Firefox", APIKey: "k"}
			if *p != want {
				t.Errorf("LoadProject = %+v, want %+v", *p, want)
			}
		})
	}
}

func TestLoadProjectDefaultsNameToProduct(t *testing.T) {
	p, err := LoadProject(writeFile(t, "p.yaml", "tracker: jira\nurl: https://issues.example.org/\nproduct: KAFKA\n"))
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "KAFKA" {
		t.Errorf("Name = %q, want KAFKA", p.Name)
	}
}

func TestLoadProjectErrors(t *testing.T) {
	if _, err := LoadProject(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
	if _, err := LoadProject(writeFile(t, "bad.toml", "project = ")); err == nil {
		t.Error("invalid toml should fail")
	}
	_, err := LoadProject(writeFile(t, "empty.yaml", "project: x\n"))
	if err == nil {
		t.Fatal("missing fields should fail")
	}
	for _, field := range []string{"tracker", "url", "product"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q should mention %s", err, field)
		}
	}
}

func TestProjectTrackerConfig(t *testing.T) {
	defer ResetForTesting()
	if err := Initialize(); err != nil {
		t.Fatal(err)
	}
	Set("page-size", 250)
	Set("http-timeout", "5s")

	p := &Project{Tracker: "bugzilla", URL: "https://b.example.org/", Product: "Core", APIKey: "k", Username: "u"}
	cfg := p.TrackerConfig()
	if cfg.BaseURL != p.URL || cfg.Project != "Core" || cfg.APIKey != "k" || cfg.Username != "u" || cfg.PageSize != 250 {
		t.Errorf("TrackerConfig = %+v", cfg)
	}
	if cfg.HTTPClient == nil || cfg.HTTPClient.Timeout != 5*time.Second {
		t.Errorf("HTTPClient = %+v", cfg.HTTPClient)
	}
}
