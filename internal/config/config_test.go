package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestInitialize(t *testing.T) {
	defer ResetForTesting()
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if v == nil {
		t.Fatal("viper instance is nil after Initialize()")
	}
	if ConfigFileUsed() != "" {
		t.Errorf("unexpected config file %q", ConfigFileUsed())
	}
}

func TestDefaults(t *testing.T) {
	defer ResetForTesting()
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}

	tests := []struct {
		key      string
		expected interface{}
		getter   func(string) interface{}
	}{
		{"cache-dir", "./cache", func(k string) interface{} { return GetString(k) }},
		{"jobs", 4, func(k string) interface{} { return GetInt(k) }},
		{"cooldown", 180 * time.Second, func(k string) interface{} { return GetDuration(k) }},
		{"cooldown-scope", CooldownScopeWorker, func(k string) interface{} { return GetString(k) }},
		{"max-attempts", 0, func(k string) interface{} { return GetInt(k) }},
		{"http-timeout", 30 * time.Second, func(k string) interface{} { return GetDuration(k) }},
		{"page-size", 1000, func(k string) interface{} { return GetInt(k) }},
		{"sink", "sqlite", func(k string) interface{} { return GetString(k) }},
		{"identity.mode", IdentityStore, func(k string) interface{} { return GetString(k) }},
		{"product-as-project", false, func(k string) interface{} { return GetBool(k) }},
		{"telemetry.enabled", false, func(k string) interface{} { return GetBool(k) }},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got := tt.getter(tt.key)
			if got != tt.expected {
				t.Errorf("GetXXX(%q) = %v, want %v", tt.key, got, tt.expected)
			}
			if src := GetValueSource(tt.key); src != SourceDefault {
				t.Errorf("GetValueSource(%q) = %s, want default", tt.key, src)
			}
		})
	}
	if err := Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestEnvironmentBinding(t *testing.T) {
	defer ResetForTesting()
	tests := []struct {
		envVar   string
		key      string
		value    string
		expected interface{}
		getter   func(string) interface{}
	}{
		{"BUGCRAWL_JOBS", "jobs", "16", 16, func(k string) interface{} { return GetInt(k) }},
		{"BUGCRAWL_MAX_ATTEMPTS", "max-attempts", "5", 5, func(k string) interface{} { return GetInt(k) }},
		{"BUGCRAWL_SQLITE_PATH", "sqlite.path", "/tmp/x.db", "/tmp/x.db", func(k string) interface{} { return GetString(k) }},
		{"BUGCRAWL_COOLDOWN", "cooldown", "2s", 2 * time.Second, func(k string) interface{} { return GetDuration(k) }},
		{"BUGCRAWL_PRODUCT_AS_PROJECT", "product-as-project", "true", true, func(k string) interface{} { return GetBool(k) }},
	}

	for _, tt := range tests {
		t.Run(tt.envVar, func(t *testing.T) {
			t.Setenv(tt.envVar, tt.value)
			if err := Initialize(); err != nil {
				t.Fatalf("Initialize() returned error: %v", err)
			}
			if got := tt.getter(tt.key); got != tt.expected {
				t.Errorf("GetXXX(%q) = %v, want %v", tt.key, got, tt.expected)
			}
			if EnvVar(tt.key) != tt.envVar {
				t.Errorf("EnvVar(%q) = %q", tt.key, EnvVar(tt.key))
			}
			if src := GetValueSource(tt.key); src != SourceEnvVar {
				t.Errorf("GetValueSource(%q) = %s, want env_var", tt.key, src)
			}
		})
	}
}

func TestConfigFileDiscovery(t *testing.T) {
	defer ResetForTesting()
	root := t.TempDir()
	configDir := filepath.Join(root, ".bugcrawl")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		t.Fatal(err)
	}
	content := "jobs: 12\ncooldown-scope: global\nmysql:\n  dsn: crawler@tcp(db:3306)/codeface\n"
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0o750); err != nil {
		t.Fatal(err)
	}
	t.Chdir(sub)

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if got := GetInt("jobs"); got != 12 {
		t.Errorf("jobs = %d, want 12", got)
	}
	if got := GetString("cooldown-scope"); got != CooldownScopeGlobal {
		t.Errorf("cooldown-scope = %q", got)
	}
	if got := GetString("mysql.dsn"); got != "crawler@tcp(db:3306)/codeface" {
		t.Errorf("mysql.dsn = %q", got)
	}
	if src := GetValueSource("jobs"); src != SourceConfigFile {
		t.Errorf("GetValueSource(jobs) = %s", src)
	}
	if !strings.HasSuffix(ConfigFileUsed(), filepath.Join(".bugcrawl", "config.yaml")) {
		t.Errorf("ConfigFileUsed() = %q", ConfigFileUsed())
	}
}

func TestExplicitConfigFile(t *testing.T) {
	defer ResetForTesting()
	path := filepath.Join(t.TempDir(), "crawl.yaml")
	if err := os.WriteFile(path, []byte("sink: memory\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := Initialize(path); err != nil {
		t.Fatalf("Initialize(%q): %v", path, err)
	}
	if got := GetString("sink"); got != "memory" {
		t.Errorf("sink = %q", got)
	}
}

func TestExplicitConfigFileMissing(t *testing.T) {
	defer ResetForTesting()
	if err := Initialize(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestBindPFlag(t *testing.T) {
	defer ResetForTesting()
	if err := Initialize(); err != nil {
		t.Fatal(err)
	}
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.IntP("jobs", "j", 4, "")
	if err := BindPFlag("jobs", fs.Lookup("jobs")); err != nil {
		t.Fatalf("BindPFlag: %v", err)
	}
	if err := fs.Parse([]string{"-j", "9"}); err != nil {
		t.Fatal(err)
	}
	if got := GetInt("jobs"); got != 9 {
		t.Errorf("jobs = %d, want 9", got)
	}
	if src := GetValueSource("jobs"); src != SourceFlag {
		t.Errorf("GetValueSource(jobs) = %s, want flag", src)
	}
	if err := BindPFlag("missing", nil); err == nil {
		t.Error("BindPFlag(nil) should fail")
	}
}

func TestValidate(t *testing.T) {
	defer ResetForTesting()
	tests := []struct {
		name    string
		set     map[string]interface{}
		wantErr string
	}{
		{"bad scope", map[string]interface{}{"cooldown-scope": "cluster"}, "cooldown-scope"},
		{"http without url", map[string]interface{}{"identity.mode": IdentityHTTP}, "identity.url"},
		{"bad identity", map[string]interface{}{"identity.mode": "ldap"}, "identity.mode"},
		{"zero jobs", map[string]interface{}{"jobs": 0}, "jobs"},
		{"negative attempts", map[string]interface{}{"max-attempts": -1}, "max-attempts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Initialize(); err != nil {
				t.Fatal(err)
			}
			for k, val := range tt.set {
				Set(k, val)
			}
			err := Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestUninitializedGetters(t *testing.T) {
	ResetForTesting()
	if GetString("sink") != "" || GetInt("jobs") != 0 || GetBool("json-logs") || GetDuration("cooldown") != 0 {
		t.Error("getters should return zero values before Initialize")
	}
	if Validate() == nil {
		t.Error("Validate before Initialize should fail")
	}
	if len(AllSettings()) != 0 {
		t.Error("AllSettings before Initialize should be empty")
	}
}
