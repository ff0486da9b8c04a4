package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/facewatch/internal/facematch"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Store.Backend != StoreMemory {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, StoreMemory)
	}
	if cfg.Matching.Profile != "default" {
		t.Errorf("Matching.Profile = %q, want default", cfg.Matching.Profile)
	}
	if cfg.Matching.RepositoryTimeout != 5*time.Second {
		t.Errorf("RepositoryTimeout = %v, want 5s", cfg.Matching.RepositoryTimeout)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("Web.Port = %d, want 8080", cfg.Web.Port)
	}
	if cfg.SMTP.Enabled() {
		t.Error("SMTP should be disabled without SMTP_HOST")
	}

	p, err := cfg.Matching.Active()
	if err != nil {
		t.Fatalf("Active() error = %v", err)
	}
	if p.Threshold != 0.6 || p.Metric != "l2" {
		t.Errorf("default profile = %+v, want l2 at 0.6", p)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FACEWATCH_PROFILE", "insightface")
	t.Setenv("FACEWATCH_PROFILE_INSIGHTFACE_THRESHOLD", "0.42")
	t.Setenv("FACEWATCH_REPOSITORY_TIMEOUT", "750ms")
	t.Setenv("NOTIFY_WORKERS", "7")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_FROM", "facewatch@example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	p, err := cfg.Matching.Active()
	if err != nil {
		t.Fatalf("Active() error = %v", err)
	}
	if p.Threshold != 0.42 {
		t.Errorf("Threshold = %v, want 0.42", p.Threshold)
	}
	if p.Metric != "cosine" || p.Dimension != 512 {
		t.Errorf("override must keep other fields, got %+v", p)
	}
	if cfg.Matching.RepositoryTimeout != 750*time.Millisecond {
		t.Errorf("RepositoryTimeout = %v, want 750ms", cfg.Matching.RepositoryTimeout)
	}
	if cfg.Notify.Workers != 7 {
		t.Errorf("Notify.Workers = %d, want 7", cfg.Notify.Workers)
	}
	if !cfg.SMTP.Enabled() {
		t.Error("SMTP should be enabled")
	}
}

func TestLoad_ProfilesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	content := `active: arcface
profiles:
  arcface:
    metric: cosine
    threshold: 0.35
    policy: nearest
    dimension: 512
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write profiles file: %v", err)
	}
	t.Setenv("FACEWATCH_PROFILES_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Matching.Profile != "arcface" {
		t.Errorf("Profile = %q, want arcface", cfg.Matching.Profile)
	}
	if _, ok := cfg.Matching.Profiles["default"]; !ok {
		t.Error("embedded profiles must remain available under the file layer")
	}

	p, _ := cfg.Matching.Active()
	m, err := p.Matcher()
	if err != nil {
		t.Fatalf("Matcher() error = %v", err)
	}
	if m.Metric != facematch.MetricCosine || m.Policy != facematch.PolicyNearest || m.Threshold != 0.35 {
		t.Errorf("Matcher() = %+v", m)
	}
}

func TestLoad_MissingProfilesFile(t *testing.T) {
	t.Setenv("FACEWATCH_PROFILES_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Error("expected error for missing profiles file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Store: StoreConfig{Backend: StoreMemory},
			Blob:  BlobConfig{Backend: BlobLocal},
			Matching: MatchingConfig{
				Profile:  "default",
				Profiles: map[string]Profile{"default": {Metric: "l2", Threshold: 0.6}},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown store", func(c *Config) { c.Store.Backend = "redis" }, "unknown store backend"},
		{"postgres without url", func(c *Config) { c.Store.Backend = StorePostgres }, "DATABASE_URL"},
		{"mariadb without dsn", func(c *Config) { c.Store.Backend = StoreMariaDB }, "MARIADB_DSN"},
		{"minio without endpoint", func(c *Config) { c.Blob.Backend = BlobMinio }, "MINIO_ENDPOINT"},
		{"unknown blob", func(c *Config) { c.Blob.Backend = "s3" }, "unknown blob backend"},
		{"zero threshold", func(c *Config) {
			c.Matching.Profiles["default"] = Profile{Metric: "l2", Threshold: 0}
		}, "threshold must be positive"},
		{"bad metric", func(c *Config) {
			c.Matching.Profiles["default"] = Profile{Metric: "manhattan", Threshold: 1}
		}, "unknown distance metric"},
		{"bad policy", func(c *Config) {
			c.Matching.Profiles["default"] = Profile{Threshold: 1, Policy: "random"}
		}, "unknown match policy"},
		{"unknown active profile", func(c *Config) { c.Matching.Profile = "nope" }, "unknown descriptor profile"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestProfileEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"FACEWATCH_PROFILE_INSIGHTFACE_THRESHOLD", "profiles.insightface.threshold"},
		{"FACEWATCH_PROFILE_DEFAULT_METRIC", "profiles.default.metric"},
		{"FACEWATCH_PROFILE_DEFAULT_POLICY", "profiles.default.policy"},
		{"FACEWATCH_PROFILE_DEFAULT_COLOR", ""},
		{"FACEWATCH_PROFILE_DEFAULT", ""},
		{"FACEWATCH_PROFILE__THRESHOLD", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := profileEnvKey(tt.in); got != tt.want {
				t.Errorf("profileEnvKey(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "-3")
	t.Setenv("TEST_FLOAT", "2.5")
	t.Setenv("TEST_DURATION", "nonsense")

	if got := envInt("TEST_INT", 9); got != 9 {
		t.Errorf("envInt negative = %d, want default 9", got)
	}
	if got := envFloat("TEST_FLOAT", 1); got != 2.5 {
		t.Errorf("envFloat = %v, want 2.5", got)
	}
	if got := envDuration("TEST_DURATION", time.Second); got != time.Second {
		t.Errorf("envDuration invalid = %v, want default 1s", got)
	}
	if got := envInt("TEST_UNSET_INT", 4); got != 4 {
		t.Errorf("envInt unset = %d, want 4", got)
	}
}
