package internal

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// TestLoadConfigDefaults tests that the default values are applied correctly when loading a config.
func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeFile(t, "app.yaml", "{}\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Providers.GitHub.Path != "/webhooks/github" {
		t.Fatalf("expected default github path, got %q", cfg.Providers.GitHub.Path)
	}
	if cfg.Watermill.Driver != "gochannel" {
		t.Fatalf("expected default watermill driver, got %q", cfg.Watermill.Driver)
	}
	if cfg.Watermill.GoChannel.OutputChannelBuffer != 64 {
		t.Fatalf("expected default gochannel output buffer, got %d", cfg.Watermill.GoChannel.OutputChannelBuffer)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.DSN != "selfpm.db" {
		t.Fatalf("expected sqlite storage default, got %q %q", cfg.Storage.Driver, cfg.Storage.DSN)
	}
	if cfg.Review.Period != "PT30M" {
		t.Fatalf("expected review period PT30M, got %q", cfg.Review.Period)
	}
	if cfg.Review.Trigger != "cron" {
		t.Fatalf("expected cron trigger, got %q", cfg.Review.Trigger)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected info log level, got %q", cfg.Logging.Level)
	}
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	t.Setenv("SELFPM_TEST_SECRET", "s3cr3t")
	cfg, err := LoadConfig(writeFile(t, "app.yaml", "providers:\n  github:\n    secret: ${SELFPM_TEST_SECRET}\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Providers.GitHub.Secret != "s3cr3t" {
		t.Fatalf("expected expanded secret, got %q", cfg.Providers.GitHub.Secret)
	}
}

func TestLoadEnvKeepsExisting(t *testing.T) {
	t.Setenv("SELFPM_TEST_KEPT", "from-env")
	path := writeFile(t, ".env", "SELFPM_TEST_KEPT=from-file\nSELFPM_TEST_LOADED=yes\n")
	t.Cleanup(func() { os.Unsetenv("SELFPM_TEST_LOADED") })

	if err := LoadEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("load env: %v", err)
	}
	if got := os.Getenv("SELFPM_TEST_KEPT"); got != "from-env" {
		t.Fatalf("expected existing variable to win, got %q", got)
	}
	if got := os.Getenv("SELFPM_TEST_LOADED"); got != "yes" {
		t.Fatalf("expected variable from file, got %q", got)
	}
}

// TestLoadConfigInvalidRule tests that loading a config with an invalid rule returns an error.
func TestLoadConfigInvalidRule(t *testing.T) {
	content := "rules:\n  - when: event_type == \"newIssue\"\n"
	if _, err := LoadConfig(writeFile(t, "config.yaml", content)); err == nil {
		t.Fatalf("expected error for missing emit")
	}
}

// TestLoadConfigTrimsFields tests that the fields in a rule are trimmed correctly.
func TestLoadConfigTrimsFields(t *testing.T) {
	content := "rules:\n  - when: \"  action == \\\"opened\\\"  \"\n    emit: \"  issue.opened  \"\n"
	cfg, err := LoadConfig(writeFile(t, "config.yaml", content))
	if err != nil {
		t.Fatalf("load rules config: %v", err)
	}
	if cfg.Rules[0].When != "action == \"opened\"" {
		t.Fatalf("expected trimmed when, got %q", cfg.Rules[0].When)
	}
	if len(cfg.Rules[0].Emit) != 1 || cfg.Rules[0].Emit[0] != "issue.opened" {
		t.Fatalf("expected trimmed emit, got %q", cfg.Rules[0].Emit)
	}
}

func TestLoadConfigEmitList(t *testing.T) {
	content := "rules:\n  - when: event_type == \"assignedTasks\"\n    emit: [review.tasks, review.audit]\n    drivers: [\" gochannel \"]\n"
	cfg, err := LoadConfig(writeFile(t, "config.yaml", content))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	rules := cfg.RulesConfig().Rules
	if len(rules[0].Emit) != 2 {
		t.Fatalf("expected 2 topics, got %v", rules[0].Emit)
	}
	if rules[0].Drivers[0] != "gochannel" {
		t.Fatalf("expected trimmed driver, got %q", rules[0].Drivers[0])
	}
}
