package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log_level: debug\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.BaseDir != os.TempDir() {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, os.TempDir())
	}
	if cfg.ReadAttempts != 5 || cfg.ReadDelay() != 10*time.Millisecond {
		t.Errorf("unexpected read retry: %d x %v", cfg.ReadAttempts, cfg.ReadDelay())
	}
	if cfg.PollInterval() != 100*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.PollInterval())
	}
	if cfg.ResponseMaxAge() != 10*time.Minute {
		t.Errorf("ResponseMaxAge = %v", cfg.ResponseMaxAge())
	}
	if cfg.SocketEnabled() || cfg.JournalEnabled() {
		t.Error("socket and journal should be disabled by default")
	}
}

func TestLoadValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
base_dir: /run/rootipc
socket_path: /run/rootipc/socket
su_path: /system/xbin/su
read_attempts: 8
read_delay_ms: 25
poll_interval_ms: 50
journal_path: /var/lib/rootipc/journal.db
journal_keep: 500
reaper_schedule: "*/2 * * * *"
response_max_age_s: 30
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.BaseDir != "/run/rootipc" || cfg.SuPath != "/system/xbin/su" {
		t.Errorf("unexpected paths: %+v", cfg)
	}
	if !cfg.SocketEnabled() || !cfg.JournalEnabled() {
		t.Error("socket and journal should be enabled")
	}
	if cfg.ReadAttempts != 8 || cfg.ReadDelay() != 25*time.Millisecond {
		t.Errorf("unexpected read retry: %d x %v", cfg.ReadAttempts, cfg.ReadDelay())
	}
	if cfg.JournalKeep != 500 || cfg.ReaperSchedule != "*/2 * * * *" {
		t.Errorf("unexpected journal/reaper: %+v", cfg)
	}
	if cfg.ResponseMaxAge() != 30*time.Second {
		t.Errorf("ResponseMaxAge = %v", cfg.ResponseMaxAge())
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"negative attempts", "read_attempts: -1\n", ErrInvalidReadAttempts},
		{"negative delay", "read_delay_ms: -5\n", ErrInvalidReadDelay},
		{"negative poll", "poll_interval_ms: -1\n", ErrInvalidPollInterval},
		{"negative max age", "response_max_age_s: -1\n", ErrInvalidMaxAge},
		{"relative socket", "socket_path: run/socket\n", ErrRelativePath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.SocketPath = "/run/rootipc/socket"
	cfg.LogLevel = "warn"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, cfg)
	}
}
