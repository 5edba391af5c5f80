package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/doughall/rootipc/internal/config"
	"github.com/doughall/rootipc/internal/simpleipc"
)

func TestLoadConfig(t *testing.T) {
	t.Run("explicit missing file fails", func(t *testing.T) {
		if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Error("expected error for missing explicit config")
		}
	})

	t.Run("explicit file loads", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("log_level: error\n"), 0644); err != nil {
			t.Fatal(err)
		}
		cfg, err := loadConfig(path)
		if err != nil {
			t.Fatalf("loadConfig failed: %v", err)
		}
		if cfg.LogLevel != "error" {
			t.Errorf("LogLevel = %q", cfg.LogLevel)
		}
	})

	t.Run("default path falls back", func(t *testing.T) {
		if _, err := os.Stat(config.DefaultConfigPath); err == nil {
			t.Skip("default config present on this host")
		}
		cfg, err := loadConfig(config.DefaultConfigPath)
		if err != nil {
			t.Fatalf("loadConfig failed: %v", err)
		}
		if cfg.ReadAttempts != 5 {
			t.Errorf("expected defaults, got %+v", cfg)
		}
	})
}

func TestPrintShellConfig(t *testing.T) {
	var buf bytes.Buffer
	printShellConfig(&buf, simpleipc.ShellConfig{
		Dir:            "/tmp/abcd1234",
		CommandPrefix:  "cwxyz",
		ResponsePrefix: "rwxyz",
	})

	want := "IPC_DIR='/tmp/abcd1234'\nIPC_CMD_PREFIX='cwxyz'\nIPC_RSP_PREFIX='rwxyz'\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
	if strings.Contains(buf.String(), "\n\n") {
		t.Error("output must not contain a blank line")
	}
}
