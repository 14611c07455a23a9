package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "console.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Listen != ":8080" {
		t.Errorf("expected default listen :8080, got %q", cfg.Listen)
	}
	if cfg.Server.StopCommand != "stop" {
		t.Errorf("expected default stop command, got %q", cfg.Server.StopCommand)
	}
	if cfg.Server.StopTimeout() != 30*time.Second {
		t.Errorf("expected default stop timeout 30s, got %s", cfg.Server.StopTimeout())
	}
	if cfg.ScrollbackLines != 1000 {
		t.Errorf("expected default scrollback 1000, got %d", cfg.ScrollbackLines)
	}
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), true)
	if err == nil {
		t.Fatal("expected error for explicitly named missing config")
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
listen: ":9090"
db_path: /var/lib/console/runs.db
scrollback_lines: 200
server:
  command: java
  args: ["-Xmx4G", "-jar", "server.jar", "nogui"]
  workdir: /srv/game
  stop_command: stop
  stop_timeout_seconds: 60
`)

	cfg, err := Load(path, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Listen != ":9090" {
		t.Errorf("expected listen :9090, got %q", cfg.Listen)
	}
	if cfg.Server.Command != "java" {
		t.Errorf("expected command java, got %q", cfg.Server.Command)
	}
	if len(cfg.Server.Args) != 4 || cfg.Server.Args[2] != "server.jar" {
		t.Errorf("unexpected args: %v", cfg.Server.Args)
	}
	if cfg.Server.Workdir != "/srv/game" {
		t.Errorf("expected workdir /srv/game, got %q", cfg.Server.Workdir)
	}
	if cfg.Server.StopTimeout() != time.Minute {
		t.Errorf("expected stop timeout 60s, got %s", cfg.Server.StopTimeout())
	}
	if cfg.ScrollbackLines != 200 {
		t.Errorf("expected scrollback 200, got %d", cfg.ScrollbackLines)
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := writeConfig(t, "listen: [unclosed")
	if _, err := Load(path, true); err == nil {
		t.Fatal("expected error for malformed config")
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
listen: ":9090"
server:
  command: java
`)

	t.Setenv("CONSOLE_LISTEN", ":7070")
	t.Setenv("CONSOLE_SERVER_COMMAND", "./run.sh")
	t.Setenv("CONSOLE_STOP_TIMEOUT_SECONDS", "15")

	cfg, err := Load(path, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Listen != ":7070" {
		t.Errorf("expected env listen override, got %q", cfg.Listen)
	}
	if cfg.Server.Command != "./run.sh" {
		t.Errorf("expected env command override, got %q", cfg.Server.Command)
	}
	if cfg.Server.StopTimeoutSeconds != 15 {
		t.Errorf("expected env stop timeout override, got %d", cfg.Server.StopTimeoutSeconds)
	}
}
