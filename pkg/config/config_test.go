package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		EnvConfigPath, "SESSIONVIEW_CLAUDE_DIR", "SESSIONVIEW_ADDR", "SESSIONVIEW_API_URL",
		"SESSIONVIEW_MAX_DEPTH", "SESSIONVIEW_LOG_LEVEL", "SESSIONVIEW_LOG_JSON",
		"SESSIONVIEW_TIMEOUT", "SESSIONVIEW_WATCH_INTERVAL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if cfg.Addr != ":8000" || cfg.APIURL != "http://localhost:8000" || cfg.MaxDepth != 10 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Timeout != 30*time.Second || cfg.WatchInterval != time.Second || cfg.LogLevel != "info" {
		t.Errorf("cfg = %+v", cfg)
	}
	if strings.HasPrefix(cfg.ClaudeDir, "~") || !strings.HasSuffix(cfg.ClaudeDir, ".claude") {
		t.Errorf("claude dir not expanded: %s", cfg.ClaudeDir)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sessionview.yaml")
	content := `claude_dir: /data/claude
addr: ":9000"
max_depth: 4
log_level: debug
timeout: 5s
watch_interval: 250ms
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfigPath, path)
	t.Setenv("SESSIONVIEW_ADDR", ":7000")
	t.Setenv("SESSIONVIEW_MAX_DEPTH", "not-a-number")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ClaudeDir != "/data/claude" || cfg.LogLevel != "debug" {
		t.Errorf("file values lost: %+v", cfg)
	}
	if cfg.Addr != ":7000" {
		t.Errorf("env should override file, addr = %s", cfg.Addr)
	}
	if cfg.MaxDepth != 4 {
		t.Errorf("bad env int should keep file value, got %d", cfg.MaxDepth)
	}
	if cfg.Timeout != 5*time.Second || cfg.WatchInterval != 250*time.Millisecond {
		t.Errorf("durations = %v, %v", cfg.Timeout, cfg.WatchInterval)
	}
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("addr: [unterminated"), 0644)
	if _, err := Load(bad); err == nil {
		t.Error("expected parse error")
	}

	zero := filepath.Join(dir, "zero.yaml")
	os.WriteFile(zero, []byte("max_depth: 0"), 0644)
	if _, err := Load(zero); err == nil {
		t.Error("expected max_depth error")
	}
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/tester")

	got, err := ExpandHome("~/.claude")
	if err != nil || got != "/home/tester/.claude" {
		t.Errorf("ExpandHome = %q, %v", got, err)
	}
	if got, _ := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("absolute path changed: %s", got)
	}
}
