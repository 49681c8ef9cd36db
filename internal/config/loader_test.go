package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	got := DefaultConfig()

	if got.DefaultTimeout != 30*time.Second {
		t.Fatalf("DefaultTimeout = %s, want 30s", got.DefaultTimeout)
	}
	if got.StaleTime != 30*time.Second {
		t.Fatalf("StaleTime = %s, want 30s", got.StaleTime)
	}
	if got.MaxResponseBytes != 10<<20 {
		t.Fatalf("MaxResponseBytes = %d, want 10 MiB", got.MaxResponseBytes)
	}
	if got.DBPath != filepath.Join(home, ".local", "share", "reqdeck", "reqdeck.db") {
		t.Fatalf("DBPath = %q", got.DBPath)
	}
}

func loadDefault(t *testing.T) Config {
	t.Helper()
	cfg, err := LoadFile(DefaultPath())
	if err != nil {
		t.Fatalf("LoadFile(%s) failed: %v", DefaultPath(), err)
	}
	return cfg
}

func TestLoadReturnsDefaultsWhenConfigMissing(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got := loadDefault(t)
	want := DefaultConfig()

	if got != want {
		t.Fatalf("LoadFile() = %#v, want defaults %#v", got, want)
	}
	if got.HistoryLimit != 0 {
		t.Fatalf("HistoryLimit = %d, want 0 (whole log)", got.HistoryLimit)
	}
}

func writeConfig(t *testing.T, home, content string) string {
	t.Helper()
	configDir := filepath.Join(home, ".config", "reqdeck")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	path := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	return path
}

func TestLoadReadsConfigFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	writeConfig(t, home, strings.Join([]string{
		"db_path: /tmp/x.db",
		"default_timeout: 42s",
		"stale_time: 5s",
		"max_response_bytes: 1024",
		"log_level: debug",
		"log_format: json",
		"proxy: http://proxy.local:3128",
		"no_proxy: localhost",
		"telemetry:",
		"  endpoint: localhost:4317",
		"  insecure: true",
		"",
	}, "\n"))

	got := loadDefault(t)

	if got.DBPath != "/tmp/x.db" {
		t.Fatalf("DBPath = %q", got.DBPath)
	}
	if got.DefaultTimeout != 42*time.Second {
		t.Fatalf("DefaultTimeout = %s, want 42s", got.DefaultTimeout)
	}
	if got.StaleTime != 5*time.Second {
		t.Fatalf("StaleTime = %s, want 5s", got.StaleTime)
	}
	if got.MaxResponseBytes != 1024 {
		t.Fatalf("MaxResponseBytes = %d", got.MaxResponseBytes)
	}
	if got.LogLevel != "debug" || got.LogFormat != "json" {
		t.Fatalf("log settings = %q/%q", got.LogLevel, got.LogFormat)
	}
	if got.Proxy != "http://proxy.local:3128" || got.NoProxy != "localhost" {
		t.Fatalf("proxy settings = %q/%q", got.Proxy, got.NoProxy)
	}
	if got.Telemetry.Endpoint != "localhost:4317" || !got.Telemetry.Insecure {
		t.Fatalf("Telemetry = %#v", got.Telemetry)
	}
	if got.Telemetry.ServiceName != "reqdeck" {
		t.Fatalf("ServiceName = %q, want default kept", got.Telemetry.ServiceName)
	}
}

func TestLoadMergesPartialConfigWithDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeConfig(t, home, "history_limit: 50\nstale_time: 0s\n")

	got := loadDefault(t)
	want := DefaultConfig()
	want.HistoryLimit = 50
	want.StaleTime = 0

	if got != want {
		t.Fatalf("LoadFile() = %#v, want %#v", got, want)
	}
}

func TestLoadInvalidYAMLReturnsDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := writeConfig(t, home, "log_level: [\n")

	got, err := LoadFile(path)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if want := DefaultConfig(); got != want {
		t.Fatalf("LoadFile() = %#v, want defaults %#v", got, want)
	}
}

func TestLoadFileReportsErrors(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := writeConfig(t, home, "log_level: [\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected parse error")
	}

	path = writeConfig(t, home, "log_level: loud\n")
	if _, err := LoadFile(path); err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("expected validation error, got %v", err)
	}

	path = writeConfig(t, home, "default_timeout: 0s\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for zero timeout")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := writeConfig(t, home, "log_level: info\nhistory_limit: 10\n")

	t.Setenv("REQDECK_LOG_LEVEL", "error")
	t.Setenv("REQDECK_DEFAULT_TIMEOUT", "5s")
	t.Setenv("REQDECK_TELEMETRY__ENDPOINT", "collector:4317")

	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if got.LogLevel != "error" {
		t.Fatalf("LogLevel = %q, want env value", got.LogLevel)
	}
	if got.DefaultTimeout != 5*time.Second {
		t.Fatalf("DefaultTimeout = %s, want 5s", got.DefaultTimeout)
	}
	if got.HistoryLimit != 10 {
		t.Fatalf("HistoryLimit = %d, want file value", got.HistoryLimit)
	}
	if got.Telemetry.Endpoint != "collector:4317" {
		t.Fatalf("Telemetry.Endpoint = %q", got.Telemetry.Endpoint)
	}
}
