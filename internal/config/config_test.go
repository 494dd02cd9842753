package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvPort, "")
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvDataDir, dir)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("port = %q", cfg.Port)
	}
	if cfg.Printer.IP != "192.168.0.100" || cfg.Printer.Port != 9100 || !cfg.Printer.AutoCut {
		t.Errorf("unexpected printer defaults %+v", cfg.Printer)
	}
	if cfg.StorePath() != filepath.Join(dir, StoreFileName) {
		t.Errorf("store path = %q", cfg.StorePath())
	}
	if cfg.Level() != log.InfoLevel {
		t.Errorf("level = %v", cfg.Level())
	}
}

func TestLoad_FileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
port: "8080"
scan_subnet: true
monitor_interval: 30s
max_attempts: 3
store_name: CORNER SHOP
network_printers:
  - 192.168.1.20
  - 192.168.1.21:9200
printer:
  port: 9100
  auto_cut: false
  feed_mm: 3
`)
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvDataDir, dir)
	t.Setenv(EnvPort, "9000")

	cfg, err := Load([]string{"--headless", "--log-level", "debug"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9000" {
		t.Errorf("env should override file port, got %q", cfg.Port)
	}
	if !cfg.ScanSubnet || !cfg.Headless || cfg.MaxAttempts != 3 {
		t.Errorf("unexpected flags %+v", cfg)
	}
	if cfg.MonitorInterval != 30*time.Second {
		t.Errorf("monitor interval = %v", cfg.MonitorInterval)
	}
	if cfg.Printer.AutoCut || cfg.Printer.FeedMM != 3 || cfg.Printer.DPI != 203 {
		t.Errorf("printer config not merged over defaults: %+v", cfg.Printer)
	}
	if cfg.StoreName != "CORNER SHOP" {
		t.Errorf("store name = %q", cfg.StoreName)
	}
	if cfg.Level() != log.DebugLevel {
		t.Errorf("level = %v", cfg.Level())
	}

	devices, err := cfg.Devices()
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 2 || devices[0].Port != 9100 || devices[1].Port != 9200 {
		t.Errorf("unexpected devices %+v", devices)
	}

	cfg, err = Load([]string{"--port", "7000"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "7000" {
		t.Errorf("flag should override env, got %q", cfg.Port)
	}
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvDataDir, t.TempDir())
	_, err := Load([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	if err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvDataDir, dir)
	t.Setenv(EnvPort, "")

	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "port: [1, 2"},
		{"bad port", `port: "http"`},
		{"bad printer", "network_printers: [\"host:abc\"]"},
		{"zero attempts", "max_attempts: 0"},
		{"bad level", "log_level: loud"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeConfig(t, dir, tt.body)
			_, err := Load(nil)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoad_UnknownFlag(t *testing.T) {
	t.Setenv(EnvDataDir, t.TempDir())
	if _, err := Load([]string{"--bogus"}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}
