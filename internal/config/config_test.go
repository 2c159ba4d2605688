package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Plot.WidthPx != 1280 || cfg.Plot.HeightPx != 720 {
		t.Fatalf("unexpected default plot size %dx%d", cfg.Plot.WidthPx, cfg.Plot.HeightPx)
	}
	if cfg.Store.Path != "loadview.db" {
		t.Fatalf("unexpected default store path %q", cfg.Store.Path)
	}
	if cfg.Server.BindPort != 8090 {
		t.Fatalf("unexpected default port %d", cfg.Server.BindPort)
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
plot:
  width_px: 1600
  max_throughput: 100m
  split_throughput: true
server:
  bind_port: 9999
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.Log.Level)
	}
	if cfg.Plot.WidthPx != 1600 {
		t.Fatalf("expected width 1600, got %d", cfg.Plot.WidthPx)
	}
	if cfg.Plot.HeightPx != 720 {
		t.Fatalf("expected defaulted height 720, got %d", cfg.Plot.HeightPx)
	}
	if cfg.Plot.MaxThroughputBps != 100_000_000 {
		t.Fatalf("expected parsed 100m = 1e8 bps, got %d", cfg.Plot.MaxThroughputBps)
	}
	if !cfg.Plot.SplitThroughput {
		t.Fatalf("expected split_throughput true")
	}
	if cfg.Server.BindPort != 9999 {
		t.Fatalf("expected port 9999, got %d", cfg.Server.BindPort)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := []string{
		"plot:\n  width_px: 100000\n",
		"plot:\n  max_throughput: fast\n",
		"server:\n  bind_port: 70000\n",
	}
	for _, body := range cases {
		if _, err := LoadConfig(writeConfig(t, body)); err == nil {
			t.Fatalf("expected error for config %q", body)
		}
	}
}

func TestParseBandwidth(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"100k", 100_000},
		{"2.5m", 2_500_000},
		{"1g", 1_000_000_000},
		{"0", 0},
		{"", 0},
	}
	for _, tc := range cases {
		got, err := ParseBandwidth(tc.in)
		if err != nil {
			t.Fatalf("ParseBandwidth(%q) failed: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseBandwidth(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
	if _, err := ParseBandwidth("100"); err == nil {
		t.Fatalf("expected error for missing suffix")
	}
	if _, err := ParseBandwidth("-1m"); err == nil {
		t.Fatalf("expected error for negative value")
	}
}

func TestDurationUnmarshal(t *testing.T) {
	var cfg struct {
		A Duration `yaml:"a"`
		B Duration `yaml:"b"`
	}
	if err := yaml.Unmarshal([]byte("a: 1.5\nb: 250ms\n"), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cfg.A.Duration() != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s, got %v", cfg.A.Duration())
	}
	if cfg.B.Duration() != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %v", cfg.B.Duration())
	}
}
