package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/doridoridoriand/connwatch/internal/ping"
	"go.uber.org/multierr"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "connwatch.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(NewViper(""), CLIOverrides{})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	want := Default()
	if cfg.Monitor != want.Monitor {
		t.Fatalf("expected defaults %+v, got %+v", want.Monitor, cfg.Monitor)
	}
	if cfg.Probe.Mode != ping.ModeICMP || cfg.Autostart.Unit != "connwatch" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadParsesFile(t *testing.T) {
	path := writeTempConfig(t, ""+
		"target: 1.1.1.1\n"+
		"interval: 2s\n"+
		"timeout: 1500ms\n"+
		"history_size: 30\n"+
		"thresholds:\n"+
		"  good_latency_ms: 80\n"+
		"  questionable_latency_ms: 300\n"+
		"  bad_drop_rate_percent: 5\n"+
		"probe:\n"+
		"  mode: tcp\n"+
		"  port: 53\n"+
		"http:\n"+
		"  listen: 9100\n"+
		"  allowed_origins:\n"+
		"    - http://localhost:3000\n"+
		"journal:\n"+
		"  path: /tmp/connwatch.db\n")

	cfg, err := Load(NewViper(path), CLIOverrides{})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Target != "1.1.1.1" || cfg.Interval != 2*time.Second || cfg.Timeout != 1500*time.Millisecond {
		t.Fatalf("unexpected monitor config %+v", cfg.Monitor)
	}
	if cfg.HistorySize != 30 {
		t.Fatalf("expected history_size 30, got %d", cfg.HistorySize)
	}
	if cfg.Thresholds != (Thresholds{GoodLatencyMs: 80, QuestionableLatencyMs: 300, BadDropRatePercent: 5}) {
		t.Fatalf("unexpected thresholds %+v", cfg.Thresholds)
	}
	if cfg.Probe.Mode != ping.ModeTCP || cfg.Probe.Port != 53 {
		t.Fatalf("unexpected probe options %+v", cfg.Probe)
	}
	if cfg.HTTP.Listen != ":9100" {
		t.Fatalf("expected listen :9100, got %q", cfg.HTTP.Listen)
	}
	if len(cfg.HTTP.AllowedOrigins) != 1 || cfg.HTTP.AllowedOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected allowed origins %v", cfg.HTTP.AllowedOrigins)
	}
	if cfg.Journal.Path != "/tmp/connwatch.db" {
		t.Fatalf("unexpected journal path %q", cfg.Journal.Path)
	}
}

func TestLoadAppliesEnv(t *testing.T) {
	t.Setenv("CONNWATCH_TARGET", "example.net")
	t.Setenv("CONNWATCH_THRESHOLDS_GOOD_LATENCY_MS", "50")

	cfg, err := Load(NewViper(""), CLIOverrides{})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Target != "example.net" {
		t.Fatalf("expected env target, got %q", cfg.Target)
	}
	if cfg.Thresholds.GoodLatencyMs != 50 {
		t.Fatalf("expected env threshold 50, got %d", cfg.Thresholds.GoodLatencyMs)
	}
}

func TestLoadAppliesCLIOverrides(t *testing.T) {
	path := writeTempConfig(t, "target: 1.1.1.1\ninterval: 2s\n")

	target := " 9.9.9.9 "
	interval := 10 * time.Second
	history := 5
	mode := ping.ModeExec
	listen := "8080"
	noUI := true
	cfg, err := Load(NewViper(path), CLIOverrides{
		Target:      &target,
		Interval:    &interval,
		HistorySize: &history,
		ProbeMode:   &mode,
		Listen:      &listen,
		UIDisable:   &noUI,
	})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Target != "9.9.9.9" || cfg.Interval != interval || cfg.HistorySize != 5 {
		t.Fatalf("overrides not applied: %+v", cfg.Monitor)
	}
	if cfg.Probe.Mode != ping.ModeExec || cfg.HTTP.Listen != ":8080" || !cfg.UI.Disable {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := writeTempConfig(t, "interval: notaduration\n")
	if _, err := Load(NewViper(path), CLIOverrides{}); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := Load(NewViper(path), CLIOverrides{}); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Target = "  "
	cfg.Interval = 0
	cfg.HistorySize = 0
	cfg.Thresholds.BadDropRatePercent = 101
	cfg.Probe.Mode = "smoke-signal"

	err := Validate(cfg)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if got := len(multierr.Errors(err)); got != 5 {
		t.Fatalf("expected 5 errors, got %d: %v", got, err)
	}
	if !errors.Is(err, ErrEmptyTarget) {
		t.Fatalf("expected ErrEmptyTarget in %v", err)
	}
}

func TestValidateThresholdOrder(t *testing.T) {
	m := Default().Monitor
	m.Thresholds.QuestionableLatencyMs = m.Thresholds.GoodLatencyMs - 1
	err := ValidateMonitor(m)
	if err == nil || !strings.Contains(err.Error(), "questionable_latency_ms") {
		t.Fatalf("expected threshold order error, got %v", err)
	}
}

func TestValidateTCPPort(t *testing.T) {
	cfg := Default()
	cfg.Probe = ProbeOptions{Mode: ping.ModeTCP, Port: 0}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected port error")
	}
}

func TestThresholdsState(t *testing.T) {
	th := Thresholds{GoodLatencyMs: 1, QuestionableLatencyMs: 2, BadDropRatePercent: 3}
	got := th.State()
	if got.GoodLatencyMs != 1 || got.QuestionableLatencyMs != 2 || got.BadDropRatePercent != 3 {
		t.Fatalf("unexpected conversion %+v", got)
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := writeTempConfig(t, "target: 1.1.1.1\n")
	v := NewViper(path)
	if _, err := Load(v, CLIOverrides{}); err != nil {
		t.Fatalf("Load error: %v", err)
	}

	changes := make(chan Config, 4)
	Watch(v, CLIOverrides{}, func(cfg Config) { changes <- cfg }, func(error) {})

	// give the watcher goroutine a moment to register
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("target: 8.8.4.4\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.Target == "8.8.4.4" {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for reload")
		}
	}
}
