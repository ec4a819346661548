package main

import (
	"errors"
	"flag"
	"io"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/doridoridoriand/connwatch/internal/config"
	"github.com/doridoridoriand/connwatch/internal/ping"
)

func TestBuildOverrides(t *testing.T) {
	f, err := parseFlags([]string{
		"-target", "example.org",
		"-i", "2s",
		"-timeout", "1s",
		"-history", "30",
		"-probe", "tcp",
		"-listen", ":9100",
		"-log-dir", "/tmp/cw",
		"-no-ui",
	}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	o := buildOverrides(f)

	if o.Target == nil || *o.Target != "example.org" {
		t.Fatalf("unexpected target %v", o.Target)
	}
	if o.Interval == nil || *o.Interval != 2*time.Second {
		t.Fatalf("unexpected interval %v", o.Interval)
	}
	if o.Timeout == nil || *o.Timeout != time.Second {
		t.Fatalf("unexpected timeout %v", o.Timeout)
	}
	if o.HistorySize == nil || *o.HistorySize != 30 {
		t.Fatalf("unexpected history %v", o.HistorySize)
	}
	if o.ProbeMode == nil || *o.ProbeMode != ping.ModeTCP {
		t.Fatalf("unexpected probe mode %v", o.ProbeMode)
	}
	if o.Listen == nil || *o.Listen != ":9100" {
		t.Fatalf("unexpected listen %v", o.Listen)
	}
	if o.LogDir == nil || *o.LogDir != "/tmp/cw" {
		t.Fatalf("unexpected log dir %v", o.LogDir)
	}
	if o.UIDisable == nil || !*o.UIDisable {
		t.Fatalf("unexpected no-ui %v", o.UIDisable)
	}
}

func TestBuildOverridesEmpty(t *testing.T) {
	f, err := parseFlags(nil, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	o := buildOverrides(f)
	if o.Target != nil || o.Interval != nil || o.Timeout != nil || o.HistorySize != nil ||
		o.ProbeMode != nil || o.Listen != nil || o.LogDir != nil || o.UIDisable != nil {
		t.Fatalf("expected no overrides, got %+v", o)
	}
}

func TestParseFlagsPositionalHost(t *testing.T) {
	f, err := parseFlags([]string{"-c", "conf.yaml", "192.0.2.1"}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if v, ok := f.target.Value(); !ok || v != "192.0.2.1" {
		t.Fatalf("unexpected target %q %v", v, ok)
	}
	if f.configPath != "conf.yaml" {
		t.Fatalf("unexpected config path %q", f.configPath)
	}

	// An explicit -target wins over the positional host.
	f, err = parseFlags([]string{"-target", "a", "b"}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if v, _ := f.target.Value(); v != "a" {
		t.Fatalf("expected -target to win, got %q", v)
	}

	if _, err := parseFlags([]string{"a", "b"}, io.Discard); err == nil {
		t.Fatalf("expected error for extra arguments")
	}
}

func TestParseFlagsErrors(t *testing.T) {
	if _, err := parseFlags([]string{"-interval", "soon"}, io.Discard); err == nil {
		t.Fatalf("expected error for bad duration")
	}
	if _, err := parseFlags([]string{"-h"}, io.Discard); !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("expected flag.ErrHelp, got %v", err)
	}
}

func TestParseFlagsVersion(t *testing.T) {
	f, err := parseFlags([]string{"-v"}, io.Discard)
	if err != nil || !f.version {
		t.Fatalf("expected version flag, got %v %v", f, err)
	}
}

func TestAutostartArgs(t *testing.T) {
	if got := autostartArgs(""); !reflect.DeepEqual(got, []string{"-no-ui"}) {
		t.Fatalf("unexpected args %v", got)
	}
	abs, err := filepath.Abs("conf.yaml")
	if err != nil {
		t.Fatalf("Abs: %v", err)
	}
	want := []string{"-no-ui", "-config", abs}
	if got := autostartArgs("conf.yaml"); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

type fakeUpdater struct {
	cfg     config.Monitor
	updates []config.Monitor
	err     error
}

func (f *fakeUpdater) Config() config.Monitor { return f.cfg }

func (f *fakeUpdater) UpdateConfig(m config.Monitor) error {
	if f.err != nil {
		return f.err
	}
	f.cfg = m
	f.updates = append(f.updates, m)
	return nil
}

func TestReloaderKeepsRuntimeTarget(t *testing.T) {
	loaded := config.Default().Monitor
	sched := &fakeUpdater{cfg: loaded}
	r := newReloader(sched, loaded)

	// switched from the UI or the API
	sched.cfg.Target = "runtime.example"

	edited := loaded
	edited.Interval = 10 * time.Second
	if err := r.apply(edited); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if sched.cfg.Target != "runtime.example" {
		t.Fatalf("unrelated edit reverted target to %q", sched.cfg.Target)
	}
	if sched.cfg.Interval != 10*time.Second {
		t.Fatalf("interval not applied: %v", sched.cfg.Interval)
	}

	edited.Target = "file.example"
	if err := r.apply(edited); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if sched.cfg.Target != "file.example" {
		t.Fatalf("expected file target to win after it changed, got %q", sched.cfg.Target)
	}
}

func TestReloaderKeepsPreviousFileOnError(t *testing.T) {
	loaded := config.Default().Monitor
	sched := &fakeUpdater{cfg: loaded, err: errors.New("invalid")}
	r := newReloader(sched, loaded)

	edited := loaded
	edited.Target = "file.example"
	if err := r.apply(edited); err == nil {
		t.Fatalf("expected error")
	}
	if r.fromFile.Target != loaded.Target {
		t.Fatalf("rejected file was remembered: %q", r.fromFile.Target)
	}
}
