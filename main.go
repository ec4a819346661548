package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/doridoridoriand/connwatch/internal/autostart"
	"github.com/doridoridoriand/connwatch/internal/cli"
	"github.com/doridoridoriand/connwatch/internal/clipboard"
	"github.com/doridoridoriand/connwatch/internal/config"
	"github.com/doridoridoriand/connwatch/internal/httpapi"
	"github.com/doridoridoriand/connwatch/internal/journal"
	"github.com/doridoridoriand/connwatch/internal/log"
	"github.com/doridoridoriand/connwatch/internal/ping"
	"github.com/doridoridoriand/connwatch/internal/scheduler"
	"github.com/doridoridoriand/connwatch/internal/ui"
)

const version = "0.1.0"

type flags struct {
	target     cli.Optional[string]
	interval   cli.Optional[time.Duration]
	timeout    cli.Optional[time.Duration]
	history    cli.Optional[int]
	probe      cli.Optional[string]
	listen     cli.Optional[string]
	logDir     cli.Optional[string]
	noUI       cli.Optional[bool]
	configPath string
	version    bool
}

func parseFlags(args []string, output io.Writer) (*flags, error) {
	f := &flags{
		target:   cli.OptionalString(),
		interval: cli.OptionalDuration(),
		timeout:  cli.OptionalDuration(),
		history:  cli.OptionalInt(),
		probe:    cli.OptionalString(),
		listen:   cli.OptionalString(),
		logDir:   cli.OptionalString(),
		noUI:     cli.OptionalBool(),
	}

	fs := flag.NewFlagSet("connwatch", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Var(&f.target, "target", "host to monitor (override config)")
	fs.Var(&f.interval, "interval", "probe interval (override config)")
	fs.Var(&f.interval, "i", "probe interval (override config)")
	fs.Var(&f.timeout, "timeout", "probe timeout (override config)")
	fs.Var(&f.timeout, "t", "probe timeout (override config)")
	fs.Var(&f.history, "history", "number of probes kept in the history (override config)")
	fs.Var(&f.probe, "probe", "probe mode: icmp|exec|tcp")
	fs.Var(&f.listen, "listen", "HTTP control/metrics listen address (e.g. :9100)")
	fs.Var(&f.logDir, "log-dir", "directory for rotated log files")
	fs.Var(&f.noUI, "no-ui", "disable TUI (log only)")
	fs.StringVar(&f.configPath, "config", "", "path to a config file")
	fs.StringVar(&f.configPath, "c", "", "path to a config file")
	fs.BoolVar(&f.version, "version", false, "show version")
	fs.BoolVar(&f.version, "v", false, "show version")

	fs.Usage = func() {
		fmt.Fprintf(output, "usage: connwatch [options] [host]\n\n")
		fmt.Fprintln(output, "Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if rest := fs.Args(); len(rest) > 0 {
		if len(rest) > 1 {
			return nil, fmt.Errorf("unexpected arguments: %v", rest[1:])
		}
		if _, set := f.target.Value(); !set {
			if err := f.target.Set(rest[0]); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

func buildOverrides(f *flags) config.CLIOverrides {
	overrides := config.CLIOverrides{
		Target:      f.target.Ptr(),
		Interval:    f.interval.Ptr(),
		Timeout:     f.timeout.Ptr(),
		HistorySize: f.history.Ptr(),
		Listen:      f.listen.Ptr(),
		LogDir:      f.logDir.Ptr(),
		UIDisable:   f.noUI.Ptr(),
	}
	if v, ok := f.probe.Value(); ok && v != "" {
		mode := ping.Mode(v)
		overrides.ProbeMode = &mode
	}
	return overrides
}

func main() {
	f, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	if f.version {
		fmt.Fprintf(os.Stdout, "connwatch version %s\n", version)
		return
	}
	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "connwatch: %v\n", err)
		os.Exit(1)
	}
}

func run(f *flags) error {
	overrides := buildOverrides(f)
	v := config.NewViper(f.configPath)
	cfg, err := config.Load(v, overrides)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logOpts := log.Options{Dir: cfg.Log.Dir, Level: cfg.Log.Level}
	if !cfg.UI.Disable && logOpts.Dir == "" {
		logOpts.Dir = defaultLogDir()
	}
	logger, err := log.New(logOpts)
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	logger.LogConfigLoad(true, f.configPath, nil)

	pinger, err := ping.New(cfg.Probe.Mode, cfg.Probe.Port)
	if err != nil {
		return err
	}
	sched, err := scheduler.New(cfg.Monitor, pinger, scheduler.WithLogger(logger))
	if err != nil {
		return err
	}
	sched.Subscribe(scheduler.NewTransitionLogger(logger))

	var jr *journal.Journal
	if cfg.Journal.Path != "" {
		if jr, err = journal.Open(cfg.Journal.Path, logger); err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		sched.Subscribe(jr)
	}

	auto := newAutostart(cfg.Autostart.Unit, f.configPath, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sched.Run(gctx) })

	if cfg.HTTP.Listen != "" {
		opts := []httpapi.Option{
			httpapi.WithRateLimit(cfg.HTTP.RatePerSec),
			httpapi.WithAllowedOrigins(cfg.HTTP.AllowedOrigins),
		}
		if auto != nil {
			opts = append(opts, httpapi.WithAutostart(auto))
		}
		if jr != nil {
			opts = append(opts, httpapi.WithJournal(jr))
		}
		srv := httpapi.NewServer(logger.Logger, sched, opts...)
		logger.Info("http_listening", zap.String("addr", cfg.HTTP.Listen))
		g.Go(func() error { return httpapi.Serve(gctx, cfg.HTTP.Listen, srv.Router()) })
	}

	reload := newReloader(sched, cfg.Monitor)
	config.Watch(v, overrides,
		func(next config.Config) {
			if err := reload.apply(next.Monitor); err != nil {
				logger.LogConfigLoad(false, f.configPath, err)
				return
			}
			logger.LogConfigLoad(true, f.configPath, nil)
		},
		func(err error) { logger.LogConfigLoad(false, f.configPath, err) },
	)

	if !cfg.UI.Disable {
		opts := []ui.Option{ui.WithClipboard(clipboard.NewExec()), ui.WithLogger(logger)}
		if auto != nil {
			opts = append(opts, ui.WithAutostart(auto))
		}
		u := ui.New(sched, opts...)
		g.Go(func() error { return u.Run(gctx) })
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Debug("sd_notify_failed", zap.Error(err))
	}
	logger.Info("started",
		zap.String("version", version),
		zap.String("target", cfg.Target),
		zap.Duration("interval", cfg.Interval),
		zap.String("probe", string(cfg.Probe.Mode)),
		zap.String("run_id", jr.RunID()),
	)

	runErr := g.Wait()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
		runErr = nil
	}

	err = multierr.Combine(runErr, jr.Close())
	logger.Info("stopped", zap.Error(err))
	_ = logger.Sync()
	return err
}

type monitorUpdater interface {
	Config() config.Monitor
	UpdateConfig(config.Monitor) error
}

// reloader applies edited config files to the scheduler. A target switched
// at runtime survives edits that leave the file's target unchanged.
type reloader struct {
	mu       sync.Mutex
	sched    monitorUpdater
	fromFile config.Monitor
}

func newReloader(sched monitorUpdater, loaded config.Monitor) *reloader {
	return &reloader{sched: sched, fromFile: loaded}
}

func (r *reloader) apply(next config.Monitor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := next
	if next.Target == r.fromFile.Target {
		want.Target = r.sched.Config().Target
	}
	if err := r.sched.UpdateConfig(want); err != nil {
		return err
	}
	r.fromFile = next
	return nil
}

func newAutostart(unit, configPath string, logger *log.Logger) autostart.Manager {
	exe, err := os.Executable()
	if err != nil {
		logger.LogError("autostart", err)
		return nil
	}
	m, err := autostart.New(autostart.Options{
		Unit:       unit,
		Executable: exe,
		Args:       autostartArgs(configPath),
	})
	if err != nil {
		logger.LogError("autostart", err)
		return nil
	}
	return m
}

// autostartArgs runs headless at login and keeps the same config file.
func autostartArgs(configPath string) []string {
	args := []string{"-no-ui"}
	if configPath == "" {
		return args
	}
	if abs, err := filepath.Abs(configPath); err == nil {
		configPath = abs
	}
	return append(args, "-config", configPath)
}

func defaultLogDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "connwatch", "logs")
}
