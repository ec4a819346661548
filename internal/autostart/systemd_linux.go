//go:build linux

package autostart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/coreos/go-systemd/v22/unit"
)

// unitBus is the subset of the systemd D-Bus API used here.
type unitBus interface {
	EnableUnitFilesContext(ctx context.Context, files []string, runtime bool, force bool) (bool, []dbus.EnableUnitFileChange, error)
	DisableUnitFilesContext(ctx context.Context, files []string, runtime bool) ([]dbus.DisableUnitFileChange, error)
	ListUnitFilesByPatternsContext(ctx context.Context, states []string, patterns []string) ([]dbus.UnitFile, error)
	ReloadContext(ctx context.Context) error
	Close()
}

// Systemd manages a systemd user unit under ~/.config/systemd/user.
type Systemd struct {
	opts Options
	dir  string
	dial func(ctx context.Context) (unitBus, error)
}

// New returns the systemd user-unit manager.
func New(opts Options) (Manager, error) {
	if opts.Unit == "" {
		return nil, fmt.Errorf("autostart: unit name is required")
	}
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("autostart: %w", err)
	}
	return &Systemd{
		opts: opts,
		dir:  filepath.Join(cfgDir, "systemd", "user"),
		dial: dialUser,
	}, nil
}

func dialUser(ctx context.Context) (unitBus, error) {
	conn, err := dbus.NewUserConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to user systemd: %w", err)
	}
	return conn, nil
}

func (s *Systemd) unitName() string {
	return s.opts.Unit + ".service"
}

func (s *Systemd) unitPath() string {
	return filepath.Join(s.dir, s.unitName())
}

// Enabled reports whether the unit file is enabled.
func (s *Systemd) Enabled(ctx context.Context) (bool, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	name := s.unitName()
	files, err := conn.ListUnitFilesByPatternsContext(ctx, nil, []string{name})
	if err != nil {
		return false, fmt.Errorf("list unit files: %w", err)
	}
	for _, f := range files {
		if f.Path == name || strings.HasSuffix(f.Path, "/"+name) {
			return f.Type == "enabled", nil
		}
	}
	return false, nil
}

// SetEnabled writes and enables the unit, or disables and removes it.
func (s *Systemd) SetEnabled(ctx context.Context, enabled bool) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if enabled {
		if err := s.writeUnit(); err != nil {
			return err
		}
		if err := conn.ReloadContext(ctx); err != nil {
			return fmt.Errorf("daemon-reload: %w", err)
		}
		if _, _, err := conn.EnableUnitFilesContext(ctx, []string{s.unitName()}, false, true); err != nil {
			return fmt.Errorf("enable %s: %w", s.unitName(), err)
		}
		return nil
	}

	if _, err := conn.DisableUnitFilesContext(ctx, []string{s.unitName()}, false); err != nil {
		return fmt.Errorf("disable %s: %w", s.unitName(), err)
	}
	if err := os.Remove(s.unitPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove unit file: %w", err)
	}
	if err := conn.ReloadContext(ctx); err != nil {
		return fmt.Errorf("daemon-reload: %w", err)
	}
	return nil
}

func (s *Systemd) writeUnit() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create unit dir: %w", err)
	}
	content, err := io.ReadAll(unit.Serialize(s.unitOptions()))
	if err != nil {
		return fmt.Errorf("serialize unit: %w", err)
	}
	if err := os.WriteFile(s.unitPath(), content, 0o644); err != nil {
		return fmt.Errorf("write unit file: %w", err)
	}
	return nil
}

func (s *Systemd) unitOptions() []*unit.UnitOption {
	return []*unit.UnitOption{
		unit.NewUnitOption("Unit", "Description", "connwatch connectivity monitor"),
		unit.NewUnitOption("Unit", "After", "network-online.target"),
		unit.NewUnitOption("Service", "Type", "notify"),
		unit.NewUnitOption("Service", "ExecStart", execLine(s.opts.Executable, s.opts.Args)),
		unit.NewUnitOption("Service", "Restart", "on-failure"),
		unit.NewUnitOption("Install", "WantedBy", "default.target"),
	}
}

func execLine(exe string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	for _, p := range append([]string{exe}, args...) {
		if strings.ContainsAny(p, " \t\"\\") {
			p = strconv.Quote(p)
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, " ")
}
