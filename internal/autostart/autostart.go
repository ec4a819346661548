package autostart

import (
	"context"
	"errors"
)

// ErrUnsupported is returned on platforms without a login-start mechanism.
var ErrUnsupported = errors.New("autostart: unsupported on this platform")

// Manager registers connwatch to start when the user logs in.
type Manager interface {
	Enabled(ctx context.Context) (bool, error)
	SetEnabled(ctx context.Context, enabled bool) error
}

// Options describes the command started at login.
type Options struct {
	// Unit is the service name without the ".service" suffix.
	Unit       string
	Executable string
	Args       []string
}

// Toggle flips the registration and returns the new state.
func Toggle(ctx context.Context, m Manager) (bool, error) {
	enabled, err := m.Enabled(ctx)
	if err != nil {
		return false, err
	}
	if err := m.SetEnabled(ctx, !enabled); err != nil {
		return enabled, err
	}
	return !enabled, nil
}
