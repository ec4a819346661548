//go:build !linux

package autostart

import "context"

type unsupported struct{}

// New returns a manager that always reports ErrUnsupported.
func New(opts Options) (Manager, error) {
	return unsupported{}, nil
}

func (unsupported) Enabled(ctx context.Context) (bool, error) {
	return false, ErrUnsupported
}

func (unsupported) SetEnabled(ctx context.Context, enabled bool) error {
	return ErrUnsupported
}
