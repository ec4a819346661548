package autostart

import (
	"context"
	"errors"
	"testing"
)

type memoryManager struct {
	enabled bool
	err     error
}

func (m *memoryManager) Enabled(ctx context.Context) (bool, error) {
	return m.enabled, m.err
}

func (m *memoryManager) SetEnabled(ctx context.Context, enabled bool) error {
	if m.err != nil {
		return m.err
	}
	m.enabled = enabled
	return nil
}

func TestToggle(t *testing.T) {
	m := &memoryManager{}
	got, err := Toggle(context.Background(), m)
	if err != nil || !got || !m.enabled {
		t.Fatalf("expected enabled, got %v %v", got, err)
	}
	got, err = Toggle(context.Background(), m)
	if err != nil || got || m.enabled {
		t.Fatalf("expected disabled, got %v %v", got, err)
	}
}

func TestToggleError(t *testing.T) {
	m := &memoryManager{err: ErrUnsupported}
	if _, err := Toggle(context.Background(), m); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
