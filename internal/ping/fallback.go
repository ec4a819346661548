package ping

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"syscall"
	"time"
)

// FallbackPinger delegates to primary until it reports a permission error,
// then sticks with secondary for the rest of the process lifetime.
type FallbackPinger struct {
	primary   Pinger
	secondary Pinger
	degraded  atomic.Bool
}

// NewFallbackPinger wraps primary with a secondary fallback.
func NewFallbackPinger(primary, secondary Pinger) *FallbackPinger {
	return &FallbackPinger{primary: primary, secondary: secondary}
}

// Ping uses the primary pinger and falls back on permission-related errors.
func (p *FallbackPinger) Ping(ctx context.Context, addr string, timeout time.Duration) Result {
	if p.degraded.Load() {
		return p.secondary.Ping(ctx, addr, timeout)
	}
	result := p.primary.Ping(ctx, addr, timeout)
	if result.Success || !isPermissionError(result.Error) {
		return result
	}
	p.degraded.Store(true)
	return p.secondary.Ping(ctx, addr, timeout)
}

// Degraded reports whether the secondary pinger has taken over.
func (p *FallbackPinger) Degraded() bool {
	return p.degraded.Load()
}

func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.EACCES) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "operation not permitted") || strings.Contains(msg, "permission denied")
}
