package ping

import (
	"context"
	"fmt"
	"time"
)

// Result captures a single probe result.
type Result struct {
	RTT     time.Duration
	Success bool
	Error   error
}

// Pinger sends a single probe and returns the result. Implementations must
// give up once timeout elapses or ctx is done.
type Pinger interface {
	Ping(ctx context.Context, addr string, timeout time.Duration) Result
}

// Mode selects the probing mechanism.
type Mode string

const (
	ModeICMP Mode = "icmp"
	ModeExec Mode = "exec"
	ModeTCP  Mode = "tcp"
)

// New builds the pinger for mode. ICMP falls back to the system ping
// command when sockets are not permitted.
func New(mode Mode, tcpPort int) (Pinger, error) {
	switch mode {
	case ModeICMP, "":
		icmpPinger, err := NewICMPPinger()
		if err != nil {
			return nil, err
		}
		return NewFallbackPinger(icmpPinger, NewExternalPinger()), nil
	case ModeExec:
		return NewExternalPinger(), nil
	case ModeTCP:
		return NewTCPPinger(tcpPort), nil
	default:
		return nil, fmt.Errorf("unknown probe mode %q", mode)
	}
}
