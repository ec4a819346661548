package ping

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"time"
)

var rttPattern = regexp.MustCompile(`time[=<]([0-9.]+)\s*ms`)

// ExternalPinger runs the system ping command for environments without
// socket access.
type ExternalPinger struct {
	binary string
}

// NewExternalPinger returns a pinger that shells out to ping.
func NewExternalPinger() *ExternalPinger {
	return &ExternalPinger{binary: "ping"}
}

// Ping runs a single echo and parses the RTT from the command output.
func (p *ExternalPinger) Ping(ctx context.Context, addr string, timeout time.Duration) Result {
	cmdCtx, cancel := context.WithTimeout(ctx, timeout+500*time.Millisecond)
	defer cancel()

	start := time.Now()
	out, err := exec.CommandContext(cmdCtx, p.binary, pingArgs(runtime.GOOS, addr, timeout)...).CombinedOutput()
	if err != nil {
		if ctxErr := cmdCtx.Err(); ctxErr != nil {
			return Result{Error: fmt.Errorf("external ping timeout: %w", ctxErr)}
		}
		return Result{Error: fmt.Errorf("external ping failed: %w", err)}
	}
	rtt, ok := parseRTT(out)
	if !ok {
		rtt = time.Since(start)
	}
	return Result{Success: true, RTT: rtt}
}

func pingArgs(goos, addr string, timeout time.Duration) []string {
	switch goos {
	case "windows":
		timeoutMs := max(1, int(timeout.Milliseconds()))
		return []string{"-n", "1", "-w", strconv.Itoa(timeoutMs), addr}
	case "darwin":
		timeoutMs := max(100, int(timeout.Milliseconds()))
		return []string{"-n", "-c", "1", "-W", strconv.Itoa(timeoutMs), addr}
	default:
		timeoutSec := max(1, int(timeout.Seconds()+0.5))
		return []string{"-n", "-c", "1", "-W", strconv.Itoa(timeoutSec), addr}
	}
}

func parseRTT(output []byte) (time.Duration, bool) {
	matches := rttPattern.FindSubmatch(output)
	if len(matches) < 2 {
		return 0, false
	}
	value, err := strconv.ParseFloat(string(matches[1]), 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(value * float64(time.Millisecond)), true
}
