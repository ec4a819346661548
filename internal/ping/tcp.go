package ping

import (
	"context"
	"net"
	"strconv"
	"time"
)

// DefaultTCPPort is dialed when the target carries no port.
const DefaultTCPPort = 443

// TCPPinger measures the time to complete a TCP handshake. It works where
// ICMP is filtered or sockets are restricted.
type TCPPinger struct {
	port   int
	dialer net.Dialer
}

// NewTCPPinger returns a pinger dialing port unless the address names one.
func NewTCPPinger(port int) *TCPPinger {
	if port <= 0 || port > 65535 {
		port = DefaultTCPPort
	}
	return &TCPPinger{port: port}
}

// Ping dials addr and closes the connection as soon as it is established.
func (p *TCPPinger) Ping(ctx context.Context, addr string, timeout time.Duration) Result {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	conn, err := p.dialer.DialContext(dialCtx, "tcp", p.hostPort(addr))
	if err != nil {
		return Result{Error: err}
	}
	rtt := time.Since(start)
	_ = conn.Close()
	return Result{Success: true, RTT: rtt}
}

func (p *TCPPinger) hostPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(p.port))
}
