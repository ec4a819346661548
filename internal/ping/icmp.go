package ping

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const echoPayload = "connwatch"

// ICMPPinger sends ICMP echo requests. It prefers unprivileged datagram
// sockets and falls back to raw sockets.
type ICMPPinger struct {
	id  int
	seq uint32
}

// NewICMPPinger initializes a pinger with a process-scoped identifier.
func NewICMPPinger() (*ICMPPinger, error) {
	return &ICMPPinger{id: os.Getpid() & 0xffff}, nil
}

type icmpFamily struct {
	datagramNetwork string
	rawNetwork      string
	protocol        int
	request         icmp.Type
	reply           icmp.Type
}

var (
	familyV4 = icmpFamily{"udp4", "ip4:icmp", ipv4.ICMPTypeEcho.Protocol(), ipv4.ICMPTypeEcho, ipv4.ICMPTypeEchoReply}
	familyV6 = icmpFamily{"udp6", "ip6:ipv6-icmp", ipv6.ICMPTypeEchoRequest.Protocol(), ipv6.ICMPTypeEchoRequest, ipv6.ICMPTypeEchoReply}
)

// Ping sends one echo request and waits for the matching reply.
func (p *ICMPPinger) Ping(ctx context.Context, addr string, timeout time.Duration) Result {
	if err := ctx.Err(); err != nil {
		return Result{Error: err}
	}

	ipAddr, err := resolveIP(ctx, addr)
	if err != nil {
		return Result{Error: err}
	}
	family := familyV6
	if ipAddr.IP.To4() != nil {
		family = familyV4
	}

	var (
		conn     *icmp.PacketConn
		dst      net.Addr
		datagram bool
	)
	if conn, err = icmp.ListenPacket(family.datagramNetwork, ""); err == nil {
		dst, datagram = &net.UDPAddr{IP: ipAddr.IP, Zone: ipAddr.Zone}, true
	} else if conn, err = icmp.ListenPacket(family.rawNetwork, ""); err == nil {
		dst = ipAddr
	} else {
		return Result{Error: err}
	}
	defer conn.Close()

	seq := int(atomic.AddUint32(&p.seq, 1) & 0xffff)
	msg := icmp.Message{
		Type: family.request,
		Body: &icmp.Echo{ID: p.id, Seq: seq, Data: []byte(echoPayload)},
	}
	payload, err := msg.Marshal(nil)
	if err != nil {
		return Result{Error: err}
	}

	if err := conn.SetDeadline(effectiveDeadline(ctx, timeout)); err != nil {
		return Result{Error: err}
	}

	start := time.Now()
	if _, err := conn.WriteTo(payload, dst); err != nil {
		return Result{Error: err}
	}

	buf := make([]byte, 1500)
	for {
		if err := ctx.Err(); err != nil {
			return Result{Error: err}
		}
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return Result{Error: fmt.Errorf("ping timeout: %w", err)}
			}
			return Result{Error: err}
		}
		reply, err := icmp.ParseMessage(family.protocol, buf[:n])
		if err != nil || reply.Type != family.reply {
			continue
		}
		body, ok := reply.Body.(*icmp.Echo)
		if !ok || body.Seq != seq {
			continue
		}
		// the kernel rewrites the echo id on datagram sockets
		if !datagram && body.ID != p.id {
			continue
		}
		return Result{Success: true, RTT: time.Since(start)}
	}
}

func resolveIP(ctx context.Context, addr string) (*net.IPAddr, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, addr)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 || addrs[0].IP == nil {
		return nil, fmt.Errorf("invalid IP address: %s", addr)
	}
	for _, a := range addrs {
		if a.IP.To4() != nil {
			return &a, nil
		}
	}
	return &addrs[0], nil
}

func effectiveDeadline(ctx context.Context, timeout time.Duration) time.Time {
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		return ctxDeadline
	}
	return deadline
}
