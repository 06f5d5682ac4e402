package mcserver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/docker/go-connections/nat"
)

// Probe checks whether the server accepts TCP connections on its game port.
type Probe struct {
	addr    string
	timeout time.Duration
}

// NewProbe parses a port spec like "25565/tcp" or "25565".
func NewProbe(host, portSpec string, timeout time.Duration) (*Probe, error) {
	proto, port := nat.SplitProtoPort(portSpec)
	p, err := nat.NewPort(proto, port)
	if err != nil {
		return nil, fmt.Errorf("parse port %q: %w", portSpec, err)
	}
	if p.Proto() != "tcp" {
		return nil, fmt.Errorf("port %q: only tcp can be probed", portSpec)
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Probe{addr: net.JoinHostPort(host, p.Port()), timeout: timeout}, nil
}

func (p *Probe) Addr() string { return p.addr }

// Ping dials the port and returns how long the handshake took.
func (p *Probe) Ping(ctx context.Context) (time.Duration, error) {
	d := net.Dialer{Timeout: p.timeout}
	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return 0, err
	}
	elapsed := time.Since(start)
	conn.Close()
	return elapsed, nil
}

func (p *Probe) Reachable(ctx context.Context) bool {
	_, err := p.Ping(ctx)
	return err == nil
}
