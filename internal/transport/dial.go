// Package transport: byte-stream channels for a session (TCP, TLS, QUIC) and exact-count I/O.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

// DefaultPort challenge server port.
const DefaultPort = "11000"

// Networks accepted by Dial.
const (
	NetworkTCP  = "tcp"
	NetworkTLS  = "tls"
	NetworkQUIC = "quic"
)

const dialTimeout = 10 * time.Second

// WithDefaultPort appends DefaultPort when addr has no port.
func WithDefaultPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, DefaultPort)
}

// Dial connects to addr over network (tcp, tls, quic). tlsConfig nil = ClientTLS(false).
// Only connection setup is bounded; the returned conn has no deadlines.
func Dial(ctx context.Context, network, addr string, tlsConfig *tls.Config) (net.Conn, error) {
	addr = WithDefaultPort(addr)
	if tlsConfig == nil {
		tlsConfig = ClientTLS(false)
	}
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	switch network {
	case NetworkTCP, "":
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	case NetworkTLS:
		d := tls.Dialer{Config: tlsConfig}
		return d.DialContext(ctx, "tcp", addr)
	case NetworkQUIC:
		return DialStream(ctx, addr, tlsConfig)
	default:
		return nil, fmt.Errorf("unknown transport %q", network)
	}
}
