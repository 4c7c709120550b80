package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

// ALPN for challenge/response over QUIC and TLS.
const ALPN = "chalresp"

// streamConn wraps quic.Stream as net.Conn; one stream carries one session.
type streamConn struct {
	*quic.Stream
	conn *quic.Conn

	// linger: accepted side waits for the peer to close so the last frame is delivered.
	linger time.Duration
}

func (c *streamConn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *streamConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Close closes the stream, then the connection.
func (c *streamConn) Close() error {
	err := c.Stream.Close()
	if c.linger > 0 {
		go func() {
			select {
			case <-c.conn.Context().Done():
			case <-time.After(c.linger):
			}
			_ = c.conn.CloseWithError(0, "")
		}()
		return err
	}
	_ = c.conn.CloseWithError(0, "")
	return err
}

// ClientTLS TLS for QUIC/TLS client; insecure = skip verify.
func ClientTLS(insecure bool) *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: insecure,
		MinVersion:         tls.VersionTLS12,
		NextProtos:         []string{ALPN},
	}
}

func quicConfig() *quic.Config {
	return &quic.Config{MaxIdleTimeout: 30 * time.Second}
}

// DialStream dials QUIC to addr, opens one stream, returns net.Conn.
func DialStream(ctx context.Context, addr string, tlsConfig *tls.Config) (net.Conn, error) {
	if tlsConfig == nil {
		tlsConfig = ClientTLS(false)
	}
	conn, err := quic.DialAddr(ctx, addr, tlsConfig, quicConfig())
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "")
		return nil, err
	}
	return &streamConn{Stream: stream, conn: conn}, nil
}

// QUICListener accepts one stream per QUIC connection as net.Conn.
type QUICListener struct {
	ln *quic.Listener
}

// ListenQUIC listens on addr; tlsConfig needs Certificates.
func ListenQUIC(addr string, tlsConfig *tls.Config) (*QUICListener, error) {
	if tlsConfig == nil {
		return nil, errors.New("quic: tls config required")
	}
	tlsConfig = tlsConfig.Clone()
	tlsConfig.NextProtos = []string{ALPN}
	ln, err := quic.ListenAddr(addr, tlsConfig, quicConfig())
	if err != nil {
		return nil, err
	}
	return &QUICListener{ln: ln}, nil
}

// Accept waits for a connection and its first stream.
func (l *QUICListener) Accept(ctx context.Context) (net.Conn, error) {
	conn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "")
		return nil, err
	}
	return &streamConn{Stream: stream, conn: conn, linger: 5 * time.Second}, nil
}

// Addr listening address.
func (l *QUICListener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting.
func (l *QUICListener) Close() error { return l.ln.Close() }
