// Package wire frames newline-terminated JSON messages over a TCP
// connection and supports an in-place TLS upgrade of that same connection,
// the way a STARTTLS-style handshake works: no new connection is opened,
// no framing is lost, the existing socket just starts speaking TLS.
package wire

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

const (
	dialTimeout  = 10 * time.Second
	maxFrameSize = 1 << 20 // 1 MiB; generous headroom over the 250-byte filename limit
)

// Conn is a framed, optionally-TLS-upgraded line connection. It is safe
// for one reader and one writer goroutine to use concurrently; Upgrade
// must not race with either.
type Conn struct {
	mu     sync.Mutex
	raw    net.Conn
	reader *bufio.Scanner
	writer *bufio.Writer
}

// Dial opens a TCP connection to host:port. Both DNS hostnames and IP
// literals (including bracketed IPv6) are accepted via net.Dial.
func Dial(ctx context.Context, host string, port int) (*Conn, error) {
	d := net.Dialer{Timeout: dialTimeout}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("wire: dial %s: %w", addr, err)
	}
	return newConn(raw), nil
}

func newConn(raw net.Conn) *Conn {
	scanner := bufio.NewScanner(raw)
	scanner.Buffer(make([]byte, 0, 4096), maxFrameSize)
	return &Conn{
		raw:    raw,
		reader: scanner,
		writer: bufio.NewWriter(raw),
	}
}

// UpgradeTLS performs a TLS handshake over the existing socket using the
// system trust store, returning the negotiated protocol version string
// (e.g. "TLS 1.3"). No bytes are buffered or discarded across the upgrade:
// the scanner and writer are rebuilt against the new tls.Conn, which wraps
// (not replaces) the original net.Conn.
func (c *Conn) UpgradeTLS(serverName string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg := &tls.Config{ServerName: serverName, MinVersion: tls.VersionTLS12}
	tlsConn := tls.Client(c.raw, cfg)
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		return "", fmt.Errorf("wire: tls handshake: %w", err)
	}

	c.raw = tlsConn
	scanner := bufio.NewScanner(tlsConn)
	scanner.Buffer(make([]byte, 0, 4096), maxFrameSize)
	c.reader = scanner
	c.writer = bufio.NewWriter(tlsConn)

	return tlsVersionName(tlsConn.ConnectionState().Version), nil
}

func tlsVersionName(v uint16) string {
	switch v {
	case tls.VersionTLS13:
		return "TLS 1.3"
	case tls.VersionTLS12:
		return "TLS 1.2"
	default:
		return "TLS"
	}
}

// ReadFrame blocks for the next newline-terminated line and returns its
// bytes without the trailing newline. When the peer closes the connection
// it returns a wrapped "connection closed" error (not io.EOF).
func (c *Conn) ReadFrame() ([]byte, error) {
	if c.reader.Scan() {
		line := c.reader.Bytes()
		out := make([]byte, len(line))
		copy(out, line)
		return out, nil
	}
	if err := c.reader.Err(); err != nil {
		return nil, fmt.Errorf("wire: read: %w", err)
	}
	return nil, fmt.Errorf("wire: read: %w", errClosed)
}

var errClosed = fmt.Errorf("connection closed")

// WriteFrame writes payload followed by a single newline and flushes.
// A write failure leaves the connection in a failed state; the caller is
// expected to close it and let reconnect take over.
func (c *Conn) WriteFrame(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.writer.Write(payload); err != nil {
		return fmt.Errorf("wire: write: %w", err)
	}
	if err := c.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("wire: write: %w", err)
	}
	return c.writer.Flush()
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.raw.Close()
}

// SetDeadline forwards to the underlying connection. The session's idle
// watchdog does not use it; it closes the connection instead.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.raw.SetDeadline(t)
}
