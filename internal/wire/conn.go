package wire

import (
	"bufio"
	"fmt"
	"net"
	"time"
)

// Conn wraps a net.Conn with buffered frame reads and per-call
// read/write deadlines, the shared transport for both the Remote
// Protocol (C6) and the Raft RPC transport (C5) — see DESIGN.md's
// dropped-grpc note.
type Conn struct {
	nc     net.Conn
	reader *bufio.Reader
}

// NewConn wraps an already-established net.Conn.
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc, reader: bufio.NewReader(nc)}
}

// Dial opens a new connection to addr with a connect timeout.
func Dial(network, addr string, timeout time.Duration) (*Conn, error) {
	nc, err := net.DialTimeout(network, addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("wire: dial %s: %w", addr, err)
	}
	return NewConn(nc), nil
}

// Send writes a frame, honoring the given write deadline.
func (c *Conn) Send(f Frame, timeout time.Duration) error {
	if timeout > 0 {
		if err := c.nc.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return fmt.Errorf("wire: set write deadline: %w", err)
		}
	}
	return WriteFrame(c.nc, f)
}

// Recv reads the next frame, honoring the given read deadline.
func (c *Conn) Recv(timeout time.Duration) (Frame, error) {
	if timeout > 0 {
		if err := c.nc.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return Frame{}, fmt.Errorf("wire: set read deadline: %w", err)
		}
	}
	return ReadFrame(c.reader)
}

// Close tears down the underlying connection.
func (c *Conn) Close() error {
	return c.nc.Close()
}

// RemoteAddr returns the peer address, used for logging.
func (c *Conn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}
