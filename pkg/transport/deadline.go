package transport

import (
	"net"
	"time"
)

// deadlineConn arms a fresh deadline before every Read and Write, bounding
// each I/O call independently.
type deadlineConn struct {
	net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func newDeadlineConn(c net.Conn, read, write time.Duration) *deadlineConn {
	return &deadlineConn{Conn: c, readTimeout: read, writeTimeout: write}
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if c.readTimeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(p)
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(p)
}
