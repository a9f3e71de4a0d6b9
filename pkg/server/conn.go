package server

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/boop-box/boopbox-go/pkg/log"
	"github.com/boop-box/boopbox-go/pkg/wire"
)

// serverConn is one device connection.
type serverConn struct {
	id     string
	conn   net.Conn
	remote string
	user   string
	server *Server

	closeOnce sync.Once
}

func (c *serverConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// serve authenticates the device and answers requests until the stream ends.
func (c *serverConn) serve() {
	if !c.authenticate() {
		return
	}

	for {
		c.conn.SetReadDeadline(time.Now().Add(c.server.config.IdleTimeout))
		req, err := wire.ReadRequest(c.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.logError("read request", err)
			}
			return
		}
		c.logRequest(req)

		c.conn.SetWriteDeadline(time.Now().Add(c.server.config.WriteTimeout))
		if err := c.respond(req); err != nil {
			c.logError("write response", err)
			return
		}
	}
}

func (c *serverConn) authenticate() bool {
	c.conn.SetReadDeadline(time.Now().Add(c.server.config.IdleTimeout))
	user, secret, err := wire.ReadAuth(c.conn)
	if err != nil {
		c.logError("read auth", err)
		if errors.Is(err, wire.ErrMalformedAuth) {
			c.conn.SetWriteDeadline(time.Now().Add(c.server.config.WriteTimeout))
			_ = wire.WriteAuthResponse(c.conn, false)
		}
		return false
	}
	c.user = user

	accepted := c.server.config.Catalog.Authenticate(user, secret) == nil
	c.logAuth(accepted)

	c.conn.SetWriteDeadline(time.Now().Add(c.server.config.WriteTimeout))
	if err := wire.WriteAuthResponse(c.conn, accepted); err != nil {
		c.logError("write auth response", err)
		return false
	}
	if !accepted {
		c.server.debugLog("authentication rejected", "user", user, "remote", c.remote)
		return false
	}
	c.logState("CONNECTED", "AUTHENTICATED")
	return true
}

func (c *serverConn) respond(req wire.Request) error {
	switch req.Op {
	case wire.OpCheckUID:
		result := c.checkUID(req.UID)
		c.logCheckUIDResponse(req.UID, result)
		return wire.WriteCheckUIDResponse(c.conn, result)

	case wire.OpGetAudio:
		data, ok := c.server.config.Catalog.Audio(req.AchievementID)
		c.logGetAudioResponse(req.AchievementID, data, ok)
		return wire.WriteGetAudioResponse(c.conn, data, ok)

	default:
		c.logControl(log.DirectionOut, log.ControlMsgKeepaliveReply)
		return wire.WriteKeepaliveResponse(c.conn)
	}
}

// checkUID answers Ok with the tag's achievements, an empty list for unknown
// tags, or Throttled inside the tag's window.
func (c *serverConn) checkUID(uid wire.UID) wire.CheckUIDResult {
	if !c.server.throttle.Allow(uid) {
		return wire.ThrottledResult()
	}
	ids, _ := c.server.config.Catalog.Achievements(uid)
	return wire.OkResult(ids)
}
