package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/boop-box/boopbox-go/pkg/log"
	"github.com/boop-box/boopbox-go/pkg/wire"
)

// Session is one live, authenticated stream to the achievement server.
// It is owned by a single goroutine; methods must not be called concurrently.
type Session struct {
	id       string
	conn     net.Conn
	remote   string
	user     string
	maxAudio uint32
	plog     log.Logger

	closed    atomic.Bool
	closeOnce sync.Once
}

// ID returns the connection ID used in protocol logs.
func (s *Session) ID() string {
	return s.id
}

// RemoteAddr returns the server address (IP:port).
func (s *Session) RemoteAddr() string {
	return s.remote
}

// CheckUID asks which achievements the tag unlocks.
func (s *Session) CheckUID(ctx context.Context, uid wire.UID) (wire.CheckUIDResult, error) {
	var result wire.CheckUIDResult

	req := s.messageEvent(log.DirectionOut, log.MessageTypeRequest, wire.OpCheckUID)
	req.Message.UID = uid.String()
	s.plog.Log(req)

	start := time.Now()
	err := s.exchange(ctx, "check_uid", wire.EncodeCheckUIDRequest(uid), func(r io.Reader) error {
		var err error
		result, err = wire.ReadCheckUIDResponse(r)
		return err
	})
	if err != nil {
		return wire.ErrorResult(), err
	}

	resp := s.messageEvent(log.DirectionIn, log.MessageTypeResponse, wire.OpCheckUID)
	resp.Message.UID = uid.String()
	resp.Message.Result = result.Status.String()
	if result.Status == wire.CheckUIDOk {
		n := len(result.Achievements)
		resp.Message.Count = &n
	}
	latency := time.Since(start)
	resp.Message.Latency = &latency
	s.plog.Log(resp)

	return result, nil
}

// GetAudio fetches the audio for an achievement. The boolean is false when
// the server has none.
func (s *Session) GetAudio(ctx context.Context, id wire.AchievementID) ([]byte, bool, error) {
	var (
		data    []byte
		present bool
	)

	req := s.messageEvent(log.DirectionOut, log.MessageTypeRequest, wire.OpGetAudio)
	req.Message.AchievementID = id.String()
	s.plog.Log(req)

	start := time.Now()
	err := s.exchange(ctx, "get_audio", wire.EncodeGetAudioRequest(id), func(r io.Reader) error {
		var err error
		data, present, err = wire.ReadGetAudioResponse(r, s.maxAudio)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	resp := s.messageEvent(log.DirectionIn, log.MessageTypeResponse, wire.OpGetAudio)
	resp.Message.AchievementID = id.String()
	resp.Message.Result = "Absent"
	if present {
		n := len(data)
		resp.Message.Result = "Present"
		resp.Message.AudioSize = &n
	}
	latency := time.Since(start)
	resp.Message.Latency = &latency
	s.plog.Log(resp)

	return data, present, nil
}

// Keepalive sends a probe and waits for the one-byte reply.
func (s *Session) Keepalive(ctx context.Context) error {
	s.plog.Log(s.controlEvent(log.DirectionOut, log.ControlMsgKeepalive))

	err := s.exchange(ctx, "keepalive", []byte{byte(wire.OpKeepalive)}, wire.ReadKeepaliveResponse)
	if err != nil {
		return err
	}

	s.plog.Log(s.controlEvent(log.DirectionIn, log.ControlMsgKeepaliveReply))
	return nil
}

// Close tears the stream down. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		err = s.conn.Close()
		s.plog.Log(s.controlEvent(log.DirectionOut, log.ControlMsgClose))
	})
	return err
}

// authenticate sends the credential frame and reads the verdict.
func (s *Session) authenticate(frame []byte) (bool, error) {
	out := s.event(log.DirectionOut, log.LayerTransport, log.CategoryMessage)
	out.Frame = log.NewFrameEvent(log.RedactAuth(frame))
	out.Frame.Redacted = true
	s.plog.Log(out)

	if err := s.send(frame); err != nil {
		s.logError("authenticate", err)
		return false, err
	}

	rec := &log.FrameRecorder{}
	accepted, err := wire.ReadAuthResponse(io.TeeReader(s.conn, rec))
	s.logFrameIn(rec)
	if err != nil {
		s.logError("authenticate", err)
		return false, err
	}

	ev := s.messageEvent(log.DirectionIn, log.MessageTypeAuth, 0)
	ev.Message.OpName = "Auth"
	ev.Message.Result = "Rejected"
	if accepted {
		ev.Message.Result = "Accepted"
	}
	s.plog.Log(ev)
	return accepted, nil
}

// exchange writes one request and decodes its full response. Cancelling
// ctx closes the stream, failing any blocked read or write.
func (s *Session) exchange(ctx context.Context, what string, req []byte, decode func(io.Reader) error) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	out := s.event(log.DirectionOut, log.LayerTransport, log.CategoryMessage)
	out.Frame = log.NewFrameEvent(req)
	s.plog.Log(out)

	err := s.send(req)
	if err == nil {
		rec := &log.FrameRecorder{}
		err = decode(io.TeeReader(s.conn, rec))
		s.logFrameIn(rec)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		s.logError(what, err)
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

func (s *Session) send(frame []byte) error {
	n, err := s.conn.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return io.ErrShortWrite
	}
	return nil
}
