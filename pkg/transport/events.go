package transport

import (
	"time"

	"github.com/boop-box/boopbox-go/pkg/log"
	"github.com/boop-box/boopbox-go/pkg/wire"
)

func (s *Session) event(dir log.Direction, layer log.Layer, cat log.Category) log.Event {
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.id,
		Direction:    dir,
		Layer:        layer,
		Category:     cat,
		LocalRole:    log.RoleDevice,
		RemoteAddr:   s.remote,
		User:         s.user,
	}
}

func (s *Session) messageEvent(dir log.Direction, typ log.MessageType, op wire.Opcode) log.Event {
	e := s.event(dir, log.LayerWire, log.CategoryMessage)
	e.Message = &log.MessageEvent{
		Type:   typ,
		Opcode: uint8(op),
		OpName: op.String(),
	}
	return e
}

func (s *Session) controlEvent(dir log.Direction, typ log.ControlMsgType) log.Event {
	e := s.event(dir, log.LayerTransport, log.CategoryControl)
	e.ControlMsg = &log.ControlMsgEvent{Type: typ}
	return e
}

func (s *Session) logFrameIn(rec *log.FrameRecorder) {
	if rec.Len() == 0 {
		return
	}
	e := s.event(log.DirectionIn, log.LayerTransport, log.CategoryMessage)
	e.Frame = rec.FrameEvent()
	s.plog.Log(e)
}

func (s *Session) logError(what string, err error) {
	e := s.event(log.DirectionIn, log.LayerTransport, log.CategoryError)
	e.Error = &log.ErrorEventData{
		Layer:   log.LayerTransport,
		Message: err.Error(),
		Context: what,
	}
	s.plog.Log(e)
}
