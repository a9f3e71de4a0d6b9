package server

import (
	"time"

	"github.com/boop-box/boopbox-go/pkg/log"
	"github.com/boop-box/boopbox-go/pkg/wire"
)

func (c *serverConn) event(dir log.Direction, layer log.Layer, cat log.Category) log.Event {
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    dir,
		Layer:        layer,
		Category:     cat,
		LocalRole:    log.RoleServer,
		RemoteAddr:   c.remote,
		User:         c.user,
	}
}

func (c *serverConn) logState(from, to string) {
	e := c.event(log.DirectionIn, log.LayerTransport, log.CategoryState)
	e.StateChange = &log.StateChangeEvent{
		Entity:   log.StateEntitySession,
		OldState: from,
		NewState: to,
	}
	c.server.plog.Log(e)
}

func (c *serverConn) logAuth(accepted bool) {
	e := c.event(log.DirectionIn, log.LayerWire, log.CategoryMessage)
	result := "Rejected"
	if accepted {
		result = "Accepted"
	}
	e.Message = &log.MessageEvent{Type: log.MessageTypeAuth, Result: result}
	c.server.plog.Log(e)
}

func (c *serverConn) logRequest(req wire.Request) {
	if req.Op == wire.OpKeepalive {
		c.logControl(log.DirectionIn, log.ControlMsgKeepalive)
		return
	}
	e := c.event(log.DirectionIn, log.LayerWire, log.CategoryMessage)
	e.Message = &log.MessageEvent{
		Type:   log.MessageTypeRequest,
		Opcode: uint8(req.Op),
		OpName: req.Op.String(),
	}
	switch req.Op {
	case wire.OpCheckUID:
		e.Message.UID = req.UID.String()
	case wire.OpGetAudio:
		e.Message.AchievementID = req.AchievementID.String()
	}
	c.server.plog.Log(e)
}

func (c *serverConn) logCheckUIDResponse(uid wire.UID, result wire.CheckUIDResult) {
	e := c.event(log.DirectionOut, log.LayerWire, log.CategoryMessage)
	count := len(result.Achievements)
	e.Message = &log.MessageEvent{
		Type:   log.MessageTypeResponse,
		Opcode: uint8(wire.OpCheckUID),
		OpName: wire.OpCheckUID.String(),
		UID:    uid.String(),
		Result: result.Status.String(),
		Count:  &count,
	}
	c.server.plog.Log(e)
}

func (c *serverConn) logGetAudioResponse(id wire.AchievementID, data []byte, present bool) {
	e := c.event(log.DirectionOut, log.LayerWire, log.CategoryMessage)
	result := "Absent"
	if present {
		result = "Present"
	}
	size := len(data)
	e.Message = &log.MessageEvent{
		Type:          log.MessageTypeResponse,
		Opcode:        uint8(wire.OpGetAudio),
		OpName:        wire.OpGetAudio.String(),
		AchievementID: id.String(),
		Result:        result,
		AudioSize:     &size,
	}
	c.server.plog.Log(e)
}

func (c *serverConn) logControl(dir log.Direction, typ log.ControlMsgType) {
	e := c.event(dir, log.LayerTransport, log.CategoryControl)
	e.ControlMsg = &log.ControlMsgEvent{Type: typ}
	c.server.plog.Log(e)
}

func (c *serverConn) logError(what string, err error) {
	e := c.event(log.DirectionIn, log.LayerTransport, log.CategoryError)
	e.Error = &log.ErrorEventData{
		Layer:   log.LayerTransport,
		Message: err.Error(),
		Context: what,
	}
	c.server.plog.Log(e)
	c.server.debugLog("connection error", "conn", c.id, "context", what, "error", err)
}
