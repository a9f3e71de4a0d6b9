package log

import (
	"time"
)

// Event is a single protocol log record. CBOR encoding uses integer keys.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the TLS session (UUID). Empty for events
	// raised outside a session, such as status transitions while offline.
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	Direction Direction `cbor:"3,keyasint"`
	Layer     Layer     `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`

	// LocalRole is the side that produced the event.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// User is the account name the session authenticated as.
	User string `cbor:"8,keyasint,omitempty"`

	// Exactly one of these is set.
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	ControlMsg  *ControlMsgEvent  `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates bytes read from the peer.
	DirectionIn Direction = 0
	// DirectionOut indicates bytes written to the peer.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which component captured the event.
type Layer uint8

const (
	// LayerTransport is the TLS stream (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the decoded request/response layer.
	LayerWire Layer = 1
	// LayerNetworker is the connection state machine.
	LayerNetworker Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerNetworker:
		return "NETWORKER"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage is a request or response.
	CategoryMessage Category = 0
	// CategoryControl is a keepalive or close.
	CategoryControl Category = 1
	// CategoryState is a status transition.
	CategoryState Category = 2
	// CategoryError is a failure at any layer.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role indicates which side of the protocol logged the event.
type Role uint8

const (
	// RoleDevice is the boop-box.
	RoleDevice Role = 0
	// RoleServer is the achievement server.
	RoleServer Role = 1
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleDevice:
		return "DEVICE"
	case RoleServer:
		return "SERVER"
	default:
		return "UNKNOWN"
	}
}

// MaxFrameDataSize is how many bytes of a frame are kept in FrameEvent.Data.
const MaxFrameDataSize = 4096

// FrameEvent captures raw bytes at the transport layer.
type FrameEvent struct {
	// Size is the full frame size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the frame bytes, cut at MaxFrameDataSize.
	Data []byte `cbor:"2,keyasint,omitempty"`

	Truncated bool `cbor:"3,keyasint,omitempty"`

	// Redacted marks an authentication frame whose secret was removed.
	Redacted bool `cbor:"4,keyasint,omitempty"`
}

// NewFrameEvent copies data into a FrameEvent, truncating large frames.
func NewFrameEvent(data []byte) *FrameEvent {
	fe := &FrameEvent{Size: len(data)}
	if len(data) > MaxFrameDataSize {
		fe.Data = append([]byte(nil), data[:MaxFrameDataSize]...)
		fe.Truncated = true
	} else {
		fe.Data = append([]byte(nil), data...)
	}
	return fe
}

// MessageEvent captures a decoded request or response.
type MessageEvent struct {
	Type MessageType `cbor:"1,keyasint"`

	// Opcode of the request this message belongs to.
	Opcode uint8 `cbor:"2,keyasint"`

	// OpName is the opcode name, kept so log files stay readable without
	// knowing the opcode table.
	OpName string `cbor:"3,keyasint,omitempty"`

	// UID is the hex tag UID of a CheckUID request.
	UID string `cbor:"4,keyasint,omitempty"`

	// AchievementID is the hex ID of a GetAudio request.
	AchievementID string `cbor:"5,keyasint,omitempty"`

	// Result is the response outcome: "Ok", "Throttled", "Error",
	// "Present", "Absent", "Accepted" or "Rejected".
	Result string `cbor:"6,keyasint,omitempty"`

	// Count is the number of achievements in an Ok CheckUID response.
	Count *int `cbor:"7,keyasint,omitempty"`

	// AudioSize is the payload length of a present GetAudio response.
	AudioSize *int `cbor:"8,keyasint,omitempty"`

	// Latency is the time from request write to response decode (response only).
	Latency *time.Duration `cbor:"9,keyasint,omitempty"`
}

// MessageType distinguishes requests from responses.
type MessageType uint8

const (
	// MessageTypeRequest is a client request.
	MessageTypeRequest MessageType = 0
	// MessageTypeResponse is a server response.
	MessageTypeResponse MessageType = 1
	// MessageTypeAuth is the authentication exchange.
	MessageTypeAuth MessageType = 2
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeResponse:
		return "RESPONSE"
	case MessageTypeAuth:
		return "AUTH"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures status transitions.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	// StateEntityConnection is the networker's connection status.
	StateEntityConnection StateEntity = 0
	// StateEntitySession is a single TLS session.
	StateEntitySession StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// ControlMsgEvent captures keepalives and session teardown.
type ControlMsgEvent struct {
	Type ControlMsgType `cbor:"1,keyasint"`
}

// ControlMsgType indicates the type of control message.
type ControlMsgType uint8

const (
	// ControlMsgKeepalive is the 0x02 probe.
	ControlMsgKeepalive ControlMsgType = 0
	// ControlMsgKeepaliveReply is the server's one-byte answer.
	ControlMsgKeepaliveReply ControlMsgType = 1
	// ControlMsgClose is a local session close.
	ControlMsgClose ControlMsgType = 2
)

// String returns the control message type name.
func (c ControlMsgType) String() string {
	switch c {
	case ControlMsgKeepalive:
		return "KEEPALIVE"
	case ControlMsgKeepaliveReply:
		return "KEEPALIVE_REPLY"
	case ControlMsgClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures a failure.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Context describes what was being attempted ("connect", "check_uid", ...).
	Context string `cbor:"3,keyasint,omitempty"`
}
