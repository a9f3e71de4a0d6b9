package wire

// Opcode is the first byte of every request.
type Opcode uint8

const (
	// OpCheckUID asks which achievements a tag unlocks.
	OpCheckUID Opcode = 0x00

	// OpGetAudio fetches the audio blob for an achievement.
	OpGetAudio Opcode = 0x01

	// OpKeepalive proves the stream is still alive.
	OpKeepalive Opcode = 0x02
)

// String returns the opcode name.
func (o Opcode) String() string {
	switch o {
	case OpCheckUID:
		return "CheckUID"
	case OpGetAudio:
		return "GetAudio"
	case OpKeepalive:
		return "Keepalive"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the opcode is known.
func (o Opcode) IsValid() bool {
	return o <= OpKeepalive
}

// Response marker bytes.
const (
	// AuthAccepted is the only authentication reply that grants a session.
	AuthAccepted byte = 0x01

	// AuthRejected is what the reference server sends on bad credentials.
	AuthRejected byte = 0x00

	// CheckUIDMarkerError marks a failed CheckUID on the server side.
	CheckUIDMarkerError byte = 0x00

	// CheckUIDMarkerOk precedes the achievement count.
	CheckUIDMarkerOk byte = 0x01

	// CheckUIDMarkerThrottled marks a rate limited tag.
	CheckUIDMarkerThrottled byte = 0x02

	// AudioMarkerAbsent means the server has no audio for the ID.
	AudioMarkerAbsent byte = 0x00

	// AudioMarkerPresent precedes the length-prefixed payload.
	AudioMarkerPresent byte = 0x01

	// KeepaliveReply is what the reference server answers to a keepalive.
	KeepaliveReply byte = 0x01
)
