package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Codec limits.
const (
	// MaxAuthLength is the largest "user:secret" string a length byte can describe.
	MaxAuthLength = 255

	// AudioLengthSize is the size of the GetAudio length prefix in bytes.
	AudioLengthSize = 4

	// DefaultMaxAudioSize bounds the payload a client will allocate for (64 MiB).
	DefaultMaxAudioSize = 64 << 20
)

// Codec errors.
var (
	// ErrAuthTooLong indicates "user:secret" does not fit in a length byte.
	ErrAuthTooLong = errors.New("authentication string too long")

	// ErrTruncated indicates the stream ended in the middle of a response.
	ErrTruncated = errors.New("response truncated")

	// ErrPayloadTooLarge indicates an advertised length above the configured maximum.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrUnknownOpcode indicates a request with an opcode this package does not know.
	ErrUnknownOpcode = errors.New("unknown opcode")

	// ErrMalformedAuth indicates an authentication string without a separator.
	ErrMalformedAuth = errors.New("malformed authentication string")
)

// AuthString returns the "user:secret" string sent during authentication.
func AuthString(user, secret string) string {
	return user + ":" + secret
}

// EncodeAuth encodes the authentication frame.
func EncodeAuth(user, secret string) ([]byte, error) {
	auth := AuthString(user, secret)
	if len(auth) > MaxAuthLength {
		return nil, fmt.Errorf("%w: %d > %d", ErrAuthTooLong, len(auth), MaxAuthLength)
	}
	buf := make([]byte, 0, 1+len(auth))
	buf = append(buf, byte(len(auth)))
	buf = append(buf, auth...)
	return buf, nil
}

// WriteAuth writes the authentication frame in a single write.
func WriteAuth(w io.Writer, user, secret string) error {
	frame, err := EncodeAuth(user, secret)
	if err != nil {
		return err
	}
	return writeAll(w, frame)
}

// ReadAuthResponse reads the one-byte authentication verdict.
func ReadAuthResponse(r io.Reader) (bool, error) {
	b, err := readByte(r)
	if err != nil {
		return false, err
	}
	return b == AuthAccepted, nil
}

// EncodeCheckUIDRequest encodes a CheckUID request.
func EncodeCheckUIDRequest(uid UID) []byte {
	buf := make([]byte, 0, 1+UIDSize)
	buf = append(buf, byte(OpCheckUID))
	return append(buf, uid[:]...)
}

// WriteCheckUIDRequest writes a CheckUID request.
func WriteCheckUIDRequest(w io.Writer, uid UID) error {
	return writeAll(w, EncodeCheckUIDRequest(uid))
}

// ReadCheckUIDResponse decodes a CheckUID response.
func ReadCheckUIDResponse(r io.Reader) (CheckUIDResult, error) {
	marker, err := readByte(r)
	if err != nil {
		return CheckUIDResult{}, err
	}

	switch marker {
	case CheckUIDMarkerError:
		return ErrorResult(), nil
	case CheckUIDMarkerThrottled:
		return ThrottledResult(), nil
	}

	count, err := readByte(r)
	if err != nil {
		return CheckUIDResult{}, err
	}

	achievements := make([]AchievementID, count)
	for i := range achievements {
		if err := readFull(r, achievements[i][:]); err != nil {
			return CheckUIDResult{}, err
		}
	}
	return OkResult(achievements), nil
}

// EncodeGetAudioRequest encodes a GetAudio request.
func EncodeGetAudioRequest(id AchievementID) []byte {
	buf := make([]byte, 0, 1+AchievementIDSize)
	buf = append(buf, byte(OpGetAudio))
	return append(buf, id[:]...)
}

// WriteGetAudioRequest writes a GetAudio request.
func WriteGetAudioRequest(w io.Writer, id AchievementID) error {
	return writeAll(w, EncodeGetAudioRequest(id))
}

// ReadGetAudioResponse decodes a GetAudio response. The boolean is false when
// the server reported the audio as absent. Lengths above maxSize are rejected
// before any allocation; maxSize 0 means DefaultMaxAudioSize.
func ReadGetAudioResponse(r io.Reader, maxSize uint32) ([]byte, bool, error) {
	if maxSize == 0 {
		maxSize = DefaultMaxAudioSize
	}

	marker, err := readByte(r)
	if err != nil {
		return nil, false, err
	}
	if marker == AudioMarkerAbsent {
		return nil, false, nil
	}

	var lengthBuf [AudioLengthSize]byte
	if err := readFull(r, lengthBuf[:]); err != nil {
		return nil, false, err
	}
	length := binary.LittleEndian.Uint32(lengthBuf[:])
	if length > maxSize {
		return nil, false, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, length, maxSize)
	}

	data := make([]byte, length)
	if err := readFull(r, data); err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// WriteKeepalive writes a keepalive probe.
func WriteKeepalive(w io.Writer) error {
	return writeAll(w, []byte{byte(OpKeepalive)})
}

// ReadKeepaliveResponse reads the keepalive reply. Its value is ignored.
func ReadKeepaliveResponse(r io.Reader) error {
	_, err := readByte(r)
	return err
}

// Request is a decoded client request, as seen by a server.
type Request struct {
	Op            Opcode
	UID           UID
	AchievementID AchievementID
}

// ReadRequest reads one request from a client. io.EOF is returned unwrapped
// when the client closed the stream between requests.
func ReadRequest(r io.Reader) (Request, error) {
	var op [1]byte
	if _, err := io.ReadFull(r, op[:]); err != nil {
		return Request{}, err
	}

	req := Request{Op: Opcode(op[0])}
	switch req.Op {
	case OpCheckUID:
		if err := readFull(r, req.UID[:]); err != nil {
			return Request{}, err
		}
	case OpGetAudio:
		if err := readFull(r, req.AchievementID[:]); err != nil {
			return Request{}, err
		}
	case OpKeepalive:
	default:
		return Request{}, fmt.Errorf("%w: 0x%02x", ErrUnknownOpcode, op[0])
	}
	return req, nil
}

// ReadAuth reads an authentication frame and splits it at the first colon.
func ReadAuth(r io.Reader) (user, secret string, err error) {
	length, err := readByte(r)
	if err != nil {
		return "", "", err
	}
	buf := make([]byte, length)
	if err := readFull(r, buf); err != nil {
		return "", "", err
	}
	user, secret, ok := strings.Cut(string(buf), ":")
	if !ok {
		return "", "", ErrMalformedAuth
	}
	return user, secret, nil
}

// WriteAuthResponse writes the authentication verdict.
func WriteAuthResponse(w io.Writer, accepted bool) error {
	b := AuthRejected
	if accepted {
		b = AuthAccepted
	}
	return writeAll(w, []byte{b})
}

// EncodeCheckUIDResponse encodes a CheckUID response.
func EncodeCheckUIDResponse(result CheckUIDResult) ([]byte, error) {
	switch result.Status {
	case CheckUIDError:
		return []byte{CheckUIDMarkerError}, nil
	case CheckUIDThrottled:
		return []byte{CheckUIDMarkerThrottled}, nil
	case CheckUIDOk:
	default:
		return nil, fmt.Errorf("unknown check uid status %d", result.Status)
	}

	if len(result.Achievements) > MaxAchievements {
		return nil, fmt.Errorf("%w: %d achievements", ErrPayloadTooLarge, len(result.Achievements))
	}
	buf := make([]byte, 0, 2+len(result.Achievements)*AchievementIDSize)
	buf = append(buf, CheckUIDMarkerOk, byte(len(result.Achievements)))
	for _, id := range result.Achievements {
		buf = append(buf, id[:]...)
	}
	return buf, nil
}

// WriteCheckUIDResponse writes a CheckUID response.
func WriteCheckUIDResponse(w io.Writer, result CheckUIDResult) error {
	buf, err := EncodeCheckUIDResponse(result)
	if err != nil {
		return err
	}
	return writeAll(w, buf)
}

// EncodeGetAudioResponse encodes a GetAudio response; present=false encodes "absent".
func EncodeGetAudioResponse(data []byte, present bool) ([]byte, error) {
	if !present {
		return []byte{AudioMarkerAbsent}, nil
	}
	if uint64(len(data)) > 0xFFFFFFFF {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(data))
	}
	buf := make([]byte, 1+AudioLengthSize, 1+AudioLengthSize+len(data))
	buf[0] = AudioMarkerPresent
	binary.LittleEndian.PutUint32(buf[1:], uint32(len(data)))
	return append(buf, data...), nil
}

// WriteGetAudioResponse writes a GetAudio response.
func WriteGetAudioResponse(w io.Writer, data []byte, present bool) error {
	buf, err := EncodeGetAudioResponse(data, present)
	if err != nil {
		return err
	}
	return writeAll(w, buf)
}

// WriteKeepaliveResponse writes the keepalive reply.
func WriteKeepaliveResponse(w io.Writer) error {
	return writeAll(w, []byte{KeepaliveReply})
}

func writeAll(w io.Writer, buf []byte) error {
	n, err := w.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return io.ErrShortWrite
	}
	return nil
}

func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// readFull reads exactly len(buf) bytes. A stream that ends early is
// reported as ErrTruncated, wrapping the underlying EOF.
func readFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %w", ErrTruncated, err)
		}
		return err
	}
	return nil
}
