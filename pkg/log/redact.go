package log

import "bytes"

// RedactAuth returns a copy of an authentication frame (length byte followed
// by "user:secret") with every byte of the secret replaced by '*'. The length
// byte and the user are kept. Frames without a separator are fully masked
// after the length byte.
func RedactAuth(frame []byte) []byte {
	out := append([]byte(nil), frame...)
	if len(out) < 2 {
		return out
	}
	body := out[1:]
	start := bytes.IndexByte(body, ':') + 1
	for i := start; i < len(body); i++ {
		body[i] = '*'
	}
	return out
}
