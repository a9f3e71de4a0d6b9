// Package wire defines the binary wire format spoken between a boop box and
// its achievement server.
//
// The protocol runs over a single TLS stream. Requests are never pipelined:
// the client writes one request and reads the complete response before the
// next request is sent.
//
// # Authentication
//
// Immediately after the TLS handshake the client sends one length byte
// followed by the UTF-8 string "user:secret". The server answers with a
// single byte; 0x01 means accepted, anything else means rejected.
//
// # Requests
//
//	CheckUID   0x00 + UID bytes
//	GetAudio   0x01 + 20-byte achievement ID
//	Keepalive  0x02
//
// # Responses
//
//	CheckUID   0x00 error | 0x02 throttled | other: count N, N x 20-byte IDs
//	GetAudio   0x00 absent | other: uint32 little-endian length L, L bytes
//	Keepalive  one byte, value ignored
//
// Any short read while decoding a response is a hard failure of the stream;
// callers are expected to discard the connection rather than resynchronize.
package wire
