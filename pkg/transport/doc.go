// Package transport connects a boop-box to its achievement server.
//
// A Connector resolves the server host, dials TCP, performs a TLS handshake
// and authenticates. The result is a Session: one live, authenticated stream
// carrying the request/response exchanges defined in package wire.
//
//	┌────────────────────────────────┐
//	│  CheckUID / GetAudio / Ping    │
//	├────────────────────────────────┤
//	│  auth: len(user:secret) + str  │
//	├────────────────────────────────┤
//	│  TLS (SystemRoots | Insecure)  │
//	├────────────────────────────────┤
//	│  TCP, 2s read/write deadlines  │
//	└────────────────────────────────┘
//
// Certificate checking is delegated to a TrustVerifier. SystemRoots verifies
// against the host's root store; Insecure accepts any certificate and is
// meant for development servers with self-signed certificates.
//
// Sessions are not safe for concurrent use. Requests are never pipelined: each
// exchange writes one request and reads its complete response. Any error
// returned from a Session method leaves the stream in an unknown state and
// the Session must be closed.
package transport
