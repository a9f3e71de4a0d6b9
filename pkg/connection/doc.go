// Package connection models the lifecycle of the device's single server
// session.
//
// A Machine holds the current credentials, at most one live Session and the
// suppression flag set when the server rejects the credentials. It performs
// no I/O of its own beyond closing sessions it drops; the networker event
// loop drives it and publishes every Status it returns.
//
// # States
//
//	NO_CONFIG ──SetCredentials──▶ DISCONNECTED ──Attached──▶ CONNECTED
//	                                 ▲    │                    │
//	                                 │  Rejected              Drop
//	                                 │    ▼                    │
//	          SetCredentials ── INVALID_CREDENTIALS            │
//	                                 ▲                         │
//	DISCONNECTED ◀─────────────────────────────────────────────┘
//
// Reconnection is attempted on a fixed tick while DISCONNECTED. There is no
// backoff: the tick interval is the only rate limit. INVALID_CREDENTIALS
// suppresses attempts until new credentials arrive.
package connection
