// Package cert provides the server certificate used by the reference
// achievement server: self-signed ECDSA P-256 identities, PEM encoding, and
// load-or-generate helpers for a certificate directory.
package cert
