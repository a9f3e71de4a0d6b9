// Package server implements a reference achievement server.
//
// The server speaks the boop-box wire protocol over TLS: one authentication
// exchange per connection followed by any number of CheckUID, GetAudio and
// Keepalive requests. Accounts, tag assignments and audio blobs come from a
// Catalog, which can be built in code or loaded from a YAML fixture file.
//
// It backs the end-to-end tests and cmd/boopbox-server. It is not meant to
// be a production service.
package server
