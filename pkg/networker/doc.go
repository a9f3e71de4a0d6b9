// Package networker is the device's command service for the achievement
// server.
//
// A Networker owns the single server session. Other parts of the device send
// it typed commands over a bounded channel (usually through a Client) and
// receive exactly one reply per command on a channel bound to that request.
// Status transitions are published on the Status channel.
//
// Run is one cooperative loop. Each iteration services exactly one of: the
// next command, the next tick, or shutdown. The session is therefore never
// touched concurrently and needs no lock.
//
// On each tick the loop either proves the live session with a keepalive or,
// when there is none, tries to connect. Commands never connect on their own:
// with no session, CheckUID replies Error and GetAudio replies absent. Any
// failure on a live session drops it and announces DISCONNECTED. Rejected
// credentials announce INVALID_CREDENTIALS and suspend connection attempts
// until SetConnection supplies new ones.
package networker
