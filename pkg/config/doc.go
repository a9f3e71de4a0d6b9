// Package config holds the device's connection credentials and the
// configuration store the networker talks to.
//
// The store is an actor: a Manager owns a Backend (a YAML file in the device
// binary, memory in tests) and serves get/set requests arriving on a bounded
// channel. Callers use a Client, which implements Store, so they never touch
// the Backend directly.
package config
