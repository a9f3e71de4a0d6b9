// Package persistence stores the device configuration on disk.
//
// The file is YAML so it can be edited by hand during provisioning. It holds
// the server credentials, including the secret, so it is written with mode
// 0600 and replaced atomically.
package persistence
