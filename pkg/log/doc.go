// Package log captures a machine-readable trace of the boop-box protocol.
//
// It is separate from operational logging (slog). Components that talk to
// the achievement server accept a Logger and report what crossed the wire:
// raw frames, decoded requests and responses, keepalives, connection status
// transitions and failures.
//
//	// Console output while developing
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Capture to disk for boopbox-log
//	fl, _ := log.NewFileLogger("/var/log/boop-box/device.blog")
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// Authentication frames never carry the secret: RedactAuth replaces it
// before the frame reaches any Logger.
//
// Files are a stream of CBOR-encoded Events (.blog). Reader iterates them,
// optionally through a Filter.
package log
