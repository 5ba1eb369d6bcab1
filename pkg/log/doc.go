// Package log provides structured protocol logging for the cuelink control channel.
//
// This package defines the Logger interface and Event types for capturing
// control-channel events at multiple layers (transport, wire, connection).
// It is separate from operational logging (slog): protocol capture provides
// a machine-readable trace of every frame, command, ping and state change.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For field diagnostics: write to a capture file
//	fl, _ := log.NewFileLogger("/var/log/cuelink/session.clog")
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # File Format
//
// Capture files are a stream of CBOR-encoded events with the .clog
// extension. Reader iterates them with an optional Filter; the
// "cuelink log" command prints them.
package log
