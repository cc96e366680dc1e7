// Package log provides structured protocol capture for yeectl.
//
// This package defines the Logger interface and Event types recorded while
// talking to a device: raw lines at the transport layer, requests and
// responses at the session layer, connection state changes and errors.
// It is separate from operational logging (slog), which stays human
// oriented.
//
// # Basic Usage
//
//	// Console: forward events to slog at debug level
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// File: append CBOR events to a capture file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("bulb.ylog")
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(console, file)
//
// # File Format
//
// Capture files are a stream of CBOR encoded events with integer keys, by
// convention with the .ylog extension. The yeectl-log tool views and
// summarizes them.
package log
